// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Account represents a registered user or organization profile.
//
// An account accumulates several independent boolean facets rather than a
// state machine: it can be confirmed, verified, erased, hidden (blocked) and
// locked in any combination. Erasure and hiding are both soft — the row is
// kept for referential integrity and scoped out of default queries instead
// of being deleted.
//
// WHY POINTER TIMESTAMPS?
// ConfirmedAt, ErasedAt, HiddenAt etc. are *time.Time because "not set" is
// meaningful: ErasedAt == nil means the account was never erased. A zero
// time.Time would also work, but nil scans cleanly from a nullable SQL
// column and makes the predicates read naturally.
type Account struct {
	ID               string `json:"id"        db:"id"`
	Username         string `json:"username"  db:"username"`
	Email            string `json:"email"     db:"email"`
	UnconfirmedEmail string `json:"unconfirmedEmail" db:"unconfirmed_email"`
	PasswordHash     string `json:"-"         db:"password_hash"`

	// Document pair: unique together, normalized alphanumeric-uppercase.
	DocumentNumber string `json:"documentNumber" db:"document_number"`
	DocumentType   string `json:"documentType"   db:"document_type"`

	PhoneNumber string `json:"phoneNumber" db:"phone_number"`

	// Official position: level 0 means "not an official".
	OfficialPosition string `json:"officialPosition" db:"official_position"`
	OfficialLevel    int    `json:"officialLevel"    db:"official_level" validate:"gte=0,lte=5"`

	Locale string `json:"locale" db:"locale"`

	ConfirmedAt *time.Time `json:"confirmedAt,omitempty" db:"confirmed_at"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"  db:"verified_at"`
	ErasedAt    *time.Time `json:"-" db:"erased_at"`
	EraseReason string     `json:"-" db:"erase_reason"`
	HiddenAt    *time.Time `json:"-" db:"hidden_at"`

	SignInCount     int        `json:"-" db:"sign_in_count"`
	CurrentSignInAt *time.Time `json:"-" db:"current_sign_in_at"`
	LastSignInAt    *time.Time `json:"-" db:"last_sign_in_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	// Organization profile, present only for organization accounts.
	// Loaded by the repository together with the account.
	Organization *Organization `json:"organization,omitempty" db:"-"`

	// Moderation roles (administrator, moderator), loaded with the account.
	Roles []Role `json:"roles,omitempty" db:"-"`

	// In-memory registration flags. Never persisted.
	//
	// TermsOfService must be accepted at creation. SkipPassword suppresses
	// the password requirement (organizations created by admins).
	// FromIdentity marks a registration driven by an external identity
	// provider — username and email are completed later.
	TermsOfService bool `json:"-" db:"-"`
	SkipPassword   bool `json:"-" db:"-"`
	FromIdentity   bool `json:"-" db:"-"`
}

// Role is a moderation role granted to an account.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleModerator     Role = "moderator"
)

// Organization is the group-entity profile attached to an organization
// account. It is validated and updated together with its owning account.
type Organization struct {
	ID              string     `json:"id"   db:"id"`
	AccountID       string     `json:"-"    db:"account_id"`
	Name            string     `json:"name" db:"name"`
	ResponsibleName string     `json:"responsibleName" db:"responsible_name"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty" db:"verified_at"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// Verified reports whether the organization passed verification.
func (o *Organization) Verified() bool {
	return o != nil && o.VerifiedAt != nil
}

// DisplayName returns the organization name for organization accounts and
// the username otherwise.
func (a *Account) DisplayName() string {
	if a.IsOrganization() {
		return a.Organization.Name
	}
	return a.Username
}

// IsOrganization reports whether this account carries an organization profile.
func (a *Account) IsOrganization() bool {
	return a.Organization != nil
}

// IsVerifiedOrganization reports whether the account is an organization that
// has itself been verified.
func (a *Account) IsVerifiedOrganization() bool {
	return a.IsOrganization() && a.Organization.Verified()
}

// IsAdministrator reports whether the administrator role is granted.
func (a *Account) IsAdministrator() bool { return a.hasRole(RoleAdministrator) }

// IsModerator reports whether the moderator role is granted.
func (a *Account) IsModerator() bool { return a.hasRole(RoleModerator) }

func (a *Account) hasRole(r Role) bool {
	for _, role := range a.Roles {
		if role == r {
			return true
		}
	}
	return false
}

// IsOfficial reports whether the account holds any official level.
func (a *Account) IsOfficial() bool {
	return a.OfficialLevel > 0
}

// Erased reports whether the account's PII has been irreversibly scrubbed.
func (a *Account) Erased() bool {
	return a.ErasedAt != nil
}

// Hidden reports whether the account was soft-hidden (blocked).
func (a *Account) Hidden() bool {
	return a.HiddenAt != nil
}

// Confirmed reports whether the account's email was confirmed.
func (a *Account) Confirmed() bool {
	return a.ConfirmedAt != nil
}

// Verified reports whether the account passed residence verification.
func (a *Account) Verified() bool {
	return a.VerifiedAt != nil
}

// UsernameRequired reports whether a username must be present and unique.
// Organizations are displayed by their organization name, erased accounts
// have had the username nulled, and external-identity registrations pick a
// username later — none of those require one.
func (a *Account) UsernameRequired() bool {
	return !a.IsOrganization() && !a.Erased() && !a.FromIdentity
}

// EmailRequired reports whether an email must be present.
func (a *Account) EmailRequired() bool {
	return !a.Erased() && !a.FromIdentity
}

// PasswordRequired reports whether a password must be set. An explicit skip
// flag wins; otherwise a credential is required whenever none is stored yet.
func (a *Account) PasswordRequired() bool {
	if a.SkipPassword {
		return false
	}
	return a.PasswordHash == ""
}

// HasOfficialEmail reports whether the account's email belongs to the
// configured official domain (exact match or subdomain).
func (a *Account) HasOfficialEmail(officialDomain string) bool {
	if officialDomain == "" || a.Email == "" {
		return false
	}
	at := strings.LastIndex(a.Email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(a.Email[at+1:])
	officialDomain = strings.ToLower(officialDomain)
	return domain == officialDomain || strings.HasSuffix(domain, "."+officialDomain)
}

// ShowWelcomeScreen reports whether the welcome screen should be shown:
// first sign-in, not yet verified, and neither an organization nor an
// administrator.
func (a *Account) ShowWelcomeScreen() bool {
	return a.SignInCount == 1 && !a.Verified() && !a.IsOrganization() && !a.IsAdministrator()
}

// PendingFinishSignup reports whether an external-identity registration is
// still waiting for the user to supply an email address.
func (a *Account) PendingFinishSignup() bool {
	return a.Email == "" && a.UnconfirmedEmail == ""
}

// LocaleOrDefault returns the stored locale, or the given default when none
// is stored. It never writes — persisting the default on first read is the
// service layer's job.
func (a *Account) LocaleOrDefault(def string) string {
	if a.Locale != "" {
		return a.Locale
	}
	return def
}

// NormalizeDocumentNumber strips everything but letters and digits and
// upcases the rest, so "12.345.678-z" and "12345678Z" collide on the unique
// index as the same document.
func NormalizeDocumentNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}
