// Package service contains the business logic layer of the application.
//
// Handlers parse HTTP and write responses; services validate and enforce
// the account rules; repositories read and write the database. Services
// receive repository interfaces, never the concrete sqlite type, so tests
// can substitute in-memory fakes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Endika/participacion/internal/apperror"
	"github.com/Endika/participacion/internal/config"
	"github.com/Endika/participacion/internal/model"
	"github.com/Endika/participacion/internal/repository"
)

// Validation constants.
const (
	MinPasswordLength = 8
	VoteYes           = "yes"
	VoteNo            = "no"
)

// timeNow is swapped out in tests that pin the clock.
var timeNow = time.Now

// PasswordHasher is the slice of auth.PasswordService the services need.
// Declared here so the service package doesn't import auth.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// CensusClient checks a document against the residence census.
// The real implementation calls the municipal census service; tests and
// local development use a stub.
type CensusClient interface {
	Verify(ctx context.Context, documentType, documentNumber string) (bool, error)
}

// AccountService handles the account business logic: registration, profile
// updates, moderation (roles, block, erase, lock), official positions,
// residence verification and the vote/flag lookups.
type AccountService struct {
	accounts      repository.AccountRepository
	content       repository.ContentRepository
	votes         repository.VoteRepository
	flags         repository.FlagRepository
	locks         repository.LockRepository
	censusCalls   repository.CensusRepository
	notifications repository.NotificationRepository
	census        CensusClient
	passwords     PasswordHasher
	settings      config.Settings
	validate      *validator.Validate
	logger        *slog.Logger
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	accounts repository.AccountRepository,
	content repository.ContentRepository,
	votes repository.VoteRepository,
	flags repository.FlagRepository,
	locks repository.LockRepository,
	censusCalls repository.CensusRepository,
	notifications repository.NotificationRepository,
	census CensusClient,
	passwords PasswordHasher,
	settings config.Settings,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:      accounts,
		content:       content,
		votes:         votes,
		flags:         flags,
		locks:         locks,
		censusCalls:   censusCalls,
		notifications: notifications,
		census:        census,
		passwords:     passwords,
		settings:      settings,
		validate:      validator.New(),
		logger:        logger,
	}
}

// RegisterInput carries a direct registration request. Organization is set
// for organization signups; its profile is validated and saved together
// with the account.
type RegisterInput struct {
	Username       string
	Email          string
	Password       string
	Locale         string
	DocumentType   string
	DocumentNumber string
	PhoneNumber    string
	TermsOfService bool
	Organization   *OrganizationInput
}

// OrganizationInput is the nested organization profile of a registration or
// profile update.
type OrganizationInput struct {
	Name            string
	ResponsibleName string
}

// Register creates an account after running the full validation rule set.
// All field failures are reported together as apperror.ValidationErrors.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	account := &model.Account{
		Username:       strings.TrimSpace(in.Username),
		Email:          strings.TrimSpace(in.Email),
		DocumentType:   in.DocumentType,
		DocumentNumber: model.NormalizeDocumentNumber(in.DocumentNumber),
		PhoneNumber:    in.PhoneNumber,
		Locale:         in.Locale,
		TermsOfService: in.TermsOfService,
	}
	if in.Organization != nil {
		account.Organization = &model.Organization{
			Name:            strings.TrimSpace(in.Organization.Name),
			ResponsibleName: strings.TrimSpace(in.Organization.ResponsibleName),
		}
		// Organizations are registered by their responsible person; the
		// password requirement still applies, only the username doesn't.
	}

	if errs := s.validateAccount(account, in.Password, true); errs.Any() {
		return nil, errs
	}

	if in.Password != "" {
		hash, err := s.passwords.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("service/account: hashing password: %w", err)
		}
		account.PasswordHash = hash
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("service/account: creating account: %w", err)
	}

	s.logger.Info("account registered",
		slog.String("accountID", account.ID),
		slog.Bool("organization", account.IsOrganization()),
	)
	return account, nil
}

// UpdateProfileInput carries a profile edit. Nil/empty fields follow the
// "send the full profile" convention — handlers load the account first and
// fill the input from it.
type UpdateProfileInput struct {
	Username     string
	Email        string
	PhoneNumber  string
	Locale       string
	Organization *OrganizationInput
}

// UpdateProfile applies a profile edit and re-runs validation.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching account %s: %w", id, err)
	}

	account.Username = strings.TrimSpace(in.Username)
	if email := strings.TrimSpace(in.Email); email != account.Email {
		// Email changes are staged as unconfirmed until re-confirmed.
		account.UnconfirmedEmail = email
	}
	account.PhoneNumber = in.PhoneNumber
	account.Locale = in.Locale
	if in.Organization != nil && account.Organization != nil {
		account.Organization.Name = strings.TrimSpace(in.Organization.Name)
		account.Organization.ResponsibleName = strings.TrimSpace(in.Organization.ResponsibleName)
	}

	if errs := s.validateAccount(account, "", false); errs.Any() {
		return nil, errs
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("service/account: updating account %s: %w", id, err)
	}
	return account, nil
}

// validateAccount runs the declarative rules plus the conditional ones the
// struct tags can't express. Everything found is reported together.
func (s *AccountService) validateAccount(account *model.Account, password string, isNew bool) *apperror.ValidationErrors {
	errs := &apperror.ValidationErrors{}

	// Struct tags cover the unconditional bounds (official_level 0..5).
	if err := s.validate.Struct(account); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				errs.Add(jsonFieldName(fe), validationMessage(fe))
			}
		}
	}

	if account.UsernameRequired() {
		switch {
		case account.Username == "":
			errs.Add("username", "username is required")
		case len(account.Username) > s.settings.UsernameMaxLength:
			errs.Add("username", fmt.Sprintf("username must be %d characters or fewer",
				s.settings.UsernameMaxLength))
		}
	}

	if account.EmailRequired() && account.Email == "" {
		errs.Add("email", "email is required")
	}
	if account.Email != "" {
		if err := s.validate.Var(account.Email, "email"); err != nil {
			errs.Add("email", "email is not a valid address")
		}
	}
	// A staged email change must be a valid address before it sits in
	// unconfirmed_email waiting for confirmation.
	if account.UnconfirmedEmail != "" {
		if err := s.validate.Var(account.UnconfirmedEmail, "email"); err != nil {
			errs.Add("email", "email is not a valid address")
		}
	}

	if account.Locale != "" && !s.settings.LocaleSupported(account.Locale) {
		errs.Add("locale", "locale is not supported")
	}

	if account.IsOrganization() && account.Organization.Name == "" {
		errs.Add("organization.name", "organization name is required")
	}

	if isNew {
		if !account.TermsOfService {
			errs.Add("termsOfService", "terms of service must be accepted")
		}
		if account.PasswordRequired() {
			switch {
			case password == "":
				errs.Add("password", "password is required")
			case len(password) < MinPasswordLength:
				errs.Add("password", fmt.Sprintf("password must be at least %d characters",
					MinPasswordLength))
			}
		}
	}

	return errs
}

// GrantRole grants a moderation role (administrator or moderator).
func (s *AccountService) GrantRole(ctx context.Context, accountID string, role model.Role) error {
	if role != model.RoleAdministrator && role != model.RoleModerator {
		return apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", role))
	}
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return fmt.Errorf("service/account: fetching account %s: %w", accountID, err)
	}
	if err := s.accounts.GrantRole(ctx, accountID, role); err != nil {
		return fmt.Errorf("service/account: granting role: %w", err)
	}
	s.logger.Info("role granted",
		slog.String("accountID", accountID), slog.String("role", string(role)))
	return nil
}

// RevokeRole removes a moderation role.
func (s *AccountService) RevokeRole(ctx context.Context, accountID string, role model.Role) error {
	if role != model.RoleAdministrator && role != model.RoleModerator {
		return apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", role))
	}
	if err := s.accounts.RevokeRole(ctx, accountID, role); err != nil {
		return fmt.Errorf("service/account: revoking role: %w", err)
	}
	s.logger.Info("role revoked",
		slog.String("accountID", accountID), slog.String("role", string(role)))
	return nil
}

// AssignOfficialPosition sets the official title and level. A blank title
// or level is a silent no-op rather than an error, so a half-filled admin
// form leaves the account untouched. The level string is coerced to an
// integer; out-of-range values fail validation.
func (s *AccountService) AssignOfficialPosition(ctx context.Context, accountID, position, level string) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching account %s: %w", accountID, err)
	}

	if strings.TrimSpace(position) == "" || strings.TrimSpace(level) == "" {
		return account, nil
	}

	// Blank-checked above; anything non-numeric coerces to 0.
	lvl, _ := strconv.Atoi(strings.TrimSpace(level))
	account.OfficialPosition = position
	account.OfficialLevel = lvl

	if errs := s.validateAccount(account, "", false); errs.Any() {
		return nil, errs
	}
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("service/account: updating account %s: %w", accountID, err)
	}
	return account, nil
}

// ClearOfficialPosition resets the official title to empty and level to 0.
func (s *AccountService) ClearOfficialPosition(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching account %s: %w", accountID, err)
	}
	account.OfficialPosition = ""
	account.OfficialLevel = 0
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("service/account: updating account %s: %w", accountID, err)
	}
	return account, nil
}

// Block soft-hides the account and everything it authored.
//
// The content IDs are collected BEFORE hiding: only debates, proposals and
// comments that exist at the time of the call are affected. Content the
// account somehow authors afterwards stays visible until the next block.
func (s *AccountService) Block(ctx context.Context, accountID string) error {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return fmt.Errorf("service/account: fetching account %s: %w", accountID, err)
	}

	debateIDs, err := s.content.DebateIDsByAuthor(ctx, accountID)
	if err != nil {
		return fmt.Errorf("service/account: collecting debates: %w", err)
	}
	proposalIDs, err := s.content.ProposalIDsByAuthor(ctx, accountID)
	if err != nil {
		return fmt.Errorf("service/account: collecting proposals: %w", err)
	}
	commentIDs, err := s.content.CommentIDsByAuthor(ctx, accountID)
	if err != nil {
		return fmt.Errorf("service/account: collecting comments: %w", err)
	}

	if err := s.content.HideAllDebates(ctx, debateIDs); err != nil {
		return fmt.Errorf("service/account: hiding debates: %w", err)
	}
	if err := s.content.HideAllProposals(ctx, proposalIDs); err != nil {
		return fmt.Errorf("service/account: hiding proposals: %w", err)
	}
	if err := s.content.HideAllComments(ctx, commentIDs); err != nil {
		return fmt.Errorf("service/account: hiding comments: %w", err)
	}

	if err := s.accounts.Hide(ctx, accountID); err != nil {
		return fmt.Errorf("service/account: hiding account: %w", err)
	}

	s.logger.Info("account blocked",
		slog.String("accountID", accountID),
		slog.Int("debates", len(debateIDs)),
		slog.Int("proposals", len(proposalIDs)),
		slog.Int("comments", len(commentIDs)),
	)
	return nil
}

// Erase irreversibly scrubs the account's PII while keeping the row for
// referential integrity. The account is unusable for authentication
// afterwards. Erasing twice changes nothing further.
func (s *AccountService) Erase(ctx context.Context, accountID, reason string) error {
	if err := s.accounts.Erase(ctx, accountID, reason); err != nil {
		return fmt.Errorf("service/account: erasing account %s: %w", accountID, err)
	}
	s.logger.Info("account erased", slog.String("accountID", accountID))
	return nil
}

// IsLocked reports whether the account's access lock is engaged, lazily
// creating the lock record on first lookup.
func (s *AccountService) IsLocked(ctx context.Context, accountID string) (bool, error) {
	lock, err := s.locks.GetOrCreateLock(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("service/account: reading lock: %w", err)
	}
	return lock.Locked, nil
}

// LockAccess engages the account's access lock.
func (s *AccountService) LockAccess(ctx context.Context, accountID string) error {
	if err := s.locks.SetLocked(ctx, accountID, true); err != nil {
		return fmt.Errorf("service/account: locking account %s: %w", accountID, err)
	}
	return nil
}

// UnlockAccess releases the account's access lock.
func (s *AccountService) UnlockAccess(ctx context.Context, accountID string) error {
	if err := s.locks.SetLocked(ctx, accountID, false); err != nil {
		return fmt.Errorf("service/account: unlocking account %s: %w", accountID, err)
	}
	return nil
}

// GetByID returns the account with its organization profile and roles.
func (s *AccountService) GetByID(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching account %s: %w", accountID, err)
	}
	return account, nil
}

// Search finds accounts by exact email or case-insensitive username
// substring. A blank term returns no accounts.
func (s *AccountService) Search(ctx context.Context, term string, opts repository.ListOptions) ([]model.Account, error) {
	accounts, err := s.accounts.Search(ctx, term, opts)
	if err != nil {
		return nil, fmt.Errorf("service/account: searching accounts: %w", err)
	}
	return accounts, nil
}

// Locale returns the account's locale, falling back to the system default.
// When no locale is stored, the default is persisted on first read so every
// later reader sees the same value.
func (s *AccountService) Locale(ctx context.Context, account *model.Account) (string, error) {
	if account.Locale != "" {
		return account.Locale, nil
	}
	account.Locale = s.settings.DefaultLocale
	if err := s.accounts.Update(ctx, account); err != nil {
		return "", fmt.Errorf("service/account: persisting default locale: %w", err)
	}
	return account.Locale, nil
}

// HasOfficialEmail reports whether the account's email belongs to the
// configured official domain.
func (s *AccountService) HasOfficialEmail(account *model.Account) bool {
	return account.HasOfficialEmail(s.settings.OfficialEmailDomain)
}

// UsernameMaxLength exposes the configured username length limit.
func (s *AccountService) UsernameMaxLength() int {
	return s.settings.UsernameMaxLength
}

// CastVote records the account's vote on a subject.
func (s *AccountService) CastVote(ctx context.Context, accountID, votableType, votableID, value string) error {
	if value != VoteYes && value != VoteNo {
		return apperror.ValidationFailed("value", `vote value must be "yes" or "no"`)
	}
	vote := &model.Vote{
		AccountID:   accountID,
		VotableType: votableType,
		VotableID:   votableID,
		Value:       value,
	}
	if err := s.votes.RecordVote(ctx, vote); err != nil {
		return fmt.Errorf("service/account: recording vote: %w", err)
	}
	return nil
}

// VotesFor maps subject ID → the account's vote value, restricted to the
// given subject set.
func (s *AccountService) VotesFor(ctx context.Context, accountID, votableType string, votableIDs []string) (map[string]string, error) {
	votes, err := s.votes.VotesFor(ctx, accountID, votableType, votableIDs)
	if err != nil {
		return nil, fmt.Errorf("service/account: listing votes: %w", err)
	}
	return votes, nil
}

// RaiseFlag records that the account flagged a subject. Idempotent.
func (s *AccountService) RaiseFlag(ctx context.Context, accountID, flaggableType, flaggableID string) error {
	flag := &model.Flag{
		AccountID:     accountID,
		FlaggableType: flaggableType,
		FlaggableID:   flaggableID,
	}
	if err := s.flags.RecordFlag(ctx, flag); err != nil {
		return fmt.Errorf("service/account: recording flag: %w", err)
	}
	return nil
}

// FlagsFor maps subject ID → true for subjects the account flagged,
// restricted to the given subject set.
func (s *AccountService) FlagsFor(ctx context.Context, accountID, flaggableType string, flaggableIDs []string) (map[string]bool, error) {
	flags, err := s.flags.FlagsFor(ctx, accountID, flaggableType, flaggableIDs)
	if err != nil {
		return nil, fmt.Errorf("service/account: listing flags: %w", err)
	}
	return flags, nil
}

// VerifyResidence checks the account's document against the census. On
// success the document pair and verification timestamp are stored; on a
// census miss the failed call is recorded for auditing and a field error is
// returned.
func (s *AccountService) VerifyResidence(ctx context.Context, accountID, documentType, documentNumber string) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching account %s: %w", accountID, err)
	}

	normalized := model.NormalizeDocumentNumber(documentNumber)
	if normalized == "" {
		return nil, apperror.ValidationFailed("documentNumber", "document number is required")
	}

	ok, err := s.census.Verify(ctx, documentType, normalized)
	if err != nil {
		return nil, fmt.Errorf("service/account: calling census: %w", err)
	}
	if !ok {
		call := &model.FailedCensusCall{
			AccountID:      accountID,
			DocumentType:   documentType,
			DocumentNumber: normalized,
		}
		if err := s.censusCalls.RecordFailedCensusCall(ctx, call); err != nil {
			return nil, fmt.Errorf("service/account: recording failed census call: %w", err)
		}
		s.logger.Info("census verification failed", slog.String("accountID", accountID))
		return nil, apperror.ValidationFailed("documentNumber", "document not found in census")
	}

	now := timeNow()
	account.DocumentType = documentType
	account.DocumentNumber = normalized
	account.VerifiedAt = &now
	if errs := s.validateAccount(account, "", false); errs.Any() {
		return nil, errs
	}
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("service/account: updating account %s: %w", accountID, err)
	}

	s.logger.Info("residence verified", slog.String("accountID", accountID))
	return account, nil
}

// Notify stores an in-app notification for the account.
func (s *AccountService) Notify(ctx context.Context, accountID, notifiableType, notifiableID string) error {
	n := &model.Notification{
		AccountID:      accountID,
		NotifiableType: notifiableType,
		NotifiableID:   notifiableID,
	}
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("service/account: creating notification: %w", err)
	}
	return nil
}

// Notifications lists the account's notifications, newest first.
func (s *AccountService) Notifications(ctx context.Context, accountID string, opts repository.ListOptions) ([]model.Notification, error) {
	notifications, err := s.notifications.NotificationsByAccount(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/account: listing notifications: %w", err)
	}
	return notifications, nil
}

// jsonFieldName lowers the first rune of the struct field name so errors
// line up with the JSON field names clients send.
func jsonFieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
