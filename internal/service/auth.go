package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Endika/participacion/internal/apperror"
	"github.com/Endika/participacion/internal/auth"
	"github.com/Endika/participacion/internal/config"
	"github.com/Endika/participacion/internal/model"
	"github.com/Endika/participacion/internal/repository"
)

// AuthService handles authentication: password login, the external identity
// provider flow, and JWT issue/validation.
//
//	AuthHandler (HTTP) → AuthService (rules) → AccountRepository (DB)
//	                   ↘ TokenService (JWT)
type AuthService struct {
	accounts   repository.AccountRepository
	identities repository.IdentityRepository
	locks      repository.LockRepository
	tokens     *auth.TokenService
	passwords  PasswordHasher
	settings   config.Settings
	logger     *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	accounts repository.AccountRepository,
	identities repository.IdentityRepository,
	locks repository.LockRepository,
	tokens *auth.TokenService,
	passwords PasswordHasher,
	settings config.Settings,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		accounts:   accounts,
		identities: identities,
		locks:      locks,
		tokens:     tokens,
		passwords:  passwords,
		settings:   settings,
		logger:     logger,
	}
}

// AuthResult bundles the account and the issued JWT so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	Account *model.Account
	Token   string
}

// Login authenticates by email-or-username and password and issues a token.
//
// Erased accounts cannot authenticate — their password hash was nulled, but
// we reject them explicitly before touching bcrypt. Locked accounts are
// rejected with a forbidden error. A successful login bumps the sign-in
// counters, which feed the welcome-screen rule.
func (s *AuthService) Login(ctx context.Context, login, password string) (*AuthResult, error) {
	account, err := s.accounts.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid login or password")
		}
		return nil, fmt.Errorf("service/auth: fetching account by login: %w", err)
	}

	if account.Erased() {
		return nil, apperror.Unauthorized("invalid login or password")
	}

	lock, err := s.locks.GetOrCreateLock(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: reading lock: %w", err)
	}
	if lock.Locked {
		return nil, apperror.Forbidden("account access is locked")
	}

	if account.PasswordHash == "" {
		return nil, apperror.Unauthorized("invalid login or password")
	}
	if err := s.passwords.Verify(account.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("invalid login or password")
	}

	if err := s.accounts.RecordSignIn(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("service/auth: recording sign-in: %w", err)
	}
	// Mirror the counter bump locally so ShowWelcomeScreen sees it without
	// a re-read.
	account.SignInCount++

	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for account %s: %w", account.ID, err)
	}

	s.logger.Info("account signed in",
		slog.String("accountID", account.ID),
		slog.Int("signInCount", account.SignInCount),
	)
	return &AuthResult{Account: account, Token: token}, nil
}

// FindOrCreateForIdentity resolves an external identity payload to an
// account, creating one when nothing matches.
//
// Resolution order:
//  1. An identity row for (provider, uid) — the account signed in with
//     this provider before.
//  2. A verified email reported by the provider that matches an existing
//     account — the identity is linked to it.
//  3. A brand-new account: username falls back through provider nickname →
//     slugified display name → provider uid; the password is a random
//     throwaway; terms are implicitly accepted; the account starts
//     confirmed only when the provider verified the email.
//
// Called twice with the same verified email it returns the same account —
// no duplicates.
func (s *AuthService) FindOrCreateForIdentity(ctx context.Context, payload *auth.Payload) (*model.Account, error) {
	if payload == nil {
		return nil, fmt.Errorf("service/auth: identity payload must not be nil")
	}

	// 1. A returning identity.
	identity, err := s.identities.GetIdentity(ctx, payload.Provider, payload.UID)
	switch {
	case err == nil:
		account, err := s.accounts.GetByID(ctx, identity.AccountID)
		if err != nil {
			return nil, fmt.Errorf("service/auth: fetching account for identity: %w", err)
		}
		return account, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up identity: %w", err)
	}

	// 2. A verified email matching an existing account.
	if payload.VerifiedEmail != "" {
		account, err := s.accounts.GetByEmail(ctx, payload.VerifiedEmail)
		switch {
		case err == nil:
			if err := s.linkIdentity(ctx, account.ID, payload); err != nil {
				return nil, err
			}
			return account, nil
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, fmt.Errorf("service/auth: looking up account by verified email: %w", err)
		}
	}

	// 3. A brand-new account. The provider is the credential here: the
	// account is exempt from the password requirement, and the throwaway
	// hash below only backs the row.
	account := &model.Account{
		Username:       usernameFromPayload(payload),
		Email:          payload.VerifiedEmail,
		Locale:         s.settings.DefaultLocale,
		TermsOfService: true,
		FromIdentity:   true,
		SkipPassword:   true,
	}
	if payload.VerifiedEmail != "" {
		now := timeNow()
		account.ConfirmedAt = &now
	}

	hash, err := s.passwords.Hash(auth.RandomPassword())
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing throwaway password: %w", err)
	}
	account.PasswordHash = hash

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("service/auth: creating account for identity: %w", err)
	}
	if err := s.linkIdentity(ctx, account.ID, payload); err != nil {
		return nil, err
	}

	s.logger.Info("account created from external identity",
		slog.String("accountID", account.ID),
		slog.String("provider", payload.Provider),
		slog.Bool("verifiedEmail", payload.VerifiedEmail != ""),
	)
	return account, nil
}

// LoginForIdentity runs the find-or-create flow and issues a session token,
// bumping the sign-in counters like a password login does.
//
// The same gates as a password login apply. Identity rows survive an erase
// and GetByID does not scope out hidden rows, so erased and blocked accounts
// resolve here even though GetByLogin would never return them — they are
// rejected explicitly before any token is issued.
func (s *AuthService) LoginForIdentity(ctx context.Context, payload *auth.Payload) (*AuthResult, error) {
	account, err := s.FindOrCreateForIdentity(ctx, payload)
	if err != nil {
		return nil, err
	}

	if account.Erased() || account.Hidden() {
		return nil, apperror.Unauthorized("account cannot sign in")
	}

	lock, err := s.locks.GetOrCreateLock(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: reading lock: %w", err)
	}
	if lock.Locked {
		return nil, apperror.Forbidden("account access is locked")
	}

	if err := s.accounts.RecordSignIn(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("service/auth: recording sign-in: %w", err)
	}
	account.SignInCount++

	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for account %s: %w", account.ID, err)
	}
	return &AuthResult{Account: account, Token: token}, nil
}

func (s *AuthService) linkIdentity(ctx context.Context, accountID string, payload *auth.Payload) error {
	identity := &model.Identity{
		AccountID: accountID,
		Provider:  payload.Provider,
		UID:       payload.UID,
	}
	if err := s.identities.CreateIdentity(ctx, identity); err != nil {
		return fmt.Errorf("service/auth: linking identity: %w", err)
	}
	return nil
}

// GetAccountByID returns the account for the given internal ID. Used by the
// /api/me handler after the middleware validates the JWT.
func (s *AuthService) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: account ID must not be empty")
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching account %s: %w", id, err)
	}
	return account, nil
}

// ValidateToken validates a JWT string and returns the accountID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	accountID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return accountID, nil
}

// usernameFromPayload picks a username for a new external-identity account:
// provider nickname, then the slugified display name, then the provider uid.
func usernameFromPayload(payload *auth.Payload) string {
	if payload.Nickname != "" {
		return payload.Nickname
	}
	if slug := slugify(payload.Name); slug != "" {
		return slug
	}
	return payload.UID
}

// slugify lowercases and collapses anything non-alphanumeric into single
// hyphens: "Ada Lovelace" → "ada-lovelace".
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
