package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/Endika/participacion/internal/apperror"
	"github.com/Endika/participacion/internal/auth"
	"github.com/Endika/participacion/internal/model"
)

type fakeIdentityRepo struct {
	identities map[string]*model.Identity // "provider|uid"
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{identities: make(map[string]*model.Identity)}
}

func (f *fakeIdentityRepo) CreateIdentity(ctx context.Context, identity *model.Identity) error {
	key := identity.Provider + "|" + identity.UID
	if _, ok := f.identities[key]; ok {
		return apperror.ValidationFailed("identity", "identity is already linked")
	}
	identity.ID = key
	cp := *identity
	f.identities[key] = &cp
	return nil
}

func (f *fakeIdentityRepo) GetIdentity(ctx context.Context, provider, uid string) (*model.Identity, error) {
	identity, ok := f.identities[provider+"|"+uid]
	if !ok {
		return nil, apperror.NotFound("identity", provider+"/"+uid)
	}
	cp := *identity
	return &cp, nil
}

type authServiceDeps struct {
	accounts   *fakeAccountRepo
	identities *fakeIdentityRepo
	locks      *fakeLockRepo
	tokens     *auth.TokenService
}

func newTestAuthService(t *testing.T) (*AuthService, *authServiceDeps) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	deps := &authServiceDeps{
		accounts:   newFakeAccountRepo(),
		identities: newFakeIdentityRepo(),
		locks:      newFakeLockRepo(),
		tokens:     tokens,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewAuthService(
		deps.accounts, deps.identities, deps.locks, tokens, fakeHasher{},
		testSettings(), logger,
	)
	return svc, deps
}

func createAuthAccount(t *testing.T, deps *authServiceDeps, username, email, password string) *model.Account {
	t.Helper()
	account := &model.Account{
		Username:       username,
		Email:          email,
		PasswordHash:   "hashed:" + password,
		Locale:         "es",
		TermsOfService: true,
	}
	if err := deps.accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return account
}

// ===== LOGIN TESTS =====

func TestAuthLogin(t *testing.T) {
	svc, deps := newTestAuthService(t)
	createAuthAccount(t, deps, "ada", "ada@example.com", "correct-horse")

	result, err := svc.Login(context.Background(), "ada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Token == "" {
		t.Error("Login() returned an empty token")
	}
	if result.Account.SignInCount != 1 {
		t.Errorf("SignInCount = %d, want 1", result.Account.SignInCount)
	}

	// The token must round-trip through validation
	accountID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if accountID != result.Account.ID {
		t.Errorf("ValidateToken() = %q, want %q", accountID, result.Account.ID)
	}
}

func TestAuthLogin_ByUsername(t *testing.T) {
	svc, deps := newTestAuthService(t)
	createAuthAccount(t, deps, "ada", "ada@example.com", "correct-horse")

	result, err := svc.Login(context.Background(), "ada", "correct-horse")
	if err != nil {
		t.Fatalf("Login() by username error = %v", err)
	}
	if result.Account.Username != "ada" {
		t.Errorf("Account.Username = %q", result.Account.Username)
	}
}

func TestAuthLogin_WrongPassword(t *testing.T) {
	svc, deps := newTestAuthService(t)
	createAuthAccount(t, deps, "ada", "ada@example.com", "correct-horse")

	_, err := svc.Login(context.Background(), "ada@example.com", "wrong")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
	t.Logf("got expected error: %v", err)
}

func TestAuthLogin_UnknownLogin(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
}

func TestAuthLogin_ErasedAccountRejected(t *testing.T) {
	svc, deps := newTestAuthService(t)
	account := createAuthAccount(t, deps, "gone", "gone@example.com", "correct-horse")

	if err := deps.accounts.Erase(context.Background(), account.ID, "left"); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}

	_, err := svc.Login(context.Background(), "gone@example.com", "correct-horse")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
}

func TestAuthLogin_LockedAccountForbidden(t *testing.T) {
	svc, deps := newTestAuthService(t)
	account := createAuthAccount(t, deps, "jailed", "jailed@example.com", "correct-horse")

	if err := deps.locks.SetLocked(context.Background(), account.ID, true); err != nil {
		t.Fatalf("SetLocked() error = %v", err)
	}

	_, err := svc.Login(context.Background(), "jailed@example.com", "correct-horse")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("Login() error = %v, want ErrForbidden", err)
	}
}

func TestAuthLogin_EmptyHashRejected(t *testing.T) {
	svc, deps := newTestAuthService(t)
	account := createAuthAccount(t, deps, "nohash", "nohash@example.com", "x")
	account.PasswordHash = ""
	if err := deps.accounts.Update(context.Background(), account); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	_, err := svc.Login(context.Background(), "nohash@example.com", "")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Login() error = %v, want ErrUnauthorized", err)
	}
}

// ===== FIND-OR-CREATE FOR IDENTITY TESTS =====

func TestFindOrCreateForIdentity_NewAccount(t *testing.T) {
	svc, deps := newTestAuthService(t)

	payload := &auth.Payload{
		Provider:      "github",
		UID:           "uid-123",
		Nickname:      "adal",
		Name:          "Ada Lovelace",
		Verified:      true,
		VerifiedEmail: "ada@example.com",
	}
	account, err := svc.FindOrCreateForIdentity(context.Background(), payload)
	if err != nil {
		t.Fatalf("FindOrCreateForIdentity() error = %v", err)
	}

	if account.Username != "adal" {
		t.Errorf("Username = %q, want the provider nickname", account.Username)
	}
	if account.Email != "ada@example.com" {
		t.Errorf("Email = %q", account.Email)
	}
	if account.ConfirmedAt == nil {
		t.Error("ConfirmedAt not set despite verified email")
	}
	if !account.FromIdentity || !account.TermsOfService {
		t.Errorf("FromIdentity = %v, TermsOfService = %v", account.FromIdentity, account.TermsOfService)
	}
	if account.PasswordHash == "" || account.PasswordHash == "hashed:" {
		t.Error("throwaway password not generated")
	}
	if !account.SkipPassword || account.PasswordRequired() {
		t.Error("identity account should be exempt from the password requirement")
	}
	if account.Locale != "en" {
		t.Errorf("Locale = %q, want the configured default", account.Locale)
	}

	if _, err := deps.identities.GetIdentity(context.Background(), "github", "uid-123"); err != nil {
		t.Errorf("identity not linked: %v", err)
	}
}

func TestFindOrCreateForIdentity_UnverifiedEmailNotConfirmed(t *testing.T) {
	svc, _ := newTestAuthService(t)

	account, err := svc.FindOrCreateForIdentity(context.Background(), &auth.Payload{
		Provider: "github",
		UID:      "uid-456",
		Nickname: "someone",
		Email:    "maybe@example.com",
	})
	if err != nil {
		t.Fatalf("FindOrCreateForIdentity() error = %v", err)
	}
	if account.ConfirmedAt != nil {
		t.Error("ConfirmedAt set for an unverified email")
	}
	if account.Email != "" {
		t.Errorf("Email = %q, unverified addresses must not be stored", account.Email)
	}
}

func TestFindOrCreateForIdentity_Idempotent(t *testing.T) {
	svc, deps := newTestAuthService(t)
	ctx := context.Background()

	payload := &auth.Payload{
		Provider:      "github",
		UID:           "uid-789",
		Nickname:      "repeat",
		Verified:      true,
		VerifiedEmail: "repeat@example.com",
	}
	first, err := svc.FindOrCreateForIdentity(ctx, payload)
	if err != nil {
		t.Fatalf("first FindOrCreateForIdentity() error = %v", err)
	}
	second, err := svc.FindOrCreateForIdentity(ctx, payload)
	if err != nil {
		t.Fatalf("second FindOrCreateForIdentity() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("got two accounts %q and %q for one identity", first.ID, second.ID)
	}
	if len(deps.accounts.accounts) != 1 {
		t.Errorf("account count = %d, want 1", len(deps.accounts.accounts))
	}
}

func TestFindOrCreateForIdentity_LinksExistingAccountByVerifiedEmail(t *testing.T) {
	svc, deps := newTestAuthService(t)
	ctx := context.Background()
	existing := createAuthAccount(t, deps, "veteran", "veteran@example.com", "pw")

	account, err := svc.FindOrCreateForIdentity(ctx, &auth.Payload{
		Provider:      "github",
		UID:           "uid-vet",
		Nickname:      "veteran-gh",
		Verified:      true,
		VerifiedEmail: "veteran@example.com",
	})
	if err != nil {
		t.Fatalf("FindOrCreateForIdentity() error = %v", err)
	}

	if account.ID != existing.ID {
		t.Errorf("linked account = %q, want existing %q", account.ID, existing.ID)
	}
	if len(deps.accounts.accounts) != 1 {
		t.Errorf("account count = %d, a duplicate was created", len(deps.accounts.accounts))
	}
	if _, err := deps.identities.GetIdentity(ctx, "github", "uid-vet"); err != nil {
		t.Errorf("identity not linked to the existing account: %v", err)
	}
}

func TestFindOrCreateForIdentity_UsernameFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		payload auth.Payload
		want    string
	}{
		{
			name:    "nickname wins",
			payload: auth.Payload{Nickname: "nick", Name: "Full Name", UID: "u1"},
			want:    "nick",
		},
		{
			name:    "slugified name",
			payload: auth.Payload{Name: "Ada Lovelace", UID: "u2"},
			want:    "ada-lovelace",
		},
		{
			name:    "uid as last resort",
			payload: auth.Payload{UID: "u3"},
			want:    "u3",
		},
		{
			name:    "unsluggable name falls through to uid",
			payload: auth.Payload{Name: "!!!", UID: "u4"},
			want:    "u4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAuthService(t)
			tt.payload.Provider = "github"
			account, err := svc.FindOrCreateForIdentity(context.Background(), &tt.payload)
			if err != nil {
				t.Fatalf("FindOrCreateForIdentity() error = %v", err)
			}
			if account.Username != tt.want {
				t.Errorf("Username = %q, want %q", account.Username, tt.want)
			}
		})
	}
}

func TestFindOrCreateForIdentity_NilPayload(t *testing.T) {
	svc, _ := newTestAuthService(t)

	if _, err := svc.FindOrCreateForIdentity(context.Background(), nil); err == nil {
		t.Error("FindOrCreateForIdentity(nil) should fail")
	}
}

// ===== LOGIN FOR IDENTITY TESTS =====

func TestLoginForIdentity(t *testing.T) {
	svc, _ := newTestAuthService(t)

	result, err := svc.LoginForIdentity(context.Background(), &auth.Payload{
		Provider:      "github",
		UID:           "uid-login",
		Nickname:      "ghuser",
		Verified:      true,
		VerifiedEmail: "ghuser@example.com",
	})
	if err != nil {
		t.Fatalf("LoginForIdentity() error = %v", err)
	}
	if result.Token == "" {
		t.Error("LoginForIdentity() returned an empty token")
	}
	if result.Account.SignInCount != 1 {
		t.Errorf("SignInCount = %d, want 1", result.Account.SignInCount)
	}
}

func TestLoginForIdentity_ErasedAccountRejected(t *testing.T) {
	svc, deps := newTestAuthService(t)
	ctx := context.Background()

	// The identity row survives an erase, so the find-or-create step still
	// resolves the account. No token may come out of it.
	payload := &auth.Payload{Provider: "github", UID: "uid-erased", Nickname: "goner"}
	account, err := svc.FindOrCreateForIdentity(ctx, payload)
	if err != nil {
		t.Fatalf("FindOrCreateForIdentity() error = %v", err)
	}
	if err := deps.accounts.Erase(ctx, account.ID, "left"); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}

	_, err = svc.LoginForIdentity(ctx, payload)
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("LoginForIdentity() error = %v, want ErrUnauthorized", err)
	}
}

func TestLoginForIdentity_HiddenAccountRejected(t *testing.T) {
	svc, deps := newTestAuthService(t)
	ctx := context.Background()

	payload := &auth.Payload{Provider: "github", UID: "uid-hidden", Nickname: "blocked"}
	account, err := svc.FindOrCreateForIdentity(ctx, payload)
	if err != nil {
		t.Fatalf("FindOrCreateForIdentity() error = %v", err)
	}
	if err := deps.accounts.Hide(ctx, account.ID); err != nil {
		t.Fatalf("Hide() error = %v", err)
	}

	_, err = svc.LoginForIdentity(ctx, payload)
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("LoginForIdentity() error = %v, want ErrUnauthorized", err)
	}
}

func TestLoginForIdentity_LockedAccountForbidden(t *testing.T) {
	svc, deps := newTestAuthService(t)
	ctx := context.Background()

	payload := &auth.Payload{Provider: "github", UID: "uid-locked", Nickname: "locked"}
	account, err := svc.FindOrCreateForIdentity(ctx, payload)
	if err != nil {
		t.Fatalf("FindOrCreateForIdentity() error = %v", err)
	}
	if err := deps.locks.SetLocked(ctx, account.ID, true); err != nil {
		t.Fatalf("SetLocked() error = %v", err)
	}

	_, err = svc.LoginForIdentity(ctx, payload)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("LoginForIdentity() error = %v, want ErrForbidden", err)
	}
}

// ===== ACCOUNT LOOKUP TESTS =====

func TestGetAccountByID_EmptyID(t *testing.T) {
	svc, _ := newTestAuthService(t)

	if _, err := svc.GetAccountByID(context.Background(), ""); err == nil {
		t.Error("GetAccountByID(\"\") should fail")
	}
}

// ===== SLUGIFY TESTS =====

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ada Lovelace", "ada-lovelace"},
		{"  José  María  ", "jos-mar-a"},
		{"already-slugged", "already-slugged"},
		{"UPPER", "upper"},
		{"a!!!b", "a-b"},
		{"!!!", ""},
		{"", ""},
		{"trailing junk!!!", "trailing-junk"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
