package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
)

// Payload is the identity information reported by the external provider
// after a completed OAuth exchange. It is the only provider data the rest
// of the application ever sees.
//
// VerifiedEmail is set only when the provider asserts it verified the
// address itself. Email may still be present unverified (e.g. a profile
// email the user typed in but never confirmed) — account lookup by email
// trusts VerifiedEmail only.
type Payload struct {
	Provider      string // provider name, e.g. "google"
	UID           string // provider's stable user identifier
	Nickname      string // provider username/handle (may be empty)
	Name          string // raw display name (may be empty)
	Email         string // any email the provider reported
	Verified      bool   // provider verified the user's email
	VerifiedEmail string // the verified address, "" when Verified is false
}

// Provider wraps golang.org/x/oauth2 for a generic Authorization Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
// 1. Redirect the user to the provider's authorization endpoint
// 2. The user approves; the provider redirects back with a short-lived code
// 3. Exchange the code for an access token (server-to-server, ClientSecret
//    never touches the browser)
// 4. Call the provider's user-info endpoint with the token
type Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
}

// ProviderConfig holds everything needed to talk to one OAuth provider.
type ProviderConfig struct {
	Name         string // e.g. "google"
	ClientID     string
	ClientSecret string
	CallbackURL  string // must match the URL registered with the provider
	AuthURL      string // provider authorization endpoint
	TokenURL     string // provider token endpoint
	UserInfoURL  string // endpoint returning the authenticated user's profile
	Scopes       []string
}

// NewProvider creates a Provider from the given configuration.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.Name == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("auth: provider name, client ID and secret are required")
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("auth: provider %s: endpoint URLs are required", cfg.Name)
	}

	return &Provider{
		name:        cfg.Name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

// Name returns the provider's configured name.
func (p *Provider) Name() string { return p.name }

// AuthURL returns the URL to redirect the user to for authorization.
//
// The state is a random string stored in a cookie before redirecting; the
// callback handler verifies the returned state matches, which blocks CSRF
// attacks completing an OAuth flow for someone else's account.
func (p *Provider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// userInfo covers the field spellings used by the common providers. Google
// reports "sub"/"email_verified" (OIDC), GitHub "id"/"login", others
// "nickname"/"verified". We decode them all and normalize in Exchange.
type userInfo struct {
	ID            json.Number `json:"id"`
	Sub           string      `json:"sub"`
	Login         string      `json:"login"`
	Nickname      string      `json:"nickname"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	EmailVerified bool        `json:"email_verified"`
	Verified      bool        `json:"verified"`
}

// Exchange completes the OAuth flow: trades the authorization code for an
// identity Payload. This is the core of the callback handler.
func (p *Provider) Exchange(ctx context.Context, code string) (*Payload, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// oauth2.Config.Client returns an *http.Client that adds the
	// "Authorization: Bearer <token>" header to every request.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: calling %s user-info API: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: %s user-info API returned status %d", p.name, resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("auth: decoding %s user-info response: %w", p.name, err)
	}

	return payloadFromUserInfo(p.name, info)
}

// payloadFromUserInfo normalizes the provider response into a Payload.
// Split out from Exchange so the mapping is testable without HTTP.
func payloadFromUserInfo(provider string, info userInfo) (*Payload, error) {
	uid := info.ID.String()
	if uid == "" || uid == "0" {
		uid = info.Sub
	}
	if uid == "" {
		return nil, fmt.Errorf("auth: %s returned an identity without a uid", provider)
	}
	// Guard against a numeric zero sneaking through json.Number.
	if n, err := strconv.ParseInt(uid, 10, 64); err == nil && n == 0 {
		return nil, fmt.Errorf("auth: %s returned an invalid uid (0)", provider)
	}

	nickname := info.Login
	if nickname == "" {
		nickname = info.Nickname
	}

	verified := info.EmailVerified || info.Verified

	payload := &Payload{
		Provider: provider,
		UID:      uid,
		Nickname: nickname,
		Name:     info.Name,
		Email:    info.Email,
		Verified: verified,
	}
	if verified && info.Email != "" {
		payload.VerifiedEmail = info.Email
	}

	return payload, nil
}
