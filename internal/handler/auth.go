package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/Endika/participacion/internal/auth"
	"github.com/Endika/participacion/internal/service"
)

// AuthHandler manages registration, password login, the external identity
// provider flow, and session management.
type AuthHandler struct {
	provider *auth.Provider // nil when no OAuth provider is configured
	authSvc  *service.AuthService
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. provider may be nil; the OAuth
// routes then respond 404.
func NewAuthHandler(
	provider *auth.Provider,
	authSvc *service.AuthService,
	accounts *service.AccountService,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		authSvc:  authSvc,
		accounts: accounts,
		logger:   logger,
	}
}

// registerRequest is the JSON body of POST /auth/register.
type registerRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Locale         string `json:"locale"`
	DocumentType   string `json:"documentType"`
	DocumentNumber string `json:"documentNumber"`
	PhoneNumber    string `json:"phoneNumber"`
	TermsOfService bool   `json:"termsOfService"`
	Organization   *struct {
		Name            string `json:"name"`
		ResponsibleName string `json:"responsibleName"`
	} `json:"organization"`
}

// HandleRegister creates an account from a direct registration.
//
// HTTP: POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "bad_request", Message: "invalid JSON body",
		})
		return
	}

	in := service.RegisterInput{
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
		Locale:         req.Locale,
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumber,
		PhoneNumber:    req.PhoneNumber,
		TermsOfService: req.TermsOfService,
	}
	if req.Organization != nil {
		in.Organization = &service.OrganizationInput{
			Name:            req.Organization.Name,
			ResponsibleName: req.Organization.ResponsibleName,
		}
	}

	account, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// loginRequest is the JSON body of POST /auth/login. Login accepts the
// email or the username.
type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// loginResponse carries the account plus the welcome-screen hint so the
// frontend can route first-time users.
type loginResponse struct {
	Account           any  `json:"account"`
	ShowWelcomeScreen bool `json:"showWelcomeScreen"`
}

// HandleLogin authenticates a password login and sets the JWT cookie.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "bad_request", Message: "invalid JSON body",
		})
		return
	}

	result, err := h.authSvc.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusOK, loginResponse{
		Account:           result.Account,
		ShowWelcomeScreen: result.Account.ShowWelcomeScreen(),
	})
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /auth/logout
//
// Stateless sessions mean "logout" just deletes the client-side cookie;
// the token stays technically valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleOAuthLogin redirects the user to the identity provider.
//
// HTTP: GET /auth/oauth/login
//
// A random state value goes into a short-lived HttpOnly cookie; the
// callback verifies it to block CSRF-initiated OAuth flows.
func (h *AuthHandler) HandleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.NotFound(w, r)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleOAuthCallback completes the external identity flow.
//
// HTTP: GET /auth/oauth/callback?code=xxx&state=yyy
//
// Flow: verify the CSRF state, exchange the code for an identity payload,
// find-or-create the account, set the JWT cookie, redirect home. Accounts
// created without a verified email land on the finish-signup screen.
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.NotFound(w, r)
		return
	}

	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("oauth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("oauth callback: user denied authorization",
			slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	payload, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	result, err := h.authSvc.LoginForIdentity(r.Context(), payload)
	if err != nil {
		h.logger.Error("oauth callback: identity login failed",
			slog.String("provider", payload.Provider),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	setTokenCookie(w, result.Token)

	if result.Account.PendingFinishSignup() {
		http.Redirect(w, r, "/finish-signup", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// meResponse decorates the account with the derived facts clients need but
// the record itself doesn't store.
type meResponse struct {
	Account           any    `json:"account"`
	DisplayName       string `json:"displayName"`
	Locked            bool   `json:"locked"`
	HasOfficialEmail  bool   `json:"hasOfficialEmail"`
	ShowWelcomeScreen bool   `json:"showWelcomeScreen"`
	PendingSignup     bool   `json:"pendingFinishSignup"`
	Locale            string `json:"locale"`
}

// HandleMe returns the authenticated account's profile.
//
// HTTP: GET /api/me  (auth required)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		// Should never happen on a RequireAuth-protected route, but be safe.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "authentication required",
		})
		return
	}

	account, err := h.authSvc.GetAccountByID(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	locked, err := h.accounts.IsLocked(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	locale, err := h.accounts.Locale(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		Account:           account,
		DisplayName:       account.DisplayName(),
		Locked:            locked,
		HasOfficialEmail:  h.accounts.HasOfficialEmail(account),
		ShowWelcomeScreen: account.ShowWelcomeScreen(),
		PendingSignup:     account.PendingFinishSignup(),
		Locale:            locale,
	})
}

// setTokenCookie stores the JWT in an HttpOnly cookie.
// HttpOnly keeps it away from JavaScript; SameSite=Lax keeps it off
// cross-site POSTs. Secure should be enabled behind HTTPS.
func setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
