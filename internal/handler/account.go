package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Endika/participacion/internal/auth"
	"github.com/Endika/participacion/internal/model"
	"github.com/Endika/participacion/internal/repository"
	"github.com/Endika/participacion/internal/service"
)

// AccountHandler exposes profile, search, vote/flag lookups, notifications
// and the admin moderation endpoints.
type AccountHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// updateProfileRequest is the JSON body of PUT /api/me.
type updateProfileRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phoneNumber"`
	Locale       string `json:"locale"`
	Organization *struct {
		Name            string `json:"name"`
		ResponsibleName string `json:"responsibleName"`
	} `json:"organization"`
}

// HandleUpdateProfile updates the authenticated account's profile.
//
// HTTP: PUT /api/me  (auth required)
func (h *AccountHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "authentication required",
		})
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "bad_request", Message: "invalid JSON body",
		})
		return
	}

	in := service.UpdateProfileInput{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Locale:      req.Locale,
	}
	if req.Organization != nil {
		in.Organization = &service.OrganizationInput{
			Name:            req.Organization.Name,
			ResponsibleName: req.Organization.ResponsibleName,
		}
	}

	account, err := h.accounts.UpdateProfile(r.Context(), accountID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleSearch finds accounts by exact email or username substring.
//
// HTTP: GET /api/accounts/search?term=bob&limit=20&offset=0
func (h *AccountHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	opts := listOptions(r)

	accounts, err := h.accounts.Search(r.Context(), term, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{} // never marshal null
	}
	writeJSON(w, http.StatusOK, accounts)
}

// HandleVotes returns the authenticated account's votes on the given
// subjects: GET /api/me/votes?type=debate&ids=a,b,c
func (h *AccountHandler) HandleVotes(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "authentication required",
		})
		return
	}

	votes, err := h.accounts.VotesFor(r.Context(), accountID,
		r.URL.Query().Get("type"), splitIDs(r.URL.Query().Get("ids")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}

// HandleCastVote records a vote: POST /api/me/votes
func (h *AccountHandler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "authentication required",
		})
		return
	}

	var req struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "bad_request", Message: "invalid JSON body",
		})
		return
	}

	if err := h.accounts.CastVote(r.Context(), accountID, req.Type, req.ID, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "vote recorded"})
}

// HandleFlags returns which of the given subjects the account flagged:
// GET /api/me/flags?type=comment&ids=a,b,c
func (h *AccountHandler) HandleFlags(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "authentication required",
		})
		return
	}

	flags, err := h.accounts.FlagsFor(r.Context(), accountID,
		r.URL.Query().Get("type"), splitIDs(r.URL.Query().Get("ids")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

// HandleRaiseFlag records a flag: POST /api/me/flags
func (h *AccountHandler) HandleRaiseFlag(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "authentication required",
		})
		return
	}

	var req struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "bad_request", Message: "invalid JSON body",
		})
		return
	}

	if err := h.accounts.RaiseFlag(r.Context(), accountID, req.Type, req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "flag recorded"})
}

// HandleNotifications lists the account's notifications.
//
// HTTP: GET /api/me/notifications
func (h *AccountHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "authentication required",
		})
		return
	}

	notifications, err := h.accounts.Notifications(r.Context(), accountID, listOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

// HandleVerifyResidence verifies the account's document against the census.
//
// HTTP: POST /api/me/verify
func (h *AccountHandler) HandleVerifyResidence(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: "authentication required",
		})
		return
	}

	var req struct {
		DocumentType   string `json:"documentType"`
		DocumentNumber string `json:"documentNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "bad_request", Message: "invalid JSON body",
		})
		return
	}

	account, err := h.accounts.VerifyResidence(r.Context(), accountID,
		req.DocumentType, req.DocumentNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// --- Admin moderation endpoints ---
// All of these run behind RequireAdmin, which already checked the caller's
// administrator role.

// HandleBlock blocks an account and hides everything it authored.
//
// HTTP: POST /api/accounts/{id}/block
func (h *AccountHandler) HandleBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.accounts.Block(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account blocked"})
}

// HandleErase scrubs an account's PII.
//
// HTTP: POST /api/accounts/{id}/erase  body: {"reason": "..."} (optional)
func (h *AccountHandler) HandleErase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Reason string `json:"reason"`
	}
	// An empty body means "no reason given".
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.accounts.Erase(r.Context(), id, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account erased"})
}

// HandleLock engages the account's access lock.
//
// HTTP: POST /api/accounts/{id}/lock
func (h *AccountHandler) HandleLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.accounts.LockAccess(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account locked"})
}

// HandleUnlock releases the account's access lock.
//
// HTTP: POST /api/accounts/{id}/unlock
func (h *AccountHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.accounts.UnlockAccess(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account unlocked"})
}

// HandleAssignOfficial sets an account's official position.
//
// HTTP: PUT /api/accounts/{id}/official  body: {"position": "...", "level": "3"}
// Blank position or level is a no-op, not an error.
func (h *AccountHandler) HandleAssignOfficial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Position string `json:"position"`
		Level    string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "bad_request", Message: "invalid JSON body",
		})
		return
	}

	account, err := h.accounts.AssignOfficialPosition(r.Context(), id, req.Position, req.Level)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleClearOfficial clears an account's official position.
//
// HTTP: DELETE /api/accounts/{id}/official
func (h *AccountHandler) HandleClearOfficial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	account, err := h.accounts.ClearOfficialPosition(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// HandleGrantRole grants a moderation role.
//
// HTTP: POST /api/accounts/{id}/roles/{role}
func (h *AccountHandler) HandleGrantRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	role := chi.URLParam(r, "role")
	if err := h.accounts.GrantRole(r.Context(), id, model.Role(role)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "role granted"})
}

// HandleRevokeRole revokes a moderation role.
//
// HTTP: DELETE /api/accounts/{id}/roles/{role}
func (h *AccountHandler) HandleRevokeRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	role := chi.URLParam(r, "role")
	if err := h.accounts.RevokeRole(r.Context(), id, model.Role(role)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "role revoked"})
}

// listOptions reads limit/offset query parameters.
func listOptions(r *http.Request) repository.ListOptions {
	opts := repository.ListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	return opts
}

// splitIDs parses the comma-separated ids query parameter.
func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
