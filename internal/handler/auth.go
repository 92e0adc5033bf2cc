package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/js-playground/internal/auth"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/service"
)

const stateCookie = "oauth_state"

// GitHub is the part of the OAuth provider the handler needs.
type GitHub interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler manages the GitHub OAuth login flow and the learner session.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → exchange the code, sign the learner in, carry over anonymous work
//   - HandleLogout         → clear the session cookie
//   - HandleMe             → describe the current learner, anonymous or not
type AuthHandler struct {
	github GitHub
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil when OAuth is
// not configured; only HandleLogout and HandleMe are routed then.
func NewAuthHandler(github GitHub, authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{github: github, auth: authService, logger: logger}
}

// HandleGitHubLogin redirects the learner to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// The random state is kept in a short-lived HttpOnly cookie and checked on
// callback, so only a flow this server started can complete.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Upsert the learner, moving progress and projects off the anonymous ID
//  4. Replace the anonymous cookie with a session token
//  5. Redirect to the playground
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: learner denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	current, _ := auth.IdentityFromContext(r.Context())
	res, err := h.auth.LoginOrRegisterGitHub(r.Context(), current, ghUser)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	auth.SetCookie(w, r, res.Token, auth.SessionDuration)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// The next request arrives without a token and is given a new anonymous
// learner, so the signed-in account's progress stays with the account.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type meResponse struct {
	LearnerID string         `json:"learnerId"`
	Anonymous bool           `json:"anonymous"`
	Learner   *model.Learner `json:"learner,omitempty"`
}

// HandleMe describes the current learner.
//
// HTTP: GET /api/me
//
// Anonymous learners get their ID only; signed-in learners also get the
// GitHub profile for the avatar in the header.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, errNoSession)
		return
	}

	resp := meResponse{LearnerID: id.LearnerID, Anonymous: id.Anonymous}
	if !id.Anonymous {
		learner, err := h.auth.GetLearner(r.Context(), id.LearnerID)
		if err != nil {
			h.logger.Error("HandleMe: learner not found", slog.String("learnerID", id.LearnerID))
			writeError(w, err)
			return
		}
		resp.Learner = learner
	}
	writeJSON(w, http.StatusOK, resp)
}
