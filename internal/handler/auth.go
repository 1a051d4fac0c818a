package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/auth"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/service"
	"github.com/sakif/hangout/internal/session"
)

const stateCookieName = "oauth_state"

// Authenticator is the login/logout business logic. *service.AuthService
// implements it.
type Authenticator interface {
	Login(ctx context.Context, p auth.Profile) (*service.AuthResult, error)
	Logout(ctx context.Context, sessionID string) error
}

var _ Authenticator = (*service.AuthService)(nil)

// AuthOptions are the deployment switches of the login flow.
type AuthOptions struct {
	DevLogin      bool // enables POST /auth/dev/login
	SecureCookies bool // set the Secure flag (HTTPS deployments)
}

// AuthHandler runs the Google OAuth flow, the optional dev login and logout.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGoogleLogin    → redirect the browser to Google's consent page
//   - HandleGoogleCallback → check state, exchange the code, open a session
//   - HandleDevLogin       → email/name login for local development
//   - HandleLogout         → end the session and clear the cookie
type AuthHandler struct {
	google auth.IdentityProvider // nil when Google is not configured
	auth   Authenticator
	tokens *auth.TokenService
	opts   AuthOptions
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. google may be nil.
func NewAuthHandler(
	google auth.IdentityProvider,
	authn Authenticator,
	tokens *auth.TokenService,
	opts AuthOptions,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		google: google,
		auth:   authn,
		tokens: tokens,
		opts:   opts,
		logger: logger,
	}
}

type loginResponse struct {
	User    *model.User      `json:"user"`
	Session *session.Session `json:"session"`
}

// HandleGoogleLogin redirects the user to Google's consent page.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived cookie and sent to Google.
// The callback only proceeds when Google hands the same value back.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, apperror.NotFound("login provider", "google"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// Every failure sends the browser back to "/?auth=failed" (or
// "/?auth=denied" when the user declined) so the login flow restarts
// instead of showing a bare error page.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, apperror.NotFound("login provider", "google"))
		return
	}

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	h.clearStateCookie(w)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Redirect(w, r, "/?auth=failed", http.StatusSeeOther)
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for the Google profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/?auth=failed", http.StatusSeeOther)
		return
	}
	profile, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, auth.ErrEmailNotVerified) {
			level = slog.LevelWarn
		}
		h.logger.Log(r.Context(), level, "auth callback: google exchange failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/?auth=failed", http.StatusSeeOther)
		return
	}

	// --- Step 3: Open the session and set the cookie ---
	res, err := h.auth.Login(r.Context(), *profile)
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/?auth=failed", http.StatusSeeOther)
		return
	}
	auth.SetSessionCookie(w, res.Token, h.tokens.TTL(), h.opts.SecureCookies)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleDevLogin logs in by email and name alone.
//
// HTTP: POST /auth/dev/login
// REQUEST BODY: {"email": "a@x.com", "name": "A"}
//
// Only reachable when AUTH_DEV_LOGIN=true; otherwise the route answers 404
// as if it did not exist.
func (h *AuthHandler) HandleDevLogin(w http.ResponseWriter, r *http.Request) {
	if !h.opts.DevLogin {
		writeError(w, apperror.NotFound("login provider", "dev"))
		return
	}

	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), auth.Profile{Email: req.Email, Name: req.Name})
	if err != nil {
		writeError(w, err)
		return
	}
	auth.SetSessionCookie(w, res.Token, h.tokens.TTL(), h.opts.SecureCookies)

	writeJSON(w, http.StatusOK, loginResponse{User: res.User, Session: res.Session})
}

// HandleLogout ends the session named by the cookie.
//
// HTTP: POST /auth/logout
//
// Sessions live on the server, so logout really revokes the token: a
// replayed cookie no longer finds its session. Logging out twice, or
// without a cookie, still answers 200.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := auth.SessionIDFromRequest(r, h.tokens); ok {
		if err := h.auth.Logout(r.Context(), sessionID); err != nil {
			h.logger.Error("logout: presence update failed", slog.String("error", err.Error()))
		}
	}
	auth.ClearSessionCookie(w, h.opts.SecureCookies)

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
