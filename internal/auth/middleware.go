package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/hangout/internal/session"
)

// CookieName is the session cookie.
const CookieName = "hangout_session"

// contextKey is unexported so no other package can read or shadow values
// stored under it.
type contextKey string

const sessionKey contextKey = "session"

// SessionLookup resolves a session id to the live session.
type SessionLookup interface {
	Get(id string) (*session.Session, error)
}

// RequireSession rejects requests without a valid session cookie and
// stores the session in the request context.
//
// CHECKS, in order:
//  1. the cookie exists
//  2. the JWT inside verifies (signature, issuer, expiry)
//  3. the session it names is still live (not logged out, not idle-expired)
//  4. the session belongs to the user named in the token
func RequireSession(tokens *TokenService, sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := sessionFromRequest(r, tokens, sessions)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid session required"}` + "\n"))
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromRequest(r *http.Request, tokens *TokenService, sessions SessionLookup) (*session.Session, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	claims, err := tokens.Parse(cookie.Value)
	if err != nil {
		return nil, false
	}
	s, err := sessions.Get(claims.SessionID())
	if err != nil || s.UserID != claims.UserID {
		return nil, false
	}
	return s, true
}

// SessionFromContext returns the session RequireSession stored.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// WithSession returns ctx carrying s. Used by tests and by handlers that
// open a session mid-request.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionIDFromRequest returns the session id named by the cookie without
// requiring the session to still exist. Logout uses it so a second logout
// is harmless.
func SessionIDFromRequest(r *http.Request, tokens *TokenService) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	claims, err := tokens.Parse(cookie.Value)
	if err != nil {
		return "", false
	}
	return claims.SessionID(), true
}

// SetSessionCookie stores token in an HttpOnly cookie.
//
// SameSite=Lax: sent on top-level navigations (the OAuth redirect back to
// us) but not on cross-site POSTs.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
