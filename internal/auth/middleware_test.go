package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/session"
)

// protected echoes the session's user id so tests can see what got through.
var protected = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	s, ok := SessionFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Write([]byte(s.Name))
})

func requestWithCookie(value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if value != "" {
		r.AddCookie(&http.Cookie{Name: CookieName, Value: value})
	}
	return r
}

func TestRequireSession(t *testing.T) {
	ts := newTestTokenService(t)
	sessions := session.NewManager(time.Hour)
	live := sessions.Create(&model.User{ID: 7, Name: "Anya"})
	ended := sessions.Create(&model.User{ID: 7, Name: "Anya"})
	sessions.Destroy(ended.ID)

	good, _ := ts.Issue(live.ID, 7)
	wrongUser, _ := ts.Issue(live.ID, 8)
	endedToken, _ := ts.Issue(ended.ID, 7)

	tests := []struct {
		name       string
		cookie     string
		wantStatus int
	}{
		{"valid", good, http.StatusOK},
		{"no cookie", "", http.StatusUnauthorized},
		{"garbage", "abc", http.StatusUnauthorized},
		{"user mismatch", wrongUser, http.StatusUnauthorized},
		{"destroyed session", endedToken, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RequireSession(ts, sessions)(protected).ServeHTTP(rec, requestWithCookie(tt.cookie))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "Anya", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"unauthorized"`)
			}
		})
	}
}

func TestSessionIDFromRequest_IgnoresSessionState(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Issue("gone-session", 7)

	id, ok := SessionIDFromRequest(requestWithCookie(token), ts)
	assert.True(t, ok)
	assert.Equal(t, "gone-session", id)

	_, ok = SessionIDFromRequest(requestWithCookie(""), ts)
	assert.False(t, ok)
}

func TestSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "tok", time.Hour, true)
	ClearSessionCookie(rec, true)

	cookies := rec.Result().Cookies()
	if assert.Len(t, cookies, 2) {
		assert.Equal(t, "tok", cookies[0].Value)
		assert.Equal(t, 3600, cookies[0].MaxAge)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, -1, cookies[1].MaxAge)
	}
}
