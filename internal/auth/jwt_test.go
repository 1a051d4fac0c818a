package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// newTestTokenService uses a fixed secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", 0); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.TTL() != DefaultTokenTTL {
		t.Errorf("TTL() = %v, want %v", ts.TTL(), DefaultTokenTTL)
	}
}

// =========================================================================
// ISSUE / PARSE TESTS
// =========================================================================

func TestIssue_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue("sess-1", 42)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Issue() token %q is not header.payload.signature", token)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Issue("sess-abc", 42)
	c, err := ts.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.SessionID() != "sess-abc" || c.UserID != 42 {
		t.Errorf("Parse() = (%q, %d), want (sess-abc, 42)", c.SessionID(), c.UserID)
	}
}

func TestParse_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.issue("sess-1", 42, -time.Second)
	if err != nil {
		t.Fatalf("issue() error = %v", err)
	}
	if _, err := ts.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Parse() error = %v, want ErrTokenExpired", err)
	}
}

func TestParse_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)

	good, _ := ts.Issue("sess-1", 42)
	foreign, _ := other.Issue("sess-1", 42)
	noUser, _ := ts.Issue("sess-1", 0)
	noSession, _ := ts.Issue("", 42)

	tests := []struct {
		name  string
		token string
	}{
		{"tampered signature", good[:len(good)-3] + "xxx"},
		{"wrong secret", foreign},
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
		{"missing user", noUser},
		{"missing session", noSession},
		// {"alg":"none"} header with the same payload.
		{"alg none", "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." + strings.Split(good, ".")[1] + "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.Parse(tt.token); err == nil {
				t.Error("Parse() error = nil, want rejection")
			}
		})
	}
}
