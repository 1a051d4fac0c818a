// Package auth issues and checks the session cookie and runs the Google
// sign-in flow.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User visits /auth/google/login → redirected to Google
//  2. Google calls back /auth/google/callback with a code
//  3. Server exchanges the code for a profile, upserts the user, opens a session
//  4. Server signs a JWT naming that session and stores it in an HttpOnly cookie
//  5. RequireSession reads the cookie, checks the JWT, and loads the session
//
// WHY A JWT THAT POINTS AT A SERVER-SIDE SESSION?
// The signature lets the middleware reject forged or expired cookies without
// touching the session map. The session itself (room binding, notes,
// whiteboard) lives on the server, and logout destroys it, so a stolen
// cookie stops working at logout even though the JWT has not expired.
//
// JWT PAYLOAD:
//
//	{"sub":"<session id>","uid":42,"iss":"hangout","iat":...,"exp":...}
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "hangout"

	// DefaultTokenTTL is the cookie lifetime. The session may expire
	// earlier from inactivity.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// ErrTokenExpired is returned by Parse for a well-signed but expired token.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and verifies session tokens with HS256.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. ttl <= 0 means DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Claims is the session token payload.
type Claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// SessionID is the token subject.
func (c *Claims) SessionID() string { return c.Subject }

// Issue signs a token for sessionID owned by userID.
func (s *TokenService) Issue(sessionID string, userID int64) (string, error) {
	return s.issue(sessionID, userID, s.ttl)
}

func (s *TokenService) issue(sessionID string, userID int64, d time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, issuer, algorithm and expiry and returns
// the claims.
//
// jwt.WithValidMethods pins HS256 so a token claiming alg "none" (or an
// asymmetric alg keyed with our secret) is rejected.
func (s *TokenService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" || c.UserID == 0 {
		return nil, errors.New("auth: token is missing session or user")
	}
	return c, nil
}
