package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// ErrEmailNotVerified is returned when Google reports an unverified email.
// Email is the account key, so an unverified one cannot be trusted.
var ErrEmailNotVerified = errors.New("auth: google email is not verified")

// Profile is the identity a provider hands back after a successful login.
//
// Google OpenID userinfo docs:
// https://developers.google.com/identity/openid-connect/openid-connect#obtainuserinfo
type Profile struct {
	Subject   string // stable provider user id ("sub")
	Email     string // lower-cased
	Name      string
	AvatarURL string
}

// IdentityProvider is the part of an OAuth provider the handlers use.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

var _ IdentityProvider = (*GoogleProvider)(nil)

// GoogleProvider runs the Authorization Code flow against Google.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. Redirect the user to Google with our ClientID and scopes.
//  2. The user approves on Google.
//  3. Google redirects back to RedirectURL with a short-lived "code".
//  4. We exchange the code for an access token (server-to-server).
//  5. We call the userinfo endpoint with that token.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider.
//
// Scopes: "openid email profile" is the minimum for sub, email, name and
// picture.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthURL returns the Google consent URL carrying state.
//
// The state is a random value also stored in a short-lived cookie; the
// callback rejects a mismatch (CSRF protection).
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the authorization code for the user's profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// config.Client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: google userinfo returned status %d", resp.StatusCode)
	}

	var body struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("auth: decoding google userinfo: %w", err)
	}

	if body.Sub == "" || body.Email == "" {
		return nil, errors.New("auth: google userinfo is missing sub or email")
	}
	if !body.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	name := body.Name
	if name == "" {
		name, _, _ = strings.Cut(body.Email, "@")
	}

	return &Profile{
		Subject:   body.Sub,
		Email:     strings.ToLower(body.Email),
		Name:      name,
		AvatarURL: body.Picture,
	}, nil
}
