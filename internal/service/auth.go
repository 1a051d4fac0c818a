package service

// AuthService is the business logic layer for logging in and out:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (upsert by email)
//	                                 ↘ CallService     (presence)
//	                                 ↘ session.Manager (workspace)
//	                                 ↘ TokenService    (cookie JWT)
//
// It does NOT set cookies or read requests. Those are HTTP concerns and
// stay in the handler.

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/auth"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/repository"
	"github.com/sakif/hangout/internal/session"
)

const MaxNameLength = 100

// UserUpserter is the single Store call login needs.
type UserUpserter interface {
	UpsertUser(ctx context.Context, p repository.UpsertUserParams) (*model.User, error)
}

// PresenceUpdater moves a user between available/busy and offline.
// *CallService implements it.
type PresenceUpdater interface {
	Login(ctx context.Context, userID int64) error
	Logout(ctx context.Context, userID int64) error
}

var _ PresenceUpdater = (*CallService)(nil)

// SessionStore is the part of session.Manager login and logout touch.
type SessionStore interface {
	Create(u *model.User) *session.Session
	Get(id string) (*session.Session, error)
	Destroy(id string)
	ForUser(userID int64) []*session.Session
}

var _ SessionStore = (*session.Manager)(nil)

// AuthService handles login and logout.
type AuthService struct {
	users    UserUpserter
	presence PresenceUpdater
	sessions SessionStore
	tokens   *auth.TokenService
	logger   *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(
	users UserUpserter,
	presence PresenceUpdater,
	sessions SessionStore,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		presence: presence,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// AuthResult bundles what the handler needs to set the cookie and respond.
type AuthResult struct {
	User    *model.User
	Session *session.Session
	Token   string
}

// Login signs in the identity described by p.
//
//  1. Upsert the user by email (first login inserts, later ones refresh name/avatar)
//  2. Mark the user available
//  3. Open a workspace session
//  4. Issue a JWT naming that session
//
// An empty AvatarURL or Subject leaves the stored value untouched.
func (s *AuthService) Login(ctx context.Context, p auth.Profile) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperror.ValidationFailed("email", "email is not a valid address")
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}

	params := repository.UpsertUserParams{Email: email, Name: name}
	if p.AvatarURL != "" {
		params.AvatarURL = &p.AvatarURL
	}
	if p.Subject != "" {
		params.ExternalID = &p.Subject
	}

	u, err := s.users.UpsertUser(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user: %w", err)
	}

	if u.Fallback() {
		// Signed in on a stand-in identity: the workspace works, store-backed
		// routes refuse the session until the user signs in again.
		s.logger.Warn("store unavailable, signing in with a fallback identity",
			slog.String("email", u.Email),
		)
	} else if err := s.presence.Login(ctx, u.ID); err != nil {
		s.logger.Warn("marking user available failed",
			slog.Int64("userID", u.ID),
			slog.String("error", err.Error()),
		)
	} else if !u.InCall() {
		u.Status = model.StatusAvailable
	}

	sess := s.sessions.Create(u)
	token, err := s.tokens.Issue(sess.ID, u.ID)
	if err != nil {
		s.sessions.Destroy(sess.ID)
		return nil, fmt.Errorf("service/auth: issuing token for user %d: %w", u.ID, err)
	}

	s.logger.Info("user logged in",
		slog.Int64("userID", u.ID),
		slog.String("session", sess.ID),
	)
	return &AuthResult{User: u, Session: sess, Token: token}, nil
}

// Logout destroys the session. When it was the user's last live session
// the user also leaves any call and goes offline. Logging out an unknown
// or already-ended session is a no-op.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil
	}
	s.sessions.Destroy(sessionID)

	if model.IsFallbackID(sess.UserID) {
		return nil
	}
	if len(s.sessions.ForUser(sess.UserID)) > 0 {
		s.logger.Info("session ended, user still signed in elsewhere",
			slog.Int64("userID", sess.UserID),
			slog.String("session", sessionID),
		)
		return nil
	}

	if err := s.presence.Logout(ctx, sess.UserID); err != nil {
		return fmt.Errorf("service/auth: logging out user %d: %w", sess.UserID, err)
	}
	s.logger.Info("user logged out", slog.Int64("userID", sess.UserID))
	return nil
}
