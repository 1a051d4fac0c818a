// Package model defines the data structures used throughout the application.
package model

import (
	"net/url"
	"time"
)

// Status is a user's presence state.
//
// PRESENCE STATE MACHINE:
//
//	offline → available   (login)
//	available → busy      (start or join a call)
//	busy → available      (end call)
//	any → offline         (logout)
//
// Status is stored as plain text in both backends so the hosted database
// can be inspected with ordinary SQL tooling.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusOffline   Status = "offline"
)

// Valid reports whether s is one of the three known presence states.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// User represents a registered account.
//
// Email is the natural key: every login (OAuth or dev) upserts by email.
// ID is assigned by the store (auto-increment in SQLite, bigserial in the
// hosted database).
//
// WHY ActiveRoom string (not *string)?
// An empty string means "not bound to a room". The store writes NULL for the
// empty value, but callers only ever need to compare against "".
type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	AvatarURL  string    `json:"avatarUrl"`
	ExternalID string    `json:"externalId,omitempty"` // OAuth subject, e.g. Google "sub"
	Status     Status    `json:"status"`
	ActiveRoom string    `json:"activeRoom,omitempty"`
	LastSeen   time.Time `json:"lastSeen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsFallbackID reports whether id belongs to a stand-in identity handed out
// while the store was unreachable. Stored ids are always positive, so
// fallback ids are negative and never name a real row.
func IsFallbackID(id int64) bool { return id < 0 }

// Fallback reports whether u is a stand-in identity with no stored row.
func (u *User) Fallback() bool { return IsFallbackID(u.ID) }

// InCall reports whether the user is currently bound to a room.
func (u *User) InCall() bool {
	return u.Status == StatusBusy && u.ActiveRoom != ""
}

// DefaultAvatarURL returns a generated initials avatar for users who
// signed up without a profile picture.
func DefaultAvatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}
