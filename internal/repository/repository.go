// Package repository declares the storage contract for users, friendships
// and groups.
//
// Two backends implement Store:
//   - repository/sqlite: an embedded single-file database (modernc.org/sqlite)
//   - repository/hosted: a hosted Postgres reached through its REST gateway
//
// Callers (the service layer) depend only on these interfaces; the backend
// is chosen once at startup from configuration.
package repository

import (
	"context"

	"github.com/sakif/hangout/internal/model"
)

// SearchLimit caps the number of rows SearchUsers returns.
const SearchLimit = 20

// UpsertUserParams carries the profile fields of a login.
//
// AvatarURL and ExternalID are pointers so "not provided" (nil) can be told
// apart from "provided as empty". On update a nil value keeps whatever the
// stored row already has.
type UpsertUserParams struct {
	Email      string
	Name       string
	AvatarURL  *string
	ExternalID *string
}

type UserRepository interface {
	// UpsertUser inserts the user (status "available") or updates name and
	// merges avatar/external id. Returns the stored row.
	UpsertUser(ctx context.Context, p UpsertUserParams) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	// SearchUsers matches query case-insensitively against name or email,
	// skips excludeID (0 = none), orders by name and returns at most SearchLimit rows.
	SearchUsers(ctx context.Context, query string, excludeID int64) ([]model.User, error)
	// UpdateStatus overwrites status and room binding unconditionally.
	UpdateStatus(ctx context.Context, userID int64, status model.Status, roomName string) error
	// ResetIfBound sets the user available and unbound only while they are
	// still busy in roomName ("" = busy with no room). It reports whether
	// the row changed.
	ResetIfBound(ctx context.Context, userID int64, roomName string) (bool, error)
	ListUsersByStatus(ctx context.Context, status model.Status) ([]model.User, error)
}

type FriendRepository interface {
	// AddFriend resolves friendEmail and writes both directional rows.
	// Returns false (and no error) when the email is unknown or is the
	// caller's own. Re-adding an existing friend is a no-op that returns true.
	AddFriend(ctx context.Context, userID int64, friendEmail string) (bool, error)
	IsFriend(ctx context.Context, userID, friendID int64) (bool, error)
	GetFriends(ctx context.Context, userID int64) ([]model.User, error)
}

type GroupRepository interface {
	GetGroups(ctx context.Context, userID int64) ([]model.Group, error)
	// CreateGroup creates the group and adds createdBy plus memberIDs as members.
	CreateGroup(ctx context.Context, name string, createdBy int64, memberIDs []int64) (*model.Group, error)
	AddGroupMember(ctx context.Context, groupID, userID int64) error
}

// Store is the full capability set a backend must provide.
type Store interface {
	UserRepository
	FriendRepository
	GroupRepository

	Ping(ctx context.Context) error
	Close() error
}
