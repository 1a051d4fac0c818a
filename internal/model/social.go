package model

import "time"

// FriendshipAccepted is the only friendship status the app writes today.
// The column exists so pending/blocked states can be added without a migration.
const FriendshipAccepted = "accepted"

// Friendship is ONE directional edge (UserID → FriendID).
//
// A mutual friendship is stored as two rows, A→B and B→A. Both must exist
// for either side to list the other as a friend, so AddFriend always writes
// the pair together.
type Friendship struct {
	UserID    int64     `json:"userId"`
	FriendID  int64     `json:"friendId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Group is a named set of users. MemberCount is computed on read.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	CreatedBy   int64     `json:"createdBy"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GroupMember is a row of the group_members join table.
type GroupMember struct {
	GroupID  int64     `json:"groupId"`
	UserID   int64     `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}
