package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/hangout/internal/model"
)

// AddFriend resolves friendEmail and inserts BOTH directional rows.
//
// INSERT OR IGNORE makes the call idempotent: if the pair already exists the
// primary key (user_id, friend_id) conflict is silently skipped, so adding
// the same friend twice is not an error.
func (db *DB) AddFriend(ctx context.Context, userID int64, friendEmail string) (bool, error) {
	var friendID int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE email = ?`, normalizeEmail(friendEmail),
	).Scan(&friendID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: resolving friend %s: %w", friendEmail, err)
	}
	if friendID == userID {
		return false, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: beginning add friend: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, pair := range [][2]int64{{userID, friendID}, {friendID, userID}} {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO friendships (user_id, friend_id, status, created_at)
			 VALUES (?, ?, ?, ?)`,
			pair[0], pair[1], model.FriendshipAccepted, now,
		)
		if err != nil {
			return false, fmt.Errorf("sqlite: inserting friendship %d→%d: %w", pair[0], pair[1], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: committing add friend: %w", err)
	}
	return true, nil
}

// IsFriend checks for the single directional row userID → friendID.
func (db *DB) IsFriend(ctx context.Context, userID, friendID int64) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE user_id = ? AND friend_id = ? AND status = ?
		)`,
		userID, friendID, model.FriendshipAccepted,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking friendship %d→%d: %w", userID, friendID, err)
	}
	return exists, nil
}

// GetFriends lists the users on the far side of userID's accepted edges.
func (db *DB) GetFriends(ctx context.Context, userID int64) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.email, u.name, u.avatar_url, u.external_id, u.status,
		        u.active_room, u.last_seen, u.created_at
		 FROM friendships f
		 JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = ? AND f.status = ?
		 ORDER BY u.name COLLATE NOCASE, u.id`,
		userID, model.FriendshipAccepted,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing friends of %d: %w", userID, err)
	}
	return collectUsers(rows)
}
