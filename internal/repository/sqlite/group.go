package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/hangout/internal/model"
)

// GetGroups returns the groups userID belongs to, each with its member count.
func (db *DB) GetGroups(ctx context.Context, userID int64) ([]model.Group, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT g.id, g.name, g.created_by, g.created_at,
		        (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id)
		 FROM "groups" g
		 JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ?
		 ORDER BY g.name COLLATE NOCASE, g.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing groups of %d: %w", userID, err)
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt, &g.MemberCount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating groups: %w", err)
	}
	return groups, nil
}

// CreateGroup inserts the group and its initial members in one transaction.
// The creator is always a member; duplicate ids in memberIDs are ignored.
func (db *DB) CreateGroup(ctx context.Context, name string, createdBy int64, memberIDs []int64) (*model.Group, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning create group: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO "groups" (name, created_by, created_at) VALUES (?, ?, ?)`,
		name, createdBy, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting group %q: %w", name, err)
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading new group id: %w", err)
	}

	members := append([]int64{createdBy}, memberIDs...)
	added := 0
	for _, uid := range members {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
			groupID, uid, now,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: adding member %d to group %d: %w", uid, groupID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing create group: %w", err)
	}

	return &model.Group{
		ID:          groupID,
		Name:        name,
		CreatedBy:   createdBy,
		MemberCount: added,
		CreatedAt:   now,
	}, nil
}

// AddGroupMember is idempotent: re-adding an existing member is a no-op.
func (db *DB) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		groupID, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding member %d to group %d: %w", userID, groupID, err)
	}
	return nil
}
