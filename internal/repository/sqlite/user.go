package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"modernc.org/sqlite"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/repository"
)

// SQLite's built-in LOWER only folds ASCII. unicode_lower folds the way
// strings.ToLower does, so "ÉLODIE" matches a search for "élodie".
// Functions apply to connections opened after registration.
func init() {
	if err := sqlite.RegisterDeterministicScalarFunction("unicode_lower", 1, unicodeLower); err != nil {
		panic(fmt.Sprintf("sqlite: registering unicode_lower: %v", err))
	}
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

const userColumns = `id, email, name, avatar_url, external_id, status, active_room, last_seen, created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u          model.User
		status     string
		activeRoom sql.NullString
	)
	err := s.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.AvatarURL,
		&u.ExternalID,
		&status,
		&activeRoom,
		&u.LastSeen,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Status = model.Status(status)
	u.ActiveRoom = activeRoom.String
	return &u, nil
}

// UpsertUser inserts a user keyed by email, or refreshes an existing one.
//
// The lookup and the write run in one transaction so two concurrent first
// logins for the same email cannot both take the INSERT branch (the UNIQUE
// constraint would reject the second one anyway, but with a worse error).
//
// MERGE RULES on update:
//   - name always takes the incoming value
//   - avatar_url / external_id keep the stored value when the param is nil
//     (COALESCE(NULL, avatar_url) = avatar_url)
//   - status and active_room are NOT touched: presence belongs to the call service
func (db *DB) UpsertUser(ctx context.Context, p repository.UpsertUserParams) (*model.User, error) {
	email := normalizeEmail(p.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning upsert: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	now := time.Now().UTC()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, email).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		avatar := model.DefaultAvatarURL(p.Name)
		if p.AvatarURL != nil && *p.AvatarURL != "" {
			avatar = *p.AvatarURL
		}
		externalID := ""
		if p.ExternalID != nil {
			externalID = *p.ExternalID
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (email, name, avatar_url, external_id, status, last_seen, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			email, p.Name, avatar, externalID, string(model.StatusAvailable), now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: inserting user %s: %w", email, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("sqlite: reading new user id: %w", err)
		}

	case err != nil:
		return nil, fmt.Errorf("sqlite: looking up user by email %s: %w", email, err)

	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE users
			 SET name = ?,
			     avatar_url = COALESCE(?, avatar_url),
			     external_id = COALESCE(?, external_id),
			     last_seen = ?
			 WHERE id = ?`,
			p.Name, nullable(p.AvatarURL), nullable(p.ExternalID), now, id,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: updating user %d: %w", id, err)
		}
	}

	u, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading back user %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing upsert: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// SearchUsers does a case-insensitive substring match on name OR email.
//
// LIKE wildcards in the query are escaped so a search for "50%" matches the
// literal text instead of everything starting with "50". A blank query
// matches nobody.
func (db *DB) SearchUsers(ctx context.Context, query string, excludeID int64) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.User{}, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE (unicode_lower(name) LIKE ? ESCAPE '\' OR unicode_lower(email) LIKE ? ESCAPE '\')
		   AND id != ?
		 ORDER BY name COLLATE NOCASE, id
		 LIMIT ?`,
		pattern, pattern, excludeID, repository.SearchLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	return collectUsers(rows)
}

// UpdateStatus overwrites presence for one user. No version check: the last
// writer wins. An empty roomName is stored as NULL.
func (db *DB) UpdateStatus(ctx context.Context, userID int64, status model.Status, roomName string) error {
	var room any
	if roomName != "" {
		room = roomName
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET status = ?, active_room = ?, last_seen = ? WHERE id = ?`,
		string(status), room, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating status for user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking status update for user %d: %w", userID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	return nil
}

// ResetIfBound sets the user available only if they are still busy in
// roomName. It reports whether the row changed; false means the user moved
// on (ended the call, or started another) since roomName was read.
func (db *DB) ResetIfBound(ctx context.Context, userID int64, roomName string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET status = ?, active_room = NULL, last_seen = ?
		 WHERE id = ? AND status = ? AND COALESCE(active_room, '') = ?`,
		string(model.StatusAvailable), time.Now().UTC(), userID, string(model.StatusBusy), roomName,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: resetting user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking reset for user %d: %w", userID, err)
	}
	return n > 0, nil
}

// ListUsersByStatus returns every user currently in the given state.
func (db *DB) ListUsersByStatus(ctx context.Context, status model.Status) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s users: %w", status, err)
	}
	return collectUsers(rows)
}

// collectUsers drains rows into a slice and always closes them.
// The result is never nil so handlers encode "[]" rather than "null".
func collectUsers(rows *sql.Rows) ([]model.User, error) {
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// nullable turns a nil *string into SQL NULL.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
