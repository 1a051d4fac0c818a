package hosted

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/repository"
)

// Compile-time check: the hosted client is a full Store.
var _ repository.Store = (*Client)(nil)

// userRow is the JSON shape of a row in the hosted "users" table.
type userRow struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	AvatarURL  *string    `json:"avatar_url"`
	ExternalID *string    `json:"external_id"`
	Status     string     `json:"status"`
	ActiveRoom *string    `json:"active_room"`
	LastSeen   *time.Time `json:"last_seen"`
	CreatedAt  *time.Time `json:"created_at"`
}

func (r userRow) toModel() model.User {
	u := model.User{
		ID:     r.ID,
		Email:  r.Email,
		Name:   r.Name,
		Status: model.Status(r.Status),
	}
	if r.AvatarURL != nil {
		u.AvatarURL = *r.AvatarURL
	}
	if r.ExternalID != nil {
		u.ExternalID = *r.ExternalID
	}
	if r.ActiveRoom != nil {
		u.ActiveRoom = *r.ActiveRoom
	}
	if r.LastSeen != nil {
		u.LastSeen = *r.LastSeen
	}
	if r.CreatedAt != nil {
		u.CreatedAt = *r.CreatedAt
	}
	return u
}

func toModels(rows []userRow) []model.User {
	users := make([]model.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users
}

// UpsertUser looks the email up and inserts or patches the row.
//
// FAIL-SOFT: a login must not be blocked by the hosted database being
// unreachable. When any gateway call fails, the error is logged and a
// synthetic in-memory identity is returned instead (id derived from the
// email hash, status available). Context cancellation is still returned
// as an error, and so is an empty email.
func (c *Client) UpsertUser(ctx context.Context, p repository.UpsertUserParams) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	u, err := c.upsertUser(ctx, email, p)
	if err == nil {
		return u, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	c.logger.Warn("hosted store unavailable, using fallback identity",
		slog.String("email", email),
		slog.String("error", err.Error()),
	)
	return fallbackUser(email, p), nil
}

func (c *Client) upsertUser(ctx context.Context, email string, p repository.UpsertUserParams) (*model.User, error) {
	var existing []userRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "users",
		query:  url.Values{"select": {"*"}, "email": {eq(email)}, "limit": {"1"}},
	}, &existing)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var rows []userRow

	if len(existing) == 0 {
		avatar := model.DefaultAvatarURL(p.Name)
		if p.AvatarURL != nil && *p.AvatarURL != "" {
			avatar = *p.AvatarURL
		}
		body := map[string]any{
			"email":       email,
			"name":        p.Name,
			"avatar_url":  avatar,
			"external_id": p.ExternalID,
			"status":      string(model.StatusAvailable),
			"last_seen":   now,
			"created_at":  now,
		}
		err = c.do(ctx, request{
			method: http.MethodPost,
			table:  "users",
			body:   body,
			prefer: []string{"return=representation"},
		}, &rows)
	} else {
		// Only send the fields being changed so a nil avatar/external id
		// leaves the stored value alone.
		body := map[string]any{
			"name":      p.Name,
			"last_seen": now,
		}
		if p.AvatarURL != nil {
			body["avatar_url"] = *p.AvatarURL
		}
		if p.ExternalID != nil {
			body["external_id"] = *p.ExternalID
		}
		err = c.do(ctx, request{
			method: http.MethodPatch,
			table:  "users",
			query:  url.Values{"id": {eq(existing[0].ID)}},
			body:   body,
			prefer: []string{"return=representation"},
		}, &rows)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("hosted: upsert of %s returned no row", email)
	}

	u := rows[0].toModel()
	return &u, nil
}

// fallbackUser builds the identity handed out when the store is unreachable.
// Its id is negative so it can never alias a stored user.
func fallbackUser(email string, p repository.UpsertUserParams) *model.User {
	h := fnv.New32a()
	h.Write([]byte(email))

	avatar := model.DefaultAvatarURL(p.Name)
	if p.AvatarURL != nil && *p.AvatarURL != "" {
		avatar = *p.AvatarURL
	}
	now := time.Now().UTC()
	u := &model.User{
		ID:        -(int64(h.Sum32()) + 1),
		Email:     email,
		Name:      p.Name,
		AvatarURL: avatar,
		Status:    model.StatusAvailable,
		LastSeen:  now,
		CreatedAt: now,
	}
	if p.ExternalID != nil {
		u.ExternalID = *p.ExternalID
	}
	return u
}

func (c *Client) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var rows []userRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "users",
		query:  url.Values{"select": {"*"}, "id": {eq(id)}, "limit": {"1"}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	u := rows[0].toModel()
	return &u, nil
}

// SearchUsers uses ilike on name or email. The term is escaped for LIKE and
// then quoted so commas or parentheses cannot break the or=() filter.
func (c *Client) SearchUsers(ctx context.Context, query string, excludeID int64) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.User{}, nil
	}

	pattern := quoteFilterValue("*" + escapeLike(query) + "*")
	q := url.Values{
		"select": {"*"},
		"or":     {fmt.Sprintf("(name.ilike.%s,email.ilike.%s)", pattern, pattern)},
		"order":  {"name.asc,id.asc"},
		"limit":  {strconv.Itoa(repository.SearchLimit)},
	}
	if excludeID != 0 {
		q.Set("id", neq(excludeID))
	}

	var rows []userRow
	if err := c.do(ctx, request{method: http.MethodGet, table: "users", query: q}, &rows); err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

func (c *Client) UpdateStatus(ctx context.Context, userID int64, status model.Status, roomName string) error {
	var room *string
	if roomName != "" {
		room = &roomName
	}

	var rows []userRow
	err := c.do(ctx, request{
		method: http.MethodPatch,
		table:  "users",
		query:  url.Values{"id": {eq(userID)}, "select": {"id"}},
		body: map[string]any{
			"status":      string(status),
			"active_room": room,
			"last_seen":   time.Now().UTC(),
		},
		prefer: []string{"return=representation"},
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	return nil
}

// ResetIfBound is a conditional PATCH: the filter only matches while the
// row is still busy in roomName.
func (c *Client) ResetIfBound(ctx context.Context, userID int64, roomName string) (bool, error) {
	q := url.Values{
		"id":     {eq(userID)},
		"status": {eq(model.StatusBusy)},
		"select": {"id"},
	}
	if roomName == "" {
		q.Set("active_room", "is.null")
	} else {
		q.Set("active_room", eq(roomName))
	}

	var rows []userRow
	err := c.do(ctx, request{
		method: http.MethodPatch,
		table:  "users",
		query:  q,
		body: map[string]any{
			"status":      string(model.StatusAvailable),
			"active_room": nil,
			"last_seen":   time.Now().UTC(),
		},
		prefer: []string{"return=representation"},
	}, &rows)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (c *Client) ListUsersByStatus(ctx context.Context, status model.Status) ([]model.User, error) {
	var rows []userRow
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "users",
		query:  url.Values{"select": {"*"}, "status": {eq(status)}, "order": {"id.asc"}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	return toModels(rows), nil
}

// lookupUserID resolves an email to an id. ok is false when no row matches.
func (c *Client) lookupUserID(ctx context.Context, email string) (id int64, ok bool, err error) {
	var rows []struct {
		ID int64 `json:"id"`
	}
	err = c.do(ctx, request{
		method: http.MethodGet,
		table:  "users",
		query:  url.Values{"select": {"id"}, "email": {eq(email)}, "limit": {"1"}},
	}, &rows)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].ID, true, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quoteFilterValue wraps v in PostgREST's double-quote syntax.
func quoteFilterValue(v string) string { return `"` + quoteEscaper.Replace(v) + `"` }

