package hosted

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sakif/hangout/internal/model"
)

// ignoreDuplicates makes a bulk POST behave like INSERT ... ON CONFLICT DO NOTHING.
var ignoreDuplicates = []string{"resolution=ignore-duplicates", "return=minimal"}

type friendshipRow struct {
	UserID    int64     `json:"user_id"`
	FriendID  int64     `json:"friend_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Client) AddFriend(ctx context.Context, userID int64, friendEmail string) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(friendEmail))
	if email == "" {
		return false, nil
	}

	friendID, ok, err := c.lookupUserID(ctx, email)
	if err != nil {
		return false, err
	}
	if !ok || friendID == userID {
		return false, nil
	}

	// One request carries both directions, so PostgREST inserts them in a
	// single statement.
	now := time.Now().UTC()
	pair := []friendshipRow{
		{UserID: userID, FriendID: friendID, Status: model.FriendshipAccepted, CreatedAt: now},
		{UserID: friendID, FriendID: userID, Status: model.FriendshipAccepted, CreatedAt: now},
	}
	err = c.do(ctx, request{
		method: http.MethodPost,
		table:  "friendships",
		query:  url.Values{"on_conflict": {"user_id,friend_id"}},
		body:   pair,
		prefer: ignoreDuplicates,
	}, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) IsFriend(ctx context.Context, userID, friendID int64) (bool, error) {
	var rows []struct {
		UserID int64 `json:"user_id"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "friendships",
		query: url.Values{
			"select":    {"user_id"},
			"user_id":   {eq(userID)},
			"friend_id": {eq(friendID)},
			"status":    {eq(model.FriendshipAccepted)},
			"limit":     {"1"},
		},
	}, &rows)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// GetFriends embeds the friend's user row through the friend_id foreign key.
// PostgREST cannot order the parent by an embedded column, so the result is
// sorted here to match the embedded backend's name ordering.
func (c *Client) GetFriends(ctx context.Context, userID int64) ([]model.User, error) {
	var rows []struct {
		Friend *userRow `json:"friend"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "friendships",
		query: url.Values{
			"select":  {"friend:users!friendships_friend_id_fkey(*)"},
			"user_id": {eq(userID)},
			"status":  {eq(model.FriendshipAccepted)},
		},
	}, &rows)
	if err != nil {
		return nil, err
	}

	friends := make([]model.User, 0, len(rows))
	for _, r := range rows {
		if r.Friend != nil {
			friends = append(friends, r.Friend.toModel())
		}
	}
	sort.SliceStable(friends, func(i, j int) bool {
		a, b := strings.ToLower(friends[i].Name), strings.ToLower(friends[j].Name)
		if a != b {
			return a < b
		}
		return friends[i].ID < friends[j].ID
	})
	return friends, nil
}

type groupRow struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Members   []struct {
		Count int `json:"count"`
	} `json:"group_members"`
}

func (r groupRow) toModel() model.Group {
	g := model.Group{ID: r.ID, Name: r.Name, CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt}
	if len(r.Members) > 0 {
		g.MemberCount = r.Members[0].Count
	}
	return g
}

// GetGroups reads the caller's memberships and embeds each group together
// with an aggregate count of its members.
func (c *Client) GetGroups(ctx context.Context, userID int64) ([]model.Group, error) {
	var rows []struct {
		Group *groupRow `json:"group"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "group_members",
		query: url.Values{
			"select":  {"group:groups(id,name,created_by,created_at,group_members(count))"},
			"user_id": {eq(userID)},
		},
	}, &rows)
	if err != nil {
		return nil, err
	}

	groups := make([]model.Group, 0, len(rows))
	for _, r := range rows {
		if r.Group != nil {
			groups = append(groups, r.Group.toModel())
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := strings.ToLower(groups[i].Name), strings.ToLower(groups[j].Name)
		if a != b {
			return a < b
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

type memberRow struct {
	GroupID  int64     `json:"group_id"`
	UserID   int64     `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// CreateGroup inserts the group, then its members. The gateway has no
// multi-request transaction, so a failure after the first call leaves an
// empty group behind; it is reported to the caller as an error.
func (c *Client) CreateGroup(ctx context.Context, name string, createdBy int64, memberIDs []int64) (*model.Group, error) {
	now := time.Now().UTC()

	var created []groupRow
	err := c.do(ctx, request{
		method: http.MethodPost,
		table:  "groups",
		body:   map[string]any{"name": name, "created_by": createdBy, "created_at": now},
		prefer: []string{"return=representation"},
	}, &created)
	if err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("hosted: creating group %q returned no row", name)
	}
	g := created[0].toModel()

	seen := make(map[int64]bool)
	var members []memberRow
	for _, uid := range append([]int64{createdBy}, memberIDs...) {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		members = append(members, memberRow{GroupID: g.ID, UserID: uid, JoinedAt: now})
	}

	err = c.do(ctx, request{
		method: http.MethodPost,
		table:  "group_members",
		query:  url.Values{"on_conflict": {"group_id,user_id"}},
		body:   members,
		prefer: ignoreDuplicates,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("hosted: adding members to group %d: %w", g.ID, err)
	}

	g.MemberCount = len(members)
	return &g, nil
}

func (c *Client) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		table:  "group_members",
		query:  url.Values{"on_conflict": {"group_id,user_id"}},
		body:   []memberRow{{GroupID: groupID, UserID: userID, JoinedAt: time.Now().UTC()}},
		prefer: ignoreDuplicates,
	}, nil)
}
