package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory repository.Store. It is hand written so each
// test can see exactly what the store does and flip an error field to
// simulate a failing backend.

type fakeStore struct {
	mu      sync.Mutex
	users   map[int64]*model.User
	friends map[[2]int64]bool
	groups  []*model.Group
	members map[int64][]int64 // group id → user ids
	nextID  int64

	upsertErr error
	updateErr error
	listErr   error

	updates int
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[int64]*model.User),
		friends: make(map[[2]int64]bool),
		members: make(map[int64][]int64),
	}
}

// seed inserts a user directly and returns its id.
func (f *fakeStore) seed(email, name string) int64 {
	u, _ := f.UpsertUser(context.Background(), repository.UpsertUserParams{Email: email, Name: name})
	return u.ID
}

func (f *fakeStore) befriend(a, b int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friends[[2]int64{a, b}] = true
	f.friends[[2]int64{b, a}] = true
}

func (f *fakeStore) user(id int64) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[id]
}

func (f *fakeStore) UpsertUser(_ context.Context, p repository.UpsertUserParams) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	for _, u := range f.users {
		if u.Email == p.Email {
			u.Name = p.Name
			if p.AvatarURL != nil {
				u.AvatarURL = *p.AvatarURL
			}
			if p.ExternalID != nil {
				u.ExternalID = *p.ExternalID
			}
			c := *u
			return &c, nil
		}
	}
	f.nextID++
	u := &model.User{
		ID:        f.nextID,
		Email:     p.Email,
		Name:      p.Name,
		Status:    model.StatusAvailable,
		CreatedAt: time.Now(),
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.ExternalID != nil {
		u.ExternalID = *p.ExternalID
	}
	f.users[u.ID] = u
	c := *u
	return &c, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", "x")
	}
	c := *u
	return &c, nil
}

func (f *fakeStore) SearchUsers(_ context.Context, query string, excludeID int64) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	out := []model.User{}
	for _, u := range f.users {
		if u.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Email, q) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, userID int64, status model.Status, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", "x")
	}
	f.updates++
	u.Status, u.ActiveRoom = status, room
	return nil
}

func (f *fakeStore) ResetIfBound(_ context.Context, userID int64, room string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.Status != model.StatusBusy || u.ActiveRoom != room {
		return false, nil
	}
	u.Status, u.ActiveRoom = model.StatusAvailable, ""
	return true, nil
}

func (f *fakeStore) ListUsersByStatus(_ context.Context, status model.Status) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.User
	for _, u := range f.users {
		if u.Status == status {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) AddFriend(_ context.Context, userID int64, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email && u.ID != userID {
			f.friends[[2]int64{userID, u.ID}] = true
			f.friends[[2]int64{u.ID, userID}] = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) IsFriend(_ context.Context, userID, friendID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.friends[[2]int64{userID, friendID}], nil
}

func (f *fakeStore) GetFriends(_ context.Context, userID int64) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for k := range f.friends {
		if k[0] == userID {
			out = append(out, *f.users[k[1]])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetGroups(_ context.Context, userID int64) ([]model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Group{}
	for _, g := range f.groups {
		for _, m := range f.members[g.ID] {
			if m == userID {
				out = append(out, *g)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CreateGroup(_ context.Context, name string, createdBy int64, memberIDs []int64) (*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	members := []int64{createdBy}
	for _, id := range memberIDs {
		if id != createdBy {
			members = append(members, id)
		}
	}
	g := &model.Group{ID: f.nextID, Name: name, CreatedBy: createdBy, MemberCount: len(members)}
	f.groups = append(f.groups, g)
	f.members[g.ID] = members
	c := *g
	return &c, nil
}

func (f *fakeStore) AddGroupMember(_ context.Context, groupID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[groupID] {
		if m == userID {
			return nil
		}
	}
	f.members[groupID] = append(f.members[groupID], userID)
	for _, g := range f.groups {
		if g.ID == groupID {
			g.MemberCount++
		}
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

// =========================================================================
// FAKE ROOM PROVIDER
// =========================================================================

var errProviderDown = errors.New("daily: provider unreachable")

type fakeRooms struct {
	mu        sync.Mutex
	created   int
	deleted   []string
	createErr error
	tokenErr  error
	deleteErr error
	getErr    error
}

func (f *fakeRooms) CreateRoom(_ context.Context, name string, maxParticipants int) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	if name == "" {
		name = "room-" + string(rune('a'+f.created-1))
	}
	return &model.Room{
		Name:   name,
		URL:    "https://hangout.daily.co/" + name,
		Config: model.RoomConfig{MaxParticipants: maxParticipants},
	}, nil
}

func (f *fakeRooms) CreateMeetingToken(_ context.Context, roomName, userName string, isOwner bool) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	if isOwner {
		return "owner-" + roomName, nil
	}
	return "guest-" + roomName, nil
}

func (f *fakeRooms) GetRoom(_ context.Context, roomName string) (*model.Room, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &model.Room{Name: roomName, URL: "https://looked-up.daily.co/" + roomName}, nil
}

func (f *fakeRooms) DeleteRoom(_ context.Context, roomName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, roomName)
	return f.deleteErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
