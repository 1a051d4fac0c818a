package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/repository"
)

const (
	MaxGroupNameLength = 100
	MaxSearchLength    = 100
	MaxGroupMembers    = 50
)

// DirectoryStore is the slice of the Store the directory needs.
type DirectoryStore interface {
	repository.UserRepository
	repository.FriendRepository
	repository.GroupRepository
}

// Dashboard is the landing page payload: who I am, my friends with their
// presence, and my groups.
type Dashboard struct {
	User    *model.User   `json:"user"`
	Friends []model.User  `json:"friends"`
	Groups  []model.Group `json:"groups"`
	// Online counts friends that are not offline.
	Online int `json:"online"`
}

// DirectoryService is a validation layer over users, friendships and
// groups.
type DirectoryService struct {
	store  DirectoryStore
	logger *slog.Logger
}

// NewDirectoryService creates a DirectoryService.
func NewDirectoryService(store DirectoryStore, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{store: store, logger: logger}
}

// Me returns the caller's stored row.
func (s *DirectoryService) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/directory: loading user: %w", err)
	}
	return u, nil
}

// Search finds users by name or email, never returning the caller.
// A blank query returns an empty list.
func (s *DirectoryService) Search(ctx context.Context, userID int64, query string) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) > MaxSearchLength {
		return nil, apperror.ValidationFailed("q",
			fmt.Sprintf("query must be at most %d characters", MaxSearchLength))
	}
	if query == "" {
		return []model.User{}, nil
	}
	users, err := s.store.SearchUsers(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("service/directory: searching users: %w", err)
	}
	return users, nil
}

// AddFriend befriends the user registered under email.
//
// Returns false (no error) when nobody is registered under that email;
// the handler turns that into a 404. Adding yourself is a validation error.
func (s *DirectoryService) AddFriend(ctx context.Context, userID int64, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, apperror.ValidationFailed("email", "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return false, apperror.ValidationFailed("email", "email is not a valid address")
	}

	me, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("service/directory: loading user: %w", err)
	}
	if strings.EqualFold(me.Email, email) {
		return false, apperror.ValidationFailed("email", "you cannot add yourself as a friend")
	}

	added, err := s.store.AddFriend(ctx, userID, email)
	if err != nil {
		return false, fmt.Errorf("service/directory: adding friend: %w", err)
	}
	if added {
		s.logger.Info("friend added", slog.Int64("userID", userID))
	}
	return added, nil
}

// Friends lists the caller's friends ordered by name.
func (s *DirectoryService) Friends(ctx context.Context, userID int64) ([]model.User, error) {
	friends, err := s.store.GetFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/directory: listing friends: %w", err)
	}
	return friends, nil
}

// FriendStatus returns a friend's current row (status and room).
// Non-friends are forbidden so presence does not leak to strangers.
func (s *DirectoryService) FriendStatus(ctx context.Context, userID, friendID int64) (*model.User, error) {
	ok, err := s.store.IsFriend(ctx, userID, friendID)
	if err != nil {
		return nil, fmt.Errorf("service/directory: checking friendship: %w", err)
	}
	if !ok {
		return nil, apperror.Forbidden("only friends can see each other's status")
	}
	u, err := s.store.GetUserByID(ctx, friendID)
	if err != nil {
		return nil, fmt.Errorf("service/directory: loading friend: %w", err)
	}
	return u, nil
}

// Groups lists the groups the caller belongs to.
func (s *DirectoryService) Groups(ctx context.Context, userID int64) ([]model.Group, error) {
	groups, err := s.store.GetGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/directory: listing groups: %w", err)
	}
	return groups, nil
}

// CreateGroup creates a group owned by the caller. Every member must be a
// friend of the caller; the caller is always a member.
func (s *DirectoryService) CreateGroup(ctx context.Context, userID int64, name string, memberIDs []int64) (*model.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be at most %d characters", MaxGroupNameLength))
	}
	if len(memberIDs) > MaxGroupMembers {
		return nil, apperror.ValidationFailed("members",
			fmt.Sprintf("a group holds at most %d members", MaxGroupMembers))
	}

	for _, id := range memberIDs {
		if id == userID {
			continue
		}
		ok, err := s.store.IsFriend(ctx, userID, id)
		if err != nil {
			return nil, fmt.Errorf("service/directory: checking friendship: %w", err)
		}
		if !ok {
			return nil, apperror.Forbidden(fmt.Sprintf("user %d is not in your friends list", id))
		}
	}

	g, err := s.store.CreateGroup(ctx, name, userID, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("service/directory: creating group: %w", err)
	}
	s.logger.Info("group created",
		slog.Int64("groupID", g.ID),
		slog.Int64("userID", userID),
		slog.Int("members", g.MemberCount),
	)
	return g, nil
}

// AddGroupMember adds one of the caller's friends to a group the caller
// belongs to and returns the group with its new member count. Adding an
// existing member changes nothing.
func (s *DirectoryService) AddGroupMember(ctx context.Context, userID, groupID, memberID int64) (*model.Group, error) {
	if memberID <= 0 {
		return nil, apperror.ValidationFailed("userId", "userId must be a positive id")
	}
	if memberID == userID {
		return nil, apperror.ValidationFailed("userId", "you are already in this group")
	}

	g, err := s.memberGroup(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if g.MemberCount > MaxGroupMembers {
		return nil, apperror.ValidationFailed("userId",
			fmt.Sprintf("a group holds at most %d members", MaxGroupMembers))
	}

	ok, err := s.store.IsFriend(ctx, userID, memberID)
	if err != nil {
		return nil, fmt.Errorf("service/directory: checking friendship: %w", err)
	}
	if !ok {
		return nil, apperror.Forbidden(fmt.Sprintf("user %d is not in your friends list", memberID))
	}

	if err := s.store.AddGroupMember(ctx, groupID, memberID); err != nil {
		return nil, fmt.Errorf("service/directory: adding group member: %w", err)
	}
	s.logger.Info("group member added",
		slog.Int64("groupID", groupID),
		slog.Int64("userID", userID),
		slog.Int64("memberID", memberID),
	)
	return s.memberGroup(ctx, userID, groupID)
}

// memberGroup finds groupID among the caller's groups. Groups the caller is
// not in are reported as missing.
func (s *DirectoryService) memberGroup(ctx context.Context, userID, groupID int64) (*model.Group, error) {
	groups, err := s.store.GetGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/directory: loading groups: %w", err)
	}
	for i := range groups {
		if groups[i].ID == groupID {
			return &groups[i], nil
		}
	}
	return nil, apperror.NotFound("group", strconv.FormatInt(groupID, 10))
}

// Dashboard loads the caller, friends and groups concurrently.
//
// errgroup.WithContext cancels the other lookups as soon as one fails, and
// Wait returns that first error.
func (s *DirectoryService) Dashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		u, err := s.store.GetUserByID(gctx, userID)
		d.User = u
		return err
	})
	g.Go(func() error {
		friends, err := s.store.GetFriends(gctx, userID)
		d.Friends = friends
		return err
	})
	g.Go(func() error {
		groups, err := s.store.GetGroups(gctx, userID)
		d.Groups = groups
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/directory: loading dashboard: %w", err)
	}
	if d.Friends == nil {
		d.Friends = []model.User{}
	}
	if d.Groups == nil {
		d.Groups = []model.Group{}
	}
	for _, f := range d.Friends {
		if f.Status != model.StatusOffline {
			d.Online++
		}
	}
	return &d, nil
}
