// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes users, friends and groups
//
// Services depend on small interfaces (CallStore, RoomProvider, ...) rather
// than on the sqlite or hosted packages, so tests pass in-memory fakes and
// main.go picks the backend once at startup.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/daily"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/presence"
)

// MaxRoomNameLength bounds room names accepted from clients. Daily caps
// names at 128 characters.
const MaxRoomNameLength = 128

// CallStore is the slice of the Store the call flow needs.
type CallStore interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	UpdateStatus(ctx context.Context, userID int64, status model.Status, roomName string) error
	ListUsersByStatus(ctx context.Context, status model.Status) ([]model.User, error)
	IsFriend(ctx context.Context, userID, friendID int64) (bool, error)
}

// RoomProvider is the room lifecycle API. *daily.Client implements it.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string, maxParticipants int) (*model.Room, error)
	CreateMeetingToken(ctx context.Context, roomName, userName string, isOwner bool) (string, error)
	GetRoom(ctx context.Context, roomName string) (*model.Room, error)
	DeleteRoom(ctx context.Context, roomName string) error
}

var _ RoomProvider = (*daily.Client)(nil)

// CallConfig holds the call limits read from configuration.
type CallConfig struct {
	MaxRoomSize  int
	Domain       string        // Daily subdomain; empty means look the URL up per room
	HeartbeatTTL time.Duration // how long a beat keeps a busy user alive
}

// CallInfo is what a client needs to join a call.
//
// Token is empty when minting failed. JoinURL then carries no "t" parameter
// and the client joins unauthenticated instead of being blocked.
type CallInfo struct {
	Room    string  `json:"room"`
	RoomURL string  `json:"roomUrl"`
	Token   string  `json:"token,omitempty"`
	JoinURL string  `json:"joinUrl"`
	Owner   bool    `json:"owner"`
	Callees []int64 `json:"callees,omitempty"`
}

// CallService coordinates presence with the room provider.
//
// PRESENCE STATE MACHINE (per user):
//
//	offline → available   Login
//	available → busy      StartCall / JoinCall
//	busy → available      EndCall
//	any → offline         Logout
//
// Every transition for one user runs under that user's lock, so a
// double-clicked "Call" cannot create two rooms. Different users never
// block each other.
//
// HEARTBEATS:
// A busy user's client beats periodically (Heartbeat). The presence
// Reconciler resets busy users whose beat expired, which covers crashed
// tabs and restarts. The beat is written BEFORE the status flips to busy
// so the reconciler never sees a busy user without one.
type CallService struct {
	store  CallStore
	rooms  RoomProvider
	beats  presence.Heartbeats
	cfg    CallConfig
	locks  *keyedMutex
	logger *slog.Logger
}

// NewCallService creates a CallService.
func NewCallService(store CallStore, rooms RoomProvider, beats presence.Heartbeats, cfg CallConfig, logger *slog.Logger) *CallService {
	if cfg.MaxRoomSize <= 1 {
		cfg.MaxRoomSize = 2
	}
	if cfg.HeartbeatTTL <= 0 {
		cfg.HeartbeatTTL = 2 * time.Minute
	}
	return &CallService{
		store:  store,
		rooms:  rooms,
		beats:  beats,
		cfg:    cfg,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// StartCall creates a room and binds the caller to it.
//
// Callees must all be friends of the caller. Their status is not touched:
// joining is a separate action each callee takes.
func (s *CallService) StartCall(ctx context.Context, callerID int64, callees []int64) (*CallInfo, error) {
	callees, err := s.validateCallees(callerID, callees)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(callerID)
	defer unlock()

	caller, err := s.store.GetUserByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("service/call: loading caller: %w", err)
	}
	if caller.Status == model.StatusBusy {
		return nil, alreadyInCall(caller.ActiveRoom)
	}

	for _, id := range callees {
		ok, err := s.store.IsFriend(ctx, callerID, id)
		if err != nil {
			return nil, fmt.Errorf("service/call: checking friendship: %w", err)
		}
		if !ok {
			return nil, apperror.Forbidden(fmt.Sprintf("user %d is not in your friends list", id))
		}
	}

	// Empty name: the provider generates a unique one.
	room, err := s.rooms.CreateRoom(ctx, "", s.cfg.MaxRoomSize)
	if err != nil {
		s.logger.Error("creating call room failed",
			slog.Int64("userID", callerID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unavailable("could not create a call room, please try again", err)
	}

	if err := s.bind(ctx, caller, room.Name); err != nil {
		// Nobody is bound to the room; do not leave it running until its TTL.
		s.deleteRoom(ctx, room.Name)
		return nil, err
	}

	info := &CallInfo{
		Room:    room.Name,
		RoomURL: room.URL,
		Owner:   true,
		Callees: callees,
	}
	info.Token = s.mintToken(ctx, room.Name, caller, true)
	info.JoinURL = daily.JoinURL(info.RoomURL, info.Token)

	s.logger.Info("call started",
		slog.Int64("userID", callerID),
		slog.String("room", room.Name),
		slog.Int("callees", len(callees)),
	)
	return info, nil
}

// JoinCall binds the user to an existing room.
//
// The room is not checked at the provider when a Daily domain is
// configured: the URL is derived from the name and a stale room simply
// fails to load in the client. Re-joining the room the user is already in
// re-issues the join details.
func (s *CallService) JoinCall(ctx context.Context, userID int64, roomName string) (*CallInfo, error) {
	roomName = strings.TrimSpace(roomName)
	if err := validateRoomName(roomName); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/call: loading user: %w", err)
	}
	if u.Status == model.StatusBusy && u.ActiveRoom != roomName {
		return nil, alreadyInCall(u.ActiveRoom)
	}

	roomURL, err := s.roomURL(ctx, roomName)
	if err != nil {
		return nil, err
	}

	if err := s.bind(ctx, u, roomName); err != nil {
		return nil, err
	}

	info := &CallInfo{Room: roomName, RoomURL: roomURL}
	info.Token = s.mintToken(ctx, roomName, u, false)
	info.JoinURL = daily.JoinURL(roomURL, info.Token)

	s.logger.Info("call joined", slog.Int64("userID", userID), slog.String("room", roomName))
	return info, nil
}

// EndCall leaves the user's current room.
//
// The room is deleted at the provider when nobody else is still bound to
// it. Delete failures are logged and swallowed: the room then expires on
// its own, and the user always ends up available with no room.
func (s *CallService) EndCall(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/call: loading user: %w", err)
	}
	return s.endCallLocked(ctx, u, model.StatusAvailable)
}

// Login marks the user available. A user already in a call (another
// device) stays busy.
func (s *CallService) Login(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/call: loading user: %w", err)
	}
	if u.InCall() || u.Status == model.StatusAvailable {
		return nil
	}
	if err := s.store.UpdateStatus(ctx, userID, model.StatusAvailable, ""); err != nil {
		return fmt.Errorf("service/call: marking user available: %w", err)
	}
	return nil
}

// Logout ends any active call and marks the user offline.
func (s *CallService) Logout(ctx context.Context, userID int64) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/call: loading user: %w", err)
	}
	return s.endCallLocked(ctx, u, model.StatusOffline)
}

// Heartbeat refreshes the presence beat of a busy user. It reports false
// when the user is not in a call, which tells the client to stop beating.
func (s *CallService) Heartbeat(ctx context.Context, userID int64) (bool, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("service/call: loading user: %w", err)
	}
	if !u.InCall() {
		return false, nil
	}
	if err := s.beats.Beat(ctx, userID, u.ActiveRoom, s.cfg.HeartbeatTTL); err != nil {
		return false, apperror.Unavailable("presence store unavailable", err)
	}
	return true, nil
}

// =========================================================================
// INTERNALS (callers hold the user's lock)
// =========================================================================

// bind writes the heartbeat, then the busy status.
func (s *CallService) bind(ctx context.Context, u *model.User, roomName string) error {
	if err := s.beats.Beat(ctx, u.ID, roomName, s.cfg.HeartbeatTTL); err != nil {
		// Without a beat the reconciler resets the user after one interval;
		// the call itself still works, so keep going.
		s.logger.Warn("writing presence heartbeat failed",
			slog.Int64("userID", u.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.store.UpdateStatus(ctx, u.ID, model.StatusBusy, roomName); err != nil {
		s.clearBeat(ctx, u.ID)
		return fmt.Errorf("service/call: marking user busy: %w", err)
	}
	return nil
}

func (s *CallService) endCallLocked(ctx context.Context, u *model.User, next model.Status) error {
	if u.ActiveRoom != "" {
		occupied, err := s.roomOccupied(ctx, u.ActiveRoom, u.ID)
		switch {
		case err != nil:
			s.logger.Warn("checking room occupants failed, leaving room to expire",
				slog.String("room", u.ActiveRoom),
				slog.String("error", err.Error()),
			)
		case !occupied:
			s.deleteRoom(ctx, u.ActiveRoom)
		}
	}

	if err := s.store.UpdateStatus(ctx, u.ID, next, ""); err != nil {
		return fmt.Errorf("service/call: marking user %s: %w", next, err)
	}
	s.clearBeat(ctx, u.ID)

	if u.ActiveRoom != "" {
		s.logger.Info("call ended", slog.Int64("userID", u.ID), slog.String("room", u.ActiveRoom))
	}
	return nil
}

// roomOccupied reports whether any user other than self is bound to room.
func (s *CallService) roomOccupied(ctx context.Context, room string, self int64) (bool, error) {
	busy, err := s.store.ListUsersByStatus(ctx, model.StatusBusy)
	if err != nil {
		return false, err
	}
	for _, u := range busy {
		if u.ID != self && u.ActiveRoom == room {
			return true, nil
		}
	}
	return false, nil
}

func (s *CallService) deleteRoom(ctx context.Context, room string) {
	if err := s.rooms.DeleteRoom(ctx, room); err != nil {
		s.logger.Warn("deleting call room failed, it will expire on its own",
			slog.String("room", room),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CallService) clearBeat(ctx context.Context, userID int64) {
	if err := s.beats.Clear(ctx, userID); err != nil {
		s.logger.Warn("clearing presence heartbeat failed",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
	}
}

// mintToken returns "" when the provider refuses; see CallInfo.
func (s *CallService) mintToken(ctx context.Context, room string, u *model.User, owner bool) string {
	token, err := s.rooms.CreateMeetingToken(ctx, room, u.Name, owner)
	if err != nil {
		s.logger.Warn("minting meeting token failed, joining without one",
			slog.Int64("userID", u.ID),
			slog.String("room", room),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return token
}

func (s *CallService) roomURL(ctx context.Context, roomName string) (string, error) {
	if s.cfg.Domain != "" {
		return daily.RoomURL(s.cfg.Domain, roomName), nil
	}
	room, err := s.rooms.GetRoom(ctx, roomName)
	if errors.Is(err, daily.ErrRoomNotFound) {
		return "", apperror.NotFound("room", roomName)
	}
	if err != nil {
		return "", apperror.Unavailable("could not look up the call room", err)
	}
	return room.URL, nil
}

func (s *CallService) validateCallees(callerID int64, callees []int64) ([]int64, error) {
	seen := make(map[int64]bool, len(callees))
	out := make([]int64, 0, len(callees))
	for _, id := range callees {
		if id <= 0 {
			return nil, apperror.ValidationFailed("callees", "callee ids must be positive")
		}
		if id == callerID {
			return nil, apperror.ValidationFailed("callees", "you cannot call yourself")
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, apperror.ValidationFailed("callees", "at least one callee is required")
	}
	if len(out)+1 > s.cfg.MaxRoomSize {
		return nil, apperror.ValidationFailed("callees",
			fmt.Sprintf("a call holds at most %d participants", s.cfg.MaxRoomSize))
	}
	return out, nil
}

// validateRoomName accepts the characters Daily allows in room names.
func validateRoomName(name string) error {
	if name == "" {
		return apperror.ValidationFailed("room", "room is required")
	}
	if len(name) > MaxRoomNameLength {
		return apperror.ValidationFailed("room",
			fmt.Sprintf("room must be at most %d characters", MaxRoomNameLength))
	}
	for _, r := range name {
		ok := r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return apperror.ValidationFailed("room", "room may only contain letters, digits, '-' and '_'")
		}
	}
	return nil
}

func alreadyInCall(room string) *apperror.AppError {
	return &apperror.AppError{
		Err:     apperror.ErrConflict,
		Message: fmt.Sprintf("already in call %s; end it first", room),
	}
}
