package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/auth"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/service"
	"github.com/sakif/hangout/internal/session"
)

// Directory is the users/friends/groups business logic.
// *service.DirectoryService implements it.
type Directory interface {
	Me(ctx context.Context, userID int64) (*model.User, error)
	Search(ctx context.Context, userID int64, query string) ([]model.User, error)
	AddFriend(ctx context.Context, userID int64, email string) (bool, error)
	Friends(ctx context.Context, userID int64) ([]model.User, error)
	FriendStatus(ctx context.Context, userID, friendID int64) (*model.User, error)
	Groups(ctx context.Context, userID int64) ([]model.Group, error)
	CreateGroup(ctx context.Context, userID int64, name string, memberIDs []int64) (*model.Group, error)
	AddGroupMember(ctx context.Context, userID, groupID, memberID int64) (*model.Group, error)
	Dashboard(ctx context.Context, userID int64) (*service.Dashboard, error)
}

var _ Directory = (*service.DirectoryService)(nil)

// DirectoryHandler serves the authenticated user's view of other users.
// Every route sits behind auth.RequireSession.
type DirectoryHandler struct {
	dir    Directory
	logger *slog.Logger
}

func NewDirectoryHandler(dir Directory, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{dir: dir, logger: logger}
}

// HandleMe returns the caller's stored row and session.
//
// HTTP: GET /api/me
func (h *DirectoryHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	u, err := h.dir.Me(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{User: u, Session: sess})
}

// HandleSearch finds users by name or email.
//
// HTTP: GET /api/users/search?q=anya
func (h *DirectoryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	users, err := h.dir.Search(r.Context(), sess.UserID, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleFriends lists the caller's friends with their presence.
//
// HTTP: GET /api/friends
func (h *DirectoryHandler) HandleFriends(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	friends, err := h.dir.Friends(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

// HandleAddFriend befriends a user by email.
//
// HTTP: POST /api/friends
// REQUEST BODY: {"email": "a@x.com"}
//
// An unknown email answers 404; adding an existing friend again answers 200.
func (h *DirectoryHandler) HandleAddFriend(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	added, err := h.dir.AddFriend(r.Context(), sess.UserID, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	if !added {
		writeError(w, &apperror.AppError{
			Err:     apperror.ErrNotFound,
			Message: "no user is registered with that email",
			Field:   "email",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": true})
}

// HandleFriendStatus returns one friend's status and room.
//
// HTTP: GET /api/friends/{id}/status
func (h *DirectoryHandler) HandleFriendStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	friendID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || friendID <= 0 {
		writeError(w, apperror.ValidationFailed("id", "id must be a positive integer"))
		return
	}

	u, err := h.dir.FriendStatus(r.Context(), sess.UserID, friendID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         u.ID,
		"status":     u.Status,
		"activeRoom": u.ActiveRoom,
	})
}

// HandleGroups lists the caller's groups.
//
// HTTP: GET /api/groups
func (h *DirectoryHandler) HandleGroups(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	groups, err := h.dir.Groups(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// HandleCreateGroup creates a group of the caller's friends.
//
// HTTP: POST /api/groups
// REQUEST BODY: {"name": "Study Crew", "members": [2, 3]}
func (h *DirectoryHandler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Name    string  `json:"name"`
		Members []int64 `json:"members"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := h.dir.CreateGroup(r.Context(), sess.UserID, req.Name, req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// HandleAddGroupMember adds a friend to one of the caller's groups.
//
// HTTP: POST /api/groups/{id}/members
// REQUEST BODY: {"userId": 4}
func (h *DirectoryHandler) HandleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	groupID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || groupID <= 0 {
		writeError(w, apperror.ValidationFailed("id", "id must be a positive integer"))
		return
	}
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := h.dir.AddGroupMember(r.Context(), sess.UserID, groupID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// HandleDashboard returns the landing page payload in one round trip.
//
// HTTP: GET /api/dashboard
func (h *DirectoryHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	d, err := h.dir.Dashboard(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// currentSession reads the session RequireSession stored. It writes a 401
// when the route was mounted without the middleware.
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid session required"))
	}
	return sess, ok
}

// storedSession is currentSession for routes that read or write the user's
// stored row. A session signed in on a fallback identity has no such row,
// so it is sent back to sign in again.
func storedSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := currentSession(w, r)
	if !ok {
		return nil, false
	}
	if model.IsFallbackID(sess.UserID) {
		writeError(w, apperror.Unauthorized("your account could not be loaded when you signed in, please sign in again"))
		return nil, false
	}
	return sess, true
}
