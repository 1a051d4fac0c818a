package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/service"
)

// Calls is the call lifecycle. *service.CallService implements it.
type Calls interface {
	StartCall(ctx context.Context, callerID int64, callees []int64) (*service.CallInfo, error)
	JoinCall(ctx context.Context, userID int64, roomName string) (*service.CallInfo, error)
	EndCall(ctx context.Context, userID int64) error
	Heartbeat(ctx context.Context, userID int64) (bool, error)
}

var _ Calls = (*service.CallService)(nil)

// CallHandler starts, joins and ends calls, and keeps the caller's
// workspace session bound to the room.
type CallHandler struct {
	calls     Calls
	workspace Workspace
	logger    *slog.Logger
}

func NewCallHandler(calls Calls, workspace Workspace, logger *slog.Logger) *CallHandler {
	return &CallHandler{calls: calls, workspace: workspace, logger: logger}
}

// HandleStart creates a room and binds the caller to it.
//
// HTTP: POST /api/calls
// REQUEST BODY: {"callees": [2, 3]}
//
// Status codes: 201 created, 400 bad callees, 403 callee is not a friend,
// 409 already in a call, 502 room provider failed.
func (h *CallHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Callees []int64 `json:"callees"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	info, err := h.calls.StartCall(r.Context(), sess.UserID, req.Callees)
	if err != nil {
		writeError(w, err)
		return
	}
	h.bind(sess.ID, info)
	writeJSON(w, http.StatusCreated, info)
}

// HandleJoin binds the caller to an existing room.
//
// HTTP: POST /api/calls/join
// REQUEST BODY: {"room": "abc123"}
func (h *CallHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Room string `json:"room"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	info, err := h.calls.JoinCall(r.Context(), sess.UserID, req.Room)
	if err != nil {
		writeError(w, err)
		return
	}
	h.bind(sess.ID, info)
	writeJSON(w, http.StatusOK, info)
}

// HandleEnd leaves the current call.
//
// HTTP: DELETE /api/calls/current
//
// Answers 204 even when the provider could not delete the room; the user
// is available again either way.
func (h *CallHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	if err := h.calls.EndCall(r.Context(), sess.UserID); err != nil {
		writeError(w, err)
		return
	}
	h.workspace.LeaveCall(sess.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleCurrent returns the room this session is bound to.
//
// HTTP: GET /api/calls/current
func (h *CallHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	if sess.Room == nil {
		writeError(w, &apperror.AppError{Err: apperror.ErrNotFound, Message: "not in a call"})
		return
	}
	writeJSON(w, http.StatusOK, sess.Room)
}

// HandleHeartbeat keeps a busy user's presence alive.
//
// HTTP: POST /api/presence/heartbeat
// RESPONSE: {"inCall": true}; false tells the client to stop beating.
func (h *CallHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sess, ok := storedSession(w, r)
	if !ok {
		return
	}
	inCall, err := h.calls.Heartbeat(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"inCall": inCall})
}

// bind records the call on the session. The call already exists at this
// point, so a failure here is logged rather than returned.
func (h *CallHandler) bind(sessionID string, info *service.CallInfo) {
	if _, err := h.workspace.BindCall(sessionID, info); err != nil {
		h.logger.Warn("binding call to session failed",
			slog.String("session", sessionID),
			slog.String("room", info.Room),
			slog.String("error", err.Error()),
		)
	}
}
