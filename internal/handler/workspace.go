package handler

import (
	"net/http"

	"github.com/sakif/hangout/internal/service"
	"github.com/sakif/hangout/internal/session"
)

// Workspace edits session-local state. *service.WorkspaceService
// implements it.
type Workspace interface {
	Get(sessionID string) (*session.Session, error)
	SetNotes(sessionID, notes string) (*session.Session, error)
	AddStroke(sessionID string, st session.Stroke) (*session.Session, error)
	ClearWhiteboard(sessionID string) (*session.Session, error)
	PlaySound(sessionID, soundID string) (*session.Session, error)
	StopSound(sessionID string) (*session.Session, error)
	SetVolume(sessionID string, v int) (*session.Session, error)
	BindCall(sessionID string, info *service.CallInfo) (*session.Session, error)
	LeaveCall(userID int64)
}

var _ Workspace = (*service.WorkspaceService)(nil)

// WorkspaceHandler serves the notepad, whiteboard and ambient player.
// Each route answers with the full updated session so the client can
// re-render from one source.
type WorkspaceHandler struct {
	ws Workspace
}

func NewWorkspaceHandler(ws Workspace) *WorkspaceHandler {
	return &WorkspaceHandler{ws: ws}
}

// HandleGet returns the session workspace.
//
// HTTP: GET /api/workspace
func (h *WorkspaceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(id string) (*session.Session, error) {
		return h.ws.Get(id)
	})
}

// HandleSetNotes replaces the notepad.
//
// HTTP: PUT /api/workspace/notes
// REQUEST BODY: {"notes": "..."}
func (h *WorkspaceHandler) HandleSetNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, func(id string) (*session.Session, error) {
		return h.ws.SetNotes(id, req.Notes)
	})
}

// HandleAddStroke appends a whiteboard stroke.
//
// HTTP: POST /api/workspace/whiteboard/strokes
// REQUEST BODY: {"tool":"line","color":"#ff0000","width":3,"points":[{"x":1,"y":2},...]}
func (h *WorkspaceHandler) HandleAddStroke(w http.ResponseWriter, r *http.Request) {
	var st session.Stroke
	if err := decodeJSON(w, r, &st); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, func(id string) (*session.Session, error) {
		return h.ws.AddStroke(id, st)
	})
}

// HandleClearWhiteboard wipes the canvas.
//
// HTTP: DELETE /api/workspace/whiteboard
func (h *WorkspaceHandler) HandleClearWhiteboard(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(id string) (*session.Session, error) {
		return h.ws.ClearWhiteboard(id)
	})
}

// HandlePlaySound selects an ambient sound.
//
// HTTP: PUT /api/workspace/sound
// REQUEST BODY: {"sound": "rain"}
func (h *WorkspaceHandler) HandlePlaySound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sound string `json:"sound"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, func(id string) (*session.Session, error) {
		return h.ws.PlaySound(id, req.Sound)
	})
}

// HandleStopSound stops the ambient sound.
//
// HTTP: DELETE /api/workspace/sound
func (h *WorkspaceHandler) HandleStopSound(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(id string) (*session.Session, error) {
		return h.ws.StopSound(id)
	})
}

// HandleSetVolume sets the ambient volume, clamped to 0..100.
//
// HTTP: PUT /api/workspace/volume
// REQUEST BODY: {"volume": 70}
func (h *WorkspaceHandler) HandleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume int `json:"volume"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, func(id string) (*session.Session, error) {
		return h.ws.SetVolume(id, req.Volume)
	})
}

// HandleSounds lists the ambient catalog.
//
// HTTP: GET /api/sounds
func (h *WorkspaceHandler) HandleSounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session.Sounds())
}

func (h *WorkspaceHandler) respond(w http.ResponseWriter, r *http.Request, fn func(sessionID string) (*session.Session, error)) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	updated, err := fn(sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
