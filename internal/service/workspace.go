package service

import (
	"github.com/sakif/hangout/internal/session"
)

// WorkspaceSessions is the part of session.Manager the workspace edits.
type WorkspaceSessions interface {
	Get(id string) (*session.Session, error)
	Update(id string, fn func(*session.Session) error) (*session.Session, error)
	ForUser(userID int64) []*session.Session
}

var _ WorkspaceSessions = (*session.Manager)(nil)

// WorkspaceService edits the per-session scratch state that sits beside a
// call: notepad, whiteboard, ambient sound and volume. The state is local
// to one session and is not shared with other participants.
type WorkspaceService struct {
	sessions WorkspaceSessions
}

func NewWorkspaceService(sessions WorkspaceSessions) *WorkspaceService {
	return &WorkspaceService{sessions: sessions}
}

func (s *WorkspaceService) Get(sessionID string) (*session.Session, error) {
	return s.sessions.Get(sessionID)
}

func (s *WorkspaceService) SetNotes(sessionID, notes string) (*session.Session, error) {
	return s.sessions.Update(sessionID, func(ss *session.Session) error {
		return ss.SetNotes(notes)
	})
}

func (s *WorkspaceService) AddStroke(sessionID string, st session.Stroke) (*session.Session, error) {
	return s.sessions.Update(sessionID, func(ss *session.Session) error {
		return ss.AddStroke(st)
	})
}

func (s *WorkspaceService) ClearWhiteboard(sessionID string) (*session.Session, error) {
	return s.sessions.Update(sessionID, func(ss *session.Session) error {
		ss.ClearWhiteboard()
		return nil
	})
}

// PlaySound selects a catalog sound; unknown ids are NotFound.
func (s *WorkspaceService) PlaySound(sessionID, soundID string) (*session.Session, error) {
	return s.sessions.Update(sessionID, func(ss *session.Session) error {
		return ss.PlaySound(soundID)
	})
}

func (s *WorkspaceService) StopSound(sessionID string) (*session.Session, error) {
	return s.sessions.Update(sessionID, func(ss *session.Session) error {
		ss.StopSound()
		return nil
	})
}

// SetVolume stores v clamped to 0..100.
func (s *WorkspaceService) SetVolume(sessionID string, v int) (*session.Session, error) {
	return s.sessions.Update(sessionID, func(ss *session.Session) error {
		ss.SetVolume(v)
		return nil
	})
}

// BindCall attaches the session to the call described by info.
func (s *WorkspaceService) BindCall(sessionID string, info *CallInfo) (*session.Session, error) {
	return s.sessions.Update(sessionID, func(ss *session.Session) error {
		ss.BindRoom(session.RoomBinding{
			Name:    info.Room,
			URL:     info.RoomURL,
			JoinURL: info.JoinURL,
			Owner:   info.Owner,
		})
		return nil
	})
}

// LeaveCall detaches every session of the user from its call. Presence is
// per user, so ending the call in one tab ends it in all of them.
func (s *WorkspaceService) LeaveCall(userID int64) {
	for _, ss := range s.sessions.ForUser(userID) {
		// A session that expired in between has nothing left to clear.
		_, _ = s.sessions.Update(ss.ID, func(ss *session.Session) error {
			ss.LeaveRoom()
			return nil
		})
	}
}
