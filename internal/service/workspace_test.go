package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/session"
)

func newTestWorkspace(t *testing.T) (*WorkspaceService, *session.Manager, *session.Session) {
	t.Helper()
	m := session.NewManager(time.Hour)
	s := m.Create(&model.User{ID: 1, Email: "a@x.com", Name: "A"})
	return NewWorkspaceService(m), m, s
}

func TestWorkspace_NotesAndSound(t *testing.T) {
	svc, _, s := newTestWorkspace(t)

	if _, err := svc.SetNotes(s.ID, "agenda"); err != nil {
		t.Fatalf("SetNotes() error = %v", err)
	}
	if _, err := svc.SetNotes(s.ID, strings.Repeat("x", session.MaxNotesLength+1)); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("SetNotes(too long) error = %v, want ErrValidation", err)
	}
	if _, err := svc.PlaySound(s.ID, "rain"); err != nil {
		t.Fatalf("PlaySound() error = %v", err)
	}
	if _, err := svc.PlaySound(s.ID, "thunder"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("PlaySound(unknown) error = %v, want ErrNotFound", err)
	}

	got, _ := svc.Get(s.ID)
	if got.Notes != "agenda" || got.AmbientSound != "rain" {
		t.Errorf("workspace = (%q, %q), want rejected edits to leave it unchanged", got.Notes, got.AmbientSound)
	}

	got, _ = svc.StopSound(s.ID)
	if got.AmbientSound != "" {
		t.Errorf("AmbientSound = %q after stop", got.AmbientSound)
	}
}

func TestWorkspace_VolumeClamped(t *testing.T) {
	svc, _, s := newTestWorkspace(t)

	for _, tt := range []struct{ in, want int }{{-5, 0}, {42, 42}, {300, 100}} {
		got, err := svc.SetVolume(s.ID, tt.in)
		if err != nil {
			t.Fatalf("SetVolume(%d) error = %v", tt.in, err)
		}
		if got.Volume != tt.want {
			t.Errorf("SetVolume(%d) = %d, want %d", tt.in, got.Volume, tt.want)
		}
	}
}

func TestWorkspace_Whiteboard(t *testing.T) {
	svc, _, s := newTestWorkspace(t)
	stroke := session.Stroke{
		Tool:   session.ToolLine,
		Color:  "#1e90ff",
		Width:  3,
		Points: []session.Point{{X: 1, Y: 1}, {X: 50, Y: 40}},
	}

	got, err := svc.AddStroke(s.ID, stroke)
	if err != nil {
		t.Fatalf("AddStroke() error = %v", err)
	}
	if len(got.Whiteboard) != 1 {
		t.Fatalf("Whiteboard has %d strokes, want 1", len(got.Whiteboard))
	}

	got, _ = svc.ClearWhiteboard(s.ID)
	if len(got.Whiteboard) != 0 {
		t.Errorf("Whiteboard has %d strokes after clear", len(got.Whiteboard))
	}
}

func TestWorkspace_CallBinding(t *testing.T) {
	svc, m, s := newTestWorkspace(t)
	other := m.Create(&model.User{ID: 1, Email: "a@x.com", Name: "A"})

	info := &CallInfo{Room: "room-a", RoomURL: "https://h.daily.co/room-a", JoinURL: "https://h.daily.co/room-a?t=x", Owner: true}
	got, err := svc.BindCall(s.ID, info)
	if err != nil {
		t.Fatalf("BindCall() error = %v", err)
	}
	if got.Room == nil || got.Room.Name != "room-a" || !got.Room.Owner {
		t.Fatalf("Room = %+v, want room-a owned", got.Room)
	}
	svc.SetNotes(s.ID, "minutes")

	svc.LeaveCall(1)
	got, _ = svc.Get(s.ID)
	if got.Room != nil || got.Notes != "" {
		t.Errorf("after LeaveCall room = %+v notes = %q, want cleared", got.Room, got.Notes)
	}
	if o, _ := svc.Get(other.ID); o.Room != nil {
		t.Error("every session of the user should be detached")
	}
}

func TestWorkspace_UnknownSession(t *testing.T) {
	svc, _, _ := newTestWorkspace(t)

	if _, err := svc.SetNotes("missing", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetNotes(missing) error = %v, want ErrNotFound", err)
	}
}
