package session

import (
	"errors"
	"testing"
	"time"

	"github.com/sakif/hangout/internal/apperror"
	"github.com/sakif/hangout/internal/model"
)

// fakeClock lets tests move time forward.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(idle time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	m := NewManager(idle)
	m.now = clock.Now
	return m, clock
}

var anya = &model.User{ID: 7, Email: "anya@example.com", Name: "Anya"}

func TestCreate_Defaults(t *testing.T) {
	m, _ := newTestManager(time.Hour)

	s := m.Create(anya)

	if s.ID == "" || s.UserID != 7 || s.Name != "Anya" {
		t.Errorf("Create() = %+v", s)
	}
	if s.Volume != DefaultVolume {
		t.Errorf("Volume = %d, want %d", s.Volume, DefaultVolume)
	}
	if s.Whiteboard == nil {
		t.Error("Whiteboard should be an empty slice, not nil")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	m, _ := newTestManager(0)
	s := m.Create(anya)

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Notes = "scribble"

	again, _ := m.Get(s.ID)
	if again.Notes != "" {
		t.Error("mutating a returned session leaked into the manager")
	}
}

func TestUpdate_ErrorLeavesSessionUntouched(t *testing.T) {
	m, _ := newTestManager(0)
	s := m.Create(anya)

	_, err := m.Update(s.ID, func(s *Session) error {
		s.Notes = "half written"
		return s.PlaySound("nope")
	})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}

	got, _ := m.Get(s.ID)
	if got.Notes != "" {
		t.Errorf("Notes = %q, want unchanged", got.Notes)
	}
}

func TestUpdate_IdentityIsFixed(t *testing.T) {
	m, _ := newTestManager(0)
	s := m.Create(anya)

	got, err := m.Update(s.ID, func(s *Session) error {
		s.UserID = 99
		s.Volume = 10
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != 7 || got.Volume != 10 {
		t.Errorf("Update() = (user %d, volume %d), want (7, 10)", got.UserID, got.Volume)
	}
}

func TestDestroy(t *testing.T) {
	m, _ := newTestManager(0)
	s := m.Create(anya)

	m.Destroy(s.ID)
	m.Destroy(s.ID) // second call is a no-op

	if _, err := m.Get(s.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() after Destroy error = %v, want ErrNotFound", err)
	}
}

func TestIdleExpiry(t *testing.T) {
	m, clock := newTestManager(30 * time.Minute)
	active := m.Create(anya)
	idle := m.Create(&model.User{ID: 8, Email: "b@x.com", Name: "B"})

	clock.Advance(20 * time.Minute)
	if _, err := m.Get(active.ID); err != nil {
		t.Fatalf("Get(active) error = %v", err)
	}

	clock.Advance(20 * time.Minute)
	if _, err := m.Get(idle.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get(idle) error = %v, want ErrNotFound", err)
	}
	if _, err := m.Get(active.ID); err != nil {
		t.Errorf("Get(active) after 20m error = %v, touch should have renewed it", err)
	}

	clock.Advance(time.Hour)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() removed %d, want 1", n)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after sweep, want 0", m.Len())
	}
}

func TestForUser(t *testing.T) {
	m, _ := newTestManager(0)
	m.Create(anya)
	m.Create(anya)
	m.Create(&model.User{ID: 8, Email: "b@x.com", Name: "B"})

	if got := m.ForUser(7); len(got) != 2 {
		t.Errorf("ForUser(7) returned %d sessions, want 2", len(got))
	}
}

func TestUpdate_PointCountSurvivesCopies(t *testing.T) {
	m, _ := newTestManager(0)
	s := m.Create(anya)
	big := validStroke()
	big.Points = make([]Point, MaxStrokePoints)

	var err error
	for i := 0; i <= MaxWhiteboardPoints/MaxStrokePoints && err == nil; i++ {
		_, err = m.Update(s.ID, func(s *Session) error { return s.AddStroke(big) })
	}
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Update() error = %v, want the whiteboard to fill up", err)
	}

	got, _ := m.Get(s.ID)
	if len(got.Whiteboard) != MaxWhiteboardPoints/MaxStrokePoints {
		t.Errorf("whiteboard has %d strokes, want %d", len(got.Whiteboard), MaxWhiteboardPoints/MaxStrokePoints)
	}
}
