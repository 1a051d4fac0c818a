// Package session holds the per-login workspace: who is logged in, which
// room they are bound to, and the notepad/whiteboard/ambient-sound state
// that lives alongside a call.
//
// A Session is created at login and destroyed at logout. It is kept in
// memory only; a restart logs everyone out, which the presence reconciler
// then reflects in the store once heartbeats lapse.
package session

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/hangout/internal/apperror"
)

const (
	// MaxNotesLength is the notepad limit, counted in characters.
	MaxNotesLength = 50000

	// MaxStrokes caps the whiteboard so a runaway client cannot grow a
	// session without bound.
	MaxStrokes = 5000

	// MaxStrokePoints caps a single stroke.
	MaxStrokePoints = 2000

	// MaxWhiteboardPoints caps the points across all strokes of a session.
	MaxWhiteboardPoints = 100000

	// DefaultVolume is the ambient volume of a fresh session.
	DefaultVolume = 50

	// Canvas dimensions. Points outside are rejected.
	CanvasWidth  = 700
	CanvasHeight = 350
)

// Tool is a whiteboard drawing mode.
type Tool string

const (
	ToolFreedraw Tool = "freedraw"
	ToolLine     Tool = "line"
	ToolRect     Tool = "rect"
	ToolCircle   Tool = "circle"
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one whiteboard shape.
type Stroke struct {
	Tool   Tool    `json:"tool"`
	Color  string  `json:"color"` // #rrggbb
	Width  int     `json:"width"` // 1..20
	Points []Point `json:"points"`
}

// Validate checks the stroke against the canvas and tool constraints.
func (s Stroke) Validate() error {
	switch s.Tool {
	case ToolFreedraw, ToolLine, ToolRect, ToolCircle:
	default:
		return apperror.ValidationFailed("tool", fmt.Sprintf("unknown tool %q", s.Tool))
	}
	if s.Width < 1 || s.Width > 20 {
		return apperror.ValidationFailed("width", "width must be between 1 and 20")
	}
	if !isHexColor(s.Color) {
		return apperror.ValidationFailed("color", "color must look like #rrggbb")
	}
	if len(s.Points) == 0 {
		return apperror.ValidationFailed("points", "a stroke needs at least one point")
	}
	if len(s.Points) > MaxStrokePoints {
		return apperror.ValidationFailed("points", fmt.Sprintf("a stroke may have at most %d points", MaxStrokePoints))
	}
	for _, p := range s.Points {
		if p.X < 0 || p.X > CanvasWidth || p.Y < 0 || p.Y > CanvasHeight {
			return apperror.ValidationFailed("points", "point outside the canvas")
		}
	}
	return nil
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// RoomBinding is the call a session is currently attached to.
type RoomBinding struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	JoinURL string `json:"joinUrl"`
	Owner   bool   `json:"owner"`
}

// Session is one logged-in browser.
//
// Values handed out by Manager are copies; mutate through Manager.Update.
type Session struct {
	ID           string       `json:"id"`
	UserID       int64        `json:"userId"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	Room         *RoomBinding `json:"room,omitempty"`
	Notes        string       `json:"notes"`
	Whiteboard   []Stroke     `json:"whiteboard"`
	AmbientSound string       `json:"ambientSound,omitempty"`
	Volume       int          `json:"volume"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastActive   time.Time    `json:"lastActive"`

	points int // total points on the whiteboard
}

// clone returns a copy that can be changed without touching s. Stroke
// points are shared: a stroke is never modified once on the whiteboard.
func (s *Session) clone() *Session {
	c := *s
	if s.Room != nil {
		r := *s.Room
		c.Room = &r
	}
	c.Whiteboard = slices.Clone(s.Whiteboard)
	if c.Whiteboard == nil {
		c.Whiteboard = []Stroke{}
	}
	return &c
}

// SetNotes replaces the notepad text.
func (s *Session) SetNotes(notes string) error {
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return apperror.ValidationFailed("notes", fmt.Sprintf("notes may be at most %d characters", MaxNotesLength))
	}
	s.Notes = notes
	return nil
}

// AddStroke appends a validated stroke to the whiteboard.
func (s *Session) AddStroke(st Stroke) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if len(s.Whiteboard) >= MaxStrokes || s.points+len(st.Points) > MaxWhiteboardPoints {
		return apperror.ValidationFailed("whiteboard", "whiteboard is full, clear it first")
	}
	st.Points = slices.Clone(st.Points)
	s.Whiteboard = append(s.Whiteboard, st)
	s.points += len(st.Points)
	return nil
}

func (s *Session) ClearWhiteboard() {
	s.Whiteboard = []Stroke{}
	s.points = 0
}

// PlaySound selects an ambient sound from the catalog.
func (s *Session) PlaySound(id string) error {
	if _, ok := LookupSound(id); !ok {
		return apperror.NotFound("sound", id)
	}
	s.AmbientSound = id
	return nil
}

func (s *Session) StopSound() { s.AmbientSound = "" }

// SetVolume clamps v into 0..100 and returns the stored value.
func (s *Session) SetVolume(v int) int {
	s.Volume = min(max(v, 0), 100)
	return s.Volume
}

// BindRoom attaches the session to a call.
func (s *Session) BindRoom(b RoomBinding) { s.Room = &b }

// LeaveRoom detaches from the call and resets the call-scoped workspace:
// the notepad and the ambient sound go with the call.
func (s *Session) LeaveRoom() {
	s.Room = nil
	s.Notes = ""
	s.AmbientSound = ""
}
