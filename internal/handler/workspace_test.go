package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/hangout/internal/auth"
	"github.com/sakif/hangout/internal/handler"
	"github.com/sakif/hangout/internal/model"
	"github.com/sakif/hangout/internal/service"
	"github.com/sakif/hangout/internal/session"
)

func TestWorkspaceHandler(t *testing.T) {
	sessions := session.NewManager(time.Hour)
	sess := sessions.Create(&model.User{ID: 7, Email: "b@x.com", Name: "B"})
	h := handler.NewWorkspaceHandler(service.NewWorkspaceService(sessions))

	do := func(fn http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/workspace", strings.NewReader(body))
		req = req.WithContext(auth.WithSession(req.Context(), sess))
		rec := httptest.NewRecorder()
		fn(rec, req)
		return rec
	}
	decode := func(rec *httptest.ResponseRecorder) session.Session {
		var s session.Session
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
		return s
	}

	t.Run("notes", func(t *testing.T) {
		rec := do(h.HandleSetNotes, http.MethodPut, `{"notes":"agenda"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "agenda", decode(rec).Notes)
	})

	t.Run("stroke", func(t *testing.T) {
		rec := do(h.HandleAddStroke, http.MethodPost,
			`{"tool":"rect","color":"#00ff00","width":2,"points":[{"x":10,"y":10},{"x":60,"y":40}]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(rec).Whiteboard, 1)

		rec = do(h.HandleAddStroke, http.MethodPost,
			`{"tool":"spray","color":"#00ff00","width":2,"points":[{"x":1,"y":1}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(h.HandleClearWhiteboard, http.MethodDelete, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode(rec).Whiteboard)
	})

	t.Run("sound", func(t *testing.T) {
		rec := do(h.HandlePlaySound, http.MethodPut, `{"sound":"lofi"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "lofi", decode(rec).AmbientSound)

		rec = do(h.HandlePlaySound, http.MethodPut, `{"sound":"thunder"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(h.HandleStopSound, http.MethodDelete, "")
		assert.Empty(t, decode(rec).AmbientSound)
	})

	t.Run("volume", func(t *testing.T) {
		rec := do(h.HandleSetVolume, http.MethodPut, `{"volume":250}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 100, decode(rec).Volume)
	})

	t.Run("get", func(t *testing.T) {
		rec := do(h.HandleGet, http.MethodGet, "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode(rec)
		assert.Equal(t, "agenda", got.Notes)
		assert.Equal(t, 100, got.Volume)
	})

	t.Run("sounds catalog", func(t *testing.T) {
		rec := do(h.HandleSounds, http.MethodGet, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var sounds []session.Sound
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&sounds))
		assert.Len(t, sounds, 8)
	})
}
