// Package daily wraps the Daily.co REST API: rooms and meeting tokens.
//
// ROOM LIFECYCLE:
//
//	CreateRoom ──► room exists at the provider ──► DeleteRoom
//	                        │
//	                        └── or expires by itself once Config.Exp passes
//
// Rooms are never stored locally. The provider is the source of truth and
// the only local trace of a room is the user's ActiveRoom column.
//
// Calls are never retried here. Callers decide what a failure means: a
// failed CreateRoom aborts the call, a failed token falls back to an
// unauthenticated join, a failed delete is only logged.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/hangout/internal/model"
)

const (
	// DefaultBaseURL is Daily's v1 REST root.
	DefaultBaseURL = "https://api.daily.co/v1"

	// RequestTimeout bounds every room and token call.
	RequestTimeout = 10 * time.Second

	// verifyTimeout bounds the cheap GET / request used by health checks.
	verifyTimeout = 5 * time.Second
)

var (
	// ErrNotConfigured is returned by every call when no API key is set.
	ErrNotConfigured = errors.New("daily: API key not configured")

	// ErrRoomNotFound is returned by GetRoom for a 404.
	ErrRoomNotFound = errors.New("daily: room not found")
)

// APIError is a non-success HTTP response from Daily.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daily: %s returned status %d: %s", e.Op, e.Status, e.Body)
}

// Config holds the client settings.
type Config struct {
	APIKey  string
	BaseURL string        // defaults to DefaultBaseURL
	RoomTTL time.Duration // how long a new room lives before Daily expires it
	Debug   bool
}

// Client talks to the Daily REST API.
type Client struct {
	apiKey  string
	baseURL string
	roomTTL time.Duration
	debug   bool
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient builds a Client. An empty API key is allowed so the server can
// still start (and report itself unready); every call then returns
// ErrNotConfigured.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		roomTTL: cfg.RoomTTL,
		debug:   cfg.Debug,
		http:    &http.Client{Timeout: RequestTimeout},
		logger:  logger,
		now:     time.Now,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

// audioOnlyConfig is the fixed property set for hangout rooms: audio on,
// video and every video-adjacent feature off, noise cancellation on.
func audioOnlyConfig(maxParticipants int, exp int64) model.RoomConfig {
	return model.RoomConfig{
		MaxParticipants:           maxParticipants,
		Exp:                       exp,
		StartVideoOff:             true,
		StartAudioOff:             false,
		EnableScreenshare:         false,
		EnableVideoProcessingUI:   false,
		EnableNoiseCancellationUI: true,
		EnableNetworkUI:           true,
		EnableChat:                false,
		EnableKnocking:            false,
		EnablePrejoinUI:           false,
	}
}

// CreateRoom creates an audio-only room. An empty name lets Daily pick one.
func (c *Client) CreateRoom(ctx context.Context, name string, maxParticipants int) (*model.Room, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var exp int64
	if c.roomTTL > 0 {
		exp = c.now().Add(c.roomTTL).Unix()
	}

	payload := struct {
		Name       string           `json:"name,omitempty"`
		Properties model.RoomConfig `json:"properties"`
	}{
		Name:       name,
		Properties: audioOnlyConfig(maxParticipants, exp),
	}

	var room model.Room
	if err := c.do(ctx, "create room", http.MethodPost, "/rooms", payload, &room); err != nil {
		return nil, err
	}

	if c.debug {
		c.logger.Debug("daily room created", slog.String("room", room.Name))
	}
	return &room, nil
}

// CreateMeetingToken mints a token that admits userName to roomName.
func (c *Client) CreateMeetingToken(ctx context.Context, roomName, userName string, isOwner bool) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	payload := map[string]any{
		"properties": map[string]any{
			"room_name": roomName,
			"user_name": userName,
			"is_owner":  isOwner,
		},
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, "create meeting token", http.MethodPost, "/meeting-tokens", payload, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("daily: create meeting token: empty token in response")
	}

	if c.debug {
		c.logger.Debug("daily token created", slog.String("room", roomName), slog.String("user", userName))
	}
	return resp.Token, nil
}

// GetRoom fetches a room's current details.
func (c *Client) GetRoom(ctx context.Context, roomName string) (*model.Room, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var room model.Room
	err := c.do(ctx, "get room", http.MethodGet, "/rooms/"+url.PathEscape(roomName), nil, &room)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoom deletes a room. Only a 200 counts as success.
func (c *Client) DeleteRoom(ctx context.Context, roomName string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	req, err := c.newRequest(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(roomName), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daily: delete room %s: %w", roomName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError("delete room", resp)
	}

	if c.debug {
		c.logger.Debug("daily room deleted", slog.String("room", roomName))
	}
	return nil
}

// DomainConfig returns the account-level domain settings (GET /).
func (c *Client) DomainConfig(ctx context.Context) (map[string]any, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	var cfg map[string]any
	if err := c.do(ctx, "domain config", http.MethodGet, "/", nil, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// VerifyAPIKey proves the key is accepted by Daily.
func (c *Client) VerifyAPIKey(ctx context.Context) error {
	_, err := c.DomainConfig(ctx)
	return err
}

// JoinURL appends the meeting token and the audio-only client flags to a
// room URL. Without a token the user joins unauthenticated.
func JoinURL(roomURL, token string) string {
	// Built by hand: url.Values.Encode would sort the token after the flags.
	params := "videoOff=true&showLocalVideo=false"
	if token != "" {
		params = "t=" + url.QueryEscape(token) + "&" + params
	}
	return roomURL + "?" + params
}

// RoomURL builds the public room URL for a Daily subdomain.
func RoomURL(domain, roomName string) string {
	return "https://" + domain + ".daily.co/" + roomName
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("daily: encoding request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("daily: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends a JSON request and decodes a 2xx JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daily: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(op, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("daily: decoding %s response: %w", op, err)
	}
	return nil
}

func newAPIError(op string, resp *http.Response) *APIError {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}
