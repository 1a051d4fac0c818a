package model

import "time"

// Room is a call room as described by the Daily.co REST API.
//
// Rooms are NEVER persisted locally: the provider is the source of truth.
// A room lives until it is deleted or until Config.Exp passes, whichever
// comes first.
type Room struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	Privacy   string     `json:"privacy"`
	CreatedAt time.Time  `json:"created_at"`
	Config    RoomConfig `json:"config"`
}

// RoomConfig holds the feature flags and limits sent when a room is created.
// Field names follow Daily's "properties" object.
type RoomConfig struct {
	MaxParticipants           int   `json:"max_participants,omitempty"`
	Exp                       int64 `json:"exp,omitempty"` // unix seconds
	StartVideoOff             bool  `json:"start_video_off"`
	StartAudioOff             bool  `json:"start_audio_off"`
	EnableScreenshare         bool  `json:"enable_screenshare"`
	EnableVideoProcessingUI   bool  `json:"enable_video_processing_ui"`
	EnableNoiseCancellationUI bool  `json:"enable_noise_cancellation_ui"`
	EnableNetworkUI           bool  `json:"enable_network_ui"`
	EnableChat                bool  `json:"enable_chat"`
	EnableKnocking            bool  `json:"enable_knocking"`
	EnablePrejoinUI           bool  `json:"enable_prejoin_ui"`
}

// ExpiresAt converts the unix expiry into a time. Zero when no expiry is set.
func (c RoomConfig) ExpiresAt() time.Time {
	if c.Exp == 0 {
		return time.Time{}
	}
	return time.Unix(c.Exp, 0)
}
