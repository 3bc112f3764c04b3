package mux

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PlaybackID is a viewer-facing identifier used to build media URLs.
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy,omitempty"`
}

// LiveStream is the provider's live stream resource.
type LiveStream struct {
	ID              string       `json:"id"`
	Status          string       `json:"status"`
	StreamKey       string       `json:"stream_key,omitempty"`
	PlaybackIDs     []PlaybackID `json:"playback_ids,omitempty"`
	RecentAssetIDs  []string     `json:"recent_asset_ids,omitempty"`
	ReconnectWindow float64      `json:"reconnect_window,omitempty"`
	CreatedAt       Timestamp    `json:"created_at,omitempty"`
}

// Asset is an on-demand recording produced from a live stream.
type Asset struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	PlaybackIDs  []PlaybackID `json:"playback_ids,omitempty"`
	LiveStreamID string       `json:"live_stream_id,omitempty"`
	CreatedAt    Timestamp    `json:"created_at"`
}

// FirstPlaybackID returns the canonical playback id, or "" when none exist.
func FirstPlaybackID(ids []PlaybackID) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0].ID
}

// Timestamp is an epoch-seconds value. The API encodes it as a decimal
// string; plain JSON numbers are accepted too.
type Timestamp int64

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*t = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		*t = Timestamp(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	*t = Timestamp(n)
	return nil
}

// MarshalJSON encodes the timestamp the way the API does, as a string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(t), 10))
}

// createLiveStreamRequest is the body sent to create a live stream.
type createLiveStreamRequest struct {
	PlaybackPolicy   []string         `json:"playback_policy"`
	ReconnectWindow  float64          `json:"reconnect_window"`
	NewAssetSettings newAssetSettings `json:"new_asset_settings"`
}

type newAssetSettings struct {
	PlaybackPolicy []string `json:"playback_policy"`
}

// envelope wraps every successful API response.
type envelope[T any] struct {
	Data T `json:"data"`
}

// errorBody is the API's error response shape.
type errorBody struct {
	Error struct {
		Type     string   `json:"type"`
		Messages []string `json:"messages"`
	} `json:"error"`
}
