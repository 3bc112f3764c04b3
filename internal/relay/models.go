package relay

import "live-relay/internal/mux"

// Webhook event types that change what clients see.
const (
	EventLiveStreamIdle   = "video.live_stream.idle"
	EventLiveStreamActive = "video.live_stream.active"
)

// StatusActive is the live stream status while a broadcaster is publishing.
const StatusActive = "active"

// PublicStreamView is the sanitized stream state sent to browsers.
type PublicStreamView struct {
	Status       string   `json:"status"`
	PlaybackID   string   `json:"playbackId"`
	RecentAssets []string `json:"recentAssets"`
}

// RecordingSummary is the trimmed recording shape returned by /recent.
type RecordingSummary struct {
	PlaybackID string `json:"playbackId"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"createdAt"`
}

// WebhookEvent is an inbound provider notification.
// This also matches the JSON payload posted to /mux-hook.
type WebhookEvent struct {
	Type string      `json:"type"`
	Data WebhookData `json:"data"`
}

// WebhookData carries the event's object state.
type WebhookData struct {
	ID             string   `json:"id,omitempty"`
	Status         string   `json:"status"`
	RecentAssetIDs []string `json:"recent_asset_ids,omitempty"`
}

// WebhookResult reports whether an applied event should reach clients.
type WebhookResult struct {
	Changed bool
	View    PublicStreamView
}

// persistedState is the part of the stored blob read back on restart.
type persistedState struct {
	ID string `json:"id"`
}

// Recording is an on-demand asset as returned by the provider.
type Recording = mux.Asset
