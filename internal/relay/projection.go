package relay

import "live-relay/internal/mux"

// MaxRecentRecordings caps the number of recordings served by /recent.
const MaxRecentRecordings = 5

// publicView projects a live stream into the view sent to browsers.
// It is the only path from the authoritative record to the outside, so
// anything not copied here (stream key included) never leaves the process.
func publicView(ls *mux.LiveStream) PublicStreamView {
	return PublicStreamView{
		Status:       ls.Status,
		PlaybackID:   mux.FirstPlaybackID(ls.PlaybackIDs),
		RecentAssets: cloneIDs(ls.RecentAssetIDs),
	}
}

// recentRecordingIDs returns at most limit ids, most recent first.
// ids is ordered most-recent-last and is not modified.
func recentRecordingIDs(ids []string, limit int) []string {
	if limit <= 0 || len(ids) == 0 {
		return []string{}
	}
	n := len(ids)
	if n > limit {
		n = limit
	}
	out := make([]string, 0, n)
	for i := len(ids) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, ids[i])
	}
	return out
}

// summarizeRecording trims a recording to what browsers need.
func summarizeRecording(r *Recording) RecordingSummary {
	return RecordingSummary{
		PlaybackID: mux.FirstPlaybackID(r.PlaybackIDs),
		Status:     r.Status,
		CreatedAt:  int64(r.CreatedAt),
	}
}

// cloneIDs copies ids so callers never share the record's backing array.
// A nil input yields an empty, non-nil slice to keep JSON output as [].
func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
