package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"live-relay/internal/mux"

	"golang.org/x/sync/errgroup"
)

// Provider is the subset of the video platform API the relay depends on.
// *mux.Client satisfies it.
type Provider interface {
	CreateLiveStream(ctx context.Context) (*mux.LiveStream, error)
	GetLiveStream(ctx context.Context, id string) (*mux.LiveStream, error)
	GetAsset(ctx context.Context, id string) (*mux.Asset, error)
}

var (
	// ErrNotInitialized is returned when an operation runs before Initialize.
	ErrNotInitialized = errors.New("live stream not initialized")

	// ErrInvalidEvent is returned for webhook events missing type or status.
	ErrInvalidEvent = errors.New("invalid webhook event")
)

// Service owns the authoritative live stream record and reconciles it from
// provider reads and webhook pushes.
type Service struct {
	provider Provider
	store    StateStore
	log      *slog.Logger

	mu     sync.RWMutex
	stream *mux.LiveStream
	// generation counts applied webhooks; a refresh that started under an
	// older generation must not overwrite the record.
	generation uint64
}

// NewService returns a Service that reads the provider through provider and
// persists the stream identity in store. Initialize must be called before use.
func NewService(provider Provider, store StateStore, log *slog.Logger) *Service {
	return &Service{provider: provider, store: store, log: log}
}

// Initialize loads or creates the live stream. A persisted id is trusted and
// refreshed from the provider; without one a new stream is created and saved.
func (s *Service) Initialize(ctx context.Context) error {
	var ls *mux.LiveStream

	blob, err := s.store.Load()
	switch {
	case err == nil:
		var st persistedState
		if err := json.Unmarshal(blob, &st); err != nil {
			return fmt.Errorf("decode persisted state: %w", err)
		}
		if st.ID == "" {
			return errors.New("persisted state has no stream id")
		}
		s.log.Info("found an existing stream, fetching updated data", slog.String("stream_id", st.ID))
		ls, err = s.provider.GetLiveStream(ctx, st.ID)
		if err != nil {
			return fmt.Errorf("refresh persisted live stream: %w", err)
		}

	case errors.Is(err, ErrStateNotFound):
		s.log.Info("no stream found, creating a new one")
		ls, err = s.provider.CreateLiveStream(ctx)
		if err != nil {
			return fmt.Errorf("create live stream: %w", err)
		}
		s.persist(ls)

	default:
		return fmt.Errorf("load persisted state: %w", err)
	}

	if ls.ID == "" {
		return errors.New("provider returned a live stream without an id")
	}

	s.mu.Lock()
	s.stream = ls
	s.mu.Unlock()
	return nil
}

// persist saves the creation response. The in-memory record stays valid when
// this fails, so the error is only logged.
func (s *Service) persist(ls *mux.LiveStream) {
	blob, err := json.Marshal(ls)
	if err == nil {
		err = s.store.Save(blob)
	}
	if err != nil {
		s.log.Error("persist stream state failed",
			slog.String("stream_id", ls.ID),
			slog.String("error", err.Error()))
	}
}

// StreamID returns the authoritative live stream id.
func (s *Service) StreamID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stream == nil {
		return ""
	}
	return s.stream.ID
}

// StreamKey returns the publishing secret. It is meant for operator logs only.
func (s *Service) StreamKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stream == nil {
		return ""
	}
	return s.stream.StreamKey
}

// CurrentView refreshes the record from the provider and returns its projection.
// Provider failures are returned as is; there is no stale fallback.
func (s *Service) CurrentView(ctx context.Context) (PublicStreamView, error) {
	s.mu.RLock()
	if s.stream == nil {
		s.mu.RUnlock()
		return PublicStreamView{}, ErrNotInitialized
	}
	id := s.stream.ID
	gen := s.generation
	s.mu.RUnlock()

	fresh, err := s.provider.GetLiveStream(ctx, id)
	if err != nil {
		return PublicStreamView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation == gen {
		s.stream.Status = fresh.Status
		s.stream.PlaybackIDs = fresh.PlaybackIDs
		s.stream.RecentAssetIDs = fresh.RecentAssetIDs
	} else {
		s.log.Debug("discarding stale refresh, webhook applied meanwhile",
			slog.String("stream_id", id),
			slog.String("fetched_status", fresh.Status))
	}

	return publicView(s.stream), nil
}

// RecentRecordings fetches the newest recordings, most recent first, capped at
// MaxRecentRecordings. One failed fetch fails the whole call.
func (s *Service) RecentRecordings(ctx context.Context) ([]RecordingSummary, error) {
	s.mu.RLock()
	if s.stream == nil {
		s.mu.RUnlock()
		return nil, ErrNotInitialized
	}
	ids := recentRecordingIDs(s.stream.RecentAssetIDs, MaxRecentRecordings)
	s.mu.RUnlock()

	out := make([]RecordingSummary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			rec, err := s.provider.GetAsset(gctx, id)
			if err != nil {
				return err
			}
			out[i] = summarizeRecording(rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyWebhookEvent applies a provider notification to the record.
// The status is always taken from the event. An idle event also replaces the
// recent recording ids. Only idle and active events report Changed.
func (s *Service) ApplyWebhookEvent(ev WebhookEvent) (WebhookResult, error) {
	if ev.Type == "" || ev.Data.Status == "" {
		return WebhookResult{}, fmt.Errorf("%w: type=%q status=%q", ErrInvalidEvent, ev.Type, ev.Data.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return WebhookResult{}, ErrNotInitialized
	}

	s.stream.Status = ev.Data.Status
	if ev.Type == EventLiveStreamIdle {
		s.stream.RecentAssetIDs = cloneIDs(ev.Data.RecentAssetIDs)
	}
	s.generation++

	return WebhookResult{
		Changed: notifiesClients(ev.Type),
		View:    publicView(s.stream),
	}, nil
}

func notifiesClients(eventType string) bool {
	return eventType == EventLiveStreamIdle || eventType == EventLiveStreamActive
}
