package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"live-relay/internal/mux"
	"live-relay/internal/platform/logger"
)

// fakeProvider is an in-memory Provider that records calls.
type fakeProvider struct {
	mu sync.Mutex

	created   *mux.LiveStream
	createErr error
	streams   map[string]*mux.LiveStream
	getErr    error
	assets    map[string]*mux.Asset

	createCalls int
	getCalls    []string
	assetCalls  []string

	// beforeGetReturn runs inside GetLiveStream after the lookup, before return.
	beforeGetReturn func()
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		created: &mux.LiveStream{
			ID:          "ls-new",
			Status:      "idle",
			StreamKey:   "secret-key",
			PlaybackIDs: []mux.PlaybackID{{ID: "pb-new", Policy: "public"}},
		},
		streams: make(map[string]*mux.LiveStream),
		assets:  make(map[string]*mux.Asset),
	}
}

func (p *fakeProvider) CreateLiveStream(ctx context.Context) (*mux.LiveStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createErr != nil {
		return nil, p.createErr
	}
	ls := *p.created
	p.streams[ls.ID] = &ls
	out := ls
	return &out, nil
}

func (p *fakeProvider) GetLiveStream(ctx context.Context, id string) (*mux.LiveStream, error) {
	p.mu.Lock()
	p.getCalls = append(p.getCalls, id)
	err := p.getErr
	ls, ok := p.streams[id]
	var out mux.LiveStream
	if ok {
		out = *ls
	}
	hook := p.beforeGetReturn
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, mux.ErrNotFound
	}
	if hook != nil {
		hook()
	}
	return &out, nil
}

func (p *fakeProvider) GetAsset(ctx context.Context, id string) (*mux.Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assetCalls = append(p.assetCalls, id)
	a, ok := p.assets[id]
	if !ok {
		return nil, mux.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (p *fakeProvider) addAsset(id string, createdAt int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assets[id] = &mux.Asset{
		ID:          id,
		Status:      "ready",
		PlaybackIDs: []mux.PlaybackID{{ID: "pb-" + id}},
		CreatedAt:   mux.Timestamp(createdAt),
	}
}

func newTestService(t *testing.T, p *fakeProvider) *Service {
	t.Helper()
	svc := NewService(p, NewInMemoryStore(), logger.Discard())
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return svc
}

func TestService_Initialize_creates_and_saves_once(t *testing.T) {
	p := newFakeProvider()
	store := NewInMemoryStore()
	svc := NewService(p, store, logger.Discard())

	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if p.createCalls != 1 {
		t.Errorf("expected 1 create call, got %d", p.createCalls)
	}
	if store.SaveCount() != 1 {
		t.Errorf("expected 1 save, got %d", store.SaveCount())
	}
	if svc.StreamID() != "ls-new" {
		t.Errorf("expected stream id ls-new, got %q", svc.StreamID())
	}

	blob, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var st persistedState
	if err := json.Unmarshal(blob, &st); err != nil || st.ID != "ls-new" {
		t.Errorf("persisted state: id=%q err=%v", st.ID, err)
	}
}

func TestService_Initialize_rehydrates_persisted_id(t *testing.T) {
	p := newFakeProvider()
	p.streams["X"] = &mux.LiveStream{ID: "X", Status: "active", PlaybackIDs: []mux.PlaybackID{{ID: "pbx"}}}
	store := NewInMemoryStore()
	_ = store.Save([]byte(`{"id":"X"}`))

	svc := NewService(p, store, logger.Discard())
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if p.createCalls != 0 {
		t.Errorf("create must not be called, got %d calls", p.createCalls)
	}
	if len(p.getCalls) != 1 || p.getCalls[0] != "X" {
		t.Errorf("expected one get for X, got %v", p.getCalls)
	}
	if svc.StreamID() != "X" {
		t.Errorf("expected stream id X, got %q", svc.StreamID())
	}
	if store.SaveCount() != 1 {
		t.Errorf("rehydration must not save again, got %d saves", store.SaveCount())
	}
}

func TestService_Initialize_refresh_failure_is_fatal(t *testing.T) {
	p := newFakeProvider()
	store := NewInMemoryStore()
	_ = store.Save([]byte(`{"id":"gone"}`))

	svc := NewService(p, store, logger.Discard())
	err := svc.Initialize(context.Background())
	if !errors.Is(err, mux.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if p.createCalls != 0 {
		t.Error("refresh failure must not fall back to create")
	}
}

func TestService_Initialize_missing_credentials(t *testing.T) {
	p := newFakeProvider()
	p.createErr = mux.ErrMissingCredentials
	store := NewInMemoryStore()

	svc := NewService(p, store, logger.Discard())
	err := svc.Initialize(context.Background())
	if !errors.Is(err, mux.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if store.SaveCount() != 0 {
		t.Error("nothing should be saved when creation fails")
	}
}

func TestService_Initialize_malformed_state(t *testing.T) {
	for name, blob := range map[string]string{
		"not_json": "{",
		"no_id":    `{"status":"idle"}`,
	} {
		t.Run(name, func(t *testing.T) {
			p := newFakeProvider()
			store := NewInMemoryStore()
			_ = store.Save([]byte(blob))

			svc := NewService(p, store, logger.Discard())
			if err := svc.Initialize(context.Background()); err == nil {
				t.Error("expected error for malformed persisted state")
			}
			if p.createCalls != 0 {
				t.Error("malformed state must not trigger create")
			}
		})
	}
}

type failingSaveStore struct{ *InMemoryStore }

func (failingSaveStore) Save([]byte) error { return errors.New("disk full") }

func TestService_Initialize_save_failure_continues(t *testing.T) {
	p := newFakeProvider()
	svc := NewService(p, failingSaveStore{NewInMemoryStore()}, logger.Discard())

	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("save failure should not fail startup: %v", err)
	}
	if svc.StreamID() != "ls-new" {
		t.Errorf("expected in-memory record, got %q", svc.StreamID())
	}
}

func TestService_not_initialized(t *testing.T) {
	svc := NewService(newFakeProvider(), NewInMemoryStore(), logger.Discard())

	if _, err := svc.CurrentView(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CurrentView: expected ErrNotInitialized, got %v", err)
	}
	if _, err := svc.RecentRecordings(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("RecentRecordings: expected ErrNotInitialized, got %v", err)
	}
	ev := WebhookEvent{Type: EventLiveStreamActive, Data: WebhookData{Status: "active"}}
	if _, err := svc.ApplyWebhookEvent(ev); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ApplyWebhookEvent: expected ErrNotInitialized, got %v", err)
	}
}

func TestService_CurrentView_refreshes_from_provider(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(t, p)

	p.mu.Lock()
	p.streams["ls-new"].Status = "active"
	p.streams["ls-new"].RecentAssetIDs = []string{"a1"}
	p.mu.Unlock()

	view, err := svc.CurrentView(context.Background())
	if err != nil {
		t.Fatalf("CurrentView: %v", err)
	}
	if view.Status != "active" || view.PlaybackID != "pb-new" {
		t.Errorf("unexpected view: %+v", view)
	}
	if len(view.RecentAssets) != 1 || view.RecentAssets[0] != "a1" {
		t.Errorf("unexpected recent assets: %v", view.RecentAssets)
	}
}

func TestService_CurrentView_provider_error(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(t, p)
	p.getErr = &mux.APIError{StatusCode: 500}

	_, err := svc.CurrentView(context.Background())
	var apiErr *mux.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestService_CurrentView_stale_refresh_does_not_overwrite_webhook(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(t, p)

	// The provider still reports idle; a webhook lands while the fetch is in flight.
	p.beforeGetReturn = func() {
		_, err := svc.ApplyWebhookEvent(WebhookEvent{
			Type: EventLiveStreamActive,
			Data: WebhookData{Status: "active"},
		})
		if err != nil {
			t.Errorf("ApplyWebhookEvent: %v", err)
		}
	}

	view, err := svc.CurrentView(context.Background())
	if err != nil {
		t.Fatalf("CurrentView: %v", err)
	}
	if view.Status != "active" {
		t.Errorf("stale refresh overwrote webhook status: %+v", view)
	}
}

func TestService_ApplyWebhookEvent_active(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(t, p)
	_, _ = svc.ApplyWebhookEvent(WebhookEvent{
		Type: EventLiveStreamIdle,
		Data: WebhookData{Status: "idle", RecentAssetIDs: []string{"x"}},
	})

	res, err := svc.ApplyWebhookEvent(WebhookEvent{
		Type: EventLiveStreamActive,
		Data: WebhookData{Status: "active"},
	})
	if err != nil {
		t.Fatalf("ApplyWebhookEvent: %v", err)
	}
	if !res.Changed || res.View.Status != "active" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.View.RecentAssets) != 1 || res.View.RecentAssets[0] != "x" {
		t.Errorf("active event must leave recent assets unchanged, got %v", res.View.RecentAssets)
	}
}

func TestService_ApplyWebhookEvent_idle_replaces_recent(t *testing.T) {
	p := newFakeProvider()
	for i, id := range []string{"a", "b", "c"} {
		p.addAsset(id, int64(100+i))
	}
	svc := newTestService(t, p)
	_, _ = svc.ApplyWebhookEvent(WebhookEvent{
		Type: EventLiveStreamIdle,
		Data: WebhookData{Status: "idle", RecentAssetIDs: []string{"old"}},
	})

	res, err := svc.ApplyWebhookEvent(WebhookEvent{
		Type: EventLiveStreamIdle,
		Data: WebhookData{Status: "idle", RecentAssetIDs: []string{"a", "b", "c"}},
	})
	if err != nil {
		t.Fatalf("ApplyWebhookEvent: %v", err)
	}
	if !res.Changed || res.View.Status != "idle" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.View.RecentAssets) != 3 || res.View.RecentAssets[0] != "a" {
		t.Errorf("idle event should replace recent assets wholesale, got %v", res.View.RecentAssets)
	}

	recs, err := svc.RecentRecordings(context.Background())
	if err != nil {
		t.Fatalf("RecentRecordings: %v", err)
	}
	want := []string{"pb-c", "pb-b", "pb-a"}
	if len(recs) != len(want) {
		t.Fatalf("expected %d recordings, got %d", len(want), len(recs))
	}
	for i, w := range want {
		if recs[i].PlaybackID != w {
			t.Errorf("recording %d: got %q want %q", i, recs[i].PlaybackID, w)
		}
	}
	if recs[0].CreatedAt != 102 || recs[0].Status != "ready" {
		t.Errorf("unexpected summary: %+v", recs[0])
	}

	fetched := append([]string(nil), p.assetCalls...)
	sort.Strings(fetched)
	if len(fetched) != 3 || fetched[0] != "a" || fetched[2] != "c" {
		t.Errorf("unexpected fetched ids: %v", p.assetCalls)
	}
}

func TestService_ApplyWebhookEvent_unknown_type(t *testing.T) {
	p := newFakeProvider()
	p.created.Status = "active"
	svc := newTestService(t, p)

	res, err := svc.ApplyWebhookEvent(WebhookEvent{
		Type: "video.unknown",
		Data: WebhookData{Status: "idle", RecentAssetIDs: []string{"z"}},
	})
	if err != nil {
		t.Fatalf("ApplyWebhookEvent: %v", err)
	}
	if res.Changed {
		t.Error("unknown event type must not report a change")
	}
	if res.View.Status != "idle" {
		t.Errorf("status should still be updated, got %q", res.View.Status)
	}
	if len(res.View.RecentAssets) != 0 {
		t.Errorf("unknown event must not touch recent assets, got %v", res.View.RecentAssets)
	}
}

func TestService_ApplyWebhookEvent_invalid(t *testing.T) {
	p := newFakeProvider()
	svc := newTestService(t, p)

	for name, ev := range map[string]WebhookEvent{
		"missing_type":   {Data: WebhookData{Status: "active"}},
		"missing_status": {Type: EventLiveStreamActive},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ApplyWebhookEvent(ev)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}

	svc.mu.RLock()
	status := svc.stream.Status
	svc.mu.RUnlock()
	if status != "idle" {
		t.Errorf("invalid events must not mutate status, got %q", status)
	}
}

func TestService_RecentRecordings_caps_at_five(t *testing.T) {
	p := newFakeProvider()
	ids := []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7"}
	for i, id := range ids {
		p.addAsset(id, int64(i))
	}
	svc := newTestService(t, p)
	_, _ = svc.ApplyWebhookEvent(WebhookEvent{
		Type: EventLiveStreamIdle,
		Data: WebhookData{Status: "idle", RecentAssetIDs: ids},
	})

	recs, err := svc.RecentRecordings(context.Background())
	if err != nil {
		t.Fatalf("RecentRecordings: %v", err)
	}
	if len(recs) != MaxRecentRecordings {
		t.Fatalf("expected %d recordings, got %d", MaxRecentRecordings, len(recs))
	}
	if recs[0].PlaybackID != "pb-r7" || recs[4].PlaybackID != "pb-r3" {
		t.Errorf("expected r7..r3, got first=%q last=%q", recs[0].PlaybackID, recs[4].PlaybackID)
	}

	// Repeated calls see the same order; the record is never reversed in place.
	again, err := svc.RecentRecordings(context.Background())
	if err != nil {
		t.Fatalf("RecentRecordings: %v", err)
	}
	if again[0].PlaybackID != "pb-r7" {
		t.Errorf("second call changed order: %q", again[0].PlaybackID)
	}
}

func TestService_RecentRecordings_all_or_nothing(t *testing.T) {
	p := newFakeProvider()
	p.addAsset("ok", 1)
	svc := newTestService(t, p)
	_, _ = svc.ApplyWebhookEvent(WebhookEvent{
		Type: EventLiveStreamIdle,
		Data: WebhookData{Status: "idle", RecentAssetIDs: []string{"ok", "missing"}},
	})

	recs, err := svc.RecentRecordings(context.Background())
	if !errors.Is(err, mux.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if recs != nil {
		t.Errorf("expected no partial results, got %v", recs)
	}
}

func TestService_RecentRecordings_empty(t *testing.T) {
	svc := newTestService(t, newFakeProvider())

	recs, err := svc.RecentRecordings(context.Background())
	if err != nil {
		t.Fatalf("RecentRecordings: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", recs)
	}
}
