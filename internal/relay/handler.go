package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"live-relay/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	webhookAck      = "Message Received"
	maxWebhookBytes = 1 << 20
)

// Handler exposes the relay's HTTP endpoints.
type Handler struct {
	svc         *Service
	broadcaster *Broadcaster
	log         *slog.Logger
	metrics     *metrics.Metrics

	// hookMu keeps apply and publish of one webhook together so updates
	// reach clients in the order webhooks were applied.
	hookMu sync.Mutex
}

// NewHandler returns a Handler that uses the given Service, Broadcaster, Logger,
// and optional Metrics. Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, b *Broadcaster, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, broadcaster: b, log: log, metrics: m}
}

// Routes registers the relay endpoints on r. The webhook is guarded by HTTP
// Basic auth against the given credential pair.
func (h *Handler) Routes(r chi.Router, webhookUser, webhookPassword string) {
	r.Get("/stream", h.GetStream)
	r.Get("/recent", h.GetRecent)
	r.Get("/ws", ServeWS(h.broadcaster, h.log))
	r.Get("/health", h.Health)
	r.With(middleware.BasicAuth("Authorization Required", map[string]string{
		webhookUser: webhookPassword,
	})).Post("/mux-hook", h.MuxHook)
}

// GetStream handles GET /stream.
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.CurrentView(r.Context())
	if err != nil {
		h.providerError(w, "get_live_stream", err)
		return
	}

	h.log.Debug("get stream", slog.String("stream_id", h.svc.StreamID()), slog.String("status", view.Status))
	writeJSON(w, http.StatusOK, view)
}

// GetRecent handles GET /recent.
func (h *Handler) GetRecent(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.RecentRecordings(r.Context())
	if err != nil {
		h.providerError(w, "get_asset", err)
		return
	}

	h.log.Debug("get recent recordings", slog.Int("count", len(recs)))
	writeJSON(w, http.StatusOK, recs)
}

// MuxHook handles POST /mux-hook. The sender always gets 200 once
// authenticated; bad payloads are logged and ignored.
func (h *Handler) MuxHook(w http.ResponseWriter, r *http.Request) {
	defer ackWebhook(w)

	var ev WebhookEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBytes)).Decode(&ev); err != nil {
		h.log.Warn("invalid webhook body", slog.String("error", err.Error()))
		h.countWebhook("")
		return
	}
	h.countWebhook(ev.Type)

	h.hookMu.Lock()
	defer h.hookMu.Unlock()

	res, err := h.svc.ApplyWebhookEvent(ev)
	if err != nil {
		h.log.Warn("webhook ignored",
			slog.String("event_type", ev.Type),
			slog.String("error", err.Error()))
		return
	}

	h.log.Info("mux hook",
		slog.String("event_type", ev.Type),
		slog.String("status", res.View.Status),
		slog.Bool("changed", res.Changed))

	if res.Changed {
		h.broadcaster.Publish(res.View)
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) providerError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrNotInitialized) {
		h.log.Error("request before initialization", slog.String("operation", op))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "stream not ready"})
		return
	}

	h.log.Error("provider call failed",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	if h.metrics != nil {
		h.metrics.IncProviderErrors(op)
	}
	writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream provider error"})
}

func (h *Handler) countWebhook(eventType string) {
	if h.metrics != nil {
		h.metrics.IncWebhooksReceived(eventType)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func ackWebhook(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(webhookAck))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
