package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"live-relay/internal/platform/metrics"

	"github.com/google/uuid"
)

// EventStreamUpdate is the push channel event name for stream changes.
const EventStreamUpdate = "stream_update"

// subscriberBuffer is the number of undelivered messages a subscriber may
// hold before it is dropped.
const subscriberBuffer = 16

// PushMessage is the envelope written to push channel clients.
type PushMessage struct {
	Event string           `json:"event"`
	Data  PublicStreamView `json:"data"`
}

// Subscriber is one connected push channel client.
type Subscriber struct {
	ID   string
	send chan []byte
}

// Messages returns the encoded messages for this subscriber. The channel is
// closed when the subscriber is removed from the broadcaster.
func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

// Broadcaster fans stream updates out to every currently subscribed client.
// Clients that subscribe after a Publish never see that message.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[*Subscriber]struct{}
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewBroadcaster returns an empty Broadcaster. Metrics may be nil.
func NewBroadcaster(log *slog.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		clients: make(map[*Subscriber]struct{}),
		log:     log,
		metrics: m,
	}
}

// Subscribe registers a new client.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:   uuid.NewString(),
		send: make(chan []byte, subscriberBuffer),
	}

	b.mu.Lock()
	b.clients[sub] = struct{}{}
	n := len(b.clients)
	b.mu.Unlock()

	b.log.Debug("client subscribed", slog.String("client_id", sub.ID), slog.Int("clients", n))
	b.setClientsGauge(n)
	return sub
}

// Unsubscribe removes a client and closes its channel. Safe to call twice.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.clients[sub]
	if ok {
		delete(b.clients, sub)
		close(sub.send)
	}
	n := len(b.clients)
	b.mu.Unlock()

	if ok {
		b.log.Debug("client unsubscribed", slog.String("client_id", sub.ID), slog.Int("clients", n))
		b.setClientsGauge(n)
	}
}

// ClientCount returns the number of subscribed clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Publish sends view as a stream_update to every client subscribed at call
// time and returns how many received it. A client whose buffer is full is
// dropped rather than allowed to stall the others.
func (b *Broadcaster) Publish(view PublicStreamView) int {
	payload, err := json.Marshal(PushMessage{Event: EventStreamUpdate, Data: view})
	if err != nil {
		b.log.Error("encode stream update failed", slog.String("error", err.Error()))
		return 0
	}

	b.mu.Lock()
	delivered := 0
	for sub := range b.clients {
		select {
		case sub.send <- payload:
			delivered++
		default:
			delete(b.clients, sub)
			close(sub.send)
			b.log.Warn("dropping slow client", slog.String("client_id", sub.ID))
		}
	}
	n := len(b.clients)
	b.mu.Unlock()

	b.log.Info("stream update published",
		slog.String("status", view.Status),
		slog.Int("clients", delivered))
	if b.metrics != nil {
		b.metrics.IncBroadcasts()
	}
	b.setClientsGauge(n)
	return delivered
}

func (b *Broadcaster) setClientsGauge(n int) {
	if b.metrics != nil {
		b.metrics.SetConnectedClients(n)
	}
}
