package realtime

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"drainwatch/internal/logger"
	"drainwatch/internal/metrics"
	"drainwatch/internal/pipeline"
)

// event is the wire frame pushed to subscribers.
type event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans committed results out to every connected subscriber. Delivery is
// best-effort: a slow subscriber is dropped, never waited on, and the
// ingestion path never blocks on the hub.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// done is closed when Run exits; pumps select against it so a client
	// disconnecting after shutdown does not block on an unserviced channel
	done chan struct{}

	// snapshot primes a newly connected subscriber from the cache
	snapshot func() []*pipeline.Result

	count atomic.Int32
}

func NewHub(snapshot func() []*pipeline.Result) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		snapshot:   snapshot,
	}
}

// Count reports the number of connected subscribers.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// Publish queues one committed result for broadcast. Fire-and-forget: if
// the hub's queue is full the event is dropped rather than stalling the
// caller.
func (h *Hub) Publish(res *pipeline.Result) {
	frame, err := json.Marshal(event{Type: "reading", Payload: res})
	if err != nil {
		log := logger.WithComponent("realtime")
		log.Error().Err(err).Msg("marshal reading event")
		return
	}
	select {
	case h.broadcast <- frame:
		metrics.RealtimeEventsTotal.WithLabelValues("reading").Inc()
	default:
		log := logger.WithComponent("realtime")
		log.Warn().Msg("broadcast queue full, dropping event")
	}
}

// Run owns the client set until ctx is cancelled, then closes every
// subscriber connection.
func (h *Hub) Run(ctx context.Context) {
	log := logger.WithComponent("realtime")
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int32(len(h.clients)))
			metrics.RealtimeSubscribers.Set(float64(len(h.clients)))
			log.Info().Str("remote_addr", client.conn.RemoteAddr().String()).Msg("subscriber connected")
			h.sendSnapshot(client)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Store(int32(len(h.clients)))
				metrics.RealtimeSubscribers.Set(float64(len(h.clients)))
				log.Info().Str("remote_addr", client.conn.RemoteAddr().String()).Msg("subscriber disconnected")
			}

		case frame := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// subscriber cannot keep up; drop it rather than block
					delete(h.clients, client)
					close(client.send)
					metrics.RealtimeDroppedSubscribers.Inc()
					log.Warn().Str("remote_addr", client.conn.RemoteAddr().String()).Msg("dropping slow subscriber")
				}
			}
			h.count.Store(int32(len(h.clients)))
			metrics.RealtimeSubscribers.Set(float64(len(h.clients)))

		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.count.Store(0)
			metrics.RealtimeSubscribers.Set(0)
			log.Info().Msg("hub stopped")
			return
		}
	}
}

// sendSnapshot hands a new subscriber the cached catch-up window before any
// live events.
func (h *Hub) sendSnapshot(client *Client) {
	if h.snapshot == nil {
		return
	}
	entries := h.snapshot()
	frame, err := json.Marshal(event{Type: "snapshot", Payload: entries})
	if err != nil {
		log := logger.WithComponent("realtime")
		log.Error().Err(err).Msg("marshal snapshot event")
		return
	}
	select {
	case client.send <- frame:
		metrics.RealtimeEventsTotal.WithLabelValues("snapshot").Inc()
	default:
	}
}
