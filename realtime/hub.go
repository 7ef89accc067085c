package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"goalconnect/celebrate"
	"goalconnect/core"
)

type subscriber struct {
	ch   chan core.Event
	user core.UserID // empty receives every user's events
}

// Hub is a simple pub/sub for broadcasting events to channels.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Subscribe receives events for every user.
func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	return h.SubscribeUser("", buffer)
}

// SubscribeUser receives only events addressed to user.
func (h *Hub) SubscribeUser(user core.UserID, buffer int) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscriber{ch: ch, user: user}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	// sends are non-blocking, so holding the read lock keeps Unsubscribe
	// from closing a channel mid-send
	for _, s := range h.subs {
		if s.user != "" && s.user != ev.UserID {
			continue
		}
		select {
		case s.ch <- ev:
		default: /* drop if full */
		}
	}
}

// Celebrate implements celebrate.Sink by pushing the celebration and its
// presentation effect to connected clients.
func (h *Hub) Celebrate(ctx context.Context, c celebrate.Celebration) error {
	ev := core.NewCelebration(c.UserID, c.Reason)
	ev.Time = c.Time
	ev.Metadata = map[string]any{
		"sound":  c.Effect.Sound,
		"haptic": c.Effect.Haptic,
		"toast":  c.Effect.Toast,
	}
	h.Broadcast(ctx, ev)
	return nil
}

var _ celebrate.Sink = (*Hub)(nil)

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
