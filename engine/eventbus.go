package engine

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"goalconnect/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

const (
	defaultQueueSize = 512
	defaultWorkers   = 4
)

type subscription struct {
	id int64
	fn func(context.Context, core.Event)
}

// BusOption tunes an EventBus.
type BusOption func(*EventBus)

// WithWorkers sets the number of async shards.
func WithWorkers(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize sets the per-shard queue capacity.
func WithQueueSize(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithBusLogger sets the logger for dropped events and handler panics.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(e *EventBus) {
		if l != nil {
			e.logger = l
		}
	}
}

// EventBus provides thread-safe pub/sub with sync and async dispatch.
// Handlers run in registration order. In async mode events are sharded by
// user, so one user's events are delivered in publish order.
type EventBus struct {
	mode      DispatchMode
	mu        sync.RWMutex
	subs      map[core.EventType][]subscription
	nextID    int64
	closed    bool
	queues    []chan core.Event
	workers   int
	queueSize int
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *slog.Logger
}

func NewEventBus(mode DispatchMode, opts ...BusOption) *EventBus {
	eb := &EventBus{
		mode:      mode,
		subs:      make(map[core.EventType][]subscription),
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(eb)
	}
	if mode == DispatchAsync {
		eb.startWorkers()
	}
	return eb
}

func (e *EventBus) startWorkers() {
	e.queues = make([]chan core.Event, e.workers)
	for i := range e.queues {
		q := make(chan core.Event, e.queueSize)
		e.queues[i] = q
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for ev := range q {
				e.dispatchSync(context.Background(), ev)
			}
		}()
	}
}

// Close stops accepting events, delivers what is already queued and waits for
// the async workers to exit.
func (e *EventBus) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		for _, q := range e.queues {
			close(q)
		}
		e.mu.Unlock()
		e.wg.Wait()
	})
}

// Subscribe registers a handler for an event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs[typ] = append(e.subs[typ], subscription{id: id, fn: handler})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.subs[typ]
		for i, s := range subs {
			if s.id == id {
				e.subs[typ] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish sends an event to subscribers. Events published after Close are
// dropped.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode != DispatchAsync {
		e.dispatchSync(ctx, ev)
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("event bus closed, dropping event", "type", ev.Type, "user_id", ev.UserID)
		return
	}
	select {
	case e.queues[e.shard(ev.UserID)] <- ev:
	default:
		// queue full: drop to preserve latency
		e.logger.Warn("event bus queue full, dropping event", "type", ev.Type, "user_id", ev.UserID)
	}
}

func (e *EventBus) shard(user core.UserID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(user))
	return int(h.Sum32() % uint32(len(e.queues)))
}

func (e *EventBus) dispatchSync(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	// copy to avoid holding lock during callbacks
	subs := append([]subscription(nil), e.subs[ev.Type]...)
	e.mu.RUnlock()
	for _, s := range subs {
		e.call(ctx, s.fn, ev)
	}
}

func (e *EventBus) call(ctx context.Context, fn func(context.Context, core.Event), ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked", "type", ev.Type, "user_id", ev.UserID, "panic", r)
		}
	}()
	fn(ctx, ev)
}
