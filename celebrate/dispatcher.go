// Package celebrate forwards celebration triggers from the engine to
// presentation sinks (websocket clients, webhooks, toasts).
package celebrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"goalconnect/core"
)

// DefaultCooldown is the minimum gap between two reasonless celebrations
// for the same user.
const DefaultCooldown = 30 * time.Second

// Effect describes how a client should present a celebration.
type Effect struct {
	Sound  string `json:"sound"`
	Haptic bool   `json:"haptic"`
	Toast  string `json:"toast"`
}

// Celebration is what sinks receive.
type Celebration struct {
	UserID core.UserID            `json:"user_id"`
	Reason core.CelebrationReason `json:"reason,omitempty"`
	Effect Effect                 `json:"effect"`
	Time   time.Time              `json:"time"`
}

// Sink receives forwarded celebrations.
type Sink interface {
	Celebrate(ctx context.Context, c Celebration) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, c Celebration) error

func (f SinkFunc) Celebrate(ctx context.Context, c Celebration) error { return f(ctx, c) }

var defaultEffects = map[core.CelebrationReason]Effect{
	core.ReasonStreakMilestone: {Sound: "fanfare", Haptic: true, Toast: "Streak milestone reached"},
	core.ReasonGoalCompleted:   {Sound: "summit", Haptic: true, Toast: "Goal complete"},
	core.ReasonAllHabitsToday:  {Sound: "chord", Haptic: true, Toast: "Every habit done today"},
	core.ReasonLevelUp:         {Sound: "levelup", Haptic: true, Toast: "Level up"},
	core.ReasonRewardClaimed:   {Sound: "unlock", Haptic: false, Toast: "Reward unlocked"},
	"":                         {Sound: "chime", Haptic: false, Toast: "Nice work"},
}

// EffectFor returns the presentation for reason.
func EffectFor(reason core.CelebrationReason) Effect {
	return defaultEffects[reason]
}

// Dispatcher fans celebrations out to sinks. Reasoned celebrations are
// always forwarded; the legacy reasonless path is throttled per user.
type Dispatcher struct {
	mu       sync.Mutex
	sinks    []Sink
	last     map[core.UserID]time.Time
	sweepAt  int
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithCooldown overrides DefaultCooldown. Zero disables throttling.
func WithCooldown(c time.Duration) Option {
	return func(d *Dispatcher) {
		if c >= 0 {
			d.cooldown = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithSinks registers sinks at construction.
func WithSinks(sinks ...Sink) Option {
	return func(d *Dispatcher) { d.sinks = append(d.sinks, sinks...) }
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		last:     map[core.UserID]time.Time{},
		sweepAt:  minSweep,
		cooldown: DefaultCooldown,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// AddSink registers a sink after construction.
func (d *Dispatcher) AddSink(s Sink) {
	if s == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Dispatch forwards one celebration. It reports false when a reasonless
// celebration was suppressed by the cooldown.
func (d *Dispatcher) Dispatch(ctx context.Context, user core.UserID, reason core.CelebrationReason) (bool, error) {
	if !reason.Valid() {
		return false, fmt.Errorf("unknown celebration reason %q", reason)
	}
	now := d.now()

	d.mu.Lock()
	if reason == "" && d.cooldown > 0 {
		if prev, ok := d.last[user]; ok && now.Sub(prev) < d.cooldown {
			d.mu.Unlock()
			d.logger.Debug("celebration suppressed", "user_id", user, "since_last", now.Sub(prev))
			return false, nil
		}
		d.last[user] = now
		if len(d.last) >= d.sweepAt {
			d.forgetLocked(now)
			d.sweepAt = max(minSweep, 2*len(d.last))
		}
	}
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.Unlock()

	c := Celebration{UserID: user, Reason: reason, Effect: EffectFor(reason), Time: now.UTC()}
	var errs []error
	for _, s := range sinks {
		if err := s.Celebrate(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		d.logger.Warn("celebration sink failed", "user_id", user, "reason", reason, "error", err)
		return true, err
	}
	return true, nil
}

// DispatchAll forwards reasons in order, as produced by a scoring result.
func (d *Dispatcher) DispatchAll(ctx context.Context, user core.UserID, reasons []core.CelebrationReason) error {
	var errs []error
	for _, r := range reasons {
		if _, err := d.Dispatch(ctx, user, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleEvent is an event bus handler for core.EventCelebration.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev core.Event) {
	if ev.Type != core.EventCelebration {
		return
	}
	_, _ = d.Dispatch(ctx, ev.UserID, ev.Reason)
}

// Subscriber is satisfied by engine.GamifyService and engine.EventBus.
type Subscriber interface {
	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
}

// Attach subscribes the dispatcher to celebration events and returns the
// unsubscribe function.
func (d *Dispatcher) Attach(s Subscriber) func() {
	return s.Subscribe(core.EventCelebration, d.HandleEvent)
}

// minSweep is the cooldown map size that first triggers an inline sweep.
// Later sweeps run once the map doubles from what the previous sweep left.
const minSweep = 1024

// Forget drops cooldown state older than the cooldown window.
func (d *Dispatcher) Forget() {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forgetLocked(now)
}

func (d *Dispatcher) forgetLocked(now time.Time) {
	for u, t := range d.last {
		if now.Sub(t) >= d.cooldown {
			delete(d.last, u)
		}
	}
}
