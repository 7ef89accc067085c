// Package gamify assembles an engine.GamifyService from options.
package gamify

import (
	"context"
	"log/slog"

	"goalconnect/adapters/memory"
	"goalconnect/analytics"
	"goalconnect/celebrate"
	"goalconnect/core"
	"goalconnect/engine"
	"goalconnect/leaderboard"
	"goalconnect/realtime"
)

// Option configures the Gamify service builder.
type Option func(*config)

type config struct {
	storage    engine.Storage
	mode       engine.DispatchMode
	rules      engine.RuleEngine
	hub        *realtime.Hub
	table      *core.XPTable
	dispatcher *celebrate.Dispatcher
	board      leaderboard.Board
	hooks      []analytics.Hook
	logger     *slog.Logger
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithRuleEngine sets the rule engine.
func WithRuleEngine(r engine.RuleEngine) Option { return func(c *config) { c.rules = r } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive engine events and celebrations.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithXPTable replaces the default XP table.
func WithXPTable(t *core.XPTable) Option { return func(c *config) { c.table = t } }

// WithDispatcher routes celebration events through d.
func WithDispatcher(d *celebrate.Dispatcher) Option { return func(c *config) { c.dispatcher = d } }

// WithLeaderboard keeps board updated with XP totals.
func WithLeaderboard(b leaderboard.Board) Option { return func(c *config) { c.board = b } }

// WithAnalytics feeds every engine event to hooks.
func WithAnalytics(hooks ...analytics.Hook) Option {
	return func(c *config) { c.hooks = append(c.hooks, hooks...) }
}

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// New builds a configured GamifyService. If not provided, defaults are used:
//   - storage: in-memory
//   - rules: DefaultRuleEngine
//   - dispatch: async
//   - XP table: core.DefaultXPTable
func New(opts ...Option) *engine.GamifyService {
	cfg := &config{mode: engine.DispatchAsync, rules: engine.DefaultRuleEngine()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = memory.New()
	}
	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewGamifyService(cfg.storage, bus, cfg.rules, core.NewScorer(cfg.table)).WithLogger(cfg.logger)

	if cfg.hub != nil {
		broadcast := func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) }
		bus.Subscribe(core.EventPointsAdded, broadcast)
		bus.Subscribe(core.EventLevelUp, broadcast)
		bus.Subscribe(core.EventRewardClaimed, broadcast)
		if cfg.dispatcher == nil {
			cfg.dispatcher = celebrate.New(celebrate.WithLogger(cfg.logger))
		}
		cfg.dispatcher.AddSink(cfg.hub)
	}
	if cfg.dispatcher != nil {
		cfg.dispatcher.Attach(bus)
	}
	if cfg.board != nil {
		leaderboard.NewTracker(cfg.board, core.MetricXP).Attach(bus)
	}
	if len(cfg.hooks) > 0 {
		analytics.NewBridge(cfg.hooks...).Attach(bus)
	}
	return svc
}
