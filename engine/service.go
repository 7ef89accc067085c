package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"goalconnect/core"
)

// ActionOutcome is the persisted result of a scored action.
type ActionOutcome struct {
	core.ScoringResult
	Total int64 `json:"total"`
	Level int64 `json:"level"`
}

// GamifyService wires storage, event bus, rules and the scorer into a cohesive API.
type GamifyService struct {
	storage Storage
	bus     *EventBus
	rules   RuleEngine
	scorer  core.Scorer
	logger  *slog.Logger
}

func NewGamifyService(storage Storage, bus *EventBus, rules RuleEngine, scorer core.Scorer) *GamifyService {
	if storage == nil || bus == nil || rules == nil {
		panic("NewGamifyService requires non-nil storage, bus, and rules")
	}
	if scorer.Table() == nil {
		scorer = core.NewScorer(nil)
	}
	return &GamifyService{storage: storage, bus: bus, rules: rules, scorer: scorer, logger: slog.Default()}
}

// WithLogger replaces the service logger.
func (g *GamifyService) WithLogger(l *slog.Logger) *GamifyService {
	if l != nil {
		g.logger = l
	}
	return g
}

func DefaultRuleEngine() RuleEngine {
	return &simpleRuleEngine{rules: []core.Rule{
		core.LevelUpRule{Metric: core.MetricXP},
		core.RewardCelebrationRule{},
	}}
}

// Subscribe convenience method.
func (g *GamifyService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return g.bus.Subscribe(typ, handler)
}

func (g *GamifyService) Publish(ctx context.Context, ev core.Event) {
	g.bus.Publish(ctx, ev)
}

// Scorer returns the scorer backing the service.
func (g *GamifyService) Scorer() core.Scorer { return g.scorer }

// Score previews an action without persisting anything.
func (g *GamifyService) Score(req core.ScoringRequest) (core.ScoringResult, error) {
	return g.scorer.Score(req)
}

// RecordAction scores req, credits the delta as XP and publishes the
// resulting points, level and celebration events. A *core.ConfigLookupError
// from the scorer is returned unchanged and nothing is persisted.
func (g *GamifyService) RecordAction(ctx context.Context, user core.UserID, req core.ScoringRequest) (ActionOutcome, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return ActionOutcome{}, err
	}
	if len(req.Cups) > 0 && len(req.CupLevels) == 0 {
		st, err := g.storage.GetState(ctx, normalized)
		if err != nil {
			return ActionOutcome{}, fmt.Errorf("load cup levels: %w", err)
		}
		req.CupLevels = st.Cups
	}
	res, err := g.scorer.Score(req)
	if err != nil {
		return ActionOutcome{}, err
	}
	out := ActionOutcome{ScoringResult: res}

	if res.Delta > 0 {
		entry := core.NewLedgerEntry(normalized, req.Kind, res.Delta, res.Celebrations)
		total, err := g.storage.Credit(ctx, core.MetricXP, entry)
		if err != nil {
			return ActionOutcome{}, fmt.Errorf("credit %s: %w", req.Kind, err)
		}
		for _, d := range g.pointsAdded(ctx, normalized, core.MetricXP, req.Kind, res.Delta, total) {
			if d.Type == core.EventLevelUp {
				out.Celebrations = append(out.Celebrations, core.ReasonLevelUp)
			}
		}
	}

	state, err := g.storage.GetState(ctx, normalized)
	if err != nil {
		return ActionOutcome{}, fmt.Errorf("load state: %w", err)
	}
	out.Total = state.Points[core.MetricXP]
	out.Level = core.DefaultLevel(out.Total)

	for _, reason := range res.Celebrations {
		g.bus.Publish(ctx, core.NewCelebration(normalized, reason))
	}
	g.logger.Debug("action recorded",
		"user_id", normalized,
		"kind", req.Kind,
		"delta", res.Delta,
		"total", out.Total,
		"celebrations", len(out.Celebrations))
	return out, nil
}

// AddPoints applies a raw point adjustment outside the XP table.
func (g *GamifyService) AddPoints(ctx context.Context, user core.UserID, metric core.Metric, delta int64) (int64, error) {
	if delta == 0 {
		return 0, errors.New("delta cannot be zero")
	}
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return 0, err
	}
	total, _, err := g.addPoints(ctx, normalized, metric, "", delta)
	return total, err
}

func (g *GamifyService) addPoints(ctx context.Context, user core.UserID, metric core.Metric, action core.ActionKind, delta int64) (int64, []core.Event, error) {
	total, err := g.storage.AddPoints(ctx, user, metric, delta)
	if err != nil {
		return 0, nil, err
	}
	return total, g.pointsAdded(ctx, user, metric, action, delta, total), nil
}

// pointsAdded publishes a stored credit and runs the rules it triggers.
func (g *GamifyService) pointsAdded(ctx context.Context, user core.UserID, metric core.Metric, action core.ActionKind, delta, total int64) []core.Event {
	ev := core.NewPointsAdded(user, metric, action, delta, total)
	g.bus.Publish(ctx, ev)
	return g.applyRules(ctx, user, ev)
}

// ClaimReward unlocks a reward (background, costume) and celebrates it.
func (g *GamifyService) ClaimReward(ctx context.Context, user core.UserID, badge core.Badge) error {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return err
	}
	if err := core.ValidateBadgeID(badge); err != nil {
		return err
	}
	if err := g.storage.AwardBadge(ctx, normalized, badge); err != nil {
		return err
	}
	ev := core.NewRewardClaimed(normalized, badge)
	g.bus.Publish(ctx, ev)
	g.applyRules(ctx, normalized, ev)
	return nil
}

// Celebrate publishes a celebration with an optional reason. An empty reason
// is the legacy generic celebration that the dispatcher throttles.
func (g *GamifyService) Celebrate(ctx context.Context, user core.UserID, reason core.CelebrationReason) error {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return err
	}
	if !reason.Valid() {
		return fmt.Errorf("unknown celebration reason %q", reason)
	}
	g.bus.Publish(ctx, core.NewCelebration(normalized, reason))
	return nil
}

func (g *GamifyService) EvaluateRules(ctx context.Context, user core.UserID) error {
	state, err := g.GetState(ctx, user)
	if err != nil {
		return err
	}
	// no specific trigger; allow engines to infer
	g.publishDerived(ctx, g.rules.Evaluate(ctx, state, core.Event{UserID: state.UserID}))
	return nil
}

func (g *GamifyService) applyRules(ctx context.Context, user core.UserID, trigger core.Event) []core.Event {
	state, err := g.storage.GetState(ctx, user)
	if err != nil {
		g.logger.Warn("rule evaluation skipped", "user_id", user, "error", err)
		return nil
	}
	derived := g.rules.Evaluate(ctx, state, trigger)
	g.publishDerived(ctx, derived)
	return derived
}

func (g *GamifyService) publishDerived(ctx context.Context, derived []core.Event) {
	for _, d := range derived {
		if d.Type == core.EventLevelUp {
			if err := g.storage.SetLevel(ctx, d.UserID, d.Metric, d.Level); err != nil {
				g.logger.Warn("persist level failed", "user_id", d.UserID, "error", err)
			}
		}
		g.bus.Publish(ctx, d)
		if d.Type == core.EventLevelUp {
			g.bus.Publish(ctx, core.NewCelebration(d.UserID, core.ReasonLevelUp))
		}
	}
}

func (g *GamifyService) GetState(ctx context.Context, user core.UserID) (core.UserState, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserState{}, err
	}
	return g.storage.GetState(ctx, normalized)
}

// SetCupLevels stores the user's self-reported wellness levels.
func (g *GamifyService) SetCupLevels(ctx context.Context, user core.UserID, levels core.CupLevels) error {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return err
	}
	if err := core.ValidateCupLevels(levels); err != nil {
		return err
	}
	return g.storage.SetCupLevels(ctx, normalized, levels)
}

// Ledger lists the user's most recent point transactions.
func (g *GamifyService) Ledger(ctx context.Context, user core.UserID, limit int) ([]core.LedgerEntry, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	return g.storage.Ledger(ctx, normalized, limit)
}

// Progress reports level progress for user's XP.
func (g *GamifyService) Progress(ctx context.Context, user core.UserID) (core.LevelProgress, error) {
	st, err := g.GetState(ctx, user)
	if err != nil {
		return core.LevelProgress{}, err
	}
	return core.Progress(st.Points[core.MetricXP]), nil
}

func (g *GamifyService) Close() { g.bus.Close() }

type simpleRuleEngine struct{ rules []core.Rule }

func (s *simpleRuleEngine) Evaluate(ctx context.Context, state core.UserState, trigger core.Event) []core.Event {
	var out []core.Event
	for _, r := range s.rules {
		out = append(out, r.Evaluate(ctx, state, trigger)...)
	}
	return out
}
