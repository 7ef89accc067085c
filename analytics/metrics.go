package analytics

import (
	"context"

	"goalconnect/core"
)

// BridgeHook bridges an event source to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// Attach subscribes the bridge to every engine event type and returns a
// function removing all subscriptions.
func (b *BridgeHook) Attach(s interface {
	Subscribe(core.EventType, func(context.Context, core.Event)) func()
}) func() {
	types := []core.EventType{core.EventPointsAdded, core.EventLevelUp, core.EventRewardClaimed, core.EventCelebration}
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, s.Subscribe(t, func(_ context.Context, e core.Event) { b.OnEvent(e) }))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
