package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"goalconnect/celebrate"
	"goalconnect/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)

	ev := core.NewPointsAdded("bob", core.MetricXP, core.ActionHabit, 10, 10)
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.UserID != "bob" || received.Type != core.EventPointsAdded {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Subscribers())
	}
}

func TestHubSubscribeUserFilters(t *testing.T) {
	h := NewHub()
	_, aliceCh := h.SubscribeUser("alice", 2)

	h.Broadcast(context.Background(), core.NewLevelUp("bob", core.MetricXP, 2))
	h.Broadcast(context.Background(), core.NewLevelUp("alice", core.MetricXP, 3))

	got := <-aliceCh
	if got.UserID != "alice" || got.Level != 3 {
		t.Fatalf("unexpected event: %+v", got)
	}
	select {
	case ev := <-aliceCh:
		t.Fatalf("alice received foreign event: %+v", ev)
	default:
	}
}

func TestHubCelebrateCarriesEffect(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(1)
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	err := h.Celebrate(context.Background(), celebrate.Celebration{
		UserID: "alice",
		Reason: core.ReasonStreakMilestone,
		Effect: celebrate.EffectFor(core.ReasonStreakMilestone),
		Time:   at,
	})
	if err != nil {
		t.Fatalf("celebrate: %v", err)
	}
	ev := <-ch
	if ev.Type != core.EventCelebration || ev.Reason != core.ReasonStreakMilestone {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Metadata["sound"] != "fanfare" || !ev.Time.Equal(at) {
		t.Fatalf("unexpected metadata: %+v", ev)
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewRewardClaimed("alice", "background-forest")
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Badge != "background-forest" {
		t.Fatalf("unexpected badge: %s", out.Badge)
	}
}
