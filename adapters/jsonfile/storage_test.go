package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"goalconnect/core"
)

func TestStorePersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	total, err := store.AddPoints(ctx, "alice", core.MetricXP, 50)
	if err != nil || total != 50 {
		t.Fatalf("add points: total=%d err=%v", total, err)
	}
	if err := store.AwardBadge(ctx, "alice", "forest_background"); err != nil {
		t.Fatalf("award badge: %v", err)
	}
	if err := store.SetLevel(ctx, "alice", core.MetricXP, 2); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if err := store.SetCupLevels(ctx, "alice", core.CupLevels{5, 4, 3, 2, 1, 0}); err != nil {
		t.Fatalf("set cups: %v", err)
	}
	if total, err := store.Credit(ctx, core.MetricXP, core.NewLedgerEntry("alice", core.ActionHabit, 15, nil)); err != nil || total != 65 {
		t.Fatalf("credit: total=%d err=%v", total, err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s", path)
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	state, err := reloaded.GetState(ctx, "alice")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Points[core.MetricXP] != 65 {
		t.Fatalf("expected points 65, got %d", state.Points[core.MetricXP])
	}
	if _, ok := state.Badges[core.Badge("forest_background")]; !ok {
		t.Fatalf("expected badge forest_background")
	}
	if state.Levels[core.MetricXP] != 2 {
		t.Fatalf("expected level 2, got %d", state.Levels[core.MetricXP])
	}
	if state.Cups.Level(int(core.CupMastery)) != 0 {
		t.Fatalf("expected mastery cup 0, got %v", state.Cups)
	}
	entries, err := reloaded.Ledger(ctx, "alice", 10)
	if err != nil || len(entries) != 1 || entries[0].Amount != 15 {
		t.Fatalf("unexpected ledger %+v err=%v", entries, err)
	}
}

func TestStoreLedgerIsCapped(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < MaxLedgerEntries+5; i++ {
		if _, err := store.Credit(context.Background(), core.MetricXP, core.NewLedgerEntry("bob", core.ActionTodo, int64(i), nil)); err != nil {
			t.Fatal(err)
		}
	}
	entries, _ := store.Ledger(context.Background(), "bob", 0)
	if len(entries) != MaxLedgerEntries {
		t.Fatalf("expected %d entries, got %d", MaxLedgerEntries, len(entries))
	}
	if entries[0].Amount != int64(MaxLedgerEntries+4) {
		t.Fatalf("newest entry first, got %d", entries[0].Amount)
	}
}

func TestNewRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStoreFailedWriteChangesNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "data", "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := store.AddPoints(ctx, "carol", core.MetricXP, 10); err != nil {
		t.Fatal(err)
	}

	// Replace the data directory with a plain file so the next write fails.
	if err := os.RemoveAll(filepath.Join(dir, "data")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Credit(ctx, core.MetricXP, core.NewLedgerEntry("carol", core.ActionTodo, 5, nil)); err == nil {
		t.Fatal("expected write error")
	}
	if _, err := store.Credit(ctx, core.MetricXP, core.NewLedgerEntry("dave", core.ActionTodo, 5, nil)); err == nil {
		t.Fatal("expected write error")
	}

	state, _ := store.GetState(ctx, "carol")
	if state.Points[core.MetricXP] != 10 {
		t.Fatalf("expected total 10 after failed credit, got %d", state.Points[core.MetricXP])
	}
	if entries, _ := store.Ledger(ctx, "carol", 0); len(entries) != 0 {
		t.Fatalf("expected empty ledger, got %+v", entries)
	}
	if entries, _ := store.Ledger(ctx, "dave", 0); len(entries) != 0 {
		t.Fatalf("expected empty ledger for dave, got %+v", entries)
	}
}
