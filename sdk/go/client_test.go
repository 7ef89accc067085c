package sdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalconnect/api/httpapi"
	"goalconnect/core"
	"goalconnect/engine"
	"goalconnect/gamify"
	"goalconnect/realtime"
)

func newTestServer(t *testing.T) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	hub := realtime.NewHub()
	svc := gamify.New(gamify.WithDispatchMode(engine.DispatchSync), gamify.WithRealtime(hub))
	srv := httptest.NewServer(httpapi.NewMux(svc, hub, httpapi.Options{PathPrefix: "/api", APIKeys: []string{"k1"}}))
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestClient_PointsRewardsUserHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	require.NoError(t, err)
	ctx := context.Background()

	total, err := client.AddPoints(ctx, "alice", 50, "xp")
	require.NoError(t, err)
	assert.Equal(t, int64(50), total)

	require.NoError(t, client.ClaimReward(ctx, "alice", "costume-pirate"))

	state, err := client.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", state.UserID)
	assert.Equal(t, int64(50), state.Points["xp"])
	assert.Contains(t, state.Badges, "costume-pirate")

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestClient_MissingAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)
	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	_, err = client.GetUser(context.Background(), "alice")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.StatusCode)
}

func TestClient_ActionsAndLedger(t *testing.T) {
	srv, _ := newTestServer(t)
	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	require.NoError(t, err)
	ctx := context.Background()

	preview, err := client.Score(ctx, core.ScoringRequest{Kind: core.ActionStreak, StreakLength: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(50), preview.Delta)

	res, err := client.RecordAction(ctx, "alice", core.ScoringRequest{Kind: core.ActionGoalCompletion, Priority: "low"})
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Delta)
	assert.Equal(t, int64(50), res.Total)
	assert.Equal(t, []core.CelebrationReason{core.ReasonGoalCompleted}, res.Celebrations)

	ledger, err := client.Ledger(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, ledger.Entries, 1)
	assert.Equal(t, int64(50), ledger.ByKind[core.ActionGoalCompletion])

	p, err := client.Progress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Level)
	assert.Equal(t, int64(100), p.XPNeededForNextLevel)

	_, err = client.RecordAction(ctx, "alice", core.ScoringRequest{Kind: "juggling"})
	assert.True(t, IsConfigLookup(err), "got %v", err)
}

func TestClient_Cups(t *testing.T) {
	srv, _ := newTestServer(t)
	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	require.NoError(t, err)
	ctx := context.Background()

	out, err := client.CupScore(ctx, []int{0, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Score)

	require.NoError(t, client.SetCups(ctx, "alice", core.CupLevels{0, 0, 0, 0, 0, 0}))
	st, err := client.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0}, st.Cups)

	err = client.SetCups(ctx, "alice", core.CupLevels{9})
	assert.Error(t, err)

	xp, err := client.XPTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), xp.Flat[core.KeyTodo])
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv, hub := newTestServer(t)
	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx, "alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	_, err = client.RecordAction(ctx, "bob", core.ScoringRequest{Kind: core.ActionTodo})
	require.NoError(t, err)
	_, err = client.RecordAction(ctx, "alice", core.ScoringRequest{Kind: core.ActionTodo})
	require.NoError(t, err)

	select {
	case evt := <-events:
		assert.Equal(t, core.EventPointsAdded, evt.Type)
		assert.Equal(t, core.UserID("alice"), evt.UserID)
		assert.Equal(t, int64(10), evt.Delta)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "wss://example.com/api/ws", deriveWSURL("https://example.com/api"))
	assert.Equal(t, "ws://localhost:8080/ws", deriveWSURL("http://localhost:8080"))
}
