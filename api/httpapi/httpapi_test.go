package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "goalconnect/adapters/memory"
	"goalconnect/analytics"
	"goalconnect/core"
	"goalconnect/engine"
	"goalconnect/leaderboard"
	"goalconnect/realtime"
)

func TestAddPointsSuccess(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/points?metric=xp&delta=10", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["total"] != float64(10) {
		t.Fatalf("expected total 10, got %v", resp["total"])
	}
}

func TestAddPointsValidation(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/points?delta=bad", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestClaimRewardValidation(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/rewards/%20", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetUserNotFound(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/users/unknown", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{
		PathPrefix:      "/api",
		APIKeys:         []string{"secret"},
		AllowCORSOrigin: "*",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
}

func TestRateLimit(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req1.Header.Set("X-API-Key", "k")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("X-API-Key", "k")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec2.Code)
	}
}

func newTestService() *engine.GamifyService {
	storage := mem.New()
	bus := engine.NewEventBus(engine.DispatchSync)
	rules := engine.DefaultRuleEngine()
	return engine.NewGamifyService(storage, bus, rules, core.NewScorer(nil))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestScorePreview(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/score", `{"kind":"goal.milestone","priority":"high","milestones_crossed":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res core.ScoringResult
	decode(t, rec, &res)
	assert.Equal(t, int64(23), res.Delta) // 5*3*1.5 = 22.5 rounds half up
	assert.Empty(t, res.Celebrations)

	rec = do(t, handler, http.MethodPost, "/api/score", `{"kind":"streak","streak_length":30}`)
	decode(t, rec, &res)
	assert.Equal(t, int64(150), res.Delta)
	assert.Equal(t, []core.CelebrationReason{core.ReasonStreakMilestone}, res.Celebrations)
}

func TestScoreConfigLookupIs422(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/score", `{"kind":"habit","difficulty":"legendary"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var apiErr apiError
	decode(t, rec, &apiErr)
	assert.Equal(t, "config_lookup", apiErr.Code)
	details := apiErr.Details.(map[string]any)
	assert.Equal(t, "habit", details["kind"])
	assert.Equal(t, "legendary", details["sub_key"])
}

func TestScoreInvalidBody(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{})
	rec := do(t, handler, http.MethodPost, "/score", `{"kind":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCupScore(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/cups/score", `{"cups":[0, 2.0, "x", 9, 1.5], "levels":[1,3,0,3,3,3]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Cups  []int `json:"cups"`
		Score int   `json:"score"`
	}
	decode(t, rec, &body)
	assert.Equal(t, []int{0, 2}, body.Cups)
	assert.Equal(t, 9, body.Score) // (5-1) + (5-0)

	rec = do(t, handler, http.MethodPost, "/api/cups/score", `{"cups":[]}`)
	decode(t, rec, &body)
	assert.Equal(t, core.NoCupScore, body.Score)
}

func TestXPTable(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})
	rec := do(t, handler, http.MethodGet, "/api/xp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var spec core.XPSpec
	decode(t, rec, &spec)
	assert.Equal(t, int64(15), spec.Tiered[core.KeyHabit]["hard"])
	assert.Equal(t, int64(50), spec.Flat[core.KeyGoalCompletionBonus])
	assert.Equal(t, int64(500), spec.Milestones[core.KeyStreakMilestones][100])
}

func TestRecordActionPersists(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/users/Alice/actions", `{"kind":"habit","difficulty":"hard","cups":[0,"bad",7]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Delta   int64 `json:"delta"`
		Total   int64 `json:"total"`
		Level   int64 `json:"level"`
		CupNeed int   `json:"cup_need"`
	}
	decode(t, rec, &out)
	assert.Equal(t, int64(15), out.Delta)
	assert.Equal(t, int64(15), out.Total)
	assert.Equal(t, int64(1), out.Level)
	assert.Equal(t, 2, out.CupNeed) // body cup at default level 3

	rec = do(t, handler, http.MethodGet, "/api/users/alice/ledger?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger struct {
		Entries []core.LedgerEntry        `json:"entries"`
		ByKind  map[core.ActionKind]int64 `json:"by_kind"`
	}
	decode(t, rec, &ledger)
	require.Len(t, ledger.Entries, 1)
	assert.Equal(t, int64(15), ledger.ByKind[core.ActionHabit])

	rec = do(t, handler, http.MethodGet, "/api/users/alice/ledger?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordActionLookupErrorPersistsNothing(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{})

	rec := do(t, handler, http.MethodPost, "/users/alice/actions", `{"kind":"goal.milestone","priority":"urgent"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, handler, http.MethodGet, "/users/alice", "")
	var st core.UserState
	decode(t, rec, &st)
	assert.Zero(t, st.Points[core.MetricXP])
}

func TestSetCupsAndProgress(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPut, "/api/users/alice/cups", `{"levels":[5,5,5,5,5,0]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodPut, "/api/users/alice/cups", `{"levels":[5,5]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodPost, "/api/users/alice/actions", `{"kind":"adventure.outdoor","cups":[1,5]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		CupNeed int `json:"cup_need"`
	}
	decode(t, rec, &out)
	assert.Equal(t, 5, out.CupNeed) // stored levels: adventure full, mastery empty

	rec = do(t, handler, http.MethodGet, "/api/users/alice/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p core.LevelProgress
	decode(t, rec, &p)
	assert.Equal(t, int64(25), p.TotalXP)
}

func TestClaimRewardAndCelebrate(t *testing.T) {
	svc := newTestService()
	var reasons []core.CelebrationReason
	svc.Subscribe(core.EventCelebration, func(_ context.Context, e core.Event) { reasons = append(reasons, e.Reason) })
	handler := NewMux(svc, nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/users/alice/rewards/background-forest", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodPost, "/api/users/alice/celebrations", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, handler, http.MethodPost, "/api/users/alice/celebrations", `{"reason":"fireworks"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []core.CelebrationReason{core.ReasonRewardClaimed, ""}, reasons)

	rec = do(t, handler, http.MethodGet, "/api/users/alice", "")
	var st core.UserState
	decode(t, rec, &st)
	assert.Contains(t, st.Badges, core.Badge("background-forest"))
}

func TestLeaderboardAndStats(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewGamifyService(mem.New(), bus, engine.DefaultRuleEngine(), core.NewScorer(nil))
	board := leaderboard.NewSkipList()
	leaderboard.NewTracker(board, core.MetricXP).Attach(svc)
	metrics := analytics.NewMetrics()
	analytics.NewBridge(metrics).Attach(svc)

	handler := NewMux(svc, nil, Options{PathPrefix: "/api", Leaderboard: board, Metrics: metrics})
	do(t, handler, http.MethodPost, "/api/users/alice/actions", `{"kind":"yearly.goal"}`)
	do(t, handler, http.MethodPost, "/api/users/bob/actions", `{"kind":"todo"}`)

	rec := do(t, handler, http.MethodGet, "/api/leaderboard?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lb struct {
		Entries []leaderboard.Entry `json:"entries"`
	}
	decode(t, rec, &lb)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, core.UserID("alice"), lb.Entries[0].User)
	assert.Equal(t, int64(100), lb.Entries[0].Score)

	rec = do(t, handler, http.MethodGet, "/api/leaderboard/bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ranked struct {
		Entry leaderboard.Entry `json:"entry"`
		Rank  int               `json:"rank"`
	}
	decode(t, rec, &ranked)
	assert.Equal(t, 2, ranked.Rank)
	assert.Equal(t, int64(10), ranked.Entry.Score)

	assert.Equal(t, http.StatusNotFound, do(t, handler, http.MethodGet, "/api/leaderboard/carol", "").Code)

	rec = do(t, handler, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap analytics.Snapshot
	decode(t, rec, &snap)
	require.NotEmpty(t, snap.PointsByAction)
	assert.Equal(t, core.ActionYearlyGoal, snap.PointsByAction[0].Kind)
}

func TestOptionalRoutesAbsent(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})
	assert.Equal(t, http.StatusNotFound, do(t, handler, http.MethodGet, "/api/leaderboard", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, handler, http.MethodGet, "/api/ws", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, handler, http.MethodDelete, "/api/users/alice", "").Code)
}

func TestHealthz(t *testing.T) {
	handler := NewMux(newTestService(), nil, Options{PathPrefix: "/api"})
	rec := do(t, handler, http.MethodGet, "/api/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestUserIDWithPatternCharactersIsRejected(t *testing.T) {
	svc := newTestService()
	handler := NewMux(svc, nil, Options{PathPrefix: "/api"})
	_, err := svc.AddPoints(context.Background(), "alice", core.MetricXP, 500)
	require.NoError(t, err)

	for _, path := range []string{"/api/users/a*", "/api/users/a%2A/progress", "/api/users/%5Ba%5Dlice/ledger", "/api/users/al%3Fce"} {
		rec := do(t, handler, http.MethodGet, path, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
		var body map[string]any
		decode(t, rec, &body)
		assert.Equal(t, "invalid_user", body["code"], path)
	}
}

func TestStreamRequiresUserWithoutAPIKeys(t *testing.T) {
	hub := realtime.NewHub()

	open := NewMux(newTestService(), hub, Options{PathPrefix: "/api"})
	rec := do(t, open, http.MethodGet, "/api/ws", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "user query parameter is required")

	keyed := NewMux(newTestService(), hub, Options{PathPrefix: "/api", APIKeys: []string{"k"}})
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	req.Header.Set("X-API-Key", "k")
	rec = httptest.NewRecorder()
	keyed.ServeHTTP(rec, req)
	// Past the user check, a plain GET fails the websocket handshake instead.
	assert.NotContains(t, rec.Body.String(), "user query parameter is required")
	assert.Zero(t, hub.Subscribers())
}
