package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	wsadapter "goalconnect/adapters/websocket"
	"goalconnect/analytics"
	"goalconnect/core"
	"goalconnect/engine"
	"goalconnect/leaderboard"
	"goalconnect/realtime"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Leaderboard, if set, is served at GET {prefix}/leaderboard.
	Leaderboard leaderboard.Board
	// Metrics, if set, is served at GET {prefix}/stats.
	Metrics *analytics.Metrics
	Logger  *slog.Logger
}

type api struct {
	svc    *engine.GamifyService
	opts   Options
	logger *slog.Logger
}

// NewMux builds an http.Handler exposing the GoalConnect scoring API and WebSocket stream.
// Routes:
//   - POST {prefix}/score                       preview a scoring request
//   - POST {prefix}/cups/score                  cup need score
//   - GET  {prefix}/xp                          active XP table
//   - GET  {prefix}/users/{id}
//   - GET  {prefix}/users/{id}/progress
//   - GET  {prefix}/users/{id}/ledger?limit=20
//   - POST {prefix}/users/{id}/actions
//   - POST {prefix}/users/{id}/points?metric=xp&delta=50
//   - POST {prefix}/users/{id}/rewards/{reward}
//   - POST {prefix}/users/{id}/celebrations
//   - PUT  {prefix}/users/{id}/cups
//   - GET  {prefix}/leaderboard?limit=10&offset=0
//   - GET  {prefix}/leaderboard/{id}
//   - GET  {prefix}/stats
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws?user={id}           user may be omitted only when API keys are set
func NewMux(svc *engine.GamifyService, hub *realtime.Hub, opts Options) http.Handler {
	a := &api{svc: svc, opts: opts, logger: opts.Logger}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	mux := http.NewServeMux()
	route := func(method, path string, h http.HandlerFunc) {
		mux.HandleFunc(method+" "+withPrefix(opts.PathPrefix, path), h)
	}

	route(http.MethodGet, "/healthz", a.healthCheck)
	if hub != nil {
		wsOpts := []wsadapter.Option{wsadapter.WithAllowedOrigins(opts.AllowCORSOrigin)}
		if len(opts.APIKeys) > 0 {
			wsOpts = append(wsOpts, wsadapter.WithAllUsers())
		}
		mux.Handle("GET "+withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub, wsOpts...))
	}

	route(http.MethodPost, "/score", a.score)
	route(http.MethodPost, "/cups/score", a.cupScore)
	route(http.MethodGet, "/xp", a.xpTable)

	route(http.MethodGet, "/users/{id}", a.getUser)
	route(http.MethodGet, "/users/{id}/progress", a.progress)
	route(http.MethodGet, "/users/{id}/ledger", a.ledger)
	route(http.MethodPost, "/users/{id}/actions", a.recordAction)
	route(http.MethodPost, "/users/{id}/points", a.addPoints)
	route(http.MethodPost, "/users/{id}/rewards/{reward}", a.claimReward)
	route(http.MethodPost, "/users/{id}/celebrations", a.celebrate)
	route(http.MethodPut, "/users/{id}/cups", a.setCups)

	if opts.Leaderboard != nil {
		route(http.MethodGet, "/leaderboard", a.leaderboard)
		route(http.MethodGet, "/leaderboard/{id}", a.leaderboardRank)
	}
	if opts.Metrics != nil {
		route(http.MethodGet, "/stats", a.stats)
	}

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// actionBody accepts cup indices as loosely typed JSON; bad entries are dropped.
type actionBody struct {
	core.ScoringRequest
	Cups []any `json:"cups,omitempty"`
}

func (b actionBody) request() core.ScoringRequest {
	req := b.ScoringRequest
	req.Cups = core.SanitizeCups(b.Cups)
	return req
}

func (a *api) score(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := a.svc.Score(body.request())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, res)
}

type cupScoreBody struct {
	Cups   []any          `json:"cups"`
	Levels core.CupLevels `json:"levels,omitempty"`
}

func (a *api) cupScore(w http.ResponseWriter, r *http.Request) {
	var body cupScoreBody
	if !decodeBody(w, r, &body) {
		return
	}
	cups := core.SanitizeCups(body.Cups)
	writeJSON(w, map[string]any{
		"cups":  cups,
		"score": core.CupScore(cups, body.Levels),
	})
}

func (a *api) xpTable(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.svc.Scorer().Table().Spec())
}

func (a *api) getUser(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	st, err := a.svc.GetState(r.Context(), user)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, st)
}

func (a *api) progress(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	p, err := a.svc.Progress(r.Context(), user)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, p)
}

func (a *api) ledger(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r, 50)
	if !ok {
		return
	}
	entries, err := a.svc.Ledger(r.Context(), user, limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"entries": entries,
		"by_kind": core.SumByKind(entries),
	})
}

func (a *api) recordAction(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	var body actionBody
	if !decodeBody(w, r, &body) {
		return
	}
	out, err := a.svc.RecordAction(r.Context(), user, body.request())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, out)
}

func (a *api) addPoints(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	metric := core.Metric(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = core.MetricXP
	}
	delta, err := strconv.ParseInt(r.URL.Query().Get("delta"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_delta", "delta must be an integer", nil)
		return
	}
	total, err := a.svc.AddPoints(r.Context(), user, metric, delta)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"total": total})
}

func (a *api) claimReward(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	reward := core.Badge(r.PathValue("reward"))
	if err := core.ValidateBadgeID(reward); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reward", err.Error(), nil)
		return
	}
	if err := a.svc.ClaimReward(r.Context(), user, reward); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

type celebrateBody struct {
	Reason core.CelebrationReason `json:"reason"`
}

func (a *api) celebrate(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	var body celebrateBody
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	if !body.Reason.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_reason", "unknown celebration reason", map[string]any{"reason": body.Reason})
		return
	}
	if err := a.svc.Celebrate(r.Context(), user, body.Reason); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]any{"ok": true})
}

type cupsBody struct {
	Levels core.CupLevels `json:"levels"`
}

func (a *api) setCups(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	var body cupsBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := core.ValidateCupLevels(body.Levels); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_cups", err.Error(), nil)
		return
	}
	if err := a.svc.SetCupLevels(r.Context(), user, body.Levels); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"levels": body.Levels})
}

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 10)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = 10
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer", nil)
			return
		}
		offset = n
	}
	entries := a.opts.Leaderboard.Page(offset, limit)
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, map[string]any{"entries": entries, "total": a.opts.Leaderboard.Len()})
}

func (a *api) leaderboardRank(w http.ResponseWriter, r *http.Request) {
	user, ok := pathUser(w, r)
	if !ok {
		return
	}
	entry, found := a.opts.Leaderboard.Get(user)
	if !found {
		writeError(w, http.StatusNotFound, "not_ranked", "user has no leaderboard entry", map[string]any{"user_id": user})
		return
	}
	writeJSON(w, map[string]any{"entry": entry, "rank": entry.Rank})
}

func (a *api) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.opts.Metrics.Snapshot())
}

// healthCheck verifies the service is working properly
func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	// Fetching a reserved user exercises the storage round trip without writing.
	_, err := a.svc.GetState(r.Context(), core.UserID("healthcheck"))

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}

	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
		a.logger.Error("health check failed", "error", err)
	}
	writeJSONStatus(w, code, status)
}

// writeServiceError maps engine errors onto API error codes.
func (a *api) writeServiceError(w http.ResponseWriter, err error) {
	var lookup *core.ConfigLookupError
	if errors.As(err, &lookup) {
		writeError(w, http.StatusUnprocessableEntity, "config_lookup", lookup.Error(), map[string]any{
			"kind":    lookup.Kind,
			"sub_key": lookup.SubKey,
		})
		return
	}
	a.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
}

func pathUser(w http.ResponseWriter, r *http.Request) (core.UserID, bool) {
	user, err := core.NormalizeUserID(core.UserID(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return "", false
	}
	return user, true
}

func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer", nil)
		return 0, false
	}
	return n, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return false
	}
	return true
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}
