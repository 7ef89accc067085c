package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"goalconnect/adapters/jsonfile"
	mem "goalconnect/adapters/memory"
	redisAdapter "goalconnect/adapters/redis"
	sqlxAdapter "goalconnect/adapters/sqlx"
	"goalconnect/analytics"
	"goalconnect/api/httpapi"
	"goalconnect/celebrate"
	"goalconnect/config"
	"goalconnect/core"
	"goalconnect/engine"
	"goalconnect/gamify"
	"goalconnect/integrations/webhook"
	"goalconnect/leaderboard"
	"goalconnect/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Hub        *realtime.Hub
	Dispatcher *celebrate.Dispatcher
	Board      leaderboard.Board
	Metrics    *analytics.Metrics
	Service    *engine.GamifyService
	Handler    http.Handler
	Server     *http.Server
}

// provideConfig reads secrets from GOALCONNECT_SECRETS_DIR when set, else
// from the environment.
func provideConfig(ctx context.Context) (*config.Config, error) {
	var store config.SecretStore = config.NewEnvironmentSecretStore()
	if dir := os.Getenv("GOALCONNECT_SECRETS_DIR"); dir != "" {
		store = config.NewFileSecretStore(dir)
	}
	return config.LoadWithSecrets(ctx, store)
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideXPTable(cfg *config.Config) (*core.XPTable, error) {
	return config.LoadXPTable(cfg.Scoring.XPTablePath)
}

func provideStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Storage, func(), error) {
	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Error("close storage", "error", err)
			}
		}
	}
	return store, cleanup, nil
}

// provideWebhooks returns nil when no endpoints are configured.
func provideWebhooks(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Celebration.Webhooks) == 0 {
		return nil
	}
	return webhook.New(cfg.Celebration.Webhooks, webhook.WithLogger(logger))
}

func provideDispatcher(cfg *config.Config, logger *slog.Logger, hooks *webhook.Sink) *celebrate.Dispatcher {
	d := celebrate.New(
		celebrate.WithCooldown(cfg.Celebration.Cooldown),
		celebrate.WithLogger(logger),
	)
	if hooks != nil {
		d.AddSink(hooks)
	}
	return d
}

func provideLeaderboard() leaderboard.Board {
	return leaderboard.NewSkipList()
}

func provideMetrics(cfg *config.Config) *analytics.Metrics {
	if !cfg.Analytics.Enabled {
		return nil
	}
	return analytics.NewMetrics()
}

func provideService(
	logger *slog.Logger,
	hub *realtime.Hub,
	storage engine.Storage,
	table *core.XPTable,
	dispatcher *celebrate.Dispatcher,
	board leaderboard.Board,
	metrics *analytics.Metrics,
	hooks *webhook.Sink,
) *engine.GamifyService {
	opts := []gamify.Option{
		gamify.WithRealtime(hub),
		gamify.WithStorage(storage),
		gamify.WithDispatchMode(engine.DispatchAsync),
		gamify.WithXPTable(table),
		gamify.WithDispatcher(dispatcher),
		gamify.WithLeaderboard(board),
		gamify.WithLogger(logger),
	}
	if metrics != nil {
		opts = append(opts, gamify.WithAnalytics(metrics))
	}
	svc := gamify.New(opts...)
	if hooks != nil {
		svc.Subscribe(core.EventLevelUp, hooks.OnEvent)
		svc.Subscribe(core.EventRewardClaimed, hooks.OnEvent)
	}
	return svc
}

func provideHandler(svc *engine.GamifyService, hub *realtime.Hub, cfg *config.Config, board leaderboard.Board, metrics *analytics.Metrics, logger *slog.Logger) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Leaderboard:      board,
		Metrics:          metrics,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := logOutput(cfg.Logging.Output)
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func logOutput(name string) io.Writer {
	if name == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the storage adapter selected by configuration.
func setupStorage(_ context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		return sqlxAdapter.New(cfg.Storage.SQL)
	case "file":
		return jsonfile.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
