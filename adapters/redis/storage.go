package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"goalconnect/core"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" yaml:"addr" env:"GOALCONNECT_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" yaml:"password,omitempty" env:"GOALCONNECT_REDIS_PASSWORD"`
	DB           int           `json:"db" yaml:"db" env:"GOALCONNECT_REDIS_DB"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	// LedgerSize caps the per-user point ledger list.
	LedgerSize int64 `json:"ledger_size" yaml:"ledger_size"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		LedgerSize:   1000,
	}
}

// Store implements engine.Storage on Redis.
// Data structure:
// - user:{user_id}:points -> hash of metric to int64 total
// - user:{user_id}:badges -> set of unlocked rewards
// - user:{user_id}:levels -> hash of metric to int64 level
// - user:{user_id}:cups -> JSON array of six cup levels
// - user:{user_id}:ledger -> list of JSON ledger entries, newest first
// - user:{user_id}:state -> JSON blob of UserState for quick retrieval
//
// Every key for a user is addressed directly; nothing is found by pattern.
type Store struct {
	client     *redis.Client
	ledgerSize int64
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewWithClient(client)
	if config.LedgerSize > 0 {
		s.ledgerSize = config.LedgerSize
	}
	return s, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, ledgerSize: DefaultConfig().LedgerSize}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func userPointsKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:points", userID)
}

func userBadgesKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:badges", userID)
}

func userLevelsKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:levels", userID)
}

func userCupsKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:cups", userID)
}

func userLedgerKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:ledger", userID)
}

func userStateKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:state", userID)
}

// creditScript increments one metric, optionally records a ledger entry and
// drops the cached state, all in a single atomic step. HINCRBY rejects a
// result outside int64 before anything is written.
//
// KEYS: points hash, ledger list, state cache
// ARGV: metric, delta, ledger entry JSON or "", ledger size
var creditScript = redis.NewScript(`
local total = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
if ARGV[3] ~= '' then
	redis.call('LPUSH', KEYS[2], ARGV[3])
	redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[4]) - 1)
end
redis.call('DEL', KEYS[3])
return total
`)

func (s *Store) credit(ctx context.Context, userID core.UserID, metric core.Metric, delta int64, entry []byte) (int64, error) {
	keys := []string{userPointsKey(userID), userLedgerKey(userID), userStateKey(userID)}
	total, err := creditScript.Run(ctx, s.client, keys, string(metric), delta, entry, s.ledgerSize).Int64()
	if err != nil {
		return 0, err
	}
	return total, nil
}

// AddPoints atomically adds points to a user's metric with overflow protection
func (s *Store) AddPoints(ctx context.Context, userID core.UserID, metric core.Metric, delta int64) (int64, error) {
	if delta == 0 {
		return 0, errors.New("delta cannot be zero")
	}
	total, err := s.credit(ctx, userID, metric, delta, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	return total, nil
}

// Credit adds entry.Amount to metric and pushes entry onto the ledger in one
// script run, so either both land or neither does.
func (s *Store) Credit(ctx context.Context, metric core.Metric, entry core.LedgerEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return 0, err
	}
	total, err := s.credit(ctx, entry.UserID, metric, entry.Amount, data)
	if err != nil {
		return 0, fmt.Errorf("failed to credit %s: %w", entry.Kind, err)
	}
	return total, nil
}

// AwardBadge adds an unlocked reward to the user's set
func (s *Store) AwardBadge(ctx context.Context, userID core.UserID, badge core.Badge) error {
	if err := s.client.SAdd(ctx, userBadgesKey(userID), string(badge)).Err(); err != nil {
		return fmt.Errorf("failed to award badge: %w", err)
	}
	s.invalidateStateCache(ctx, userID)
	return nil
}

// SetLevel sets the user's level for a specific metric
func (s *Store) SetLevel(ctx context.Context, userID core.UserID, metric core.Metric, level int64) error {
	if err := s.client.HSet(ctx, userLevelsKey(userID), string(metric), level).Err(); err != nil {
		return fmt.Errorf("failed to set level: %w", err)
	}
	s.invalidateStateCache(ctx, userID)
	return nil
}

// SetCupLevels stores the six wellness cup levels
func (s *Store) SetCupLevels(ctx context.Context, userID core.UserID, levels core.CupLevels) error {
	data, err := json.Marshal(levels)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, userCupsKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set cup levels: %w", err)
	}
	s.invalidateStateCache(ctx, userID)
	return nil
}

// Ledger returns up to limit entries, newest first
func (s *Store) Ledger(ctx context.Context, userID core.UserID, limit int) ([]core.LedgerEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := s.client.LRange(ctx, userLedgerKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	out := make([]core.LedgerEntry, 0, len(raw))
	for _, r := range raw {
		var e core.LedgerEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue // skip corrupt entries
		}
		out = append(out, e)
	}
	return out, nil
}

// GetState retrieves the complete user state, using cache when possible
func (s *Store) GetState(ctx context.Context, userID core.UserID) (core.UserState, error) {
	cached, err := s.getCachedState(ctx, userID)
	if err == nil {
		return cached, nil
	}

	state, err := s.buildStateFromKeys(ctx, userID)
	if err != nil {
		return core.UserState{}, err
	}

	// Update cache (best-effort); keep it synchronous for determinism.
	ctxCache, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	_ = s.updateStateCache(ctxCache, userID, state)

	return state, nil
}

func (s *Store) getCachedState(ctx context.Context, userID core.UserID) (core.UserState, error) {
	data, err := s.client.Get(ctx, userStateKey(userID)).Bytes()
	if err != nil {
		return core.UserState{}, err
	}
	var state core.UserState
	if err := json.Unmarshal(data, &state); err != nil {
		return core.UserState{}, err
	}
	return state, nil
}

// updateStateCache stores the user state in cache with a TTL
func (s *Store) updateStateCache(ctx context.Context, userID core.UserID, state core.UserState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, userStateKey(userID), data, 5*time.Minute).Err()
}

func (s *Store) invalidateStateCache(ctx context.Context, userID core.UserID) {
	s.client.Del(ctx, userStateKey(userID))
}

// buildStateFromKeys reads the user's keys in one pipeline round trip.
func (s *Store) buildStateFromKeys(ctx context.Context, userID core.UserID) (core.UserState, error) {
	pipe := s.client.Pipeline()
	pointsCmd := pipe.HGetAll(ctx, userPointsKey(userID))
	badgesCmd := pipe.SMembers(ctx, userBadgesKey(userID))
	levelsCmd := pipe.HGetAll(ctx, userLevelsKey(userID))
	cupsCmd := pipe.Get(ctx, userCupsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return core.UserState{}, fmt.Errorf("failed to read user state: %w", err)
	}

	state := core.NewUserState(userID)
	if err := parseMetricHash(pointsCmd.Val(), state.Points); err != nil {
		return core.UserState{}, fmt.Errorf("points: %w", err)
	}
	if err := parseMetricHash(levelsCmd.Val(), state.Levels); err != nil {
		return core.UserState{}, fmt.Errorf("levels: %w", err)
	}
	for _, badge := range badgesCmd.Val() {
		state.Badges[core.Badge(badge)] = struct{}{}
	}
	if raw, err := cupsCmd.Bytes(); err == nil {
		var cups core.CupLevels
		if json.Unmarshal(raw, &cups) == nil {
			state.Cups = cups
		}
	}
	return state, nil
}

func parseMetricHash(fields map[string]string, into map[core.Metric]int64) error {
	for metric, raw := range fields {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("metric %s: %w", metric, err)
		}
		into[core.Metric(metric)] = v
	}
	return nil
}
