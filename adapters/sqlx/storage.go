// Package sqlx stores gamification state in a relational database through
// jmoiron/sqlx. PostgreSQL, MySQL and SQLite are supported.
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"goalconnect/core"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Config holds SQL connection settings. MySQL DSNs need parseTime=true.
type Config struct {
	Driver          Driver        `json:"driver" yaml:"driver" env:"GOALCONNECT_SQL_DRIVER"`
	DSN             string        `json:"dsn,omitempty" yaml:"dsn,omitempty" env:"GOALCONNECT_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `json:"auto_migrate" yaml:"auto_migrate"`
}

// DefaultConfig returns pool defaults for driver.
func DefaultConfig(driver Driver) Config {
	cfg := Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
	if driver == DriverSQLite {
		cfg.DSN = "file:goalconnect.db?_pragma=busy_timeout(5000)&_txlock=immediate"
		cfg.MaxOpenConns = 1
	}
	return cfg
}

// Valid reports whether d is a supported driver.
func (d Driver) Valid() bool {
	switch d {
	case DriverPostgres, DriverMySQL, DriverSQLite:
		return true
	}
	return false
}

// Store implements engine.Storage on a SQL database.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a connection pool, pings it and optionally creates the schema.
func New(cfg Config) (*Store, error) {
	if !cfg.Driver.Valid() {
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, errors.New("sql dsn is required")
	}
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func schema(driver Driver) []string {
	id, ts := "TEXT", "TIMESTAMP"
	switch driver {
	case DriverPostgres:
		ts = "TIMESTAMPTZ"
	case DriverMySQL:
		id, ts = "VARCHAR(191)", "DATETIME(6)"
	case DriverSQLite:
		ts = "DATETIME"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_points (
	user_id %[1]s NOT NULL,
	metric %[1]s NOT NULL,
	points BIGINT NOT NULL,
	created_at %[2]s NOT NULL,
	updated_at %[2]s NOT NULL,
	PRIMARY KEY (user_id, metric)
)`, id, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_badges (
	user_id %[1]s NOT NULL,
	badge %[1]s NOT NULL,
	awarded_at %[2]s NOT NULL,
	PRIMARY KEY (user_id, badge)
)`, id, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_levels (
	user_id %[1]s NOT NULL,
	metric %[1]s NOT NULL,
	level BIGINT NOT NULL,
	created_at %[2]s NOT NULL,
	updated_at %[2]s NOT NULL,
	PRIMARY KEY (user_id, metric)
)`, id, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_cups (
	user_id %[1]s NOT NULL PRIMARY KEY,
	body INTEGER NOT NULL,
	adventure INTEGER NOT NULL,
	novelty INTEGER NOT NULL,
	soul INTEGER NOT NULL,
	people INTEGER NOT NULL,
	mastery INTEGER NOT NULL,
	updated_at %[2]s NOT NULL
)`, id, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS point_ledger (
	id %[1]s NOT NULL PRIMARY KEY,
	user_id %[1]s NOT NULL,
	kind %[1]s NOT NULL,
	amount BIGINT NOT NULL,
	description TEXT NOT NULL,
	created_at %[2]s NOT NULL
)`, id, ts),
	}
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) AddPoints(ctx context.Context, user core.UserID, metric core.Metric, delta int64) (int64, error) {
	if delta == 0 {
		return 0, errors.New("delta cannot be zero")
	}
	var total int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		total, err = s.addPointsTx(ctx, tx, user, metric, delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Credit adds entry.Amount to metric and inserts entry into point_ledger in
// one transaction.
func (s *Store) Credit(ctx context.Context, metric core.Metric, entry core.LedgerEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	var total int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if total, err = s.addPointsTx(ctx, tx, entry.UserID, metric, entry.Amount); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO point_ledger (id, user_id, kind, amount, description, created_at) VALUES (:id, :user_id, :kind, :amount, :description, :created_at)`,
			toLedgerRow(entry)); err != nil {
			return fmt.Errorf("insert ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// addPointsTx makes sure the row exists, then locks it for the read-modify-
// write so concurrent credits to one user serialize instead of overwriting
// each other. SQLite has a single writer and needs no row lock.
func (s *Store) addPointsTx(ctx context.Context, tx *sqlx.Tx, user core.UserID, metric core.Metric, delta int64) (int64, error) {
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, tx.Rebind(s.ensurePointsRow()),
		string(user), string(metric), now, now); err != nil {
		return 0, fmt.Errorf("ensure points row: %w", err)
	}

	query := `SELECT points FROM user_points WHERE user_id = ? AND metric = ?`
	if s.driver != DriverSQLite {
		query += ` FOR UPDATE`
	}
	var current int64
	if err := tx.QueryRowxContext(ctx, tx.Rebind(query), string(user), string(metric)).Scan(&current); err != nil {
		return 0, fmt.Errorf("select points: %w", err)
	}
	total, err := core.AddSafe(current, delta)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE user_points SET points = ?, updated_at = ? WHERE user_id = ? AND metric = ?`),
		total, now, string(user), string(metric)); err != nil {
		return 0, fmt.Errorf("write points: %w", err)
	}
	return total, nil
}

func (s *Store) ensurePointsRow() string {
	if s.driver == DriverMySQL {
		return `INSERT IGNORE INTO user_points (user_id, metric, points, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`
	}
	return `INSERT INTO user_points (user_id, metric, points, created_at, updated_at) VALUES (?, ?, 0, ?, ?) ON CONFLICT (user_id, metric) DO NOTHING`
}

func (s *Store) AwardBadge(ctx context.Context, user core.UserID, badge core.Badge) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.QueryRowxContext(ctx,
			tx.Rebind(`SELECT EXISTS(SELECT 1 FROM user_badges WHERE user_id = ? AND badge = ?)`),
			string(user), string(badge)).Scan(&exists); err != nil {
			return fmt.Errorf("select badge: %w", err)
		}
		if exists {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO user_badges (user_id, badge, awarded_at) VALUES (?, ?, ?)`),
			string(user), string(badge), time.Now().UTC()); err != nil {
			return fmt.Errorf("insert badge: %w", err)
		}
		return nil
	})
}

func (s *Store) SetLevel(ctx context.Context, user core.UserID, metric core.Metric, level int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.QueryRowxContext(ctx,
			tx.Rebind(`SELECT EXISTS(SELECT 1 FROM user_levels WHERE user_id = ? AND metric = ?)`),
			string(user), string(metric)).Scan(&exists); err != nil {
			return fmt.Errorf("select level: %w", err)
		}
		now := time.Now().UTC()
		var err error
		if exists {
			_, err = tx.ExecContext(ctx,
				tx.Rebind(`UPDATE user_levels SET level = ?, updated_at = ? WHERE user_id = ? AND metric = ?`),
				level, now, string(user), string(metric))
		} else {
			_, err = tx.ExecContext(ctx,
				tx.Rebind(`INSERT INTO user_levels (user_id, metric, level, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
				string(user), string(metric), level, now, now)
		}
		if err != nil {
			return fmt.Errorf("write level: %w", err)
		}
		return nil
	})
}

func (s *Store) SetCupLevels(ctx context.Context, user core.UserID, levels core.CupLevels) error {
	if len(levels) != core.CupCount {
		return fmt.Errorf("expected %d cup levels, got %d", core.CupCount, len(levels))
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.QueryRowxContext(ctx,
			tx.Rebind(`SELECT EXISTS(SELECT 1 FROM user_cups WHERE user_id = ?)`),
			string(user)).Scan(&exists); err != nil {
			return fmt.Errorf("select cups: %w", err)
		}
		now := time.Now().UTC()
		var err error
		if exists {
			_, err = tx.ExecContext(ctx,
				tx.Rebind(`UPDATE user_cups SET body = ?, adventure = ?, novelty = ?, soul = ?, people = ?, mastery = ?, updated_at = ? WHERE user_id = ?`),
				levels[0], levels[1], levels[2], levels[3], levels[4], levels[5], now, string(user))
		} else {
			_, err = tx.ExecContext(ctx,
				tx.Rebind(`INSERT INTO user_cups (user_id, body, adventure, novelty, soul, people, mastery, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
				string(user), levels[0], levels[1], levels[2], levels[3], levels[4], levels[5], now)
		}
		if err != nil {
			return fmt.Errorf("write cups: %w", err)
		}
		return nil
	})
}

func (s *Store) Ledger(ctx context.Context, user core.UserID, limit int) ([]core.LedgerEntry, error) {
	query := `SELECT id, user_id, kind, amount, description, created_at FROM point_ledger WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{string(user)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []ledgerRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select ledger: %w", err)
	}
	out := make([]core.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

// ledgerRow mirrors point_ledger with driver-native column types.
type ledgerRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Kind        string    `db:"kind"`
	Amount      int64     `db:"amount"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

func toLedgerRow(e core.LedgerEntry) ledgerRow {
	return ledgerRow{
		ID:          e.ID,
		UserID:      string(e.UserID),
		Kind:        string(e.Kind),
		Amount:      e.Amount,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.UTC(),
	}
}

func (r ledgerRow) entry() core.LedgerEntry {
	return core.LedgerEntry{
		ID:          r.ID,
		UserID:      core.UserID(r.UserID),
		Kind:        core.ActionKind(r.Kind),
		Amount:      r.Amount,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

type metricRow struct {
	Metric string `db:"metric"`
	Value  int64  `db:"value"`
}

type cupRow struct {
	Body      int `db:"body"`
	Adventure int `db:"adventure"`
	Novelty   int `db:"novelty"`
	Soul      int `db:"soul"`
	People    int `db:"people"`
	Mastery   int `db:"mastery"`
}

func (s *Store) GetState(ctx context.Context, user core.UserID) (core.UserState, error) {
	state := core.NewUserState(user)

	var points []metricRow
	if err := s.db.SelectContext(ctx, &points,
		s.db.Rebind(`SELECT metric, points AS value FROM user_points WHERE user_id = ?`), string(user)); err != nil {
		return core.UserState{}, fmt.Errorf("select points: %w", err)
	}
	for _, r := range points {
		state.Points[core.Metric(r.Metric)] = r.Value
	}

	var badges []string
	if err := s.db.SelectContext(ctx, &badges,
		s.db.Rebind(`SELECT badge FROM user_badges WHERE user_id = ?`), string(user)); err != nil {
		return core.UserState{}, fmt.Errorf("select badges: %w", err)
	}
	for _, b := range badges {
		state.Badges[core.Badge(b)] = struct{}{}
	}

	var levels []metricRow
	if err := s.db.SelectContext(ctx, &levels,
		s.db.Rebind(`SELECT metric, level AS value FROM user_levels WHERE user_id = ?`), string(user)); err != nil {
		return core.UserState{}, fmt.Errorf("select levels: %w", err)
	}
	for _, r := range levels {
		state.Levels[core.Metric(r.Metric)] = r.Value
	}

	var cups cupRow
	err := s.db.GetContext(ctx, &cups,
		s.db.Rebind(`SELECT body, adventure, novelty, soul, people, mastery FROM user_cups WHERE user_id = ?`), string(user))
	switch {
	case err == nil:
		state.Cups = core.CupLevels{cups.Body, cups.Adventure, cups.Novelty, cups.Soul, cups.People, cups.Mastery}
	case !errors.Is(err, sql.ErrNoRows):
		return core.UserState{}, fmt.Errorf("select cups: %w", err)
	}

	return state, nil
}
