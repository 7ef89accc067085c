package sqlx_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	storage "goalconnect/adapters/sqlx"
	"goalconnect/core"
)

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	return newMockStoreFor(t, storage.DriverPostgres)
}

func newMockStoreFor(t *testing.T, driver storage.Driver) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, string(driver)), driver)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

// expectLockedRead sets up the ensure-row insert and the locking select.
func expectLockedRead(mock sqlmock.Sqlmock, user core.UserID, current int64) {
	mock.ExpectExec(`INSERT INTO user_points .* ON CONFLICT \(user_id, metric\) DO NOTHING`).
		WithArgs(user, core.MetricXP, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT points FROM user_points .* FOR UPDATE`).
		WithArgs(user, core.MetricXP).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(current))
}

func TestSQLMock_AddPoints_Insert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	user := core.UserID("u1")

	mock.ExpectBegin()
	expectLockedRead(mock, user, 0)
	mock.ExpectExec(`UPDATE user_points SET points`).
		WithArgs(int64(10), sqlmock.AnyArg(), user, core.MetricXP).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	total, err := store.AddPoints(ctx, user, core.MetricXP, 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AddPoints_MySQLLocksRow(t *testing.T) {
	store, mock, cleanup := newMockStoreFor(t, storage.DriverMySQL)
	defer cleanup()

	user := core.UserID("u1")
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT IGNORE INTO user_points`).
		WithArgs(user, core.MetricXP, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT points FROM user_points WHERE user_id = \? AND metric = \? FOR UPDATE`).
		WithArgs(user, core.MetricXP).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(int64(7)))
	mock.ExpectExec(`UPDATE user_points SET points`).
		WithArgs(int64(12), sqlmock.AnyArg(), user, core.MetricXP).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	total, err := store.AddPoints(context.Background(), user, core.MetricXP, 5)
	require.NoError(t, err)
	require.Equal(t, int64(12), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AddPoints_SQLiteSkipsRowLock(t *testing.T) {
	store, mock, cleanup := newMockStoreFor(t, storage.DriverSQLite)
	defer cleanup()

	user := core.UserID("u1")
	mock.ExpectBegin()
	mock.ExpectExec(`ON CONFLICT \(user_id, metric\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT points FROM user_points WHERE user_id = \? AND metric = \?$`).
		WithArgs(user, core.MetricXP).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(int64(0)))
	mock.ExpectExec(`UPDATE user_points SET points`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := store.AddPoints(context.Background(), user, core.MetricXP, 3)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AwardBadge_Insert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	user := core.UserID("u1")
	badge := core.Badge("costume-knight")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(user, badge).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO user_badges`).
		WithArgs(user, badge, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.AwardBadge(ctx, user, badge))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetState(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	user := core.UserID("u1")

	mock.ExpectQuery(`SELECT metric, points AS value FROM user_points`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"metric", "value"}).
			AddRow("xp", 50).
			AddRow("points", 20))

	mock.ExpectQuery(`SELECT badge FROM user_badges`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"badge"}).AddRow("background-forest"))

	mock.ExpectQuery(`SELECT metric, level AS value FROM user_levels`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"metric", "value"}).AddRow("xp", 3))

	mock.ExpectQuery(`SELECT body, adventure, novelty, soul, people, mastery FROM user_cups`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"body", "adventure", "novelty", "soul", "people", "mastery"}).
			AddRow(1, 2, 3, 4, 5, 0))

	state, err := store.GetState(ctx, user)
	require.NoError(t, err)
	require.Equal(t, int64(50), state.Points[core.MetricXP])
	require.Equal(t, int64(20), state.Points[core.MetricPoints])
	require.Contains(t, state.Badges, core.Badge("background-forest"))
	require.Equal(t, int64(3), state.Levels[core.MetricXP])
	require.Equal(t, core.CupLevels{1, 2, 3, 4, 5, 0}, state.Cups)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SetLevel_Insert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	user := core.UserID("u1")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(user, core.MetricXP).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO user_levels`).
		WithArgs(user, core.MetricXP, int64(2), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SetLevel(ctx, user, core.MetricXP, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AddPoints_ZeroDelta(t *testing.T) {
	store, _, cleanup := newMockStore(t)
	defer cleanup()

	_, err := store.AddPoints(context.Background(), "u1", core.MetricXP, 0)
	require.Error(t, err)
}

func TestSQLMock_AddPoints_Update(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	user := core.UserID("u1")

	mock.ExpectBegin()
	expectLockedRead(mock, user, 40)
	mock.ExpectExec(`UPDATE user_points SET points`).
		WithArgs(int64(55), sqlmock.AnyArg(), user, core.MetricXP).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	total, err := store.AddPoints(ctx, user, core.MetricXP, 15)
	require.NoError(t, err)
	require.Equal(t, int64(55), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AddPoints_RollbackOnError(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	user := core.UserID("u1")
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO user_points`).
		WithArgs(user, core.MetricXP, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := store.AddPoints(context.Background(), user, core.MetricXP, 5)
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetState_DefaultCups(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	user := core.UserID("fresh")
	mock.ExpectQuery(`FROM user_points`).WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"metric", "value"}))
	mock.ExpectQuery(`FROM user_badges`).WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"badge"}))
	mock.ExpectQuery(`FROM user_levels`).WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"metric", "value"}))
	mock.ExpectQuery(`FROM user_cups`).WithArgs(user).
		WillReturnError(sql.ErrNoRows)

	state, err := store.GetState(context.Background(), user)
	require.NoError(t, err)
	require.Equal(t, core.DefaultCupLevels(), state.Cups)
	require.Empty(t, state.Points)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SetCupLevels_Update(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	user := core.UserID("u1")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`UPDATE user_cups`).
		WithArgs(5, 4, 3, 2, 1, 0, sqlmock.AnyArg(), user).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SetCupLevels(context.Background(), user, core.CupLevels{5, 4, 3, 2, 1, 0}))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, store.SetCupLevels(context.Background(), user, core.CupLevels{1, 2}))
}

func TestSQLMock_CreditWritesPointsAndLedgerInOneTx(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	user := core.UserID("u1")
	entry := core.NewLedgerEntry(user, core.ActionHabit, 10, nil)

	mock.ExpectBegin()
	expectLockedRead(mock, user, 5)
	mock.ExpectExec(`UPDATE user_points SET points`).
		WithArgs(int64(15), sqlmock.AnyArg(), user, core.MetricXP).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO point_ledger`).
		WithArgs(entry.ID, user, core.ActionHabit, int64(10), "habit", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	total, err := store.Credit(ctx, core.MetricXP, entry)
	require.NoError(t, err)
	require.Equal(t, int64(15), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_CreditRollsBackWhenLedgerFails(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	user := core.UserID("u1")
	entry := core.NewLedgerEntry(user, core.ActionTodo, 5, nil)

	mock.ExpectBegin()
	expectLockedRead(mock, user, 0)
	mock.ExpectExec(`UPDATE user_points SET points`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO point_ledger`).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := store.Credit(context.Background(), core.MetricXP, entry)
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = store.Credit(context.Background(), core.MetricXP, core.LedgerEntry{})
	require.ErrorIs(t, err, core.ErrEmptyLedgerEntry)
}

func TestSQLMock_Ledger(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx := context.Background()
	user := core.UserID("u1")

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, user_id, kind, amount, description, created_at FROM point_ledger .* LIMIT`).
		WithArgs(user, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "kind", "amount", "description", "created_at"}).
			AddRow("b", "u1", "streak", 150, "streak [streak_milestone]", at).
			AddRow("a", "u1", "habit", 10, "habit", at.Add(-time.Hour)))

	entries, err := store.Ledger(ctx, user, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, core.ActionStreak, entries[0].Kind)
	require.Equal(t, int64(150), entries[0].Amount)
	require.Equal(t, at, entries[0].CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultConfig(t *testing.T) {
	pg := storage.DefaultConfig(storage.DriverPostgres)
	require.Equal(t, storage.DriverPostgres, pg.Driver)
	require.Empty(t, pg.DSN)

	lite := storage.DefaultConfig(storage.DriverSQLite)
	require.NotEmpty(t, lite.DSN)
	require.Equal(t, 1, lite.MaxOpenConns)

	require.False(t, storage.Driver("oracle").Valid())
	_, err := storage.New(storage.Config{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
}

func TestSQLite_RoundTrip(t *testing.T) {
	cfg := storage.DefaultConfig(storage.DriverSQLite)
	cfg.DSN = "file:" + t.TempDir() + "/gc.db"
	store, err := storage.New(cfg)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	user := core.UserID("lite")

	total, err := store.AddPoints(ctx, user, core.MetricXP, 30)
	require.NoError(t, err)
	require.Equal(t, int64(30), total)
	total, err = store.AddPoints(ctx, user, core.MetricXP, 20)
	require.NoError(t, err)
	require.Equal(t, int64(50), total)

	require.NoError(t, store.AwardBadge(ctx, user, "background-beach"))
	require.NoError(t, store.AwardBadge(ctx, user, "background-beach"))
	require.NoError(t, store.SetLevel(ctx, user, core.MetricXP, 2))
	require.NoError(t, store.SetCupLevels(ctx, user, core.CupLevels{0, 0, 5, 5, 3, 3}))
	total, err = store.Credit(ctx, core.MetricXP, core.NewLedgerEntry(user, core.ActionTodo, 10, nil))
	require.NoError(t, err)
	require.Equal(t, int64(60), total)

	state, err := store.GetState(ctx, user)
	require.NoError(t, err)
	require.Equal(t, int64(60), state.Points[core.MetricXP])
	require.Len(t, state.Badges, 1)
	require.Equal(t, int64(2), state.Levels[core.MetricXP])
	require.Equal(t, core.CupLevels{0, 0, 5, 5, 3, 3}, state.Cups)

	entries, err := store.Ledger(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.ActionTodo, entries[0].Kind)
}

func TestSQLite_ConcurrentCreditsAreNotLost(t *testing.T) {
	cfg := storage.DefaultConfig(storage.DriverSQLite)
	cfg.DSN = "file:" + t.TempDir() + "/gc.db?_pragma=busy_timeout(5000)&_txlock=immediate"
	cfg.MaxOpenConns = 4
	store, err := storage.New(cfg)
	require.NoError(t, err)
	defer store.Close()

	const workers, perWorker = 8, 10
	ctx := context.Background()
	user := core.UserID("busy")

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := store.Credit(ctx, core.MetricXP, core.NewLedgerEntry(user, core.ActionHabit, 3, nil)); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := store.GetState(ctx, user)
	require.NoError(t, err)
	require.Equal(t, int64(3*workers*perWorker), state.Points[core.MetricXP])

	entries, err := store.Ledger(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, entries, workers*perWorker)
}
