package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/model"
)

func newMockBacktestCacheRepo(t *testing.T) (*backtestCacheRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &backtestCacheRepo{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

// A row whose TTL has lapsed is equivalent to absence, not an error. The
// query itself filters on expires_at > now(), so an expired row surfaces
// to the driver as sql.ErrNoRows exactly like a never-cached key.
func TestGet_ExpiredEntryIsCacheMiss(t *testing.T) {
	repo, mock := newMockBacktestCacheRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM backtest_cache").WillReturnError(sql.ErrNoRows)

	_, found, err := repo.Get(context.Background(), "0xleader", time.Now(), time.Now(), "hash1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An exact settings match within the TTL returns the cached result
// unchanged.
func TestGet_HitWithinTTL(t *testing.T) {
	repo, mock := newMockBacktestCacheRepo(t)

	cols := []string{"leader", "start_at", "end_at", "settings_hash", "result", "expires_at"}
	rows := sqlmock.NewRows(cols).AddRow(
		"0xleader", time.Unix(0, 0), time.Unix(1, 0), "hash1", []byte(`{"settings":{"leader":"0xleader"}}`), time.Now().Add(time.Hour),
	)
	mock.ExpectQuery("SELECT (.+) FROM backtest_cache").WillReturnRows(rows)

	result, found, err := repo.Get(context.Background(), "0xleader", time.Unix(0, 0), time.Unix(1, 0), "hash1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0xleader", result.Settings.Leader)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPut_UpsertsOnConflict(t *testing.T) {
	repo, mock := newMockBacktestCacheRepo(t)

	result := model.BacktestResult{
		Settings:     model.BacktestSettings{Leader: "0xleader"},
		SettingsHash: "hash1",
		ComputedAt:   time.Now(),
	}
	mock.ExpectExec("INSERT INTO backtest_cache").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Put(context.Background(), result, 24*time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}
