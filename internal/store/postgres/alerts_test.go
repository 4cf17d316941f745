package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/model"
)

func newMockAlertRepo(t *testing.T) (*alertRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &alertRepo{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

func TestCreate_DuplicateIsIdempotent(t *testing.T) {
	repo, mock := newMockAlertRepo(t)
	alert := model.GamingAlert{
		ID: "alert1", Type: model.AlertWashTrading, Severity: model.SeverityCritical,
		Wallets: []string{"0xw"}, Status: model.AlertPending, CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO gaming_alerts").WillReturnError(&pq.Error{Code: "23505"})
	require.NoError(t, repo.Create(context.Background(), alert))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An unresolved alert sharing an implicated wallet within the 24h window
// suppresses a new one.
func TestHasRecentUnresolved_WithinWindow(t *testing.T) {
	repo, mock := newMockAlertRepo(t)

	rows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM gaming_alerts").WillReturnRows(rows)

	found, err := repo.HasRecentUnresolved(context.Background(), model.AlertWashTrading, []string{"0xw"}, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasRecentUnresolved_NoneFound(t *testing.T) {
	repo, mock := newMockAlertRepo(t)

	rows := sqlmock.NewRows([]string{"count"}).AddRow(0)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM gaming_alerts").WillReturnRows(rows)

	found, err := repo.HasRecentUnresolved(context.Background(), model.AlertWashTrading, []string{"0xw"}, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}
