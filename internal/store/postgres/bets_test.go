package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthfeed/engine/internal/model"
	"github.com/truthfeed/engine/internal/platform"
)

func newMockBetRepo(t *testing.T) (*betRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &betRepo{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

func sampleBet() model.Bet {
	return model.Bet{
		ID: "pancakeswap-prediction|0xabc|2", Trader: "0xa", Platform: "pancakeswap-prediction",
		MarketID: "1001", Direction: model.DirectionBull, Amount: model.FromFloat(0.1),
		TxHash: "0xabc", LogIndex: 2,
	}
}

// Ingesting the same bet event twice (same txHash+logIndex, encoded in
// the adapter-assigned id) must yield exactly one stored row: the second
// insert hits the primary key's unique_violation and Upsert must return
// nil, not an error.
func TestUpsert_DuplicateIsIdempotent(t *testing.T) {
	repo, mock := newMockBetRepo(t)
	bet := sampleBet()

	mock.ExpectExec("INSERT INTO bets").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Upsert(context.Background(), bet))

	mock.ExpectExec("INSERT INTO bets").WillReturnError(&pq.Error{Code: "23505"})
	require.NoError(t, repo.Upsert(context.Background(), bet))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestUpsert_OtherErrorsSurface ensures a non-idempotence conflict is not
// swallowed the same way.
func TestUpsert_OtherErrorsSurface(t *testing.T) {
	repo, mock := newMockBetRepo(t)
	bet := sampleBet()

	mock.ExpectExec("INSERT INTO bets").WillReturnError(&pq.Error{Code: "08006"}) // connection_failure
	err := repo.Upsert(context.Background(), bet)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByTrader_MapsRows(t *testing.T) {
	repo, mock := newMockBetRepo(t)

	cols := []string{"id", "trader", "platform", "market_id", "direction", "amount", "ts", "tx_hash", "log_index", "block", "won", "claimed_amount"}
	rows := sqlmock.NewRows(cols).AddRow(
		"id1", "0xa", "pancakeswap-prediction", "1001", "bull", "100000000000000000", nil, "0xabc", 2, 5, nil, nil,
	)
	mock.ExpectQuery("SELECT (.+) FROM bets WHERE trader").WillReturnRows(rows)

	bets, err := repo.ListByTrader(context.Background(), "0xa", platform.Platform("pancakeswap-prediction"), 10)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, "0xa", bets[0].Trader)
	assert.Equal(t, model.DirectionBull, bets[0].Direction)
	assert.Nil(t, bets[0].Won)
	assert.NoError(t, mock.ExpectationsWereMet())
}
