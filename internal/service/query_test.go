package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"squares-server/internal/config"
	"squares-server/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOwnershipMap(t *testing.T) {
	g := &model.Game{ID: 3, HomeTeam: "H", AwayTeam: "A", EntryFee: decimal.RequireFromString("5"), IsActive: 1}
	boxes := []model.Box{
		{GameID: 3, RowIdx: 0, ColIdx: 0, OwnerID: sql.NullInt64{Int64: 7, Valid: true}},
		{GameID: 3, RowIdx: 9, ColIdx: 9, OwnerID: sql.NullInt64{Int64: 8, Valid: true}},
		{GameID: 3, RowIdx: 4, ColIdx: 4},
	}
	m := BuildOwnershipMap(g, boxes)
	assert.Equal(t, 2, m.Claimed)
	assert.Equal(t, int64(7), m.Owner(0, 0))
	assert.Equal(t, int64(8), m.Owner(9, 9))
	assert.Zero(t, m.Owner(4, 4))
	assert.Zero(t, m.Owner(10, 0))
	assert.Equal(t, "5.00", m.EntryFee)
	assert.Nil(t, m.HomeNumbers, "numbers hidden until assigned")
	assert.Len(t, m.Cells, 10)
}

func TestQueryWinners(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewQueryService(db)

	mock.ExpectQuery(`FROM games WHERE id = \?`).
		WillReturnRows(testGame{id: 1, fee: "10.00", active: true, assigned: true}.rows())
	mock.ExpectQuery(`FROM game_scores WHERE game_id = \? ORDER BY checkpoint`).
		WillReturnRows(sqlmock.NewRows(scoreCols).AddRow(int64(1), 3, 15, 23, int64(1)))
	mock.ExpectQuery(`FROM boxes WHERE game_id = \? ORDER BY`).
		WillReturnRows(boxRow(sqlmock.NewRows(boxCols), 1, 1, 0, 0, int64(7), nil))

	wl, err := svc.Winners(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, wl, 1)
	assert.Equal(t, "final", wl[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryBalance(t *testing.T) {
	db, mock := newMockDB(t)
	expectBalance(mock, 7, "42.50")

	bal, err := NewQueryService(db).Balance(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "42.50", bal.StringFixed(2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheTTLFromThresholds(t *testing.T) {
	prev := config.GetCurrent()
	defer config.SetCurrent(prev)

	config.SetCurrent(nil)
	assert.Equal(t, 30*time.Second, gridCacheTTL())
	assert.Equal(t, 30*time.Second, winnersCacheTTL())

	config.SetCurrent(&config.Config{Thresholds: map[string]int64{
		config.ThresholdGridCacheTTLSec:    5,
		config.ThresholdWinnersCacheTTLSec: 120,
	}})
	assert.Equal(t, 5*time.Second, gridCacheTTL())
	assert.Equal(t, 2*time.Minute, winnersCacheTTL())
}
