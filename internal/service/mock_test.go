package service

import (
	"database/sql/driver"
	"testing"
	"time"

	"squares-server/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var (
	gameCols   = []string{"id", "sport", "home_team", "away_team", "start_time", "entry_fee", "is_active", "numbers_assigned", "home_numbers", "away_numbers", "payout_q1", "payout_half", "payout_q3", "payout_final", "created_at", "updated_at"}
	boxCols    = []string{"id", "game_id", "row_idx", "col_idx", "owner_id", "claimed_at", "ledger_entry_id", "created_at"}
	accountCol = []string{"user_id", "status", "created_at", "updated_at"}
	ledgerCols = []string{"id", "user_id", "amount", "kind", "game_id", "status", "biz_key", "description", "trace_id", "created_at", "updated_at"}
	wdCols     = []string{"id", "user_id", "amount", "destination", "status", "hold_entry_id", "release_entry_id", "operator", "trace_id", "created_at", "updated_at"}
	scoreCols  = []string{"game_id", "checkpoint", "home_score", "away_score", "updated_at"}
	payoutCols = []string{"id", "game_id", "checkpoint", "user_id", "row_idx", "col_idx", "amount", "ledger_entry_id", "trace_id", "created_at"}
)

var (
	testNow   = time.Date(2026, 2, 8, 22, 0, 0, 0, time.UTC)
	testClock = ClockFunc(func() time.Time { return testNow })

	homePerm = model.Permutation{5, 2, 8, 0, 1, 3, 4, 6, 7, 9}
	awayPerm = model.Permutation{3, 0, 1, 2, 4, 5, 6, 7, 8, 9}
)

// fixedShuffler 依次返回预设排列
type fixedShuffler struct {
	perms [][]int
	i     int
}

func (f *fixedShuffler) Permutation() []int {
	p := f.perms[f.i%len(f.perms)]
	f.i++
	return append([]int(nil), p...)
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

// testGame 构造比赛行
type testGame struct {
	id       int64
	fee      string
	active   bool
	assigned bool
	start    int64
	payouts  [4]string
}

func (g testGame) rows() *sqlmock.Rows {
	active, assigned := 0, 0
	var home, away driver.Value
	if g.active {
		active = 1
	}
	if g.assigned {
		assigned = 1
		home, _ = homePerm.Value()
		away, _ = awayPerm.Value()
	}
	p := g.payouts
	for i := range p {
		if p[i] == "" {
			p[i] = "0.00"
		}
	}
	start := g.start
	if start == 0 {
		start = testNow.Add(30 * time.Minute).UnixMilli()
	}
	return sqlmock.NewRows(gameCols).AddRow(
		g.id, "football", "Home", "Away", start, g.fee, active, assigned, home, away,
		p[0], p[1], p[2], p[3], int64(1), int64(1))
}

func expectAccountLock(mock sqlmock.Sqlmock, userID int64) {
	mock.ExpectExec(`INSERT INTO accounts .* ON DUPLICATE KEY UPDATE`).
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM accounts WHERE user_id = \? FOR UPDATE`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(accountCol).AddRow(userID, 1, int64(1), int64(1)))
}

func expectBalance(mock sqlmock.Sqlmock, userID int64, sum driver.Value) {
	mock.ExpectQuery(`SELECT SUM\(amount\) FROM ledger_entries`).
		WithArgs(userID, "approved").
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(sum))
}

func boxRow(rows *sqlmock.Rows, id, gameID int64, row, col int, owner, entry driver.Value) *sqlmock.Rows {
	var claimed driver.Value
	if owner != nil {
		claimed = int64(1700000000000)
	}
	return rows.AddRow(id, gameID, row, col, owner, claimed, entry, int64(1))
}

func dupErr() error {
	return &mysqlerr.MySQLError{Number: 1062, Message: "Duplicate entry"}
}
