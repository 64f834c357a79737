package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNumberService(t *testing.T) (NumberService, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	sh := &fixedShuffler{perms: [][]int{homePerm, awayPerm}}
	return NewNumberService(db, WithClock(testClock), WithShuffler(sh)), mock
}

func TestAssignNumbersSuccess(t *testing.T) {
	svc, mock := newTestNumberService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM games WHERE id = \? FOR UPDATE`).WithArgs(int64(1)).
		WillReturnRows(testGame{id: 1, fee: "10.00", active: true}.rows())
	mock.ExpectExec(`UPDATE games SET home_numbers = \?, away_numbers = \?, numbers_assigned = 1`).
		WithArgs("[5,2,8,0,1,3,4,6,7,9]", "[3,0,1,2,4,5,6,7,8,9]", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO outbox`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO game_event_audit`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := svc.AssignNumbers(context.Background(), 1, "admin", "t-1")
	require.NoError(t, err)
	assert.Equal(t, []int(homePerm), []int(res.HomeNumbers))
	assert.Equal(t, []int(awayPerm), []int(res.AwayNumbers))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignNumbersAlreadyAssigned(t *testing.T) {
	svc, mock := newTestNumberService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM games WHERE id = \? FOR UPDATE`).
		WillReturnRows(testGame{id: 1, fee: "10.00", active: true, assigned: true}.rows())
	mock.ExpectRollback()

	_, err := svc.AssignNumbers(context.Background(), 1, "admin", "")
	require.ErrorIs(t, err, ErrAlreadyAssigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignNumbersGuardLost(t *testing.T) {
	svc, mock := newTestNumberService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM games WHERE id = \? FOR UPDATE`).
		WillReturnRows(testGame{id: 1, fee: "10.00", active: true}.rows())
	mock.ExpectExec(`UPDATE games SET home_numbers`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.AssignNumbers(context.Background(), 1, "admin", "")
	require.ErrorIs(t, err, ErrAlreadyAssigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignNumbersWindow(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
	}{
		{"too early", testNow.Add(2 * time.Hour)},
		{"after start", testNow.Add(-time.Minute)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc, mock := newTestNumberService(t)
			mock.ExpectBegin()
			mock.ExpectQuery(`FROM games WHERE id = \? FOR UPDATE`).
				WillReturnRows(testGame{id: 1, fee: "10.00", active: true, start: c.start.UnixMilli()}.rows())
			mock.ExpectRollback()

			_, err := svc.AssignNumbers(context.Background(), 1, "admin", "")
			require.ErrorIs(t, err, ErrInvalidState)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAssignNumbersInactive(t *testing.T) {
	svc, mock := newTestNumberService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM games WHERE id = \? FOR UPDATE`).
		WillReturnRows(testGame{id: 1, fee: "10.00"}.rows())
	mock.ExpectRollback()

	_, err := svc.AssignNumbers(context.Background(), 1, "admin", "")
	require.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignWindowOpen(t *testing.T) {
	start := testNow.UnixMilli()
	window := time.Hour
	assert.True(t, assignWindowOpen(testNow, start, window))
	assert.True(t, assignWindowOpen(testNow.Add(-window), start, window))
	assert.False(t, assignWindowOpen(testNow.Add(-window-time.Millisecond), start, window))
	assert.False(t, assignWindowOpen(testNow.Add(time.Millisecond), start, window))
}
