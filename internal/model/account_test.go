package model

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

// 首次使用的账户：先 upsert 拿到排他锁，再加锁读取；不走 "未命中 FOR UPDATE 再 INSERT" 的间隙锁路径
func TestLockAccountUpsertsBeforeLocking(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO accounts \(user_id, status, created_at, updated_at\) VALUES \(\?, \?, \?, \?\) ON DUPLICATE KEY UPDATE user_id = user_id`).
		WithArgs(int64(42), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT user_id, status, created_at, updated_at FROM accounts WHERE user_id = \? FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status", "created_at", "updated_at"}).AddRow(int64(42), 1, int64(1), int64(1)))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	a, err := LockAccount(context.Background(), tx, 42)
	require.NoError(t, err)
	assert.True(t, a.Enabled())
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockAccountUpsertFailure(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("connection reset")

	mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(boom)

	_, err := LockAccount(context.Background(), db, 42)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
