package service

import (
	"context"
	"testing"

	"squares-server/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPurchaseCreatesEntry(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewLedgerService(db)

	mock.ExpectBegin()
	expectAccountLock(mock, 7)
	expectBalance(mock, 7, nil)
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WithArgs(int64(7), "25", "purchase", nil, "pending", "purchase:pay-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectCommit()

	e, created, err := svc.RecordPurchase(context.Background(), PurchaseInput{UserID: 7, Amount: decimal.RequireFromString("25"), ExternalRef: "pay-1", Pending: true})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(5), e.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPurchaseReplay(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewLedgerService(db)

	mock.ExpectBegin()
	expectAccountLock(mock, 7)
	expectBalance(mock, 7, "25.00")
	mock.ExpectExec(`INSERT INTO ledger_entries`).WillReturnError(dupErr())
	mock.ExpectQuery(`FROM ledger_entries WHERE biz_key = \?`).WithArgs("purchase:pay-1").
		WillReturnRows(sqlmock.NewRows(ledgerCols).AddRow(int64(5), int64(7), "25.00", "purchase", nil, "approved", "purchase:pay-1", "", "", int64(1), int64(1)))
	mock.ExpectRollback()

	e, created, err := svc.RecordPurchase(context.Background(), PurchaseInput{UserID: 7, Amount: decimal.RequireFromString("25"), ExternalRef: "pay-1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(5), e.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminAdjustCannotOverdraw(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewLedgerService(db)

	mock.ExpectBegin()
	expectAccountLock(mock, 7)
	expectBalance(mock, 7, "20.00")
	mock.ExpectRollback()

	_, _, err := svc.AdminAdjust(context.Background(), AdjustInput{UserID: 7, Amount: decimal.RequireFromString("-20.01"), Operator: "ops"})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminAdjustDebit(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewLedgerService(db)

	mock.ExpectBegin()
	expectAccountLock(mock, 7)
	expectBalance(mock, 7, "20.00")
	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WithArgs(int64(7), "-20", "admin-adjustment", nil, "approved", nil, "chargeback", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectExec(`INSERT INTO game_event_audit`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	e, bal, err := svc.AdminAdjust(context.Background(), AdjustInput{UserID: 7, Amount: decimal.RequireFromString("-20"), Description: "chargeback", Operator: "ops"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), e.ID)
	assert.True(t, bal.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyEntry(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewLedgerService(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM ledger_entries WHERE id = \? LIMIT 1 FOR UPDATE`).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(ledgerCols).AddRow(int64(5), int64(7), "25.00", "purchase", nil, "pending", "purchase:pay-1", "", "", int64(1), int64(1)))
	expectAccountLock(mock, 7)
	expectBalance(mock, 7, nil)
	mock.ExpectExec(`UPDATE ledger_entries SET status = \?`).WithArgs("approved", sqlmock.AnyArg(), int64(5), "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO game_event_audit`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	e, err := svc.VerifyEntry(context.Background(), 5, true, "ops", "")
	require.NoError(t, err)
	assert.Equal(t, "approved", e.Status)

	// 已审核条目不可再次变更
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM ledger_entries WHERE id = \? LIMIT 1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(ledgerCols).AddRow(int64(5), int64(7), "25.00", "purchase", nil, "approved", "purchase:pay-1", "", "", int64(1), int64(1)))
	mock.ExpectRollback()
	_, err = svc.VerifyEntry(context.Background(), 5, false, "ops", "")
	require.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryLimits(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewLedgerService(db)

	_, err := svc.History(context.Background(), model.LedgerFilter{UserID: 7, Kind: "bogus"})
	require.ErrorIs(t, err, ErrValidation)

	mock.ExpectQuery("FROM `ledger_entries` WHERE .*`user_id` = \\?.* ORDER BY `id` DESC LIMIT").
		WillReturnRows(sqlmock.NewRows(ledgerCols).AddRow(int64(1), int64(7), "10.00", "purchase", nil, "approved", nil, "", "", int64(1), int64(1)))
	list, err := svc.History(context.Background(), model.LedgerFilter{UserID: 7, Limit: 500})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
