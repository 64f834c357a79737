package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squares-server/internal/model"
	"squares-server/internal/service"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func dupErr() error {
	return &mysqlerr.MySQLError{Number: 1062, Message: "Duplicate entry"}
}

type published struct {
	topic string
	body  string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	fail map[string]error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[topic]; err != nil {
		return err
	}
	p.sent = append(p.sent, published{topic: topic, body: string(body)})
	return nil
}

// fakeLedger 只实现消费者用到的 RecordPurchase
type fakeLedger struct {
	service.LedgerService
	calls []service.PurchaseInput
	err   error
}

func (f *fakeLedger) RecordPurchase(_ context.Context, in service.PurchaseInput) (*model.LedgerEntry, bool, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, false, f.err
	}
	return &model.LedgerEntry{ID: 77, UserID: in.UserID, Amount: in.Amount}, true, nil
}

type fakeNumbers struct {
	calls []int64
	errs  map[int64]error
}

func (f *fakeNumbers) AssignNumbers(_ context.Context, gameID int64, operator, _ string) (*service.AssignResult, error) {
	f.calls = append(f.calls, gameID)
	if operator != service.SchedulerOperator {
		return nil, errors.New("unexpected operator " + operator)
	}
	if err := f.errs[gameID]; err != nil {
		return nil, err
	}
	return &service.AssignResult{GameID: gameID}, nil
}

func TestDispatchOutbox(t *testing.T) {
	db, mock := newMockDB(t)
	pub := &fakePublisher{fail: map[string]error{model.TopicPayoutIssued: errors.New("broker down")}}

	mock.ExpectQuery("SELECT id, topic, biz_key, payload FROM outbox WHERE status = \\?").
		WithArgs(model.OutboxPending, 10, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "biz_key", "payload"}).
			AddRow(1, model.TopicBoxClaimed, "claim:1:0:0:1", `{"game_id":1}`).
			AddRow(2, model.TopicPayoutIssued, "payout:1:1", `{"game_id":1}`))
	mock.ExpectExec("UPDATE outbox SET status = \\?, updated_at = \\? WHERE id = \\?").
		WithArgs(model.OutboxSent, sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outbox SET status = CASE").
		WithArgs(9, model.OutboxFailed, model.OutboxPending, sqlmock.AnyArg(), sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sent, err := DispatchOutbox(context.Background(), db, pub, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, model.TopicBoxClaimed, pub.sent[0].topic)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchOutboxListFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT id, topic, biz_key, payload FROM outbox").WillReturnError(errors.New("conn refused"))

	sent, err := DispatchOutbox(context.Background(), db, &fakePublisher{}, 100)
	assert.Error(t, err)
	assert.Zero(t, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncateErr(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncateErr(errors.New(string(long))), 240)
	assert.Equal(t, `{"error":"boom"}`, truncateErr(errors.New("boom")))
}

func TestFundsReceived(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := &fakeLedger{}
	h := NewFundsHandler(db, ledger)
	body := []byte(`{"event":"funds_received","user_id":42,"amount":"25.50","external_ref":"pay-1","pending":true,"trace_id":"t-1"}`)

	mock.ExpectExec("INSERT INTO inbox").
		WithArgs("m-1", "squares_funds", string(body), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, h.Handle(context.Background(), "m-1", "squares_funds", body))
	require.Len(t, ledger.calls, 1)
	in := ledger.calls[0]
	assert.Equal(t, int64(42), in.UserID)
	assert.True(t, in.Amount.Equal(decimal.RequireFromString("25.5")))
	assert.Equal(t, "pay-1", in.ExternalRef)
	assert.True(t, in.Pending)
	assert.Equal(t, "t-1", in.TraceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFundsRedelivery(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := &fakeLedger{}
	h := NewFundsHandler(db, ledger)
	body := []byte(`{"event":"funds_sent","user_id":42,"amount":"10","external_ref":"wd-9"}`)

	mock.ExpectExec("INSERT INTO inbox").WillReturnError(dupErr())

	require.NoError(t, h.Handle(context.Background(), "m-2", "squares_funds", body))
	assert.Empty(t, ledger.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFundsStorageFailureRetries(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := &fakeLedger{err: fmt.Errorf("%w: lock account: %w", service.ErrStorageUnavailable, errors.New("deadlock"))}
	h := NewFundsHandler(db, ledger)
	body := []byte(`{"event":"funds_received","user_id":42,"amount":"5","external_ref":"pay-2"}`)

	err := h.Handle(context.Background(), "m-3", "squares_funds", body)
	assert.ErrorIs(t, err, service.ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 业务拒绝的入账不 ack、不写 inbox，重投耗尽后进入死信
func TestFundsRejectedPurchaseNotAcked(t *testing.T) {
	cases := map[string]error{
		"disabled account": fmt.Errorf("%w: account 42 disabled", service.ErrInvalidState),
		"ref conflict":     fmt.Errorf("%w: external_ref pay-3 already used", service.ErrValidation),
	}
	for name, rerr := range cases {
		t.Run(name, func(t *testing.T) {
			db, mock := newMockDB(t)
			ledger := &fakeLedger{err: rerr}
			h := NewFundsHandler(db, ledger)
			body := []byte(`{"event":"funds_received","user_id":42,"amount":"5","external_ref":"pay-3"}`)

			err := h.Handle(context.Background(), "m-4", "squares_funds", body)
			require.Error(t, err)
			assert.ErrorIs(t, err, rerr)
			assert.Len(t, ledger.calls, 1)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFundsMalformedPayload(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := &fakeLedger{}
	h := NewFundsHandler(db, ledger)

	assert.NoError(t, h.Handle(context.Background(), "m-5", "squares_funds", []byte("not json")))
	assert.Empty(t, ledger.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignSchedulerRunOnce(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 2, 8, 22, 0, 0, 0, time.UTC)
	clock := service.ClockFunc(func() time.Time { return now })
	numbers := &fakeNumbers{errs: map[int64]error{
		8: service.ErrAlreadyAssigned,
		9: errors.New("deadlock"),
	}}
	s := NewAssignScheduler(db, numbers, nil, clock, time.Hour)

	mock.ExpectQuery("SELECT id FROM games WHERE is_active = 1 AND numbers_assigned = 0").
		WithArgs(now.UnixMilli(), now.Add(time.Hour).UnixMilli(), assignBatch).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7).AddRow(8).AddRow(9))

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{7, 8, 9}, numbers.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignSchedulerNothingDue(t *testing.T) {
	db, mock := newMockDB(t)
	numbers := &fakeNumbers{}
	s := NewAssignScheduler(db, numbers, nil, nil, time.Hour)

	mock.ExpectQuery("SELECT id FROM games").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, numbers.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
