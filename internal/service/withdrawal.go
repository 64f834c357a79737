package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"squares-server/common/constant"
	"squares-server/common/logger"
	"squares-server/internal/metrics"
	"squares-server/internal/model"
	"squares-server/internal/state"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 日限额为滚动 24 小时窗口
const withdrawalWindow = 24 * time.Hour

// WithdrawalInput 提现申请
type WithdrawalInput struct {
	UserID      int64
	Amount      decimal.Decimal
	Destination string
	TraceID     string
}

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, in WithdrawalInput) (*model.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, requestID int64, operator, traceID string) (*model.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, requestID int64, operator, traceID string) (*model.WithdrawalRequest, error)
	List(ctx context.Context, userID int64, status string, limit uint) ([]model.WithdrawalRequest, error)
}

type withdrawalService struct{ base }

func NewWithdrawalService(db *sqlx.DB, opts ...Option) WithdrawalService {
	return &withdrawalService{base: newBase(db, opts...)}
}

func withdrawalBizKey(id int64) string { return "withdrawal:" + strconv.FormatInt(id, 10) }

// RequestWithdrawal 申请提现：校验通过后立即追加 -amount 的 hold 流水，资金即刻不可用
func (s *withdrawalService) RequestWithdrawal(ctx context.Context, in WithdrawalInput) (w *model.WithdrawalRequest, err error) {
	defer func() { metrics.RecordWithdrawal("request", Kind(err)) }()

	amt := in.Amount.Round(2)
	dest := strings.TrimSpace(in.Destination)
	if in.UserID <= 0 {
		return nil, errorf(ErrValidation, "user_id required")
	}
	if dest == "" {
		return nil, errorf(ErrValidation, "destination required")
	}
	if !amt.IsPositive() || amt.LessThan(s.settings.WithdrawalMin) {
		return nil, errorf(ErrValidation, "amount %s below minimum %s", amt.StringFixed(2), s.settings.WithdrawalMin.StringFixed(2))
	}
	ctx = logger.WithTraceID(ctx, in.TraceID)

	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	bal, err := lockBalance(txCtx, tx, in.UserID)
	if err != nil {
		return nil, err
	}
	if amt.GreaterThan(bal) {
		logger.WarnCtx(ctx, "withdrawal rejected: insufficient funds",
			zap.Int64("user_id", in.UserID), zap.String("amount", amt.StringFixed(2)), zap.String("balance", bal.StringFixed(2)))
		return nil, errorf(ErrInsufficientFunds, "balance %s < amount %s", bal.StringFixed(2), amt.StringFixed(2))
	}
	since := s.clock.Now().Add(-withdrawalWindow).UnixMilli()
	recent, err := model.SumWithdrawalsSince(txCtx, tx, in.UserID, since)
	if err != nil {
		return nil, storageErr("sum withdrawals", err)
	}
	if recent.Add(amt).GreaterThan(s.settings.WithdrawalDailyCap) {
		logger.WarnCtx(ctx, "withdrawal rejected: daily cap",
			zap.Int64("user_id", in.UserID), zap.String("recent", recent.StringFixed(2)), zap.String("amount", amt.StringFixed(2)))
		return nil, errorf(ErrDailyLimitExceeded, "24h total %s + %s exceeds %s",
			recent.StringFixed(2), amt.StringFixed(2), s.settings.WithdrawalDailyCap.StringFixed(2))
	}

	hold := &model.LedgerEntry{
		UserID:      in.UserID,
		Amount:      amt.Neg(),
		Kind:        constant.KindWithdrawalHold,
		Status:      constant.EntryApproved,
		Description: "withdrawal hold",
		TraceID:     in.TraceID,
	}
	holdID, err := appendEntry(txCtx, tx, hold)
	if err != nil {
		return nil, err
	}
	w = &model.WithdrawalRequest{
		UserID:      in.UserID,
		Amount:      amt,
		Destination: dest,
		HoldEntryID: holdID,
		TraceID:     in.TraceID,
	}
	if _, err := w.Insert(txCtx, tx); err != nil {
		return nil, storageErr("insert withdrawal", err)
	}
	payload := map[string]any{
		"event":      "withdrawal_requested",
		"request_id": w.ID,
		"user_id":    w.UserID,
		"amount":     amt.StringFixed(2),
	}
	if err := model.CreateOutbox(txCtx, tx, model.TopicWithdrawalRequested, withdrawalBizKey(w.ID), payload); err != nil {
		return nil, storageErr("write outbox", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "withdrawal requested",
		zap.Int64("request_id", w.ID), zap.Int64("user_id", in.UserID), zap.String("amount", amt.StringFixed(2)),
		zap.String("balance", bal.Sub(amt).StringFixed(2)))
	return w, nil
}

// ApproveWithdrawal pending -> approved -> completed（同一事务），不产生流水，仅通知出款方
func (s *withdrawalService) ApproveWithdrawal(ctx context.Context, requestID int64, operator, traceID string) (w *model.WithdrawalRequest, err error) {
	defer func() { metrics.RecordWithdrawal("approve", Kind(err)) }()

	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	w, err = model.GetWithdrawalForUpdate(txCtx, tx, requestID)
	if err != nil {
		return nil, storageErr("get withdrawal", notFound(err, "withdrawal %d", requestID))
	}
	if err := notTerminal(w); err != nil {
		return nil, err
	}
	prev := w.Status
	cur := prev
	for _, evt := range []string{state.EvtApprove, state.EvtComplete} {
		next, err := state.NextWithdrawalState(cur, evt)
		if err != nil {
			return nil, errorf(ErrInvalidState, "withdrawal %d: %v", requestID, err)
		}
		if err := s.transition(txCtx, tx, w, cur, next, operator, 0); err != nil {
			return nil, err
		}
		cur = next
	}
	if err := s.notifier.NotifyWithdrawalApproved(txCtx, tx, w); err != nil {
		return nil, storageErr("notify payout", err)
	}
	if err := model.WriteAudit(txCtx, tx, requestID, model.AuditWithdrawalApproved, prev, cur, operator, traceID, nil); err != nil {
		return nil, storageErr("write audit", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "withdrawal approved",
		zap.Int64("request_id", requestID), zap.Int64("user_id", w.UserID), zap.String("operator", operator))
	return w, nil
}

// RejectWithdrawal pending -> rejected，追加 +amount 的 release 流水；原 hold 流水保留
func (s *withdrawalService) RejectWithdrawal(ctx context.Context, requestID int64, operator, traceID string) (w *model.WithdrawalRequest, err error) {
	defer func() { metrics.RecordWithdrawal("reject", Kind(err)) }()

	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	w, err = model.GetWithdrawalForUpdate(txCtx, tx, requestID)
	if err != nil {
		return nil, storageErr("get withdrawal", notFound(err, "withdrawal %d", requestID))
	}
	if err := notTerminal(w); err != nil {
		return nil, err
	}
	prev := w.Status
	next, err := state.NextWithdrawalState(prev, state.EvtReject)
	if err != nil {
		return nil, errorf(ErrInvalidState, "withdrawal %d: %v", requestID, err)
	}
	if _, err := model.LockAccount(txCtx, tx, w.UserID); err != nil {
		return nil, storageErr("lock account", err)
	}
	release := &model.LedgerEntry{
		UserID:      w.UserID,
		Amount:      w.Amount,
		Kind:        constant.KindWithdrawalRelease,
		Status:      constant.EntryApproved,
		BizKey:      nullKey(fmt.Sprintf("release:%d", w.ID)),
		Description: fmt.Sprintf("withdrawal #%d rejected", w.ID),
		TraceID:     traceID,
	}
	releaseID, err := appendEntry(txCtx, tx, release)
	if err != nil {
		return nil, err
	}
	if err := s.transition(txCtx, tx, w, prev, next, operator, releaseID); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"event":      "withdrawal_rejected",
		"request_id": w.ID,
		"user_id":    w.UserID,
		"amount":     w.Amount.StringFixed(2),
	}
	if err := model.CreateOutbox(txCtx, tx, model.TopicWithdrawalRejected, withdrawalBizKey(w.ID), payload); err != nil {
		return nil, storageErr("write outbox", err)
	}
	if err := model.WriteAudit(txCtx, tx, requestID, model.AuditWithdrawalRejected, prev, next, operator, traceID, nil); err != nil {
		return nil, storageErr("write audit", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "withdrawal rejected",
		zap.Int64("request_id", requestID), zap.Int64("user_id", w.UserID), zap.Int64("release_entry_id", releaseID), zap.String("operator", operator))
	return w, nil
}

// notTerminal 已完成/已拒绝的申请不再接受任何操作
func notTerminal(w *model.WithdrawalRequest) error {
	if state.IsTerminal(w.Status) {
		return errorf(ErrInvalidState, "withdrawal %d already %s", w.ID, w.Status)
	}
	return nil
}

func (s *withdrawalService) transition(ctx context.Context, tx *sqlx.Tx, w *model.WithdrawalRequest, from, to, operator string, releaseID int64) error {
	n, err := model.UpdateWithdrawalStatus(ctx, tx, w.ID, from, to, operator, releaseID)
	if err != nil {
		return storageErr("update withdrawal status", err)
	}
	if n == 0 {
		return errorf(ErrInvalidState, "withdrawal %d no longer %s", w.ID, from)
	}
	w.Status = to
	w.Operator = operator
	if releaseID > 0 {
		w.ReleaseEntryID.Int64, w.ReleaseEntryID.Valid = releaseID, true
	}
	return nil
}

func (s *withdrawalService) List(ctx context.Context, userID int64, status string, limit uint) ([]model.WithdrawalRequest, error) {
	if limit == 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	list, err := model.ListWithdrawals(ctx, s.db, userID, status, limit)
	if err != nil {
		return nil, storageErr("list withdrawals", err)
	}
	return list, nil
}
