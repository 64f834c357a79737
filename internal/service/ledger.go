package service

import (
	"context"
	"database/sql"
	"strings"

	"squares-server/common/constant"
	"squares-server/common/logger"
	"squares-server/internal/metrics"
	"squares-server/internal/model"
	"squares-server/internal/state"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// PurchaseInput 支付方入账（"funds received"）
// Pending=true 时条目为待审核，审核通过前不计入余额
type PurchaseInput struct {
	UserID      int64
	Amount      decimal.Decimal
	ExternalRef string
	Pending     bool
	TraceID     string
}

// AdjustInput 后台调账，Amount 带符号
type AdjustInput struct {
	UserID      int64
	Amount      decimal.Decimal
	Description string
	Operator    string
	TraceID     string
}

type LedgerService interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	History(ctx context.Context, f model.LedgerFilter) ([]model.LedgerEntry, error)
	RecordPurchase(ctx context.Context, in PurchaseInput) (*model.LedgerEntry, bool, error)
	VerifyEntry(ctx context.Context, entryID int64, approve bool, operator, traceID string) (*model.LedgerEntry, error)
	AdminAdjust(ctx context.Context, in AdjustInput) (*model.LedgerEntry, decimal.Decimal, error)
}

type ledgerService struct{ base }

func NewLedgerService(db *sqlx.DB, opts ...Option) LedgerService {
	return &ledgerService{base: newBase(db, opts...)}
}

// lockBalance 锁定账户行并读取余额；之后同一事务内追加的流水与余额判断一致
func lockBalance(ctx context.Context, exec sqlx.ExtContext, userID int64) (decimal.Decimal, error) {
	acct, err := model.LockAccount(ctx, exec, userID)
	if err != nil {
		return decimal.Zero, storageErr("lock account", err)
	}
	if !acct.Enabled() {
		return decimal.Zero, errorf(ErrInvalidState, "account %d disabled", userID)
	}
	bal, err := model.SumApprovedBalance(ctx, exec, userID)
	if err != nil {
		return decimal.Zero, storageErr("sum balance", err)
	}
	return bal, nil
}

// appendEntry 追加一条流水
func appendEntry(ctx context.Context, exec sqlx.ExtContext, e *model.LedgerEntry) (int64, error) {
	id, err := e.Insert(ctx, exec)
	if err != nil {
		return 0, storageErr("insert ledger entry", err)
	}
	return id, nil
}

func nullGame(gameID int64) sql.NullInt64 {
	return sql.NullInt64{Int64: gameID, Valid: gameID > 0}
}

func nullKey(key string) sql.NullString {
	return sql.NullString{String: key, Valid: key != ""}
}

func (s *ledgerService) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	if userID <= 0 {
		return decimal.Zero, errorf(ErrValidation, "user_id required")
	}
	bal, err := model.SumApprovedBalance(ctx, s.db, userID)
	if err != nil {
		return decimal.Zero, storageErr("sum balance", err)
	}
	return bal, nil
}

func (s *ledgerService) History(ctx context.Context, f model.LedgerFilter) ([]model.LedgerEntry, error) {
	if f.UserID <= 0 {
		return nil, errorf(ErrValidation, "user_id required")
	}
	if f.Kind != "" && !constant.IsValidLedgerKind(f.Kind) {
		return nil, errorf(ErrValidation, "unknown kind %q", f.Kind)
	}
	switch f.Status {
	case "", constant.EntryPending, constant.EntryApproved, constant.EntryRejected:
	default:
		return nil, errorf(ErrValidation, "unknown status %q", f.Status)
	}
	if f.Limit == 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	list, err := model.ListLedgerEntries(ctx, s.db, f)
	if err != nil {
		return nil, storageErr("list ledger", err)
	}
	return list, nil
}

// RecordPurchase 记录支付方入账；ExternalRef 作为幂等键，重复回放返回已有条目（created=false）
func (s *ledgerService) RecordPurchase(ctx context.Context, in PurchaseInput) (entry *model.LedgerEntry, created bool, err error) {
	defer func() { metrics.RecordLedger("purchase", Kind(err)) }()

	ref := strings.TrimSpace(in.ExternalRef)
	if in.UserID <= 0 || ref == "" {
		return nil, false, errorf(ErrValidation, "user_id and external_ref required")
	}
	if !in.Amount.IsPositive() {
		return nil, false, errorf(ErrValidation, "purchase amount must be positive")
	}

	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	if _, err := lockBalance(txCtx, tx, in.UserID); err != nil {
		return nil, false, err
	}

	status := constant.EntryApproved
	if in.Pending {
		status = constant.EntryPending
	}
	e := &model.LedgerEntry{
		UserID:      in.UserID,
		Amount:      in.Amount.Round(2),
		Kind:        constant.KindPurchase,
		Status:      status,
		BizKey:      nullKey(purchaseBizKey(ref)),
		Description: "funds received",
		TraceID:     in.TraceID,
	}
	if _, err := e.Insert(txCtx, tx); err != nil {
		if !model.IsDuplicateKey(err) {
			return nil, false, storageErr("insert purchase", err)
		}
		prev, gerr := model.GetLedgerEntryByBizKey(txCtx, tx, purchaseBizKey(ref))
		if gerr != nil {
			return nil, false, storageErr("get purchase", gerr)
		}
		if prev.UserID != in.UserID || !prev.Amount.Equal(e.Amount) {
			logger.WarnCtx(ctx, "purchase replay mismatch",
				zap.String("external_ref", ref), zap.Int64("user_id", in.UserID), zap.Int64("prev_user_id", prev.UserID))
			return nil, false, errorf(ErrValidation, "external_ref %s already used", ref)
		}
		logger.InfoCtx(ctx, "purchase replayed", zap.String("external_ref", ref), zap.Int64("entry_id", prev.ID))
		return prev, false, nil
	}
	if err := commit(tx); err != nil {
		return nil, false, err
	}
	logger.InfoCtx(ctx, "purchase recorded",
		zap.Int64("user_id", in.UserID), zap.String("amount", e.Amount.StringFixed(2)),
		zap.String("status", status), zap.String("external_ref", ref))
	return e, true, nil
}

// VerifyEntry 审核待定条目，唯一允许的流水修改
func (s *ledgerService) VerifyEntry(ctx context.Context, entryID int64, approve bool, operator, traceID string) (entry *model.LedgerEntry, err error) {
	defer func() { metrics.RecordLedger("verify", Kind(err)) }()

	if entryID <= 0 {
		return nil, errorf(ErrValidation, "entry id required")
	}
	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	e, err := model.GetLedgerEntryForUpdate(txCtx, tx, entryID)
	if err != nil {
		return nil, storageErr("get entry", notFound(err, "ledger entry %d", entryID))
	}
	next, err := state.NextEntryStatus(e.Status, approve)
	if err != nil {
		return nil, errorf(ErrInvalidState, "entry %d: %v", entryID, err)
	}

	bal, err := lockBalance(txCtx, tx, e.UserID)
	if err != nil {
		return nil, err
	}
	if next == constant.EntryApproved && bal.Add(e.Amount).IsNegative() {
		return nil, errorf(ErrInsufficientFunds, "approving entry %d would overdraw user %d", entryID, e.UserID)
	}

	n, err := model.UpdateLedgerEntryStatus(txCtx, tx, entryID, next)
	if err != nil {
		return nil, storageErr("update entry status", err)
	}
	if n == 0 {
		return nil, errorf(ErrInvalidState, "entry %d no longer pending", entryID)
	}
	if err := model.WriteAudit(txCtx, tx, entryID, model.AuditEntryVerified, e.Status, next, operator, traceID, nil); err != nil {
		return nil, storageErr("write audit", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	e.Status = next
	logger.InfoCtx(ctx, "ledger entry verified",
		zap.Int64("entry_id", entryID), zap.String("status", next), zap.String("operator", operator))
	return e, nil
}

// AdminAdjust 后台调账；负数调整不得使余额为负
func (s *ledgerService) AdminAdjust(ctx context.Context, in AdjustInput) (entry *model.LedgerEntry, balance decimal.Decimal, err error) {
	defer func() { metrics.RecordLedger("adjust", Kind(err)) }()

	if in.UserID <= 0 {
		return nil, decimal.Zero, errorf(ErrValidation, "user_id required")
	}
	amt := in.Amount.Round(2)
	if amt.IsZero() {
		return nil, decimal.Zero, errorf(ErrValidation, "adjust amount must be non-zero")
	}

	tx, txCtx, cancel, err := s.beginTx(ctx)
	if err != nil {
		return nil, decimal.Zero, err
	}
	defer cancel()
	defer func() { _ = tx.Rollback() }()

	bal, err := lockBalance(txCtx, tx, in.UserID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	after := bal.Add(amt)
	if after.IsNegative() {
		return nil, decimal.Zero, errorf(ErrInsufficientFunds, "user %d balance %s, adjust %s", in.UserID, bal.StringFixed(2), amt.StringFixed(2))
	}

	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		desc = "admin adjustment"
	}
	e := &model.LedgerEntry{
		UserID:      in.UserID,
		Amount:      amt,
		Kind:        constant.KindAdminAdjustment,
		Status:      constant.EntryApproved,
		Description: desc,
		TraceID:     in.TraceID,
	}
	if _, err := appendEntry(txCtx, tx, e); err != nil {
		return nil, decimal.Zero, err
	}
	audit := map[string]any{"amount": amt.StringFixed(2), "description": desc}
	if err := model.WriteAudit(txCtx, tx, in.UserID, model.AuditLedgerAdjusted, bal.StringFixed(2), after.StringFixed(2), in.Operator, in.TraceID, audit); err != nil {
		return nil, decimal.Zero, storageErr("write audit", err)
	}
	if err := commit(tx); err != nil {
		return nil, decimal.Zero, err
	}
	logger.InfoCtx(ctx, "admin adjustment",
		zap.Int64("user_id", in.UserID), zap.String("amount", amt.StringFixed(2)),
		zap.String("balance", after.StringFixed(2)), zap.String("operator", in.Operator))
	return e, after, nil
}

func purchaseBizKey(ref string) string { return "purchase:" + ref }
