package model

import (
	"context"
	"database/sql"
	"time"

	"squares-server/common"
	"squares-server/common/constant"

	g "github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// WithdrawalRequest 对应 withdrawal_requests 表
// status: pending -> approved -> completed，或 pending -> rejected
type WithdrawalRequest struct {
	ID             int64           `db:"id"`
	UserID         int64           `db:"user_id"`
	Amount         decimal.Decimal `db:"amount"`
	Destination    string          `db:"destination"`
	Status         string          `db:"status"`
	HoldEntryID    int64           `db:"hold_entry_id"`
	ReleaseEntryID sql.NullInt64   `db:"release_entry_id"`
	Operator       string          `db:"operator"`
	TraceID        string          `db:"trace_id"`
	CreatedAt      int64           `db:"created_at"`
	UpdatedAt      int64           `db:"updated_at"`
}

const withdrawalColumns = `id, user_id, amount, destination, status, hold_entry_id, release_entry_id,
	operator, trace_id, created_at, updated_at`

// Insert 新建提现申请（pending），返回自增ID
func (w *WithdrawalRequest) Insert(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	now := time.Now().UnixMilli()
	w.CreatedAt, w.UpdatedAt = now, now
	w.Status = constant.WithdrawalPending

	sqlStr := `INSERT INTO withdrawal_requests (user_id, amount, destination, status, hold_entry_id, operator, trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := exec.ExecContext(ctx, sqlStr, w.UserID, w.Amount, w.Destination, w.Status, w.HoldEntryID, "", w.TraceID, now, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	w.ID = id
	return id, nil
}

// GetWithdrawalForUpdate 加锁查询提现申请，必须在事务中调用
func GetWithdrawalForUpdate(ctx context.Context, q sqlx.QueryerContext, id int64) (*WithdrawalRequest, error) {
	sqlStr := "SELECT " + withdrawalColumns + " FROM withdrawal_requests WHERE id = ? FOR UPDATE"
	var w WithdrawalRequest
	if err := sqlx.GetContext(ctx, q, &w, sqlStr, id); err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWithdrawalStatus 状态迁移，from 作为守卫条件，返回受影响行数
func UpdateWithdrawalStatus(ctx context.Context, exec sqlx.ExtContext, id int64, from, to, operator string, releaseEntryID int64) (int64, error) {
	var release sql.NullInt64
	if releaseEntryID > 0 {
		release = sql.NullInt64{Int64: releaseEntryID, Valid: true}
	}
	sqlStr := `UPDATE withdrawal_requests SET status = ?, operator = ?, release_entry_id = COALESCE(?, release_entry_id), updated_at = ?
		WHERE id = ? AND status = ?`
	res, err := exec.ExecContext(ctx, sqlStr, to, operator, release, time.Now().UnixMilli(), id, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SumWithdrawalsSince 统计用户自 sinceMs 起未被拒绝的提现申请总额（日限额校验）
func SumWithdrawalsSince(ctx context.Context, q sqlx.QueryerContext, userID, sinceMs int64) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	sqlStr := "SELECT SUM(amount) FROM withdrawal_requests WHERE user_id = ? AND status <> ? AND created_at >= ?"
	if err := sqlx.GetContext(ctx, q, &sum, sqlStr, userID, constant.WithdrawalRejected, sinceMs); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// ListWithdrawals 按用户/状态查询提现申请，按ID倒序
func ListWithdrawals(ctx context.Context, q sqlx.QueryerContext, userID int64, status string, limit uint) ([]WithdrawalRequest, error) {
	var ex []exp.Expression
	if userID > 0 {
		ex = append(ex, g.C("user_id").Eq(userID))
	}
	if status != "" {
		ex = append(ex, g.C("status").Eq(status))
	}
	var list []WithdrawalRequest
	err := common.SelectAll(ctx, q, &list, common.QueryArg{
		Table:  "withdrawal_requests",
		Fields: common.EnumFields(WithdrawalRequest{}),
		Ex:     ex,
		Order:  []exp.OrderedExpression{g.C("id").Desc()},
		Limit:  limit,
	})
	return list, err
}
