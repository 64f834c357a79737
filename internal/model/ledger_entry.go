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

// LedgerEntry 对应 ledger_entries 表（追加式账本）
// amount 带符号：正数入账，负数出账；余额 = 该用户所有 approved 条目 amount 之和
// 条目写入后只允许 status 从 pending 变为 approved/rejected，其余字段不可修改
type LedgerEntry struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	Amount      decimal.Decimal `db:"amount"`
	Kind        string          `db:"kind"`
	GameID      sql.NullInt64   `db:"game_id"`
	Status      string          `db:"status"`
	BizKey      sql.NullString  `db:"biz_key"` // 外部单号/幂等键，唯一
	Description string          `db:"description"`
	TraceID     string          `db:"trace_id"`
	CreatedAt   int64           `db:"created_at"`
	UpdatedAt   int64           `db:"updated_at"`
}

const ledgerColumns = "id, user_id, amount, kind, game_id, status, biz_key, description, trace_id, created_at, updated_at"

// Insert 追加一条账本记录，返回自增ID
// biz_key 唯一索引冲突时返回 1062 错误，由调用方按幂等处理
func (l *LedgerEntry) Insert(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	now := time.Now().UnixMilli()
	l.CreatedAt, l.UpdatedAt = now, now
	if l.Status == "" {
		l.Status = constant.EntryApproved
	}

	// 使用原生 SQL 以避免 goqu 在某些 MySQL 版本上的兼容性问题
	sqlStr := `INSERT INTO ledger_entries (user_id, amount, kind, game_id, status, biz_key, description, trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{l.UserID, l.Amount, l.Kind, l.GameID, l.Status, l.BizKey, l.Description, l.TraceID, now, now}

	res, err := exec.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	l.ID = id
	return id, nil
}

// SumApprovedBalance 计算用户余额（已审核条目之和）；调用方应先持有账户行锁
func SumApprovedBalance(ctx context.Context, q sqlx.QueryerContext, userID int64) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	sqlStr := "SELECT SUM(amount) FROM ledger_entries WHERE user_id = ? AND status = ?"
	if err := sqlx.GetContext(ctx, q, &sum, sqlStr, userID, constant.EntryApproved); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// GetLedgerEntry 按ID查询
func GetLedgerEntry(ctx context.Context, q sqlx.QueryerContext, id int64) (*LedgerEntry, error) {
	return getLedgerEntry(ctx, q, "id = ?", id, "")
}

// GetLedgerEntryForUpdate 按ID加锁查询，必须在事务中调用
func GetLedgerEntryForUpdate(ctx context.Context, q sqlx.QueryerContext, id int64) (*LedgerEntry, error) {
	return getLedgerEntry(ctx, q, "id = ?", id, " FOR UPDATE")
}

// GetLedgerEntryByBizKey 按业务键查询（幂等回放）
func GetLedgerEntryByBizKey(ctx context.Context, q sqlx.QueryerContext, bizKey string) (*LedgerEntry, error) {
	return getLedgerEntry(ctx, q, "biz_key = ?", bizKey, "")
}

func getLedgerEntry(ctx context.Context, q sqlx.QueryerContext, where string, arg interface{}, lock string) (*LedgerEntry, error) {
	sqlStr := "SELECT " + ledgerColumns + " FROM ledger_entries WHERE " + where + " LIMIT 1" + lock
	var l LedgerEntry
	if err := sqlx.GetContext(ctx, q, &l, sqlStr, arg); err != nil {
		return nil, err
	}
	return &l, nil
}

// UpdateLedgerEntryStatus 审核条目：仅 pending -> approved/rejected，返回受影响行数
func UpdateLedgerEntryStatus(ctx context.Context, exec sqlx.ExtContext, id int64, status string) (int64, error) {
	sqlStr := "UPDATE ledger_entries SET status = ?, updated_at = ? WHERE id = ? AND status = ?"
	res, err := exec.ExecContext(ctx, sqlStr, status, time.Now().UnixMilli(), id, constant.EntryPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LedgerFilter 账本流水查询条件（零值字段不参与过滤）
type LedgerFilter struct {
	UserID int64
	Kind   string
	GameID int64
	Status string
	Offset uint
	Limit  uint
}

// ListLedgerEntries 动态条件查询流水，按ID倒序
func ListLedgerEntries(ctx context.Context, q sqlx.QueryerContext, f LedgerFilter) ([]LedgerEntry, error) {
	ex := []exp.Expression{g.C("user_id").Eq(f.UserID)}
	if f.Kind != "" {
		ex = append(ex, g.C("kind").Eq(f.Kind))
	}
	if f.GameID > 0 {
		ex = append(ex, g.C("game_id").Eq(f.GameID))
	}
	if f.Status != "" {
		ex = append(ex, g.C("status").Eq(f.Status))
	}

	var list []LedgerEntry
	err := common.SelectAll(ctx, q, &list, common.QueryArg{
		Table:  "ledger_entries",
		Fields: common.EnumFields(LedgerEntry{}),
		Ex:     ex,
		Order:  []exp.OrderedExpression{g.C("id").Desc()},
		Offset: f.Offset,
		Limit:  f.Limit,
	})
	return list, err
}
