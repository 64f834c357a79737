package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PayoutLog 派彩日志表（防止重复派彩）；UNIQUE(game_id, checkpoint)
type PayoutLog struct {
	ID            int64           `db:"id"`
	GameID        int64           `db:"game_id"`
	Checkpoint    int             `db:"checkpoint"`
	UserID        int64           `db:"user_id"`
	RowIdx        int             `db:"row_idx"`
	ColIdx        int             `db:"col_idx"`
	Amount        decimal.Decimal `db:"amount"`
	LedgerEntryID int64           `db:"ledger_entry_id"`
	TraceID       string          `db:"trace_id"`
	CreatedAt     int64           `db:"created_at"`
}

// CreatePayoutLog 创建派彩日志（利用唯一索引防止重复派彩）
// 如果返回唯一键冲突错误，说明该检查点已经派彩过
func CreatePayoutLog(ctx context.Context, exec sqlx.ExtContext, p *PayoutLog) error {
	p.CreatedAt = time.Now().UnixMilli()

	sqlStr := `INSERT INTO payout_log (game_id, checkpoint, user_id, row_idx, col_idx, amount, ledger_entry_id, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := exec.ExecContext(ctx, sqlStr,
		p.GameID, p.Checkpoint, p.UserID, p.RowIdx, p.ColIdx, p.Amount, p.LedgerEntryID, p.TraceID, p.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	p.ID = id
	return nil
}

// SetPayoutLogEntry 回写派彩流水ID
func SetPayoutLogEntry(ctx context.Context, exec sqlx.ExtContext, id, entryID int64) error {
	_, err := exec.ExecContext(ctx, "UPDATE payout_log SET ledger_entry_id = ? WHERE id = ?", entryID, id)
	return err
}

// ListPayoutLogs 查询某局全部派彩记录
func ListPayoutLogs(ctx context.Context, q sqlx.QueryerContext, gameID int64) ([]PayoutLog, error) {
	sqlStr := `SELECT id, game_id, checkpoint, user_id, row_idx, col_idx, amount, ledger_entry_id, trace_id, created_at
		FROM payout_log WHERE game_id = ? ORDER BY checkpoint ASC`
	var list []PayoutLog
	if err := sqlx.SelectContext(ctx, q, &list, sqlStr, gameID); err != nil {
		return nil, err
	}
	return list, nil
}

// PayoutLogExists 检查点是否已派彩
func PayoutLogExists(ctx context.Context, q sqlx.QueryerContext, gameID int64, checkpoint int) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM payout_log WHERE game_id = ? AND checkpoint = ?", gameID, checkpoint)
	return n > 0, err
}
