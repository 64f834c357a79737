package model

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// Box 对应 boxes 表；UNIQUE(game_id, row_idx, col_idx)
// owner_id 为 NULL 表示未被认领；ledger_entry_id 为配对的扣款流水（免费局为 NULL）
type Box struct {
	ID            int64         `db:"id"`
	GameID        int64         `db:"game_id"`
	RowIdx        int           `db:"row_idx"`
	ColIdx        int           `db:"col_idx"`
	OwnerID       sql.NullInt64 `db:"owner_id"`
	ClaimedAt     sql.NullInt64 `db:"claimed_at"`
	LedgerEntryID sql.NullInt64 `db:"ledger_entry_id"`
	CreatedAt     int64         `db:"created_at"`
}

func (b *Box) Owned() bool { return b.OwnerID.Valid }

const boxColumns = "id, game_id, row_idx, col_idx, owner_id, claimed_at, ledger_entry_id, created_at"

// ClaimBox 条件更新认领格子（owner_id IS NULL 为 CAS 条件）
// 返回受影响行数：1=认领成功 0=已被占用或格子不存在
func ClaimBox(ctx context.Context, exec sqlx.ExtContext, gameID int64, row, col int, userID int64) (int64, error) {
	sqlStr := `UPDATE boxes SET owner_id = ?, claimed_at = ?
		WHERE game_id = ? AND row_idx = ? AND col_idx = ? AND owner_id IS NULL`
	res, err := exec.ExecContext(ctx, sqlStr, userID, time.Now().UnixMilli(), gameID, row, col)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LinkBoxEntry 回写配对的扣款流水ID
func LinkBoxEntry(ctx context.Context, exec sqlx.ExtContext, boxID, entryID int64) error {
	_, err := exec.ExecContext(ctx, "UPDATE boxes SET ledger_entry_id = ? WHERE id = ?", entryID, boxID)
	return err
}

// ReleaseBox 清除归属（仅后台撤销认领使用），owner_id 作为守卫条件
func ReleaseBox(ctx context.Context, exec sqlx.ExtContext, boxID, ownerID int64) (int64, error) {
	sqlStr := `UPDATE boxes SET owner_id = NULL, claimed_at = NULL, ledger_entry_id = NULL
		WHERE id = ? AND owner_id = ?`
	res, err := exec.ExecContext(ctx, sqlStr, boxID, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetBox 按坐标查询格子
func GetBox(ctx context.Context, q sqlx.QueryerContext, gameID int64, row, col int) (*Box, error) {
	return getBox(ctx, q, gameID, row, col, "")
}

// GetBoxForUpdate 按坐标加锁查询格子，必须在事务中调用
func GetBoxForUpdate(ctx context.Context, q sqlx.QueryerContext, gameID int64, row, col int) (*Box, error) {
	return getBox(ctx, q, gameID, row, col, " FOR UPDATE")
}

func getBox(ctx context.Context, q sqlx.QueryerContext, gameID int64, row, col int, lock string) (*Box, error) {
	sqlStr := "SELECT " + boxColumns + " FROM boxes WHERE game_id = ? AND row_idx = ? AND col_idx = ?" + lock
	var b Box
	if err := sqlx.GetContext(ctx, q, &b, sqlStr, gameID, row, col); err != nil {
		return nil, err
	}
	return &b, nil
}

// CountOwnedBoxes 统计用户在某局已持有的格子数（免费局限额校验）
func CountOwnedBoxes(ctx context.Context, q sqlx.QueryerContext, gameID, userID int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM boxes WHERE game_id = ? AND owner_id = ?", gameID, userID)
	return n, err
}

// ListBoxes 返回某局全部格子，按行列排序
func ListBoxes(ctx context.Context, q sqlx.QueryerContext, gameID int64) ([]Box, error) {
	sqlStr := "SELECT " + boxColumns + " FROM boxes WHERE game_id = ? ORDER BY row_idx ASC, col_idx ASC"
	var list []Box
	if err := sqlx.SelectContext(ctx, q, &list, sqlStr, gameID); err != nil {
		return nil, err
	}
	return list, nil
}
