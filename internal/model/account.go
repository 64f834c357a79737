package model

import (
	"context"
	"time"

	"squares-server/common/constant"
	"squares-server/common/logger"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Account 对应 accounts 表
// 不存余额：余额始终由 ledger_entries 中 approved 条目求和得出。
// 该行的作用是按用户串行化所有账变事务（SELECT ... FOR UPDATE）。
// status: 1=正常 0=禁用
type Account struct {
	UserID    int64 `db:"user_id"`    // 用户ID（上游网关鉴权后传入）
	Status    int8  `db:"status"`     // 状态
	CreatedAt int64 `db:"created_at"` // 创建时间（13位毫秒时间戳）
	UpdatedAt int64 `db:"updated_at"` // 更新时间（13位毫秒时间戳）
}

func (a *Account) Enabled() bool { return a.Status == constant.AccountNormal }

// GetAccountForUpdate 按 user_id 加锁查询，必须在事务中调用
func GetAccountForUpdate(ctx context.Context, exec sqlx.ExtContext, userID int64) (*Account, error) {
	query := `SELECT user_id, status, created_at, updated_at FROM accounts WHERE user_id = ? FOR UPDATE`
	var a Account
	if err := sqlx.GetContext(ctx, exec, &a, query, userID); err != nil {
		return nil, err
	}
	return &a, nil
}

// LockAccount 在事务中锁定用户账户行，不存在则先创建
// 先 upsert 再加锁读取：ON DUPLICATE KEY UPDATE 对已存在行直接加排他锁，
// 避免 SELECT ... FOR UPDATE 未命中时的间隙锁与并发首次插入互相死锁
func LockAccount(ctx context.Context, exec sqlx.ExtContext, userID int64) (*Account, error) {
	now := time.Now().UnixMilli()
	query := `INSERT INTO accounts (user_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE user_id = user_id`
	if _, err := exec.ExecContext(ctx, query, userID, constant.AccountNormal, now, now); err != nil {
		logger.ErrorCtx(ctx, "ensure account failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return GetAccountForUpdate(ctx, exec, userID)
}
