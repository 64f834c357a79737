package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// outbox 事件主题（与 rocketmq.producer_topics 对应）
const (
	TopicBoxClaimed          = "squares_box_claimed"
	TopicNumbersAssigned     = "squares_numbers_assigned"
	TopicPayoutIssued        = "squares_payout_issued"
	TopicWithdrawalRequested = "squares_withdrawal_requested"
	TopicWithdrawalApproved  = "squares_withdrawal_approved"
	TopicWithdrawalRejected  = "squares_withdrawal_rejected"
)

// outbox status
const (
	OutboxPending = 1
	OutboxSent    = 2
	OutboxFailed  = 3

	outboxMaxRetry = 10
)

// Outbox 对应 outbox 表（事务消息表），与业务数据同事务写入，由 worker 异步投递
type Outbox struct {
	ID         int64  `db:"id"`
	Topic      string `db:"topic"`
	BizKey     string `db:"biz_key"` // 下游去重键
	Payload    string `db:"payload"` // JSON
	Status     int8   `db:"status"`
	RetryCount int    `db:"retry_count"`
	LastError  string `db:"last_error"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

// Insert 插入一条待发送记录
func (o *Outbox) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	o.Status = OutboxPending
	o.CreatedAt, o.UpdatedAt = now, now

	sqlStr := "INSERT INTO outbox (topic, biz_key, payload, status, retry_count, last_error, created_at, updated_at) VALUES (?, ?, ?, ?, 0, '', ?, ?)"
	_, err := exec.ExecContext(ctx, sqlStr, o.Topic, o.BizKey, o.Payload, o.Status, now, now)
	return err
}

// OutboxRow 调度器扫描用的轻量投影
type OutboxRow struct {
	ID      int64  `db:"id"`
	Topic   string `db:"topic"`
	BizKey  string `db:"biz_key"`
	Payload string `db:"payload"`
}

// ListOutboxPending 查询待发送记录（超过最大重试次数的不再扫描）
func ListOutboxPending(ctx context.Context, q sqlx.QueryerContext, limit int) ([]OutboxRow, error) {
	sqlStr := "SELECT id, topic, biz_key, payload FROM outbox WHERE status = ? AND retry_count < ? ORDER BY id ASC LIMIT ?"
	var list []OutboxRow
	if err := sqlx.SelectContext(ctx, q, &list, sqlStr, OutboxPending, outboxMaxRetry, limit); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkOutboxSent 标记已发送
func MarkOutboxSent(ctx context.Context, exec sqlx.ExtContext, id int64) error {
	_, err := exec.ExecContext(ctx, "UPDATE outbox SET status = ?, updated_at = ? WHERE id = ?",
		OutboxSent, time.Now().UnixMilli(), id)
	return err
}

// MarkOutboxFailed 记录失败；最后一次重试失败后置为永久失败，否则保持待发送
func MarkOutboxFailed(ctx context.Context, exec sqlx.ExtContext, id int64, lastError string) error {
	if len(lastError) > 500 {
		lastError = lastError[:500]
	}
	sqlStr := `UPDATE outbox SET status = CASE WHEN retry_count >= ? THEN ? ELSE ? END,
		last_error = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?`
	_, err := exec.ExecContext(ctx, sqlStr, outboxMaxRetry-1, OutboxFailed, OutboxPending, lastError, time.Now().UnixMilli(), id)
	return err
}

// CreateOutbox 序列化 payload 并写入 outbox
func CreateOutbox(ctx context.Context, exec sqlx.ExtContext, topic, bizKey string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	o := &Outbox{Topic: topic, BizKey: bizKey, Payload: string(b)}
	return o.Insert(ctx, exec)
}
