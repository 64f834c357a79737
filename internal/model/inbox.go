package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Inbox 对应 inbox 表（消费幂等表），UNIQUE(message_id, topic)
type Inbox struct {
	ID          int64  `db:"id"`
	MessageID   string `db:"message_id"`
	Topic       string `db:"topic"`
	Payload     string `db:"payload"`
	ProcessedAt int64  `db:"processed_at"`
	CreatedAt   int64  `db:"created_at"`
}

// InsertInbox 登记一条已消费消息；返回 false 表示该消息此前已处理（重复投递）
// 与业务写入放在同一事务中，保证"处理一次"
func InsertInbox(ctx context.Context, exec sqlx.ExtContext, messageID, topic, payload string) (bool, error) {
	now := time.Now().UnixMilli()
	sqlStr := "INSERT INTO inbox (message_id, topic, payload, processed_at, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := exec.ExecContext(ctx, sqlStr, messageID, topic, payload, now, now); err != nil {
		if IsDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
