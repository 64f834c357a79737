package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"squares-server/common/logger"
	infmq "squares-server/internal/infra/rocketmq"
	"squares-server/internal/metrics"
	"squares-server/internal/model"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	outboxBatch    = 100
	outboxInterval = 1 * time.Second
)

// StartOutboxDispatcher 启动 Outbox 分发器，支持通过 ctx 优雅退出
// MQ 未启用时不启动，记录保留在 outbox 表中
func StartOutboxDispatcher(ctx context.Context, wg *sync.WaitGroup, db *sqlx.DB) {
	if !infmq.Enabled() || db == nil {
		return
	}
	pub := infmq.PublisherInstance()
	wg.Add(1)
	go func() {
		ticker := time.NewTicker(outboxInterval)
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := DispatchOutbox(ctx, db, pub, outboxBatch); err != nil {
					logger.Warn("outbox: dispatch failed", zap.Error(err))
				}
			}
		}
	}()
}

// DispatchOutbox 投递一批待发送记录，返回成功条数
// 单条失败只记录 retry，不中断整批
func DispatchOutbox(ctx context.Context, db sqlx.ExtContext, pub infmq.Publisher, limit int) (int, error) {
	c, cancel := context.WithTimeout(ctx, 2*time.Second)
	rows, err := model.ListOutboxPending(c, db, limit)
	cancel()
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, r := range rows {
		if err := pub.Publish(ctx, r.Topic, []byte(r.Payload)); err != nil {
			metrics.RecordOutbox(r.Topic, "publish_failed")
			if e := model.MarkOutboxFailed(ctx, db, r.ID, truncateErr(err)); e != nil {
				logger.Warn("outbox: mark failed failed", zap.Int64("id", r.ID), zap.Error(e))
			}
			continue
		}
		metrics.RecordOutbox(r.Topic, "success")
		if err := model.MarkOutboxSent(ctx, db, r.ID); err != nil {
			// 下一轮会重复投递，下游按 biz_key 去重
			logger.Warn("outbox: mark sent failed", zap.Int64("id", r.ID), zap.String("biz_key", r.BizKey), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func truncateErr(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	if len(b) > 240 {
		return string(b[:240])
	}
	return string(b)
}
