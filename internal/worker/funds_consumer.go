package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	rmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"squares-server/common/logger"
	"squares-server/internal/config"
	infmq "squares-server/internal/infra/rocketmq"
	"squares-server/internal/model"
	"squares-server/internal/service"
)

// 支付方事件
const (
	EventFundsReceived = "funds_received"
	EventFundsSent     = "funds_sent"
)

// FundsEvent 支付方推送的资金事件
type FundsEvent struct {
	Event       string          `json:"event"`
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	ExternalRef string          `json:"external_ref"`
	Pending     bool            `json:"pending"`
	TraceID     string          `json:"trace_id"`
}

// FundsHandler 处理单条资金消息；入账按 external_ref 幂等，inbox 记录消费历史
type FundsHandler struct {
	db     sqlx.ExtContext
	ledger service.LedgerService
}

func NewFundsHandler(db sqlx.ExtContext, ledger service.LedgerService) *FundsHandler {
	return &FundsHandler{db: db, ledger: ledger}
}

// Handle 返回 error 表示需要重投（不 ack）；无法解析或未知事件记录日志后视为已消费
func (h *FundsHandler) Handle(ctx context.Context, msgID, topic string, body []byte) error {
	var evt FundsEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		logger.Warn("[mq] funds: malformed payload", zap.String("id", msgID), zap.String("topic", topic), zap.Error(err))
		return nil
	}
	ctx = logger.WithTraceID(ctx, evt.TraceID)

	switch evt.Event {
	case EventFundsReceived:
		entry, created, err := h.ledger.RecordPurchase(ctx, service.PurchaseInput{
			UserID:      evt.UserID,
			Amount:      evt.Amount,
			ExternalRef: evt.ExternalRef,
			Pending:     evt.Pending,
			TraceID:     evt.TraceID,
		})
		if err != nil {
			// 入账失败一律不 ack：存储错误等待重投即可恢复；
			// 业务拒绝（账户禁用、external_ref 冲突等）重投耗尽后进入消费组死信队列，由人工处理，不丢资金事件
			if errors.Is(err, service.ErrStorageUnavailable) {
				logger.WarnCtx(ctx, "[mq] funds: purchase storage failure, will retry",
					zap.String("id", msgID), zap.String("external_ref", evt.ExternalRef), zap.Error(err))
			} else {
				logger.ErrorCtx(ctx, "[mq] funds: purchase rejected, leave for dead letter",
					zap.String("id", msgID), zap.Int64("user_id", evt.UserID),
					zap.String("external_ref", evt.ExternalRef), zap.String("amount", evt.Amount.String()), zap.Error(err))
			}
			return fmt.Errorf("record purchase %s: %w", evt.ExternalRef, err)
		}
		logger.InfoCtx(ctx, "[mq] funds received",
			zap.Int64("user_id", evt.UserID), zap.Int64("entry_id", entry.ID),
			zap.String("amount", evt.Amount.String()), zap.Bool("created", created))
	case EventFundsSent:
		// 提现在审批时已完成记账，这里只做对账日志
		logger.InfoCtx(ctx, "[mq] funds sent",
			zap.Int64("user_id", evt.UserID), zap.String("external_ref", evt.ExternalRef),
			zap.String("amount", evt.Amount.String()))
	default:
		logger.Warn("[mq] funds: unknown event", zap.String("id", msgID), zap.String("event", evt.Event))
	}

	fresh, err := model.InsertInbox(ctx, h.db, msgID, topic, string(body))
	if err != nil {
		logger.Warn("[mq] funds: insert inbox failed", zap.String("id", msgID), zap.Error(err))
		return nil
	}
	if !fresh {
		logger.Info("[mq] funds: redelivered message", zap.String("id", msgID), zap.String("topic", topic))
	}
	return nil
}

// StartFundsConsumer 启动 RocketMQ v5 SimpleConsumer 消费支付方资金事件
// 未配置 endpoint / consumer_group / consume_topics 时不启动
func StartFundsConsumer(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, h *FundsHandler) {
	if cfg == nil || h == nil {
		return
	}
	group := strings.TrimSpace(cfg.RocketMQ.ConsumerGroup)
	if group == "" {
		logger.Warn("[mq] funds consumer not started: empty consumer_group")
		return
	}
	topics := infmq.SplitTopics(cfg.RocketMQ.ConsumeTopics)
	if len(topics) == 0 {
		logger.Warn("[mq] funds consumer not started: empty consume_topics")
		return
	}
	rc := infmq.ClientConfig(cfg, group)
	if rc == nil {
		return
	}

	subs := make(map[string]*rmq.FilterExpression, len(topics))
	for _, t := range topics {
		subs[t] = rmq.SUB_ALL
	}

	awaitDuration := 5 * time.Second
	maxMessageNum := int32(16)
	invisibleDuration := 20 * time.Second

	// 带重试启动，避免容器刚启动 broker 未就绪导致一次性失败
	var sc rmq.SimpleConsumer
	var err error
	for i := 0; i < 6; i++ {
		sc, err = rmq.NewSimpleConsumer(rc,
			rmq.WithAwaitDuration(awaitDuration),
			rmq.WithSubscriptionExpressions(subs),
		)
		if err == nil {
			if e := sc.Start(); e == nil {
				break
			} else {
				err = e
			}
		}
		logger.Warn("[mq] simple consumer start retry", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		logger.Error("[mq] start simple consumer failed", zap.Error(err))
		return
	}
	logger.Info("[mq] funds consumer started", zap.String("group", group), zap.Strings("topics", topics))

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sc.GracefulStop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			mvs, err := sc.Receive(ctx, maxMessageNum, invisibleDuration)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("[mq] receive error", zap.Error(err))
				continue
			}
			for _, mv := range mvs {
				id := mv.GetMessageId()
				if err := h.Handle(ctx, id, mv.GetTopic(), mv.GetBody()); err != nil {
					// 不 ack，invisibleDuration 过后重投
					logger.Warn("[mq] funds: handle failed", zap.String("id", id), zap.Error(err))
					continue
				}
				if err := sc.Ack(ctx, mv); err != nil {
					logger.Warn("[mq] ack failed", zap.String("id", id), zap.Error(err))
				}
			}
		}
	}()
}
