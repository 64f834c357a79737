package rocketmq

import (
	"context"
	"strings"
	"sync"
	"time"

	rmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/apache/rocketmq-clients/golang/v5/credentials"

	"squares-server/common/logger"
	"squares-server/internal/config"

	"go.uber.org/zap"
)

// Publisher is a minimal facade for sending messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

var (
	mu      sync.RWMutex
	enabled bool
	prod    rmq.Producer
	pub     Publisher = &stubPublisher{}
)

// Enabled reports whether MQ is configured and producer started.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// PublisherInstance returns the active publisher (stub if disabled).
func PublisherInstance() Publisher {
	mu.RLock()
	defer mu.RUnlock()
	return pub
}

// Real publisher backed by RocketMQ v5 client.
type rmqPublisher struct{ p rmq.Producer }

func (r *rmqPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	msg := &rmq.Message{Topic: topic, Body: body}
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.p.Send(c, msg)
	return err
}

// Stub publisher used when MQ is disabled.
type stubPublisher struct{}

func (s *stubPublisher) Publish(_ context.Context, topic string, _ []byte) error {
	logger.Warn("[mq disabled] drop message", zap.String("topic", topic))
	return nil
}

// ClientConfig 根据配置构造 SDK 配置；endpoint 或凭证缺失时返回 nil（禁用 MQ）
func ClientConfig(cfg *config.Config, consumerGroup string) *rmq.Config {
	if cfg == nil {
		return nil
	}
	endpoint := SanitizeEndpoint(cfg.RocketMQ.Endpoint)
	if endpoint == "" {
		return nil
	}
	// 缺少凭证时禁用 MQ（避免底层 SDK 在 Sign 阶段空指针崩溃）
	ak := strings.TrimSpace(cfg.RocketMQ.AccessKey)
	sk := strings.TrimSpace(cfg.RocketMQ.SecretKey)
	if ak == "" || sk == "" {
		logger.Warn("rocketmq disabled: missing access/secret key while endpoint present")
		return nil
	}
	return &rmq.Config{
		Endpoint:      endpoint,
		ConsumerGroup: consumerGroup,
		Credentials:   &credentials.SessionCredentials{AccessKey: ak, AccessSecret: sk},
	}
}

// SanitizeEndpoint 去除 scheme，多个地址时取第一个
func SanitizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	if idx := strings.IndexAny(endpoint, ",;"); idx > 0 {
		endpoint = strings.TrimSpace(endpoint[:idx])
	}
	return endpoint
}

// SplitTopics 逗号分隔的 topic 列表，"." 统一替换为 "_"
func SplitTopics(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(strings.ReplaceAll(t, ".", "_"))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Init 启动生产者；失败或超时则使用 stub（消息留在 outbox 表中等待下次投递）
func Init(cfg *config.Config) {
	rmq.ResetLogger()

	rc := ClientConfig(cfg, "")
	if rc == nil {
		return
	}

	var opts []rmq.ProducerOption
	if topics := SplitTopics(cfg.RocketMQ.ProducerTopics); len(topics) > 0 {
		opts = append(opts, rmq.WithTopics(topics...))
	}

	p, err := rmq.NewProducer(rc, opts...)
	if err != nil {
		logger.Error("rocketmq: producer init failed", zap.Error(err))
		return
	}

	startDone := make(chan error, 1)
	go func() { startDone <- p.Start() }()

	select {
	case err := <-startDone:
		if err != nil {
			logger.Warn("rocketmq: producer start failed (will use stub publisher)", zap.Error(err))
			return
		}
		mu.Lock()
		prod = p
		pub = &rmqPublisher{p: p}
		enabled = true
		mu.Unlock()
		logger.Info("rocketmq enabled", zap.String("endpoint", rc.Endpoint))
	case <-time.After(2 * time.Second):
		logger.Warn("rocketmq: producer start timeout (will use stub publisher)")
	}
}

// Shutdown 优雅关闭生产者
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if prod != nil {
		_ = prod.GracefulStop()
		prod = nil
	}
	enabled = false
	pub = &stubPublisher{}
}
