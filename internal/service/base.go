package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"squares-server/common/helper"
	"squares-server/internal/config"
	infrds "squares-server/internal/infra/redis"
	"squares-server/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Clock 时钟（号码分配窗口、提现日限额窗口），测试中可替换
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock 系统时钟
var SystemClock Clock = ClockFunc(time.Now)

// PayoutNotifier 通知外部出款方发起打款；在审批事务内调用，写入 outbox 后由 worker 异步投递
type PayoutNotifier interface {
	NotifyWithdrawalApproved(ctx context.Context, exec sqlx.ExtContext, w *model.WithdrawalRequest) error
}

type outboxNotifier struct{}

// NewOutboxNotifier 基于 outbox 的出款通知
func NewOutboxNotifier() PayoutNotifier { return outboxNotifier{} }

func (outboxNotifier) NotifyWithdrawalApproved(ctx context.Context, exec sqlx.ExtContext, w *model.WithdrawalRequest) error {
	payload := map[string]any{
		"event":       "withdrawal_approved",
		"request_id":  w.ID,
		"user_id":     w.UserID,
		"amount":      w.Amount.StringFixed(2),
		"destination": w.Destination,
	}
	return model.CreateOutbox(ctx, exec, model.TopicWithdrawalApproved, withdrawalBizKey(w.ID), payload)
}

// Settings 业务参数
type Settings struct {
	AssignWindow       time.Duration
	FreeBoxLimit       int
	TxTimeout          time.Duration
	WithdrawalMin      decimal.Decimal
	WithdrawalDailyCap decimal.Decimal
}

// 默认事务超时时间（若上游已有 deadline，则沿用上游）
const defaultTxTimeout = 3 * time.Second

func DefaultSettings() Settings {
	return Settings{
		AssignWindow:       time.Duration(config.DefaultAssignWindowMinutes) * time.Minute,
		FreeBoxLimit:       config.DefaultFreeBoxLimit,
		TxTimeout:          defaultTxTimeout,
		WithdrawalMin:      decimal.RequireFromString(config.DefaultWithdrawalMin),
		WithdrawalDailyCap: decimal.RequireFromString(config.DefaultWithdrawalDailyCap),
	}
}

// SettingsFromConfig 从配置构造业务参数；金额字段格式错误时返回 ErrValidation
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	st := DefaultSettings()
	if cfg == nil {
		return st, nil
	}
	if cfg.Game.AssignWindowMinutes > 0 {
		st.AssignWindow = time.Duration(cfg.Game.AssignWindowMinutes) * time.Minute
	}
	if cfg.Game.FreeBoxLimit > 0 {
		st.FreeBoxLimit = cfg.Game.FreeBoxLimit
	}
	if cfg.Game.TxTimeoutMs > 0 {
		st.TxTimeout = time.Duration(cfg.Game.TxTimeoutMs) * time.Millisecond
	}
	if cfg.Withdrawal.MinAmount != "" {
		d, err := helper.ParseMoney(cfg.Withdrawal.MinAmount)
		if err != nil {
			return st, errorf(ErrValidation, "withdrawal.min_amount %q", cfg.Withdrawal.MinAmount)
		}
		st.WithdrawalMin = d
	}
	if cfg.Withdrawal.DailyCap != "" {
		d, err := helper.ParseMoney(cfg.Withdrawal.DailyCap)
		if err != nil {
			return st, errorf(ErrValidation, "withdrawal.daily_cap %q", cfg.Withdrawal.DailyCap)
		}
		st.WithdrawalDailyCap = d
	}
	return st, nil
}

// Option 服务可选依赖
type Option func(*base)

func WithClock(c Clock) Option              { return func(b *base) { b.clock = c } }
func WithShuffler(s helper.Shuffler) Option { return func(b *base) { b.shuffler = s } }
func WithNotifier(n PayoutNotifier) Option  { return func(b *base) { b.notifier = n } }
func WithSettings(s Settings) Option        { return func(b *base) { b.settings = s } }

// base 各服务共享的依赖
type base struct {
	db       *sqlx.DB
	clock    Clock
	shuffler helper.Shuffler
	notifier PayoutNotifier
	settings Settings
}

func newBase(db *sqlx.DB, opts ...Option) base {
	b := base{
		db:       db,
		clock:    SystemClock,
		notifier: NewOutboxNotifier(),
		settings: DefaultSettings(),
	}
	for _, o := range opts {
		o(&b)
	}
	if b.shuffler == nil {
		b.shuffler = helper.NewShuffler()
	}
	return b
}

// beginTx 开启事务（带默认超时，防止长事务影响并发）
// 若上游 ctx 已设置 deadline，则沿用；调用方必须 defer cancel() 与 tx.Rollback()
func (b *base) beginTx(ctx context.Context) (*sqlx.Tx, context.Context, context.CancelFunc, error) {
	txCtx, cancel := ctx, context.CancelFunc(func() {})
	if _, has := ctx.Deadline(); !has {
		timeout := b.settings.TxTimeout
		if timeout <= 0 {
			timeout = defaultTxTimeout
		}
		txCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	tx, err := b.db.BeginTxx(txCtx, nil)
	if err != nil {
		cancel()
		return nil, ctx, func() {}, storageErr("begin tx", err)
	}
	return tx, txCtx, cancel, nil
}

// commit 提交事务，错误按存储错误分类
func commit(tx *sqlx.Tx) error {
	return storageErr("commit", tx.Commit())
}

// notFound 将 sql.ErrNoRows 转为 ErrNotFound
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errorf(ErrNotFound, format, args...)
	}
	return err
}

// invalidateCache 提交后删除缓存（降级容错：Redis 不可用时忽略）
func invalidateCache(ctx context.Context, keys ...string) {
	if r := infrds.Client(); r != nil && len(keys) > 0 {
		_ = r.Del(context.WithoutCancel(ctx), keys...).Err()
	}
}
