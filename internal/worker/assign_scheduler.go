package worker

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"squares-server/common/logger"
	infrds "squares-server/internal/infra/redis"
	"squares-server/internal/model"
	"squares-server/internal/service"
)

const (
	assignBatch   = 50
	assignLockTTL = 30 * time.Second
)

// 仅删除自己持有的锁
var releaseLock = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// AssignScheduler 周期扫描进入分配窗口的比赛并自动分配号码
// 多实例部署时通过 Redis 锁保证同一局只有一个实例尝试；最终正确性由 numbers_assigned 条件更新保证
type AssignScheduler struct {
	db      sqlx.QueryerContext
	numbers service.NumberService
	rdb     *goredis.Client
	clock   service.Clock
	window  time.Duration
}

func NewAssignScheduler(db sqlx.QueryerContext, numbers service.NumberService, rdb *goredis.Client, clock service.Clock, window time.Duration) *AssignScheduler {
	if clock == nil {
		clock = service.SystemClock
	}
	return &AssignScheduler{db: db, numbers: numbers, rdb: rdb, clock: clock, window: window}
}

// RunOnce 执行一轮扫描，返回成功分配的比赛数
func (s *AssignScheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.clock.Now().UnixMilli()
	ids, err := model.ListAssignableGameIDs(ctx, s.db, now, s.window.Milliseconds(), assignBatch)
	if err != nil {
		return 0, err
	}
	assigned := 0
	for _, id := range ids {
		ok, release := s.lock(ctx, id)
		if !ok {
			continue
		}
		traceID := uuid.NewString()
		res, err := s.numbers.AssignNumbers(logger.WithTraceID(ctx, traceID), id, service.SchedulerOperator, traceID)
		release()
		switch {
		case err == nil:
			assigned++
			logger.Info("scheduler: numbers assigned", zap.Int64("game_id", res.GameID), zap.String("trace_id", traceID))
		case errors.Is(err, service.ErrAlreadyAssigned), errors.Is(err, service.ErrInvalidState):
			logger.Info("scheduler: assign skipped", zap.Int64("game_id", id), zap.Error(err))
		default:
			logger.Warn("scheduler: assign failed", zap.Int64("game_id", id), zap.Error(err))
		}
	}
	return assigned, nil
}

// lock 抢占单局调度锁；未配置 Redis 时直接放行
func (s *AssignScheduler) lock(ctx context.Context, gameID int64) (bool, func()) {
	if s.rdb == nil {
		return true, func() {}
	}
	key := infrds.AssignLockKey(gameID)
	val := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, key, val, assignLockTTL).Result()
	if err != nil {
		// Redis 不可用时降级为无锁，依赖数据库条件更新
		logger.Warn("scheduler: lock failed, continue without lock", zap.String("key", key), zap.Error(err))
		return true, func() {}
	}
	if !ok {
		return false, nil
	}
	return true, func() {
		if err := releaseLock.Run(context.Background(), s.rdb, []string{key}, val).Err(); err != nil {
			logger.Warn("scheduler: unlock failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Start 注册 gocron 任务，每 every 执行一轮；返回的调度器由调用方 Shutdown
func (s *AssignScheduler) Start(ctx context.Context, every time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			c, cancel := context.WithTimeout(ctx, every)
			defer cancel()
			if _, err := s.RunOnce(c); err != nil {
				logger.Warn("scheduler: scan failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	sched.Start()
	logger.Info("assign scheduler started", zap.Duration("every", every), zap.Duration("window", s.window))
	return sched, nil
}
