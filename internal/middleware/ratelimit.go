package middleware

import (
	"context"
	"strconv"
	"time"

	"squares-server/common/logger"
	"squares-server/internal/common/helper"
	"squares-server/internal/common/response"
	infrds "squares-server/internal/infra/redis"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitFilter 按用户限流，须挂在 UserIdentityFilter 之后
// Redis 不可用时降级为不限流
func RateLimitFilter(ctx *beegocontext.Context) {
	cfg := currentConfig()
	if cfg == nil || !cfg.RateLimit.Enabled || cfg.RateLimit.ByUser.Requests <= 0 {
		return
	}
	uid := helper.UserID(ctx)
	if uid == 0 {
		return
	}

	traceID := helper.GetTraceID(ctx)
	rdb := infrds.Client()
	if rdb == nil {
		logger.Warn("redis not available, skip rate limit", zap.String("trace_id", traceID))
		return
	}

	window := cfg.RateLimit.ByUser.WindowSeconds
	if window <= 0 {
		window = 1
	}
	if !allow(ctx.Request.Context(), rdb, infrds.RateUserKey(uid), cfg.RateLimit.ByUser.Requests, window) {
		logger.Warn("user rate limit exceeded", zap.String("trace_id", traceID), zap.Int64("user_id", uid))
		response.Abort(ctx, 429, response.CodeRateLimitExceeded, "", traceID)
	}
}

// allow 滑动窗口计数（Sorted Set，score 为毫秒时间戳）
func allow(ctx context.Context, rdb *redis.Client, key string, limit int, windowSeconds int) bool {
	now := time.Now()
	nowMs := now.UnixMilli()
	windowStart := nowMs - int64(windowSeconds)*1000

	pipe := rdb.Pipeline()
	// 1. 移除窗口外的记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	// 2. 统计当前窗口内的请求数
	countCmd := pipe.ZCount(ctx, key, strconv.FormatInt(windowStart, 10), "+inf")
	// 3. 添加当前请求
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(nowMs),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	// 4. 设置过期时间
	pipe.Expire(ctx, key, time.Duration(windowSeconds+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("rate limit check failed", zap.Error(err))
		return true
	}
	count, err := countCmd.Result()
	if err != nil {
		logger.Warn("rate limit count failed", zap.Error(err))
		return true
	}
	return count < int64(limit)
}
