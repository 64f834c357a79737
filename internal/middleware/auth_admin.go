package middleware

import (
	"crypto/subtle"
	"strings"

	"squares-server/common/logger"
	"squares-server/internal/common/helper"
	"squares-server/internal/common/response"
	"squares-server/internal/config"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// currentConfig 优先取热更新后的配置
func currentConfig() *config.Config {
	if cfg := config.GetCurrent(); cfg != nil {
		return cfg
	}
	return config.Get()
}

// AdminAuthFilter 管理员认证过滤器（Bearer Token）
// 保护建局、分配号码、录入比分、派彩、提现审批、调账等管理接口
func AdminAuthFilter(ctx *beegocontext.Context) {
	cfg := currentConfig()
	traceID := helper.GetTraceID(ctx)

	// 如果未启用管理员认证，跳过
	if cfg == nil || !cfg.Auth.Admin.Enabled {
		logger.Debug("admin auth disabled, skip", zap.String("trace_id", traceID))
		return
	}

	authHeader := strings.TrimSpace(ctx.Input.Header("Authorization"))
	if authHeader == "" {
		logger.Warn("missing admin token", zap.String("trace_id", traceID))
		response.Abort(ctx, 401, response.CodeUnauthorized, "缺少管理员认证信息", traceID)
		return
	}

	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		logger.Warn("invalid admin token format", zap.String("trace_id", traceID))
		response.Abort(ctx, 401, response.CodeUnauthorized, "无效的认证格式", traceID)
		return
	}
	token = strings.TrimSpace(token)

	if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Auth.Admin.Token)) != 1 {
		logger.Warn("invalid admin token",
			zap.String("trace_id", traceID),
			zap.String("token_prefix", token[:min(len(token), 4)]+"..."))
		response.Abort(ctx, 401, response.CodeUnauthorized, "无效的管理员Token", traceID)
		return
	}

	ctx.Input.SetData("is_admin", true)
	logger.Debug("admin authentication successful", zap.String("trace_id", traceID))
}
