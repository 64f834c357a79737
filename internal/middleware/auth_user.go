package middleware

import (
	"strconv"
	"strings"

	"squares-server/common/logger"
	"squares-server/internal/common/helper"
	"squares-server/internal/common/response"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// UserIdentityFilter 读取上游网关认证后透传的 X-User-Id
// 本服务不做登录鉴权，只校验格式并注入 user_id
func UserIdentityFilter(ctx *beegocontext.Context) {
	traceID := helper.GetTraceID(ctx)

	raw := strings.TrimSpace(ctx.Input.Header("X-User-Id"))
	if raw == "" {
		response.Abort(ctx, 401, response.CodeUnauthorized, "缺少用户身份", traceID)
		return
	}
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || uid <= 0 {
		logger.Warn("invalid user id header", zap.String("trace_id", traceID), zap.String("x_user_id", raw))
		response.Abort(ctx, 401, response.CodeUnauthorized, "用户身份无效", traceID)
		return
	}
	ctx.Input.SetData("user_id", uid)
}
