package middleware

import (
	"strings"

	"squares-server/common/logger"

	"github.com/beego/beego/v2/server/web/context"
	"github.com/google/uuid"
)

// RequestIDFilter 为每个请求注入并返回 X-Request-Id，同时写入 request context 供日志使用
func RequestIDFilter(ctx *context.Context) {
	id := strings.TrimSpace(ctx.Input.Header("X-Request-Id"))
	if id == "" || len(id) > 64 {
		id = uuid.NewString()
	}
	ctx.Input.SetData("trace_id", id)
	ctx.Output.Header("X-Request-Id", id)
	ctx.Request = ctx.Request.WithContext(logger.WithTraceID(ctx.Request.Context(), id))
}
