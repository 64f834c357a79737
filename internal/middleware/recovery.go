package middleware

import (
	"runtime/debug"

	"squares-server/common/logger"
	"squares-server/internal/common/helper"
	"squares-server/internal/common/response"

	beego "github.com/beego/beego/v2/server/web"
	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// RecoverPanic 作为 beego.BConfig.RecoverFunc 使用，捕获控制器中未处理的 panic
// beego.ErrAbort 是 StopRun 的正常流程，不按 panic 处理
func RecoverPanic(ctx *beegocontext.Context, _ *beego.Config) {
	err := recover()
	if err == nil || err == beego.ErrAbort {
		return
	}
	traceID := helper.GetTraceID(ctx)

	// 记录 panic 信息和堆栈
	logger.Error("panic recovered",
		zap.String("trace_id", traceID),
		zap.String("method", ctx.Request.Method),
		zap.String("path", ctx.Request.URL.Path),
		zap.Any("error", err),
		zap.String("stack", string(debug.Stack())))

	if ctx.ResponseWriter.Started {
		return
	}
	response.Abort(ctx, 500, response.CodeSystemError, "", traceID)
}
