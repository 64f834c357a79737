package api

import (
	"context"
	"errors"

	"squares-server/common/logger"
	"squares-server/internal/common/helper"
	"squares-server/internal/common/response"
	"squares-server/internal/service"

	beego "github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"
)

// Services 控制器依赖的业务服务，由 main 启动时通过 Use 注入
type Services struct {
	Grid       service.GridService
	Numbers    service.NumberService
	Claim      service.ClaimService
	Settlement service.SettlementService
	Withdrawal service.WithdrawalService
	Ledger     service.LedgerService
	Query      service.QueryService
}

var svc Services

// Use 注入业务服务
func Use(s Services) { svc = s }

type baseController struct{ beego.Controller }

func (c *baseController) traceID() string { return helper.GetTraceID(c.Ctx) }

// reqCtx 带 trace_id 的请求上下文
func (c *baseController) reqCtx() context.Context {
	return logger.WithTraceID(c.Ctx.Request.Context(), c.traceID())
}

func (c *baseController) ok(data interface{}) {
	response.Success(&c.Controller, data, c.traceID())
}

func (c *baseController) badRequest(msg string) {
	response.BadRequest(&c.Controller, msg, c.traceID())
}

// fail 按业务错误类型输出 HTTP 状态与业务码
func (c *baseController) fail(err error) {
	traceID := c.traceID()
	status, code := errorStatus(err)
	switch status {
	case 400, 404:
		response.ErrorWithMessage(&c.Controller, status, code, err.Error(), traceID)
	case 503:
		logger.Warn("storage unavailable", zap.String("trace_id", traceID),
			zap.String("path", c.Ctx.Request.URL.Path), zap.Error(err))
		response.Unavailable(&c.Controller, traceID)
	case 500:
		logger.Error("unexpected error", zap.String("trace_id", traceID),
			zap.String("path", c.Ctx.Request.URL.Path), zap.Error(err))
		response.InternalError(&c.Controller, traceID)
	default:
		response.Error(&c.Controller, status, code, traceID)
	}
}

// errorStatus 业务错误 -> (HTTP 状态码, 业务码)
func errorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return 400, response.CodeBadRequest
	case errors.Is(err, service.ErrNotFound):
		return 404, response.CodeNotFound
	case errors.Is(err, service.ErrAlreadyOwned):
		return 409, response.CodeAlreadyOwned
	case errors.Is(err, service.ErrAlreadyAssigned):
		return 409, response.CodeAlreadyAssigned
	case errors.Is(err, service.ErrInvalidState):
		return 409, response.CodeInvalidState
	case errors.Is(err, service.ErrInsufficientFunds):
		return 409, response.CodeInsufficientBalance
	case errors.Is(err, service.ErrLimitExceeded):
		return 409, response.CodeLimitExceeded
	case errors.Is(err, service.ErrDailyLimitExceeded):
		return 409, response.CodeDailyLimitExceeded
	case errors.Is(err, service.ErrStorageUnavailable):
		return 503, response.CodeStorageUnavailable
	}
	return 500, response.CodeSystemError
}

// idParam 读取 :id 路由参数，失败时已输出 400
func (c *baseController) idParam() (int64, bool) {
	id, ok := helper.ParamInt64(c.Ctx, ":id")
	if !ok {
		c.badRequest("id must be a positive integer")
	}
	return id, ok
}
