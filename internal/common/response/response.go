package response

import (
	"time"

	beego "github.com/beego/beego/v2/server/web"
	beegocontext "github.com/beego/beego/v2/server/web/context"
)

// APIResponse 统一 API 响应结构
// 所有 API 都应该返回这个结构，无论成功还是失败
type APIResponse struct {
	Code      int         `json:"code"`                // 业务错误码：0=成功，非0=失败
	Message   string      `json:"message"`             // 错误消息
	Data      interface{} `json:"data,omitempty"`      // 业务数据（失败时为 null）
	TraceID   string      `json:"trace_id,omitempty"`  // 请求追踪ID
	Timestamp int64       `json:"timestamp,omitempty"` // 响应时间戳（Unix 毫秒）
}

// 错误码定义
const (
	CodeSuccess             = 0    // 成功
	CodeBadRequest          = 1000 // 参数错误
	CodeBusinessError       = 2000 // 业务错误（通用）
	CodeAlreadyOwned        = 2001 // 格子已被占用
	CodeAlreadyAssigned     = 2002 // 号码已分配
	CodeInvalidState        = 2003 // 状态不允许
	CodeInsufficientBalance = 2004 // 余额不足
	CodeLimitExceeded       = 2005 // 免费局格子数超限
	CodeDailyLimitExceeded  = 2006 // 超出每日提现额度
	CodeClaimsPaused        = 2007 // 抢格子暂停
	CodeUnauthorized        = 3000 // 未授权
	CodeForbidden           = 3009 // 禁止访问
	CodeRateLimitExceeded   = 4000 // 请求频率超限
	CodeNotFound            = 4004 // 资源不存在
	CodeSystemError         = 5000 // 系统错误
	CodeStorageUnavailable  = 5003 // 存储不可用，可重试
)

// ErrorMessages 错误消息映射
var ErrorMessages = map[int]string{
	CodeSuccess:             "success",
	CodeBadRequest:          "参数错误",
	CodeBusinessError:       "业务处理失败",
	CodeAlreadyOwned:        "该格子已被占用",
	CodeAlreadyAssigned:     "号码已分配",
	CodeInvalidState:        "当前状态不允许此操作",
	CodeInsufficientBalance: "余额不足",
	CodeLimitExceeded:       "免费局每人最多占用 2 个格子",
	CodeDailyLimitExceeded:  "超出每日提现额度",
	CodeClaimsPaused:        "抢格子暂停中，请稍后重试",
	CodeUnauthorized:        "未授权",
	CodeForbidden:           "禁止访问",
	CodeRateLimitExceeded:   "请求频率超限，请稍后重试",
	CodeNotFound:            "资源不存在",
	CodeSystemError:         "系统繁忙，请稍后重试",
	CodeStorageUnavailable:  "服务暂不可用，请稍后重试",
}

// Success 成功响应
//
// 示例：
//
//	response.Success(c, map[string]interface{}{
//	    "ledger_entry_id": 1024,
//	    "balance": "40",
//	}, traceID)
func Success(c *beego.Controller, data interface{}, traceID string) {
	c.Data["json"] = APIResponse{
		Code:      CodeSuccess,
		Message:   ErrorMessages[CodeSuccess],
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().UnixMilli(),
	}
	c.ServeJSON()
}

// Error 错误响应（使用预定义的错误消息）
//
// 示例：
//
//	response.Error(c, 409, response.CodeAlreadyOwned, traceID)
func Error(c *beego.Controller, httpStatus int, code int, traceID string) {
	ErrorWithMessage(c, httpStatus, code, getErrorMessage(code), traceID)
}

// ErrorWithMessage 错误响应（使用自定义错误消息）
func ErrorWithMessage(c *beego.Controller, httpStatus int, code int, message string, traceID string) {
	c.Ctx.Output.SetStatus(httpStatus)
	c.Data["json"] = APIResponse{
		Code:      code,
		Message:   message,
		Data:      nil,
		TraceID:   traceID,
		Timestamp: time.Now().UnixMilli(),
	}
	c.ServeJSON()
}

// Abort 过滤器中直接输出错误（没有 Controller 可用）
func Abort(ctx *beegocontext.Context, httpStatus int, code int, message string, traceID string) {
	if message == "" {
		message = getErrorMessage(code)
	}
	ctx.Output.SetStatus(httpStatus)
	_ = ctx.Output.JSON(APIResponse{
		Code:      code,
		Message:   message,
		TraceID:   traceID,
		Timestamp: time.Now().UnixMilli(),
	}, false, false)
}

// BadRequest 参数错误响应（HTTP 400）
//
// 示例：
//
//	response.BadRequest(c, "row must be 0-9", traceID)
func BadRequest(c *beego.Controller, message string, traceID string) {
	ErrorWithMessage(c, 400, CodeBadRequest, message, traceID)
}

// Conflict 资源冲突响应（HTTP 409）
func Conflict(c *beego.Controller, code int, traceID string) {
	Error(c, 409, code, traceID)
}

// NotFound 资源不存在响应（HTTP 404）
func NotFound(c *beego.Controller, message string, traceID string) {
	ErrorWithMessage(c, 404, CodeNotFound, message, traceID)
}

// InternalError 系统错误响应（HTTP 500）
// 注意：生产环境不暴露详细错误信息，详情记录到日志
func InternalError(c *beego.Controller, traceID string) {
	Error(c, 500, CodeSystemError, traceID)
}

// Unavailable 存储不可用（HTTP 503），事务已回滚，客户端可重试
func Unavailable(c *beego.Controller, traceID string) {
	c.Ctx.Output.Header("Retry-After", "1")
	Error(c, 503, CodeStorageUnavailable, traceID)
}

// getErrorMessage 获取错误消息，如果未定义则返回通用消息
func getErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "未知错误"
}
