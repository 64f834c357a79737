package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"squares-server/internal/model"

	mysqlerr "github.com/go-sql-driver/mysql"
)

// 业务错误类型，均为可恢复错误，调用方通过 errors.Is 判断
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyOwned       = errors.New("box already owned")
	ErrAlreadyAssigned    = errors.New("numbers already assigned")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrLimitExceeded      = errors.New("free box limit exceeded")
	ErrInvalidState       = errors.New("invalid state")
	ErrDailyLimitExceeded = errors.New("daily withdrawal limit exceeded")
	ErrValidation         = errors.New("validation error")
	// ErrStorageUnavailable 存储层不可用：事务已回滚，调用方可安全重试
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// isStorageFailure 连接断开、超时、锁等待超时、死锁
func isStorageFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mysqlerr.ErrInvalidConn) {
		return true
	}
	switch model.MySQLErrorNumber(err) {
	case model.ErrCodeLockWaitTimeout, model.ErrCodeDeadlock:
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// storageErr 包装存储层错误；已是业务错误的原样返回
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != "internal" {
		return err
	}
	if isStorageFailure(err) {
		return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Kind 返回错误类型的短名称，用于指标标签与日志
func Kind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyOwned):
		return "already_owned"
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrDailyLimitExceeded):
		return "daily_limit_exceeded"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	}
	return "internal"
}
