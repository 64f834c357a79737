package model

import (
	"errors"
	"strings"

	mysqlerr "github.com/go-sql-driver/mysql"
)

// MySQL 错误码
const (
	ErrCodeDuplicateEntry  = 1062 // 唯一键冲突
	ErrCodeLockWaitTimeout = 1205 // 锁等待超时
	ErrCodeDeadlock        = 1213 // 死锁
)

// IsDuplicateKey 判断是否为 MySQL 唯一键冲突错误
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysqlerr.MySQLError
	if errors.As(err, &me) {
		return me.Number == ErrCodeDuplicateEntry
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 1062") || strings.Contains(msg, "Duplicate entry")
}

// MySQLErrorNumber 返回 MySQL 错误码，非 MySQL 错误返回 0
func MySQLErrorNumber(err error) uint16 {
	var me *mysqlerr.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}
