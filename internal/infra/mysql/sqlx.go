package mysql

import (
	"sync/atomic"

	"github.com/jmoiron/sqlx"
)

// 全局 *sqlx.DB 句柄（由 UseDB 注入，例如 common.InitDB 返回的句柄）
var sqlxDB atomic.Pointer[sqlx.DB]

// UseDB 注入外部初始化好的 *sqlx.DB
func UseDB(d *sqlx.DB) {
	if d == nil {
		return
	}
	sqlxDB.Store(d)
}

// SQLX 返回全局句柄（未注入时为 nil）
func SQLX() *sqlx.DB { return sqlxDB.Load() }
