package common

import (
	"context"
	"strings"
	"time"

	"squares-server/common/logger"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DBOptions 连接池参数
type DBOptions struct {
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	LockWaitTimeoutSec int
}

// InitDB 初始化 MySQL 连接（sqlx），并设置连接池与会话级锁等待超时
func InitDB(dsn string, opts DBOptions) (*sqlx.DB, error) {
	db, err := sqlx.Connect("mysql", withDSNParams(dsn))
	if err != nil {
		return nil, errors.Wrap(err, "InitDB sqlx.Connect")
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	lifetime := 2 * time.Minute
	if opts.ConnMaxLifetimeSec > 0 {
		lifetime = time.Duration(opts.ConnMaxLifetimeSec) * time.Second
	}
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// 会话级超时，降低锁等待时长（抢格子热点行）
	wait := opts.LockWaitTimeoutSec
	if wait <= 0 {
		wait = 5
	}
	if _, err := db.Exec("SET SESSION innodb_lock_wait_timeout = ?", wait); err != nil {
		logger.Warn("SET innodb_lock_wait_timeout failed", zap.Error(err))
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "InitDB ping")
	}
	return db, nil
}

// withDSNParams 补齐 DSN 参数（毫秒时间戳入库，不依赖 parseTime，但保持与本地时区一致）
func withDSNParams(dsn string) string {
	if strings.Contains(dsn, "loc=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "parseTime=true&loc=Local"
}

// InitRedis 初始化 Redis 单机连接并探活
func InitRedis(addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Network:      "tcp",
		Addr:         addr,
		DB:           db,
		Password:     password,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   1,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "InitRedis ping %s", addr)
	}
	return rdb, nil
}
