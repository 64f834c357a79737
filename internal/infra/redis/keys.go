package redis

import "strconv"

// Redis Key 定义与构造器，统一管理业务使用的 Key

const (
	// PrefixGrid：棋盘归属快照缓存（GET /api/game/:id/grid），抢格子/撤销/分配号码后删除
	PrefixGrid = "squares:grid:"
	// PrefixWinners：中奖列表缓存，比分录入/派彩后删除
	PrefixWinners = "squares:winners:"
	// PrefixAssignLock：自动分配号码的调度锁，多实例部署时只允许一个实例执行
	PrefixAssignLock = "squares:assign:lock:"
	// PrefixRateUser：按用户限流计数
	PrefixRateUser = "squares:rate:user:"
)

// GridKey 形如：squares:grid:{game_id}
func GridKey(gameID int64) string { return PrefixGrid + strconv.FormatInt(gameID, 10) }

// WinnersKey 形如：squares:winners:{game_id}
func WinnersKey(gameID int64) string { return PrefixWinners + strconv.FormatInt(gameID, 10) }

// AssignLockKey 形如：squares:assign:lock:{game_id}
func AssignLockKey(gameID int64) string { return PrefixAssignLock + strconv.FormatInt(gameID, 10) }

// RateUserKey 形如：squares:rate:user:{user_id}
func RateUserKey(userID int64) string { return PrefixRateUser + strconv.FormatInt(userID, 10) }
