package config

import (
	"sync/atomic"
	"time"
)

// 运行期可热更新的开关与阈值名称（对应 feature_flags / thresholds）
const (
	// FlagClaimsPaused 暂停抢格子（如赛前临时维护），其余接口不受影响
	FlagClaimsPaused = "claims_paused"

	ThresholdGridCacheTTLSec    = "grid_cache_ttl_sec"
	ThresholdWinnersCacheTTLSec = "winners_cache_ttl_sec"
)

// 当前生效配置，Nacos 推送后整体替换
var current atomic.Pointer[Config]

func SetCurrent(c *Config) {
	current.Store(c)
}

// GetCurrent 可能为 nil（测试或未初始化）
func GetCurrent() *Config {
	return current.Load()
}

// Flag 未配置视为关闭
func Flag(name string) bool {
	if cfg := GetCurrent(); cfg != nil {
		return cfg.FeatureFlags[name]
	}
	return false
}

// Threshold 未配置或非正数时返回 def
func Threshold(name string, def int64) int64 {
	if cfg := GetCurrent(); cfg != nil {
		if v, ok := cfg.Thresholds[name]; ok && v > 0 {
			return v
		}
	}
	return def
}

// ThresholdSeconds 以秒为单位的阈值
func ThresholdSeconds(name string, def time.Duration) time.Duration {
	return time.Duration(Threshold(name, int64(def/time.Second))) * time.Second
}
