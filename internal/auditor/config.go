// Package auditor 知识库自动审核
//
// 批量拉取最近的对话，对每条记忆加锁后请求模型给出结论，
// 再通过存储层的原子操作执行删除或标记，标记的记忆进入人工审核队列。
//
// 文件组织：
//   - config.go: 审核参数
//   - decision.go: 阈值判定
//   - eligibility.go: 资格检查
//   - auditor.go: 单条与批量审核流程
//   - review.go: 人工审核（通过/驳回/查询）
//   - metrics.go: Prometheus 指标
//   - scheduler.go: 定时执行与保留期清理
package auditor

import (
	"fmt"
	"time"

	"kb-auditor/internal/config"
)

// Config 审核参数
type Config struct {
	FetchLimit      int
	DeleteThreshold float64
	FlagThreshold   float64
	HighRating      float64
	MaxParallel     int

	// LockTimeout 同时是单条记忆锁的 TTL 和等待期限
	LockTimeout time.Duration
	LockMaxAge  time.Duration

	RetentionDays int
}

// DefaultConfig 返回默认参数
func DefaultConfig() Config {
	return Config{
		FetchLimit:      100,
		DeleteThreshold: 0.85,
		FlagThreshold:   0.6,
		HighRating:      3,
		MaxParallel:     10,
		LockTimeout:     30 * time.Second,
		LockMaxAge:      60 * time.Second,
		RetentionDays:   30,
	}
}

// ConfigFrom 从应用配置构造审核参数
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		FetchLimit:      cfg.Auditor.FetchLimit,
		DeleteThreshold: cfg.Auditor.DeleteThreshold,
		FlagThreshold:   cfg.Auditor.FlagThreshold,
		HighRating:      cfg.Auditor.HighRating,
		MaxParallel:     cfg.Auditor.MaxParallel,
		LockTimeout:     cfg.Lock.Timeout,
		LockMaxAge:      cfg.Lock.JanitorMaxAge,
		RetentionDays:   cfg.Queue.RetentionDays,
	}
}

// Validate 填充缺省值并校验阈值
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.FetchLimit <= 0 {
		c.FetchLimit = def.FetchLimit
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = def.MaxParallel
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = def.LockTimeout
	}
	if c.LockMaxAge <= 0 {
		c.LockMaxAge = def.LockMaxAge
	}
	c.LockMaxAge = max(c.LockMaxAge, c.LockTimeout)
	if c.HighRating <= 0 {
		c.HighRating = def.HighRating
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = def.RetentionDays
	}
	if c.DeleteThreshold == 0 && c.FlagThreshold == 0 {
		c.DeleteThreshold, c.FlagThreshold = def.DeleteThreshold, def.FlagThreshold
	}

	if c.DeleteThreshold < 0 || c.DeleteThreshold > 1 || c.FlagThreshold < 0 || c.FlagThreshold > 1 {
		return fmt.Errorf("thresholds must be within [0,1]: delete=%v flag=%v", c.DeleteThreshold, c.FlagThreshold)
	}
	if c.FlagThreshold >= c.DeleteThreshold {
		return fmt.Errorf("flag threshold %v must be below delete threshold %v", c.FlagThreshold, c.DeleteThreshold)
	}
	return nil
}
