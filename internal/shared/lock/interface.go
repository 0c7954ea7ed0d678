// Package lock 分布式锁抽象接口
//
// 为每条记忆提供跨进程互斥，当前由 Redis（默认）或 etcd 实现。
// 锁只用于避免重复调用审核模型，正确性由存储层的原子操作保证。
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLockTimeout 在等待期限内未获得锁（锁被其他持有者占用）
	ErrLockTimeout = errors.New("lock: acquire timed out")

	// ErrLockBackend 锁后端不可用
	ErrLockBackend = errors.New("lock: backend unavailable")
)

// ============================================================================
// 锁接口定义
// ============================================================================

// Locker 分布式锁接口
//
// 状态机：UNLOCKED → LOCKED (Acquire) → UNLOCKED (Release | 过期 | ForceRelease)
type Locker interface {
	// Acquire 获取锁，timeout 同时作为 TTL 和等待期限；TTL 不会自动续期
	Acquire(ctx context.Context, key string, timeout time.Duration) (*Handle, error)

	// ForceRelease 无条件删除锁，返回是否确实删除了条目
	ForceRelease(ctx context.Context, key string) (bool, error)

	// CleanupExpired 清理持有时间超过 maxAge 的锁，返回清理数量
	CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error)

	// IsLocked 查询锁当前是否被持有
	IsLocked(ctx context.Context, key string) (bool, error)

	Close() error
}

// MemoryKey 返回记忆对应的锁键
func MemoryKey(memoryID string) string {
	return "memory:" + memoryID
}
