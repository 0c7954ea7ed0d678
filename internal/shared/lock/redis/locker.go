// Package redis Redis 分布式锁实现
//
// 锁值格式为 "<token>|<acquired_at_ms>"，SET NX PX 获取，Lua 脚本比较删除。
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"kb-auditor/internal/shared/lock"
)

// DefaultPrefix 锁键前缀
const DefaultPrefix = "audit_lock:"

// releaseScript 仅当值匹配时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker Redis 锁
type Locker struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewLocker 从现有客户端创建锁，prefix 为空时使用 DefaultPrefix
func NewLocker(client *redis.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Locker{client: client, prefix: prefix, now: time.Now}
}

func (l *Locker) redisKey(key string) string {
	return l.prefix + key
}

// Acquire 获取锁
func (l *Locker) Acquire(ctx context.Context, key string, timeout time.Duration) (*lock.Handle, error) {
	token := uuid.NewString()
	rk := l.redisKey(key)
	var acquiredAt time.Time

	err := lock.Retry(ctx, key, timeout, func(ctx context.Context) (bool, error) {
		acquiredAt = l.now()
		return l.client.SetNX(ctx, rk, lock.EncodeValue(token, acquiredAt), timeout).Result()
	})
	if err != nil {
		return nil, err
	}

	value := lock.EncodeValue(token, acquiredAt)
	release := func(ctx context.Context, _, _ string) error {
		if err := releaseScript.Run(ctx, l.client, []string{rk}, value).Err(); err != nil {
			return fmt.Errorf("%w: release %s: %w", lock.ErrLockBackend, key, err)
		}
		return nil
	}
	return lock.NewHandle(key, token, acquiredAt, timeout, release), nil
}

// ForceRelease 无条件删除锁
func (l *Locker) ForceRelease(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Del(ctx, l.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: force release %s: %w", lock.ErrLockBackend, key, err)
	}
	if n > 0 {
		log.Printf("[Redis/Lock] Force released %s", key)
	}
	return n > 0, nil
}

// CleanupExpired 扫描所有锁，删除持有时间超过 maxAge 的条目
//
// 删除使用比较删除，避免误删扫描期间被重新获取的锁
func (l *Locker) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	now := l.now()
	cleaned := 0

	iter := l.client.Scan(ctx, 0, l.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rk := iter.Val()
		value, err := l.client.Get(ctx, rk).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return cleaned, fmt.Errorf("%w: cleanup get %s: %w", lock.ErrLockBackend, rk, err)
		}

		_, acquiredAt, ok := lock.DecodeValue(value)
		if ok && now.Sub(acquiredAt) <= maxAge {
			continue
		}
		if !ok {
			// 无法解析的值只在没有 TTL 时清理
			ttl, err := l.client.PTTL(ctx, rk).Result()
			if err != nil {
				return cleaned, fmt.Errorf("%w: cleanup ttl %s: %w", lock.ErrLockBackend, rk, err)
			}
			if ttl != -1 {
				continue
			}
		}

		n, err := releaseScript.Run(ctx, l.client, []string{rk}, value).Int()
		if err != nil {
			return cleaned, fmt.Errorf("%w: cleanup del %s: %w", lock.ErrLockBackend, rk, err)
		}
		cleaned += n
	}
	if err := iter.Err(); err != nil {
		return cleaned, fmt.Errorf("%w: scan: %w", lock.ErrLockBackend, err)
	}

	if cleaned > 0 {
		log.Printf("[Redis/Lock] Cleaned %d stale locks (max age %s)", cleaned, maxAge)
	}
	return cleaned, nil
}

// IsLocked 查询锁状态
func (l *Locker) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, l.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %w", lock.ErrLockBackend, key, err)
	}
	return n > 0, nil
}

// Close 关闭由 infra 统一管理，这里不关闭共享客户端
func (l *Locker) Close() error { return nil }

var _ lock.Locker = (*Locker)(nil)
