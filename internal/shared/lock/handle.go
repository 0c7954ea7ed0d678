package lock

import (
	"context"
	"sync"
	"time"
)

// ReleaseFunc 由具体后端提供的比较删除操作
type ReleaseFunc func(ctx context.Context, key, token string) error

// Handle 已获得的锁
//
// Release 是幂等的；令牌不匹配（锁已过期并被他人获得）时静默成功
type Handle struct {
	key        string
	token      string
	acquiredAt time.Time
	ttl        time.Duration

	release ReleaseFunc
	once    sync.Once
	err     error
}

// NewHandle 创建锁句柄（供后端实现使用）
func NewHandle(key, token string, acquiredAt time.Time, ttl time.Duration, release ReleaseFunc) *Handle {
	return &Handle{
		key:        key,
		token:      token,
		acquiredAt: acquiredAt,
		ttl:        ttl,
		release:    release,
	}
}

func (h *Handle) Key() string           { return h.key }
func (h *Handle) Token() string         { return h.token }
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// ExpiresAt 锁的过期时间
func (h *Handle) ExpiresAt() time.Time {
	return h.acquiredAt.Add(h.ttl)
}

// Release 释放锁，多次调用只执行一次
func (h *Handle) Release(ctx context.Context) error {
	h.once.Do(func() {
		if h.release != nil {
			h.err = h.release(ctx, h.key, h.token)
		}
	})
	return h.err
}
