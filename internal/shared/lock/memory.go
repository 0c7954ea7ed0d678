package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memEntry struct {
	token      string
	acquiredAt time.Time
	expiresAt  time.Time
}

// MemoryLocker 进程内锁实现，用于单实例部署和测试
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemoryLocker 创建进程内锁
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// Acquire 获取锁
func (l *MemoryLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (*Handle, error) {
	token := uuid.NewString()
	var acquiredAt time.Time

	err := Retry(ctx, key, timeout, func(context.Context) (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		now := l.now()
		if e, ok := l.entries[key]; ok && now.Before(e.expiresAt) {
			return false, nil
		}
		acquiredAt = now
		l.entries[key] = memEntry{token: token, acquiredAt: now, expiresAt: now.Add(timeout)}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return NewHandle(key, token, acquiredAt, timeout, l.release), nil
}

func (l *MemoryLocker) release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok && e.token == token {
		delete(l.entries, key)
	}
	return nil
}

// ForceRelease 无条件删除锁
func (l *MemoryLocker) ForceRelease(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	delete(l.entries, key)
	return ok, nil
}

// CleanupExpired 清理过期或持有过久的锁
func (l *MemoryLocker) CleanupExpired(_ context.Context, maxAge time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cleaned := 0
	for key, e := range l.entries {
		if !now.Before(e.expiresAt) || now.Sub(e.acquiredAt) > maxAge {
			delete(l.entries, key)
			cleaned++
		}
	}
	return cleaned, nil
}

// IsLocked 查询锁状态
func (l *MemoryLocker) IsLocked(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	return ok && l.now().Before(e.expiresAt), nil
}

func (l *MemoryLocker) Close() error { return nil }

var _ Locker = (*MemoryLocker)(nil)
