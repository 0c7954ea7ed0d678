// Package etcd etcd 分布式锁实现
//
// 每个锁绑定一个租约，租约到期后 etcd 自动删除键。
package etcd

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"kb-auditor/internal/shared/lock"
)

// Config etcd 锁配置
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string
}

// Locker etcd 锁
type Locker struct {
	client *clientv3.Client
	prefix string
	owned  bool
	now    func() time.Time
}

// NewLocker 连接 etcd 并创建锁
func NewLocker(cfg Config) (*Locker, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints are empty")
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	log.Printf("[etcd/Lock] Connected to %v", cfg.Endpoints)
	l := NewLockerFromClient(client, cfg.Prefix)
	l.owned = true
	return l, nil
}

// NewLockerFromClient 从现有客户端创建锁
func NewLockerFromClient(client *clientv3.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "/kb-auditor/locks"
	}
	return &Locker{client: client, prefix: strings.TrimSuffix(prefix, "/"), now: time.Now}
}

func (l *Locker) etcdKey(key string) string {
	return l.prefix + "/" + key
}

// leaseSeconds etcd 租约以秒为单位，向上取整且至少 1 秒
func leaseSeconds(ttl time.Duration) int64 {
	return max(int64(math.Ceil(ttl.Seconds())), 1)
}

// Acquire 获取锁
func (l *Locker) Acquire(ctx context.Context, key string, timeout time.Duration) (*lock.Handle, error) {
	token := uuid.NewString()
	ek := l.etcdKey(key)
	var acquiredAt time.Time
	var value string

	err := lock.Retry(ctx, key, timeout, func(ctx context.Context) (bool, error) {
		lease, err := l.client.Grant(ctx, leaseSeconds(timeout))
		if err != nil {
			return false, err
		}
		acquiredAt = l.now()
		value = lock.EncodeValue(token, acquiredAt)

		resp, err := l.client.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(ek), "=", 0)).
			Then(clientv3.OpPut(ek, value, clientv3.WithLease(lease.ID))).
			Commit()
		if err != nil || !resp.Succeeded {
			l.client.Revoke(context.WithoutCancel(ctx), lease.ID)
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	release := func(ctx context.Context, _, _ string) error {
		_, err := l.client.Txn(ctx).
			If(clientv3.Compare(clientv3.Value(ek), "=", value)).
			Then(clientv3.OpDelete(ek)).
			Commit()
		if err != nil {
			return fmt.Errorf("%w: release %s: %w", lock.ErrLockBackend, key, err)
		}
		return nil
	}
	return lock.NewHandle(key, token, acquiredAt, timeout, release), nil
}

// ForceRelease 无条件删除锁
func (l *Locker) ForceRelease(ctx context.Context, key string) (bool, error) {
	resp, err := l.client.Delete(ctx, l.etcdKey(key))
	if err != nil {
		return false, fmt.Errorf("%w: force release %s: %w", lock.ErrLockBackend, key, err)
	}
	return resp.Deleted > 0, nil
}

// CleanupExpired 删除持有时间超过 maxAge 的锁
func (l *Locker) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	resp, err := l.client.Get(ctx, l.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return 0, fmt.Errorf("%w: list locks: %w", lock.ErrLockBackend, err)
	}

	now := l.now()
	cleaned := 0
	for _, kv := range resp.Kvs {
		_, acquiredAt, ok := lock.DecodeValue(string(kv.Value))
		if ok && now.Sub(acquiredAt) <= maxAge {
			continue
		}
		txn, err := l.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(string(kv.Key)), "=", kv.ModRevision)).
			Then(clientv3.OpDelete(string(kv.Key))).
			Commit()
		if err != nil {
			return cleaned, fmt.Errorf("%w: cleanup %s: %w", lock.ErrLockBackend, kv.Key, err)
		}
		if txn.Succeeded {
			cleaned++
		}
	}
	if cleaned > 0 {
		log.Printf("[etcd/Lock] Cleaned %d stale locks (max age %s)", cleaned, maxAge)
	}
	return cleaned, nil
}

// IsLocked 查询锁状态
func (l *Locker) IsLocked(ctx context.Context, key string) (bool, error) {
	resp, err := l.client.Get(ctx, l.etcdKey(key), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("%w: get %s: %w", lock.ErrLockBackend, key, err)
	}
	return resp.Count > 0, nil
}

// Close 关闭自己创建的客户端
func (l *Locker) Close() error {
	if l.owned {
		return l.client.Close()
	}
	return nil
}

var _ lock.Locker = (*Locker)(nil)
