// Package redis Redis 审核队列实现
//
// 数据布局（均在同一命名空间下）：
//   - <prefix>:audit_queue   LIST  memory_id，LPUSH 入队，最新在表头
//   - <prefix>:audit_status  HASH  memory_id → status
//   - <prefix>:audit_data    HASH  memory_id → JSON 记录
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"kb-auditor/internal/shared/queue"
)

// Store Redis 审核队列
type Store struct {
	client   *redis.Client
	keys     queue.Keys
	prefix   string
	archiver queue.Archiver
	owned    bool
	now      func() time.Time
}

// Option 队列选项
type Option func(*Store)

// WithPrefix 设置键命名空间
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
		s.keys = queue.NewKeys(prefix)
	}
}

// WithArchiver 设置清理前的归档器
func WithArchiver(a queue.Archiver) Option {
	return func(s *Store) { s.archiver = a }
}

// NewStoreFromURL 从 URL 创建审核队列
func NewStoreFromURL(redisURL string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(o)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Queue] Connected to %s", o.Addr)
	s := NewStoreFromClient(client, opts...)
	s.owned = true
	return s, nil
}

// NewStoreFromClient 从现有 Redis 客户端创建审核队列
func NewStoreFromClient(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		keys:   queue.NewKeys(queue.DefaultPrefix),
		prefix: queue.DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close 关闭自己创建的连接
func (s *Store) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

// Keys 返回使用的键名，便于运维检查
func (s *Store) Keys() queue.Keys {
	return s.keys
}

// HealthCheck 检查 Redis 连通性
func (s *Store) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		log.Printf("[Redis/Queue] Health check failed: %v", err)
		return false
	}
	return true
}

// ConnectionInfo 返回连接信息（不含密码）
func (s *Store) ConnectionInfo() map[string]any {
	o := s.client.Options()
	return map[string]any{
		"addr":       o.Addr,
		"db":         o.DB,
		"prefix":     s.prefix,
		"queue_key":  s.keys.Queue,
		"status_key": s.keys.Status,
		"data_key":   s.keys.Data,
	}
}

func queueErr(op, memoryID string, err error) error {
	if memoryID == "" {
		return fmt.Errorf("%w: %s: %w", queue.ErrQueue, op, err)
	}
	return fmt.Errorf("%w: %s %s: %w", queue.ErrQueue, op, memoryID, err)
}

var _ queue.AuditQueue = (*Store)(nil)
