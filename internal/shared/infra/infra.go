// Package infra 基础设施聚合层
//
// 按配置构造审核器依赖的全部后端，并统一负责关闭：
//   - Store：知识库（PostgreSQL / SQLite / MongoDB，可选已处理缓存）
//   - Queue：人工审核队列（Redis，可选 MinIO 归档）
//   - Locker：单条记忆锁（Redis / etcd / 进程内）
package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"kb-auditor/internal/config"
	"kb-auditor/internal/shared/archive"
	"kb-auditor/internal/shared/lock"
	locketcd "kb-auditor/internal/shared/lock/etcd"
	lockredis "kb-auditor/internal/shared/lock/redis"
	"kb-auditor/internal/shared/queue"
	queueredis "kb-auditor/internal/shared/queue/redis"
	"kb-auditor/internal/shared/storage"
	"kb-auditor/internal/shared/storage/cached"
	"kb-auditor/internal/shared/storage/dbutil"
	"kb-auditor/internal/shared/storage/driver/postgres"
	"kb-auditor/internal/shared/storage/driver/sqlite"
	"kb-auditor/internal/shared/storage/mongostore"
	"kb-auditor/internal/shared/storage/repository"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Store 知识库
	Store storage.Store

	// Queue 人工审核队列
	Queue queue.AuditQueue

	// Locker 单条记忆锁
	Locker lock.Locker

	// Redis 队列与锁共用的连接，进程内模式下为 nil
	Redis *redis.Client
}

// New 按配置初始化全部基础设施，任一步失败会关闭已创建的部分
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	i := &Infrastructure{}

	client, err := NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	i.Redis = client

	if i.Store, err = NewStore(cfg); err != nil {
		i.Close()
		return nil, err
	}

	if i.Locker, err = NewLocker(cfg, client); err != nil {
		i.Close()
		return nil, err
	}

	var opts []queueredis.Option
	if cfg.Queue.Prefix != "" {
		opts = append(opts, queueredis.WithPrefix(cfg.Queue.Prefix))
	}
	if cfg.MinIO.Enabled {
		archiver, err := NewArchiver(ctx, cfg.MinIO)
		if err != nil {
			i.Close()
			return nil, err
		}
		opts = append(opts, queueredis.WithArchiver(archiver))
	}
	i.Queue = queueredis.NewStoreFromClient(client, opts...)

	return i, nil
}

// NewInMemory 进程内基础设施（本地调试和测试）
func NewInMemory() *Infrastructure {
	return &Infrastructure{
		Store:  storage.NewMemoryStore(),
		Queue:  queue.NewMemoryQueue(),
		Locker: lock.NewMemoryLocker(),
	}
}

// NewStore 按驱动创建知识库，CacheSize>0 时加上已处理缓存
func NewStore(cfg *config.Config) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.DatabaseDriver {
	case "postgres", "":
		store, err = openSQL(postgres.Open, postgres.NewDialect(), cfg.DatabaseURL)
	case "sqlite":
		store, err = openSQL(sqlite.Open, sqlite.NewDialect(), cfg.DatabaseURL)
	case "mongodb":
		store, err = mongostore.NewStore(cfg.DatabaseURL, cfg.DatabaseName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[Infra] Knowledge store ready (driver=%s)", cfg.DatabaseDriver)

	if cfg.Auditor.CacheSize <= 0 {
		return store, nil
	}
	c, err := cached.New(store, cfg.Auditor.CacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

type opener func(dsn string) (*sql.DB, error)

func openSQL(open opener, dialect dbutil.Dialect, url string) (storage.Store, error) {
	db, err := open(url)
	if err != nil {
		return nil, err
	}
	if err := dialect.AutoMigrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return repository.NewStore(db, dialect), nil
}

// NewLocker 按配置创建锁；redis 后端复用队列连接
func NewLocker(cfg *config.Config, client *redis.Client) (lock.Locker, error) {
	switch cfg.Lock.Backend {
	case "redis", "":
		if client == nil {
			return nil, errors.New("redis lock backend requires a redis client")
		}
		return lockredis.NewLocker(client, ""), nil
	case "etcd":
		return locketcd.NewLocker(locketcd.Config{
			Endpoints: cfg.EtcdEndpoints,
			Prefix:    cfg.EtcdPrefix,
		})
	case "memory":
		log.Printf("[Infra] Using in-process lock; do not run more than one replica")
		return lock.NewMemoryLocker(), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend %q", cfg.Lock.Backend)
	}
}

// NewArchiver 创建 MinIO 归档器并确保 bucket 存在
func NewArchiver(ctx context.Context, cfg config.MinIOConfig) (*archive.Archiver, error) {
	client, err := archive.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	log.Printf("[Infra] Archiving resolved audit records to minio %s", cfg.Endpoint)
	return archive.NewArchiver(client, ""), nil
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var errs []error

	if i.Queue != nil {
		errs = append(errs, i.Queue.Close())
	}
	if i.Locker != nil {
		errs = append(errs, i.Locker.Close())
	}
	if i.Store != nil {
		errs = append(errs, i.Store.Close())
	}
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	return errors.Join(errs...)
}
