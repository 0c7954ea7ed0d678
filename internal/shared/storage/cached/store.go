// Package cached 为知识库存储增加已处理 ID 的本地缓存
//
// processed 只会从 false 变为 true，因此只缓存肯定结果；
// 缓存丢失或淘汰只会多一次存储查询，不影响正确性。
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"kb-auditor/internal/shared/storage"
)

// Store 带已处理缓存的存储装饰器
type Store struct {
	storage.Store
	processed *ristretto.Cache
}

// New 创建缓存装饰器，size 为最多缓存的 ID 数量
func New(inner storage.Store, size int64) (*Store, error) {
	if size <= 0 {
		size = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
		// 成本按条目计数
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create processed cache: %w", err)
	}
	return &Store{Store: inner, processed: cache}, nil
}

func (s *Store) markProcessed(id string) {
	s.processed.Set(id, struct{}{}, 1)
}

// IsAlreadyProcessed 命中缓存时不访问存储
func (s *Store) IsAlreadyProcessed(ctx context.Context, id string) (bool, error) {
	if _, ok := s.processed.Get(id); ok {
		return true, nil
	}
	processed, err := s.Store.IsAlreadyProcessed(ctx, id)
	if err != nil {
		return false, err
	}
	if processed {
		s.markProcessed(id)
	}
	return processed, nil
}

func (s *Store) AtomicCheckAndFlag(ctx context.Context, id, reason string, confidence float64) (bool, error) {
	ok, err := s.Store.AtomicCheckAndFlag(ctx, id, reason, confidence)
	if err == nil {
		s.markProcessed(id)
	}
	return ok, err
}

func (s *Store) AtomicCheckAndDelete(ctx context.Context, id string) (bool, error) {
	ok, err := s.Store.AtomicCheckAndDelete(ctx, id)
	if err == nil {
		s.markProcessed(id)
	}
	return ok, err
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	err := s.Store.DeleteMemory(ctx, id)
	if err == nil {
		s.markProcessed(id)
	}
	return err
}

// Wait 等待缓冲中的写入生效（测试使用）
func (s *Store) Wait() {
	s.processed.Wait()
}

// Close 关闭缓存和底层存储
func (s *Store) Close() error {
	s.processed.Close()
	return s.Store.Close()
}

var _ storage.Store = (*Store)(nil)
