// Package storage 知识库内存实现
package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"kb-auditor/internal/shared/model"
)

// ============================================================================
// MemoryStore - 进程内知识库（用于测试和本地调试）
// ============================================================================

// MemoryStore 进程内知识库实现
//
// FetchErr/ActionErr 非空时对应操作直接返回该错误，用于模拟存储故障
type MemoryStore struct {
	mu       sync.Mutex
	memories map[string]*model.Memory

	FetchErr  error
	ActionErr error

	deleteCalls int
}

// NewMemoryStore 创建内存知识库
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memories: make(map[string]*model.Memory)}
}

func clone(m *model.Memory) *model.Memory {
	cp := *m
	cp.Observations = slices.Clone(m.Observations)
	if m.Rating != nil {
		r := *m.Rating
		cp.Rating = &r
	}
	return &cp
}

func (s *MemoryStore) AddConversation(_ context.Context, m *model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[m.ID]; ok {
		return ErrDuplicate
	}
	cp := clone(m)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.memories[m.ID] = cp
	return nil
}

func (s *MemoryStore) GetMemory(_ context.Context, id string) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(m), nil
}

func (s *MemoryStore) SetRating(_ context.Context, id string, rating float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return ErrNotFound
	}
	m.Rating = &rating
	return nil
}

func (s *MemoryStore) GetRecentConversations(_ context.Context, limit int) ([]*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	out := make([]*model.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		out = append(out, clone(m))
	}
	slices.SortFunc(out, func(a, b *model.Memory) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) lookup(id string, fn func(m *model.Memory) bool, missing bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActionErr != nil {
		return false, s.ActionErr
	}
	m, ok := s.memories[id]
	if !ok {
		return missing, nil
	}
	return fn(m), nil
}

func (s *MemoryStore) IsAlreadyProcessed(_ context.Context, id string) (bool, error) {
	return s.lookup(id, func(m *model.Memory) bool { return m.Processed }, true)
}

func (s *MemoryStore) IsFlagged(_ context.Context, id string) (bool, error) {
	return s.lookup(id, func(m *model.Memory) bool { return m.IsFlagged }, false)
}

func (s *MemoryStore) IsApproved(_ context.Context, id string) (bool, error) {
	return s.lookup(id, func(m *model.Memory) bool { return m.IsApproved }, false)
}

func (s *MemoryStore) AtomicCheckAndFlag(_ context.Context, id, reason string, confidence float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActionErr != nil {
		return false, s.ActionErr
	}
	m, ok := s.memories[id]
	if !ok || m.Processed {
		return false, nil
	}
	m.Processed = true
	m.IsFlagged = true
	m.FlagReason = reason
	m.FlagConfidence = confidence
	return true, nil
}

func (s *MemoryStore) AtomicCheckAndDelete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActionErr != nil {
		return false, s.ActionErr
	}
	m, ok := s.memories[id]
	if !ok || m.Processed {
		return false, nil
	}
	delete(s.memories, id)
	return true, nil
}

func (s *MemoryStore) DeleteMemory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActionErr != nil {
		return s.ActionErr
	}
	s.deleteCalls++
	delete(s.memories, id)
	return nil
}

// DeleteCalls DeleteMemory 被调用的次数
func (s *MemoryStore) DeleteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCalls
}

func (s *MemoryStore) AddObservations(_ context.Context, id string, observations []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActionErr != nil {
		return s.ActionErr
	}
	m, ok := s.memories[id]
	if !ok {
		return ErrNotFound
	}
	m.Observations = MergeObservations(m.Observations, observations)
	if m.HasObservation(model.ObservationManuallyApproved) {
		m.IsApproved = true
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// MergeObservations 追加观察标记并去重，保持原有顺序
func MergeObservations(existing, add []string) []string {
	out := slices.Clone(existing)
	for _, o := range add {
		if o != "" && !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
