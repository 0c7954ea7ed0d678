// Package queue 审核队列内存实现
package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"kb-auditor/internal/shared/model"
)

// ============================================================================
// MemoryQueue - 进程内审核队列（用于测试和单机调试）
// ============================================================================

// MemoryQueue 进程内审核队列
//
// AddErr/ReadErr 非空时对应操作直接返回该错误，用于模拟后端故障
type MemoryQueue struct {
	mu      sync.Mutex
	order   []string // 最新在前
	records map[string]*model.AuditRecord
	now     func() time.Time

	AddErr  error
	ReadErr error
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		records: make(map[string]*model.AuditRecord),
		now:     time.Now,
	}
}

func (q *MemoryQueue) AddRecord(_ context.Context, rec *model.AuditRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.AddErr != nil {
		return false, q.AddErr
	}
	if _, ok := q.records[rec.MemoryID]; ok {
		return false, nil
	}
	cp := *rec
	cp.Status = model.AuditStatusPending
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = q.now()
	}
	cp.ReviewedAt = nil
	q.records[rec.MemoryID] = &cp
	q.order = append([]string{rec.MemoryID}, q.order...)
	return true, nil
}

func (q *MemoryQueue) filter(match func(*model.AuditRecord) bool, limit int) ([]*model.AuditRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ReadErr != nil {
		return nil, q.ReadErr
	}
	out := make([]*model.AuditRecord, 0)
	for _, id := range q.order {
		rec := q.records[id]
		if match(rec) {
			cp := *rec
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (q *MemoryQueue) GetPending(_ context.Context, limit int) ([]*model.AuditRecord, error) {
	return q.filter(func(r *model.AuditRecord) bool { return r.Status == model.AuditStatusPending }, limit)
}

func (q *MemoryQueue) GetAll(_ context.Context) ([]*model.AuditRecord, error) {
	return q.filter(func(*model.AuditRecord) bool { return true }, 0)
}

func (q *MemoryQueue) GetByStatus(_ context.Context, status model.AuditStatus) ([]*model.AuditRecord, error) {
	return q.filter(func(r *model.AuditRecord) bool { return r.Status == status }, 0)
}

func (q *MemoryQueue) Get(_ context.Context, memoryID string) (*model.AuditRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ReadErr != nil {
		return nil, q.ReadErr
	}
	rec, ok := q.records[memoryID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (q *MemoryQueue) setStatus(memoryID string, status model.AuditStatus, requirePending bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[memoryID]
	if !ok || (requirePending && rec.Status != model.AuditStatusPending) {
		return false
	}
	now := q.now()
	rec.Status = status
	rec.ReviewedAt = &now
	return true
}

func (q *MemoryQueue) UpdateStatus(_ context.Context, memoryID string, status model.AuditStatus) (bool, error) {
	return q.setStatus(memoryID, status, false), nil
}

func (q *MemoryQueue) ResolvePending(_ context.Context, memoryID string, status model.AuditStatus) (bool, error) {
	return q.setStatus(memoryID, status, true), nil
}

func (q *MemoryQueue) DeleteRecord(_ context.Context, memoryID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.records[memoryID]; !ok {
		return false, nil
	}
	delete(q.records, memoryID)
	q.order = slices.DeleteFunc(q.order, func(id string) bool { return id == memoryID })
	return true, nil
}

func (q *MemoryQueue) IsApproved(_ context.Context, memoryID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[memoryID]
	return ok && rec.Status == model.AuditStatusApproved, nil
}

func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	m, err := q.GetMetrics(ctx)
	if err != nil {
		return 0, err
	}
	return m.Pending, nil
}

func (q *MemoryQueue) GetMetrics(_ context.Context) (*model.AuditMetrics, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ReadErr != nil {
		return nil, q.ReadErr
	}
	m := &model.AuditMetrics{}
	for _, rec := range q.records {
		m.Add(rec.Status)
	}
	return m, nil
}

func (q *MemoryQueue) CleanupProcessed(ctx context.Context, daysOld int) (int, error) {
	cutoff := q.now().AddDate(0, 0, -daysOld)
	stale, err := q.filter(func(r *model.AuditRecord) bool {
		return r.Status.IsResolved() && r.ReviewedAt != nil && r.ReviewedAt.Before(cutoff)
	}, 0)
	if err != nil {
		return 0, err
	}
	for _, rec := range stale {
		q.DeleteRecord(ctx, rec.MemoryID)
	}
	return len(stale), nil
}

func (q *MemoryQueue) HealthCheck(context.Context) bool { return q.ReadErr == nil }

func (q *MemoryQueue) Close() error { return nil }

var _ AuditQueue = (*MemoryQueue)(nil)
