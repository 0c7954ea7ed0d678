// Package queue 人工审核队列抽象接口
//
// 保存审核器标记的记忆，等待人工确认；当前由 Redis 实现。
package queue

import (
	"context"
	"errors"

	"kb-auditor/internal/shared/model"
)

// ErrQueue 队列后端读写失败
var ErrQueue = errors.New("audit queue error")

// ============================================================================
// 队列接口定义
// ============================================================================

// AuditQueue 审核队列接口
type AuditQueue interface {
	// AddRecord 新增待审核记录；同一 memory_id 已存在时返回 false，不做任何修改
	AddRecord(ctx context.Context, rec *model.AuditRecord) (bool, error)

	// GetPending 返回待审核记录，最新入队的在前，最多 limit 条（limit<=0 不限）
	GetPending(ctx context.Context, limit int) ([]*model.AuditRecord, error)
	GetAll(ctx context.Context) ([]*model.AuditRecord, error)
	GetByStatus(ctx context.Context, status model.AuditStatus) ([]*model.AuditRecord, error)

	// Get 返回单条记录，不存在时返回 nil, nil
	Get(ctx context.Context, memoryID string) (*model.AuditRecord, error)

	// UpdateStatus 设置状态和 reviewed_at；记录不存在时返回 false
	UpdateStatus(ctx context.Context, memoryID string, status model.AuditStatus) (bool, error)

	// ResolvePending 原子地把 pending 记录转为 approved/rejected；记录不存在或已处理时返回 false
	ResolvePending(ctx context.Context, memoryID string, status model.AuditStatus) (bool, error)

	DeleteRecord(ctx context.Context, memoryID string) (bool, error)
	IsApproved(ctx context.Context, memoryID string) (bool, error)

	// Len 待审核记录数
	Len(ctx context.Context) (int, error)
	GetMetrics(ctx context.Context) (*model.AuditMetrics, error)

	// CleanupProcessed 删除 reviewed_at 早于 daysOld 天的已处理记录，返回删除数量
	CleanupProcessed(ctx context.Context, daysOld int) (int, error)

	HealthCheck(ctx context.Context) bool
	Close() error
}

// Archiver 在清理前归档已处理的记录；归档失败的记录不会被删除
type Archiver interface {
	Archive(ctx context.Context, rec *model.AuditRecord) error
}
