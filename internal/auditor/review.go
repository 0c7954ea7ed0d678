package auditor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/queue"
	"kb-auditor/internal/shared/storage"
	"kb-auditor/pkg/logging"
)

var (
	// ErrNotFound 队列中没有待审核的该记录
	ErrNotFound = errors.New("audit record not found")

	// ErrInvalidStatus 未知的状态过滤值
	ErrInvalidStatus = errors.New("invalid status filter")
)

// StatusAll 列表查询时不过滤状态
const StatusAll = "all"

// Reviewer 人工审核操作
//
// 队列状态与知识库是两次独立写入，不做跨存储回滚；后半步失败时记录错误日志。
type Reviewer struct {
	store   storage.KnowledgeStore
	queue   queue.AuditQueue
	metrics *Metrics
	logger  *logging.Logger
}

// NewReviewer 创建审核操作
func NewReviewer(store storage.KnowledgeStore, q queue.AuditQueue, metrics *Metrics, logger *logging.Logger) *Reviewer {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reviewer{store: store, queue: q, metrics: metrics, logger: logger.Named("review")}
}

// Approve 人工确认回答无误：记录转为 approved，并给记忆打上人工通过标记
func (r *Reviewer) Approve(ctx context.Context, memoryID string) error {
	if err := r.resolve(ctx, memoryID, model.AuditStatusApproved); err != nil {
		return err
	}
	if err := r.store.AddObservations(ctx, memoryID, []string{model.ObservationManuallyApproved}); err != nil {
		r.metrics.ReviewsTotal.WithLabelValues("approve", "partial").Inc()
		r.logger.WithMemoryID(memoryID).WithError(err).
			Error("record approved but observation write failed; memory may be re-audited")
		return fmt.Errorf("add approval observation: %w", err)
	}
	r.metrics.ReviewsTotal.WithLabelValues("approve", "ok").Inc()
	r.logger.WithMemoryID(memoryID).Info("memory approved")
	return nil
}

// Reject 人工确认回答错误：记录转为 rejected，并从知识库删除记忆
func (r *Reviewer) Reject(ctx context.Context, memoryID string) error {
	if err := r.resolve(ctx, memoryID, model.AuditStatusRejected); err != nil {
		return err
	}
	if err := r.store.DeleteMemory(ctx, memoryID); err != nil {
		r.metrics.ReviewsTotal.WithLabelValues("reject", "partial").Inc()
		r.logger.WithMemoryID(memoryID).WithError(err).
			Error("record rejected but memory deletion failed; memory still served")
		return fmt.Errorf("delete rejected memory: %w", err)
	}
	r.metrics.ReviewsTotal.WithLabelValues("reject", "ok").Inc()
	r.logger.WithMemoryID(memoryID).Info("memory rejected and deleted")
	return nil
}

func (r *Reviewer) resolve(ctx context.Context, memoryID string, status model.AuditStatus) error {
	ok, err := r.queue.ResolvePending(ctx, memoryID, status)
	if err != nil {
		return fmt.Errorf("update audit status: %w", err)
	}
	if !ok {
		r.metrics.ReviewsTotal.WithLabelValues(reviewAction(status), "not_found").Inc()
		return fmt.Errorf("%w: %s", ErrNotFound, memoryID)
	}
	return nil
}

func reviewAction(status model.AuditStatus) string {
	if status == model.AuditStatusApproved {
		return "approve"
	}
	return "reject"
}

// ListFlags 按状态与关键字列出审核记录，最新在前
//
// status 为空或 all 时返回全部状态
func (r *Reviewer) ListFlags(ctx context.Context, status, query string) ([]*model.AuditRecord, error) {
	var (
		records []*model.AuditRecord
		err     error
	)
	switch {
	case status == "" || status == StatusAll:
		records, err = r.queue.GetAll(ctx)
	case model.AuditStatus(status).IsValid():
		records, err = r.queue.GetByStatus(ctx, model.AuditStatus(status))
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err != nil {
		return nil, err
	}

	out := records[:0]
	for _, rec := range records {
		if rec.Matches(query) {
			out = append(out, rec)
		}
	}
	slices.SortStableFunc(out, func(a, b *model.AuditRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Metrics 审核队列统计
func (r *Reviewer) Metrics(ctx context.Context) (*model.AuditMetrics, error) {
	m, err := r.queue.GetMetrics(ctx)
	if err != nil {
		return nil, err
	}
	r.metrics.PendingLength.Set(float64(m.Pending))
	return m, nil
}
