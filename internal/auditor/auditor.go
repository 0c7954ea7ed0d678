package auditor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kb-auditor/internal/shared/lock"
	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/queue"
	"kb-auditor/internal/shared/storage"
	"kb-auditor/internal/verdict"
	"kb-auditor/pkg/logging"
)

// releaseTimeout 释放锁的上限；释放不受调用方取消影响
const releaseTimeout = 5 * time.Second

// Auditor 审核协调器
//
// 自身不持有持久状态，所有互斥由锁服务和存储层的原子操作提供，
// 多个副本可以同时运行。
type Auditor struct {
	store     storage.KnowledgeStore
	queue     queue.AuditQueue
	locker    lock.Locker
	evaluator verdict.Evaluator

	cfg     Config
	metrics *Metrics
	logger  *logging.Logger
	now     func() time.Time
}

// Option 可选项
type Option func(*Auditor)

// WithMetrics 使用指定指标
func WithMetrics(m *Metrics) Option {
	return func(a *Auditor) { a.metrics = m }
}

// WithLogger 使用指定日志器
func WithLogger(l *logging.Logger) Option {
	return func(a *Auditor) { a.logger = l }
}

// New 创建审核器
func New(store storage.KnowledgeStore, q queue.AuditQueue, locker lock.Locker, evaluator verdict.Evaluator, cfg Config, opts ...Option) (*Auditor, error) {
	if store == nil || q == nil || locker == nil || evaluator == nil {
		return nil, errors.New("auditor: store, queue, locker and evaluator are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Auditor{
		store:     store,
		queue:     q,
		locker:    locker,
		evaluator: evaluator,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = NewMetrics(nil)
	}
	if a.logger == nil {
		a.logger = logging.Discard()
	}
	return a, nil
}

// Config 当前参数
func (a *Auditor) Config() Config { return a.cfg }

// Metrics 指标
func (a *Auditor) Metrics() *Metrics { return a.metrics }

// Outcome 单条记忆的审核结果
type Outcome struct {
	MemoryID string
	Action   Action
	Skip     SkipReason

	// Memory 标记成功时携带审核结论，供写入审核队列
	Memory *model.Memory

	// Err 导致无动作的错误（锁、存储或模型），已记录日志
	Err error
}

// BatchResult 一次批量审核的统计
type BatchResult struct {
	Deleted  int `json:"deleted"`
	Flagged  int `json:"flagged"`
	Queued   int `json:"queued"`
	Analyzed int `json:"analyzed"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// AnalyzeMemory 审核单条记忆
//
// 顺序：加锁 → 锁内复查 → 资格检查 → 模型结论 → 原子动作 → 释放锁。
// 所有错误都转换为无动作的结果，不会向上抛出。
func (a *Auditor) AnalyzeMemory(ctx context.Context, m *model.Memory) *Outcome {
	out := &Outcome{MemoryID: m.ID, Action: ActionNone}
	logger := a.logger.WithContext(ctx).WithMemoryID(m.ID)

	h, err := a.locker.Acquire(ctx, lock.MemoryKey(m.ID), a.cfg.LockTimeout)
	if err != nil {
		a.metrics.LockFailures.Inc()
		logger.WithError(err).Warn("could not acquire memory lock")
		out.Skip, out.Err = SkipLockFailed, err
		return out
	}
	defer func() {
		// 调用方取消后仍必须释放锁
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := h.Release(rctx); err != nil {
			logger.WithError(err).Warn("failed to release memory lock")
		}
	}()

	if skip, err := a.recheck(ctx, m.ID); skip != SkipNone {
		out.Skip, out.Err = skip, err
		a.skipped(logger, skip, err)
		return out
	}

	skip, err := a.ValidateForAnalysis(ctx, m)
	if skip != SkipNone {
		out.Skip, out.Err = skip, err
		a.skipped(logger, skip, err)
		return out
	}

	a.metrics.Analyzed.Inc()
	result, err := a.evaluator.Evaluate(ctx, m.UserQuery, m.AgentResponse)
	if err != nil {
		a.metrics.VerdictErrors.WithLabelValues(verdict.Kind(err)).Inc()
		logger.WithError(err).Warn("no verdict, memory left untouched")
		out.Err = err
		return out
	}

	action := Decide(result, a.cfg.DeleteThreshold, a.cfg.FlagThreshold)
	switch action {
	case ActionDelete:
		logger.Info("deleting memory", "confidence", result.Confidence, "reason", result.Reason)
		ok, err := a.store.AtomicCheckAndDelete(ctx, m.ID)
		if err != nil {
			logger.WithError(err).Error("atomic delete failed")
			out.Skip, out.Err = SkipStoreError, err
			return out
		}
		if ok {
			out.Action = ActionDelete
			a.metrics.Actions.WithLabelValues(string(ActionDelete)).Inc()
		}

	case ActionFlag:
		flagged := *m
		flagged.IAAuditReason = result.Reason
		flagged.IAAuditConfidence = result.Confidence
		// 标记后 processed 不可回退，写不进队列的记录必须在标记前拦下
		if err := flagged.ToAuditRecord(a.now()).Validate(); err != nil {
			out.Skip, out.Err = SkipInvalidRecord, err
			a.skipped(logger, SkipInvalidRecord, err)
			return out
		}

		logger.Warn("flagging memory", "confidence", result.Confidence, "reason", result.Reason)
		ok, err := a.store.AtomicCheckAndFlag(ctx, m.ID, result.Reason, result.Confidence)
		if err != nil {
			logger.WithError(err).Error("atomic flag failed")
			out.Skip, out.Err = SkipStoreError, err
			return out
		}
		if ok {
			out.Action = ActionFlag
			out.Memory = &flagged
			a.metrics.Actions.WithLabelValues(string(ActionFlag)).Inc()
		}
	}

	if action != ActionNone && out.Action == ActionNone {
		logger.Debug("memory already processed by another worker", "action", string(action))
	}
	return out
}

// recheck 锁内复查标记与人工通过状态
func (a *Auditor) recheck(ctx context.Context, id string) (SkipReason, error) {
	flagged, err := a.store.IsFlagged(ctx, id)
	if err != nil {
		return SkipStoreError, fmt.Errorf("check flagged: %w", err)
	}
	if flagged {
		return SkipFlagged, nil
	}
	approved, err := a.store.IsApproved(ctx, id)
	if err != nil {
		return SkipStoreError, fmt.Errorf("check approved: %w", err)
	}
	if approved {
		return SkipApproved, nil
	}
	return SkipNone, nil
}

func (a *Auditor) skipped(logger *logging.Logger, reason SkipReason, err error) {
	a.metrics.Skipped.WithLabelValues(string(reason)).Inc()
	if err != nil {
		logger.WithError(err).Warn("memory skipped", "reason", string(reason))
		return
	}
	logger.Debug("memory skipped", "reason", string(reason))
}

// CleanupLocks 清理过期锁
func (a *Auditor) CleanupLocks(ctx context.Context) (int, error) {
	return a.locker.CleanupExpired(ctx, a.cfg.LockMaxAge)
}

// AnalyzeAndFlagMemories 批量审核最近的对话
//
// 只有拉取失败会返回错误（此时计数为零）；单条记忆的失败只记录日志。
// 删除在原子操作中已经完成，这里不再二次删除。
func (a *Auditor) AnalyzeAndFlagMemories(ctx context.Context) (*BatchResult, error) {
	batchID := uuid.NewString()
	ctx = logging.ContextWithBatchID(ctx, batchID)
	logger := a.logger.WithBatchID(batchID)
	start := time.Now()
	defer func() { a.metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	if n, err := a.CleanupLocks(ctx); err != nil {
		logger.WithError(err).Warn("lock cleanup failed")
	} else if n > 0 {
		logger.Info("cleaned up expired locks", "count", n)
	}

	memories, err := a.store.GetRecentConversations(ctx, a.cfg.FetchLimit)
	if err != nil {
		logger.WithError(err).Error("failed to fetch recent conversations")
		return &BatchResult{}, fmt.Errorf("fetch recent conversations: %w", err)
	}
	logger.Info("batch started", "memories", len(memories))

	outcomes := make([]*Outcome, len(memories))
	var g errgroup.Group
	g.SetLimit(max(1, min(len(memories), a.cfg.MaxParallel)))
	for i, m := range memories {
		if ctx.Err() != nil {
			break
		}
		i, m := i, m
		g.Go(func() error {
			outcomes[i] = a.AnalyzeMemory(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{}
	var flagged []*model.Memory
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		switch {
		case out.Action == ActionDelete:
			res.Deleted++
		case out.Action == ActionFlag:
			res.Flagged++
			flagged = append(flagged, out.Memory)
		case out.Skip != SkipNone && out.Err == nil:
			res.Skipped++
		}
		if out.Err != nil {
			res.Errors++
		}
		if out.Skip == SkipNone || out.Action != ActionNone {
			res.Analyzed++
		}
	}

	res.Queued = a.enqueue(ctx, logger, flagged)

	logger.WithDuration(time.Since(start)).Info("batch finished",
		"deleted", res.Deleted,
		"flagged", res.Flagged,
		"queued", res.Queued,
		"skipped", res.Skipped,
		"errors", res.Errors,
	)
	a.refreshPending(ctx)
	return res, nil
}

// enqueue 标记成功的记忆写入审核队列，失败逐条记录
func (a *Auditor) enqueue(ctx context.Context, logger *logging.Logger, flagged []*model.Memory) int {
	// 取消后仍写入：存储侧已经标记，丢失队列记录会让它对人工不可见
	ctx = context.WithoutCancel(ctx)
	queued := 0
	for _, m := range flagged {
		rec := m.ToAuditRecord(a.now())
		added, err := a.queue.AddRecord(ctx, rec)
		if err != nil {
			a.metrics.QueueErrors.Inc()
			logger.WithMemoryID(m.ID).WithError(err).Error("flagged in store but not queued for review")
			continue
		}
		if !added {
			logger.WithMemoryID(m.ID).Info("audit record already exists")
			continue
		}
		queued++
	}
	return queued
}

func (a *Auditor) refreshPending(ctx context.Context) {
	n, err := a.queue.Len(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	a.metrics.PendingLength.Set(float64(n))
}
