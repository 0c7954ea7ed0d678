package auditor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"kb-auditor/internal/shared/queue"
	"kb-auditor/pkg/logging"
)

// Scheduler 定时执行批量审核，每轮结束后清理过期的审核记录
//
// 同一进程内上一轮未结束时跳过本轮；跨实例的重复由锁和原子操作处理。
type Scheduler struct {
	auditor       *Auditor
	queue         queue.AuditQueue
	frequency     time.Duration
	runOnStartup  bool
	retentionDays int
	logger        *logging.Logger

	running atomic.Bool
	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

// NewScheduler 创建调度器
func NewScheduler(a *Auditor, q queue.AuditQueue, frequency time.Duration, runOnStartup bool, logger *logging.Logger) *Scheduler {
	if frequency <= 0 {
		frequency = 6 * time.Hour
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		auditor:       a,
		queue:         q,
		frequency:     frequency,
		runOnStartup:  runOnStartup,
		retentionDays: a.cfg.RetentionDays,
		logger:        logger.Named("scheduler"),
	}
}

// Start 阻塞运行直到 ctx 取消或 Stop，返回时本轮批次已经结束；Stop 之后可以再次 Start
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.started && s.stopCh == stopCh {
			s.started = false
		}
		s.mu.Unlock()
	}()

	s.logger.Info("scheduler started", "frequency", s.frequency.String(), "run_on_startup", s.runOnStartup)

	if s.runOnStartup {
		s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "reason", "context_cancelled")
			return
		case <-stopCh:
			s.logger.Info("scheduler stopped", "reason", "stop_signal")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop 通知调度循环退出，不等待正在执行的批次
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		close(s.stopCh)
		s.started = false
	}
}

// RunOnce 执行一轮；上一轮仍在运行时返回 nil, false
func (s *Scheduler) RunOnce(ctx context.Context) (*BatchResult, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous run still in progress, skipping")
		return nil, false
	}
	defer s.running.Store(false)

	res, err := s.auditor.AnalyzeAndFlagMemories(ctx)
	if err != nil {
		s.logger.WithError(err).Error("batch aborted")
	}

	if n, err := s.queue.CleanupProcessed(ctx, s.retentionDays); err != nil {
		s.logger.WithError(err).Warn("audit queue retention cleanup failed")
	} else if n > 0 {
		s.logger.Info("removed resolved audit records", "count", n, "retention_days", s.retentionDays)
	}
	return res, true
}

// Running 当前是否有一轮在执行
func (s *Scheduler) Running() bool {
	return s.running.Load()
}
