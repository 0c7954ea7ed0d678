package auditor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kb-auditor/internal/shared/lock"
	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/queue"
	"kb-auditor/internal/shared/storage"
	"kb-auditor/internal/verdict"
)

// fakeEvaluator 按用户问题返回预设结论
type fakeEvaluator struct {
	mu      sync.Mutex
	results map[string]*verdict.Result
	err     error
	calls   int
}

func (f *fakeEvaluator) Evaluate(_ context.Context, query, _ string) (*verdict.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[query]; ok {
		cp := *r
		return &cp, nil
	}
	return &verdict.Result{IsIncorrect: false, Confidence: 0.1, Reason: "looks fine"}, nil
}

func (f *fakeEvaluator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingEvaluator 阻塞到 ctx 取消
type blockingEvaluator struct {
	entered chan struct{}
	once    sync.Once
}

func (b *blockingEvaluator) Evaluate(ctx context.Context, _, _ string) (*verdict.Result, error) {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return nil, ctx.Err()
}

// countingStore 统计原子操作返回 true 的次数
type countingStore struct {
	storage.KnowledgeStore
	flagWins   atomic.Int32
	deleteWins atomic.Int32
}

func (c *countingStore) AtomicCheckAndFlag(ctx context.Context, id, reason string, confidence float64) (bool, error) {
	ok, err := c.KnowledgeStore.AtomicCheckAndFlag(ctx, id, reason, confidence)
	if ok {
		c.flagWins.Add(1)
	}
	return ok, err
}

func (c *countingStore) AtomicCheckAndDelete(ctx context.Context, id string) (bool, error) {
	ok, err := c.KnowledgeStore.AtomicCheckAndDelete(ctx, id)
	if ok {
		c.deleteWins.Add(1)
	}
	return ok, err
}

// grantAllLocker 总是授予锁，只依赖存储层原子操作
type grantAllLocker struct{}

func (grantAllLocker) Acquire(_ context.Context, key string, timeout time.Duration) (*lock.Handle, error) {
	return lock.NewHandle(key, "t", time.Now(), timeout, nil), nil
}
func (grantAllLocker) ForceRelease(context.Context, string) (bool, error) { return false, nil }
func (grantAllLocker) CleanupExpired(context.Context, time.Duration) (int, error) { return 0, nil }
func (grantAllLocker) IsLocked(context.Context, string) (bool, error) { return false, nil }
func (grantAllLocker) Close() error { return nil }

func rating(v float64) *float64 { return &v }

func seed(t *testing.T, s *storage.MemoryStore, mems ...*model.Memory) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, m := range mems {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		}
		require.NoError(t, s.AddConversation(context.Background(), m))
	}
}

type fixture struct {
	store   *storage.MemoryStore
	queue   *queue.MemoryQueue
	locker  *lock.MemoryLocker
	eval    *fakeEvaluator
	auditor *Auditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  storage.NewMemoryStore(),
		queue:  queue.NewMemoryQueue(),
		locker: lock.NewMemoryLocker(),
		eval:   &fakeEvaluator{results: map[string]*verdict.Result{}},
	}
	cfg := DefaultConfig()
	cfg.LockTimeout = 2 * time.Second
	a, err := New(f.store, f.queue, f.locker, f.eval, cfg)
	require.NoError(t, err)
	f.auditor = a
	return f
}
