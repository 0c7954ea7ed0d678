package cached

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/storage"
)

// countingStore 统计 IsAlreadyProcessed 的实际调用次数
type countingStore struct {
	*storage.MemoryStore
	processedCalls int
}

func (c *countingStore) IsAlreadyProcessed(ctx context.Context, id string) (bool, error) {
	c.processedCalls++
	return c.MemoryStore.IsAlreadyProcessed(ctx, id)
}

func TestStore_CachesPositiveResultsOnly(t *testing.T) {
	inner := &countingStore{MemoryStore: storage.NewMemoryStore()}
	ctx := context.Background()
	require.NoError(t, inner.AddConversation(ctx, &model.Memory{ID: "m1", UserQuery: "q", AgentResponse: "a"}))

	s, err := New(inner, 100)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		processed, err := s.IsAlreadyProcessed(ctx, "m1")
		require.NoError(t, err)
		assert.False(t, processed)
	}
	assert.Equal(t, 3, inner.processedCalls, "negative results must not be cached")

	ok, err := s.AtomicCheckAndFlag(ctx, "m1", "r", 0.7)
	require.NoError(t, err)
	assert.True(t, ok)
	s.Wait()

	processed, err := s.IsAlreadyProcessed(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 3, inner.processedCalls)
}

func TestStore_DeleteMarksProcessed(t *testing.T) {
	inner := &countingStore{MemoryStore: storage.NewMemoryStore()}
	ctx := context.Background()
	require.NoError(t, inner.AddConversation(ctx, &model.Memory{ID: "m1", UserQuery: "q", AgentResponse: "a"}))

	s, err := New(inner, 0)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.AtomicCheckAndDelete(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	s.Wait()

	processed, err := s.IsAlreadyProcessed(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Zero(t, inner.processedCalls)
}
