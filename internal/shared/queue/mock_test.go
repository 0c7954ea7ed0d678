package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-auditor/internal/shared/model"
)

func TestNewKeys(t *testing.T) {
	k := NewKeys("")
	assert.Equal(t, "resync:audit_queue", k.Queue)
	assert.Equal(t, "resync:audit_status", k.Status)
	assert.Equal(t, "resync:audit_data", k.Data)

	assert.Equal(t, "kb:audit_data", NewKeys("kb:").Data)
}

func TestMemoryQueue_Lifecycle(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	rec := &model.AuditRecord{MemoryID: "m1", UserQuery: "q", AgentResponse: "a", IAAuditConfidence: 0.7}

	ok, err := q.AddRecord(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = q.AddRecord(ctx, rec)
	assert.False(t, ok)

	ok, _ = q.ResolvePending(ctx, "m1", model.AuditStatusRejected)
	assert.True(t, ok)
	ok, _ = q.ResolvePending(ctx, "m1", model.AuditStatusApproved)
	assert.False(t, ok)

	got, err := q.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.AuditStatusRejected, got.Status)

	q.now = func() time.Time { return time.Now().AddDate(0, 0, 40) }
	n, err := q.CleanupProcessed(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, _ := q.GetAll(ctx)
	assert.Empty(t, all)
}
