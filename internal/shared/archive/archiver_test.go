package archive

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-auditor/internal/config"
	"kb-auditor/internal/shared/model"
)

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotArchived, key)
	}
	return data, nil
}

func TestArchiver_ArchiveAndLoad(t *testing.T) {
	objs := newMemObjects()
	a := NewArchiver(objs, "")
	reviewed := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	rec := &model.AuditRecord{
		MemoryID:          "mem_1",
		UserQuery:         "q",
		AgentResponse:     "a",
		IAAuditReason:     "r",
		IAAuditConfidence: 0.7,
		Status:            model.AuditStatusRejected,
		ReviewedAt:        &reviewed,
	}

	require.NoError(t, a.Archive(context.Background(), rec))
	assert.Equal(t, "audit/rejected/mem_1.json", a.Key(rec))
	assert.Equal(t, "application/json", objs.types["audit/rejected/mem_1.json"])

	got, err := a.Load(context.Background(), model.AuditStatusRejected, "mem_1")
	require.NoError(t, err)
	assert.Equal(t, rec.MemoryID, got.MemoryID)
	assert.Equal(t, rec.Status, got.Status)
	require.NotNil(t, got.ReviewedAt)
	assert.True(t, reviewed.Equal(*got.ReviewedAt))

	_, err = a.Load(context.Background(), model.AuditStatusApproved, "mem_1")
	assert.ErrorIs(t, err, ErrNotArchived)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.MinIOConfig{})
	assert.Error(t, err)

	_, err = NewClient(config.MinIOConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	c, err := NewClient(config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "audit-archive", c.Bucket())
}
