package model

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rating(v float64) *float64 { return &v }

func TestMemory_HasContent(t *testing.T) {
	assert.True(t, (&Memory{UserQuery: "q", AgentResponse: "a"}).HasContent())
	assert.False(t, (&Memory{UserQuery: "  ", AgentResponse: "a"}).HasContent())
	assert.False(t, (&Memory{UserQuery: "q"}).HasContent())
}

func TestMemory_RatedAtLeast(t *testing.T) {
	assert.False(t, (&Memory{}).RatedAtLeast(3))
	assert.False(t, (&Memory{Rating: rating(2.9)}).RatedAtLeast(3))
	assert.True(t, (&Memory{Rating: rating(3)}).RatedAtLeast(3))
	assert.True(t, (&Memory{Rating: rating(5)}).RatedAtLeast(3))
}

func TestMemory_ToAuditRecord(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := &Memory{ID: "mem_1", UserQuery: "q", AgentResponse: "a", IAAuditReason: "wrong", IAAuditConfidence: 0.7}

	rec := m.ToAuditRecord(now)
	assert.Equal(t, "mem_1", rec.MemoryID)
	assert.Equal(t, AuditStatusPending, rec.Status)
	assert.Equal(t, "wrong", rec.IAAuditReason)
	assert.Equal(t, 0.7, rec.IAAuditConfidence)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Nil(t, rec.ReviewedAt)
}

func TestMemory_ToAuditRecord_TruncatesLongText(t *testing.T) {
	m := &Memory{
		ID:                "mem_long",
		UserQuery:         strings.Repeat("问", MaxUserQueryLen+5),
		AgentResponse:     strings.Repeat("a", 60000),
		IAAuditReason:     strings.Repeat("理", 1200),
		IAAuditConfidence: 0.7,
	}

	rec := m.ToAuditRecord(time.Now())
	require.NoError(t, rec.Validate())
	assert.Equal(t, MaxUserQueryLen, utf8.RuneCountInString(rec.UserQuery))
	assert.True(t, utf8.ValidString(rec.UserQuery))
	assert.Len(t, rec.AgentResponse, MaxAgentResponseLen)
	assert.Equal(t, MaxAuditReasonLen, utf8.RuneCountInString(rec.IAAuditReason))

	short := &Memory{ID: "mem_1", UserQuery: "q", AgentResponse: "a", IAAuditReason: "r"}
	assert.Equal(t, "r", short.ToAuditRecord(time.Now()).IAAuditReason)
}

func TestAuditStatus(t *testing.T) {
	assert.True(t, AuditStatusPending.IsValid())
	assert.False(t, AuditStatus("all").IsValid())
	assert.False(t, AuditStatusPending.IsResolved())
	assert.True(t, AuditStatusApproved.IsResolved())
	assert.True(t, AuditStatusRejected.IsResolved())
}

func TestAuditRecord_Validate(t *testing.T) {
	valid := func() *AuditRecord {
		return &AuditRecord{MemoryID: "mem_1", UserQuery: "q", AgentResponse: "a", IAAuditReason: "r", IAAuditConfidence: 0.7}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(r *AuditRecord)
	}{
		{"empty id", func(r *AuditRecord) { r.MemoryID = "" }},
		{"long id", func(r *AuditRecord) { r.MemoryID = strings.Repeat("x", MaxMemoryIDLen+1) }},
		{"nul id", func(r *AuditRecord) { r.MemoryID = "a\x00b" }},
		{"long query", func(r *AuditRecord) { r.UserQuery = strings.Repeat("q", MaxUserQueryLen+1) }},
		{"long response", func(r *AuditRecord) { r.AgentResponse = strings.Repeat("a", MaxAgentResponseLen+1) }},
		{"long reason", func(r *AuditRecord) { r.IAAuditReason = strings.Repeat("r", MaxAuditReasonLen+1) }},
		{"negative confidence", func(r *AuditRecord) { r.IAAuditConfidence = -0.1 }},
		{"confidence above one", func(r *AuditRecord) { r.IAAuditConfidence = 1.01 }},
		{"bad status", func(r *AuditRecord) { r.Status = "archived" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRecord))
		})
	}
}

func TestAuditRecord_Matches(t *testing.T) {
	r := &AuditRecord{UserQuery: "How do I reset Redis?", AgentResponse: "Use FLUSHALL"}
	assert.True(t, r.Matches(""))
	assert.True(t, r.Matches("redis"))
	assert.True(t, r.Matches("flushall"))
	assert.False(t, r.Matches("postgres"))
}

func TestAuditMetrics_Add(t *testing.T) {
	var m AuditMetrics
	m.Add(AuditStatusPending)
	m.Add(AuditStatusPending)
	m.Add(AuditStatusApproved)
	m.Add(AuditStatusRejected)
	assert.Equal(t, AuditMetrics{Total: 4, Pending: 2, Approved: 1, Rejected: 1}, m)
}
