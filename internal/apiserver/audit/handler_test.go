package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-auditor/internal/auditor"
	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/queue"
	"kb-auditor/internal/shared/storage"
)

type testEnv struct {
	store  *storage.MemoryStore
	queue  *queue.MemoryQueue
	router http.Handler
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryStore()
	q := queue.NewMemoryQueue()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"mem_1", "mem_2"} {
		m := &model.Memory{ID: id, UserQuery: "restart " + id, AgentResponse: "answer", CreatedAt: base}
		require.NoError(t, s.AddConversation(ctx, m))
		_, err := s.AtomicCheckAndFlag(ctx, id, "doubtful", 0.7)
		require.NoError(t, err)
		rec := m.ToAuditRecord(base.Add(time.Duration(i) * time.Minute))
		rec.IAAuditReason, rec.IAAuditConfidence = "doubtful", 0.7
		_, err = q.AddRecord(ctx, rec)
		require.NoError(t, err)
	}

	reg := prometheus.NewRegistry()
	r := auditor.NewReviewer(s, q, auditor.NewMetrics(reg), nil)
	h := NewHandler(r, q, reg, NewMetrics(reg), nil)
	return &testEnv{store: s, queue: q, router: h.Router()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestListFlags(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodGet, "/api/v1/audit/flags", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Records []*model.AuditRecord `json:"records"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "mem_2", resp.Records[0].MemoryID)

	rec = env.do(t, http.MethodGet, "/api/v1/audit/flags?status=all&query=MEM_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	rec = env.do(t, http.MethodGet, "/api/v1/audit/flags?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReview(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/v1/audit/review", `{"memory_id":"mem_1","action":"approve"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"memory_id":"mem_1","status":"approved"}`, rec.Body.String())
	m, err := env.store.GetMemory(ctx, "mem_1")
	require.NoError(t, err)
	assert.True(t, m.IsApproved)

	rec = env.do(t, http.MethodPost, "/api/v1/audit/review", `{"memory_id":"mem_2","action":"reject"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = env.store.GetMemory(ctx, "mem_2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rec = env.do(t, http.MethodPost, "/api/v1/audit/review", `{"memory_id":"mem_2","action":"approve"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/audit/review", `{"memory_id":"mem_9","action":"reject"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReview_BadRequests(t *testing.T) {
	env := setup(t)

	for _, body := range []string{
		`not json`,
		`{"action":"approve"}`,
		`{"memory_id":"mem_1","action":"delete"}`,
	} {
		rec := env.do(t, http.MethodPost, "/api/v1/audit/review", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/audit/review", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReview_StoreFailureIs500(t *testing.T) {
	env := setup(t)
	env.store.ActionErr = assert.AnError

	rec := env.do(t, http.MethodPost, "/api/v1/audit/review", `{"memory_id":"mem_1","action":"reject"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQueueMetricsAndHealth(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodGet, "/api/v1/audit/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":2,"pending":2,"approved":0,"rejected":0}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.queue.ReadErr = assert.AnError
	rec = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/audit/metrics", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	env := setup(t)
	env.do(t, http.MethodGet, "/api/v1/audit/flags", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "kb_auditor_http_requests_total")
	assert.Contains(t, body, `path="GET /api/v1/audit/flags"`)
	assert.Contains(t, body, "kb_auditor_audit_queue_pending")
}
