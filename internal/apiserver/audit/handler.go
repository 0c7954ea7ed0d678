// Package audit 人工审核 HTTP 接口
//
// 路由：
//   - GET  /api/v1/audit/flags?status=&query=  列出审核记录
//   - POST /api/v1/audit/review                通过或驳回
//   - GET  /api/v1/audit/metrics               队列统计
//   - GET  /health                             健康检查
//   - GET  /metrics                            Prometheus 指标
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kb-auditor/internal/auditor"
	"kb-auditor/internal/shared/model"
	"kb-auditor/pkg/logging"
)

// Reviewer 处理器依赖的审核操作
type Reviewer interface {
	Approve(ctx context.Context, memoryID string) error
	Reject(ctx context.Context, memoryID string) error
	ListFlags(ctx context.Context, status, query string) ([]*model.AuditRecord, error)
	Metrics(ctx context.Context) (*model.AuditMetrics, error)
}

// HealthChecker 后端健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Handler 审核 HTTP 处理器
type Handler struct {
	reviewer Reviewer
	health   HealthChecker
	gatherer prometheus.Gatherer
	metrics  *Metrics
	logger   *logging.Logger
}

// NewHandler 创建处理器；gatherer 为 nil 时使用默认注册表
func NewHandler(r Reviewer, health HealthChecker, gatherer prometheus.Gatherer, metrics *Metrics, logger *logging.Logger) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{reviewer: r, health: health, gatherer: gatherer, metrics: metrics, logger: logger}
}

// RegisterRoutes 注册审核相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/audit/flags", h.ListFlags)
	mux.HandleFunc("POST /api/v1/audit/review", h.Review)
	mux.HandleFunc("GET /api/v1/audit/metrics", h.QueueMetrics)

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

// Router 返回带请求日志与指标的路由
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.metrics.Middleware(h.logger, mux)
}

// ============================================================================
// 请求结构体
// ============================================================================

type reviewRequest struct {
	MemoryID string `json:"memory_id"`
	Action   string `json:"action"`
}

// ListFlags 列出审核记录
// GET /api/v1/audit/flags?status=pending&query=xxx
func (h *Handler) ListFlags(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(model.AuditStatusPending)
	}
	query := r.URL.Query().Get("query")

	records, err := h.reviewer.ListFlags(r.Context(), status, query)
	if errors.Is(err, auditor.ErrInvalidStatus) {
		writeError(w, http.StatusBadRequest, "status must be one of pending, approved, rejected, all")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to list audit records")
		writeError(w, http.StatusInternalServerError, "failed to list audit records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// Review 通过或驳回
// POST /api/v1/audit/review
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.MemoryID = strings.TrimSpace(req.MemoryID)
	if req.MemoryID == "" {
		writeError(w, http.StatusBadRequest, "memory_id is required")
		return
	}

	var (
		err    error
		status model.AuditStatus
	)
	switch req.Action {
	case "approve":
		status = model.AuditStatusApproved
		err = h.reviewer.Approve(r.Context(), req.MemoryID)
	case "reject":
		status = model.AuditStatusRejected
		err = h.reviewer.Reject(r.Context(), req.MemoryID)
	default:
		writeError(w, http.StatusBadRequest, "action must be 'approve' or 'reject'")
		return
	}

	if errors.Is(err, auditor.ErrNotFound) {
		writeError(w, http.StatusNotFound, "audit record not found or already reviewed")
		return
	}
	if err != nil {
		h.logger.WithMemoryID(req.MemoryID).WithError(err).Error("review failed", "action", req.Action)
		writeError(w, http.StatusInternalServerError, "review failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"memory_id": req.MemoryID,
		"status":    string(status),
	})
}

// QueueMetrics 队列统计
// GET /api/v1/audit/metrics
func (h *Handler) QueueMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.reviewer.Metrics(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to read audit metrics")
		writeError(w, http.StatusInternalServerError, "failed to read audit metrics")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Health 健康检查
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil && !h.health.HealthCheck(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
