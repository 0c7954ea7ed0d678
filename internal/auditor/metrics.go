package auditor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kb_auditor"

// Metrics 审核器指标
type Metrics struct {
	Analyzed      prometheus.Counter
	Skipped       *prometheus.CounterVec
	Actions       *prometheus.CounterVec
	VerdictErrors *prometheus.CounterVec
	LockFailures  prometheus.Counter
	QueueErrors   prometheus.Counter

	BatchDuration prometheus.Histogram
	PendingLength prometheus.Gauge

	ReviewsTotal *prometheus.CounterVec
}

// NewMetrics 创建指标并注册到 reg；reg 为 nil 时使用独立注册表（测试用）
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Analyzed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_analyzed_total",
			Help:      "Memories sent to the verdict engine",
		}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_skipped_total",
			Help:      "Memories skipped before analysis by reason",
		}, []string{"reason"}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Store-side actions applied by the auditor",
		}, []string{"action"}),
		VerdictErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdict_errors_total",
			Help:      "Verdict calls that produced no usable verdict",
		}, []string{"kind"}),
		LockFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_failures_total",
			Help:      "Per-memory lock acquisitions that failed",
		}),
		QueueErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_errors_total",
			Help:      "Flagged memories that could not be written to the audit queue",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Batch analysis duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		PendingLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_queue_pending",
			Help:      "Audit records waiting for human review",
		}),
		ReviewsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Human review actions by action and result",
		}, []string{"action", "result"}),
	}
}
