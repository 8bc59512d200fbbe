// Package metrics provides the Prometheus collector for the moderation service.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/modguard/llm"
	"github.com/BaSui01/modguard/moderation"
	"github.com/BaSui01/modguard/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 审核指标
	moderationRunsTotal    *prometheus.CounterVec
	moderationRunDuration  *prometheus.HistogramVec
	moderationFallbacks    *prometheus.CounterVec
	moderationExplanations prometheus.Counter
	stageDuration          *prometheus.HistogramVec
	stageErrors            *prometheus.CounterVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 结果落库指标
	sinkWritesTotal *prometheus.CounterVec

	// 数据库连接池
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 在 reg 上注册全部指标；reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.httpRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	c.httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
	c.httpResponseSize = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	c.moderationRunsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "runs_total",
		Help:      "Moderation runs by input kind, label and fail-safe flag",
	}, []string{"kind", "label", "fail_safe"})
	c.moderationRunDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "run_duration_seconds",
		Help:      "End-to-end moderation run duration",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
	}, []string{"kind"})
	c.moderationFallbacks = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "stage_fallbacks_total",
		Help:      "Stages that degraded to their default value",
	}, []string{"stage"})
	c.moderationExplanations = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "explanations_total",
		Help:      "Runs that reached the explanation stage",
	})
	c.stageDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "node_duration_seconds",
		Help:      "Graph node execution duration",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"graph", "node"})
	c.stageErrors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "node_errors_total",
		Help:      "Graph node executions that returned an error",
	}, []string{"graph", "node"})

	c.llmRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Total number of LLM requests",
	}, []string{"provider", "model", "status"})
	c.llmRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_duration_seconds",
		Help:      "LLM request duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider", "model"})
	c.llmTokensUsed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tokens_used_total",
		Help:      "Total number of tokens used",
	}, []string{"provider", "model", "type"}) // type: prompt, completion

	c.sinkWritesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submission_log_writes_total",
		Help:      "Submission log writes by status",
	}, []string{"status"})

	c.dbConnectionsOpen = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_open",
		Help:      "Number of open database connections",
	}, []string{"database"})
	c.dbConnectionsIdle = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_idle",
		Help:      "Number of idle database connections",
	}, []string{"database"})

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🛡️ 审核流水线
// =============================================================================

// RunFinished implements moderation.RunObserver.
func (c *Collector) RunFinished(_ context.Context, ev moderation.RunEvent) {
	kind := string(ev.Kind)
	if kind == "" {
		kind = "unknown"
	}
	c.moderationRunsTotal.WithLabelValues(kind, string(ev.Label), strconv.FormatBool(ev.FailSafe)).Inc()
	c.moderationRunDuration.WithLabelValues(kind).Observe(ev.Duration.Seconds())
	for _, fb := range ev.Fallbacks {
		c.moderationFallbacks.WithLabelValues(fb.Stage).Inc()
	}
	if ev.Explained {
		c.moderationExplanations.Inc()
	}
}

// NodeFinished implements workflow.Observer.
func (c *Collector) NodeFinished(_ context.Context, ev workflow.NodeEvent) {
	c.stageDuration.WithLabelValues(ev.Graph, ev.Node).Observe(ev.Duration.Seconds())
	if ev.Err != nil {
		c.stageErrors.WithLabelValues(ev.Graph, ev.Node).Inc()
	}
}

// =============================================================================
// 🤖 LLM
// =============================================================================

// RecordLLMCall 记录一次模型调用，签名匹配 llm.WithCallObserver。
func (c *Collector) RecordLLMCall(rec llm.CallRecord) {
	c.llmRequestsTotal.WithLabelValues(rec.Provider, rec.Model, rec.Status).Inc()
	c.llmRequestDuration.WithLabelValues(rec.Provider, rec.Model).Observe(rec.Duration.Seconds())
	if rec.Usage.PromptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(rec.Provider, rec.Model, "prompt").Add(float64(rec.Usage.PromptTokens))
	}
	if rec.Usage.CompletionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(rec.Provider, rec.Model, "completion").Add(float64(rec.Usage.CompletionTokens))
	}
}

// =============================================================================
// 🗄️ 存储
// =============================================================================

// RecordSinkWrite 记录提交日志写入结果
func (c *Collector) RecordSinkWrite(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.sinkWritesTotal.WithLabelValues(status).Inc()
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// statusClass 将 HTTP 状态码归类为 2xx/3xx/4xx/5xx
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
