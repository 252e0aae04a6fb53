package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelhub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novelhub_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务指标
	TasksUploadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novelhub_tasks_uploaded_total",
			Help: "Total number of uploaded tasks",
		},
	)

	TasksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelhub_tasks_completed_total",
			Help: "Total number of tasks reaching a terminal status",
		},
		[]string{"status"},
	)

	TaskProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "novelhub_task_processing_duration_seconds",
			Help:    "Task processing duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	TasksProcessing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "novelhub_tasks_processing",
			Help: "Number of tasks currently processing",
		},
	)

	// WebSocket 指标
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "novelhub_ws_connections",
			Help: "Number of open WebSocket connections",
		},
	)

	WSSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "novelhub_ws_subscriptions",
			Help: "Number of active task subscriptions",
		},
	)

	WSEventsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelhub_ws_events_sent_total",
			Help: "Total number of task_update events fanned out",
		},
		[]string{"status"},
	)

	// 错误指标
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelhub_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "type"},
	)
)

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path string, status int, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTaskUploaded 记录任务上传
func RecordTaskUploaded() {
	TasksUploadedTotal.Inc()
}

// RecordTaskCompleted 记录任务终态
func RecordTaskCompleted(status string, duration float64) {
	TasksCompletedTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		TaskProcessingDuration.Observe(duration)
	}
}

// UpdateTasksProcessing 更新处理中任务数
func UpdateTasksProcessing(n int) {
	TasksProcessing.Set(float64(n))
}

// UpdateWSConnections 更新 WebSocket 连接数
func UpdateWSConnections(n int) {
	WSConnections.Set(float64(n))
}

// UpdateWSSubscriptions 更新订阅总数
func UpdateWSSubscriptions(n int) {
	WSSubscriptions.Set(float64(n))
}

// RecordWSEventSent 记录一次事件扇出
func RecordWSEventSent(status string) {
	WSEventsSentTotal.WithLabelValues(status).Inc()
}

// RecordError 记录错误
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// statusClass 将 HTTP 状态码转为类别
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
