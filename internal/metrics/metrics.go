package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hros_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hros_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// APIRequestSize API 请求体大小（字节）
	APIRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hros_api_request_size_bytes",
			Help:    "API 请求体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	// APIResponseSize API 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hros_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)
)

// 审批引擎指标
var (
	// ApprovalPendingGauge 各业务类型当前在途的审批请求数
	ApprovalPendingGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hros_approval_pending",
			Help: "在途审批请求数",
		},
		[]string{"page"},
	)

	// ApprovalDecisionsTotal 审批终态决策总数
	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hros_approval_decisions_total",
			Help: "审批终态决策总数",
		},
		[]string{"page", "status", "decision_type"}, // decision_type: manual / auto / system
	)

	// ApprovalStepAdvancesTotal 步骤推进总数
	ApprovalStepAdvancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hros_approval_step_advances_total",
			Help: "审批步骤推进总数",
		},
		[]string{"page"},
	)

	// ApprovalEscalationsTotal 超时升级总数
	ApprovalEscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hros_approval_escalations_total",
			Help: "审批超时升级总数",
		},
		[]string{"page"},
	)

	// ApprovalAutoApprovalsTotal 超时自动批准总数
	ApprovalAutoApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hros_approval_auto_approvals_total",
			Help: "审批超时自动批准总数",
		},
		[]string{"page"},
	)

	// SchedulerScanDuration 调度器单轮扫描耗时（秒）
	SchedulerScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hros_approval_scheduler_scan_duration_seconds",
			Help:    "调度器单轮扫描耗时分布",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	// NotificationsTotal 审批通知投递总数
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hros_approval_notifications_total",
			Help: "审批通知投递总数",
		},
		[]string{"channel", "status"}, // status: delivered / failed
	)
)
