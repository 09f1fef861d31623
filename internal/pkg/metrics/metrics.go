package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuotesTotal 按运费来源统计报价次数
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipping",
		Subsystem: "quote",
		Name:      "requests_total",
		Help:      "Shipping quotes served, by source and result.",
	}, []string{"source", "result"}) // source: rule/free_over_subtotal/fallback/none; result: ok/invalid/error

	QuoteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shipping",
		Subsystem: "quote",
		Name:      "duration_seconds",
		Help:      "End-to-end latency of a shipping quote.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	// NumericCoercionsTotal 非法数值被强制置 0 的次数
	NumericCoercionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipping",
		Subsystem: "data",
		Name:      "numeric_coercions_total",
		Help:      "Malformed numeric fields coerced to zero or unset.",
	}, []string{"field"})

	ConditionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shipping",
		Subsystem: "rule",
		Name:      "condition_errors_total",
		Help:      "Rule condition expressions that failed to compile or evaluate.",
	})

	SnapshotCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipping",
		Subsystem: "cache",
		Name:      "snapshot_lookups_total",
		Help:      "Snapshot cache lookups.",
	}, []string{"result"}) // hit / miss / error

	RuleStoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipping",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Rule store queries.",
	}, []string{"operation", "status"})

	RuleStoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shipping",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Rule store query latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipping",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Kafka events written by this service.",
	}, []string{"topic", "status"})

	// RulesChangedTotal 规则变更消息的处理结果
	RulesChangedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipping",
		Subsystem: "events",
		Name:      "rules_changed_total",
		Help:      "Rules-changed events consumed, by outcome.",
	}, []string{"status"}) // invalidated / skipped / error
)

// ObserveQuote 记录一次报价的耗时与结果。
func ObserveQuote(start time.Time, source, result string) {
	QuotesTotal.WithLabelValues(source, result).Inc()
	QuoteDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// ObserveStore 记录一次规则存储操作。
func ObserveStore(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RuleStoreOperationsTotal.WithLabelValues(operation, status).Inc()
	RuleStoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
