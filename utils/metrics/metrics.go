// 配时计算的运行指标，运行结束后可写出为Prometheus文本文件
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BucketsTotal 按算法与结果统计的时间片数
	BucketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_timing_buckets_total",
		Help: "Number of optimized time buckets by algorithm and result",
	}, []string{"algorithm", "result"})

	// SearchNodes 单次阶段搜索扩展的节点数
	SearchNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signal_timing_search_nodes",
		Help:    "Number of nodes expanded by one stage duration search",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	// SearchTruncated 因节点数或时限提前结束的搜索次数
	SearchTruncated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_timing_search_truncated_total",
		Help: "Number of stage duration searches stopped by a budget",
	}, []string{"reason"})

	// CycleEvaluations 外层周期搜索评估的周期数
	CycleEvaluations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signal_timing_cycle_evaluations",
		Help:    "Number of distinct cycles evaluated per bucket",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	// BucketDuration 单个时间片的计算耗时
	BucketDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signal_timing_bucket_duration_seconds",
		Help:    "Time spent optimizing one bucket",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"algorithm"})

	// PlanCycle 时间片方案的周期
	PlanCycle = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signal_timing_plan_cycle_seconds",
		Help:    "Cycle length of optimized bucket plans",
		Buckets: prometheus.LinearBuckets(40, 20, 10),
	}, []string{"algorithm"})

	// AmbiguousOverlaps 无法唯一确定归属主相位的搭接相位数
	AmbiguousOverlaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_timing_ambiguous_overlaps_total",
		Help: "Number of overlap phases attached by the earliest-candidate fallback",
	})
)

// WriteTextfile 将默认注册表中的全部指标写出为文本格式
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
