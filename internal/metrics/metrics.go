// Package metrics Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nni_keeper"

var (
	// WatchersActive 正在轮询的 watcher 数
	WatchersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "watchers_active",
		Help:      "Number of watchers currently polling",
	})

	// WatchersFinished 按结束状态统计
	WatchersFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watchers_finished_total",
		Help:      "Watchers that left the polling loop, by final state",
	}, []string{"state"})

	// Polls 按解析出的状态统计轮询次数
	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "polls_total",
		Help:      "Orchestrator polls, by observed status",
	}, []string{"status"})

	StagingRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "staging_refreshes_total",
		Help:      "Staging refreshes, by result",
	}, []string{"result"})

	Promotions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "promotions_total",
		Help:      "Promotion attempts, by outcome",
	}, []string{"outcome"})

	PromotionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "promotion_duration_seconds",
		Help:      "Time spent promoting a finished run",
		Buckets:   prometheus.DefBuckets,
	})

	StorageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_retries_total",
		Help:      "Retried storage operations, by operation",
	}, []string{"op"})
)
