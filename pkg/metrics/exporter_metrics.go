package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// -------------------------- 导出器自身监控指标 --------------------------

// NewScrapeDurationSeconds 单次设备刷新周期耗时分布
func (m *MetricFactory) NewScrapeDurationSeconds() prometheus.Histogram {
	return promauto.With(m.reg).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "asus_router_scrape_duration_seconds",
			Help:    "Time spent scraping router metrics",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 0.01s ~ 5.12s
		},
	)
}

// NewScrapeErrorsTotal 刷新周期错误总数
func (m *MetricFactory) NewScrapeErrorsTotal() prometheus.Counter {
	return promauto.With(m.reg).NewCounter(
		prometheus.CounterOpts{
			Name: "asus_router_scrape_errors_total",
			Help: "Total number of scrape errors",
		},
	)
}

// NewLoginAttemptsTotal 设备登录次数（含重登），按结果区分
func (m *MetricFactory) NewLoginAttemptsTotal() *prometheus.CounterVec {
	return promauto.With(m.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "asus_router_login_attempts_total",
			Help: "Total number of router login attempts",
		},
		[]string{"result"},
	)
}

// NewRefreshStateGauge 调度器状态机当前状态（one-hot）
func (m *MetricFactory) NewRefreshStateGauge() *prometheus.GaugeVec {
	return promauto.With(m.reg).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asus_router_refresh_state",
			Help: "Refresh scheduler state (one-hot)",
		},
		[]string{"state"},
	)
}
