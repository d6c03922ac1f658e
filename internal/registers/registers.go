package registers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vpikus/asus-router-prometheus-exporter/internal/cache"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/metrics"
)

// InitPromRegistry 初始化Prometheus指标注册器：
// 快照采集器 + 导出器自身指标工厂；按需挂进程指标，不挂Go指标。
func InitPromRegistry(snapshots *cache.Cache, enableProcess bool) (*prometheus.Registry, *metrics.MetricFactory) {
	promRegistry := prometheus.NewRegistry()

	if enableProcess {
		promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	promRegistry.MustRegister(NewSnapshotCollector(snapshots))

	factory := metrics.NewMetricFactory(metrics.NewPromRegistry(promRegistry))
	return promRegistry, factory
}
