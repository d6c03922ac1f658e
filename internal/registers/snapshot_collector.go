package registers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vpikus/asus-router-prometheus-exporter/internal/cache"
)

// SnapshotCollector 把缓存中的当前快照渲染为 Prometheus 指标。
// 每次抓取只读缓存（常数时间），不触发任何设备IO。
// 样本集随设备能力变化，因此实现为 unchecked collector（Describe 不产出desc）。
type SnapshotCollector struct {
	snapshots *cache.Cache

	upDesc      *prometheus.Desc
	ageDesc     *prometheus.Desc
	successDesc *prometheus.Desc
	failsDesc   *prometheus.Desc
}

// NewSnapshotCollector 创建快照采集器
func NewSnapshotCollector(snapshots *cache.Cache) *SnapshotCollector {
	return &SnapshotCollector{
		snapshots: snapshots,
		upDesc: prometheus.NewDesc("asus_router_up",
			"Whether the last refresh cycle against the router succeeded (0/1)", nil, nil),
		ageDesc: prometheus.NewDesc("asus_router_snapshot_age_seconds",
			"Age of the most recent successfully captured snapshot", nil, nil),
		successDesc: prometheus.NewDesc("asus_router_last_refresh_success_timestamp_seconds",
			"Unix timestamp of the last successful refresh", nil, nil),
		failsDesc: prometheus.NewDesc("asus_router_consecutive_refresh_failures",
			"Number of consecutive failed refresh cycles", nil, nil),
	}
}

// Describe unchecked collector：不预告任何desc，样本集由快照决定
func (c *SnapshotCollector) Describe(_ chan<- *prometheus.Desc) {}

// Collect 渲染当前快照。读者看到的始终是某一个完整快照，绝无新旧混合。
func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.snapshots.Read()
	if snap == nil {
		// 尚未有任何刷新完成
		ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 0)
		return
	}

	up := 0.0
	if snap.Success {
		up = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, up)
	ch <- prometheus.MustNewConstMetric(c.failsDesc, prometheus.GaugeValue, float64(snap.ConsecutiveFailures))
	if !snap.CapturedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.ageDesc, prometheus.GaugeValue, snap.Age(time.Now()).Seconds())
		ch <- prometheus.MustNewConstMetric(c.successDesc, prometheus.GaugeValue, float64(snap.CapturedAt.Unix()))
	}

	for _, sample := range snap.Samples {
		valueType := prometheus.GaugeValue
		if sample.Kind == cache.KindCounter {
			valueType = prometheus.CounterValue
		}
		desc := prometheus.NewDesc(sample.Name, sample.Help, nil, sample.Labels)
		ch <- prometheus.MustNewConstMetric(desc, valueType, sample.Value)
	}
}
