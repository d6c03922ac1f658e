// Package cache 持有最近一次成功提取的指标快照。
// 发布是整体原子替换（swap，不做增量合并），任意数量并发读者无锁读取，
// 读操作永远不触发设备IO。
package cache

import (
	"sync/atomic"
	"time"
)

// ValueKind 指标值类型
type ValueKind int

const (
	KindGauge ValueKind = iota
	KindCounter
)

// MetricSample 单条指标样本，创建后不可变
type MetricSample struct {
	Name   string
	Help   string
	Labels map[string]string
	Value  float64
	Kind   ValueKind
}

// Snapshot 一次刷新周期的完整产出。失败周期保留上一次的样本集，
// 只翻转 Success 并累计 ConsecutiveFailures。
type Snapshot struct {
	Samples             []MetricSample
	CapturedAt          time.Time // 最近一次“成功”采集的时间
	PublishedAt         time.Time // 本快照发布时间（失败周期也会前进）
	Success             bool
	Err                 string
	ConsecutiveFailures int
}

// Age 最近成功数据的陈旧度
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s.CapturedAt.IsZero() {
		return 0
	}
	return now.Sub(s.CapturedAt)
}

// HealthState 导出器健康状态（/health 端点语义）
type HealthState int

const (
	// Healthy 最近一次刷新成功且数据未过期
	Healthy HealthState = iota
	// Degraded 最近刷新失败或数据超过陈旧度上限，但仍在服务最后一份好数据
	Degraded
	// Critical 连续失败达到阈值，或从未成功过
	Critical
)

func (h HealthState) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Critical:
		return "critical"
	}
	return "unknown"
}

// Cache 快照缓存。Read 为无锁常数时间操作，Publish 原子替换。
type Cache struct {
	current atomic.Pointer[Snapshot]
}

func New() *Cache {
	return &Cache{}
}

// Read 返回当前快照；尚无任何发布时返回 nil。
// 读者看到的要么是旧快照要么是新快照，绝不会是两者的混合。
func (c *Cache) Read() *Snapshot {
	return c.current.Load()
}

// Publish 整体替换当前快照
func (c *Cache) Publish(s *Snapshot) {
	c.current.Store(s)
}

// Health 按陈旧度上限与失败阈值评估健康状态
func (c *Cache) Health(now time.Time, stalenessCeiling time.Duration, failureThreshold int) HealthState {
	s := c.Read()
	if s == nil || s.CapturedAt.IsZero() {
		// 启动后尚未有过成功刷新
		return Critical
	}
	if s.ConsecutiveFailures >= failureThreshold {
		return Critical
	}
	if !s.Success || s.Age(now) > stalenessCeiling {
		return Degraded
	}
	return Healthy
}
