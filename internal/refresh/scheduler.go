// Package refresh 驱动 Client → Extract → Cache 管线的后台调度器。
// 刷新严格串行（同一时刻最多一个周期在途），抓取请求永远不会阻塞 /metrics 读者。
// 失败进入指数退避，成功后恢复基础间隔；调度器随进程生命周期运行，仅 ctx 取消可停。
package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vpikus/asus-router-prometheus-exporter/internal/cache"
	"github.com/vpikus/asus-router-prometheus-exporter/internal/client"
	"github.com/vpikus/asus-router-prometheus-exporter/internal/extract"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/config"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/logger"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/metrics"
)

// State 调度器状态机
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateExtracting
	StatePublishing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StatePublishing:
		return "publishing"
	case StateBackoff:
		return "backoff"
	}
	return "unknown"
}

var allStates = []State{StateIdle, StateFetching, StateExtracting, StatePublishing, StateBackoff}

// Fetcher 调度器对客户端的最小依赖（便于单测注入）
type Fetcher interface {
	Fetch(ctx context.Context, spec client.EndpointSpec) (*client.RawDeviceResponse, error)
}

// planEntry 采集计划条目。required 端点失败导致整个周期失败；
// 可选端点失败仅缩减本周期样本集（AuthError 除外，认证问题必须上浮驱动退避）。
type planEntry struct {
	spec     client.EndpointSpec
	required bool
}

var fetchPlan = []planEntry{
	{client.EndpointInfoNvram, true},
	{client.EndpointUptime, true},
	{client.EndpointCPUUsage, true},
	{client.EndpointMemoryUsage, true},
	{client.EndpointCoreTemp, false},
	{client.EndpointNetdev, false},
	{client.EndpointWlNbandInfo, false},
	{client.EndpointWanUnit, false},
	{client.EndpointUISupport, false},
	{client.EndpointUSBPath, false},
}

// Scheduler 后台刷新调度器
type Scheduler struct {
	fetcher Fetcher
	cache   *cache.Cache
	cfg     config.RefreshConfig
	clock   clockwork.Clock

	state    atomic.Int32
	inFlight atomic.Bool
	kick     chan struct{}

	// baseline 仅在调度器自己的 goroutine 里读写
	baseline extract.CPUBaseline
	expo     *backoff.ExponentialBackOff

	scrapeDuration prometheus.Histogram
	scrapeErrors   prometheus.Counter
	stateGauge     *prometheus.GaugeVec
}

// New 创建调度器。clock 传 clockwork.NewRealClock()；测试注入 FakeClock。
func New(fetcher Fetcher, c *cache.Cache, cfg config.RefreshConfig, clock clockwork.Clock, factory *metrics.MetricFactory) *Scheduler {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = cfg.BackoffBase
	expo.MaxInterval = cfg.BackoffCeiling
	expo.Multiplier = 2
	// 无抖动：退避序列保持 base, 2*base, 4*base ... 封顶
	expo.RandomizationFactor = 0

	s := &Scheduler{
		fetcher:        fetcher,
		cache:          c,
		cfg:            cfg,
		clock:          clock,
		kick:           make(chan struct{}, 1),
		expo:           expo,
		scrapeDuration: factory.NewScrapeDurationSeconds(),
		scrapeErrors:   factory.NewScrapeErrorsTotal(),
		stateGauge:     factory.NewRefreshStateGauge(),
	}
	s.setState(StateIdle)
	return s
}

// State 当前状态（观测用）
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	for _, candidate := range allStates {
		v := 0.0
		if candidate == st {
			v = 1.0
		}
		s.stateGauge.WithLabelValues(candidate.String()).Set(v)
	}
}

// TriggerNow 请求立即刷新（非阻塞）。周期在途时该请求被丢弃。
func (s *Scheduler) TriggerNow() {
	if s.inFlight.Load() {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run 阻塞运行调度循环直至 ctx 取消。启动即执行首次刷新，之后按
// 间隔/退避节奏循环。与教科书式 ticker 不同：每个周期结束后才重置
// 定时器，天然不存在周期内堆积的 tick。
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("refresh scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("backoff_base", s.cfg.BackoffBase),
		zap.Duration("backoff_ceiling", s.cfg.BackoffCeiling))

	delay := s.runCycle(ctx)
	for {
		timer := s.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("refresh scheduler stopped", zap.Error(ctx.Err()))
			return
		case <-timer.Chan():
		case <-s.kick:
			timer.Stop()
		}
		delay = s.runCycle(ctx)
		// 周期执行期间积累的立即刷新请求直接丢弃
		select {
		case <-s.kick:
		default:
		}
	}
}

// runCycle 执行一个完整刷新周期，返回到下一个周期的延迟
func (s *Scheduler) runCycle(ctx context.Context) time.Duration {
	if !s.inFlight.CompareAndSwap(false, true) {
		return s.cfg.Interval
	}
	defer s.inFlight.Store(false)

	start := s.clock.Now()
	timer := prometheus.NewTimer(s.scrapeDuration)
	defer timer.ObserveDuration()

	s.setState(StateFetching)
	bundle, err := s.fetchAll(ctx)
	if err != nil {
		return s.fail(err)
	}

	s.setState(StateExtracting)
	result, err := extract.Extract(bundle, s.baseline)
	if err != nil {
		return s.fail(err)
	}
	for _, section := range result.Partial {
		logger.Warn("optional section skipped this cycle", zap.String("section", section))
	}

	s.setState(StatePublishing)
	s.baseline = result.Baseline
	now := s.clock.Now()
	s.cache.Publish(&cache.Snapshot{
		Samples:             result.Samples,
		CapturedAt:          now,
		PublishedAt:         now,
		Success:             true,
		ConsecutiveFailures: 0,
	})

	s.expo.Reset()
	s.setState(StateIdle)
	logger.Debug("refresh cycle completed",
		zap.Int("samples", len(result.Samples)),
		zap.Duration("duration", s.clock.Since(start)))
	return s.cfg.Interval
}

// fail 发布失败快照（保留上一份样本集）并计算退避延迟
func (s *Scheduler) fail(err error) time.Duration {
	s.scrapeErrors.Inc()

	prev := s.cache.Read()
	snap := &cache.Snapshot{
		Success:             false,
		Err:                 err.Error(),
		PublishedAt:         s.clock.Now(),
		ConsecutiveFailures: 1,
	}
	if prev != nil {
		// 失败永远不清空缓存：样本与成功时间戳原样保留
		snap.Samples = prev.Samples
		snap.CapturedAt = prev.CapturedAt
		snap.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	}
	s.cache.Publish(snap)

	delay := s.expo.NextBackOff()
	s.setState(StateBackoff)

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("consecutive_failures", snap.ConsecutiveFailures),
		zap.Duration("backoff", delay),
	}
	if snap.ConsecutiveFailures >= s.cfg.FailureThreshold {
		logger.Error("refresh failing repeatedly, health is critical", fields...)
	} else {
		logger.Warn("refresh cycle failed", fields...)
	}
	return delay
}

// fetchAll 按采集计划抓取所有端点
func (s *Scheduler) fetchAll(ctx context.Context) (*extract.Bundle, error) {
	bundle := &extract.Bundle{Responses: make(map[string][]byte, len(fetchPlan))}
	for _, entry := range fetchPlan {
		resp, err := s.fetcher.Fetch(ctx, entry.spec)
		if err != nil {
			var authErr *client.AuthError
			if entry.required || errors.As(err, &authErr) {
				return nil, err
			}
			logger.Warn("optional endpoint fetch failed",
				zap.String("endpoint", entry.spec.Name), zap.Error(err))
			continue
		}
		bundle.Responses[resp.Endpoint] = resp.Body
	}
	return bundle, nil
}
