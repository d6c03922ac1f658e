// Package server 提供HTTP服务器核心功能，包含Prometheus指标暴露、
// 基于快照缓存的健康检查端点、优雅关闭机制及系统信号监听能力。
// 抓取请求只读缓存，与设备IO完全解耦。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vpikus/asus-router-prometheus-exporter/internal/cache"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/config"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/logger"
)

// HTTPServer HTTP服务实例，封装监听地址、HTTP服务器核心对象和Prometheus指标注册器
// 核心能力：暴露/metrics指标端点、/health健康检查端点、优雅启动/关闭
type HTTPServer struct {
	addr     string
	server   *http.Server
	registry *prometheus.Registry
}

// statusWriter 包装http.ResponseWriter，用于捕获HTTP响应状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

// httpShutdownTimeout 优雅关闭超时时间，避免关闭流程无限阻塞
const httpShutdownTimeout = 5 * time.Second

// healthResponse /health 端点响应体
type healthResponse struct {
	Status              string  `json:"status"`
	LastRefreshSuccess  bool    `json:"last_refresh_success"`
	SnapshotAgeSeconds  float64 `json:"snapshot_age_seconds"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	LastError           string  `json:"last_error,omitempty"`
}

// NewHTTPServer 创建HTTP服务实例（依赖注入模式）
//  1. 注册/metrics端点：暴露Prometheus指标（快照集 + 导出器自身指标）
//  2. 注册/health端点：健康状态由缓存的成功/陈旧度状态导出，而不是固定返回OK
//  3. 超时参数来自配置
func NewHTTPServer(cfg *config.Config, snapshots *cache.Cache, registry *prometheus.Registry) *HTTPServer {
	mux := http.NewServeMux()

	// logRequest 请求日志记录辅助函数
	logRequest := func(r *http.Request, msg string, statusCode int, start time.Time) {
		logger.Info(
			msg,
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	}

	// /metrics 端点：暴露Prometheus指标（含快照采集器）
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}

		promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(logger.GetLogger()),
		}).ServeHTTP(ww, r)

		logRequest(r, "metrics request received", ww.status, start)
	}))

	// /health 端点：由缓存健康状态驱动（healthy/degraded → 200，critical → 503）
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}

		now := time.Now()
		state := snapshots.Health(now, cfg.Refresh.StalenessCeiling, cfg.Refresh.FailureThreshold)
		resp := healthResponse{Status: state.String()}
		if snap := snapshots.Read(); snap != nil {
			resp.LastRefreshSuccess = snap.Success
			resp.SnapshotAgeSeconds = snap.Age(now).Seconds()
			resp.ConsecutiveFailures = snap.ConsecutiveFailures
			resp.LastError = snap.Err
		}

		code := http.StatusOK
		if state == cache.Critical {
			code = http.StatusServiceUnavailable
		}
		ww.Header().Set("Content-Type", "application/json")
		ww.WriteHeader(code)
		_ = json.NewEncoder(ww).Encode(resp)

		logRequest(r, "health check received", ww.status, start)
	})

	return &HTTPServer{
		addr:     cfg.Server.Addr,
		registry: registry,
		server: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
}

// WriteHeader 记录响应状态码到statusWriter实例中
func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Handler 暴露路由（httptest 单测用）
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动HTTP服务（非阻塞模式）
// 服务启动后持续运行，直到调用Shutdown方法；
// 非正常关闭（非http.ErrServerClosed）会触发Fatal日志
func (s *HTTPServer) Start() error {
	logger.Info(
		"starting HTTP server",
		zap.String("listen_addr", s.addr),
		zap.Duration("read_timeout", s.server.ReadTimeout),
		zap.Duration("write_timeout", s.server.WriteTimeout),
		zap.Duration("idle_timeout", s.server.IdleTimeout),
	)

	// 子goroutine中启动服务（避免阻塞主流程）
	go func() {
		if err := s.server.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal(
					"HTTP server failed to listen",
					zap.Error(err),
					zap.String("listen_addr", s.addr),
				)
			} else {
				logger.Info(
					"HTTP server stopped listening",
					zap.String("listen_addr", s.addr),
				)
			}
		}
	}()
	return nil
}

// Shutdown 优雅关闭HTTP服务：停止接收新请求，等待现有请求在超时时间内处理完成
func (s *HTTPServer) Shutdown() error {
	logger.Info("starting graceful shutdown of HTTP server", zap.String("listen_addr", s.addr))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		// 忽略超时错误（超时视为关闭完成）
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			return nil
		}
		logger.Error("HTTP server shutdown failed", zap.Error(err), zap.String("listen_addr", s.addr))
		return err
	}
	logger.Info("HTTP server shutdown successfully", zap.String("listen_addr", s.addr))
	return nil
}

// WaitForShutdown 监听系统退出信号（SIGINT/SIGTERM），触发优雅关闭流程
func WaitForShutdown(shutdownFunc func() error) {
	if shutdownFunc == nil {
		logger.Error("shutdownFunc is nil, cannot execute shutdown")
		return
	}

	// 注册信号监听通道（缓冲大小1，避免信号丢失）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("service is running, waiting for shutdown signal (SIGINT/SIGTERM)...")

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// 执行关闭逻辑（带超时控制）
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shutdownErrChan := make(chan error, 1)
	go func() {
		logger.Info("starting graceful shutdown...")
		shutdownErrChan <- shutdownFunc()
		close(shutdownErrChan)
	}()

	select {
	case err := <-shutdownErrChan:
		if err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		} else {
			logger.Info("graceful shutdown completed successfully")
		}
	case <-ctx.Done():
		logger.Error("graceful shutdown timed out", zap.Error(ctx.Err()))
	}

	// 日志同步：确保缓存日志写入输出（忽略stdout无效句柄错误）
	if err := logger.Sync(); err != nil {
		if err.Error() != "sync /dev/stdout: bad file descriptor" {
			logger.Warn("logger sync failed", zap.Error(err))
		}
	}

	logger.Info("shutdown workflow finished, program exiting")
}
