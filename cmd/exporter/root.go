package exporter

import (
	"context"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/vpikus/asus-router-prometheus-exporter/internal/cache"
	"github.com/vpikus/asus-router-prometheus-exporter/internal/client"
	"github.com/vpikus/asus-router-prometheus-exporter/internal/refresh"
	"github.com/vpikus/asus-router-prometheus-exporter/internal/registers"
	"github.com/vpikus/asus-router-prometheus-exporter/internal/server"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/config"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/logger"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/util"
)

var (
	cfgFile   string
	GlobalCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "asus-router-exporter",
	Short: "Prometheus exporter for ASUS router metrics (CPU/memory/temperature/netdev) with session caching",
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		GlobalCfg, err = config.LoadConfigWithCli(cmd)
		if err != nil {
			// 统一输出错误到 stderr，不返回给 cobra
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "请检查配置文件路径或使用 -c 参数指定\n")
			os.Exit(1)
		}
		if err := runServer(cmd.Context(), GlobalCfg); err != nil {
			fmt.Fprintf(os.Stderr, "服务启动失败: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initRouterFlags(rootCmd)
	initRefreshFlags(rootCmd)
	initLogFlags(rootCmd)
}

func runServer(ctx context.Context, cfg *config.Config) error {
	//初始化日志
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer logger.Sync()

	util.PrintBanner("asus-exporter", "ASUS router metrics exporter")

	// 快照缓存 + 指标注册器
	snapshots := cache.New()
	const enableProcess = true
	registry, factory := registers.InitPromRegistry(snapshots, enableProcess)
	loginAttempts := factory.NewLoginAttemptsTotal()

	// 路由器会话客户端
	routerClient, err := client.New(cfg.Router, client.WithLoginObserver(func(success bool) {
		result := "failure"
		if success {
			result = "success"
		}
		loginAttempts.WithLabelValues(result).Inc()
	}))
	if err != nil {
		return fmt.Errorf("create router client failed: %w", err)
	}

	// 后台刷新调度器（随进程生命周期运行）
	scheduler := refresh.New(routerClient, snapshots, cfg.Refresh, clockwork.NewRealClock(), factory)
	schedCtx, stopScheduler := context.WithCancel(ctx)
	go scheduler.Run(schedCtx)

	httpServer := server.NewHTTPServer(cfg, snapshots, registry)
	if err := httpServer.Start(); err != nil {
		stopScheduler()
		return fmt.Errorf("start HTTP server failed: %w", err)
	}

	server.WaitForShutdown(func() error {
		// 关闭顺序：先停调度器，再优雅关闭HTTP服务
		stopScheduler()
		if err := httpServer.Shutdown(); err != nil {
			return fmt.Errorf("shutdown HTTP server failed: %w", err)
		}

		logger.Info("all services shutdown successfully")
		return nil
	})
	return nil
}
