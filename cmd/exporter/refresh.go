package exporter

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func initRefreshFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Duration("refresh.interval", defaultCfg.Refresh.Interval, "采集刷新间隔")
	f.Duration("refresh.backoff-base", defaultCfg.Refresh.BackoffBase, "失败退避基础间隔")
	f.Duration("refresh.backoff-ceiling", defaultCfg.Refresh.BackoffCeiling, "失败退避最大间隔")
	f.Duration("refresh.staleness-ceiling", defaultCfg.Refresh.StalenessCeiling, "快照最大可接受陈旧度")
	f.Int("refresh.failure-threshold", defaultCfg.Refresh.FailureThreshold, "连续失败阈值（达到后 /health 返回 503）")

	err := viper.BindPFlags(f)
	if err != nil {
		return
	}
}
