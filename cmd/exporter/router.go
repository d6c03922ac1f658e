package exporter

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func initRouterFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("router.address", defaultCfg.Router.Address,
		"-> Router host or IP, e.g. 192.168.1.1 (路由器地址) [env: ASUS_ROUTER_HOST]")
	f.String("router.username", defaultCfg.Router.Username,
		"-> Router login username (路由器用户名) [env: ASUS_ROUTER_USERNAME]")
	f.String("router.password", defaultCfg.Router.Password,
		"-> Router login password (路由器密码) [env: ASUS_ROUTER_PASSWORD]")
	f.Duration("router.request-timeout", defaultCfg.Router.RequestTimeout,
		"-> Per-request device timeout (单次设备请求超时)")

	err := viper.BindPFlags(f)
	if err != nil {
		return
	}
}
