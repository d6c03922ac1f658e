package client

import (
	"net/url"
	"strings"
)

// Hook appGet.cgi 的 hook 调用端点
func Hook(name, args string) EndpointSpec {
	return EndpointSpec{
		Name:  name,
		Path:  "/appGet.cgi",
		Query: url.Values{"hook": {name + "(" + args + ")"}},
	}
}

// Nvram 批量 nvram_get 端点（hook=nvram_get(a);nvram_get(b);...）
func Nvram(vars ...string) EndpointSpec {
	hooks := make([]string, 0, len(vars))
	for _, v := range vars {
		hooks = append(hooks, "nvram_get("+v+")")
	}
	return EndpointSpec{
		Name:  "nvram",
		Path:  "/appGet.cgi",
		Query: url.Values{"hook": {strings.Join(hooks, ";")}},
	}
}

// 采集计划用到的端点集合
var (
	EndpointUptime      = Hook("uptime", "")
	EndpointCPUUsage    = Hook("cpu_usage", "")
	EndpointMemoryUsage = Hook("memory_usage", "")
	EndpointNetdev      = Hook("netdev", "appobj")
	EndpointWlNbandInfo = Hook("wl_nband_info", "")
	EndpointWanUnit     = Hook("get_wan_unit", "")
	EndpointUISupport   = Hook("get_ui_support", "")
	EndpointUSBPath     = Hook("show_usb_path", "")

	// 温度不是 hook，是独立的 asp 页面
	EndpointCoreTemp = EndpointSpec{Name: "coretemp", Path: "/ajax_coretmp.asp"}

	// 静态信息与双WAN相关 nvram。一次请求批量取，减少设备压力。
	EndpointInfoNvram = func() EndpointSpec {
		e := Nvram("productid", "lan_hwaddr", "lan_hostname", "odmpid", "hardware_version",
			"bl_version", "svc_ready", "qos_enable", "bwdpi_app_rulelist", "qos_type", "firmver",
			"extendno", "territory_code", "re_mode", "sw_mode", "wlc_psta", "wlc_express",
			"wans_dualwan", "wan0_enable", "wan1_enable")
		e.Name = "info_nvram"
		return e
	}()
)
