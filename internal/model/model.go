// Package model 定义路由器返回数据的类型化模型（纯数据，无IO）
package model

import "time"

// TemperatureInfo CPU 温度（摄氏度）
type TemperatureInfo struct {
	CPU float64
}

// CPUStat 单核累计时间片统计（自开机起的 jiffies/ticks）
type CPUStat struct {
	Usage int64 // busy time (user+system+irq+...)
	Total int64 // total elapsed time units
}

// MemoryInfo 内存统计（路由器以 KB 上报）
type MemoryInfo struct {
	TotalKB int64
	UsedKB  int64
	FreeKB  int64
}

// UptimeInfo 系统时间与开机时长
type UptimeInfo struct {
	Systime  time.Time
	Boottime int64 // seconds since boot
}

// ThroughputInfo 接口累计吞吐（字节，单调递增，设备重启会回绕）
type ThroughputInfo struct {
	TotalUploadBytes   int64
	TotalDownloadBytes int64
}

// NetdevInfo netdev(appobj) 返回的各接口吞吐汇总
type NetdevInfo struct {
	Bridge   ThroughputInfo
	Wired    ThroughputInfo
	Internet map[int]ThroughputInfo
	Wireless map[int]ThroughputInfo
}

// WifiBand 无线频段（nvram wl_nband 编码值）
type WifiBand int

const (
	Band2G  WifiBand = 2
	Band5G  WifiBand = 1
	Band6G  WifiBand = 4
	Band60G WifiBand = 6
)

// AllWifiBands 固定顺序遍历用
var AllWifiBands = []WifiBand{Band2G, Band5G, Band6G, Band60G}

func (b WifiBand) String() string {
	switch b {
	case Band2G:
		return "2.4GHz"
	case Band5G:
		return "5GHz"
	case Band6G:
		return "6GHz"
	case Band60G:
		return "60GHz"
	}
	return "unknown"
}

// WifiInfo 各频段天线数量统计
type WifiInfo struct {
	BandsCount map[WifiBand]int
}

func (w WifiInfo) IsSupported(b WifiBand) bool {
	return w.BandsCount[b] > 0
}

// SwMode 路由器工作模式
type SwMode string

const (
	SwModeRouter      SwMode = "rt"  // Router
	SwModeRepeater    SwMode = "re"  // Repeater
	SwModeAccessPoint SwMode = "ap"  // Access Point
	SwModeMediaBridge SwMode = "mb"  // Media Bridge
	SwModeExpress2G   SwMode = "ew2" // ExpressWay 2G
	SwModeExpress5G   SwMode = "ew5" // ExpressWay 5G
	SwModeHotspot     SwMode = "hs"  // Hotspot
)

// AllSwModes one-hot 指标展开用固定顺序
var AllSwModes = []SwMode{
	SwModeRouter, SwModeRepeater, SwModeAccessPoint, SwModeMediaBridge,
	SwModeExpress2G, SwModeExpress5G, SwModeHotspot,
}

// ResolveSwMode 按 nvram 三元组 (sw_mode, wlc_psta, wlc_express) 解析工作模式。
// 判定表来自设备固件的 UI 逻辑，顺序敏感。
func ResolveSwMode(swMode, wlcPsta, wlcExpress int) SwMode {
	switch {
	case ((swMode == 2 && wlcPsta == 0) || (swMode == 3 && wlcPsta == 2)) && wlcExpress == 0:
		return SwModeRepeater
	case swMode == 3 && wlcPsta == 0:
		return SwModeAccessPoint
	case (swMode == 3 && (wlcPsta == 1 || wlcPsta == 3) && wlcExpress == 0) ||
		(swMode == 2 && wlcPsta == 1 && wlcExpress == 0):
		return SwModeMediaBridge
	case swMode == 2 && wlcPsta == 0 && wlcExpress == 1:
		return SwModeExpress2G
	case swMode == 2 && wlcPsta == 0 && wlcExpress == 2:
		return SwModeExpress5G
	case swMode == 5:
		return SwModeHotspot
	}
	return SwModeRouter
}

// DualWanMode 双WAN成员口类型
type DualWanMode string

const (
	DualWanNone DualWanMode = "none"
	DualWanWan  DualWanMode = "wan"
	DualWanLan  DualWanMode = "lan"
	DualWanUsb  DualWanMode = "usb"
	DualWanDsl  DualWanMode = "dsl"
)

// AllDualWanModes one-hot 展开用固定顺序
var AllDualWanModes = []DualWanMode{DualWanNone, DualWanWan, DualWanLan, DualWanUsb, DualWanDsl}

// ParseDualWanMode 非法值归一为 none
func ParseDualWanMode(s string) DualWanMode {
	switch DualWanMode(s) {
	case DualWanWan, DualWanLan, DualWanUsb, DualWanDsl:
		return DualWanMode(s)
	}
	return DualWanNone
}

// DualWanInfo 双WAN配置与状态
type DualWanInfo struct {
	Modes         map[int]DualWanMode
	Wan0Enable    bool
	Wan1Enable    bool
	ActiveWanUnit int
	Enabled       bool
}

// FeatureCaps 设备能力表（get_ui_support）
type FeatureCaps map[string]int

func (c FeatureCaps) IsSupported(feature string) bool {
	return c[feature] > 0
}

// UsbDeviceType 已插入USB设备类型
type UsbDeviceType string

const (
	UsbStorage UsbDeviceType = "storage"
	UsbModem   UsbDeviceType = "modem"
	UsbPrinter UsbDeviceType = "printer"
)

// RouterInfo 路由器静态信息（身份、固件、模式、能力）
type RouterInfo struct {
	ProductID        string
	LanHwaddr        string
	LanHostname      string
	Odmpid           string
	HardwareVersion  string
	BlVersion        string
	SvcReady         bool
	QosEnable        bool
	QosType          int
	BwdpiAppRulelist string
	Firmver          string
	Extendno         string
	TerritoryCode    string
	ReMode           int
	SwMode           SwMode
	Caps             FeatureCaps
	Uptime           UptimeInfo
	Wifi             WifiInfo
}

// Firmware 面板展示用固件串：firmver_extendno
func (r RouterInfo) Firmware() string {
	return r.Firmver + "_" + r.Extendno
}
