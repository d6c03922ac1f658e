// Package extract 把设备原始响应映射为类型化指标样本。
// 纯函数，无IO：可选段缺失时产出缩减样本集并继续，
// 根状态段（身份/uptime/cpu/内存）缺失或畸形时整批失败。
package extract

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/vpikus/asus-router-prometheus-exporter/internal/cache"
	"github.com/vpikus/asus-router-prometheus-exporter/internal/model"
)

// Bundle 一个刷新周期内抓取到的全部原始响应（endpoint 名 → 原始响应体）
type Bundle struct {
	Responses map[string][]byte
}

// bundle 键与 client 的 EndpointSpec.Name 一致
const (
	SectionInfoNvram   = "info_nvram"
	SectionUptime      = "uptime"
	SectionCPUUsage    = "cpu_usage"
	SectionMemoryUsage = "memory_usage"
	SectionCoreTemp    = "coretemp"
	SectionNetdev      = "netdev"
	SectionWlNband     = "wl_nband_info"
	SectionWanUnit     = "get_wan_unit"
	SectionUISupport   = "get_ui_support"
	SectionUSBPath     = "show_usb_path"
)

// RequiredSections 缺一不可的根状态段
var RequiredSections = []string{SectionInfoNvram, SectionUptime, SectionCPUUsage, SectionMemoryUsage}

// ExtractionError 根状态段缺失或畸形
type ExtractionError struct {
	Section string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed on section %s: %v", e.Section, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// CPUBaseline 上一周期的 CPU 累计计数（cpu_id → 计数），
// 用于跨周期差分算使用率百分比。首周期传 nil。
type CPUBaseline map[string]model.CPUStat

// Result 一次提取的产出：样本序列 + 下一周期用的 CPU 基线 + 可选段告警
type Result struct {
	Samples  []cache.MetricSample
	Baseline CPUBaseline
	// Partial 本周期被跳过的可选段（调度侧记 warning 日志用）
	Partial []string
}

// Extract 提取整个 Bundle。prev 为上一周期 CPU 基线（首周期 nil，百分比输出 NaN）。
func Extract(b *Bundle, prev CPUBaseline) (*Result, error) {
	for _, section := range RequiredSections {
		if _, ok := b.Responses[section]; !ok {
			return nil, &ExtractionError{Section: section, Err: fmt.Errorf("section missing from bundle")}
		}
	}

	// --- 根状态段，任一失败整批失败 ---
	nvram, err := parseNvram(b.Responses[SectionInfoNvram])
	if err != nil {
		return nil, &ExtractionError{Section: SectionInfoNvram, Err: err}
	}
	info := buildRouterInfo(nvram)
	if info.ProductID == "" {
		return nil, &ExtractionError{Section: SectionInfoNvram, Err: fmt.Errorf("productid is empty")}
	}

	uptime, err := parseUptime(b.Responses[SectionUptime])
	if err != nil {
		return nil, &ExtractionError{Section: SectionUptime, Err: err}
	}
	cpuStats, err := parseCPUUsage(b.Responses[SectionCPUUsage])
	if err != nil {
		return nil, &ExtractionError{Section: SectionCPUUsage, Err: err}
	}
	mem, err := parseMemoryUsage(b.Responses[SectionMemoryUsage])
	if err != nil {
		return nil, &ExtractionError{Section: SectionMemoryUsage, Err: err}
	}

	e := &emitter{productID: info.ProductID}

	e.routerInfo(info, b)
	e.uptime(uptime)
	baseline := e.cpu(cpuStats, prev)
	e.memory(mem)

	// --- 可选段，失败只缩减样本集 ---
	e.optional(b, SectionCoreTemp, func(body []byte) error {
		temp, err := parseCoreTemp(body)
		if err != nil {
			return err
		}
		e.temperature(temp)
		return nil
	})
	e.optional(b, SectionNetdev, func(body []byte) error {
		netdev, err := parseNetdev(body)
		if err != nil {
			return err
		}
		e.netdev(netdev)
		return nil
	})
	e.optional(b, SectionWlNband, func(body []byte) error {
		wifi, err := parseWlNbandInfo(body)
		if err != nil {
			return err
		}
		e.wifi(wifi)
		return nil
	})
	e.dualwan(nvram, b)
	e.optional(b, SectionUSBPath, func(body []byte) error {
		devices, err := parseUSBPath(body)
		if err != nil {
			return err
		}
		e.usb(devices)
		return nil
	})

	return &Result{Samples: e.samples, Baseline: baseline, Partial: e.partial}, nil
}

// emitter 样本构造器，保证产出顺序确定
type emitter struct {
	productID string
	samples   []cache.MetricSample
	partial   []string
}

func (e *emitter) labels(extra ...string) map[string]string {
	l := map[string]string{"product_id": e.productID}
	for i := 0; i+1 < len(extra); i += 2 {
		l[extra[i]] = extra[i+1]
	}
	return l
}

func (e *emitter) gauge(name, help string, labels map[string]string, v float64) {
	e.samples = append(e.samples, cache.MetricSample{Name: name, Help: help, Labels: labels, Value: v, Kind: cache.KindGauge})
}

func (e *emitter) counter(name, help string, labels map[string]string, v float64) {
	e.samples = append(e.samples, cache.MetricSample{Name: name, Help: help, Labels: labels, Value: v, Kind: cache.KindCounter})
}

// optional 解析可选段；段缺失或畸形时记入 Partial 并继续
func (e *emitter) optional(b *Bundle, section string, fn func(body []byte) error) {
	body, ok := b.Responses[section]
	if !ok {
		e.partial = append(e.partial, section)
		return
	}
	if err := fn(body); err != nil {
		e.partial = append(e.partial, section)
	}
}

// buildRouterInfo nvram 键值映射为类型化路由器信息。
// sw_mode 由 (sw_mode, wlc_psta, wlc_express) 三元组判定。
func buildRouterInfo(nvram map[string]string) model.RouterInfo {
	return model.RouterInfo{
		ProductID:        nvram["productid"],
		LanHwaddr:        nvram["lan_hwaddr"],
		LanHostname:      nvram["lan_hostname"],
		Odmpid:           nvram["odmpid"],
		HardwareVersion:  nvram["hardware_version"],
		BlVersion:        nvram["bl_version"],
		SvcReady:         toBool(nvram["svc_ready"]),
		QosEnable:        toBool(nvram["qos_enable"]),
		QosType:          safeInt(nvram["qos_type"]),
		BwdpiAppRulelist: nvram["bwdpi_app_rulelist"],
		Firmver:          nvram["firmver"],
		Extendno:         nvram["extendno"],
		TerritoryCode:    nvram["territory_code"],
		ReMode:           safeInt(nvram["re_mode"]),
		SwMode: model.ResolveSwMode(
			safeInt(nvram["sw_mode"]), safeInt(nvram["wlc_psta"]), safeInt(nvram["wlc_express"])),
	}
}

func (e *emitter) routerInfo(info model.RouterInfo, b *Bundle) {
	infoLabels := e.labels(
		"firmware", info.Firmware(),
		"hostname", info.LanHostname,
		"mac", info.LanHwaddr,
		"model", info.Odmpid,
		"hardware_version", info.HardwareVersion,
	)
	e.gauge("asus_router_info",
		"Router information (static details such as product ID, model, firmware)",
		infoLabels, 1)

	// sw_mode one-hot
	for _, m := range model.AllSwModes {
		v := 0.0
		if m == info.SwMode {
			v = 1.0
		}
		e.gauge("asus_router_sw_mode", "Asus router mode (one-hot)",
			e.labels("sw_mode", string(m)), v)
	}

	e.gauge("asus_router_qos_enabled", "QoS enabled (0/1)", e.labels(), boolValue(info.QosEnable))
	e.gauge("asus_router_svc_ready", "Services ready (0/1)", e.labels(), boolValue(info.SvcReady))

	// 能力表只在成功拿到 get_ui_support 时展开
	e.optional(b, SectionUISupport, func(body []byte) error {
		caps, err := parseUISupport(body)
		if err != nil {
			return err
		}
		e.gauge("asus_router_feature_dualwan_supported", "Dual WAN capability (0/1)",
			e.labels(), boolValue(caps.IsSupported("dualwan")))
		return nil
	})
}

func (e *emitter) uptime(u model.UptimeInfo) {
	e.gauge("asus_router_uptime_seconds", "Router uptime in seconds", e.labels(), float64(u.Boottime))
}

func (e *emitter) cpu(stats map[string]model.CPUStat, prev CPUBaseline) CPUBaseline {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	baseline := make(CPUBaseline, len(stats))
	for _, id := range ids {
		s := stats[id]
		labels := e.labels("cpu_id", id)
		e.counter("asus_router_cpu_usage",
			"Busy time (user+system+irq+...) in jiffies/ticks since boot", labels, float64(s.Usage))
		e.counter("asus_router_cpu_total",
			"Total time units (jiffies/ticks) elapsed since boot", labels, float64(s.Total))

		// 百分比来自与上一周期的差分；首周期或总量无增长时输出 NaN 而不是误导性的 0
		pct := math.NaN()
		if p, ok := prev[id]; ok {
			du := clampDelta(s.Usage, p.Usage)
			dt := clampDelta(s.Total, p.Total)
			if dt > 0 {
				pct = math.Min(100, math.Max(0, float64(du)/float64(dt)*100))
			}
		}
		e.gauge("asus_router_cpu_usage_percent",
			"CPU usage percentage (Δusage / Δtotal * 100)", labels, pct)

		baseline[id] = s
	}
	return baseline
}

func (e *emitter) memory(m model.MemoryInfo) {
	total := float64(m.TotalKB) * 1024
	used := float64(m.UsedKB) * 1024
	free := float64(m.FreeKB) * 1024
	e.gauge("asus_router_memory_total_bytes", "Total memory in bytes", e.labels(), total)
	e.gauge("asus_router_memory_used_bytes", "Used memory in bytes", e.labels(), used)
	e.gauge("asus_router_memory_free_bytes", "Free memory in bytes", e.labels(), free)

	pct := math.NaN()
	if total > 0 {
		pct = math.Min(100, math.Max(0, used/total*100))
	}
	e.gauge("asus_router_memory_used_percent", "Memory usage percentage (used / total * 100)", e.labels(), pct)
}

func (e *emitter) temperature(t model.TemperatureInfo) {
	e.gauge("asus_router_cpu_temperature_celsius", "CPU temperature in Celsius", e.labels(), t.CPU)
}

func (e *emitter) netdev(n model.NetdevInfo) {
	simple := func(iface string, t model.ThroughputInfo) {
		e.counter(fmt.Sprintf("asus_router_netdev_%s_transmit_bytes_total", iface),
			fmt.Sprintf("Total bytes transmitted on %s interface", iface),
			e.labels(), float64(t.TotalUploadBytes))
		e.counter(fmt.Sprintf("asus_router_netdev_%s_receive_bytes_total", iface),
			fmt.Sprintf("Total bytes received on %s interface", iface),
			e.labels(), float64(t.TotalDownloadBytes))
	}
	simple("bridge", n.Bridge)
	simple("wired", n.Wired)

	indexed := func(iface string, m map[int]model.ThroughputInfo) {
		ids := make([]int, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			labels := e.labels("interface_id", strconv.Itoa(id))
			e.counter(fmt.Sprintf("asus_router_netdev_%s_transmit_bytes_total", iface),
				fmt.Sprintf("Total bytes transmitted on %s interface", iface),
				labels, float64(m[id].TotalUploadBytes))
			e.counter(fmt.Sprintf("asus_router_netdev_%s_receive_bytes_total", iface),
				fmt.Sprintf("Total bytes received on %s interface", iface),
				labels, float64(m[id].TotalDownloadBytes))
		}
	}
	indexed("internet", n.Internet)
	indexed("wireless", n.Wireless)
}

func (e *emitter) wifi(w model.WifiInfo) {
	for _, band := range model.AllWifiBands {
		e.gauge("asus_router_wireless_band_count", "Number of radios per wireless band",
			e.labels("band", band.String()), float64(w.BandsCount[band]))
	}
}

// buildDualWanInfo 从 nvram 成员口列表 + 当前活动口组装双WAN状态
func buildDualWanInfo(nvram map[string]string, activeUnit int) model.DualWanInfo {
	modes := map[int]model.DualWanMode{}
	for i, part := range strings.Fields(nvram["wans_dualwan"]) {
		modes[i] = model.ParseDualWanMode(strings.ToLower(part))
	}
	enabled := true
	for _, m := range modes {
		if m == model.DualWanNone {
			enabled = false
		}
	}
	return model.DualWanInfo{
		Modes:         modes,
		Wan0Enable:    toBool(nvram["wan0_enable"]),
		Wan1Enable:    toBool(nvram["wan1_enable"]),
		ActiveWanUnit: activeUnit,
		Enabled:       enabled,
	}
}

// dualwan 需要 nvram + get_wan_unit + get_ui_support 三者配合，任一缺失则整段跳过
func (e *emitter) dualwan(nvram map[string]string, b *Bundle) {
	e.optional(b, SectionWanUnit, func(body []byte) error {
		activeUnit, err := parseWanUnit(body)
		if err != nil {
			return err
		}

		dw := buildDualWanInfo(nvram, activeUnit)
		if capsBody, ok := b.Responses[SectionUISupport]; ok {
			if caps, err := parseUISupport(capsBody); err == nil {
				dw.Enabled = dw.Enabled && caps.IsSupported("dualwan")
			}
		}

		e.gauge("asus_router_dualwan_enabled", "Dual WAN enabled", e.labels(), boolValue(dw.Enabled))
		e.gauge("asus_router_wan_active_unit", "Currently active WAN unit", e.labels(), float64(dw.ActiveWanUnit))
		e.gauge("asus_router_wan_enabled", "WAN unit enabled (0/1)",
			e.labels("unit", "0"), boolValue(dw.Wan0Enable))
		e.gauge("asus_router_wan_enabled", "WAN unit enabled (0/1)",
			e.labels("unit", "1"), boolValue(dw.Wan1Enable))

		// 每个成员口的模式 one-hot
		units := make([]int, 0, len(dw.Modes))
		for u := range dw.Modes {
			units = append(units, u)
		}
		sort.Ints(units)
		for _, u := range units {
			for _, m := range model.AllDualWanModes {
				v := 0.0
				if dw.Modes[u] == m {
					v = 1.0
				}
				e.gauge("asus_router_dualwan_mode", "Dual WAN mode (one-hot)",
					e.labels("unit", strconv.Itoa(u), "mode", string(m)), v)
			}
		}
		return nil
	})
}

func (e *emitter) usb(devices []model.UsbDeviceType) {
	counts := map[model.UsbDeviceType]int{
		model.UsbStorage: 0,
		model.UsbModem:   0,
		model.UsbPrinter: 0,
	}
	for _, d := range devices {
		counts[d]++
	}
	for _, t := range []model.UsbDeviceType{model.UsbStorage, model.UsbModem, model.UsbPrinter} {
		e.gauge("asus_router_usb_devices_plugged", "Number of plugged USB devices by type",
			e.labels("type", string(t)), float64(counts[t]))
	}
}

// clampDelta 两个累计计数的差值，回绕/重置时返回 0 而不是负数
func clampDelta(current, previous int64) int64 {
	if current >= previous {
		return current - previous
	}
	return 0
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
