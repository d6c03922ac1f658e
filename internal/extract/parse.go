package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vpikus/asus-router-prometheus-exporter/internal/model"
)

// uptime 响应里的时间格式：Thu, 22 Aug 2024 10:15:02 +0300
const uptimeTimeLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// coretemp 页面是 `key = "value";` 形式的 js 赋值串
var coreTempPattern = regexp.MustCompile(`(\w+)\s*=\s*("?[^";]+"?);`)

// hookObject 剥离 hook 响应的外壳拿到载荷对象。
// appGet.cgi 对部分 hook 返回的不是合法 JSON，而是裸的 `"cpu_usage":{...}`
// 键值对（无外层大括号）；另一部分（netdev 等）返回完整对象。两种都接。
func hookObject(body []byte, hook string) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty %s payload", hook)
	}

	if trimmed[0] != '{' {
		// 裸键值对：补外层大括号后按 {"<hook>":{...}} 解析
		trimmed = append(append([]byte("{"), trimmed...), '}')
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &outer); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", hook, err)
	}

	inner, ok := outer[hook]
	if !ok {
		// 某些固件直接返回载荷对象本身
		return outer, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(inner, &obj); err != nil {
		return nil, fmt.Errorf("decode %s object: %w", hook, err)
	}
	return obj, nil
}

// rawString 去掉 RawMessage 的引号
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	return strings.Trim(s, `"`)
}

// rawInt 设备把数字有时编码为字符串有时为数字，两种都解
func rawInt(raw json.RawMessage) (int64, error) {
	s := rawString(raw)
	if s == "" {
		return 0, fmt.Errorf("empty numeric value")
	}
	return strconv.ParseInt(s, 10, 64)
}

// safeInt 解析失败返回 0（对齐原始实现的宽容语义）
func safeInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

func toBool(s string) bool {
	return safeInt(s) != 0
}

// parseHex netdev 的计数器是 0x 前缀十六进制串
func parseHex(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseInt(s, 16, 64)
}

// idsFor 从 "cpu1_usage"/"INTERNET0_tx" 这类键里提取数字序号并排序去重
func idsFor(prefix string, keys map[string]json.RawMessage) []int {
	seen := map[int]bool{}
	for k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		under := strings.IndexByte(k, '_')
		if under <= len(prefix) {
			continue
		}
		id, err := strconv.Atoi(k[len(prefix):under])
		if err != nil {
			continue
		}
		seen[id] = true
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func parseUptime(body []byte) (model.UptimeInfo, error) {
	var out struct {
		Uptime string `json:"uptime"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &out); err != nil {
		return model.UptimeInfo{}, fmt.Errorf("decode uptime payload: %w", err)
	}
	// 格式: "Thu, 22 Aug 2024 10:15:02 +0300(12345 secs since boot)"
	parts := strings.SplitN(out.Uptime, "(", 2)
	if len(parts) != 2 {
		return model.UptimeInfo{}, fmt.Errorf("unexpected uptime format: %q", out.Uptime)
	}
	systime, err := time.Parse(uptimeTimeLayout, strings.TrimSpace(parts[0]))
	if err != nil {
		return model.UptimeInfo{}, fmt.Errorf("parse uptime systime: %w", err)
	}
	boottime, err := strconv.ParseInt(strings.SplitN(parts[1], " ", 2)[0], 10, 64)
	if err != nil {
		return model.UptimeInfo{}, fmt.Errorf("parse uptime boottime: %w", err)
	}
	return model.UptimeInfo{Systime: systime, Boottime: boottime}, nil
}

func parseCPUUsage(body []byte) (map[string]model.CPUStat, error) {
	obj, err := hookObject(body, "cpu_usage")
	if err != nil {
		return nil, err
	}
	stats := map[string]model.CPUStat{}
	for _, id := range idsFor("cpu", obj) {
		prefix := fmt.Sprintf("cpu%d", id)
		usage, uErr := rawInt(obj[prefix+"_usage"])
		total, tErr := rawInt(obj[prefix+"_total"])
		if uErr != nil || tErr != nil {
			return nil, fmt.Errorf("malformed counters for %s", prefix)
		}
		stats[strconv.Itoa(id)] = model.CPUStat{Usage: usage, Total: total}
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no cpu counters in payload")
	}
	return stats, nil
}

func parseMemoryUsage(body []byte) (model.MemoryInfo, error) {
	obj, err := hookObject(body, "memory_usage")
	if err != nil {
		return model.MemoryInfo{}, err
	}
	total, tErr := rawInt(obj["mem_total"])
	used, uErr := rawInt(obj["mem_used"])
	free, fErr := rawInt(obj["mem_free"])
	if tErr != nil || uErr != nil || fErr != nil {
		return model.MemoryInfo{}, fmt.Errorf("malformed memory counters")
	}
	return model.MemoryInfo{TotalKB: total, UsedKB: used, FreeKB: free}, nil
}

func parseCoreTemp(body []byte) (model.TemperatureInfo, error) {
	parsed := map[string]string{}
	for _, m := range coreTempPattern.FindAllStringSubmatch(string(body), -1) {
		parsed[m[1]] = strings.Trim(m[2], `"`)
	}
	raw, ok := parsed["curr_cpuTemp"]
	if !ok {
		return model.TemperatureInfo{}, fmt.Errorf("curr_cpuTemp not found in coretemp payload")
	}
	temp, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return model.TemperatureInfo{}, fmt.Errorf("parse curr_cpuTemp %q: %w", raw, err)
	}
	return model.TemperatureInfo{CPU: temp}, nil
}

func parseNetdev(body []byte) (model.NetdevInfo, error) {
	obj, err := hookObject(body, "netdev")
	if err != nil {
		return model.NetdevInfo{}, err
	}

	throughput := func(txKey, rxKey string) (model.ThroughputInfo, error) {
		tx, txErr := parseHex(rawString(obj[txKey]))
		rx, rxErr := parseHex(rawString(obj[rxKey]))
		if txErr != nil || rxErr != nil {
			return model.ThroughputInfo{}, fmt.Errorf("malformed hex counters %s/%s", txKey, rxKey)
		}
		return model.ThroughputInfo{TotalUploadBytes: tx, TotalDownloadBytes: rx}, nil
	}

	bridge, err := throughput("BRIDGE_tx", "BRIDGE_rx")
	if err != nil {
		return model.NetdevInfo{}, err
	}
	wired, err := throughput("WIRED_tx", "WIRED_rx")
	if err != nil {
		return model.NetdevInfo{}, err
	}

	internet := map[int]model.ThroughputInfo{}
	for _, id := range idsFor("INTERNET", obj) {
		t, err := throughput(fmt.Sprintf("INTERNET%d_tx", id), fmt.Sprintf("INTERNET%d_rx", id))
		if err != nil {
			return model.NetdevInfo{}, err
		}
		internet[id] = t
	}
	wireless := map[int]model.ThroughputInfo{}
	for _, id := range idsFor("WIRELESS", obj) {
		t, err := throughput(fmt.Sprintf("WIRELESS%d_tx", id), fmt.Sprintf("WIRELESS%d_rx", id))
		if err != nil {
			return model.NetdevInfo{}, err
		}
		wireless[id] = t
	}

	return model.NetdevInfo{Bridge: bridge, Wired: wired, Internet: internet, Wireless: wireless}, nil
}

func parseWlNbandInfo(body []byte) (model.WifiInfo, error) {
	var out struct {
		Bands []string `json:"wl_nband_info"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &out); err != nil {
		return model.WifiInfo{}, fmt.Errorf("decode wl_nband_info payload: %w", err)
	}
	counts := map[model.WifiBand]int{}
	for _, b := range model.AllWifiBands {
		counts[b] = 0
	}
	for _, raw := range out.Bands {
		counts[model.WifiBand(safeInt(raw))]++
	}
	return model.WifiInfo{BandsCount: counts}, nil
}

func parseWanUnit(body []byte) (int, error) {
	var out struct {
		Unit json.RawMessage `json:"get_wan_unit"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &out); err != nil {
		return 0, fmt.Errorf("decode get_wan_unit payload: %w", err)
	}
	unit, err := rawInt(out.Unit)
	if err != nil {
		return 0, fmt.Errorf("parse get_wan_unit: %w", err)
	}
	return int(unit), nil
}

func parseUISupport(body []byte) (model.FeatureCaps, error) {
	obj, err := hookObject(body, "get_ui_support")
	if err != nil {
		return nil, err
	}
	caps := model.FeatureCaps{}
	for k, v := range obj {
		n, err := rawInt(v)
		if err != nil {
			continue // 个别能力项是非数字的，跳过
		}
		caps[k] = int(n)
	}
	return caps, nil
}

func parseUSBPath(body []byte) ([]model.UsbDeviceType, error) {
	var out struct {
		Statuses []string `json:"show_usb_path"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &out); err != nil {
		return nil, fmt.Errorf("decode show_usb_path payload: %w", err)
	}
	devices := make([]model.UsbDeviceType, 0, len(out.Statuses))
	for _, s := range out.Statuses {
		devices = append(devices, model.UsbDeviceType(s))
	}
	return devices, nil
}

// parseNvram nvram_get 批量响应就是一个扁平 JSON 对象
func parseNvram(body []byte) (map[string]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &obj); err != nil {
		return nil, fmt.Errorf("decode nvram payload: %w", err)
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[k] = rawString(v)
	}
	return out, nil
}
