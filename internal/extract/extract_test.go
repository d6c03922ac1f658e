package extract_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpikus/asus-router-prometheus-exporter/internal/cache"
	"github.com/vpikus/asus-router-prometheus-exporter/internal/extract"
	"github.com/vpikus/asus-router-prometheus-exporter/internal/model"
)

// fullBundle 一次接近真机的完整应答集
func fullBundle() *extract.Bundle {
	return &extract.Bundle{Responses: map[string][]byte{
		extract.SectionInfoNvram: []byte(`{
			"productid": "RT-AX88U", "lan_hwaddr": "04:D4:C4:00:00:01", "lan_hostname": "router",
			"odmpid": "RT-AX88U", "hardware_version": "1.0", "firmver": "3.0.0.4", "extendno": "388_24198",
			"sw_mode": "1", "wlc_psta": "0", "wlc_express": "0",
			"qos_enable": "1", "svc_ready": "1",
			"wans_dualwan": "wan usb", "wan0_enable": "1", "wan1_enable": "0"}`),
		extract.SectionUptime:      []byte(`{"uptime": "Thu, 22 Aug 2024 10:15:02 +0300(86400 secs since boot)"}`),
		extract.SectionCPUUsage:    []byte(`"cpu_usage":{"cpu1_usage": "1000", "cpu1_total": "10000", "cpu2_usage": "500", "cpu2_total": "10000"}`),
		extract.SectionMemoryUsage: []byte(`"memory_usage":{"mem_total": "262144", "mem_free": "131072", "mem_used": "131072"}`),
		extract.SectionCoreTemp:    []byte("curr_cpuTemp = \"62.5\";\n"),
		extract.SectionNetdev: []byte(`{"netdev":{
			"BRIDGE_rx":"0x2000","BRIDGE_tx":"0x1000",
			"WIRED_rx":"0x200","WIRED_tx":"0x100",
			"INTERNET0_rx":"0x20","INTERNET0_tx":"0x10",
			"WIRELESS0_rx":"0x2","WIRELESS0_tx":"0x1"}}`),
		extract.SectionWlNband:   []byte(`{"wl_nband_info": ["2", "1"]}`),
		extract.SectionWanUnit:   []byte(`{"get_wan_unit": "0"}`),
		extract.SectionUISupport: []byte(`{"get_ui_support":{"dualwan": 1, "usbX": 2}}`),
		extract.SectionUSBPath:   []byte(`{"show_usb_path": ["storage"]}`),
	}}
}

// findSample 按指标名 + 标签子集检索样本
func findSample(t *testing.T, samples []cache.MetricSample, name string, labels map[string]string) cache.MetricSample {
	t.Helper()
next:
	for _, s := range samples {
		if s.Name != name {
			continue
		}
		for k, v := range labels {
			if s.Labels[k] != v {
				continue next
			}
		}
		return s
	}
	t.Fatalf("sample %s %v not found", name, labels)
	return cache.MetricSample{}
}

func TestExtractFullBundle(t *testing.T) {
	result, err := extract.Extract(fullBundle(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Partial)

	samples := result.Samples

	info := findSample(t, samples, "asus_router_info", nil)
	assert.Equal(t, 1.0, info.Value)
	assert.Equal(t, "RT-AX88U", info.Labels["product_id"])
	assert.Equal(t, "3.0.0.4_388_24198", info.Labels["firmware"])
	assert.Equal(t, "router", info.Labels["hostname"])

	// sw_mode one-hot：rt 为 1，其余为 0
	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_sw_mode", map[string]string{"sw_mode": "rt"}).Value)
	assert.Equal(t, 0.0, findSample(t, samples, "asus_router_sw_mode", map[string]string{"sw_mode": "ap"}).Value)

	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_qos_enabled", nil).Value)
	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_svc_ready", nil).Value)
	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_feature_dualwan_supported", nil).Value)
	assert.Equal(t, 86400.0, findSample(t, samples, "asus_router_uptime_seconds", nil).Value)

	cpu1 := findSample(t, samples, "asus_router_cpu_usage", map[string]string{"cpu_id": "1"})
	assert.Equal(t, cache.KindCounter, cpu1.Kind)
	assert.Equal(t, 1000.0, cpu1.Value)
	assert.Equal(t, 10000.0, findSample(t, samples, "asus_router_cpu_total", map[string]string{"cpu_id": "1"}).Value)

	assert.Equal(t, float64(262144*1024), findSample(t, samples, "asus_router_memory_total_bytes", nil).Value)
	assert.InDelta(t, 50.0, findSample(t, samples, "asus_router_memory_used_percent", nil).Value, 0.001)

	assert.InDelta(t, 62.5, findSample(t, samples, "asus_router_cpu_temperature_celsius", nil).Value, 0.001)

	bridgeTx := findSample(t, samples, "asus_router_netdev_bridge_transmit_bytes_total", nil)
	assert.Equal(t, cache.KindCounter, bridgeTx.Kind)
	assert.Equal(t, float64(0x1000), bridgeTx.Value)
	assert.Equal(t, float64(0x20),
		findSample(t, samples, "asus_router_netdev_internet_receive_bytes_total", map[string]string{"interface_id": "0"}).Value)

	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_wireless_band_count", map[string]string{"band": "2.4GHz"}).Value)
	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_wireless_band_count", map[string]string{"band": "5GHz"}).Value)
	assert.Equal(t, 0.0, findSample(t, samples, "asus_router_wireless_band_count", map[string]string{"band": "6GHz"}).Value)

	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_usb_devices_plugged", map[string]string{"type": "storage"}).Value)
	assert.Equal(t, 0.0, findSample(t, samples, "asus_router_usb_devices_plugged", map[string]string{"type": "printer"}).Value)
}

func TestExtractDualWan(t *testing.T) {
	result, err := extract.Extract(fullBundle(), nil)
	require.NoError(t, err)
	samples := result.Samples

	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_dualwan_enabled", nil).Value)
	assert.Equal(t, 0.0, findSample(t, samples, "asus_router_wan_active_unit", nil).Value)
	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_wan_enabled", map[string]string{"unit": "0"}).Value)
	assert.Equal(t, 0.0, findSample(t, samples, "asus_router_wan_enabled", map[string]string{"unit": "1"}).Value)

	// wans_dualwan = "wan usb" → unit0=wan, unit1=usb 各自 one-hot
	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_dualwan_mode", map[string]string{"unit": "0", "mode": "wan"}).Value)
	assert.Equal(t, 0.0, findSample(t, samples, "asus_router_dualwan_mode", map[string]string{"unit": "0", "mode": "usb"}).Value)
	assert.Equal(t, 1.0, findSample(t, samples, "asus_router_dualwan_mode", map[string]string{"unit": "1", "mode": "usb"}).Value)
}

// 首周期没有基线，CPU 百分比必须是 NaN 而不是 0
func TestExtractCPUPercentFirstCycleNaN(t *testing.T) {
	result, err := extract.Extract(fullBundle(), nil)
	require.NoError(t, err)

	pct := findSample(t, result.Samples, "asus_router_cpu_usage_percent", map[string]string{"cpu_id": "1"})
	assert.True(t, math.IsNaN(pct.Value))

	// 基线已产出，供下一周期差分
	require.Len(t, result.Baseline, 2)
	assert.Equal(t, model.CPUStat{Usage: 1000, Total: 10000}, result.Baseline["1"])
}

func TestExtractCPUPercentDelta(t *testing.T) {
	first, err := extract.Extract(fullBundle(), nil)
	require.NoError(t, err)

	second := fullBundle()
	// cpu1: Δusage=500, Δtotal=1000 → 50%
	second.Responses[extract.SectionCPUUsage] = []byte(
		`"cpu_usage":{"cpu1_usage": "1500", "cpu1_total": "11000", "cpu2_usage": "600", "cpu2_total": "11000"}`)

	result, err := extract.Extract(second, first.Baseline)
	require.NoError(t, err)

	pct1 := findSample(t, result.Samples, "asus_router_cpu_usage_percent", map[string]string{"cpu_id": "1"})
	assert.InDelta(t, 50.0, pct1.Value, 0.001)
	pct2 := findSample(t, result.Samples, "asus_router_cpu_usage_percent", map[string]string{"cpu_id": "2"})
	assert.InDelta(t, 10.0, pct2.Value, 0.001)
}

// 计数器回绕（设备重启）时差分钳到 0，百分比输出 NaN 而不是负值
func TestExtractCPUPercentCounterWrap(t *testing.T) {
	first, err := extract.Extract(fullBundle(), nil)
	require.NoError(t, err)

	second := fullBundle()
	second.Responses[extract.SectionCPUUsage] = []byte(
		`"cpu_usage":{"cpu1_usage": "10", "cpu1_total": "100", "cpu2_usage": "10", "cpu2_total": "100"}`)

	result, err := extract.Extract(second, first.Baseline)
	require.NoError(t, err)

	pct := findSample(t, result.Samples, "asus_router_cpu_usage_percent", map[string]string{"cpu_id": "1"})
	assert.True(t, math.IsNaN(pct.Value))
}

func TestExtractMissingRequiredSection(t *testing.T) {
	for _, section := range extract.RequiredSections {
		t.Run(section, func(t *testing.T) {
			b := fullBundle()
			delete(b.Responses, section)

			_, err := extract.Extract(b, nil)
			var extErr *extract.ExtractionError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, section, extErr.Section)
		})
	}
}

func TestExtractEmptyProductID(t *testing.T) {
	b := fullBundle()
	b.Responses[extract.SectionInfoNvram] = []byte(`{"productid": "", "sw_mode": "1"}`)

	_, err := extract.Extract(b, nil)
	var extErr *extract.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, extract.SectionInfoNvram, extErr.Section)
}

// 可选段缺失或畸形只缩减样本集，不拖垮整个周期
func TestExtractOptionalSectionDegraded(t *testing.T) {
	b := fullBundle()
	delete(b.Responses, extract.SectionCoreTemp)
	b.Responses[extract.SectionNetdev] = []byte(`not json at all`)

	result, err := extract.Extract(b, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Partial, extract.SectionCoreTemp)
	assert.Contains(t, result.Partial, extract.SectionNetdev)

	// 根状态样本仍然齐全
	findSample(t, result.Samples, "asus_router_info", nil)
	findSample(t, result.Samples, "asus_router_uptime_seconds", nil)
	for _, s := range result.Samples {
		assert.NotEqual(t, "asus_router_cpu_temperature_celsius", s.Name)
	}
}

// dualwan 依赖 get_wan_unit，缺了整段跳过
func TestExtractDualWanSkippedWithoutWanUnit(t *testing.T) {
	b := fullBundle()
	delete(b.Responses, extract.SectionWanUnit)

	result, err := extract.Extract(b, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Partial, extract.SectionWanUnit)
	for _, s := range result.Samples {
		assert.NotEqual(t, "asus_router_dualwan_enabled", s.Name)
	}
}

// 产出顺序确定：同一输入两次提取得到同序样本（diff 友好，也便于缓存比对）
func TestExtractDeterministicOrder(t *testing.T) {
	a, err := extract.Extract(fullBundle(), nil)
	require.NoError(t, err)
	b, err := extract.Extract(fullBundle(), nil)
	require.NoError(t, err)

	require.Equal(t, len(a.Samples), len(b.Samples))
	for i := range a.Samples {
		assert.Equal(t, a.Samples[i].Name, b.Samples[i].Name, "index %d", i)
		assert.Equal(t, a.Samples[i].Labels, b.Samples[i].Labels, "index %d", i)
	}
}
