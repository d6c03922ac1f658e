package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	// 	校验Addr格式(必须是 ":port" 或 "ip:port")
	if h.Addr == "" {
		return errors.New("[ERROR] HTTP.Addr cannot be empty")
	}
	// 	用net包解析地址，验证格式合法性
	_, err := net.ResolveTCPAddr("tcp", h.Addr)
	if err != nil {
		return fmt.Errorf("[ERROR] HTTP.Addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}

	return nil
}

// Validate 路由器连接配置校验
func (r *RouterConfig) Validate() error {
	if err := valid.Struct(r); err != nil {
		return err
	}
	// 	校验地址可解析（支持裸主机名/IP，自动补 http:// 前缀）
	u, err := url.Parse(r.BaseURL())
	if err != nil {
		return fmt.Errorf("router.address invalid (expected host, ip or http(s)://host), got %s: %w", r.Address, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("router.address scheme must be http or https, got %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("router.address missing host, got %s", r.Address)
	}
	// 	凭证不能为空白字符串
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("router.username cannot be blank")
	}
	if strings.TrimSpace(r.Password) == "" {
		return errors.New("router.password cannot be blank")
	}
	if r.RequestTimeout < time.Second || r.RequestTimeout > 120*time.Second {
		return fmt.Errorf("router.request_timeout must be between 1s and 120s, got %s", r.RequestTimeout)
	}
	return nil
}

// BaseURL 归一化设备基础URL：无 scheme 时补 http://，去掉尾部斜杠。
// 已带 scheme 的地址原样保留，非 http(s) 的由 Validate 拒绝。
func (r *RouterConfig) BaseURL() string {
	addr := strings.TrimRight(r.Address, "/")
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr
}

// Validate 刷新配置校验
func (f *RefreshConfig) Validate() error {
	if err := valid.Struct(f); err != nil {
		return err
	}
	if f.Interval < time.Second || f.Interval > 3600*time.Second {
		return fmt.Errorf("refresh.interval must be between 1 and 3600 seconds, got %s", f.Interval)
	}
	// 	退避上限必须不小于基础间隔，否则退避序列无意义
	if f.BackoffCeiling < f.BackoffBase {
		return fmt.Errorf("refresh.backoff_ceiling (%s) must be >= refresh.backoff_base (%s)", f.BackoffCeiling, f.BackoffBase)
	}
	// 	陈旧度上限小于刷新间隔时，每次抓取之间就会误报不健康
	if f.StalenessCeiling < f.Interval {
		return fmt.Errorf("refresh.staleness_ceiling (%s) must be >= refresh.interval (%s)", f.StalenessCeiling, f.Interval)
	}
	return nil
}
