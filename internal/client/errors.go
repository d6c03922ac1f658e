package client

import "fmt"

// AuthError 认证失败（登录被拒 / token 过期 / 设备要求验证码）。
// 调度侧收到后允许且仅允许一次重新登录重试。
type AuthError struct {
	// Status 设备返回的 error_status 原始值（登录接口失败时可能为空）
	Status string
}

func (e *AuthError) Error() string {
	if e.Status == "" {
		return "router authentication failed"
	}
	return fmt.Sprintf("router authentication failed: error_status=%s", e.Status)
}

// TransportError 网络层失败（连接拒绝/超时/DNS）。不触发重新登录，仅退避。
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeviceError 设备返回了错误状态码或无法读取的响应体
type DeviceError struct {
	Endpoint   string
	StatusCode int
	Reason     string
}

func (e *DeviceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("device error on %s: HTTP %d (%s)", e.Endpoint, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("device error on %s: %s", e.Endpoint, e.Reason)
}
