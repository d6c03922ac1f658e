// Package client 实现华硕路由器会话客户端：登录、会话保活、数据抓取。
// 会话由客户端独占持有，登录串行化（同一时刻最多一个在途登录），
// AuthError 触发且仅触发一次重新登录重试，TransportError 不触发重登。
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vpikus/asus-router-prometheus-exporter/pkg/config"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/logger"
)

// defaultUserAgent 固件只认这个 UA，换掉会被 login.cgi 拒绝
const defaultUserAgent = "asusrouter-Android-DUTUtil-1.0.0.245"

// EndpointSpec 描述一次数据抓取（路径 + 查询参数）
type EndpointSpec struct {
	Name  string // 逻辑名（日志/错误上下文用）
	Path  string
	Query url.Values
}

// RawDeviceResponse 单次抓取的原始响应体（设备 schema 形状，交由 extract 解析）
type RawDeviceResponse struct {
	Endpoint string
	Body     []byte
}

// session 仅在持有 c.mu 时创建/置空；token 本体保存在 cookie jar 里
type session struct {
	issuedAt time.Time
}

// Client 路由器会话客户端。并发安全：Fetch 可被多个 goroutine 同时调用，
// 登录通过互斥锁串行化，等待者复用已完成登录的会话而不是各自重登。
type Client struct {
	baseURL  string
	username string
	password string
	timeout  time.Duration

	httpc *http.Client

	mu      sync.Mutex
	session *session

	// loginObserver 每次登录尝试后回调（指标埋点用），可为 nil
	loginObserver func(success bool)
}

// Option 客户端可选配置
type Option func(*Client)

// WithLoginObserver 注册登录结果回调
func WithLoginObserver(fn func(success bool)) Option {
	return func(c *Client) {
		c.loginObserver = fn
	}
}

// New 创建客户端（不触发登录，首次 Fetch 时惰性登录）
func New(cfg config.RouterConfig, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c := &Client{
		baseURL:  cfg.BaseURL(),
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.RequestTimeout,
		httpc: &http.Client{
			Jar: jar,
			// 总超时兜底；单请求超时由 per-request context 控制
			Timeout: cfg.RequestTimeout + 5*time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch 抓取一个端点。会话缺失时先登录；收到 AuthError 时重登一次后重试，
// 第二次仍失败则原样返回错误。
func (c *Client) Fetch(ctx context.Context, spec EndpointSpec) (*RawDeviceResponse, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.fetchOnce(ctx, spec)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return resp, err
	}

	// token 失效：作废本次使用的会话，重登一次后重试。
	// invalidate 带会话比对，其他 goroutine 已重登时这里不再重复作废。
	logger.Warn("session rejected by device, re-authenticating",
		zap.String("endpoint", spec.Name), zap.String("error_status", authErr.Status))
	c.invalidate(sess)
	if _, err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	return c.fetchOnce(ctx, spec)
}

// SessionAge 当前会话年龄；无会话返回 0,false（健康端点展示用）
func (c *Client) SessionAge(now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0, false
	}
	return now.Sub(c.session.issuedAt), true
}

// ensureSession 返回当前有效会话，没有则登录。互斥锁保证单在途登录：
// 登录期间到达的调用方在锁上等待，拿到锁后直接复用新会话。
func (c *Client) ensureSession(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}
	if err := c.loginLocked(ctx); err != nil {
		return nil, err
	}
	return c.session, nil
}

// invalidate 仅当传入会话仍是当前会话时才作废（避免并发下重复重登）
func (c *Client) invalidate(stale *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == stale {
		c.session = nil
	}
}

// loginLocked 执行登录（调用方必须持有 c.mu）。
// POST /login.cgi，login_authorization 为 base64(user:pass)，token 落在 cookie jar。
func (c *Client) loginLocked(ctx context.Context) error {
	var loginOK bool
	defer func() {
		if c.loginObserver != nil {
			c.loginObserver(loginOK)
		}
	}()

	// 丢弃旧 token：换新 jar 而不是逐条清理
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	c.httpc.Jar = jar

	token := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
	form := url.Values{"login_authorization": {token}}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		c.baseURL+"/login.cgi", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransportError{Endpoint: "login", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Endpoint: "login", Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{}
	}
	if resp.StatusCode >= 400 {
		return &DeviceError{Endpoint: "login", StatusCode: resp.StatusCode, Reason: "login rejected"}
	}
	if status, bad := errorStatus(body); bad {
		// TODO: 细分 error_status（2=token过期，10=需要验证码）
		return &AuthError{Status: status}
	}

	c.session = &session{issuedAt: time.Now()}
	loginOK = true
	logger.Info("router login successful",
		zap.String("router", c.baseURL),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// fetchOnce 单次抓取，不做重登
func (c *Client) fetchOnce(ctx context.Context, spec EndpointSpec) (*RawDeviceResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + spec.Path
	if len(spec.Query) > 0 {
		u += "?" + spec.Query.Encode()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", spec.Name, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: spec.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: spec.Name, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{}
	}
	if resp.StatusCode >= 400 {
		return nil, &DeviceError{Endpoint: spec.Name, StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}
	if status, bad := errorStatus(body); bad {
		return nil, &AuthError{Status: status}
	}

	logger.Debug("fetched endpoint",
		zap.String("endpoint", spec.Name), zap.Int("bytes", len(body)))
	return &RawDeviceResponse{Endpoint: spec.Name, Body: body}, nil
}

// errorStatus 设备在 JSON 体里带 error_status 表示会话被拒（非 JSON 响应正常放行）
func errorStatus(body []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return "", false
	}
	raw, ok := probe["error_status"]
	if !ok {
		return "", false
	}
	return strings.Trim(string(raw), `"`), true
}
