package client_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpikus/asus-router-prometheus-exporter/internal/client"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/config"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/logger"
)

var loggerOnce sync.Once

func initTestLogger(t *testing.T) {
	t.Helper()
	loggerOnce.Do(func() {
		err := logger.Init(config.ZapLogConfig{
			Level: "debug", Format: "console", Path: t.TempDir(),
			MaxSize: 10, MaxBackup: 1, MaxAge: 1,
		})
		require.NoError(t, err)
	})
}

// fakeRouter 模拟固件端行为的测试服务器
type fakeRouter struct {
	t *testing.T

	logins     atomic.Int64
	loginDelay time.Duration
	rejectAuth bool // login.cgi 返回 401

	mu       sync.Mutex
	fetchFns []func(w http.ResponseWriter) // 按调用次序出队，空了用 lastFn
	lastFn   func(w http.ResponseWriter)
}

func (f *fakeRouter) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login.cgi", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		if f.loginDelay > 0 {
			time.Sleep(f.loginDelay)
		}
		assert.Equal(f.t, "asusrouter-Android-DUTUtil-1.0.0.245", r.Header.Get("User-Agent"))
		assert.NoError(f.t, r.ParseForm())
		want := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
		if f.rejectAuth || r.PostFormValue("login_authorization") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "asus_token", Value: "tok-1"})
		_, _ = w.Write([]byte(`{"asus_token":"tok-1"}`))
	})
	mux.HandleFunc("/appGet.cgi", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fn := f.lastFn
		if len(f.fetchFns) > 0 {
			fn = f.fetchFns[0]
			f.fetchFns = f.fetchFns[1:]
		}
		f.mu.Unlock()
		fn(w)
	})
	return mux
}

func respondBody(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) { _, _ = w.Write([]byte(body)) }
}

func respondStatus(code int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) { w.WriteHeader(code) }
}

func newTestClient(t *testing.T, f *fakeRouter, opts ...client.Option) *client.Client {
	t.Helper()
	initTestLogger(t)

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := client.New(config.RouterConfig{
		Address:        srv.URL,
		Username:       "admin",
		Password:       "secret",
		RequestTimeout: 2 * time.Second,
	}, opts...)
	require.NoError(t, err)
	return c
}

func TestFetchLogsInLazilyAndReusesSession(t *testing.T) {
	f := &fakeRouter{t: t, lastFn: respondBody(`{"uptime": "ok"}`)}
	c := newTestClient(t, f)

	// New 不触发登录
	assert.Equal(t, int64(0), f.logins.Load())
	_, ageOK := c.SessionAge(time.Now())
	assert.False(t, ageOK)

	resp, err := c.Fetch(context.Background(), client.EndpointUptime)
	require.NoError(t, err)
	assert.Equal(t, "uptime", resp.Endpoint)
	assert.Equal(t, `{"uptime": "ok"}`, string(resp.Body))

	_, err = c.Fetch(context.Background(), client.EndpointCPUUsage)
	require.NoError(t, err)

	// 两次抓取共享一次登录
	assert.Equal(t, int64(1), f.logins.Load())
	age, ageOK := c.SessionAge(time.Now())
	assert.True(t, ageOK)
	assert.GreaterOrEqual(t, age, time.Duration(0))
}

// error_status 应答视为会话被拒：作废会话、重登一次、重试成功
func TestFetchReauthenticatesOnceOnAuthError(t *testing.T) {
	f := &fakeRouter{
		t: t,
		fetchFns: []func(w http.ResponseWriter){
			respondBody(`{"error_status":"2"}`),
		},
		lastFn: respondBody(`{"uptime": "ok"}`),
	}
	c := newTestClient(t, f)

	resp, err := c.Fetch(context.Background(), client.EndpointUptime)
	require.NoError(t, err)
	assert.Equal(t, `{"uptime": "ok"}`, string(resp.Body))
	assert.Equal(t, int64(2), f.logins.Load())
}

// 重登后仍被拒 → 错误原样上浮，不进入第三次登录
func TestFetchAuthErrorNotRetriedTwice(t *testing.T) {
	f := &fakeRouter{t: t, lastFn: respondBody(`{"error_status":"2"}`)}
	c := newTestClient(t, f)

	_, err := c.Fetch(context.Background(), client.EndpointUptime)
	var authErr *client.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "2", authErr.Status)
	assert.Equal(t, int64(2), f.logins.Load())
}

func TestLoginRejected(t *testing.T) {
	var results []bool
	f := &fakeRouter{t: t, rejectAuth: true, lastFn: respondBody(`{}`)}
	c := newTestClient(t, f, client.WithLoginObserver(func(success bool) {
		results = append(results, success)
	}))

	_, err := c.Fetch(context.Background(), client.EndpointUptime)
	var authErr *client.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, []bool{false}, results)
}

func TestTransportErrorDoesNotRelogin(t *testing.T) {
	initTestLogger(t)

	// 先拿到地址再关掉服务器，连接必然失败
	srv := httptest.NewServer(http.NewServeMux())
	addr := srv.URL
	srv.Close()

	c, err := client.New(config.RouterConfig{
		Address:        addr,
		Username:       "admin",
		Password:       "secret",
		RequestTimeout: time.Second,
	})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), client.EndpointUptime)
	var transErr *client.TransportError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, "login", transErr.Endpoint)
	assert.Error(t, transErr.Unwrap())
}

func TestDeviceErrorOnServerFailure(t *testing.T) {
	f := &fakeRouter{t: t, lastFn: respondStatus(http.StatusInternalServerError)}
	c := newTestClient(t, f)

	_, err := c.Fetch(context.Background(), client.EndpointUptime)
	var devErr *client.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, http.StatusInternalServerError, devErr.StatusCode)
	assert.Equal(t, "uptime", devErr.Endpoint)
}

func TestLoginObserverReportsSuccess(t *testing.T) {
	var mu sync.Mutex
	var results []bool
	f := &fakeRouter{t: t, lastFn: respondBody(`{}`)}
	c := newTestClient(t, f, client.WithLoginObserver(func(success bool) {
		mu.Lock()
		results = append(results, success)
		mu.Unlock()
	}))

	_, err := c.Fetch(context.Background(), client.EndpointUptime)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true}, results)
}

// 并发抓取期间只允许一个在途登录，等待者复用新会话
func TestConcurrentFetchSingleLogin(t *testing.T) {
	f := &fakeRouter{
		t:          t,
		loginDelay: 50 * time.Millisecond,
		lastFn:     respondBody(`{"uptime": "ok"}`),
	}
	c := newTestClient(t, f)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Fetch(context.Background(), client.EndpointUptime)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d", i)
	}
	assert.Equal(t, int64(1), f.logins.Load())
}

func TestEndpointSpecs(t *testing.T) {
	spec := client.Hook("cpu_usage", "")
	assert.Equal(t, "/appGet.cgi", spec.Path)
	assert.Equal(t, "cpu_usage()", spec.Query.Get("hook"))

	assert.Equal(t, "netdev(appobj)", client.EndpointNetdev.Query.Get("hook"))
	assert.Equal(t, "/ajax_coretmp.asp", client.EndpointCoreTemp.Path)

	nv := client.Nvram("a", "b")
	assert.Equal(t, "nvram_get(a);nvram_get(b)", nv.Query.Get("hook"))

	assert.Equal(t, "info_nvram", client.EndpointInfoNvram.Name)
	assert.Contains(t, client.EndpointInfoNvram.Query.Get("hook"), "nvram_get(productid)")
	assert.Contains(t, client.EndpointInfoNvram.Query.Get("hook"), "nvram_get(wans_dualwan)")
}
