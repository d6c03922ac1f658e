package logger_test

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vpikus/asus-router-prometheus-exporter/pkg/config"
	"github.com/vpikus/asus-router-prometheus-exporter/pkg/logger"
)

// mockFatalHook 捕获 fatal 日志（不退出进程）
type mockFatalHook struct {
	called bool
}

func (h *mockFatalHook) Hook(e zapcore.Entry) error {
	if e.Level == zapcore.FatalLevel {
		h.called = true
	}
	return nil
}

func TestLoggerLevels(t *testing.T) {
	cfg := config.ZapLogConfig{
		Level:     "debug",
		Format:    "console",
		Path:      t.TempDir(),
		MaxSize:   10,
		MaxBackup: 1,
		MaxAge:    1,
	}

	if err := logger.Init(cfg); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	// 普通日志
	logger.Debug("debug msg")
	logger.Info("info msg", zap.String("k", "v"))
	logger.Warn("warn msg")
	logger.Error("error msg")

	// Panic 测试
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic, but no panic occurred")
			}
		}()
		logger.Panic("panic msg")
	}()

	// Fatal 测试（WriteThenPanic 替换 os.Exit，可被 recover）
	hook := &mockFatalHook{}
	l := logger.GetLogger().WithOptions(
		zap.Hooks(hook.Hook),
		zap.WithFatalHook(zapcore.WriteThenPanic),
	)
	func() {
		defer func() { _ = recover() }()
		l.Fatal("fatal msg")
	}()

	if !hook.called {
		t.Errorf("fatal hook was not triggered")
	}

	// stdout 在测试环境下可能不可 sync，只容忍这一类错误
	if err := logger.Sync(); err != nil && !strings.Contains(err.Error(), "stdout") {
		t.Errorf("Sync failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
}
