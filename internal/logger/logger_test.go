package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keithehenry/MSP430/internal/config"
	"github.com/keithehenry/MSP430/internal/errors"
)

func fileLogConfig(dir, level string, modules map[string]string) *config.LogConfig {
	return &config.LogConfig{
		Level:  level,
		Format: "json",
		Output: "file",
		File: config.LogFileConfig{
			Path:       dir,
			Filename:   "tempmon.log",
			MaxSize:    1,
			MaxAge:     1,
			MaxBackups: 1,
		},
		Modules: modules,
	}
}

func readLog(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, Sync())
	data, err := os.ReadFile(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

func TestGetLogger_Uninitialized(t *testing.T) {
	mu.Lock()
	logger, moduleLoggers = nil, nil
	mu.Unlock()

	assert.NotNil(t, GetLogger())
	assert.NotPanics(t, func() { GetLogger().Info("noop") })
	assert.NotPanics(t, func() { LogSerialBytes("rx", "/dev/ttyACM0", []byte{0x01}) })
}

func TestInit_FileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.LogConfig{
		Level:  "debug",
		Format: "json",
		Output: "file",
		File: config.LogFileConfig{
			Path:       dir,
			Filename:   "tempmon.log",
			MaxSize:    1,
			MaxAge:     1,
			MaxBackups: 1,
		},
		Modules: map[string]string{"serial": "warn"},
	}
	require.NoError(t, Init(cfg))
	t.Cleanup(Cleanup)

	assert.Equal(t, zapcore.DebugLevel, Level())

	GetLogger().Info("port opened", zap.String("port", "/dev/ttyACM0"))
	GetLogger().Error("read failed", zap.String("port", "/dev/ttyACM0"))
	// serial模块级别为warn，debug日志不应写入
	LogSerialBytes("rx", "/dev/ttyACM0", []byte{0x02, 0x76})
	require.NoError(t, Sync())

	main, err := os.ReadFile(filepath.Join(dir, "tempmon.log"))
	require.NoError(t, err)
	assert.Contains(t, string(main), "port opened")
	assert.Contains(t, string(main), "read failed")
	assert.NotContains(t, string(main), "serial_bytes")

	errLog, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "read failed")
	assert.NotContains(t, string(errLog), "port opened")
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init(&config.LogConfig{Level: "info", Output: "stderr"}))
	t.Cleanup(Cleanup)

	assert.Equal(t, zapcore.InfoLevel, Level())
	SetLevel("error")
	assert.Equal(t, zapcore.ErrorLevel, Level())
	assert.False(t, GetLogger().Core().Enabled(zapcore.WarnLevel))
	SetLevel("bogus")
	assert.Equal(t, zapcore.InfoLevel, Level())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"fatal": zapcore.FatalLevel,
		"":      zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestGetModuleLogger_Fallback(t *testing.T) {
	require.NoError(t, Init(&config.LogConfig{Level: "info", Output: "stderr"}))
	t.Cleanup(Cleanup)

	l := GetModuleLogger("console")
	require.NotNil(t, l)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestModuleLevel_MoreVerboseThanGlobal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(fileLogConfig(dir, "info", map[string]string{"serial": "debug"})))
	t.Cleanup(Cleanup)

	// 全局为info，serial模块为debug，字节跟踪仍应写入
	LogSerialBytes("rx", "/dev/ttyACM0", []byte{0x02, 0x76})
	GetLogger().Debug("global debug")

	main := readLog(t, dir, "tempmon.log")
	assert.Contains(t, main, "serial_bytes")
	assert.Contains(t, main, "02 76")
	assert.NotContains(t, main, "global debug")
	assert.Empty(t, readLog(t, dir, "error.log"))
}

func TestModuleLevel_IndependentOfSetLevel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(fileLogConfig(dir, "debug", map[string]string{"serial": "debug"})))
	t.Cleanup(Cleanup)

	SetLevel("error")
	LogSerialBytes("tx", "/dev/ttyACM0", []byte{0x0a})
	GetLogger().Info("global info")

	main := readLog(t, dir, "tempmon.log")
	assert.Contains(t, main, "serial_bytes")
	assert.NotContains(t, main, "global info")
}

func TestLogError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(fileLogConfig(dir, "debug", nil)))
	t.Cleanup(Cleanup)

	LogError(GetLogger(), errors.Newf(errors.ErrSerialPortOpen, "%s: 设备不存在", "/dev/ttyACM0"), "启动失败")

	errLog := readLog(t, dir, "error.log")
	assert.Contains(t, errLog, "启动失败")
	assert.Contains(t, errLog, `"code":3000`)
	assert.Contains(t, errLog, `"stack":`)

	SetLevel("info")
	LogError(GetLogger(), errors.New(errors.ErrSerialPortRead), "读取失败")
	errLog = readLog(t, dir, "error.log")
	assert.Contains(t, errLog, "读取失败")
	assert.Equal(t, 1, strings.Count(errLog, `"stack":`), "stack only at debug level")
}
