package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/keithehenry/MSP430/internal/config"
	"github.com/keithehenry/MSP430/internal/errors"
)

var (
	logger *zap.Logger
	level  = zap.NewAtomicLevel()
	mu     sync.RWMutex

	// 模块日志器
	moduleLoggers map[string]*zap.Logger
	// 文件写入器，Cleanup时关闭
	writers []*lumberjack.Logger
)

// Init 初始化日志系统，可重复调用（后一次覆盖前一次）
func Init(cfg *config.LogConfig) error {
	built, modules, fileWriters, err := build(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	old := writers
	logger, moduleLoggers, writers = built, modules, fileWriters
	mu.Unlock()

	for _, w := range old {
		_ = w.Close()
	}
	return nil
}

// sink 一个输出目标。floor 非零时该输出只接收不低于 floor 的日志（error.log）
type sink struct {
	encoder zapcore.Encoder
	ws      zapcore.WriteSyncer
	floor   *zapcore.Level
}

// newCore 按给定级别为所有输出构造core
func newCore(sinks []sink, enab zapcore.LevelEnabler) zapcore.Core {
	cores := make([]zapcore.Core, 0, len(sinks))
	for _, s := range sinks {
		e := enab
		if s.floor != nil {
			floor := *s.floor
			e = zap.LevelEnablerFunc(func(l zapcore.Level) bool {
				return l >= floor && enab.Enabled(l)
			})
		}
		cores = append(cores, zapcore.NewCore(s.encoder, s.ws, e))
	}
	return zapcore.NewTee(cores...)
}

func build(cfg *config.LogConfig) (*zap.Logger, map[string]*zap.Logger, []*lumberjack.Logger, error) {
	// 解析日志级别
	level.SetLevel(parseLevel(cfg.Level))

	// 创建编码器配置
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// 根据格式选择编码器
	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var (
		sinks       []sink
		fileWriters []*lumberjack.Logger
		console     zapcore.WriteSyncer
	)

	// 控制台输出
	switch cfg.Output {
	case "stdout":
		console = zapcore.Lock(os.Stdout)
	case "stderr", "both", "":
		console = zapcore.Lock(os.Stderr)
	}
	if console != nil {
		sinks = append(sinks, sink{encoder: encoder, ws: console})
	}

	// 文件输出
	if cfg.Output == "file" || cfg.Output == "both" {
		// 确保日志目录存在
		logDir := cfg.File.Path
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("create log dir %s: %w", logDir, err)
		}

		// 创建文件写入器（支持日志轮转）
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, cfg.File.Filename),
			MaxSize:    cfg.File.MaxSize,    // MB
			MaxAge:     cfg.File.MaxAge,     // days
			MaxBackups: cfg.File.MaxBackups, // 保留文件数
			Compress:   cfg.File.Compress,   // 是否压缩
		}
		fileEncoder := zapcore.NewJSONEncoder(withPlainLevel(encoderConfig))
		sinks = append(sinks, sink{encoder: fileEncoder, ws: zapcore.AddSync(fileWriter)})

		// 创建错误日志文件
		errorWriter := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "error.log"),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}
		errorLevel := zapcore.ErrorLevel
		sinks = append(sinks, sink{encoder: fileEncoder, ws: zapcore.AddSync(errorWriter), floor: &errorLevel})

		fileWriters = append(fileWriters, fileWriter, errorWriter)
	}

	built := zap.New(
		newCore(sinks, level),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	// 初始化模块日志器（独立级别，共享输出，不受全局级别限制）
	modules := make(map[string]*zap.Logger)
	for module, levelStr := range cfg.Modules {
		modules[module] = zap.New(
			newCore(sinks, parseLevel(levelStr)),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		).Named(module)
	}

	return built, modules, fileWriters, nil
}

// withPlainLevel 文件中不写颜色控制符
func withPlainLevel(c zapcore.EncoderConfig) zapcore.EncoderConfig {
	c.EncodeLevel = zapcore.LowercaseLevelEncoder
	return c
}

// parseLevel 解析日志级别
func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger 获取日志器
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		// 未初始化时不输出
		return zap.NewNop()
	}
	return logger
}

// GetModuleLogger 获取模块日志器
func GetModuleLogger(module string) *zap.Logger {
	mu.RLock()
	moduleLogger, ok := moduleLoggers[module]
	mu.RUnlock()

	if ok {
		return moduleLogger
	}

	// 如果模块日志器不存在，返回带名称的默认日志器
	return GetLogger().Named(module)
}

// WithModule 创建带有模块名的日志器
func WithModule(module string) *zap.Logger {
	return GetModuleLogger(module)
}

// With 创建带有字段的日志器
func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().With(fields...)
}

// SetLevel 动态设置日志级别
func SetLevel(levelStr string) {
	level.SetLevel(parseLevel(levelStr))
}

// Level 当前日志级别
func Level() zapcore.Level {
	return level.Level()
}

// Sync 同步日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()

	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Cleanup 清理日志资源
func Cleanup() {
	// stderr 不支持 fsync，忽略该错误
	_ = Sync()

	mu.Lock()
	defer mu.Unlock()
	for _, w := range writers {
		if err := w.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
		}
	}
	writers = nil
}

// LogSerialBytes 记录串口收发的原始字节
func LogSerialBytes(direction string, port string, data []byte) {
	GetModuleLogger("serial").Debug("serial_bytes",
		zap.String("direction", direction), // "tx" or "rx"
		zap.String("port", port),
		zap.String("data", fmt.Sprintf("% x", data)),
		zap.Int("len", len(data)),
	)
}

// LogError 记录错误日志，AppError 附带错误码，debug级别时附带调用栈
func LogError(l *zap.Logger, err error, msg string, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if appErr, ok := errors.As(err); ok {
		fields = append(fields, zap.Int("code", int(appErr.Code)))
		if l.Core().Enabled(zapcore.DebugLevel) {
			fields = append(fields, zap.String("stack", appErr.GetStack()))
		}
	}
	l.WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}
