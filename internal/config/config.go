package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/keithehenry/MSP430/internal/errors"
)

// EnvPrefix 环境变量前缀，例如 MSP430_SERIAL_PORT
const EnvPrefix = "MSP430"

// Profile 工具配置档（决定默认值）
type Profile string

const (
	// ProfileHexConsole 交互式十六进制收发控制台
	ProfileHexConsole Profile = "hexconsole"
	// ProfileTempMonitor 温度传感器数据流解码
	ProfileTempMonitor Profile = "tempmon"
)

// Config 全局配置结构体
type Config struct {
	Profile Profile       `mapstructure:"-"`
	Serial  SerialConfig  `mapstructure:"serial"`
	Decoder DecoderConfig `mapstructure:"decoder"`
	Console ConsoleConfig `mapstructure:"console"`
	Log     LogConfig     `mapstructure:"log"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Driver      string        `mapstructure:"driver"` // bugst 或 tarm
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	RunBaudRate int           `mapstructure:"run_baud_rate"` // 打开后切换到的波特率，0表示不切换
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	FlushOnOpen bool          `mapstructure:"flush_on_open"`
}

// DecoderConfig 解码配置
type DecoderConfig struct {
	Mode        string            `mapstructure:"mode"` // raw 或 rolling
	Calibration CalibrationConfig `mapstructure:"calibration"`
}

// CalibrationConfig 温度换算校准常数（经验值）
type CalibrationConfig struct {
	FOffset int `mapstructure:"f_offset"`
	FScale  int `mapstructure:"f_scale"`
	COffset int `mapstructure:"c_offset"`
	CScale  int `mapstructure:"c_scale"`
	Divisor int `mapstructure:"divisor"`
	MaxF    int `mapstructure:"max_f"`
}

// ConsoleConfig 控制台配置
type ConsoleConfig struct {
	Interactive  bool   `mapstructure:"interactive"`
	Prompt       string `mapstructure:"prompt"`
	PauseOnError bool   `mapstructure:"pause_on_error"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg *Config
	mu  sync.RWMutex
	v   *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string, profile Profile) error {
	nv, c, err := load(configPath, profile)
	if err != nil {
		return err
	}

	mu.Lock()
	v, cfg = nv, c
	mu.Unlock()
	return nil
}

// Load 加载配置但不修改全局实例
func Load(configPath string, profile Profile) (*Config, error) {
	_, c, err := load(configPath, profile)
	return c, err
}

func load(configPath string, profile Profile) (*viper.Viper, *Config, error) {
	nv := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		nv.SetConfigFile(configPath)
	} else {
		nv.SetConfigName(string(profile))
		nv.SetConfigType("yaml")
		nv.AddConfigPath("./config")
		nv.AddConfigPath(".")
	}

	// 设置环境变量前缀
	nv.SetEnvPrefix(EnvPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	// 设置默认值
	setDefaults(nv, profile)

	// 读取配置文件
	if err := nv.ReadInConfig(); err != nil {
		// 未指定路径且配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, nil, errors.Wrapf(err, errors.ErrConfigLoad, "读取配置文件 %q", configPath)
		}
	}

	c := &Config{}
	if err := nv.Unmarshal(c); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrConfigParse, "解析配置")
	}
	c.Profile = profile

	return nv, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper, profile Profile) {
	// 串口默认配置
	v.SetDefault("serial.driver", "bugst")
	v.SetDefault("serial.port", "/dev/ttyACM0")
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.flush_on_open", true)

	// 校准常数
	v.SetDefault("decoder.calibration.f_offset", 630)
	v.SetDefault("decoder.calibration.f_scale", 761)
	v.SetDefault("decoder.calibration.c_offset", 673)
	v.SetDefault("decoder.calibration.c_scale", 423)
	v.SetDefault("decoder.calibration.divisor", 1024)
	v.SetDefault("decoder.calibration.max_f", 140)

	// 控制台默认配置
	v.SetDefault("console.prompt", "Hex byte: ")
	v.SetDefault("console.pause_on_error", false)

	switch profile {
	case ProfileTempMonitor:
		v.SetDefault("serial.baud_rate", 2400)
		v.SetDefault("serial.run_baud_rate", 9600)
		v.SetDefault("serial.read_timeout", "50ms")
		v.SetDefault("decoder.mode", "rolling")
		v.SetDefault("console.interactive", false)
	default:
		v.SetDefault("serial.baud_rate", 4800)
		v.SetDefault("serial.run_baud_rate", 0)
		v.SetDefault("serial.read_timeout", "100ms")
		v.SetDefault("decoder.mode", "raw")
		v.SetDefault("console.interactive", true)
	}

	// 日志默认配置（标准输出留给采样数据）
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", string(profile)+".log")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_age", 7)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.compress", false)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Set 动态设置配置值（命令行参数覆盖）
func Set(key string, value interface{}) error {
	mu.Lock()
	defer mu.Unlock()
	if v == nil {
		return errors.New(errors.ErrConfigMissing, "配置未初始化")
	}

	v.Set(key, value)
	newCfg := &Config{}
	if err := v.Unmarshal(newCfg); err != nil {
		return errors.Wrap(err, errors.ErrConfigParse, "解析配置")
	}
	newCfg.Profile = cfg.Profile
	cfg = newCfg
	return nil
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	mu.RLock()
	wv := v
	mu.RUnlock()
	if wv == nil || wv.ConfigFileUsed() == "" {
		return
	}

	wv.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		newCfg := &Config{}
		if err := wv.Unmarshal(newCfg); err != nil {
			mu.Unlock()
			fmt.Fprintf(os.Stderr, "配置重载失败: %v\n", err)
			return
		}
		newCfg.Profile = cfg.Profile
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
	wv.WatchConfig()
}

// ConfigFileUsed 返回实际使用的配置文件路径
func ConfigFileUsed() string {
	mu.RLock()
	defer mu.RUnlock()
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
