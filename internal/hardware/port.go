package hardware

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keithehenry/MSP430/internal/config"
	"github.com/keithehenry/MSP430/internal/errors"
	"github.com/keithehenry/MSP430/internal/logger"
)

// 驱动名称
const (
	DriverBugst = "bugst"
	DriverTarm  = "tarm"
)

// SerialConfig 串口配置
type SerialConfig struct {
	Driver      string
	Port        string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
}

// FromConfig 从全局配置构造串口配置
func FromConfig(c config.SerialConfig) *SerialConfig {
	return &SerialConfig{
		Driver:      c.Driver,
		Port:        c.Port,
		BaudRate:    c.BaudRate,
		DataBits:    c.DataBits,
		StopBits:    c.StopBits,
		Parity:      c.Parity,
		ReadTimeout: c.ReadTimeout,
	}
}

// parity 归一化的校验位
type parity int

const (
	parityNone parity = iota
	parityOdd
	parityEven
)

// parseParity 解析校验位
func parseParity(s string) (parity, error) {
	switch strings.ToUpper(s) {
	case "", "N", "NONE":
		return parityNone, nil
	case "O", "ODD":
		return parityOdd, nil
	case "E", "EVEN":
		return parityEven, nil
	default:
		return parityNone, errors.Newf(errors.ErrInvalidParam, "不支持的校验位 %q", s)
	}
}

// SerialPortExists 检查串口设备是否存在
func SerialPortExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Open 打开串口。失败时返回 ErrSerialPortOpen（ConnectionError），详情中带设备路径和系统错误。
func Open(cfg *SerialConfig) (Port, error) {
	log := logger.WithModule("serial")

	if cfg.Port == "" {
		return nil, errors.New(errors.ErrSerialPortOpen, "未指定串口设备")
	}

	// Unix设备节点不存在时直接报错，避免驱动返回含糊的错误
	if strings.HasPrefix(cfg.Port, "/dev/") && !SerialPortExists(cfg.Port) {
		log.Error("串口设备不存在", zap.String("port", cfg.Port))
		return nil, errors.Newf(errors.ErrSerialPortOpen, "%s: 设备不存在", cfg.Port)
	}

	var (
		port Port
		err  error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", DriverBugst:
		port, err = openBugst(cfg)
	case DriverTarm:
		port, err = openTarm(cfg)
	default:
		return nil, errors.Newf(errors.ErrInvalidParam, "未知的串口驱动 %q", cfg.Driver)
	}
	if err != nil {
		log.Error("打开串口失败",
			zap.String("port", cfg.Port),
			zap.String("driver", cfg.Driver),
			zap.Error(err))
		return nil, err
	}

	log.Info("串口连接成功",
		zap.String("port", cfg.Port),
		zap.String("driver", cfg.Driver),
		zap.Int("baud_rate", cfg.BaudRate),
		zap.Duration("read_timeout", cfg.ReadTimeout))

	return port, nil
}
