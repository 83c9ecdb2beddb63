// Package instrument 仪器数据流读取：持有串口连接，发送操作员输入的字节，
// 按解码策略读取并解码设备发来的字节。
package instrument

import (
	"time"

	"go.uber.org/zap"

	"github.com/keithehenry/MSP430/internal/config"
	"github.com/keithehenry/MSP430/internal/errors"
	"github.com/keithehenry/MSP430/internal/hardware"
	"github.com/keithehenry/MSP430/internal/logger"
)

// Options 连接建立后的初始化选项
type Options struct {
	// RunBaudRate 打开后切换到的波特率，0表示保持打开时的波特率
	RunBaudRate int
	// FlushOnOpen 打开后丢弃一次驱动缓冲区中的旧字节
	FlushOnOpen bool
	// ReadTimeout 打开串口时使用的读超时
	ReadTimeout time.Duration
}

// OptionsFromConfig 从串口配置构造选项
func OptionsFromConfig(c config.SerialConfig) Options {
	return Options{
		RunBaudRate: c.RunBaudRate,
		FlushOnOpen: c.FlushOnOpen,
		ReadTimeout: c.ReadTimeout,
	}
}

// Reader 独占一个串口连接的读取器，只在单个goroutine中使用
type Reader struct {
	port    hardware.Port
	timeout time.Duration
	buf     [1]byte
	logger  *zap.Logger
}

// Open 打开串口并完成初始化。设备无法打开时返回 ConnectionError（ErrSerialPortOpen），不重试。
func Open(c config.SerialConfig) (*Reader, error) {
	port, err := hardware.Open(hardware.FromConfig(c))
	if err != nil {
		return nil, err
	}

	r, err := NewReader(port, OptionsFromConfig(c))
	if err != nil {
		port.Close()
		return nil, err
	}
	return r, nil
}

// NewReader 接管已打开的串口：按需切换波特率并清空接收缓冲区
func NewReader(port hardware.Port, opts Options) (*Reader, error) {
	r := &Reader{
		port:    port,
		timeout: opts.ReadTimeout,
		logger:  logger.WithModule("instrument").With(zap.String("port", port.Name())),
	}

	if opts.RunBaudRate > 0 {
		if err := port.SetBaudRate(opts.RunBaudRate); err != nil {
			return nil, errors.Wrapf(err, errors.ErrSerialPortConfig, "%s: 切换波特率到 %d", port.Name(), opts.RunBaudRate)
		}
		r.logger.Info("波特率已切换", zap.Int("baud_rate", opts.RunBaudRate))
	}

	if opts.FlushOnOpen {
		if err := port.ResetInputBuffer(); err != nil {
			return nil, errors.Wrapf(err, errors.ErrSerialPortConfig, "%s: 清空接收缓冲区", port.Name())
		}
		r.logger.Debug("已丢弃接收缓冲区中的旧数据")
	}

	return r, nil
}

// Port 底层串口
func (r *Reader) Port() hardware.Port {
	return r.port
}

// Send 按顺序写出字节，返回写出的字节数
func (r *Reader) Send(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	n, err := r.port.Write(data)
	if err != nil {
		return n, errors.Wrapf(err, errors.ErrSerialPortWrite, "%s", r.port.Name())
	}
	r.logger.Debug("已发送", zap.Int("bytes", n))
	return n, nil
}

// SendHex 解析十六进制字符串并发送。空字符串不发送，返回0。
// 格式错误返回 FormatError（ErrHexFormat），此时不写任何字节。
func (r *Reader) SendHex(s string) (int, error) {
	data, err := ParseHex(s)
	if err != nil {
		return 0, err
	}
	return r.Send(data)
}

// ReadDecode 最多等待 timeout 读取一个字节并解码。
// 超时没有数据不是错误：返回 ok=false。解码器过滤掉的读数同样返回 ok=false。
func (r *Reader) ReadDecode(timeout time.Duration, strategy Strategy, state *State) (Sample, bool, error) {
	if timeout != r.timeout {
		if err := r.port.SetReadTimeout(timeout); err != nil {
			return Sample{}, false, errors.Wrapf(err, errors.ErrSerialPortConfig, "%s: 设置读超时 %s", r.port.Name(), timeout)
		}
		r.timeout = timeout
	}

	n, err := r.port.Read(r.buf[:])
	if n == 0 {
		if err != nil {
			return Sample{}, false, errors.Wrapf(err, errors.ErrSerialPortRead, "%s", r.port.Name())
		}
		return Sample{}, false, nil
	}

	sample, ok := strategy.Decode(r.buf[0], state)
	if !ok {
		r.logger.Debug("读数超出范围，已丢弃",
			zap.String("word", sample.String()),
			zap.Int("temp_f", sample.TempF))
	}
	return sample, ok, nil
}

// Close 关闭串口
func (r *Reader) Close() error {
	if err := r.port.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrSerialPortClose, "%s", r.port.Name())
	}
	r.logger.Info("串口已关闭")
	return nil
}
