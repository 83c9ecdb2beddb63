package hardware

import (
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/keithehenry/MSP430/internal/errors"
	"github.com/keithehenry/MSP430/internal/logger"
)

// tarmConn tarm 打开后的设备句柄
type tarmConn interface {
	io.ReadWriteCloser
	Flush() error
}

// openTarmConn 打开设备，测试时替换
var openTarmConn = func(c *serial.Config) (tarmConn, error) {
	return serial.OpenPort(c)
}

// tarmPort 基于 tarm/serial 的串口
//
// tarm 的读超时和波特率只能在打开时设置（POSIX 下精度为100ms），
// 修改任一参数都需要重新打开设备。重新打开可能与另一个goroutine的 Close 并发，
// conn 和 config 由 mu 保护；Read/Write 在锁外进行，避免阻塞 Close。
type tarmPort struct {
	mu     sync.Mutex
	config *serial.Config
	conn   tarmConn
	closed bool
	logger *zap.Logger
}

func openTarm(cfg *SerialConfig) (Port, error) {
	p, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	if cfg.ReadTimeout <= 0 {
		return nil, errors.New(errors.ErrInvalidParam, "tarm 驱动需要大于0的读超时")
	}

	// 解析校验位
	parity := serial.ParityNone
	switch p {
	case parityOdd:
		parity = serial.ParityOdd
	case parityEven:
		parity = serial.ParityEven
	}

	stopBits := serial.Stop1
	if cfg.StopBits == 2 {
		stopBits = serial.Stop2
	}

	// 配置串口
	config := &serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        byte(cfg.DataBits),
		Parity:      parity,
		StopBits:    stopBits,
		ReadTimeout: cfg.ReadTimeout,
	}

	// 打开串口
	conn, err := openTarmConn(config)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSerialPortOpen, "%s", cfg.Port)
	}

	return &tarmPort{
		config: config,
		conn:   conn,
		logger: logger.WithModule("serial"),
	}, nil
}

// reopen 用新参数重新打开设备
func (t *tarmPort) reopen(config *serial.Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.Newf(errors.ErrSerialPortConfig, "%s: 串口已关闭", config.Name)
	}

	if err := t.conn.Close(); err != nil {
		t.logger.Warn("关闭串口失败", zap.String("port", t.config.Name), zap.Error(err))
	}

	conn, err := openTarmConn(config)
	if err != nil {
		t.closed = true
		return errors.Wrapf(err, errors.ErrSerialPortConfig, "%s: 重新打开失败", config.Name)
	}

	t.conn = conn
	t.config = config
	t.logger.Debug("串口已重新打开",
		zap.String("port", config.Name),
		zap.Int("baud_rate", config.Baud),
		zap.Duration("read_timeout", config.ReadTimeout))
	return nil
}

// current 当前句柄和参数的快照
func (t *tarmPort) current() (tarmConn, serial.Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn, *t.config
}

func (t *tarmPort) Read(b []byte) (int, error) {
	conn, config := t.current()
	n, err := conn.Read(b)
	// tarm 在读超时到期且无数据时返回 io.EOF
	if n == 0 && err == io.EOF {
		return 0, nil
	}
	if n > 0 {
		logger.LogSerialBytes("rx", config.Name, b[:n])
	}
	return n, err
}

func (t *tarmPort) Write(b []byte) (int, error) {
	conn, config := t.current()
	n, err := conn.Write(b)
	if n > 0 {
		logger.LogSerialBytes("tx", config.Name, b[:n])
	}
	return n, err
}

func (t *tarmPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *tarmPort) SetReadTimeout(timeout time.Duration) error {
	_, current := t.current()
	if timeout == current.ReadTimeout {
		return nil
	}
	if timeout <= 0 {
		return errors.New(errors.ErrNotImplemented, "tarm 驱动不支持非阻塞读取")
	}

	current.ReadTimeout = timeout
	return t.reopen(&current)
}

func (t *tarmPort) ResetInputBuffer() error {
	conn, _ := t.current()
	return conn.Flush()
}

func (t *tarmPort) SetBaudRate(baud int) error {
	_, current := t.current()
	if baud == current.Baud {
		return nil
	}

	current.Baud = baud
	return t.reopen(&current)
}

func (t *tarmPort) Name() string {
	_, current := t.current()
	return current.Name
}
