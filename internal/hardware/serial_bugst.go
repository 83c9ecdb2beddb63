package hardware

import (
	stderrors "errors"
	"time"

	"go.bug.st/serial"

	"github.com/keithehenry/MSP430/internal/errors"
	"github.com/keithehenry/MSP430/internal/logger"
)

// bugstPort 基于 go.bug.st/serial 的串口，支持逐次设置读超时和不关闭连接切换波特率
type bugstPort struct {
	port serial.Port
	name string
	mode serial.Mode
}

func openBugst(cfg *SerialConfig) (Port, error) {
	p, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}

	mode := serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch p {
	case parityOdd:
		mode.Parity = serial.OddParity
	case parityEven:
		mode.Parity = serial.EvenParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	sp, err := serial.Open(cfg.Port, &mode)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSerialPortOpen, "%s%s", cfg.Port, describePortError(err))
	}

	if err := sp.SetReadTimeout(cfg.ReadTimeout); err != nil {
		sp.Close()
		return nil, errors.Wrapf(err, errors.ErrSerialPortOpen, "%s: 设置读超时失败", cfg.Port)
	}

	return &bugstPort{port: sp, name: cfg.Port, mode: mode}, nil
}

// describePortError 把驱动错误码翻译成操作员能看懂的原因
func describePortError(err error) string {
	var portErr *serial.PortError
	if !stderrors.As(err, &portErr) {
		return ""
	}
	switch portErr.Code() {
	case serial.PortNotFound:
		return " (设备不存在)"
	case serial.PortBusy:
		return " (设备被占用)"
	case serial.PermissionDenied:
		return " (权限不足)"
	case serial.InvalidSpeed:
		return " (不支持的波特率)"
	default:
		return ""
	}
}

func (p *bugstPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n > 0 {
		logger.LogSerialBytes("rx", p.name, b[:n])
	}
	return n, err
}

func (p *bugstPort) Write(b []byte) (int, error) {
	n, err := p.port.Write(b)
	if n > 0 {
		logger.LogSerialBytes("tx", p.name, b[:n])
	}
	return n, err
}

func (p *bugstPort) Close() error {
	return p.port.Close()
}

func (p *bugstPort) SetReadTimeout(timeout time.Duration) error {
	return p.port.SetReadTimeout(timeout)
}

func (p *bugstPort) ResetInputBuffer() error {
	return p.port.ResetInputBuffer()
}

func (p *bugstPort) SetBaudRate(baud int) error {
	mode := p.mode
	mode.BaudRate = baud
	if err := p.port.SetMode(&mode); err != nil {
		return err
	}
	p.mode = mode
	return nil
}

func (p *bugstPort) Name() string {
	return p.name
}
