package config

import (
	"fmt"
	"strings"

	"github.com/keithehenry/MSP430/internal/errors"
)

// Validate 检查配置是否合法，不修改配置
func Validate(c *Config) error {
	var problems []string
	fail := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	// 串口
	s := c.Serial
	switch strings.ToLower(s.Driver) {
	case "bugst", "tarm":
	default:
		fail("serial.driver %q 不支持（可选 bugst, tarm）", s.Driver)
	}
	if s.Port == "" {
		fail("serial.port 不能为空")
	}
	if s.BaudRate <= 0 {
		fail("serial.baud_rate 必须大于0")
	}
	if s.RunBaudRate < 0 {
		fail("serial.run_baud_rate 不能为负数")
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		fail("serial.data_bits %d 超出范围 5-8", s.DataBits)
	}
	if s.StopBits != 1 && s.StopBits != 2 {
		fail("serial.stop_bits %d 只能是 1 或 2", s.StopBits)
	}
	switch strings.ToUpper(s.Parity) {
	case "", "N", "NONE", "O", "ODD", "E", "EVEN":
	default:
		fail("serial.parity %q 不支持", s.Parity)
	}
	if s.ReadTimeout < 0 {
		fail("serial.read_timeout 不能为负数")
	}
	if strings.EqualFold(s.Driver, "tarm") && s.ReadTimeout == 0 {
		fail("tarm 驱动不支持 serial.read_timeout=0（无法非阻塞读取）")
	}

	// 解码
	switch c.Decoder.Mode {
	case "raw", "rolling":
	default:
		fail("decoder.mode %q 不支持（可选 raw, rolling）", c.Decoder.Mode)
	}
	if c.Decoder.Calibration.Divisor == 0 {
		fail("decoder.calibration.divisor 不能为0")
	}

	// 日志
	switch c.Log.Output {
	case "stdout", "stderr", "file", "both":
	default:
		fail("log.output %q 不支持（可选 stdout, stderr, file, both）", c.Log.Output)
	}

	if len(problems) > 0 {
		return errors.New(errors.ErrConfigValidate, problems...)
	}
	return nil
}
