package instrument

import (
	"fmt"

	"github.com/keithehenry/MSP430/internal/config"
	"github.com/keithehenry/MSP430/internal/errors"
)

// 解码模式
const (
	ModeRaw     = "raw"
	ModeRolling = "rolling"
)

// SampleKind 采样类型
type SampleKind int

const (
	// KindRawByte 单个字节，无历史
	KindRawByte SampleKind = iota
	// KindRollingWord 最近两个字节拼成的16位字（高字节在前）
	KindRollingWord
)

// Sample 一次解码结果
type Sample struct {
	Kind  SampleKind
	Raw   byte
	Word  uint16
	TempF int
	TempC int
}

// String 控制台显示格式：0x5 或 0x276 0.00 F -17.00 C
func (s Sample) String() string {
	if s.Kind == KindRawByte {
		return fmt.Sprintf("%#x", s.Raw)
	}
	return fmt.Sprintf("%#x %.2f F %.2f C", s.Word, float64(s.TempF), float64(s.TempC))
}

// State 解码器跨读取保留的状态，由读取循环持有
type State struct {
	Word uint16
}

// Push 把新字节移入滚动字：旧的高字节被挤出，低字节上移
func (s *State) Push(b byte) uint16 {
	// uint16 左移8位即丢弃旧高字节，等价于 (word & 0xFF) << 8
	s.Word = s.Word<<8 | uint16(b)
	return s.Word
}

// Calibration 传感器的线性校准（经验常数，与固件配对）
type Calibration struct {
	FOffset int
	FScale  int
	COffset int
	CScale  int
	Divisor int
	// MaxF 华氏度达到或超过该值的读数被丢弃
	MaxF int
}

// DefaultCalibration MSP430 内部温度传感器的默认校准
func DefaultCalibration() Calibration {
	return Calibration{
		FOffset: 630,
		FScale:  761,
		COffset: 673,
		CScale:  423,
		Divisor: 1024,
		MaxF:    140,
	}
}

// CalibrationFromConfig 从配置构造校准常数
func CalibrationFromConfig(c config.CalibrationConfig) Calibration {
	return Calibration{
		FOffset: c.FOffset,
		FScale:  c.FScale,
		COffset: c.COffset,
		CScale:  c.CScale,
		Divisor: c.Divisor,
		MaxF:    c.MaxF,
	}
}

// Fahrenheit 整数截断除法，与固件的定点运算一致
func (c Calibration) Fahrenheit(word uint16) int {
	return (int(word) - c.FOffset) * c.FScale / c.Divisor
}

// Celsius 整数截断除法，与固件的定点运算一致
func (c Calibration) Celsius(word uint16) int {
	return (int(word) - c.COffset) * c.CScale / c.Divisor
}

// Strategy 字节解码策略
type Strategy interface {
	Name() string
	// Decode 处理一个字节。第二个返回值为 false 表示不输出该采样。
	Decode(b byte, state *State) (Sample, bool)
}

// RawEcho 原样输出每个字节
type RawEcho struct{}

func (RawEcho) Name() string { return ModeRaw }

func (RawEcho) Decode(b byte, _ *State) (Sample, bool) {
	return Sample{Kind: KindRawByte, Raw: b}, true
}

// RollingWord 两字节滚动字 + 温度换算，丢弃 tempF >= MaxF 的读数
type RollingWord struct {
	Calibration Calibration
}

func (RollingWord) Name() string { return ModeRolling }

func (r RollingWord) Decode(b byte, state *State) (Sample, bool) {
	word := state.Push(b)
	s := Sample{
		Kind:  KindRollingWord,
		Raw:   b,
		Word:  word,
		TempF: r.Calibration.Fahrenheit(word),
		TempC: r.Calibration.Celsius(word),
	}
	return s, s.TempF < r.Calibration.MaxF
}

// NewStrategy 按模式名创建解码策略
func NewStrategy(mode string, cal Calibration) (Strategy, error) {
	switch mode {
	case ModeRaw:
		return RawEcho{}, nil
	case ModeRolling:
		if cal.Divisor == 0 {
			return nil, errors.New(errors.ErrInvalidParam, "校准除数不能为0")
		}
		return RollingWord{Calibration: cal}, nil
	default:
		return nil, errors.Newf(errors.ErrInvalidParam, "未知的解码模式 %q", mode)
	}
}
