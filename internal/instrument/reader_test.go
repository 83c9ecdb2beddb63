package instrument

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithehenry/MSP430/internal/config"
	"github.com/keithehenry/MSP430/internal/errors"
	"github.com/keithehenry/MSP430/internal/hardware"
)

func newTestReader(t *testing.T, opts Options) (*Reader, *hardware.MockPort) {
	t.Helper()
	port := hardware.NewMockPort("/dev/ttyMOCK0")
	r, err := NewReader(port, opts)
	require.NoError(t, err)
	return r, port
}

func TestNewReader_FlushDiscardsStaleBytesOnce(t *testing.T) {
	port := hardware.NewMockPort("/dev/ttyMOCK0")
	port.Feed(0xde, 0xad)

	r, err := NewReader(port, Options{FlushOnOpen: true, ReadTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1, port.ResetCount)
	assert.Equal(t, 0, port.Pending())

	port.Feed(0x42)
	s, ok, err := r.ReadDecode(50*time.Millisecond, RawEcho{}, &State{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(0x42), s.Raw)
	assert.Equal(t, 1, port.ResetCount)
}

func TestNewReader_NoFlush(t *testing.T) {
	port := hardware.NewMockPort("/dev/ttyMOCK0")
	port.Feed(0x01)

	_, err := NewReader(port, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, port.ResetCount)
	assert.Equal(t, 1, port.Pending())
}

func TestNewReader_RunBaudRate(t *testing.T) {
	_, port := newTestReader(t, Options{RunBaudRate: 9600, FlushOnOpen: true})
	assert.Equal(t, []int{9600}, port.BaudRates)
}

func TestNewReader_BaudFailure(t *testing.T) {
	port := hardware.NewMockPort("/dev/ttyMOCK0")
	port.BaudErr = stderrors.New("invalid argument")

	_, err := NewReader(port, Options{RunBaudRate: 9600})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSerialPortConfig))
	assert.Contains(t, err.Error(), "invalid argument")
}

func TestOpen_MissingDevice(t *testing.T) {
	r, err := Open(config.SerialConfig{
		Driver:      "bugst",
		Port:        "/dev/ttyMSP430-missing",
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    1,
		ReadTimeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Nil(t, r)
	assert.True(t, errors.IsConnectionError(err))
	assert.Contains(t, err.Error(), "/dev/ttyMSP430-missing")
}

func TestSendHex(t *testing.T) {
	r, port := newTestReader(t, Options{})

	n, err := r.SendHex("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, port.Written)

	n, err = r.SendHex("0102ff")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0x01, 0x02, 0xff}, port.Written)

	n, err = r.SendHex("123")
	require.Error(t, err)
	assert.True(t, errors.IsFormatError(err))
	assert.Equal(t, 0, n)
	assert.Equal(t, []byte{0x01, 0x02, 0xff}, port.Written, "nothing written on bad input")
}

func TestSendHex_WriteError(t *testing.T) {
	r, port := newTestReader(t, Options{})
	port.WriteErr = stderrors.New("device gone")

	_, err := r.SendHex("01")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSerialPortWrite))
}

func TestReadDecode_ZeroWindowNoData(t *testing.T) {
	r, port := newTestReader(t, Options{ReadTimeout: 100 * time.Millisecond})

	start := time.Now()
	_, ok, err := r.ReadDecode(0, RawEcho{}, &State{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, []time.Duration{0}, port.Timeouts)
	assert.Equal(t, 1, port.EmptyReads)
}

func TestReadDecode_TimeoutAppliedOnlyOnChange(t *testing.T) {
	r, port := newTestReader(t, Options{ReadTimeout: 50 * time.Millisecond})

	for i := 0; i < 3; i++ {
		_, _, err := r.ReadDecode(50*time.Millisecond, RawEcho{}, &State{})
		require.NoError(t, err)
	}
	assert.Empty(t, port.Timeouts)

	_, _, err := r.ReadDecode(100*time.Millisecond, RawEcho{}, &State{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, port.Timeouts)
}

func TestReadDecode_RollingWordThreadedState(t *testing.T) {
	r, port := newTestReader(t, Options{ReadTimeout: 50 * time.Millisecond})
	dec := RollingWord{Calibration: DefaultCalibration()}
	var state State

	port.Feed(0x02, 0x76, 0xff)

	s, ok, err := r.ReadDecode(50*time.Millisecond, dec, &state)
	require.NoError(t, err)
	assert.True(t, ok) // 0x0002 远低于140°F
	assert.Equal(t, uint16(0x02), s.Word)

	s, ok, err = r.ReadDecode(50*time.Millisecond, dec, &state)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0x276 0.00 F -17.00 C", s.String())

	// 0x76ff 远超140°F，被丢弃，但状态仍然更新
	_, ok, err = r.ReadDecode(50*time.Millisecond, dec, &state)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint16(0x76ff), state.Word)

	// 没有数据时状态不变
	_, ok, err = r.ReadDecode(50*time.Millisecond, dec, &state)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint16(0x76ff), state.Word)
}

func TestReadDecode_ReadError(t *testing.T) {
	r, port := newTestReader(t, Options{})
	port.ReadErr = stderrors.New("input/output error")

	_, ok, err := r.ReadDecode(0, RawEcho{}, &State{})
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, errors.ErrSerialPortRead))
}

func TestClose(t *testing.T) {
	r, port := newTestReader(t, Options{})
	require.NoError(t, r.Close())
	assert.True(t, port.Closed)
}
