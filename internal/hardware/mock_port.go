package hardware

import (
	"io"
	"sync"
	"time"
)

// MockPort 模拟串口（用于测试和无设备调试）
//
// Read 每次从接收队列取字节；队列为空时立即返回 0, nil，相当于读超时到期。
type MockPort struct {
	mu sync.Mutex

	PortName string
	rx       []byte

	// 记录
	Written    []byte
	Timeouts   []time.Duration
	BaudRates  []int
	ResetCount int
	Closed     bool
	ReadCount  int
	EmptyReads int

	// 注入错误
	ReadErr  error
	WriteErr error
	ResetErr error
	BaudErr  error

	// OnWrite 写入后回调，可用于模拟设备应答
	OnWrite func(m *MockPort, data []byte)
}

// NewMockPort 创建模拟串口
func NewMockPort(name string) *MockPort {
	return &MockPort{PortName: name}
}

// Feed 向接收队列追加字节（模拟设备发送）
func (m *MockPort) Feed(data ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, data...)
}

// Pending 接收队列中尚未读取的字节数
func (m *MockPort) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return 0, io.ErrClosedPipe
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	m.ReadCount++
	n := copy(p, m.rx)
	m.rx = m.rx[n:]
	if n == 0 {
		m.EmptyReads++
	}
	return n, nil
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.Closed {
		m.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if m.WriteErr != nil {
		m.mu.Unlock()
		return 0, m.WriteErr
	}
	m.Written = append(m.Written, p...)
	onWrite := m.OnWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(m, append([]byte(nil), p...))
	}
	return len(p), nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockPort) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Timeouts = append(m.Timeouts, timeout)
	return nil
}

// ResetInputBuffer 丢弃接收队列
func (m *MockPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ResetErr != nil {
		return m.ResetErr
	}
	m.ResetCount++
	m.rx = nil
	return nil
}

func (m *MockPort) SetBaudRate(baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BaudErr != nil {
		return m.BaudErr
	}
	m.BaudRates = append(m.BaudRates, baud)
	return nil
}

func (m *MockPort) Name() string {
	return m.PortName
}
