package hardware

import (
	"io"
	"time"
)

// Port 串口接口（真实设备与测试桩共用）
//
// Read 在读超时内没有数据时返回 0, nil，调用方把它当作“暂无数据”而不是错误。
// 除 Close 外的方法只由持有连接的goroutine调用；Close 可以从其他goroutine调用，
// 用于退出时打断阻塞中的读取，重复调用返回 nil。
type Port interface {
	io.ReadWriteCloser

	// SetReadTimeout 设置单次读取的最长等待时间，0表示立即返回
	SetReadTimeout(timeout time.Duration) error
	// ResetInputBuffer 丢弃驱动接收缓冲区中已有的字节
	ResetInputBuffer() error
	// SetBaudRate 在不关闭连接的前提下切换波特率
	SetBaudRate(baud int) error
	// Name 设备路径
	Name() string
}
