package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown        ErrorCode = 1000
	ErrInvalidParam   ErrorCode = 1001
	ErrNotImplemented ErrorCode = 1007

	// 硬件错误 (3000-3999)
	ErrSerialPortOpen   ErrorCode = 3000
	ErrSerialPortWrite  ErrorCode = 3001
	ErrSerialPortRead   ErrorCode = 3002
	ErrSerialPortConfig ErrorCode = 3003
	ErrSerialPortClose  ErrorCode = 3004

	// 输入错误 (4000-4999)
	ErrHexFormat ErrorCode = 4000

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:        "未知错误",
	ErrInvalidParam:   "无效的参数",
	ErrNotImplemented: "功能未实现",

	// 硬件错误
	ErrSerialPortOpen:   "串口打开失败",
	ErrSerialPortWrite:  "串口写入失败",
	ErrSerialPortRead:   "串口读取失败",
	ErrSerialPortConfig: "串口参数设置失败",
	ErrSerialPortClose:  "串口关闭失败",

	// 输入错误
	ErrHexFormat: "十六进制输入格式错误",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	} else {
		appErr.Details += ": " + err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// As 在错误链中查找AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is 判断错误是否为指定错误码（沿错误链查找）
func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := As(err); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// IsConnectionError 串口无法打开（设备不存在、被占用或权限不足）
func IsConnectionError(err error) bool {
	return Is(err, ErrSerialPortOpen)
}

// IsFormatError 操作员输入的十六进制字符串格式错误
func IsFormatError(err error) bool {
	return Is(err, ErrHexFormat)
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/keithehenry/MSP430/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// 进程退出码
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitConnection = 2
	ExitConfig     = 3
)

// ExitCode 返回错误对应的进程退出码
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	code := GetCode(err)
	switch {
	case code == ErrSerialPortOpen:
		return ExitConnection
	case code >= 6000 && code <= 6999:
		return ExitConfig
	default:
		return ExitFailure
	}
}
