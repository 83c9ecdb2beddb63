package instrument

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keithehenry/MSP430/internal/errors"
	"github.com/keithehenry/MSP430/internal/logger"
)

// LoopOptions 控制循环参数
type LoopOptions struct {
	// Interactive 每轮先提示操作员输入十六进制字节
	Interactive bool
	Prompt      string
	// ReadTimeout 每轮串口读取的等待时间
	ReadTimeout time.Duration
}

// Loop 提示 -> 发送 -> 读取解码 -> 打印，单goroutine运行
type Loop struct {
	reader   *Reader
	strategy Strategy
	opts     LoopOptions
	state    State
	logger   *zap.Logger
}

// NewLoop 创建控制循环
func NewLoop(reader *Reader, strategy Strategy, opts LoopOptions) *Loop {
	return &Loop{
		reader:   reader,
		strategy: strategy,
		opts:     opts,
		logger:   logger.WithModule("loop").With(zap.String("decoder", strategy.Name())),
	}
}

// State 当前解码状态
func (l *Loop) State() State {
	return l.state
}

// Run 运行直到 ctx 取消、输入结束或串口出错。
//
// 交互模式下读取操作员输入没有超时，Run 会一直阻塞在这里。
// ctx 只在两次循环之间检查。
func (l *Loop) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	var scanner *bufio.Scanner
	if l.opts.Interactive {
		scanner = bufio.NewScanner(in)
	}

	l.logger.Info("开始读取", zap.Bool("interactive", l.opts.Interactive),
		zap.Duration("read_timeout", l.opts.ReadTimeout))

	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("读取循环已停止", zap.Error(err))
			return nil
		}

		if scanner != nil {
			fmt.Fprint(out, l.opts.Prompt)
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return errors.Wrap(err, errors.ErrUnknown, "读取控制台输入")
				}
				l.logger.Info("输入结束")
				return nil
			}

			if skip, err := l.send(scanner.Text(), out); err != nil {
				return err
			} else if skip {
				continue
			}
		}

		sample, ok, err := l.reader.ReadDecode(l.opts.ReadTimeout, l.strategy, &l.state)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintln(out, sample)
		}
	}
}

// send 发送一行输入。格式错误时提示操作员并返回 skip=true，重新提示输入。
func (l *Loop) send(line string, out io.Writer) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if _, err := l.reader.SendHex(line); err != nil {
		if errors.IsFormatError(err) {
			l.logger.Warn("无效的十六进制输入", zap.String("input", line), zap.Error(err))
			fmt.Fprintf(out, "Invalid hex input %q: expected pairs of hex digits\n", line)
			return true, nil
		}
		return false, err
	}

	fmt.Fprintf(out, "Sent: %s\n", strings.ToLower(strings.Join(strings.Fields(line), "")))
	return false, nil
}
