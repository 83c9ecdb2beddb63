// Package app 进程启动：命令行参数、配置、日志、打开串口、运行读取循环、等待退出信号。
package app

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keithehenry/MSP430/internal/config"
	"github.com/keithehenry/MSP430/internal/errors"
	"github.com/keithehenry/MSP430/internal/instrument"
	"github.com/keithehenry/MSP430/internal/logger"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// shutdownTimeout 收到信号后等待读取循环退出的时间
const shutdownTimeout = 2 * time.Second

// App 一次运行的实例
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// open 打开串口，测试时替换
	open func(config.SerialConfig) (*instrument.Reader, error)

	reader    *instrument.Reader
	loop      *instrument.Loop
	done      chan error
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// Main 命令入口，不返回
func Main(profile config.Profile) {
	os.Exit(Run(profile, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// Run 解析参数并运行，返回进程退出码
func Run(profile config.Profile, args []string, in io.Reader, out, errOut io.Writer) int {
	fs := flag.NewFlagSet(string(profile), flag.ContinueOnError)
	fs.SetOutput(errOut)
	var (
		configPath  = fs.String("config", "", "配置文件路径")
		port        = fs.String("port", "", "串口设备路径（覆盖配置）")
		showVersion = fs.Bool("version", false, "显示版本信息")
		showHelp    = fs.Bool("help", false, "显示帮助信息")
	)
	fs.Usage = func() { printHelp(errOut, profile, fs) }

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errors.ExitOK
		}
		return errors.ExitConfig
	}

	if *showVersion {
		printVersion(out, profile)
		return errors.ExitOK
	}
	if *showHelp {
		printHelp(out, profile, fs)
		return errors.ExitOK
	}

	// 加载配置
	if err := config.Init(*configPath, profile); err != nil {
		fmt.Fprintf(errOut, "加载配置失败: %v\n", err)
		return errors.ExitCode(err)
	}
	if *port != "" {
		if err := config.Set("serial.port", *port); err != nil {
			fmt.Fprintf(errOut, "设置串口失败: %v\n", err)
			return errors.ExitCode(err)
		}
	}

	cfg := config.Get()
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(errOut, "配置无效: %v\n", err)
		return errors.ExitCode(err)
	}

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(errOut, "初始化日志失败: %v\n", err)
		return errors.ExitFailure
	}
	defer logger.Cleanup()

	a := New(cfg, in, out, errOut)

	if err := a.Start(); err != nil {
		logger.LogError(a.logger, err, "启动失败")
		fmt.Fprintf(errOut, "%v\n", err)
		a.pauseOnError(err)
		return errors.ExitCode(err)
	}

	// 只热更新日志级别，串口参数需要重启
	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		a.logger.Info("日志级别已更新", zap.String("level", newCfg.Log.Level))
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)
	defer signal.Stop(sigCh)

	err := a.Wait(sigCh)
	if err != nil {
		logger.LogError(a.logger, err, "运行出错")
		fmt.Fprintf(errOut, "%v\n", err)
	}
	return errors.ExitCode(err)
}

// New 创建实例，每次运行带一个会话ID
func New(cfg *config.Config, in io.Reader, out, errOut io.Writer) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg: cfg,
		logger: logger.With(
			zap.String("session", uuid.NewString()),
			zap.String("profile", string(cfg.Profile)),
		),
		in:     in,
		out:    out,
		errOut: errOut,
		open:   instrument.Open,
		done:   make(chan error, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 打开串口，在单独的goroutine中启动读取循环
func (a *App) Start() error {
	a.logger.Info("正在启动",
		zap.String("version", Version),
		zap.String("port", a.cfg.Serial.Port),
		zap.String("driver", a.cfg.Serial.Driver),
		zap.Int("baud_rate", a.cfg.Serial.BaudRate),
		zap.String("decoder", a.cfg.Decoder.Mode),
	)

	strategy, err := instrument.NewStrategy(a.cfg.Decoder.Mode,
		instrument.CalibrationFromConfig(a.cfg.Decoder.Calibration))
	if err != nil {
		return err
	}

	reader, err := a.open(a.cfg.Serial)
	if err != nil {
		return err
	}
	a.reader = reader

	a.loop = instrument.NewLoop(reader, strategy, instrument.LoopOptions{
		Interactive: a.cfg.Console.Interactive,
		Prompt:      a.cfg.Console.Prompt,
		ReadTimeout: a.cfg.Serial.ReadTimeout,
	})

	go func() {
		a.done <- a.loop.Run(a.ctx, a.in, a.out)
	}()

	a.logger.Info("启动成功", zap.String("port", reader.Port().Name()))
	return nil
}

// Wait 等待读取循环结束或退出信号，然后关闭串口
func (a *App) Wait(sigCh <-chan os.Signal) error {
	select {
	case err := <-a.done:
		a.shutdown()
		return err

	case sig := <-sigCh:
		a.logger.Info("收到退出信号", zap.String("signal", sig.String()))
		a.cancel()
		// 关闭串口使阻塞中的读取返回
		a.shutdown()

		select {
		case <-a.done:
		case <-time.After(shutdownTimeout):
			// 交互模式可能阻塞在控制台输入上
			a.logger.Debug("读取循环未在超时内退出")
		}
		return nil
	}
}

// shutdown 关闭串口并同步日志，只执行一次
func (a *App) shutdown() {
	a.closeOnce.Do(func() {
		a.cancel()
		if a.reader != nil {
			if err := a.reader.Close(); err != nil {
				a.logger.Warn("关闭串口失败", zap.Error(err))
			}
		}
		a.logger.Info("已退出")
		_ = logger.Sync()
	})
}

// pauseOnError 串口打不开时等待操作员按回车，避免窗口直接关闭
func (a *App) pauseOnError(err error) {
	if !a.cfg.Console.PauseOnError || !errors.IsConnectionError(err) {
		return
	}
	fmt.Fprintln(a.errOut, "Hit enter to exit")
	bufio.NewReader(a.in).ReadString('\n')
}

// printVersion 打印版本信息
func printVersion(w io.Writer, profile config.Profile) {
	fmt.Fprintf(w, "%s\n", profile)
	fmt.Fprintf(w, "版本: %s\n", Version)
	fmt.Fprintf(w, "构建时间: %s\n", BuildTime)
	fmt.Fprintf(w, "Git提交: %s\n", GitCommit)
	fmt.Fprintf(w, "Go版本: %s\n", runtime.Version())
	fmt.Fprintf(w, "操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp(w io.Writer, profile config.Profile, fs *flag.FlagSet) {
	switch profile {
	case config.ProfileHexConsole:
		fmt.Fprintln(w, "MSP430 十六进制串口控制台：输入十六进制字节发送，打印设备回传的每个字节")
	case config.ProfileTempMonitor:
		fmt.Fprintln(w, "MSP430 温度监视：读取传感器数据流并换算为华氏/摄氏温度")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "用法:")
	fmt.Fprintf(w, "  %s [选项]\n", profile)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "选项:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "环境变量:")
	fmt.Fprintln(w, "  MSP430_SERIAL_PORT     串口设备路径")
	fmt.Fprintln(w, "  MSP430_SERIAL_DRIVER   串口驱动 (bugst/tarm)")
	fmt.Fprintln(w, "  MSP430_LOG_LEVEL       日志级别 (debug/info/warn/error)")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "配置文件: ./config/%s.yaml\n", profile)
}
