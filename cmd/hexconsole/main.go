// hexconsole 交互式串口控制台：读取操作员输入的十六进制字节并发送，打印设备回传的每个字节。
package main

import (
	"github.com/keithehenry/MSP430/internal/app"
	"github.com/keithehenry/MSP430/internal/config"
)

func main() {
	app.Main(config.ProfileHexConsole)
}
