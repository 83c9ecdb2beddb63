// tempmon 读取 MSP430 温度传感器的字节流，按双字节滚动值换算并打印华氏/摄氏温度。
package main

import (
	"github.com/keithehenry/MSP430/internal/app"
	"github.com/keithehenry/MSP430/internal/config"
)

func main() {
	app.Main(config.ProfileTempMonitor)
}
