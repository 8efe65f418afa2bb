// medsched 医护排班求解服务
// 主程序入口

package main

import (
	"fmt"
	"os"

	"github.com/paiban/medsched/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
