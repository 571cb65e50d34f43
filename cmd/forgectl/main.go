// Package main forgectl 运维命令行：模板检查、离线溯源、预算预览与资料入库
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
