package util

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
)

// ANSI 颜色码
const (
	colorReset = "\x1b[0m"
	colorBlue  = "\x1b[1;34m"
	colorCyan  = "\x1b[1;36m"
)

// PrintBanner 打印启动 banner（slant 字体，统一蓝色），副标题单独一行
func PrintBanner(text, tagline string) {
	fig := figure.NewFigure(text, "slant", true)
	for _, line := range fig.Slicify() {
		fmt.Println(colorBlue + line + colorReset)
	}
	if tagline != "" {
		fmt.Println(colorCyan + "  " + tagline + colorReset)
	}
}
