// Package fonts 提供可选的内置字体（Go 字体家族），宿主没有推送任何字体时可以用它们兜底。
package fonts

import (
	"fmt"
	"sort"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
)

var builtin = map[string][]byte{
	"Go-Regular.ttf":    goregular.TTF,
	"Go-Bold.ttf":       gobold.TTF,
	"Go-Italic.ttf":     goitalic.TTF,
	"Go-BoldItalic.ttf": gobolditalic.TTF,
	"Go-Mono.ttf":       gomono.TTF,
	"Go-Mono-Bold.ttf":  gomonobold.TTF,
}

// Default 按固定顺序返回全部内置字体，Go Regular 排在第一位。
func Default() [][]byte {
	out := make([][]byte, 0, len(builtin))
	for _, name := range Names() {
		out = append(out, builtin[name])
	}
	return out
}

// Names 返回内置字体文件名，Go-Regular.ttf 在前，其余按字典序。
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		if name != "Go-Regular.ttf" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{"Go-Regular.ttf"}, names...)
}

// Load 返回指定内置字体的字节数据。
func Load(name string) ([]byte, error) {
	data, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("读取内置字体 %s 失败: 不存在", name)
	}
	return data, nil
}
