package layout

import "github.com/ByLCY/papyrus-bridge/fontbook"

// Options 配置布局阶段所需的依赖。
type Options struct {
	// Path 是源文件的逻辑路径，用于诊断定位。
	Path       string
	Typesetter Typesetter
	// Data 为 ${...} 插值的根对象，可以为空。
	Data any
}

// Typesetter 负责根据字体与宽度约束将文本拆成可绘制的行。
// fontSize、lineHeight、width 单位均为毫米。
type Typesetter interface {
	LayoutLines(content string, width float64, font fontbook.Record, fontSize, lineHeight float64, wrap string) ([]TextLine, error)
}

// Resolver 是布局阶段对外部资源的全部访问：文件读取与字体查询。
type Resolver interface {
	File(path string) ([]byte, error)
	MatchFont(family string, style fontbook.Style, weight fontbook.Weight) (fontbook.Record, error)
	Fonts() []fontbook.Record
}
