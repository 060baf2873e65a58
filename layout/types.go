package layout

import (
	"image"

	"github.com/ByLCY/papyrus-bridge/fontbook"
)

// 该文件定义编译产物：排好坐标的页面及其引用的字体、图片。
// 文档自包含，渲染时不再访问 World。所有长度单位均为毫米。

// Document 是一次编译的结果。
type Document struct {
	Pages []Page       `json:"pages"`
	Meta  DocumentMeta `json:"meta"`
	// Fonts 以 fontbook.Record.Key() 为键，TextBox.Font 引用其中一项。
	Fonts map[string]fontbook.Record `json:"-"`
}

// PageCount 返回页数。
func (d *Document) PageCount() int {
	if d == nil {
		return 0
	}
	return len(d.Pages)
}

// Font 返回文本框引用的字体，key 为空或未登记时返回 false（该文本不绘制）。
func (d *Document) Font(key string) (fontbook.Record, bool) {
	if d == nil || key == "" {
		return fontbook.Record{}, false
	}
	rec, ok := d.Fonts[key]
	return rec, ok
}

// DocumentMeta 保存 PDF 元信息。
type DocumentMeta struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Subject  string   `json:"subject"`
	Creator  string   `json:"creator"`
	Keywords []string `json:"keywords"`
}

// Color 采用 0-255 的 RGB 数值。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Margin 以毫米为单位。
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Page 记录页面尺寸与可直接绘制的元素。
type Page struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Margin Margin  `json:"margin"`
	Layer
	Header Band `json:"header"`
	Footer Band `json:"footer"`
}

// Layer 是一组按绘制顺序分类的元素：先形状，再文本、图片、表格。
type Layer struct {
	Texts   []TextBox  `json:"texts,omitempty"`
	Images  []ImageBox `json:"images,omitempty"`
	Tables  []TableBox `json:"tables,omitempty"`
	Lines   []Line     `json:"lines,omitempty"`
	Rects   []Rect     `json:"rects,omitempty"`
	Circles []Circle   `json:"circles,omitempty"`
}

// Empty 表示该层没有任何元素。
func (l Layer) Empty() bool {
	return len(l.Texts)+len(l.Images)+len(l.Tables)+len(l.Lines)+len(l.Rects)+len(l.Circles) == 0
}

// Band 是页眉或页脚，在每一页重复出现；坐标为页面坐标。
type Band struct {
	Height float64 `json:"height"`
	Layer
}

// TextBox 表示一个已经排好坐标的文本块。
type TextBox struct {
	Content    string     `json:"content"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	LineHeight float64    `json:"lineHeight"`
	Font       string     `json:"font,omitempty"`
	FontSize   float64    `json:"fontSize"`
	Color      Color      `json:"color"`
	Align      string     `json:"align,omitempty"` // left（默认）/center/right
	Wrap       string     `json:"wrap,omitempty"`  // anywhere（默认）/break-word/nowrap
	Lines      []TextLine `json:"lines"`
}

// TextLine 表示排版后的一行。
type TextLine struct {
	Content   string  `json:"content"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	GapBefore float64 `json:"gapBefore,omitempty"`
}

// ImageBox 描述图片位置与尺寸，Image 在编译时已解码。
type ImageBox struct {
	Path    string      `json:"path"`
	X       float64     `json:"x"`
	Y       float64     `json:"y"`
	Width   float64     `json:"width"`
	Height  float64     `json:"height"`
	Opacity float64     `json:"opacity"`
	Image   image.Image `json:"-"`
}

// TableBox 保存表格布局（等宽列）。
type TableBox struct {
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	Width        float64    `json:"width"`
	RowGap       float64    `json:"rowGap"`
	ColumnWidths []float64  `json:"columnWidths"`
	Rows         []TableRow `json:"rows"`
	BorderColor  Color      `json:"borderColor"`
}

// TableRow 记录每一行的位置、高度与单元格。
type TableRow struct {
	Y        float64   `json:"y"`
	Height   float64   `json:"height"`
	IsHeader bool      `json:"isHeader"`
	Cells    []TextBox `json:"cells"`
}

// Line 表示一条线段。
type Line struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color Color   `json:"color"`
	Width float64 `json:"width"` // <=0 时由渲染器给默认值
}

// Rect 表示一个矩形。
type Rect struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	StrokeColor Color   `json:"strokeColor"`
	StrokeWidth float64 `json:"strokeWidth"`
	FillColor   *Color  `json:"fillColor,omitempty"`
}

// Circle 表示一个圆。
type Circle struct {
	CX          float64 `json:"cx"`
	CY          float64 `json:"cy"`
	R           float64 `json:"r"`
	StrokeColor Color   `json:"strokeColor"`
	StrokeWidth float64 `json:"strokeWidth"`
	FillColor   *Color  `json:"fillColor,omitempty"`
}
