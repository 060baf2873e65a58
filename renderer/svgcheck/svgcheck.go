// Package svgcheck 检查渲染得到的 SVG 是否为良构文档，并统计其中的绘制元素。
package svgcheck

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// ErrNotSVG 表示文档根元素不是 <svg>。
var ErrNotSVG = errors.New("not an svg document")

var (
	rootExpr  = xpath.MustCompile("/*[local-name()='svg']")
	drawnExpr = xpath.MustCompile("//*[local-name()='path' or local-name()='text' or local-name()='image' or local-name()='use']")
	imageExpr = xpath.MustCompile("//*[local-name()='image']")
)

// Info 汇总一页 SVG 的基本信息。
type Info struct {
	Width    string
	Height   string
	ViewBox  string
	Elements int // path/text/image/use 元素数量
	Images   int
}

// Inspect 解析 SVG 文本。
func Inspect(data []byte) (*Info, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing SVG: %w", err)
	}
	root := xmlquery.QuerySelector(doc, rootExpr)
	if root == nil {
		return nil, ErrNotSVG
	}
	return &Info{
		Width:    root.SelectAttr("width"),
		Height:   root.SelectAttr("height"),
		ViewBox:  root.SelectAttr("viewBox"),
		Elements: len(xmlquery.QuerySelectorAll(doc, drawnExpr)),
		Images:   len(xmlquery.QuerySelectorAll(doc, imageExpr)),
	}, nil
}
