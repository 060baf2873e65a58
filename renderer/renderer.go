package renderer

import (
	"errors"
	"fmt"

	"github.com/ByLCY/papyrus-bridge/layout"
)

var (
	// ErrPageOutOfRange 表示页码不在 [0, 页数) 之内。
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrNoDocument 表示没有可渲染的文档。
	ErrNoDocument = errors.New("no document")
)

// Renderer 将编译好的文档输出为最终格式。
// 实现只读取文档本身，不访问任何外部资源。
type Renderer interface {
	// SVG 渲染单页，page 从 0 开始，调用方保证其有效。
	SVG(doc *layout.Document, page int) ([]byte, error)
	// PDF 把全部页面写入同一个 PDF。
	PDF(doc *layout.Document) ([]byte, error)
}

// Dispatch 在调用后端之前检查文档与页码。
type Dispatch struct {
	backend Renderer
}

// NewDispatch 包装一个渲染后端。
func NewDispatch(backend Renderer) *Dispatch {
	return &Dispatch{backend: backend}
}

// SVG 渲染第 page 页（从 0 开始）为 SVG 文本。
func (d *Dispatch) SVG(doc *layout.Document, page int) (string, error) {
	if doc == nil {
		return "", ErrNoDocument
	}
	if page < 0 || page >= doc.PageCount() {
		return "", fmt.Errorf("%w: %d（共 %d 页）", ErrPageOutOfRange, page, doc.PageCount())
	}
	out, err := d.backend.SVG(doc, page)
	if err != nil {
		return "", fmt.Errorf("渲染第 %d 页失败: %w", page, err)
	}
	return string(out), nil
}

// PDF 渲染整份文档。
func (d *Dispatch) PDF(doc *layout.Document) ([]byte, error) {
	if doc == nil || doc.PageCount() == 0 {
		return nil, ErrNoDocument
	}
	out, err := d.backend.PDF(doc)
	if err != nil {
		return nil, fmt.Errorf("渲染 PDF 失败: %w", err)
	}
	return out, nil
}
