package canvasrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"
	"github.com/tdewolff/canvas/renderers/svg"

	"github.com/ByLCY/papyrus-bridge/fontbook"
	"github.com/ByLCY/papyrus-bridge/layout"
	"github.com/ByLCY/papyrus-bridge/renderer"
)

const tableBorderWidth = 0.2

// Renderer draws compiled documents via github.com/tdewolff/canvas.
// Font families are cached per instance; nothing is shared between renderers.
type Renderer struct {
	fontMu   sync.Mutex
	families map[string]*canvas.FontFamily
}

var (
	_ renderer.Renderer = (*Renderer)(nil)
	_ layout.Typesetter = (*Renderer)(nil)
)

// New creates a renderer with an empty face cache.
func New() *Renderer {
	return &Renderer{families: map[string]*canvas.FontFamily{}}
}

// PDF renders every page into one PDF document.
func (r *Renderer) PDF(doc *layout.Document) ([]byte, error) {
	if doc.PageCount() == 0 {
		return nil, fmt.Errorf("缺少可渲染的页面")
	}

	var buf bytes.Buffer
	writer := pdf.New(&buf, doc.Pages[0].Width, doc.Pages[0].Height, nil)
	applyMeta(writer, doc.Meta)
	for i, page := range doc.Pages {
		if i > 0 {
			writer.NewPage(page.Width, page.Height)
		}
		c, err := r.drawCanvas(doc, page)
		if err != nil {
			return nil, err
		}
		c.RenderTo(writer)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	return buf.Bytes(), nil
}

// SVG renders a single page.
func (r *Renderer) SVG(doc *layout.Document, index int) ([]byte, error) {
	if index < 0 || index >= doc.PageCount() {
		return nil, fmt.Errorf("%w: %d", renderer.ErrPageOutOfRange, index)
	}
	page := doc.Pages[index]
	c, err := r.drawCanvas(doc, page)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writer := svg.New(&buf, page.Width, page.Height, nil)
	c.RenderTo(writer)
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("写入 SVG 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func applyMeta(writer *pdf.PDF, meta layout.DocumentMeta) {
	keywords := strings.Join(meta.Keywords, ", ")
	writer.SetInfo(meta.Title, meta.Subject, keywords, meta.Author, meta.Creator)
}

func (r *Renderer) drawCanvas(doc *layout.Document, page layout.Page) (*canvas.Canvas, error) {
	c := canvas.New(page.Width, page.Height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点
	if err := r.drawPage(ctx, doc, page); err != nil {
		return nil, err
	}
	return c, nil
}

// LayoutLines 实现 layout.Typesetter 接口，使用贪心换行算法。
// 约定：fontSize/lineHeight/width 均为毫米；创建字体面时换算为 pt。
func (r *Renderer) LayoutLines(content string, width float64, font fontbook.Record, fontSize, lineHeight float64, wrap string) ([]layout.TextLine, error) {
	face, err := r.fontFace(font, toPt(fontSize), layout.Color{R: 30, G: 30, B: 30})
	if err != nil {
		return nil, err
	}

	if wrap == "" {
		wrap = "anywhere"
	}
	lines := greedyWrapTokens(content, width, face, wrap)
	textHeight := face.Metrics().LineHeight
	if textHeight <= 0 {
		textHeight = lineHeight
	}
	leading := math.Max(lineHeight-textHeight, 0)
	if len(lines) == 0 {
		lines = []layout.TextLine{{Height: textHeight}}
	}
	for i := range lines {
		if lines[i].Height <= 0 {
			lines[i].Height = textHeight
		}
		if i == 0 {
			lines[i].GapBefore = 0
		} else {
			lines[i].GapBefore = leading
		}
	}
	return lines, nil
}

func (r *Renderer) drawPage(ctx *canvas.Context, doc *layout.Document, page layout.Page) error {
	// 页眉、正文、页脚依次绘制；每层内先画形状作为背景
	for _, l := range []layout.Layer{page.Header.Layer, page.Layer, page.Footer.Layer} {
		if err := r.drawLayer(ctx, doc, l); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) drawLayer(ctx *canvas.Context, doc *layout.Document, l layout.Layer) error {
	drawLines(ctx, l.Lines)
	drawRects(ctx, l.Rects)
	drawCircles(ctx, l.Circles)
	for _, tb := range l.Texts {
		if err := r.drawTextBox(ctx, doc, tb); err != nil {
			return err
		}
	}
	drawImages(ctx, l.Images)
	return r.drawTables(ctx, doc, l.Tables)
}

// drawTextBox 绘制文本框；未引用字体的文本（字体书为空时）不绘制。
func (r *Renderer) drawTextBox(ctx *canvas.Context, doc *layout.Document, tb layout.TextBox) error {
	rec, ok := doc.Font(tb.Font)
	if !ok {
		return nil
	}
	face, err := r.fontFace(rec, toPt(tb.FontSize), tb.Color)
	if err != nil {
		return err
	}

	lines := tb.Lines
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: tb.Content, Width: tb.Width, Height: tb.LineHeight}}
	}

	var textAlign canvas.TextAlign
	var anchorX float64
	switch strings.ToLower(tb.Align) {
	case "center":
		textAlign = canvas.Center
		anchorX = tb.X + tb.Width/2
	case "right", "end":
		textAlign = canvas.Right
		anchorX = tb.X + tb.Width
	default:
		textAlign = canvas.Left
		anchorX = tb.X
	}

	ascent := face.Metrics().Ascent
	cursorY := tb.Y
	for _, line := range lines {
		cursorY += line.GapBefore
		lineHeight := line.Height
		if lineHeight <= 0 {
			lineHeight = tb.FontSize
		}
		if line.Content != "" {
			// 基线 = 行顶部 + 字体上升部
			ctx.DrawText(anchorX, cursorY+ascent, canvas.NewTextLine(face, line.Content, textAlign))
		}
		cursorY += lineHeight
	}
	return nil
}

// drawImages 绘制编译时已解码的图片。
func drawImages(ctx *canvas.Context, images []layout.ImageBox) {
	for _, img := range images {
		if img.Image == nil || img.Width <= 0 {
			continue
		}
		src := img.Image
		if img.Opacity > 0 && img.Opacity < 1 {
			src = fade(src, img.Opacity)
		}
		dpmm := float64(src.Bounds().Dx()) / img.Width
		if dpmm <= 0 {
			dpmm = 1
		}
		ctx.DrawImage(img.X, img.Y, src, canvas.DPMM(dpmm))
	}
}

func fade(img image.Image, opacity float64) image.Image {
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})
	draw.DrawMask(dst, b, img, b.Min, mask, image.Point{}, draw.Src)
	return dst
}

func (r *Renderer) drawTables(ctx *canvas.Context, doc *layout.Document, tables []layout.TableBox) error {
	for _, table := range tables {
		if len(table.ColumnWidths) == 0 {
			continue
		}
		for _, row := range table.Rows {
			x := table.X
			for idx, colWidth := range table.ColumnWidths {
				fill := canvas.White
				if row.IsHeader {
					fill = canvas.Hex("#f8f8f8")
				}
				ctx.SetFillColor(fill)
				ctx.SetStrokeColor(colorFromLayout(table.BorderColor))
				ctx.SetStrokeWidth(tableBorderWidth)
				ctx.DrawPath(x, row.Y, canvas.Rectangle(colWidth, row.Height))
				if idx < len(row.Cells) {
					if err := r.drawTextBox(ctx, doc, row.Cells[idx]); err != nil {
						return err
					}
				}
				x += colWidth
			}
		}
	}
	return nil
}

// drawLines 绘制直线列表（毫米单位）
func drawLines(ctx *canvas.Context, lines []layout.Line) {
	for _, ln := range lines {
		w := ln.Width
		if w <= 0 {
			w = tableBorderWidth
		}
		ctx.SetStrokeColor(colorFromLayout(ln.Color))
		ctx.SetStrokeWidth(w)
		p := &canvas.Path{}
		p.MoveTo(0, 0)
		p.LineTo(ln.X2-ln.X1, ln.Y2-ln.Y1)
		ctx.DrawPath(ln.X1, ln.Y1, p)
	}
}

func drawRects(ctx *canvas.Context, rects []layout.Rect) {
	for _, rc := range rects {
		w := rc.StrokeWidth
		if w <= 0 {
			w = tableBorderWidth
		}
		if rc.FillColor != nil {
			ctx.SetFillColor(colorFromLayout(*rc.FillColor))
		} else {
			ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
		}
		ctx.SetStrokeColor(colorFromLayout(rc.StrokeColor))
		ctx.SetStrokeWidth(w)
		ctx.DrawPath(rc.X, rc.Y, canvas.Rectangle(rc.Width, rc.Height))
	}
}

func drawCircles(ctx *canvas.Context, circles []layout.Circle) {
	for _, c := range circles {
		w := c.StrokeWidth
		if w <= 0 {
			w = tableBorderWidth
		}
		if c.FillColor != nil {
			ctx.SetFillColor(colorFromLayout(*c.FillColor))
		} else {
			ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
		}
		ctx.SetStrokeColor(colorFromLayout(c.StrokeColor))
		ctx.SetStrokeWidth(w)
		ctx.DrawPath(c.CX-c.R, c.CY-c.R, canvas.Circle(c.R))
	}
}

func (r *Renderer) fontFace(font fontbook.Record, size float64, col layout.Color) (*canvas.FontFace, error) {
	family, err := r.fontFamily(font)
	if err != nil {
		return nil, err
	}
	return family.Face(size, colorFromLayout(col), canvas.FontRegular, canvas.FontNormal), nil
}

// fontFamily 为每个字体记录建立独立的 family，字形完全来自记录本身，
// 因此总是以 FontRegular 载入和取用，避免 canvas 合成粗体或斜体。
func (r *Renderer) fontFamily(font fontbook.Record) (*canvas.FontFamily, error) {
	if len(font.Data) == 0 {
		return nil, fmt.Errorf("字体 %s 没有数据", font.Family)
	}
	key := font.Key()
	r.fontMu.Lock()
	defer r.fontMu.Unlock()

	if family, ok := r.families[key]; ok {
		return family, nil
	}
	family := canvas.NewFontFamily(font.Family + "#" + key)
	if err := family.LoadFont(font.Data, font.Index, canvas.FontRegular); err != nil {
		return nil, fmt.Errorf("加载字体 %s 失败: %w", font, err)
	}
	r.families[key] = family
	return family, nil
}

// CachedFaces 返回实例中已加载的字体数量。
func (r *Renderer) CachedFaces() int {
	r.fontMu.Lock()
	defer r.fontMu.Unlock()
	return len(r.families)
}

func colorFromLayout(c layout.Color) color.Color {
	return canvas.RGBA(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0, 1.0)
}

// toPt 将毫米(mm)转换为点(pt)。
func toPt(mm float64) float64 { return mm * layout.MmToPt }

func greedyWrapTokens(content string, width float64, face *canvas.FontFace, wrap string) []layout.TextLine {
	limit := width
	if limit <= 0 {
		limit = math.MaxFloat64
	}

	// nowrap：仅按显式换行划分，不基于宽度折行
	if wrap == "nowrap" {
		parts := strings.Split(strings.ReplaceAll(content, "\r", ""), "\n")
		lines := make([]layout.TextLine, 0, len(parts))
		for _, p := range parts {
			lines = append(lines, layout.TextLine{Content: p, Width: face.TextWidth(p)})
		}
		return lines
	}

	var lines []layout.TextLine
	var builder strings.Builder
	current := 0.0
	emit := func(force bool) {
		if builder.Len() == 0 {
			if force {
				lines = append(lines, layout.TextLine{})
			}
			return
		}
		lines = append(lines, layout.TextLine{Content: builder.String(), Width: current})
		builder.Reset()
		current = 0
	}
	appendText := func(s string, w float64) {
		if current > 0 && current+w > limit {
			emit(false)
		}
		builder.WriteString(s)
		current += w
		if current > limit {
			emit(false)
		}
	}

	// break-word：忽略空白机会，纯按宽度切分（但仍然尊重显式换行）
	if wrap == "break-word" {
		for _, r := range content {
			switch r {
			case '\r':
			case '\n':
				emit(true)
			default:
				s := string(r)
				appendText(s, face.TextWidth(s))
			}
		}
		emit(true)
		return lines
	}

	// 默认（anywhere）：优先在空白处分割，超过限制时在词内拆分
	for _, token := range tokenizeContent(content) {
		if token == "\n" {
			emit(true)
			continue
		}
		tokenWidth := face.TextWidth(token)
		if tokenWidth <= limit {
			appendText(token, tokenWidth)
			continue
		}
		for _, chunk := range splitTokenByWidth(token, limit, face) {
			appendText(chunk, face.TextWidth(chunk))
		}
	}
	emit(true)
	return lines
}

func tokenizeContent(s string) []string {
	var tokens []string
	var builder strings.Builder
	lastWasSpace := false
	flush := func() {
		if builder.Len() == 0 {
			return
		}
		tokens = append(tokens, builder.String())
		builder.Reset()
	}

	for _, r := range s {
		if r == '\r' {
			continue
		}
		if r == '\n' {
			flush()
			tokens = append(tokens, "\n")
			lastWasSpace = false
			continue
		}
		isSpace := unicode.IsSpace(r)
		if builder.Len() == 0 {
			lastWasSpace = isSpace
		} else if lastWasSpace != isSpace {
			flush()
			lastWasSpace = isSpace
		}
		builder.WriteRune(r)
	}
	flush()
	return tokens
}

func splitTokenByWidth(token string, limit float64, face *canvas.FontFace) []string {
	if limit <= 0 || limit == math.MaxFloat64 {
		return []string{token}
	}
	var parts []string
	var builder strings.Builder
	for _, r := range token {
		builder.WriteRune(r)
		if face.TextWidth(builder.String()) > limit && builder.Len() > 1 {
			runes := []rune(builder.String())
			parts = append(parts, string(runes[:len(runes)-1]))
			builder.Reset()
			builder.WriteRune(r)
		}
	}
	if builder.Len() > 0 {
		parts = append(parts, builder.String())
	}
	return parts
}
