package layout

// pageCollector 按顺序收集同一 page 段落产生的页面。
type pageCollector struct {
	width  float64
	height float64
	margin Margin
	layers []*Layer
	header Band
	footer Band
}

func newPageCollector(width, height float64, margin Margin) *pageCollector {
	pc := &pageCollector{width: width, height: height, margin: margin}
	pc.newPage()
	return pc
}

func (pc *pageCollector) newPage() {
	pc.layers = append(pc.layers, &Layer{})
}

func (pc *pageCollector) current() *Layer {
	return pc.layers[len(pc.layers)-1]
}

// contentTop 为 max(上边距, 页眉高度)。
func (pc *pageCollector) contentTop() float64 {
	if pc.header.Height > pc.margin.Top {
		return pc.header.Height
	}
	return pc.margin.Top
}

// contentBottom 为页面高度减去 max(下边距, 页脚高度)。
func (pc *pageCollector) contentBottom() float64 {
	bottom := pc.margin.Bottom
	if pc.footer.Height > bottom {
		bottom = pc.footer.Height
	}
	return pc.height - bottom
}

func (pc *pageCollector) pages() []Page {
	out := make([]Page, len(pc.layers))
	for i, l := range pc.layers {
		out[i] = Page{
			Width:  pc.width,
			Height: pc.height,
			Margin: pc.margin,
			Layer:  *l,
			Header: pc.header,
			Footer: pc.footer,
		}
	}
	return out
}

// flowContext 是一个纵向排版区域：flow 与 absolute 会创建子区域。
type flowContext struct {
	baseX   float64
	baseY   float64
	width   float64
	cursorY float64
	parent  *flowContext
	pages   *pageCollector
	// target 非空时元素写入固定的层（页眉/页脚），否则写入当前页。
	target     *Layer
	allowBreak bool
	// align 与 wrap 由子 text 继承。
	align string
	wrap  string
}

func (ctx *flowContext) child(x, y, width float64) *flowContext {
	return &flowContext{
		baseX:      x,
		baseY:      y,
		width:      width,
		cursorY:    y,
		parent:     ctx,
		pages:      ctx.pages,
		target:     ctx.target,
		allowBreak: ctx.allowBreak,
		align:      ctx.align,
		wrap:       ctx.wrap,
	}
}

func (ctx *flowContext) layer() *Layer {
	if ctx.target != nil {
		return ctx.target
	}
	return ctx.pages.current()
}

// fits 判断高度为 height 的元素能否放在当前光标处。
func (ctx *flowContext) fits(height float64) bool {
	if !ctx.allowBreak || ctx.pages == nil {
		return true
	}
	return ctx.cursorY+height <= ctx.pages.contentBottom()
}

// atTop 表示光标位于页面内容区顶部，此时换页没有意义。
func (ctx *flowContext) atTop() bool {
	if ctx.pages == nil {
		return true
	}
	return ctx.cursorY <= ctx.pages.contentTop()
}

// pageBreak 新起一页，祖先区域的光标一并移到新页顶部。
func (ctx *flowContext) pageBreak() {
	if ctx.pages == nil {
		return
	}
	if ctx.parent != nil {
		ctx.parent.pageBreak()
		ctx.baseY = ctx.parent.cursorY
		ctx.cursorY = ctx.baseY
		return
	}
	ctx.pages.newPage()
	ctx.baseY = ctx.pages.contentTop()
	ctx.cursorY = ctx.baseY
}
