package layout

import (
	"sort"
	"strings"

	"github.com/ByLCY/papyrus-bridge/binding"
	"github.com/ByLCY/papyrus-bridge/diag"
	"github.com/ByLCY/papyrus-bridge/dsl"
	"github.com/ByLCY/papyrus-bridge/fontbook"
)

const (
	blockSpacing      = 3.0
	cellPadding       = 1.2
	tableRowGap       = 0.0
	defaultFontSize   = 12 * PtToMm
	defaultLineFactor = 1.4
	defaultMargin     = 20.0
)

var (
	defaultTextColor   = Color{R: 30, G: 30, B: 30}
	defaultBorderColor = Color{R: 200, G: 200, B: 200}
)

var pagePresets = map[string][2]float64{
	"A3":     {297, 420},
	"A4":     {210, 297},
	"A5":     {148, 210},
	"LETTER": {215.9, 279.4},
	"LEGAL":  {215.9, 355.6},
}

// builder 保存一次布局计算的全部状态，不在多次调用之间共享。
type builder struct {
	opts     Options
	resolver Resolver
	res      resourceSet
	diags    diag.List

	// fonts 记录文档实际引用的字体，faces 缓存查询结果（值为空串表示无可用字体）。
	fonts  map[string]fontbook.Record
	faces  map[faceQuery]string
	warned map[string]bool
	images map[string]decodedImage
}

type faceQuery struct {
	family string
	style  fontbook.Style
	weight fontbook.Weight
}

// Build 根据 DSL AST 生成页面。
// 诊断总是返回；只要其中包含 error 级别的条目，文档即为 nil。
func Build(doc *dsl.Document, resolver Resolver, opts Options) (*Document, diag.List) {
	b := &builder{
		opts:     opts,
		resolver: resolver,
		fonts:    map[string]fontbook.Record{},
		faces:    map[faceQuery]string{},
		warned:   map[string]bool{},
		images:   map[string]decodedImage{},
	}
	if doc == nil {
		b.errorf(dsl.Position{}, "文档为空")
		return nil, b.diags
	}
	b.res = b.collectResources(doc)
	meta, _ := CollectMeta(doc)
	out := &Document{Meta: meta, Fonts: b.fonts}

	for _, section := range doc.Sections {
		if section.Page != nil {
			out.Pages = append(out.Pages, b.buildSection(section.Page)...)
		}
	}
	if len(out.Pages) == 0 && !b.diags.HasErrors() {
		b.errorf(doc.Pos, "文档中缺少 page 段落")
	}
	if b.diags.HasErrors() {
		return nil, b.diags
	}
	return out, b.diags
}

func (b *builder) buildSection(section *dsl.PageSection) []Page {
	width, height := b.pageSize(section)
	margin := resolveMargin(section.Spec.Params)
	pc := newPageCollector(width, height, margin)
	if section.Block == nil {
		return pc.pages()
	}

	for _, st := range section.Block.Statements {
		if st.Command == nil {
			continue
		}
		switch st.Command.Name {
		case "header":
			pc.header = b.buildBand(st.Command, pc, true)
		case "footer":
			pc.footer = b.buildBand(st.Command, pc, false)
		}
	}

	root := &flowContext{
		baseX:      margin.Left,
		baseY:      pc.contentTop(),
		width:      width - margin.Left - margin.Right,
		cursorY:    pc.contentTop(),
		pages:      pc,
		allowBreak: true,
		wrap:       "anywhere",
	}
	b.processBlock(section.Block, root)
	return pc.pages()
}

func (b *builder) pageSize(section *dsl.PageSection) (float64, float64) {
	size, ok := pagePresets[strings.ToUpper(section.Spec.Size)]
	if !ok {
		b.errorf(section.Pos, "暂不支持的纸张尺寸：%s", section.Spec.Size)
		size = pagePresets["A4"]
	}
	w, h := size[0], size[1]
	for _, p := range section.Spec.Params {
		if strings.EqualFold(p.Value, "landscape") {
			w, h = h, w
		}
	}
	return w, h
}

// resolveMargin 解析 "margin" 之后的 1–4 个长度，语义同 CSS；缺省为 20mm。
func resolveMargin(params []*dsl.Lexeme) Margin {
	m := Margin{Top: defaultMargin, Right: defaultMargin, Bottom: defaultMargin, Left: defaultMargin}
	for i, p := range params {
		if p.Value != "margin" {
			continue
		}
		var vals []float64
		for _, q := range params[i+1:] {
			l, ok := ParseLength(q.Value)
			if !ok || l.Unit == UnitPercent || len(vals) == 4 {
				break
			}
			vals = append(vals, l.MM(0))
		}
		switch len(vals) {
		case 1:
			m = Margin{Top: vals[0], Right: vals[0], Bottom: vals[0], Left: vals[0]}
		case 2:
			m = Margin{Top: vals[0], Right: vals[1], Bottom: vals[0], Left: vals[1]}
		case 3:
			m = Margin{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[1]}
		case 4:
			m = Margin{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[3]}
		}
	}
	return m
}

// processBlock 依次处理 block 内的命令。
func (b *builder) processBlock(block *dsl.Block, ctx *flowContext) {
	if block == nil {
		return
	}
	for _, stmt := range block.Statements {
		cmd := stmt.Command
		if cmd == nil {
			continue
		}
		switch strings.ToLower(cmd.Name) {
		case "flow":
			b.handleFlow(cmd, ctx)
		case "absolute":
			b.handleAbsolute(cmd, ctx)
		case "text":
			b.handleText(cmd, ctx)
		case "image":
			b.handleImage(cmd, ctx)
		case "table":
			b.handleTable(cmd, ctx)
		case "line", "rect", "circle":
			b.handleShape(cmd, ctx)
		case "pagebreak":
			if ctx.allowBreak {
				ctx.pageBreak()
			} else {
				b.warnf(cmd.Pos, "pagebreak 在当前位置无效，已忽略")
			}
		case "header", "footer":
			// 已在 buildSection 中处理
		default:
			b.warnf(cmd.Pos, "未知命令 %q，已忽略", cmd.Name)
		}
	}
}

func (b *builder) handleFlow(cmd *dsl.Command, parent *flowContext) {
	if cmd.Block == nil {
		b.errorf(cmd.Pos, "flow 语句缺少子内容")
		return
	}
	styleName, attrs := parseArgs(cmd.Args, false)
	attrs = b.mergeStyle(styleName, attrs)

	align := normalizeAlign(attrs["align"])
	width := parent.width
	if v := attrs["width"]; v != "" {
		if w := dimension(v, parent.width); w > 0 && w <= parent.width {
			width = w
		}
	} else if align == "center" || align == "right" {
		if w := b.inferWidth(cmd.Block, parent.width); w > 0 && w < parent.width {
			width = w
		}
	}

	child := parent.child(parent.baseX+alignOffset(parent.width, width, align), parent.cursorY, width)
	if align != "" {
		child.align = align
	}
	if v := strings.TrimSpace(attrs["wrap"]); v != "" {
		child.wrap = normalizeWrap(v)
	}
	b.processBlock(cmd.Block, child)
	if child.cursorY > parent.cursorY {
		parent.cursorY = child.cursorY + blockSpacing
	}
}

func (b *builder) handleAbsolute(cmd *dsl.Command, parent *flowContext) {
	if cmd.Block == nil {
		b.errorf(cmd.Pos, "absolute 语句缺少子内容")
		return
	}
	styleName, attrs := parseArgs(cmd.Args, false)
	attrs = b.mergeStyle(styleName, attrs)
	width := parent.width
	if w := dimension(attrs["width"], parent.width); w > 0 {
		width = w
	}
	x := parent.baseX + dimension(attrs["x"], parent.width)
	y := parent.baseY + dimension(attrs["y"], parent.width)
	child := parent.child(x, y, width)
	child.allowBreak = false
	b.processBlock(cmd.Block, child)
}

func (b *builder) handleText(cmd *dsl.Command, ctx *flowContext) {
	content := extractText(cmd.Block)
	if content == "" {
		b.errorf(cmd.Pos, "text 语句缺少文本内容")
		return
	}
	styleName, attrs := parseArgs(cmd.Args, true)
	attrs = b.mergeStyle(styleName, attrs)
	if strings.TrimSpace(attrs["align"]) == "" && ctx.align != "" {
		attrs["align"] = ctx.align
	}
	wrap := ctx.wrap
	if v := strings.TrimSpace(attrs["wrap"]); v != "" {
		wrap = normalizeWrap(v)
	}
	tb, ok := b.composeText(styleName, attrs, content, ctx.baseX, ctx.width, wrap, cmd.Pos)
	if !ok {
		return
	}
	b.placeText(ctx, tb)
}

// placeText 放置文本框；放不下时按行拆分到后续页面。
func (b *builder) placeText(ctx *flowContext, tb TextBox) {
	for {
		if ctx.fits(tb.Height) {
			break
		}
		n := linesThatFit(tb.Lines, ctx.pages.contentBottom()-ctx.cursorY)
		if n >= len(tb.Lines) {
			break
		}
		if n == 0 {
			if ctx.atTop() {
				// 单行高于整页，只能溢出
				break
			}
			ctx.pageBreak()
			continue
		}
		head, tail := splitText(tb, n)
		head.X, head.Y = ctx.baseX, ctx.cursorY
		ctx.layer().Texts = append(ctx.layer().Texts, head)
		ctx.pageBreak()
		tb = tail
	}
	tb.X, tb.Y = ctx.baseX, ctx.cursorY
	ctx.layer().Texts = append(ctx.layer().Texts, tb)
	ctx.cursorY += tb.Height + blockSpacing
}

func linesThatFit(lines []TextLine, avail float64) int {
	used := 0.0
	for i, ln := range lines {
		gap := ln.GapBefore
		if i == 0 {
			gap = 0
		}
		used += gap + ln.Height
		if used > avail {
			return i
		}
	}
	return len(lines)
}

func splitText(tb TextBox, n int) (TextBox, TextBox) {
	head, tail := tb, tb
	head.Lines = append([]TextLine(nil), tb.Lines[:n]...)
	tail.Lines = append([]TextLine(nil), tb.Lines[n:]...)
	tail.Lines[0].GapBefore = 0
	head.Height, head.Content = measureLines(head.Lines)
	tail.Height, tail.Content = measureLines(tail.Lines)
	return head, tail
}

func measureLines(lines []TextLine) (float64, string) {
	total := 0.0
	parts := make([]string, 0, len(lines))
	for _, ln := range lines {
		total += ln.GapBefore + ln.Height
		parts = append(parts, ln.Content)
	}
	return total, strings.Join(parts, "\n")
}

// composeText 插值、解析字体并排版，返回 Y 为 0 的文本框。
func (b *builder) composeText(styleName string, attrs map[string]string, content string, x, width float64, wrap string, pos dsl.Position) (TextBox, bool) {
	if b.opts.Data != nil {
		content = binding.Interpolate(content, b.opts.Data)
	}
	fontSize := mm(attrs["size"])
	if fontSize <= 0 {
		fontSize = defaultFontSize
	}
	lh := lineHeight(attrs["line-height"], fontSize)

	fontName := attrs["font"]
	if fontName == "" {
		if _, ok := b.res.fonts[styleName]; ok {
			fontName = styleName
		}
	}
	rec, hasFont := b.resolveFont(fontName, attrs, pos)

	var lines []TextLine
	if hasFont && b.opts.Typesetter != nil {
		var err error
		lines, err = b.opts.Typesetter.LayoutLines(content, width, rec, fontSize, lh, wrap)
		if err != nil {
			b.errorf(pos, "排版失败：%v", err)
			return TextBox{}, false
		}
	} else {
		lines = estimateLines(content, width, fontSize, wrap)
	}
	if len(lines) == 0 {
		lines = []TextLine{{Height: fontSize}}
	}
	leading := lh - fontSize
	if leading < 0 {
		leading = 0
	}
	for i := range lines {
		if lines[i].Height <= 0 {
			lines[i].Height = fontSize
		}
		switch {
		case i == 0:
			lines[i].GapBefore = 0
		case lines[i].GapBefore <= 0:
			lines[i].GapBefore = leading
		}
	}
	height, _ := measureLines(lines)

	tb := TextBox{
		Content:    content,
		X:          x,
		Width:      width,
		Height:     height,
		LineHeight: lh,
		FontSize:   fontSize,
		Color:      b.res.color(attrs["color"]),
		Align:      normalizeAlign(attrs["align"]),
		Wrap:       wrap,
		Lines:      lines,
	}
	if hasFont {
		tb.Font = rec.Key()
	}
	return tb, true
}

// resolveFont 通过 Resolver 匹配字体。
// 显式指定但找不到的 family 退回第一个已注册字体并给出警告；字体书为空时警告一次且不绘制文本。
func (b *builder) resolveFont(name string, attrs map[string]string, pos dsl.Position) (fontbook.Record, bool) {
	fr, declared := b.res.fonts[name]
	if !declared {
		fr = fontResource{name: name, family: name, style: fontbook.StyleNormal, weight: fontbook.WeightNormal}
	}
	if v := attrs["font-style"]; v != "" {
		fr.style = fontbook.ParseStyle(v)
	}
	if v := attrs["weight"]; v != "" {
		fr.weight = fontbook.ParseWeight(v)
	}
	q := faceQuery{family: fr.family, style: fr.style, weight: fr.weight}
	if key, ok := b.faces[q]; ok {
		rec, found := b.fonts[key]
		return rec, found
	}

	var all []fontbook.Record
	if b.resolver != nil {
		all = b.resolver.Fonts()
	}
	if len(all) == 0 {
		if !b.warned[""] {
			b.warned[""] = true
			b.warnf(pos, "没有可用的字体，文本将按估算尺寸排版且不会被绘制")
		}
		b.faces[q] = ""
		return fontbook.Record{}, false
	}

	var rec fontbook.Record
	var err error
	if fr.family == "" {
		rec, err = b.resolver.MatchFont(all[0].Family, fr.style, fr.weight)
	} else {
		rec, err = b.resolver.MatchFont(fr.family, fr.style, fr.weight)
	}
	if err != nil {
		rec = all[0]
		if !b.warned[fr.family] {
			b.warned[fr.family] = true
			b.warnf(pos, "找不到字体 %q，改用 %q", fr.family, rec.Family)
		}
	}
	key := rec.Key()
	b.fonts[key] = rec
	b.faces[q] = key
	return rec, true
}

// estimateLines 在没有字体时按平均字宽粗略折行，保证分页仍然可用。
func estimateLines(content string, width, fontSize float64, wrap string) []TextLine {
	charWidth := fontSize * 0.55
	perLine := 0
	if wrap != "nowrap" && width > 0 {
		perLine = int(width / charWidth)
		if perLine < 1 {
			perLine = 1
		}
	}
	var out []TextLine
	for _, para := range strings.Split(strings.ReplaceAll(content, "\r", ""), "\n") {
		runes := []rune(para)
		if perLine == 0 || len(runes) <= perLine {
			out = append(out, TextLine{Content: para, Width: float64(len(runes)) * charWidth, Height: fontSize})
			continue
		}
		for len(runes) > 0 {
			n := perLine
			if n > len(runes) {
				n = len(runes)
			}
			out = append(out, TextLine{Content: string(runes[:n]), Width: float64(n) * charWidth, Height: fontSize})
			runes = runes[n:]
		}
	}
	return out
}

func (b *builder) handleTable(cmd *dsl.Command, ctx *flowContext) {
	if cmd.Block == nil {
		b.errorf(cmd.Pos, "table 语句缺少内容")
		return
	}
	styleName, attrs := parseArgs(cmd.Args, false)
	attrs = b.mergeStyle(styleName, attrs)
	width := ctx.width
	if w := dimension(attrs["width"], ctx.width); w > 0 {
		width = w
	}
	gap := tableRowGap
	for _, k := range []string{"row-gap", "rowGap"} {
		if v := attrs[k]; v != "" {
			gap = mm(v)
			break
		}
	}
	columns := 0
	for _, stmt := range cmd.Block.Statements {
		if stmt.Command != nil && (stmt.Command.Name == "header" || stmt.Command.Name == "row") {
			if n := countCells(stmt.Command); n > columns {
				columns = n
			}
		}
	}
	if columns == 0 {
		b.errorf(cmd.Pos, "table 需要至少一个单元格")
		return
	}
	colWidth := width / float64(columns)

	table := TableBox{
		X:           ctx.baseX,
		Y:           ctx.cursorY,
		Width:       width,
		RowGap:      gap,
		BorderColor: defaultBorderColor,
	}
	for i := 0; i < columns; i++ {
		table.ColumnWidths = append(table.ColumnWidths, colWidth)
	}

	var header *TableRow
	for _, stmt := range cmd.Block.Statements {
		rc := stmt.Command
		if rc == nil || (rc.Name != "header" && rc.Name != "row") {
			continue
		}
		row, ok := b.buildRow(rc, table.X, colWidth, rc.Name == "header")
		if !ok {
			continue
		}
		// 行放不下时换页，并在新页重复表头
		if ctx.allowBreak && !ctx.fits(row.Height) && !ctx.atTop() {
			if len(table.Rows) > 0 {
				ctx.layer().Tables = append(ctx.layer().Tables, table)
			}
			ctx.pageBreak()
			table.Y, table.Rows = ctx.cursorY, nil
			if header != nil && !row.IsHeader {
				b.appendRow(&table, *header, ctx)
			}
		}
		if row.IsHeader {
			h := row
			header = &h
		}
		b.appendRow(&table, row, ctx)
	}
	if len(table.Rows) > 0 {
		ctx.layer().Tables = append(ctx.layer().Tables, table)
		ctx.cursorY -= gap
	}
	ctx.cursorY += blockSpacing
}

// appendRow 把行放在当前光标处，单元格文本随行一起平移。
func (b *builder) appendRow(table *TableBox, row TableRow, ctx *flowContext) {
	dy := ctx.cursorY - row.Y
	row.Y = ctx.cursorY
	cells := make([]TextBox, len(row.Cells))
	for i, c := range row.Cells {
		c.Y += dy
		cells[i] = c
	}
	row.Cells = cells
	table.Rows = append(table.Rows, row)
	ctx.cursorY += row.Height + table.RowGap
}

func countCells(cmd *dsl.Command) int {
	n := 0
	if cmd.Block == nil {
		return 0
	}
	for _, stmt := range cmd.Block.Statements {
		if stmt.Command != nil && stmt.Command.Name == "cell" {
			n++
		}
	}
	return n
}

// buildRow 以 Y=0 排版一行。
func (b *builder) buildRow(cmd *dsl.Command, x, colWidth float64, header bool) (TableRow, bool) {
	row := TableRow{IsHeader: header}
	if cmd.Block == nil {
		b.errorf(cmd.Pos, "%s 缺少 cell 定义", cmd.Name)
		return row, false
	}
	maxHeight := 0.0
	col := 0
	for _, stmt := range cmd.Block.Statements {
		cell := stmt.Command
		if cell == nil || cell.Name != "cell" {
			continue
		}
		styleName, attrs := parseArgs(cell.Args, true)
		attrs = b.mergeStyle(styleName, attrs)
		if header && attrs["weight"] == "" {
			attrs["weight"] = "bold"
		}
		innerWidth := colWidth - 2*cellPadding
		if innerWidth <= 0 {
			innerWidth = colWidth
		}
		content := extractText(cell.Block)
		tb, ok := b.composeText(styleName, attrs, content, x+float64(col)*colWidth+cellPadding, innerWidth, normalizeWrap(attrs["wrap"]), cell.Pos)
		col++
		if !ok {
			continue
		}
		tb.Y = cellPadding
		row.Cells = append(row.Cells, tb)
		if tb.Height > maxHeight {
			maxHeight = tb.Height
		}
	}
	if col == 0 {
		b.errorf(cmd.Pos, "%s 中至少需要一个 cell", cmd.Name)
		return row, false
	}
	row.Height = maxHeight + 2*cellPadding
	return row, true
}

func (b *builder) handleShape(cmd *dsl.Command, ctx *flowContext) {
	_, attrs := parseArgs(cmd.Args, false)
	layer := ctx.layer()
	switch strings.ToLower(cmd.Name) {
	case "line":
		if ln, ok := b.parseLine(attrs); ok {
			layer.Lines = append(layer.Lines, ln)
			return
		}
	case "rect":
		if rc, ok := b.parseRect(attrs); ok {
			layer.Rects = append(layer.Rects, rc)
			return
		}
	case "circle":
		if c, ok := b.parseCircle(attrs); ok {
			layer.Circles = append(layer.Circles, c)
			return
		}
	}
	b.warnf(cmd.Pos, "%s 参数不完整，已忽略", cmd.Name)
}

// parseLine 支持 x1/y1/x2/y2 与 x/y/length/dir 两种写法，坐标为页面坐标。
func (b *builder) parseLine(attrs map[string]string) (Line, bool) {
	ln := Line{Color: Color{}, Width: mm(attrs["width"])}
	if v := attrs["color"]; v != "" {
		ln.Color = b.res.color(v)
	}
	x1, y1, x2, y2 := mm(attrs["x1"]), mm(attrs["y1"]), mm(attrs["x2"]), mm(attrs["y2"])
	if x1 != 0 || y1 != 0 || x2 != 0 || y2 != 0 {
		ln.X1, ln.Y1, ln.X2, ln.Y2 = x1, y1, x2, y2
		return ln, true
	}
	x, y, length := mm(attrs["x"]), mm(attrs["y"]), mm(attrs["length"])
	if length <= 0 {
		return Line{}, false
	}
	ln.X1, ln.Y1 = x, y
	switch strings.ToLower(strings.TrimSpace(attrs["dir"])) {
	case "", "h", "horizontal":
		ln.X2, ln.Y2 = x+length, y
	case "v", "vertical":
		ln.X2, ln.Y2 = x, y+length
	default:
		return Line{}, false
	}
	return ln, true
}

func (b *builder) parseRect(attrs map[string]string) (Rect, bool) {
	rc := Rect{
		X:           mm(attrs["x"]),
		Y:           mm(attrs["y"]),
		Width:       mm(attrs["width"]),
		Height:      mm(attrs["height"]),
		StrokeWidth: mm(attrs["stroke-width"]),
	}
	if rc.Width <= 0 || rc.Height <= 0 {
		return Rect{}, false
	}
	if v := attrs["stroke"]; v != "" {
		rc.StrokeColor = b.res.color(v)
	}
	if v := attrs["fill"]; v != "" {
		c := b.res.color(v)
		rc.FillColor = &c
	}
	return rc, true
}

func (b *builder) parseCircle(attrs map[string]string) (Circle, bool) {
	c := Circle{
		CX:          mm(attrs["cx"]),
		CY:          mm(attrs["cy"]),
		R:           mm(attrs["r"]),
		StrokeWidth: mm(attrs["stroke-width"]),
	}
	if c.R <= 0 {
		return Circle{}, false
	}
	if v := attrs["stroke"]; v != "" {
		c.StrokeColor = b.res.color(v)
	}
	if v := attrs["fill"]; v != "" {
		col := b.res.color(v)
		c.FillColor = &col
	}
	return c, true
}

// buildBand 布局页眉/页脚。页眉内容底部对齐到区域底边，页脚区域从页面底部向上占用。
func (b *builder) buildBand(cmd *dsl.Command, pc *pageCollector, header bool) Band {
	var band Band
	if cmd.Block == nil {
		return band
	}
	_, attrs := parseArgs(cmd.Args, false)
	ctx := &flowContext{
		baseX:  pc.margin.Left,
		width:  pc.width - pc.margin.Left - pc.margin.Right,
		target: &band.Layer,
		wrap:   "anywhere",
	}
	if header {
		ctx.align = "center"
	}
	b.processBlock(cmd.Block, ctx)

	content := ctx.cursorY
	if content > 0 {
		content -= blockSpacing
	}
	area := content
	if h := dimension(attrs["height"], ctx.width); h > 0 {
		area = h
	}
	offset := pc.height - area
	if header {
		offset = area - content
		if offset < 0 {
			offset = 0
		}
	}
	band.Height = area
	band.shift(offset)
	return band
}

// shift 纵向平移文本、图片与表格；形状使用页面坐标，保持不动。
func (l *Layer) shift(dy float64) {
	for i := range l.Texts {
		l.Texts[i].Y += dy
	}
	for i := range l.Images {
		l.Images[i].Y += dy
	}
	for i := range l.Tables {
		l.Tables[i].Y += dy
		for j := range l.Tables[i].Rows {
			row := &l.Tables[i].Rows[j]
			row.Y += dy
			for k := range row.Cells {
				row.Cells[k].Y += dy
			}
		}
	}
}

// inferWidth 估算居中/右对齐 flow 的内容宽度。
func (b *builder) inferWidth(block *dsl.Block, maxWidth float64) float64 {
	width := 0.0
	for _, stmt := range block.Statements {
		cmd := stmt.Command
		if cmd == nil {
			continue
		}
		var w float64
		switch cmd.Name {
		case "text":
			styleName, attrs := parseArgs(cmd.Args, true)
			attrs = b.mergeStyle(styleName, attrs)
			if v := attrs["width"]; v != "" {
				w = dimension(v, maxWidth)
				break
			}
			content := extractText(cmd.Block)
			if content == "" {
				continue
			}
			if tb, ok := b.composeText(styleName, attrs, content, 0, maxWidth, "nowrap", cmd.Pos); ok {
				for _, ln := range tb.Lines {
					if ln.Width > w {
						w = ln.Width
					}
				}
			}
		case "flow":
			if cmd.Block != nil {
				w = b.inferWidth(cmd.Block, maxWidth)
			}
		case "image", "table":
			_, attrs := parseArgs(cmd.Args, cmd.Name == "image")
			w = dimension(attrs["width"], maxWidth)
		}
		if w > width {
			width = w
		}
	}
	return width
}

// parseArgs 把 key value 形式的参数拆成 map。
// allowStyle 时首个标识符或字符串视为名称（样式名，或 image 的资源名/路径）。
func parseArgs(args []*dsl.Lexeme, allowStyle bool) (string, map[string]string) {
	attrs := map[string]string{}
	var styleName string
	i := 0
	if allowStyle && len(args) > 0 && (args[0].Type == "Ident" || args[0].Type == "String") {
		styleName = args[0].Value
		i = 1
	}
	for ; i+1 < len(args); i += 2 {
		attrs[args[i].Value] = args[i+1].Value
	}
	return styleName, attrs
}

func (b *builder) mergeStyle(styleName string, inline map[string]string) map[string]string {
	out := map[string]string{}
	if st, ok := b.res.styles[styleName]; ok {
		for k, v := range st.props {
			out[k] = v
		}
	}
	for k, v := range inline {
		out[k] = v
	}
	return out
}

func extractText(block *dsl.Block) string {
	if block == nil {
		return ""
	}
	var sb strings.Builder
	for _, stmt := range block.Statements {
		if stmt.Text != nil {
			sb.WriteString(string(stmt.Text.Value))
		}
	}
	return sb.String()
}

func normalizeAlign(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "left", "start":
		return "left"
	case "center", "middle":
		return "center"
	case "right", "end":
		return "right"
	default:
		return ""
	}
}

func normalizeWrap(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "break-word", "word-break:break-word":
		return "break-word"
	case "nowrap", "no-wrap":
		return "nowrap"
	default:
		return "anywhere"
	}
}

func alignOffset(container, width float64, align string) float64 {
	if container <= width {
		return 0
	}
	switch align {
	case "center":
		return (container - width) / 2
	case "right":
		return container - width
	default:
		return 0
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
