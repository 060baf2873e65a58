package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ByLCY/papyrus-bridge/diag"
	"github.com/ByLCY/papyrus-bridge/dsl"
	"github.com/ByLCY/papyrus-bridge/fontbook"
)

// resourceSet 收集 resources 段落中声明的字体、颜色、图片与样式。
type resourceSet struct {
	fonts  map[string]fontResource
	colors map[string]Color
	images map[string]imageResource
	styles map[string]style
}

// fontResource 把文档内的字体名映射到字体书查询条件。
type fontResource struct {
	name   string
	family string
	style  fontbook.Style
	weight fontbook.Weight
}

type imageResource struct {
	name   string
	src    string
	width  float64
	height float64
}

// style 是可继承的属性集合。
type style struct {
	name    string
	extends string
	props   map[string]string
	pos     dsl.Position
}

func (b *builder) collectResources(doc *dsl.Document) resourceSet {
	res := resourceSet{
		fonts:  map[string]fontResource{},
		colors: map[string]Color{},
		images: map[string]imageResource{},
		styles: map[string]style{},
	}
	raw := map[string]style{}
	for _, section := range doc.Sections {
		if section.Resources == nil || section.Resources.Block == nil {
			continue
		}
		for _, stmt := range section.Resources.Block.Statements {
			cmd := stmt.Command
			if cmd == nil || len(cmd.Args) == 0 {
				continue
			}
			name := cmd.Args[0].Value
			switch cmd.Name {
			case "font":
				res.fonts[name] = parseFontResource(name, cmd.Block)
			case "color":
				value := cmd.Args[len(cmd.Args)-1].Value
				c, err := parseColor(value)
				if err != nil {
					b.errorf(cmd.Pos, "color %s: %v", name, err)
					continue
				}
				res.colors[name] = c
			case "image":
				res.images[name] = parseImageResource(name, cmd.Block)
			case "style":
				st := style{name: name, props: blockProps(cmd.Block), pos: cmd.Pos}
				if len(cmd.Args) >= 3 && strings.EqualFold(cmd.Args[1].Value, "extends") {
					st.extends = cmd.Args[2].Value
				}
				raw[name] = st
			default:
				b.warnf(cmd.Pos, "未知的资源类型 %q，已忽略", cmd.Name)
			}
		}
	}
	res.styles = b.resolveStyles(raw)
	return res
}

func parseFontResource(name string, block *dsl.Block) fontResource {
	props := blockProps(block)
	fr := fontResource{
		name:   name,
		family: name,
		style:  fontbook.ParseStyle(props["style"]),
		weight: fontbook.ParseWeight(props["weight"]),
	}
	if f := strings.TrimSpace(props["family"]); f != "" {
		fr.family = f
	}
	return fr
}

func parseImageResource(name string, block *dsl.Block) imageResource {
	props := blockProps(block)
	return imageResource{
		name:   name,
		src:    props["src"],
		width:  mm(props["width"]),
		height: mm(props["height"]),
	}
}

// resolveStyles 展开 extends 继承链；未定义的父样式与循环继承报告为错误并跳过该样式。
func (b *builder) resolveStyles(raw map[string]style) map[string]style {
	resolved := map[string]style{}
	visiting := map[string]bool{}

	var visit func(name string) (style, error)
	visit = func(name string) (style, error) {
		if st, ok := resolved[name]; ok {
			return st, nil
		}
		st, ok := raw[name]
		if !ok {
			return style{}, fmt.Errorf("style %s 未定义", name)
		}
		if visiting[name] {
			return style{}, fmt.Errorf("style 继承存在循环：%s", name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		props := map[string]string{}
		if st.extends != "" {
			parent, err := visit(st.extends)
			if err != nil {
				return style{}, err
			}
			for k, v := range parent.props {
				props[k] = v
			}
		}
		for k, v := range st.props {
			props[k] = v
		}
		st.props = props
		resolved[name] = st
		return st, nil
	}

	for _, name := range sortedKeys(raw) {
		if _, err := visit(name); err != nil {
			b.errorf(raw[name].pos, "%v", err)
		}
	}
	return resolved
}

// CollectMeta 读取 meta 段落。已知字段写入 DocumentMeta，其余条目以小写键原样返回。
func CollectMeta(doc *dsl.Document) (DocumentMeta, map[string]string) {
	meta := DocumentMeta{Creator: "Papyrus"}
	extra := map[string]string{}
	for _, section := range doc.Sections {
		if section.Meta == nil || section.Meta.Block == nil {
			continue
		}
		for _, stmt := range section.Meta.Block.Statements {
			a := stmt.Assignment
			if a == nil {
				continue
			}
			switch key := strings.ToLower(a.Key); key {
			case "title":
				meta.Title = a.Value.Text()
			case "author":
				meta.Author = a.Value.Text()
			case "subject":
				meta.Subject = a.Value.Text()
			case "creator":
				meta.Creator = a.Value.Text()
			case "keywords":
				meta.Keywords = a.Value.Texts()
			default:
				extra[key] = a.Value.Text()
			}
		}
	}
	return meta, extra
}

// blockProps 将 block 中的赋值语句转换为 key→字符串。
func blockProps(block *dsl.Block) map[string]string {
	props := map[string]string{}
	if block == nil {
		return props
	}
	for _, stmt := range block.Statements {
		if stmt.Assignment == nil {
			continue
		}
		if v := stmt.Assignment.Value.Text(); v != "" {
			props[stmt.Assignment.Key] = v
		}
	}
	return props
}

func (r resourceSet) color(value string) Color {
	if value == "" {
		return defaultTextColor
	}
	if c, ok := r.colors[value]; ok {
		return c
	}
	if c, err := parseColor(value); err == nil {
		return c
	}
	return defaultTextColor
}

func parseColor(value string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, fmt.Errorf("颜色值 %s 无法解析", value)
	}
	var c [3]int
	for i := range c {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("颜色值 %s 无法解析", value)
		}
		c[i] = int(v)
	}
	return Color{R: c[0], G: c[1], B: c[2]}, nil
}

// location 将 DSL 位置转换为诊断位置；行号为 0 表示未知位置。
func (b *builder) location(pos dsl.Position) *diag.Location {
	if pos.Line == 0 {
		return nil
	}
	path := pos.Filename
	if path == "" {
		path = b.opts.Path
	}
	return diag.At(path, pos.Line, pos.Column)
}

func (b *builder) errorf(pos dsl.Position, format string, args ...any) {
	b.diags = append(b.diags, diag.Errorf(b.location(pos), format, args...))
}

func (b *builder) warnf(pos dsl.Position, format string, args ...any) {
	b.diags = append(b.diags, diag.Warnf(b.location(pos), format, args...))
}
