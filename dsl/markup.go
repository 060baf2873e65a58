package dsl

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2/lexer"
)

// 纯文本标记：
//   - 空行分隔段落
//   - "= " / "== " 开头的行是一级、二级标题
//   - 独占一行的 #image("path") 或 #image("path", width: 50%) 插入图片
//   - 独占一行的 #pagebreak 强制换页
//   - 以 "//" 开头的行是注释

var imageDirective = regexp.MustCompile(`^#image\(\s*("(?:\\.|[^"\\])*")\s*(?:,\s*width\s*:\s*([0-9]+(?:\.[0-9]+)?(?:mm|cm|in|pt|%)?)\s*)?\)$`)

// 标记模式生成的文档使用的样式名。
const (
	StyleBody     = "body"
	StyleHeading1 = "heading1"
	StyleHeading2 = "heading2"
)

// IsStructured 判断源文本是否为结构化 DSL（首个 token 为 doc）。
func IsStructured(src string) bool {
	rest := src
	for {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		switch {
		case strings.HasPrefix(rest, "//"), strings.HasPrefix(rest, "#"):
			if i := strings.IndexByte(rest, '\n'); i >= 0 {
				rest = rest[i+1:]
				continue
			}
			return false
		case strings.HasPrefix(rest, "/*"):
			i := strings.Index(rest, "*/")
			if i < 0 {
				return false
			}
			rest = rest[i+2:]
			continue
		}
		break
	}
	if !strings.HasPrefix(rest, "doc") {
		return false
	}
	after := rest[len("doc"):]
	return after == "" || unicode.IsSpace(rune(after[0]))
}

// ParseMarkup 将纯文本标记转换为与 DSL 相同的语法树：A4 纵向单个 flow。
func ParseMarkup(filename, src string) (*Document, error) {
	p := &markupParser{filename: filename}
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	for i, raw := range lines {
		if err := p.line(i+1, raw); err != nil {
			return nil, err
		}
	}
	p.flush()

	flow := &Command{Pos: p.pos(1, 1), Name: "flow", Block: &Block{Statements: p.body}}
	return &Document{
		Pos:     p.pos(1, 1),
		Name:    "Markup",
		Version: "v1",
		Sections: []*Section{
			{Resources: &ResourcesSection{Block: markupStyles()}},
			{Page: &PageSection{
				Pos:   p.pos(1, 1),
				Spec:  PageSpec{Size: "A4"},
				Block: &Block{Statements: []*Statement{{Command: flow}}},
			}},
		},
	}, nil
}

type markupParser struct {
	filename string
	body     []*Statement
	para     []string
	paraPos  lexer.Position
}

func (p *markupParser) pos(line, col int) lexer.Position {
	return lexer.Position{Filename: p.filename, Line: line, Column: col}
}

func (p *markupParser) line(n int, raw string) error {
	trimmed := strings.TrimSpace(raw)
	col := len(raw) - len(strings.TrimLeft(raw, " \t")) + 1
	switch {
	case trimmed == "":
		p.flush()
	case strings.HasPrefix(trimmed, "//"):
	case strings.HasPrefix(trimmed, "== "):
		p.flush()
		p.text(StyleHeading2, strings.TrimSpace(trimmed[3:]), p.pos(n, col))
	case strings.HasPrefix(trimmed, "= "):
		p.flush()
		p.text(StyleHeading1, strings.TrimSpace(trimmed[2:]), p.pos(n, col))
	case trimmed == "#pagebreak":
		p.flush()
		p.body = append(p.body, &Statement{Command: &Command{Pos: p.pos(n, col), Name: "pagebreak"}})
	case strings.HasPrefix(trimmed, "#image"):
		p.flush()
		m := imageDirective.FindStringSubmatch(trimmed)
		if m == nil {
			return &SyntaxError{Pos: p.pos(n, col), Message: `image 指令格式应为 #image("path") 或 #image("path", width: 50%)`}
		}
		path, err := strconv.Unquote(m[1])
		if err != nil {
			return &SyntaxError{Pos: p.pos(n, col), Message: "image 路径不是合法的字符串：" + err.Error()}
		}
		cmd := &Command{Pos: p.pos(n, col), Name: "image", Args: []*Lexeme{
			{Type: "String", Value: path, Raw: m[1], Pos: p.pos(n, col+len("#image("))},
		}}
		if m[2] != "" {
			cmd.Args = append(cmd.Args,
				&Lexeme{Type: "Ident", Value: "width", Raw: "width", Pos: p.pos(n, col)},
				&Lexeme{Type: "Number", Value: m[2], Raw: m[2], Pos: p.pos(n, col)},
			)
		}
		p.body = append(p.body, &Statement{Command: cmd})
	default:
		if len(p.para) == 0 {
			p.paraPos = p.pos(n, col)
		}
		p.para = append(p.para, trimmed)
	}
	return nil
}

// flush 结束当前段落；段内换行合并为空格。
func (p *markupParser) flush() {
	if len(p.para) == 0 {
		return
	}
	p.text(StyleBody, strings.Join(p.para, " "), p.paraPos)
	p.para = nil
}

func (p *markupParser) text(style, content string, pos lexer.Position) {
	if content == "" {
		return
	}
	p.body = append(p.body, &Statement{Command: &Command{
		Pos:  pos,
		Name: "text",
		Args: []*Lexeme{{Type: "Ident", Value: style, Raw: style, Pos: pos}},
		Block: &Block{Statements: []*Statement{
			{Text: &TextLiteral{Value: StringLiteral(content)}},
		}},
	}})
}

func markupStyles() *Block {
	style := func(name string, props ...string) *Statement {
		cmd := &Command{
			Name:  "style",
			Args:  []*Lexeme{{Type: "Ident", Value: name, Raw: name}},
			Block: &Block{},
		}
		for i := 0; i+1 < len(props); i += 2 {
			v := props[i+1]
			cmd.Block.Statements = append(cmd.Block.Statements, &Statement{
				Assignment: &Assignment{Key: props[i], Value: &Value{Number: &v}},
			})
		}
		return &Statement{Command: cmd}
	}
	return &Block{Statements: []*Statement{
		style(StyleBody, "size", "11pt", "line-height", "1.4x"),
		style(StyleHeading1, "size", "20pt", "weight", "bold", "line-height", "1.2x"),
		style(StyleHeading2, "size", "15pt", "weight", "bold", "line-height", "1.2x"),
	}}
}
