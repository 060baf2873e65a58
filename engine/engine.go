// Package engine 实现 world.Engine：解析入口文件（结构化 DSL 或纯文本标记），
// 准备数据绑定，再交给 layout 计算页面。
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ByLCY/papyrus-bridge/diag"
	"github.com/ByLCY/papyrus-bridge/dsl"
	"github.com/ByLCY/papyrus-bridge/layout"
	"github.com/ByLCY/papyrus-bridge/resources"
	"github.com/ByLCY/papyrus-bridge/world"
)

// Engine 是无状态的编译器，可以被多个 Adapter 共享。
type Engine struct {
	ts layout.Typesetter
}

// New 创建引擎。ts 为空时文本按估算尺寸折行。
func New(ts layout.Typesetter) *Engine {
	return &Engine{ts: ts}
}

// Compile 编译 w 中的入口文件。
// 源文件问题（编码、语法、缺失资源）以诊断返回；只有取消或入口缺失才返回 error。
func (e *Engine) Compile(ctx context.Context, w world.World) (*layout.Document, diag.List, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	main, err := w.Main()
	if err != nil {
		return nil, nil, err
	}
	if !utf8.Valid(main) {
		return nil, diag.List{diag.Errorf(diag.At(resources.MainPath, 0, 0), "入口文件不是合法的 UTF-8 文本")}, nil
	}

	src := string(main)
	var doc *dsl.Document
	if dsl.IsStructured(src) {
		doc, err = dsl.ParseFile(resources.MainPath, src)
	} else {
		doc, err = dsl.ParseMarkup(resources.MainPath, src)
	}
	if err != nil {
		return nil, diag.List{syntaxDiagnostic(err)}, nil
	}

	var diags diag.List
	data := e.bindingData(doc, w, &diags)
	if diags.HasErrors() {
		return nil, diags, nil
	}

	out, buildDiags := layout.Build(doc, w, layout.Options{
		Path:       resources.MainPath,
		Typesetter: e.ts,
		Data:       data,
	})
	diags = append(diags, buildDiags...)
	if diags.HasErrors() {
		return nil, diags, nil
	}
	return out, diags, nil
}

func syntaxDiagnostic(err error) diag.Diagnostic {
	if se, ok := dsl.AsSyntaxError(err); ok {
		path := se.Pos.Filename
		if path == "" {
			path = resources.MainPath
		}
		return diag.Errorf(diag.At(path, se.Pos.Line, se.Pos.Column), "语法错误：%s", se.Message)
	}
	return diag.Errorf(diag.At(resources.MainPath, 0, 0), "语法错误：%v", err)
}

// bindingData 组装 ${...} 的根对象：meta 中 data 指向的 JSON 文件，外加 today。
// JSON 顶层是对象时其键直接成为根键，否则放在 data 之下。
func (e *Engine) bindingData(doc *dsl.Document, w world.World, diags *diag.List) map[string]any {
	_, extra := layout.CollectMeta(doc)
	root := map[string]any{}

	if path := strings.TrimSpace(extra["data"]); path != "" {
		loc := metaLocation(doc, "data")
		raw, err := w.File(path)
		switch {
		case errors.Is(err, world.ErrNotFound):
			*diags = append(*diags, diag.Errorf(loc, "数据文件 %s 不存在", path))
		case err != nil:
			*diags = append(*diags, diag.Errorf(loc, "数据文件 %s 无法读取：%v", path, err))
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				*diags = append(*diags, diag.Errorf(loc, "数据文件 %s 不是合法的 JSON：%v", path, err))
				break
			}
			if obj, ok := v.(map[string]any); ok {
				root = obj
			} else {
				root["data"] = v
			}
		}
	}

	var offset *int
	if v := strings.TrimSpace(extra["utc-offset"]); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= -24 && n <= 24 {
			offset = &n
		} else {
			*diags = append(*diags, diag.Warnf(metaLocation(doc, "utc-offset"), "utc-offset %q 无效，改用本地时区", v))
		}
	}
	if _, ok := root["today"]; !ok {
		root["today"] = w.Today(offset).Format("2006-01-02")
	}
	return root
}

func metaLocation(doc *dsl.Document, key string) *diag.Location {
	for _, section := range doc.Sections {
		if section.Meta == nil || section.Meta.Block == nil {
			continue
		}
		for _, stmt := range section.Meta.Block.Statements {
			if a := stmt.Assignment; a != nil && strings.EqualFold(a.Key, key) && a.Pos.Line > 0 {
				return diag.At(resources.MainPath, a.Pos.Line, a.Pos.Column)
			}
		}
	}
	return nil
}
