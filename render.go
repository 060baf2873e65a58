package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ByLCY/papyrus-bridge/bridge"
	"github.com/ByLCY/papyrus-bridge/bundle"
	"github.com/ByLCY/papyrus-bridge/layout"
	"github.com/ByLCY/papyrus-bridge/renderer/svgcheck"
)

// RenderCmd 编译一份文档并写出结果。
type RenderCmd struct {
	Main         string   `arg:"" optional:"" help:"入口源文件；使用 --bundle 时可省略" type:"existingfile"`
	Assets       []string `name:"asset" short:"a" help:"辅助文件，形如 logical/path=local/file，省略 '=' 时按相对入口文件的路径注册"`
	Bundle       string   `name:"bundle" short:"b" help:"tar、tar.gz 或 tar.xz 资源包" type:"existingfile"`
	FontFiles    []string `name:"font" short:"f" help:"字体文件（ttf/otf/ttc）" type:"existingfile"`
	DefaultFonts bool     `name:"default-fonts" help:"注册内置的 Go 字体"`
	Format       string   `name:"format" help:"输出格式" default:"pdf" enum:"pdf,svg"`
	Page         int      `name:"page" help:"SVG 输出的页码，从 0 开始" default:"0"`
	Out          string   `name:"out" short:"o" help:"输出路径，- 表示标准输出" default:"-"`
	DebugJSON    string   `name:"debug-json" help:"布局结果的调试 JSON 输出路径" type:"path"`
}

// Run 执行 render 子命令。
func (c *RenderCmd) Run(g *Globals) error {
	var opts []bridge.Option
	opts = append(opts, bridge.WithLogger(g.Log))
	if c.DefaultFonts {
		opts = append(opts, bridge.WithDefaultFonts())
	}
	b := bridge.New(opts...)

	if err := c.load(b); err != nil {
		return err
	}

	res, err := b.Compile(g.Ctx)
	if err != nil {
		return fmt.Errorf("编译失败: %w", err)
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintln(os.Stderr, d.String())
	}
	if res.Doc == 0 {
		return fmt.Errorf("编译失败：%d 个错误", len(res.Diagnostics.Errors()))
	}

	if c.DebugJSON != "" {
		doc, err := b.Document(res.Doc)
		if err != nil {
			return err
		}
		if err := writeDebug(doc, c.DebugJSON); err != nil {
			return err
		}
	}

	var out []byte
	switch c.Format {
	case "svg":
		svg, err := b.RenderSVG(res.Doc, c.Page)
		if err != nil {
			return fmt.Errorf("渲染 SVG 失败: %w", err)
		}
		out = []byte(svg)
		if info, err := svgcheck.Inspect(out); err != nil {
			g.Log.Warn("svg output is not well-formed", zap.Error(err))
		} else {
			g.Log.Info("svg rendered",
				zap.Int("page", c.Page),
				zap.String("width", info.Width),
				zap.String("height", info.Height),
				zap.Int("elements", info.Elements),
				zap.Int("images", info.Images))
		}
	default:
		out, err = b.RenderPDF(res.Doc)
		if err != nil {
			return fmt.Errorf("渲染 PDF 失败: %w", err)
		}
	}
	return c.write(out)
}

// load 依次推送资源包、字体、辅助文件和入口文件；命令行给出的文件覆盖资源包中的同名文件。
func (c *RenderCmd) load(b *bridge.Bridge) error {
	if c.Bundle != "" {
		f, err := os.Open(c.Bundle)
		if err != nil {
			return fmt.Errorf("无法打开资源包 %s: %w", c.Bundle, err)
		}
		defer f.Close()
		bun, err := bundle.Read(f)
		if err != nil {
			return fmt.Errorf("读取资源包 %s 失败: %w", c.Bundle, err)
		}
		if err := bun.Install(b); err != nil {
			return err
		}
	}
	for _, path := range c.FontFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("读取字体 %s 失败: %w", path, err)
		}
		if _, err := b.AddFont(data); err != nil {
			return fmt.Errorf("注册字体 %s 失败: %w", path, err)
		}
	}
	for _, spec := range c.Assets {
		logical, local := assetPaths(c.Main, spec)
		data, err := os.ReadFile(local)
		if err != nil {
			return fmt.Errorf("读取文件 %s 失败: %w", local, err)
		}
		if err := b.AddFile(logical, data); err != nil {
			return err
		}
	}
	if c.Main != "" {
		data, err := os.ReadFile(c.Main)
		if err != nil {
			return fmt.Errorf("无法打开入口文件 %s: %w", c.Main, err)
		}
		b.SetMainText(data)
	} else if c.Bundle == "" {
		return errors.New("需要入口文件或 --bundle")
	}
	return nil
}

// assetPaths 拆分 --asset 参数。没有 '=' 时，逻辑路径取本地文件相对入口文件目录的路径，
// 越出该目录时退化为文件名。
func assetPaths(mainPath, spec string) (logical, local string) {
	if l, r, ok := strings.Cut(spec, "="); ok {
		return l, r
	}
	local = spec
	base := "."
	if mainPath != "" {
		base = filepath.Dir(mainPath)
	}
	rel, err := filepath.Rel(base, local)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(local), local
	}
	return filepath.ToSlash(rel), local
}

func (c *RenderCmd) write(data []byte) error {
	if c.Out == "" || c.Out == "-" {
		if c.Format == "pdf" && term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("拒绝向终端输出 PDF，请使用 --out 指定文件")
		}
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Out), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", c.Out, err)
	}
	fmt.Fprintf(os.Stderr, "已生成 %s：%s\n", strings.ToUpper(c.Format), c.Out)
	return nil
}

func writeDebug(doc *layout.Document, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建调试文件失败: %w", err)
	}
	if err := layout.WriteJSON(f, doc); err != nil {
		f.Close()
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return f.Close()
}
