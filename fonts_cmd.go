package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/ByLCY/papyrus-bridge/fontbook"
	"github.com/ByLCY/papyrus-bridge/fonts"
)

// FontsCmd 列出字体文件中的 face，帮助确认 DSL 里该写的 family 名称。
type FontsCmd struct {
	Files   []string `arg:"" optional:"" help:"字体文件" type:"existingfile"`
	Builtin bool     `name:"builtin" help:"同时列出内置的 Go 字体"`
}

// Run 执行 fonts 子命令。
func (c *FontsCmd) Run(_ *Globals) error {
	book := fontbook.New()
	if c.Builtin {
		for _, name := range fonts.Names() {
			data, err := fonts.Load(name)
			if err != nil {
				return err
			}
			if _, err := book.Add(data); err != nil {
				return fmt.Errorf("解析内置字体 %s 失败: %w", name, err)
			}
		}
	}
	for _, path := range c.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("读取字体 %s 失败: %w", path, err)
		}
		if _, err := book.Add(data); err != nil {
			return fmt.Errorf("解析字体 %s 失败: %w", path, err)
		}
	}
	return printFonts(os.Stdout, book.All())
}

func printFonts(w io.Writer, recs []fontbook.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFAMILY\tSTYLE\tWEIGHT\tINDEX\tKEY")
	for i, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", i, r.Family, r.Style, r.Weight, r.Index, r.Key())
	}
	return tw.Flush()
}
