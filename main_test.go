package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/ByLCY/papyrus-bridge/fontbook"
)

func TestAssetPaths(t *testing.T) {
	mainFile := filepath.Join("docs", "report.papyrus")
	cases := []struct {
		spec, logical, local string
	}{
		{"img/logo.png=/tmp/x.png", "img/logo.png", "/tmp/x.png"},
		{filepath.Join("docs", "img", "a.png"), "img/a.png", filepath.Join("docs", "img", "a.png")},
		{filepath.Join("other", "b.png"), "b.png", filepath.Join("other", "b.png")},
	}
	for _, tc := range cases {
		logical, local := assetPaths(mainFile, tc.spec)
		if logical != tc.logical || local != tc.local {
			t.Fatalf("assetPaths(%q) = (%q, %q), want (%q, %q)", tc.spec, logical, local, tc.logical, tc.local)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if _, err := newLogger(level); err != nil {
			t.Fatalf("level %s: %v", level, err)
		}
	}
	if _, err := newLogger("loud"); err == nil {
		t.Fatalf("unknown level should fail")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRenderSVGToFile(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "hello.papyrus")
	writeFile(t, mainPath, "= Hello\n\nWorld\n")
	out := filepath.Join(dir, "out", "hello.svg")
	debug := filepath.Join(dir, "out", "layout.json")

	cmd := &RenderCmd{Main: mainPath, DefaultFonts: true, Format: "svg", Out: out, DebugJSON: debug}
	if err := cmd.Run(&Globals{Ctx: context.Background(), Log: zap.NewNop()}); err != nil {
		t.Fatalf("render: %v", err)
	}
	svg, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Contains(svg, []byte("<svg")) {
		t.Fatalf("output is not svg")
	}
	raw, err := os.ReadFile(debug)
	if err != nil {
		t.Fatalf("read debug json: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"pages"`)) {
		t.Fatalf("debug json missing pages: %.80s", raw)
	}
}

func TestRenderFailsOnDiagnostics(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "broken.papyrus")
	writeFile(t, mainPath, "Title\n\n#image(\"missing.png\")\n")
	cmd := &RenderCmd{Main: mainPath, DefaultFonts: true, Format: "pdf", Out: filepath.Join(dir, "x.pdf")}
	err := cmd.Run(&Globals{Ctx: context.Background(), Log: zap.NewNop()})
	if err == nil || !strings.Contains(err.Error(), "编译失败") {
		t.Fatalf("expected a compile failure, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "x.pdf")); !os.IsNotExist(statErr) {
		t.Fatalf("no output should be written on failure")
	}
}

func TestRenderNeedsInput(t *testing.T) {
	cmd := &RenderCmd{Format: "pdf", Out: "-"}
	if err := cmd.Run(&Globals{Ctx: context.Background(), Log: zap.NewNop()}); err == nil {
		t.Fatalf("expected an error without main or bundle")
	}
}

func TestPrintFonts(t *testing.T) {
	recs, err := fontbook.Parse(gomono.TTF)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var buf bytes.Buffer
	if err := printFonts(&buf, recs); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(buf.String(), "Go Mono") {
		t.Fatalf("listing should name the family:\n%s", buf.String())
	}
}
