package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/ByLCY/papyrus-bridge/diag"
	"github.com/ByLCY/papyrus-bridge/fontbook"
	"github.com/ByLCY/papyrus-bridge/layout"
	"github.com/ByLCY/papyrus-bridge/resources"
	"github.com/ByLCY/papyrus-bridge/world"
)

var clock = time.Date(2024, time.March, 1, 20, 0, 0, 0, time.UTC)

func newWorld(t *testing.T, main string, assets map[string]string, withFont bool) *world.Snapshot {
	t.Helper()
	table := resources.NewTable()
	table.SetMain([]byte(main))
	for p, c := range assets {
		if _, err := table.PutAsset(p, []byte(c)); err != nil {
			t.Fatalf("put %s: %v", p, err)
		}
	}
	book := fontbook.New()
	if withFont {
		if _, err := book.Add(goregular.TTF); err != nil {
			t.Fatalf("add font: %v", err)
		}
	}
	return world.NewSnapshot(table.Snapshot(), book, clock)
}

func compile(t *testing.T, w world.World) (*layout.Document, diag.List) {
	t.Helper()
	doc, diags, err := New(nil).Compile(context.Background(), w)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return doc, diags
}

func TestPlainMarkupHello(t *testing.T) {
	doc, diags := compile(t, newWorld(t, "Hello", nil, true))
	if diags.HasErrors() || doc.PageCount() != 1 {
		t.Fatalf("unexpected result: pages=%d diags=%s", doc.PageCount(), diags)
	}
	texts := doc.Pages[0].Texts
	if len(texts) != 1 || texts[0].Content != "Hello" || texts[0].Font == "" {
		t.Fatalf("unexpected texts %+v", texts)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %s", diags)
	}
}

func TestMissingFontsWarn(t *testing.T) {
	doc, diags := compile(t, newWorld(t, "Hello", nil, false))
	if doc == nil || len(diags.Warnings()) != 1 {
		t.Fatalf("expected a document and one warning, got %s", diags)
	}
}

func TestSyntaxErrorHasLocation(t *testing.T) {
	doc, diags := compile(t, newWorld(t, "doc A v1 {\n  page A4 {\n    text {\n", nil, true))
	if doc != nil || len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %s", diags)
	}
	loc := diags[0].Location
	if diags[0].Severity != diag.SeverityError || loc == nil || loc.Path != resources.MainPath || loc.Line == 0 {
		t.Fatalf("unexpected diagnostic %+v", diags[0])
	}
}

func TestNonUTF8Main(t *testing.T) {
	doc, diags := compile(t, newWorld(t, "\xff\xfe", nil, true))
	if doc != nil || !diags.HasErrors() {
		t.Fatalf("expected error diagnostic, got %s", diags)
	}
}

func TestMissingImageReported(t *testing.T) {
	doc, diags := compile(t, newWorld(t, "intro\n\n#image(\"logo.png\")", nil, true))
	if doc != nil {
		t.Fatalf("document must be nil")
	}
	errs := diags.Errors()
	if len(errs) != 1 || errs[0].Location == nil || errs[0].Location.Line != 3 {
		t.Fatalf("unexpected diagnostics %s", diags)
	}
	if !strings.Contains(errs[0].Message, "logo.png") {
		t.Fatalf("message should name the file: %q", errs[0].Message)
	}
}

const boundDoc = `doc Bound v1 {
  meta {
    title: "Bound"
    data: "data/report.json"
    utc-offset: 8
  }
  page A4 {
    flow {
      text { "${customer.name} / ${total} / ${today}" }
    }
  }
}`

func TestDataBinding(t *testing.T) {
	w := newWorld(t, boundDoc, map[string]string{
		"/data/report.json": `{"customer": {"name": "Ada"}, "total": 42.5}`,
	}, true)
	doc, diags := compile(t, w)
	if doc == nil {
		t.Fatalf("compile failed: %s", diags)
	}
	if got := doc.Pages[0].Texts[0].Content; got != "Ada / 42.5 / 2024-03-02" {
		t.Fatalf("unexpected content %q", got)
	}
	if doc.Meta.Title != "Bound" {
		t.Fatalf("meta title %q", doc.Meta.Title)
	}
}

func TestDataBindingNonObject(t *testing.T) {
	src := strings.Replace(boundDoc, "${customer.name} / ${total} / ${today}", "${data[1]}", 1)
	doc, diags := compile(t, newWorld(t, src, map[string]string{"/data/report.json": `["a", "b"]`}, true))
	if doc == nil {
		t.Fatalf("compile failed: %s", diags)
	}
	if got := doc.Pages[0].Texts[0].Content; got != "b" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestMissingDataFile(t *testing.T) {
	doc, diags := compile(t, newWorld(t, boundDoc, nil, true))
	if doc != nil || len(diags.Errors()) != 1 {
		t.Fatalf("expected one error, got %s", diags)
	}
	if loc := diags.Errors()[0].Location; loc == nil || loc.Line != 4 {
		t.Fatalf("error should point at the data entry: %+v", loc)
	}
}

func TestInvalidJSON(t *testing.T) {
	doc, diags := compile(t, newWorld(t, boundDoc, map[string]string{"/data/report.json": "{"}, true))
	if doc != nil || !diags.HasErrors() {
		t.Fatalf("expected error, got %s", diags)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := New(nil).Compile(ctx, newWorld(t, "Hello", nil, true))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
