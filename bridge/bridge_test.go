package bridge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ByLCY/papyrus-bridge/diag"
	"github.com/ByLCY/papyrus-bridge/fontbook"
	"github.com/ByLCY/papyrus-bridge/layout"
	"github.com/ByLCY/papyrus-bridge/renderer"
	"github.com/ByLCY/papyrus-bridge/world"
)

type countingEngine struct {
	calls int
	main  []byte
}

func (e *countingEngine) Compile(_ context.Context, w world.World) (*layout.Document, diag.List, error) {
	e.calls++
	main, err := w.Main()
	if err != nil {
		return nil, nil, err
	}
	e.main = main
	return &layout.Document{Pages: []layout.Page{{}, {}}}, nil, nil
}

func clock() time.Time {
	return time.Date(2025, time.January, 2, 9, 0, 0, 0, time.UTC)
}

func TestHelloProducesOnePage(t *testing.T) {
	b := New(WithDefaultFonts(), WithClock(clock))
	b.SetMainText([]byte("Hello"))
	res, err := b.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if res.Doc == 0 || res.Pages != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Diagnostics.HasErrors() {
		t.Fatalf("unexpected diagnostics: %s", res.Diagnostics)
	}
	svg, err := b.RenderSVG(res.Doc, 0)
	if err != nil {
		t.Fatalf("render svg: %v", err)
	}
	if !strings.Contains(svg, "<svg") {
		t.Fatalf("output is not svg: %.80s", svg)
	}
	if _, err := b.RenderSVG(res.Doc, 1); !errors.Is(err, renderer.ErrPageOutOfRange) {
		t.Fatalf("expected ErrPageOutOfRange, got %v", err)
	}
	pdf, err := b.RenderPDF(res.Doc)
	if err != nil {
		t.Fatalf("render pdf: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("output is not pdf")
	}
}

func TestCompileWithoutMainSkipsEngine(t *testing.T) {
	eng := &countingEngine{}
	b := New(WithEngine(eng))
	if _, err := b.Compile(context.Background()); !errors.Is(err, world.ErrNoEntryPoint) {
		t.Fatalf("expected ErrNoEntryPoint, got %v", err)
	}
	if eng.calls != 0 {
		t.Fatalf("engine invoked %d times", eng.calls)
	}
}

func TestEngineSeesExactMainBytes(t *testing.T) {
	eng := &countingEngine{}
	b := New(WithEngine(eng))
	src := []byte("page A4 {\n  text \"é\"\n}\n\x00")
	b.SetMainText(src)
	if _, err := b.Compile(context.Background()); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !bytes.Equal(eng.main, src) {
		t.Fatalf("engine saw %q, want %q", eng.main, src)
	}
}

func TestRejectedFontLeavesBookUnchanged(t *testing.T) {
	b := New(WithDefaultFonts())
	before := len(b.Fonts())
	if before == 0 {
		t.Fatalf("default fonts were not registered")
	}
	_, err := b.AddFont([]byte("0123456789"))
	if !errors.Is(err, fontbook.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if got := len(b.Fonts()); got != before {
		t.Fatalf("font count changed from %d to %d", before, got)
	}
}

const peopleDoc = `doc People v1 {
  meta {
    data: "people.json"
  }
  page A4 {
    flow {
      text { "${name}" }
    }
  }
}`

func TestAssetOverwriteAndRemove(t *testing.T) {
	b := New(WithDefaultFonts(), WithClock(clock))
	b.SetMainText([]byte(peopleDoc))
	if err := b.AddFile("people.json", []byte(`{"name":"first"}`)); err != nil {
		t.Fatalf("add file: %v", err)
	}
	if err := b.AddFile("/people.json", []byte(`{"name":"second"}`)); err != nil {
		t.Fatalf("overwrite file: %v", err)
	}
	res, err := b.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	doc, err := b.Document(res.Doc)
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if got := doc.Pages[0].Texts[0].Content; got != "second" {
		t.Fatalf("expected the overwritten data, got %q", got)
	}

	if !b.RemoveFile("people.json") {
		t.Fatalf("remove should report an existing file")
	}
	if b.RemoveFile("people.json") {
		t.Fatalf("second remove should report a missing file")
	}
	res, err = b.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if res.Doc != 0 || !res.Diagnostics.HasErrors() {
		t.Fatalf("missing data file should fail with a diagnostic, got %+v", res)
	}
}

func TestAddFileRejectsInvalidPath(t *testing.T) {
	b := New()
	if err := b.AddFile("../escape.png", []byte{1}); err == nil {
		t.Fatalf("expected an error for a path leaving the root")
	}
}

func TestSetMainInvalidatesHandles(t *testing.T) {
	b := New(WithEngine(&countingEngine{}), WithRenderer(stubRenderer{}))
	b.SetMainText([]byte("a"))
	first, err := b.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	second, err := b.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if first.Doc == second.Doc {
		t.Fatalf("handles must be distinct")
	}
	if _, err := b.RenderSVG(first.Doc, 1); err != nil {
		t.Fatalf("older handle should still be valid: %v", err)
	}

	b.SetMainText([]byte("b"))
	for _, id := range []DocID{first.Doc, second.Doc} {
		if _, err := b.RenderSVG(id, 0); !errors.Is(err, ErrInvalidHandle) {
			t.Fatalf("handle %d: expected ErrInvalidHandle, got %v", id, err)
		}
	}

	third, err := b.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if third.Doc == first.Doc || third.Doc == second.Doc {
		t.Fatalf("stale handles must not be reused")
	}
}

func TestRelease(t *testing.T) {
	b := New(WithEngine(&countingEngine{}), WithRenderer(stubRenderer{}))
	b.SetMainText([]byte("a"))
	res, err := b.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !b.Release(res.Doc) {
		t.Fatalf("release should report a live handle")
	}
	if b.Release(res.Doc) {
		t.Fatalf("double release should report false")
	}
	if b.Release(0) {
		t.Fatalf("handle 0 is never valid")
	}
	if _, err := b.RenderPDF(res.Doc); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestInstancesAreIsolated(t *testing.T) {
	a := New(WithEngine(&countingEngine{}), WithRenderer(stubRenderer{}))
	b := New(WithEngine(&countingEngine{}), WithRenderer(stubRenderer{}))
	if a.ID() == b.ID() {
		t.Fatalf("instances share an id")
	}
	a.SetMainText([]byte("a"))
	if err := a.AddFile("x.txt", []byte("x")); err != nil {
		t.Fatalf("add file: %v", err)
	}
	res, err := a.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(b.Files()) != 0 {
		t.Fatalf("files leaked across instances: %v", b.Files())
	}
	if _, err := b.Compile(context.Background()); !errors.Is(err, world.ErrNoEntryPoint) {
		t.Fatalf("expected ErrNoEntryPoint on the second instance, got %v", err)
	}
	if _, err := b.RenderSVG(res.Doc, 0); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("handles must not cross instances, got %v", err)
	}
}

func TestLogsCarryBridgeID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	b := New(WithLogger(zap.New(core)), WithEngine(&countingEngine{}), WithRenderer(stubRenderer{}))
	b.SetMainText([]byte("a"))
	if _, err := b.Compile(context.Background()); err != nil {
		t.Fatalf("compile: %v", err)
	}
	entries := logs.FilterMessage("compile finished").All()
	if len(entries) != 1 {
		t.Fatalf("expected one compile log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["bridge_id"]; got != b.ID() {
		t.Fatalf("bridge_id = %v, want %s", got, b.ID())
	}
}

func TestDocTableNeverReusesHandles(t *testing.T) {
	var tbl docTable
	a := tbl.insert(&layout.Document{})
	if a != 1 {
		t.Fatalf("first handle = %d, want 1", a)
	}
	if !tbl.drop(a) {
		t.Fatalf("drop failed")
	}
	b := tbl.insert(&layout.Document{})
	if b == a {
		t.Fatalf("dropped handle reused")
	}
	if n := tbl.invalidate(); n != 1 {
		t.Fatalf("invalidate released %d, want 1", n)
	}
	if _, ok := tbl.get(b); ok {
		t.Fatalf("handle survived invalidate")
	}
}

func TestDocTableDropsInvalidatedSlots(t *testing.T) {
	var tbl docTable
	ids := make([]DocID, 0, 100)
	for i := 0; i < 100; i++ {
		ids = append(ids, tbl.insert(&layout.Document{}))
	}
	tbl.invalidate()
	if len(tbl.entries) != 0 {
		t.Fatalf("invalidate kept %d slots", len(tbl.entries))
	}
	next := tbl.insert(&layout.Document{})
	if next != 101 {
		t.Fatalf("handle after invalidate = %d, want 101", next)
	}
	for _, id := range ids {
		if _, ok := tbl.get(id); ok {
			t.Fatalf("stale handle %d resolved", id)
		}
	}

	later := tbl.insert(&layout.Document{})
	tbl.drop(next)
	if len(tbl.entries) != 1 {
		t.Fatalf("released prefix not trimmed, %d slots", len(tbl.entries))
	}
	if _, ok := tbl.get(later); !ok {
		t.Fatalf("handle %d lost after trimming", later)
	}
	if tbl.drop(next) {
		t.Fatalf("trimmed handle %d dropped twice", next)
	}
}

// gatedEngine 在读取入口文件后阻塞，直到 release 关闭。
type gatedEngine struct {
	entered chan string
	release chan struct{}
}

func (e *gatedEngine) Compile(_ context.Context, w world.World) (*layout.Document, diag.List, error) {
	main, err := w.Main()
	if err != nil {
		return nil, nil, err
	}
	e.entered <- string(main)
	<-e.release
	return &layout.Document{Pages: []layout.Page{{}}}, nil, nil
}

func TestSetMainDuringCompileDiscardsResult(t *testing.T) {
	eng := &gatedEngine{entered: make(chan string, 1), release: make(chan struct{})}
	b := New(WithEngine(eng), WithRenderer(stubRenderer{}))
	b.SetMainText([]byte("old"))

	type result struct {
		res *Compiled
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := b.Compile(context.Background())
		done <- result{res, err}
	}()
	if got := <-eng.entered; got != "old" {
		t.Fatalf("engine saw main %q", got)
	}
	b.SetMainText([]byte("new"))
	close(eng.release)

	r := <-done
	if r.err != nil {
		t.Fatalf("compile: %v", r.err)
	}
	if r.res.Doc != 0 {
		if _, err := b.Document(r.res.Doc); err == nil {
			t.Fatalf("handle %d compiled from the replaced main is still valid", r.res.Doc)
		}
		t.Fatalf("stale compile should not allocate a handle, got %d", r.res.Doc)
	}

	go func() {
		res, err := b.Compile(context.Background())
		done <- result{res, err}
	}()
	if got := <-eng.entered; got != "new" {
		t.Fatalf("engine saw main %q", got)
	}
	r = <-done
	if r.err != nil || r.res.Doc == 0 {
		t.Fatalf("compile of the current main failed: %+v %v", r.res, r.err)
	}
}

type stubRenderer struct{}

func (stubRenderer) SVG(_ *layout.Document, page int) ([]byte, error) {
	return []byte("<svg/>"), nil
}

func (stubRenderer) PDF(*layout.Document) ([]byte, error) {
	return []byte("%PDF-1.7"), nil
}
