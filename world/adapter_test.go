package world

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ByLCY/papyrus-bridge/diag"
	"github.com/ByLCY/papyrus-bridge/fontbook"
	"github.com/ByLCY/papyrus-bridge/layout"
	"github.com/ByLCY/papyrus-bridge/resources"
)

// stubEngine 记录每次调用并把行为委托给 fn。
type stubEngine struct {
	calls int
	fn    func(ctx context.Context, w World) (*layout.Document, diag.List, error)
}

func (e *stubEngine) Compile(ctx context.Context, w World) (*layout.Document, diag.List, error) {
	e.calls++
	if e.fn == nil {
		return &layout.Document{Pages: []layout.Page{{}}}, nil, nil
	}
	return e.fn(ctx, w)
}

func fixedClock() time.Time {
	return time.Date(2024, time.March, 1, 20, 30, 0, 0, time.UTC)
}

func TestCompileWithoutMain(t *testing.T) {
	eng := &stubEngine{}
	a := NewAdapter(eng)
	if _, err := a.Compile(context.Background()); !errors.Is(err, ErrNoEntryPoint) {
		t.Fatalf("expected ErrNoEntryPoint, got %v", err)
	}
	if eng.calls != 0 {
		t.Fatalf("engine must not run without an entry point")
	}
}

func TestCompileSeesLatestMain(t *testing.T) {
	var seen string
	eng := &stubEngine{fn: func(_ context.Context, w World) (*layout.Document, diag.List, error) {
		main, err := w.Main()
		if err != nil {
			return nil, nil, err
		}
		seen = string(main)
		return &layout.Document{Pages: []layout.Page{{}}}, nil, nil
	}}
	a := NewAdapter(eng)
	for _, src := range []string{"first", "", "\x00\xff binary"} {
		a.SetMain([]byte(src))
		if _, err := a.Compile(context.Background()); err != nil {
			t.Fatalf("compile: %v", err)
		}
		if seen != src {
			t.Fatalf("engine saw %q, want %q", seen, src)
		}
	}
}

func TestOverwrittenAssetIsNeverVisible(t *testing.T) {
	var seen []byte
	eng := &stubEngine{fn: func(_ context.Context, w World) (*layout.Document, diag.List, error) {
		data, err := w.File("data/x.json")
		if err != nil {
			return nil, nil, err
		}
		seen = data
		return &layout.Document{}, nil, nil
	}}
	a := NewAdapter(eng)
	a.SetMain([]byte("Hello"))
	if err := a.PutAsset("/data/x.json", []byte("C1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	c2 := []byte("C2")
	if err := a.PutAsset("data\\x.json", c2); err != nil {
		t.Fatalf("put: %v", err)
	}
	c2[0] = 'Z'
	if _, err := a.Compile(context.Background()); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if string(seen) != "C2" {
		t.Fatalf("engine saw %q", seen)
	}
}

func TestSnapshotIsolatedFromMutations(t *testing.T) {
	var a *Adapter
	var before, after error
	eng := &stubEngine{fn: func(_ context.Context, w World) (*layout.Document, diag.List, error) {
		_, before = w.File("/late.txt")
		if err := a.PutAsset("/late.txt", []byte("late")); err != nil {
			return nil, nil, err
		}
		a.SetMain([]byte("changed"))
		_, after = w.File("/late.txt")
		main, _ := w.Main()
		if string(main) != "original" {
			t.Errorf("main changed during compile: %q", main)
		}
		return &layout.Document{}, nil, nil
	}}
	a = NewAdapter(eng)
	a.SetMain([]byte("original"))
	if _, err := a.Compile(context.Background()); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !errors.Is(before, ErrNotFound) || !errors.Is(after, ErrNotFound) {
		t.Fatalf("late asset leaked into snapshot: %v %v", before, after)
	}
	if _, err := a.Snapshot().File("/late.txt"); err != nil {
		t.Fatalf("next snapshot should see the asset: %v", err)
	}
}

func TestEngineErrorsAreNotMasked(t *testing.T) {
	eng := &stubEngine{fn: func(_ context.Context, w World) (*layout.Document, diag.List, error) {
		_, err := w.File("/missing.png")
		return nil, nil, err
	}}
	a := NewAdapter(eng)
	a.SetMain([]byte("x"))
	_, err := a.Compile(context.Background())
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, resources.ErrNotFound) {
		t.Fatalf("expected wrapped not-found error, got %v", err)
	}
}

func TestDiagnosticsPassThrough(t *testing.T) {
	want := diag.List{
		diag.Warnf(diag.At("/main.papyrus", 1, 1), "w"),
		diag.Errorf(diag.At("/main.papyrus", 2, 3), "e"),
	}
	eng := &stubEngine{fn: func(context.Context, World) (*layout.Document, diag.List, error) {
		return &layout.Document{Pages: []layout.Page{{}}}, want, nil
	}}
	a := NewAdapter(eng)
	a.SetMain([]byte("x"))
	out, err := a.Compile(context.Background())
	if err != nil {
		t.Fatalf("diagnostics must not become errors: %v", err)
	}
	if out.Document != nil {
		t.Fatalf("document must be dropped when errors are reported")
	}
	if len(out.Diagnostics) != 2 || out.Diagnostics[1].Location.Column != 3 {
		t.Fatalf("diagnostics altered: %v", out.Diagnostics)
	}
}

func TestFontQueries(t *testing.T) {
	a := NewAdapter(&stubEngine{})
	if _, err := a.AddFont(goregular.TTF); err != nil {
		t.Fatalf("add regular: %v", err)
	}
	if _, err := a.AddFont(gobold.TTF); err != nil {
		t.Fatalf("add bold: %v", err)
	}
	if _, err := a.AddFont(make([]byte, 10)); !errors.Is(err, fontbook.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	snap := a.Snapshot()
	if len(snap.Fonts()) != 2 {
		t.Fatalf("expected 2 fonts, got %d", len(snap.Fonts()))
	}
	rec, err := snap.MatchFont("go", fontbook.StyleNormal, fontbook.WeightBold)
	if err != nil || rec.Weight != fontbook.WeightBold {
		t.Fatalf("match bold: %+v %v", rec, err)
	}
	again, _ := snap.MatchFont("go", fontbook.StyleNormal, fontbook.WeightBold)
	if again.Key() != rec.Key() {
		t.Fatalf("matching must be deterministic")
	}
	if _, err := snap.MatchFont("Comic", fontbook.StyleNormal, fontbook.WeightNormal); !errors.Is(err, ErrNotFound) || !errors.Is(err, fontbook.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if r, ok := snap.Font(1); !ok || r.Weight != fontbook.WeightBold {
		t.Fatalf("font by index: %+v %v", r, ok)
	}
	if _, ok := snap.Font(2); ok {
		t.Fatalf("index out of range should fail")
	}
}

func TestTimeQueries(t *testing.T) {
	a := NewAdapter(&stubEngine{}, WithClock(fixedClock))
	snap := a.Snapshot()
	if !snap.Now().Equal(fixedClock()) {
		t.Fatalf("now: %v", snap.Now())
	}
	plus8 := 8
	if got := snap.Today(&plus8); got.Day() != 2 || got.Hour() != 0 {
		t.Fatalf("today(+8): %v", got)
	}
	minus3 := -3
	if got := snap.Today(&minus3); got.Day() != 1 {
		t.Fatalf("today(-3): %v", got)
	}
	local := fixedClock().Local()
	if got := snap.Today(nil); got.Day() != local.Day() {
		t.Fatalf("today(local): %v", got)
	}
}

func TestInvalidPathsRejected(t *testing.T) {
	a := NewAdapter(&stubEngine{})
	for _, p := range []string{"", "/main.papyrus", "../escape", "dir/"} {
		if err := a.PutAsset(p, []byte("x")); !errors.Is(err, resources.ErrInvalidPath) {
			t.Fatalf("PutAsset(%q): expected ErrInvalidPath, got %v", p, err)
		}
	}
	if a.Remove("/main.papyrus") {
		t.Fatalf("main must not be removable")
	}
}

func TestCompileLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewAdapter(&stubEngine{}, WithLogger(zap.New(core)))
	a.SetMain([]byte("Hello"))
	if _, err := a.Compile(context.Background()); err != nil {
		t.Fatalf("compile: %v", err)
	}
	entries := logs.FilterMessage("compile finished").All()
	if len(entries) != 1 {
		t.Fatalf("expected one compile log, got %d", len(entries))
	}
	if pages := entries[0].ContextMap()["pages"]; pages != int64(1) {
		t.Fatalf("unexpected pages field %v", pages)
	}
}
