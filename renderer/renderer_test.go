package renderer

import (
	"errors"
	"testing"

	"github.com/ByLCY/papyrus-bridge/layout"
)

type stubBackend struct {
	svgCalls []int
	pdfCalls int
}

func (s *stubBackend) SVG(doc *layout.Document, page int) ([]byte, error) {
	s.svgCalls = append(s.svgCalls, page)
	return []byte("<svg/>"), nil
}

func (s *stubBackend) PDF(doc *layout.Document) ([]byte, error) {
	s.pdfCalls++
	return []byte("%PDF-1.7"), nil
}

func TestSVGPageRange(t *testing.T) {
	backend := &stubBackend{}
	d := NewDispatch(backend)
	doc := &layout.Document{Pages: make([]layout.Page, 3)}

	for k := 0; k < 3; k++ {
		out, err := d.SVG(doc, k)
		if err != nil || out == "" {
			t.Fatalf("page %d: %q %v", k, out, err)
		}
	}
	for _, k := range []int{-1, 3, 100} {
		if _, err := d.SVG(doc, k); !errors.Is(err, ErrPageOutOfRange) {
			t.Fatalf("page %d: expected ErrPageOutOfRange, got %v", k, err)
		}
	}
	if len(backend.svgCalls) != 3 {
		t.Fatalf("backend must only see valid pages, got %v", backend.svgCalls)
	}
}

func TestPDFRequiresDocument(t *testing.T) {
	backend := &stubBackend{}
	d := NewDispatch(backend)
	if _, err := d.PDF(nil); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if _, err := d.SVG(nil, 0); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	out, err := d.PDF(&layout.Document{Pages: make([]layout.Page, 2)})
	if err != nil || string(out) != "%PDF-1.7" || backend.pdfCalls != 1 {
		t.Fatalf("unexpected PDF result %q %v", out, err)
	}
}
