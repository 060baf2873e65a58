package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"testing"

	"github.com/ulikunitz/xz"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ByLCY/papyrus-bridge/fontbook"
)

func writeTar(t *testing.T, w io.Writer, files map[string][]byte, order []string) {
	t.Helper()
	tw := tar.NewWriter(w)
	if err := tw.WriteHeader(&tar.Header{Name: "assets/", Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
		t.Fatalf("write dir header: %v", err)
	}
	for _, name := range order {
		data := files[name]
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(data)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
}

var sample = map[string][]byte{
	"main.papyrus":      []byte("Hello"),
	"./assets/logo.png": {0x89, 'P', 'N', 'G'},
	"fonts/Go.ttf":      goregular.TTF,
	"../escape.txt":     []byte("nope"),
}

var sampleOrder = []string{"main.papyrus", "./assets/logo.png", "fonts/Go.ttf", "../escape.txt"}

func plainArchive(t *testing.T) []byte {
	var buf bytes.Buffer
	writeTar(t, &buf, sample, sampleOrder)
	return buf.Bytes()
}

func xzArchive(t *testing.T) []byte {
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	writeTar(t, xw, sample, sampleOrder)
	if err := xw.Close(); err != nil {
		t.Fatalf("close xz: %v", err)
	}
	return buf.Bytes()
}

func gzipArchive(t *testing.T) []byte {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	writeTar(t, gw, sample, sampleOrder)
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	cases := map[Compression][]byte{
		CompressionNone: plainArchive(t),
		CompressionXZ:   xzArchive(t),
		CompressionGzip: gzipArchive(t),
	}
	for want, data := range cases {
		if got := Detect(bufio.NewReader(bytes.NewReader(data))); got != want {
			t.Fatalf("Detect = %s, want %s", got, want)
		}
	}
}

func TestReadAllCompressions(t *testing.T) {
	for name, data := range map[string][]byte{
		"tar":    plainArchive(t),
		"tar.xz": xzArchive(t),
		"tar.gz": gzipArchive(t),
	} {
		b, err := Read(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if string(b.Main) != "Hello" {
			t.Fatalf("%s: main = %q", name, b.Main)
		}
		if _, ok := b.Assets["assets/logo.png"]; !ok {
			t.Fatalf("%s: missing asset, got %v", name, sortedKeys(b.Assets))
		}
		if len(b.Assets) != 1 {
			t.Fatalf("%s: path escaping the root must be skipped, got %v", name, sortedKeys(b.Assets))
		}
		if !bytes.Equal(b.Fonts["fonts/Go.ttf"], goregular.TTF) {
			t.Fatalf("%s: font not classified", name)
		}
	}
}

func TestReadEmpty(t *testing.T) {
	var buf bytes.Buffer
	writeTar(t, &buf, nil, nil)
	if _, err := Read(&buf); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestReadCorrupt(t *testing.T) {
	data := xzArchive(t)
	if _, err := Read(bytes.NewReader(data[:len(data)/2])); err == nil {
		t.Fatalf("truncated archive should fail")
	}
}

type recordingTarget struct {
	calls []string
	main  []byte
}

func (r *recordingTarget) SetMainText(data []byte) {
	r.calls = append(r.calls, "main")
	r.main = data
}

func (r *recordingTarget) AddFile(path string, _ []byte) error {
	r.calls = append(r.calls, "file:"+path)
	return nil
}

func (r *recordingTarget) AddFont(data []byte) ([]fontbook.Record, error) {
	r.calls = append(r.calls, "font")
	return fontbook.Parse(data)
}

func TestInstallOrder(t *testing.T) {
	b, err := Read(bytes.NewReader(plainArchive(t)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var target recordingTarget
	if err := b.Install(&target); err != nil {
		t.Fatalf("install: %v", err)
	}
	want := []string{"font", "file:assets/logo.png", "main"}
	if len(target.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", target.calls, want)
	}
	for i := range want {
		if target.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", target.calls, want)
		}
	}
}

func TestInstallStopsOnBadFont(t *testing.T) {
	b := &Bundle{Fonts: map[string][]byte{"bad.ttf": []byte("0123456789")}, Main: []byte("x")}
	var target recordingTarget
	err := b.Install(&target)
	if !errors.Is(err, fontbook.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if target.main != nil {
		t.Fatalf("main must not be set after a failed install")
	}
}
