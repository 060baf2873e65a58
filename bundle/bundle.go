// Package bundle 读取 tar、tar.gz 或 tar.xz 资源包，并把其中的文件推送给 Bridge。
//
// 包内约定：main.papyrus 是入口文件；.ttf/.otf/.ttc/.otc 结尾的文件作为字体注册；
// 其余常规文件按原路径作为辅助文件注册。
package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/ByLCY/papyrus-bridge/fontbook"
)

// Compression 表示资源包的压缩方式。
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionXZ   Compression = "xz"
)

// MainName 是资源包内入口文件的名称。
const MainName = "main.papyrus"

var (
	xzMagic   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
	gzipMagic = []byte{0x1f, 0x8b}
)

// ErrEmpty 表示资源包里没有任何常规文件。
var ErrEmpty = errors.New("bundle contains no files")

// Bundle 是解包后的内容。
type Bundle struct {
	Main   []byte
	Assets map[string][]byte
	Fonts  map[string][]byte
}

// Target 是接收资源包内容的一方，*bridge.Bridge 满足该接口。
type Target interface {
	SetMainText(data []byte)
	AddFile(path string, data []byte) error
	AddFont(data []byte) ([]fontbook.Record, error)
}

// Detect 根据魔数判断压缩方式，不消耗 r 中的数据。
func Detect(r *bufio.Reader) Compression {
	magic, _ := r.Peek(len(xzMagic))
	switch {
	case bytes.HasPrefix(magic, xzMagic):
		return CompressionXZ
	case bytes.HasPrefix(magic, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// Read 解包 r 中的资源包。
func Read(r io.Reader) (*Bundle, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	switch Detect(br) {
	case CompressionXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("创建 xz 读取器失败: %w", err)
		}
		src = xr
	case CompressionGzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("创建 gzip 读取器失败: %w", err)
		}
		defer gr.Close()
		src = gr
	}

	b := &Bundle{Assets: map[string][]byte{}, Fonts: map[string][]byte{}}
	tr := tar.NewReader(src)
	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("读取 tar 头失败: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		if name == ".." || strings.HasPrefix(name, "../") {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("读取 %s 失败: %w", hdr.Name, err)
		}
		files++
		switch {
		case name == MainName:
			b.Main = data
		case isFont(name):
			b.Fonts[name] = data
		default:
			b.Assets[name] = data
		}
	}
	if files == 0 {
		return nil, ErrEmpty
	}
	return b, nil
}

func isFont(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".ttf", ".otf", ".ttc", ".otc":
		return true
	}
	return false
}

// Install 把资源包推送给 t：先字体，再辅助文件，最后入口文件。
// 字体按路径字典序注册，保证默认字体的选择可复现。
func (b *Bundle) Install(t Target) error {
	for _, name := range sortedKeys(b.Fonts) {
		if _, err := t.AddFont(b.Fonts[name]); err != nil {
			return fmt.Errorf("注册字体 %s 失败: %w", name, err)
		}
	}
	for _, name := range sortedKeys(b.Assets) {
		if err := t.AddFile(name, b.Assets[name]); err != nil {
			return fmt.Errorf("注册文件 %s 失败: %w", name, err)
		}
	}
	if b.Main != nil {
		t.SetMainText(b.Main)
	}
	return nil
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
