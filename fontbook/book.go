// Package fontbook 维护宿主注册的字体及其元数据，并提供确定性的字体匹配。
package fontbook

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/font/opentype"
	"github.com/zeebo/blake3"
	"golang.org/x/image/font/sfnt"
)

var (
	// ErrParse 表示缓冲区不是可识别的字体容器。
	ErrParse = errors.New("font parse error")
	// ErrNotFound 表示没有与查询匹配的字体。
	ErrNotFound = errors.New("font not found")
)

// Book 是按注册顺序排列的字体记录序列，只追加、不删除。
type Book struct {
	mu      sync.RWMutex
	records []Record
}

// New 创建空字体书。
func New() *Book {
	return &Book{}
}

// Add 解析 data 中的全部 face 并追加到字体书。
// 任意一个 face 解析失败都会让整次调用失败，字体书保持不变。
func (b *Book) Add(data []byte) ([]Record, error) {
	parsed, err := Parse(data)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.records = append(b.records, parsed...)
	b.mu.Unlock()
	return parsed, nil
}

// Parse 解析字体容器但不修改任何字体书。
func Parse(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: 字体数据为空", ErrParse)
	}
	owned := make([]byte, len(data))
	copy(owned, data)

	loaders, err := opentype.NewLoaders(bytes.NewReader(owned))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(loaders) == 0 {
		return nil, fmt.Errorf("%w: 容器中没有字体", ErrParse)
	}
	subfamilies := subfamilyNames(owned, len(loaders))
	hash := blake3.Sum256(owned)

	out := make([]Record, 0, len(loaders))
	for i, ld := range loaders {
		ft, err := font.NewFont(ld)
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 个字体无法加载: %v", ErrParse, i, err)
		}
		desc := ft.Describe()
		family := strings.TrimSpace(desc.Family)
		if family == "" {
			return nil, fmt.Errorf("%w: 第 %d 个字体缺少 family 名称", ErrParse, i)
		}
		style := StyleNormal
		if desc.Aspect.Style == font.StyleItalic {
			style = StyleItalic
			// go-text 将 oblique 归入 italic，这里借助子族名称还原。
			if strings.Contains(strings.ToLower(subfamilies[i]), "oblique") {
				style = StyleOblique
			}
		}
		out = append(out, Record{
			Family: family,
			Style:  style,
			Weight: Weight(math.Round(float64(desc.Aspect.Weight))),
			Data:   owned,
			Index:  i,
			Hash:   hash,
		})
	}
	return out, nil
}

// subfamilyNames 读取每个 face 的子族名称（如 "Bold Oblique"），读取失败时留空。
func subfamilyNames(data []byte, n int) []string {
	names := make([]string, n)
	coll, err := sfnt.ParseCollection(data)
	if err != nil {
		return names
	}
	var buf sfnt.Buffer
	for i := 0; i < n && i < coll.NumFonts(); i++ {
		f, err := coll.Font(i)
		if err != nil {
			continue
		}
		name, err := f.Name(&buf, sfnt.NameIDTypographicSubfamily)
		if err != nil || name == "" {
			name, _ = f.Name(&buf, sfnt.NameIDSubfamily)
		}
		names[i] = name
	}
	return names
}

// Match 按 family、风格、字重依次选择最接近的字体，距离相同时先注册者优先。
func (b *Book) Match(family string, style Style, weight Weight) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return match(b.records, family, style, weight)
}

func match(records []Record, family string, style Style, weight Weight) (Record, error) {
	want := normalizeFamily(family)
	best := -1
	var bestStyle, bestWeight int
	for i, rec := range records {
		if normalizeFamily(rec.Family) != want {
			continue
		}
		sd := styleDistance(style, rec.Style)
		wd := weightDistance(weight, rec.Weight)
		// 严格小于保证先注册者在距离相同时胜出。
		if best < 0 || sd < bestStyle || (sd == bestStyle && wd < bestWeight) {
			best, bestStyle, bestWeight = i, sd, wd
		}
	}
	if best < 0 {
		return Record{}, fmt.Errorf("%w: family %q", ErrNotFound, family)
	}
	return records[best], nil
}

// normalizeFamily 忽略大小写与空白。
func normalizeFamily(family string) string {
	return strings.ToLower(strings.Join(strings.Fields(family), ""))
}

func styleDistance(want, have Style) int {
	if want == have {
		return 0
	}
	if want != StyleNormal && have != StyleNormal {
		return 1
	}
	return 2
}

func weightDistance(want, have Weight) int {
	d := int(want) - int(have)
	if d < 0 {
		return -d
	}
	return d
}

// All 返回全部记录的副本，顺序即注册顺序。
func (b *Book) All() []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

// Len 返回记录数量。
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Font 按序号取记录。
func (b *Book) Font(index int) (Record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= len(b.records) {
		return Record{}, false
	}
	return b.records[index], true
}

// Families 返回去重后按字典序排列的 family 名称。
func (b *Book) Families() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, rec := range b.records {
		if seen[rec.Family] {
			continue
		}
		seen[rec.Family] = true
		out = append(out, rec.Family)
	}
	sort.Strings(out)
	return out
}

// Snapshot 返回当前内容的冻结副本。记录本身不可变，因此副本只复制切片头；
// cap 被截断，之后向副本追加会重新分配，不会写入原底层数组。
func (b *Book) Snapshot() *Book {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.records)
	return &Book{records: b.records[:n:n]}
}
