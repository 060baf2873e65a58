// Package resources 实现虚拟文件表：逻辑路径到字节内容的映射。
//
// 表中所有字节均由表自己持有：写入时复制宿主传入的缓冲区，之后从不原地修改，
// 因此快照可以共享同一份 *Resource 而无需再次复制。
package resources

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zeebo/blake3"
)

var (
	// ErrInvalidPath 表示路径为空、格式错误或为保留路径。
	ErrInvalidPath = errors.New("path invalid")
	// ErrNotFound 表示路径在表中不存在。
	ErrNotFound = errors.New("resource not found")
)

// Kind 标记资源来源。
type Kind int

const (
	KindAsset Kind = iota
	KindMain
)

func (k Kind) String() string {
	if k == KindMain {
		return "main"
	}
	return "asset"
}

// Resource 是一条不可变的资源记录。
type Resource struct {
	Path string
	Data []byte
	Kind Kind
	Hash [32]byte // BLAKE3-256(Data)
}

// Digest 返回内容摘要的十六进制形式。
func (r *Resource) Digest() string {
	return hex.EncodeToString(r.Hash[:])
}

func newResource(path string, data []byte, kind Kind) *Resource {
	owned := make([]byte, len(data))
	copy(owned, data)
	return &Resource{
		Path: path,
		Data: owned,
		Kind: kind,
		Hash: blake3.Sum256(owned),
	}
}

// Table 是并发安全的资源表。
type Table struct {
	mu         sync.RWMutex
	main       *Resource
	assets     map[string]*Resource
	generation uint64
	mainGen    uint64
}

// NewTable 创建空表。
func NewTable() *Table {
	return &Table{assets: map[string]*Resource{}}
}

// SetMain 替换入口源文件，旧内容随之释放。
func (t *Table) SetMain(data []byte) *Resource {
	res := newResource(MainPath, data, KindMain)
	t.mu.Lock()
	t.main = res
	t.generation++
	t.mainGen = t.generation
	t.mu.Unlock()
	return res
}

// PutAsset 插入或覆盖 path 处的资源。
func (t *Table) PutAsset(path string, data []byte) (*Resource, error) {
	norm, err := Normalize(path)
	if err != nil {
		return nil, err
	}
	if norm == MainPath {
		return nil, fmt.Errorf("%w: %s 为入口文件保留", ErrInvalidPath, MainPath)
	}
	res := newResource(norm, data, KindAsset)
	t.mu.Lock()
	t.assets[norm] = res
	t.generation++
	t.mu.Unlock()
	return res, nil
}

// Get 读取 path 处的内容；入口文件同样可以通过 MainPath 读取。
func (t *Table) Get(path string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lookup(t.main, t.assets, path)
}

// Remove 删除资源，返回其是否存在。入口文件不能通过该方法删除。
func (t *Table) Remove(path string) bool {
	norm, err := Normalize(path)
	if err != nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.assets[norm]; !ok {
		return false
	}
	delete(t.assets, norm)
	t.generation++
	return true
}

// Main 返回当前入口文件。
func (t *Table) Main() (*Resource, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.main, t.main != nil
}

// Paths 返回所有资源路径（含入口文件），按字典序排列。
func (t *Table) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedPaths(t.main, t.assets)
}

// Generation 在每次修改后递增，可用于判断表是否发生变化。
func (t *Table) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

// MainGeneration 返回最近一次 SetMain 时的表版本，从未设置入口文件时为 0。
func (t *Table) MainGeneration() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mainGen
}

// Snapshot 返回当前状态的不可变视图。之后对表的修改不会影响快照。
func (t *Table) Snapshot() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	assets := make(map[string]*Resource, len(t.assets))
	for k, v := range t.assets {
		assets[k] = v
	}
	return &Snapshot{main: t.main, assets: assets, generation: t.generation, mainGen: t.mainGen}
}

// Snapshot 是 Table 某一时刻的只读副本。
type Snapshot struct {
	main       *Resource
	assets     map[string]*Resource
	generation uint64
	mainGen    uint64
}

// Get 与 Table.Get 语义相同。
func (s *Snapshot) Get(path string) ([]byte, error) {
	return lookup(s.main, s.assets, path)
}

// Main 返回快照中的入口文件。
func (s *Snapshot) Main() (*Resource, bool) {
	return s.main, s.main != nil
}

// Len 返回资源数量（不含入口文件）。
func (s *Snapshot) Len() int { return len(s.assets) }

// Generation 返回快照对应的表版本。
func (s *Snapshot) Generation() uint64 { return s.generation }

// MainGeneration 返回快照中入口文件写入时的表版本。
func (s *Snapshot) MainGeneration() uint64 { return s.mainGen }

func lookup(main *Resource, assets map[string]*Resource, path string) ([]byte, error) {
	norm, err := Normalize(path)
	if err != nil {
		return nil, err
	}
	if norm == MainPath {
		if main == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, norm)
		}
		return main.Data, nil
	}
	res, ok := assets[norm]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, norm)
	}
	return res.Data, nil
}

func sortedPaths(main *Resource, assets map[string]*Resource) []string {
	out := make([]string, 0, len(assets)+1)
	if main != nil {
		out = append(out, main.Path)
	}
	for k := range assets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
