// Package world 把资源表与字体书组合成编译器所需的“世界”。
//
// 每次编译在入口处拍下一个 Snapshot，编译期间的所有回调（读文件、查字体、取时间）
// 都只读该快照，因此回调路径上不需要任何锁，编译中途的修改也不会被看到。
package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ByLCY/papyrus-bridge/diag"
	"github.com/ByLCY/papyrus-bridge/fontbook"
	"github.com/ByLCY/papyrus-bridge/layout"
	"github.com/ByLCY/papyrus-bridge/resources"
)

var (
	// ErrNotFound 表示路径或字体在快照中不存在。
	ErrNotFound = errors.New("not found")
	// ErrNoEntryPoint 表示尚未设置入口文件。
	ErrNoEntryPoint = errors.New("no entry point")
)

// World 是编译器在一次编译中可以访问的全部外部状态。
type World interface {
	// Main 返回入口源文件。
	Main() ([]byte, error)
	// File 按逻辑路径读取文件，不存在时返回包装了 ErrNotFound 的错误。
	File(path string) ([]byte, error)
	// Font 按注册顺序取字体。
	Font(index int) (fontbook.Record, bool)
	Fonts() []fontbook.Record
	MatchFont(family string, style fontbook.Style, weight fontbook.Weight) (fontbook.Record, error)
	// Today 返回当天日期；offset 为空时使用本地时区，否则为 UTC 偏移 offset 小时。
	Today(offset *int) time.Time
	// Now 返回本次编译固定的时间戳。
	Now() time.Time
}

// Engine 把 World 编译为文档。
// 诊断作为正常结果返回；error 只用于引擎自身无法继续的情况。
type Engine interface {
	Compile(ctx context.Context, w World) (*layout.Document, diag.List, error)
}

// Snapshot 是 World 的实现，创建后不再变化。
type Snapshot struct {
	files *resources.Snapshot
	fonts *fontbook.Book
	now   time.Time
}

// NewSnapshot 由资源快照、字体书快照与时间组成 World。
func NewSnapshot(files *resources.Snapshot, fonts *fontbook.Book, now time.Time) *Snapshot {
	if fonts == nil {
		fonts = fontbook.New()
	}
	return &Snapshot{files: files, fonts: fonts, now: now}
}

func (s *Snapshot) Main() ([]byte, error) {
	main, ok := s.files.Main()
	if !ok {
		return nil, ErrNoEntryPoint
	}
	return main.Data, nil
}

func (s *Snapshot) File(path string) ([]byte, error) {
	data, err := s.files.Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return data, nil
}

func (s *Snapshot) Font(index int) (fontbook.Record, bool) {
	return s.fonts.Font(index)
}

func (s *Snapshot) Fonts() []fontbook.Record {
	return s.fonts.All()
}

func (s *Snapshot) MatchFont(family string, style fontbook.Style, weight fontbook.Weight) (fontbook.Record, error) {
	rec, err := s.fonts.Match(family, style, weight)
	if err != nil {
		return fontbook.Record{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return rec, nil
}

func (s *Snapshot) Today(offset *int) time.Time {
	t := s.now.Local()
	if offset != nil {
		t = s.now.UTC().Add(time.Duration(*offset) * time.Hour)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *Snapshot) Now() time.Time {
	return s.now
}
