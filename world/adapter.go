package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-bridge/diag"
	"github.com/ByLCY/papyrus-bridge/fontbook"
	"github.com/ByLCY/papyrus-bridge/layout"
	"github.com/ByLCY/papyrus-bridge/resources"
)

// Outcome 是一次编译的结果。Document 仅在没有 error 级诊断时非空。
// MainGeneration 标识编译所用的入口文件版本，与 Adapter.MainGeneration 比较即可
// 判断入口文件在编译期间是否被替换。
type Outcome struct {
	Document       *layout.Document
	Diagnostics    diag.List
	MainGeneration uint64
}

// Adapter 持有资源表与字体书，并把编译委托给 Engine。
// 修改操作与拍快照互斥，保证一次编译看到的文件与字体来自同一时刻。
type Adapter struct {
	mu     sync.RWMutex
	files  *resources.Table
	fonts  *fontbook.Book
	engine Engine
	clock  func() time.Time
	log    *zap.Logger
}

// Option 配置 Adapter。
type Option func(*Adapter)

// WithClock 替换时间来源，主要用于测试。
func WithClock(clock func() time.Time) Option {
	return func(a *Adapter) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithLogger 为该实例指定日志。
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAdapter 创建空的 Adapter。
func NewAdapter(engine Engine, opts ...Option) *Adapter {
	a := &Adapter{
		files:  resources.NewTable(),
		fonts:  fontbook.New(),
		engine: engine,
		clock:  time.Now,
		log:    Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetMain 替换入口源文件。
func (a *Adapter) SetMain(data []byte) {
	a.mu.Lock()
	res := a.files.SetMain(data)
	a.mu.Unlock()
	a.log.Debug("main set", zap.Int("size", len(data)), zap.String("blake3", res.Digest()[:16]))
}

// PutAsset 注册或覆盖一个辅助文件。
func (a *Adapter) PutAsset(path string, data []byte) error {
	a.mu.Lock()
	res, err := a.files.PutAsset(path, data)
	a.mu.Unlock()
	if err != nil {
		a.log.Debug("asset rejected", zap.String("path", path), zap.Error(err))
		return err
	}
	a.log.Debug("asset stored",
		zap.String("path", res.Path),
		zap.Int("size", len(res.Data)),
		zap.String("blake3", res.Digest()[:16]))
	return nil
}

// Remove 删除辅助文件。
func (a *Adapter) Remove(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.files.Remove(path)
}

// AddFont 解析并注册字体容器中的全部 face。
func (a *Adapter) AddFont(data []byte) ([]fontbook.Record, error) {
	a.mu.Lock()
	recs, err := a.fonts.Add(data)
	a.mu.Unlock()
	if err != nil {
		a.log.Debug("font rejected", zap.Int("size", len(data)), zap.Error(err))
		return nil, err
	}
	for _, r := range recs {
		a.log.Debug("font added", zap.String("face", r.String()))
	}
	return recs, nil
}

// Paths 列出当前所有文件。
func (a *Adapter) Paths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.files.Paths()
}

// MainGeneration 返回当前入口文件的版本。
func (a *Adapter) MainGeneration() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.files.MainGeneration()
}

// Fonts 返回已注册的字体。
func (a *Adapter) Fonts() []fontbook.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fonts.All()
}

// Snapshot 拍下当前的文件、字体与时间。
func (a *Adapter) Snapshot() *Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return NewSnapshot(a.files.Snapshot(), a.fonts.Snapshot(), a.clock())
}

// Compile 拍快照并运行引擎。未设置入口文件时直接返回 ErrNoEntryPoint，不会调用引擎。
// 引擎报告的诊断原样返回；引擎自身的错误不做改写。
func (a *Adapter) Compile(ctx context.Context) (*Outcome, error) {
	snap := a.Snapshot()
	if _, err := snap.Main(); err != nil {
		return nil, err
	}
	start := time.Now()
	doc, diags, err := a.engine.Compile(ctx, snap)
	if err != nil {
		a.log.Debug("compile failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return nil, err
	}
	if diags.HasErrors() {
		doc = nil
	}
	a.log.Debug("compile finished",
		zap.Uint64("generation", snap.files.Generation()),
		zap.Int("files", snap.files.Len()),
		zap.Int("fonts", snap.fonts.Len()),
		zap.Int("pages", doc.PageCount()),
		zap.Int("errors", len(diags.Errors())),
		zap.Int("warnings", len(diags.Warnings())),
		zap.Duration("took", time.Since(start)))
	return &Outcome{Document: doc, Diagnostics: diags, MainGeneration: snap.files.MainGeneration()}, nil
}
