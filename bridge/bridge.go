// Package bridge 是宿主调用编译器的唯一入口。
//
// 宿主按任意顺序推送入口文件、辅助文件与字体，然后调用 Compile 得到文档句柄，
// 再用句柄渲染 SVG（单页）或 PDF（全部页面）。每个 Bridge 实例独立持有
// 自己的文件、字体、字体缓存与句柄表，实例之间互不可见。
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-bridge/diag"
	"github.com/ByLCY/papyrus-bridge/engine"
	"github.com/ByLCY/papyrus-bridge/fontbook"
	"github.com/ByLCY/papyrus-bridge/fonts"
	"github.com/ByLCY/papyrus-bridge/layout"
	"github.com/ByLCY/papyrus-bridge/renderer"
	canvasrenderer "github.com/ByLCY/papyrus-bridge/renderer/canvas"
	"github.com/ByLCY/papyrus-bridge/world"
)

// ErrInvalidHandle 表示句柄不存在、已释放或因入口文件变化而失效。
var ErrInvalidHandle = errors.New("invalid document handle")

// Compiled 是 Compile 的结果。存在 error 级诊断时 Doc 为 0。
type Compiled struct {
	Doc         DocID     `json:"doc"`
	Pages       int       `json:"pages"`
	Diagnostics diag.List `json:"diagnostics"`
}

// Bridge 是一个独立的编译会话。
type Bridge struct {
	id     string
	log    *zap.Logger
	world  *world.Adapter
	render *renderer.Dispatch

	mu   sync.Mutex
	docs docTable
}

type config struct {
	logger       *zap.Logger
	clock        func() time.Time
	defaultFonts bool
	engine       world.Engine
	backend      renderer.Renderer
}

// Option 配置 Bridge。
type Option func(*config)

// WithLogger 指定日志；每条日志都会带上 bridge_id。
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock 替换编译时使用的时间来源。
func WithClock(clock func() time.Time) Option {
	return func(c *config) { c.clock = clock }
}

// WithDefaultFonts 在创建时注册内置的 Go 字体。
func WithDefaultFonts() Option {
	return func(c *config) { c.defaultFonts = true }
}

// WithEngine 替换编译引擎。
func WithEngine(e world.Engine) Option {
	return func(c *config) { c.engine = e }
}

// WithRenderer 替换渲染后端。若后端同时实现 layout.Typesetter，默认引擎会用它排版。
func WithRenderer(r renderer.Renderer) Option {
	return func(c *config) { c.backend = r }
}

// New 创建一个空的 Bridge。
func New(opts ...Option) *Bridge {
	cfg := config{clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = Logger()
	}
	if cfg.backend == nil {
		cfg.backend = canvasrenderer.New()
	}
	if cfg.engine == nil {
		ts, _ := cfg.backend.(layout.Typesetter)
		cfg.engine = engine.New(ts)
	}

	id := uuid.NewString()
	log := cfg.logger.With(zap.String("bridge_id", id))
	b := &Bridge{
		id:     id,
		log:    log,
		world:  world.NewAdapter(cfg.engine, world.WithClock(cfg.clock), world.WithLogger(log)),
		render: renderer.NewDispatch(cfg.backend),
	}
	if cfg.defaultFonts {
		for _, data := range fonts.Default() {
			if _, err := b.world.AddFont(data); err != nil {
				log.Warn("default font rejected", zap.Error(err))
			}
		}
	}
	log.Debug("bridge created", zap.Int("fonts", len(b.world.Fonts())))
	return b
}

// ID 返回实例标识，与日志中的 bridge_id 相同。
func (b *Bridge) ID() string {
	return b.id
}

// SetMainText 替换入口文件，并使之前的全部文档句柄失效。
func (b *Bridge) SetMainText(data []byte) {
	b.world.SetMain(data)
	b.mu.Lock()
	n := b.docs.invalidate()
	b.mu.Unlock()
	if n > 0 {
		b.log.Debug("document handles invalidated", zap.Int("count", n))
	}
}

// AddFile 注册或覆盖辅助文件。
func (b *Bridge) AddFile(path string, data []byte) error {
	if err := b.world.PutAsset(path, data); err != nil {
		return fmt.Errorf("add file %q: %w", path, err)
	}
	return nil
}

// RemoveFile 删除辅助文件，返回其是否存在。
func (b *Bridge) RemoveFile(path string) bool {
	return b.world.Remove(path)
}

// AddFont 注册字体容器中的全部 face。
func (b *Bridge) AddFont(data []byte) ([]fontbook.Record, error) {
	recs, err := b.world.AddFont(data)
	if err != nil {
		return nil, fmt.Errorf("add font: %w", err)
	}
	return recs, nil
}

// Files 列出全部文件路径（含入口文件）。
func (b *Bridge) Files() []string {
	return b.world.Paths()
}

// Fonts 返回已注册字体，按注册顺序。
func (b *Bridge) Fonts() []fontbook.Record {
	return b.world.Fonts()
}

// Compile 编译当前入口文件。诊断放在结果里返回；error 只表示没有入口文件、
// 调用被取消或引擎自身失败。编译期间入口文件若被 SetMainText 替换，
// 结果不再分配句柄，Doc 为 0。
func (b *Bridge) Compile(ctx context.Context) (*Compiled, error) {
	out, err := b.world.Compile(ctx)
	if err != nil {
		return nil, err
	}
	res := &Compiled{Diagnostics: out.Diagnostics}
	if out.Document == nil {
		return res, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur := b.world.MainGeneration(); cur != out.MainGeneration {
		b.log.Debug("main replaced during compile, result discarded",
			zap.Uint64("compiled", out.MainGeneration),
			zap.Uint64("current", cur))
		return res, nil
	}
	res.Doc = b.docs.insert(out.Document)
	res.Pages = out.Document.PageCount()
	return res, nil
}

func (b *Bridge) document(id DocID) (*layout.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.docs.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, id)
	}
	return doc, nil
}

// RenderSVG 渲染第 page 页（从 0 开始）。
func (b *Bridge) RenderSVG(id DocID, page int) (string, error) {
	doc, err := b.document(id)
	if err != nil {
		return "", err
	}
	return b.render.SVG(doc, page)
}

// RenderPDF 渲染全部页面。
func (b *Bridge) RenderPDF(id DocID) ([]byte, error) {
	doc, err := b.document(id)
	if err != nil {
		return nil, err
	}
	return b.render.PDF(doc)
}

// Document 返回句柄对应的布局结果，供调试输出使用。
func (b *Bridge) Document(id DocID) (*layout.Document, error) {
	return b.document(id)
}

// Release 释放句柄，返回其之前是否有效。
func (b *Bridge) Release(id DocID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.docs.drop(id)
}
