// Package wasmhost 把 Bridge 以 wazero 宿主模块 "papyrus" 的形式暴露给 wasm 客体。
//
// 客体传入的缓冲区都会被复制。产出数据的函数接收 (out_ptr, out_cap)，
// 仅当结果能放下时才写入，并总是返回所需长度；负数返回值是错误码。
package wasmhost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-bridge/bridge"
	"github.com/ByLCY/papyrus-bridge/fontbook"
	"github.com/ByLCY/papyrus-bridge/renderer"
	"github.com/ByLCY/papyrus-bridge/resources"
	"github.com/ByLCY/papyrus-bridge/world"
)

// ModuleName 是客体导入时使用的模块名。
const ModuleName = "papyrus"

// 错误码。
const (
	CodeMemory         int32 = -1
	CodeInvalidPath    int32 = -2
	CodeFontParse      int32 = -3
	CodeNoEntryPoint   int32 = -4
	CodeInvalidHandle  int32 = -5
	CodePageOutOfRange int32 = -6
	CodeInternal       int32 = -7
	CodeOutputTooLarge int32 = -8
)

// Host 持有一个 Bridge，以及最近一次编译的诊断和最近一次渲染的输出。
// 两段式调用（先问长度再取数据）因此不会重复渲染。
type Host struct {
	b   *bridge.Bridge
	log *zap.Logger

	mu    sync.Mutex
	diags []byte
	last  output
}

type output struct {
	doc  bridge.DocID
	pdf  bool
	page int
	data []byte
}

// New 用给定的 Bridge 创建 Host；log 为 nil 时不输出日志。
func New(b *bridge.Bridge, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{b: b, log: log, diags: []byte("[]")}
}

// Instantiate 在运行时中注册 papyrus 宿主模块。
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	i32 := api.ValueTypeI32
	mb := r.NewHostModuleBuilder(ModuleName)
	fns := []struct {
		name   string
		params []api.ValueType
		fn     api.GoModuleFunc
	}{
		{"set_main", []api.ValueType{i32, i32}, h.setMain},
		{"add_file", []api.ValueType{i32, i32, i32, i32}, h.addFile},
		{"remove_file", []api.ValueType{i32, i32}, h.removeFile},
		{"add_font", []api.ValueType{i32, i32}, h.addFont},
		{"compile", nil, h.compile},
		{"diagnostics", []api.ValueType{i32, i32}, h.diagnostics},
		{"render_svg", []api.ValueType{i32, i32, i32, i32}, h.renderSVG},
		{"render_pdf", []api.ValueType{i32, i32, i32}, h.renderPDF},
		{"release", []api.ValueType{i32}, h.release},
	}
	for _, f := range fns {
		mb = mb.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, []api.ValueType{i32}).
			Export(f.name)
	}
	return mb.Instantiate(ctx)
}

func readBytes(mod api.Module, ptr, n uint64) ([]byte, bool) {
	data, ok := mod.Memory().Read(uint32(ptr), uint32(n))
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

func writeOut(mod api.Module, ptr, capacity uint64, data []byte) int32 {
	if len(data) > math.MaxInt32 {
		return CodeOutputTooLarge
	}
	if len(data) <= int(uint32(capacity)) && len(data) > 0 {
		if !mod.Memory().Write(uint32(ptr), data) {
			return CodeMemory
		}
	}
	return int32(len(data))
}

func (h *Host) code(err error) int32 {
	switch {
	case errors.Is(err, resources.ErrInvalidPath):
		return CodeInvalidPath
	case errors.Is(err, fontbook.ErrParse):
		return CodeFontParse
	case errors.Is(err, world.ErrNoEntryPoint):
		return CodeNoEntryPoint
	case errors.Is(err, bridge.ErrInvalidHandle):
		return CodeInvalidHandle
	case errors.Is(err, renderer.ErrPageOutOfRange):
		return CodePageOutOfRange
	}
	h.log.Warn("host call failed", zap.Error(err))
	return CodeInternal
}

func (h *Host) setMain(_ context.Context, mod api.Module, stack []uint64) {
	data, ok := readBytes(mod, stack[0], stack[1])
	if !ok {
		stack[0] = api.EncodeI32(CodeMemory)
		return
	}
	h.b.SetMainText(data)
	h.mu.Lock()
	h.last = output{}
	h.mu.Unlock()
	stack[0] = 0
}

func (h *Host) addFile(_ context.Context, mod api.Module, stack []uint64) {
	path, ok := readBytes(mod, stack[0], stack[1])
	if !ok {
		stack[0] = api.EncodeI32(CodeMemory)
		return
	}
	data, ok := readBytes(mod, stack[2], stack[3])
	if !ok {
		stack[0] = api.EncodeI32(CodeMemory)
		return
	}
	if err := h.b.AddFile(string(path), data); err != nil {
		stack[0] = api.EncodeI32(h.code(err))
		return
	}
	stack[0] = 0
}

func (h *Host) removeFile(_ context.Context, mod api.Module, stack []uint64) {
	path, ok := readBytes(mod, stack[0], stack[1])
	if !ok {
		stack[0] = api.EncodeI32(CodeMemory)
		return
	}
	if h.b.RemoveFile(string(path)) {
		stack[0] = api.EncodeI32(1)
		return
	}
	stack[0] = 0
}

// add_font 返回注册的 face 数量。
func (h *Host) addFont(_ context.Context, mod api.Module, stack []uint64) {
	data, ok := readBytes(mod, stack[0], stack[1])
	if !ok {
		stack[0] = api.EncodeI32(CodeMemory)
		return
	}
	recs, err := h.b.AddFont(data)
	if err != nil {
		stack[0] = api.EncodeI32(h.code(err))
		return
	}
	stack[0] = api.EncodeI32(int32(len(recs)))
}

// compile 返回文档句柄；存在错误诊断时返回 0，诊断通过 diagnostics 读取。
func (h *Host) compile(ctx context.Context, _ api.Module, stack []uint64) {
	res, err := h.b.Compile(ctx)
	if err != nil {
		h.mu.Lock()
		h.diags = []byte("[]")
		h.mu.Unlock()
		stack[0] = api.EncodeI32(h.code(err))
		return
	}
	raw := []byte("[]")
	if len(res.Diagnostics) > 0 {
		if raw, err = json.Marshal(res.Diagnostics); err != nil {
			stack[0] = api.EncodeI32(h.code(err))
			return
		}
	}
	h.mu.Lock()
	h.diags = raw
	h.mu.Unlock()
	stack[0] = api.EncodeI32(int32(res.Doc))
}

func (h *Host) diagnostics(_ context.Context, mod api.Module, stack []uint64) {
	h.mu.Lock()
	raw := h.diags
	h.mu.Unlock()
	stack[0] = api.EncodeI32(writeOut(mod, stack[0], stack[1], raw))
}

func (h *Host) cached(key output, render func() ([]byte, error)) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last.data != nil && h.last.doc == key.doc && h.last.pdf == key.pdf && h.last.page == key.page {
		return h.last.data, nil
	}
	data, err := render()
	if err != nil {
		return nil, err
	}
	key.data = data
	h.last = key
	return data, nil
}

func (h *Host) renderSVG(_ context.Context, mod api.Module, stack []uint64) {
	doc := bridge.DocID(api.DecodeU32(stack[0]))
	// 页码是无符号数，超出 int32 的值不可能是合法页。
	p := api.DecodeU32(stack[1])
	if p > math.MaxInt32 {
		stack[0] = api.EncodeI32(CodePageOutOfRange)
		return
	}
	page := int(p)
	data, err := h.cached(output{doc: doc, page: page}, func() ([]byte, error) {
		svg, err := h.b.RenderSVG(doc, page)
		return []byte(svg), err
	})
	if err != nil {
		stack[0] = api.EncodeI32(h.code(err))
		return
	}
	stack[0] = api.EncodeI32(writeOut(mod, stack[2], stack[3], data))
}

func (h *Host) renderPDF(_ context.Context, mod api.Module, stack []uint64) {
	doc := bridge.DocID(api.DecodeU32(stack[0]))
	data, err := h.cached(output{doc: doc, pdf: true}, func() ([]byte, error) {
		return h.b.RenderPDF(doc)
	})
	if err != nil {
		stack[0] = api.EncodeI32(h.code(err))
		return
	}
	stack[0] = api.EncodeI32(writeOut(mod, stack[1], stack[2], data))
}

func (h *Host) release(_ context.Context, _ api.Module, stack []uint64) {
	doc := bridge.DocID(api.DecodeU32(stack[0]))
	h.mu.Lock()
	if h.last.doc == doc {
		h.last = output{}
	}
	h.mu.Unlock()
	if h.b.Release(doc) {
		stack[0] = api.EncodeI32(1)
		return
	}
	stack[0] = 0
}
