package layout

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ByLCY/papyrus-bridge/dsl"
)

// 无显式尺寸时按 96 DPI 换算像素。
const pxToMm = 25.4 / 96

type decodedImage struct {
	img image.Image
	err error
}

func (b *builder) handleImage(cmd *dsl.Command, ctx *flowContext) {
	styleName, attrs := parseArgs(cmd.Args, true)
	attrs = b.mergeStyle(styleName, attrs)

	name := styleName
	for _, k := range []string{"image", "src"} {
		if attrs[k] != "" {
			name = attrs[k]
		}
	}
	if name == "" && len(cmd.Args) > 0 {
		name = cmd.Args[0].Value
	}
	src, width, height := name, 0.0, 0.0
	if r, ok := b.res.images[name]; ok {
		if r.src != "" {
			src = r.src
		}
		width, height = r.width, r.height
	}
	if src == "" {
		b.errorf(cmd.Pos, "image 语句缺少资源或 src")
		return
	}

	img, ok := b.loadImage(src, cmd.Pos)
	if !ok {
		return
	}
	if w := dimension(attrs["width"], ctx.width); w > 0 {
		width = w
	}
	if h := dimension(attrs["height"], ctx.width); h > 0 {
		height = h
	}
	width, height = fitImage(img.Bounds(), width, height, ctx.width)

	box := ImageBox{
		Path:    src,
		X:       ctx.baseX + alignOffset(ctx.width, width, normalizeAlign(attrs["align"])),
		Width:   width,
		Height:  height,
		Opacity: 1,
		Image:   img,
	}
	if ctx.align != "" && attrs["align"] == "" {
		box.X = ctx.baseX + alignOffset(ctx.width, width, ctx.align)
	}
	if v := attrs["opacity"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			box.Opacity = f
		}
	}
	if !ctx.fits(height) && !ctx.atTop() {
		ctx.pageBreak()
	}
	box.Y = ctx.cursorY
	ctx.layer().Images = append(ctx.layer().Images, box)
	ctx.cursorY += height + blockSpacing
}

// loadImage 通过 Resolver 读取并解码图片；同一路径在一次布局中只解码一次。
func (b *builder) loadImage(path string, pos dsl.Position) (image.Image, bool) {
	d, ok := b.images[path]
	if !ok {
		d = b.decode(path)
		b.images[path] = d
	}
	if d.err != nil {
		b.errorf(pos, "%v", d.err)
		return nil, false
	}
	return d.img, true
}

func (b *builder) decode(path string) decodedImage {
	if b.resolver == nil {
		return decodedImage{err: fmt.Errorf("图片 %s 无法读取：没有可用的文件来源", path)}
	}
	data, err := b.resolver.File(path)
	if err != nil {
		return decodedImage{err: fmt.Errorf("图片 %s 无法读取: %w", path, err)}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return decodedImage{err: fmt.Errorf("图片 %s 解码失败: %w", path, err)}
	}
	return decodedImage{img: img}
}

// fitImage 补全缺失的宽高：保持像素宽高比，且不超过可用宽度。
func fitImage(bounds image.Rectangle, width, height, maxWidth float64) (float64, float64) {
	pw, ph := float64(bounds.Dx()), float64(bounds.Dy())
	if pw <= 0 || ph <= 0 {
		pw, ph = 1, 1
	}
	switch {
	case width > 0 && height > 0:
	case width > 0:
		height = width * ph / pw
	case height > 0:
		width = height * pw / ph
	default:
		width, height = pw*pxToMm, ph*pxToMm
		if maxWidth > 0 && width > maxWidth {
			width, height = maxWidth, maxWidth*ph/pw
		}
	}
	return width, height
}
