package main

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Layer 合成图层, 在 Composite.layers 中的位置决定绘制顺序, Opacity 取值 [0, 1]
type Layer struct {
	Source  TileSource
	Opacity float64
}

// CompositeConf 多图层合成配置
type CompositeConf struct {
	Name       string
	Format     string
	Background color.Color
	Layers     []Layer

	// ForceMercator renders in 256px spherical mercator instead of the first layer's map space.
	ForceMercator bool

	// UnionZoom uses the union of the layer zoom ranges instead of the intersection.
	UnionZoom bool
}

// Composite 多图层合成瓦片源, 创建后只读, 可并发调用
type Composite struct {
	name       string
	format     string
	layers     []Layer
	space      MapSpace
	minZoom    int
	maxZoom    int
	background color.RGBA
}

var _ TileSource = &Composite{}

// NewComposite 校验配置并计算投影与级别范围
func NewComposite(c CompositeConf) (*Composite, error) {
	if len(c.Layers) == 0 {
		return nil, configErrorf("composite %s: no layers", c.Name)
	}
	format, err := normalizeFormat(c.Format)
	if err != nil {
		return nil, err
	}
	layers := make([]Layer, len(c.Layers))
	for i, l := range c.Layers {
		if l.Source == nil {
			return nil, configErrorf("composite %s: layer %d has no source", c.Name, i)
		}
		if l.Opacity < 0 || l.Opacity > 1 || math.IsNaN(l.Opacity) {
			return nil, configErrorf("composite %s: layer %s opacity %v not in [0, 1]", c.Name, l.Source.Name(), l.Opacity)
		}
		layers[i] = l
	}
	minZoom, maxZoom, err := UnifyZoom(layers, c.UnionZoom)
	if err != nil {
		return nil, errors.Wrapf(err, "composite %s", c.Name)
	}
	space := layers[0].Source.MapSpace()
	if c.ForceMercator {
		space = MercatorSpace256()
	}
	bg := color.RGBAModel.Convert(color.Black).(color.RGBA)
	if c.Background != nil {
		bg = color.RGBAModel.Convert(c.Background).(color.RGBA)
		bg.A = 255
	}
	return &Composite{
		name:       c.Name,
		format:     format,
		layers:     layers,
		space:      space,
		minZoom:    minZoom,
		maxZoom:    maxZoom,
		background: bg,
	}, nil
}

// UnifyZoom 计算图层级别的并集或交集, 交集为空时返回配置错误
func UnifyZoom(layers []Layer, union bool) (int, int, error) {
	if len(layers) == 0 {
		return 0, 0, configErrorf("no layers")
	}
	var minZoom, maxZoom int
	if union {
		minZoom, maxZoom = ZoomMax, ZoomMin
		for _, l := range layers {
			minZoom = minInt(minZoom, l.Source.MinZoom())
			maxZoom = maxInt(maxZoom, l.Source.MaxZoom())
		}
	} else {
		minZoom, maxZoom = ZoomMin, ZoomMax
		for _, l := range layers {
			minZoom = maxInt(minZoom, l.Source.MinZoom())
			maxZoom = minInt(maxZoom, l.Source.MaxZoom())
		}
	}
	if maxZoom < minZoom {
		return 0, 0, configErrorf("layers share no zoom level, range [%d, %d] is empty", minZoom, maxZoom)
	}
	return minZoom, maxZoom, nil
}

func (c *Composite) Name() string       { return c.name }
func (c *Composite) MapSpace() MapSpace { return c.space }
func (c *Composite) MinZoom() int       { return c.minZoom }
func (c *Composite) MaxZoom() int       { return c.maxZoom }
func (c *Composite) Format() string     { return c.format }
func (c *Composite) Layers() []Layer    { return c.layers }
func (c *Composite) String() string     { return c.name }

// Background 合成画布的背景色
func (c *Composite) Background() color.RGBA { return c.background }

// TileImage renders one composite tile. Layers outside their own zoom range
// are skipped; a layer that fails aborts the whole tile. It returns nil when
// no layer contributed.
func (c *Composite) TileImage(ctx context.Context, zoom, x, y int, lm LoadMethod) (image.Image, error) {
	if zoom < c.minZoom || zoom > c.maxZoom {
		return nil, nil
	}
	type layerImage struct {
		img     image.Image
		opacity float64
	}
	images := make([]layerImage, 0, len(c.layers))
	maxSize := c.space.TileSize()
	for _, l := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if zoom < l.Source.MinZoom() || zoom > l.Source.MaxZoom() {
			continue
		}
		img, err := c.LayerImage(ctx, l.Source, zoom, x, y, lm)
		if err != nil {
			if isCanceled(err) {
				return nil, err
			}
			return nil, errors.Wrapf(err, "layer %s", l.Source.Name())
		}
		if img == nil {
			continue
		}
		log.Debugf("Multi layer loading: %s %d %d %d", l.Source.Name(), x, y, zoom)
		images = append(images, layerImage{img: img, opacity: l.Opacity})
		if size := img.Bounds().Dx(); size > maxSize {
			maxSize = size
		}
	}
	if len(images) == 0 {
		return nil, nil
	}

	canvas := image.NewRGBA(image.Rect(0, 0, maxSize, maxSize))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(c.background), image.Point{}, draw.Src)
	for _, li := range images {
		blendOver(canvas, fitRGBA(li.img, maxSize), li.opacity)
	}
	return canvas, nil
}

// LayerImage fetches one layer's image for a composite tile, reprojecting it
// when the layer's map space differs from the composite's.
func (c *Composite) LayerImage(ctx context.Context, src TileSource, zoom, x, y int, lm LoadMethod) (image.Image, error) {
	if sameMapSpace(src.MapSpace(), c.space) {
		return src.TileImage(ctx, zoom, x, y, lm)
	}
	return reprojectTile(ctx, c.space, src, zoom, x, y, lm)
}

// TileData renders and encodes one tile in the composite's format.
func (c *Composite) TileData(ctx context.Context, zoom, x, y int, lm LoadMethod) ([]byte, error) {
	img, err := c.TileImage(ctx, zoom, x, y, lm)
	if err != nil || img == nil {
		return nil, err
	}
	return EncodeTile(img, c.format)
}

// fitRGBA returns img as a size x size RGBA image anchored at the origin,
// scaling it when its size differs.
func fitRGBA(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b == image.Rect(0, 0, size, size) && rgba.Stride == 4*size {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	if b.Dx() == size && b.Dy() == size {
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	}
	return out
}

// blendOver composites src onto dst (same bounds) with source-over at the
// given opacity: out = src*a + dst*(1-a), truncated.
func blendOver(dst, src *image.RGBA, opacity float64) {
	if opacity <= 0 {
		return
	}
	for i := 0; i+3 < len(dst.Pix) && i+3 < len(src.Pix); i += 4 {
		sa := float64(src.Pix[i+3]) / 255 * opacity
		if sa == 0 {
			continue
		}
		for k := 0; k < 4; k++ {
			v := float64(src.Pix[i+k])*opacity + float64(dst.Pix[i+k])*(1-sa)
			dst.Pix[i+k] = uint8(math.Min(255, v+1e-6))
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
