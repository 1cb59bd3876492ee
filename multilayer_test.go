package main

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zoomSource(t *testing.T, name string, minZoom, maxZoom int) *fakeSource {
	s := newFakeSource(t, name, MercatorSpherical, solidFetch(red))
	s.minZoom, s.maxZoom = minZoom, maxZoom
	return s
}

func mustComposite(t *testing.T, c CompositeConf) *Composite {
	t.Helper()
	comp, err := NewComposite(c)
	require.NoError(t, err)
	return comp
}

func TestUnifyZoom(t *testing.T) {
	layers := []Layer{
		{Source: zoomSource(t, "a", 2, 10), Opacity: 1},
		{Source: zoomSource(t, "b", 5, 18), Opacity: 1},
	}
	lo, hi, err := UnifyZoom(layers, true)
	require.NoError(t, err)
	assert.Equal(t, 2, lo)
	assert.Equal(t, 18, hi)

	lo, hi, err = UnifyZoom(layers, false)
	require.NoError(t, err)
	assert.Equal(t, 5, lo)
	assert.Equal(t, 10, hi)

	disjoint := []Layer{
		{Source: zoomSource(t, "a", 2, 4), Opacity: 1},
		{Source: zoomSource(t, "b", 6, 8), Opacity: 1},
	}
	_, _, err = UnifyZoom(disjoint, false)
	assert.True(t, errors.Is(err, ErrConfig))
	_, err = NewComposite(CompositeConf{Name: "disjoint", Layers: disjoint})
	assert.True(t, errors.Is(err, ErrConfig))

	_, _, err = UnifyZoom(nil, true)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestNewCompositeValidation(t *testing.T) {
	src := newFakeSource(t, "a", MercatorSpherical, solidFetch(red))
	cases := map[string]CompositeConf{
		"no layers":    {Name: "empty"},
		"nil source":   {Layers: []Layer{{Opacity: 1}}},
		"opacity":      {Layers: []Layer{{Source: src, Opacity: 1.5}}},
		"negative":     {Layers: []Layer{{Source: src, Opacity: -0.1}}},
		"image format": {Format: "tiff", Layers: []Layer{{Source: src, Opacity: 1}}},
	}
	for name, c := range cases {
		_, err := NewComposite(c)
		assert.True(t, errors.Is(err, ErrConfig), name)
	}
}

func TestCompositeMapSpace(t *testing.T) {
	geo := newFakeSource(t, "geo", GeoLatlong, solidFetch(red))
	osm := newFakeSource(t, "osm", MercatorSpherical, solidFetch(red))

	c := mustComposite(t, CompositeConf{Layers: []Layer{{Source: geo, Opacity: 1}, {Source: osm, Opacity: 1}}})
	assert.Equal(t, GeoLatlong, c.MapSpace().Type())

	c = mustComposite(t, CompositeConf{ForceMercator: true, Layers: []Layer{{Source: geo, Opacity: 1}}})
	assert.Equal(t, MercatorSpherical, c.MapSpace().Type())
	assert.Equal(t, TileSize, c.MapSpace().TileSize())
	assert.Equal(t, PNG, c.Format())
	assert.Equal(t, color.RGBA{A: 255}, c.Background())

	c = mustComposite(t, CompositeConf{
		Format:     "jpeg",
		Background: color.RGBA{R: 10, G: 20, B: 30, A: 0},
		Layers:     []Layer{{Source: osm, Opacity: 1}},
	})
	assert.Equal(t, JPG, c.Format())
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, c.Background())
}

func TestCompositeBlend(t *testing.T) {
	c := mustComposite(t, CompositeConf{
		Name: "blend",
		Layers: []Layer{
			{Source: newFakeSource(t, "red", MercatorSpherical, solidFetch(red)), Opacity: 1},
			{Source: newFakeSource(t, "blue", MercatorSpherical, solidFetch(blue)), Opacity: 0.5},
		},
	})
	img, err := c.TileImage(context.Background(), 3, 1, 2, LoadDefault)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, TileSize, TileSize), img.Bounds())
	assert.Equal(t, color.RGBA{R: 127, G: 0, B: 127, A: 255}, rgbaAt(img, 0, 0))
	assert.Equal(t, color.RGBA{R: 127, G: 0, B: 127, A: 255}, rgbaAt(img, 255, 255))
}

func TestCompositeOpacityOverBackground(t *testing.T) {
	c := mustComposite(t, CompositeConf{
		Background: color.White,
		Layers: []Layer{
			{Source: newFakeSource(t, "red", MercatorSpherical, solidFetch(red)), Opacity: 0.25},
			{Source: newFakeSource(t, "hidden", MercatorSpherical, solidFetch(blue)), Opacity: 0},
		},
	})
	img, err := c.TileImage(context.Background(), 3, 1, 2, LoadDefault)
	require.NoError(t, err)
	// 255*0.25 + 255*0.75, 255*0.75
	assert.Equal(t, color.RGBA{R: 255, G: 191, B: 191, A: 255}, rgbaAt(img, 10, 10))
}

func TestCompositeLargestLayerSize(t *testing.T) {
	big := newFakeSource(t, "retina", MercatorSpherical, func(ctx context.Context, zoom, x, y int) (image.Image, error) {
		return solidTile(2*TileSize, blue), nil
	})
	c := mustComposite(t, CompositeConf{Layers: []Layer{
		{Source: newFakeSource(t, "red", MercatorSpherical, solidFetch(red)), Opacity: 1},
		{Source: big, Opacity: 1},
	}})
	img, err := c.TileImage(context.Background(), 3, 1, 2, LoadDefault)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2*TileSize, 2*TileSize), img.Bounds())
	assert.Equal(t, blue, rgbaAt(img, 300, 300))
}

func TestCompositeSkipsLayersOutOfZoom(t *testing.T) {
	base := newFakeSource(t, "base", MercatorSpherical, solidFetch(red))
	detail := zoomSource(t, "detail", 10, 12)
	detail.fetch = solidFetch(blue)
	c := mustComposite(t, CompositeConf{UnionZoom: true, Layers: []Layer{
		{Source: base, Opacity: 1},
		{Source: detail, Opacity: 1},
	}})

	img, err := c.TileImage(context.Background(), 5, 3, 3, LoadDefault)
	require.NoError(t, err)
	assert.Equal(t, red, rgbaAt(img, 0, 0))
	assert.Empty(t, detail.Calls())

	img, err = c.TileImage(context.Background(), 11, 3, 3, LoadDefault)
	require.NoError(t, err)
	assert.Equal(t, blue, rgbaAt(img, 0, 0))
	assert.Len(t, detail.Calls(), 1)
}

func TestCompositeOutsideZoomRange(t *testing.T) {
	src := zoomSource(t, "a", 3, 8)
	c := mustComposite(t, CompositeConf{Layers: []Layer{{Source: src, Opacity: 1}}})
	img, err := c.TileImage(context.Background(), 9, 0, 0, LoadDefault)
	assert.NoError(t, err)
	assert.Nil(t, img)
	assert.Empty(t, src.Calls())
}

func TestCompositeAllLayersAbsent(t *testing.T) {
	c := mustComposite(t, CompositeConf{Layers: []Layer{
		{Source: newFakeSource(t, "a", MercatorSpherical, absentFetch), Opacity: 1},
		{Source: newFakeSource(t, "b", MercatorSpherical, absentFetch), Opacity: 1},
	}})
	img, err := c.TileImage(context.Background(), 4, 1, 1, LoadDefault)
	assert.NoError(t, err)
	assert.Nil(t, img)

	data, err := c.TileData(context.Background(), 4, 1, 1, LoadDefault)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestCompositeLayerFailureAborts(t *testing.T) {
	after := newFakeSource(t, "after", MercatorSpherical, solidFetch(blue))
	c := mustComposite(t, CompositeConf{Layers: []Layer{
		{Source: newFakeSource(t, "base", MercatorSpherical, solidFetch(red)), Opacity: 1},
		{Source: newFakeSource(t, "broken", MercatorSpherical, failFetch), Opacity: 1},
		{Source: after, Opacity: 1},
	}})
	img, err := c.TileImage(context.Background(), 4, 1, 1, LoadDefault)
	assert.Nil(t, img)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTileIO))
	assert.Contains(t, err.Error(), "broken")
	assert.Empty(t, after.Calls())

	var te *TileError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 4, te.Zoom)
}

func TestCompositeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := newFakeSource(t, "a", MercatorSpherical, solidFetch(red))
	c := mustComposite(t, CompositeConf{Layers: []Layer{{Source: src, Opacity: 1}}})

	img, err := c.TileImage(ctx, 4, 1, 1, LoadDefault)
	assert.Nil(t, img)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTileIO))
	assert.Empty(t, src.Calls())

	// 图层内部取消同样原样返回
	ctx2, cancel2 := context.WithCancel(context.Background())
	canceling := newFakeSource(t, "b", MercatorSpherical, func(ctx context.Context, zoom, x, y int) (image.Image, error) {
		cancel2()
		return nil, ctx.Err()
	})
	c = mustComposite(t, CompositeConf{Layers: []Layer{{Source: canceling, Opacity: 1}}})
	_, err = c.TileImage(ctx2, 4, 1, 1, LoadDefault)
	assert.Equal(t, context.Canceled, err)
}

// gcj02 合成空间下的墨卡托图层需要拼接子瓦片
func TestCompositeReprojectedLayer(t *testing.T) {
	base := newFakeSource(t, "gcj", MercatorGCJ02, absentFetch)

	flaky := newFakeSource(t, "osm", MercatorSpherical, firstOnly())
	c := mustComposite(t, CompositeConf{Layers: []Layer{{Source: base, Opacity: 1}, {Source: flaky, Opacity: 1}}})
	require.Equal(t, MercatorGCJ02, c.MapSpace().Type())

	img, err := c.TileImage(context.Background(), subZoom, subX, subY, LoadDefault)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Greater(t, rgbaAt(img, 5, 100).R, uint8(250))
	assert.Equal(t, color.RGBA{A: 255}, rgbaAt(img, 200, 100))

	broken := newFakeSource(t, "osm", MercatorSpherical, failFetch)
	c = mustComposite(t, CompositeConf{Layers: []Layer{{Source: base, Opacity: 1}, {Source: broken, Opacity: 1}}})
	_, err = c.TileImage(context.Background(), subZoom, subX, subY, LoadDefault)
	assert.True(t, errors.Is(err, ErrTileIO))
}

func TestCompositeTileData(t *testing.T) {
	c := mustComposite(t, CompositeConf{Format: "jpg", Layers: []Layer{
		{Source: newFakeSource(t, "red", MercatorSpherical, solidFetch(red)), Opacity: 1},
	}})
	data, err := c.TileData(context.Background(), 2, 1, 1, LoadDefault)
	require.NoError(t, err)
	img, err := DecodeTile(data)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, TileSize, TileSize), img.Bounds())
	assert.Greater(t, rgbaAt(img, 128, 128).R, uint8(240))
}

func TestFitRGBA(t *testing.T) {
	src := solidTile(TileSize, red)
	assert.Same(t, src, fitRGBA(src, TileSize))

	shifted := image.NewRGBA(image.Rect(10, 10, 10+TileSize, 10+TileSize))
	fitted := fitRGBA(shifted, TileSize)
	assert.Equal(t, image.Rect(0, 0, TileSize, TileSize), fitted.Bounds())

	scaled := fitRGBA(src, 2*TileSize)
	assert.Equal(t, image.Rect(0, 0, 2*TileSize, 2*TileSize), scaled.Bounds())
}
