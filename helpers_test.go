package main

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeSource records every fetch and answers it with fetch.
type fakeSource struct {
	name    string
	space   MapSpace
	minZoom int
	maxZoom int
	fetch   func(ctx context.Context, zoom, x, y int) (image.Image, error)

	mu    sync.Mutex
	calls []image.Point
}

func newFakeSource(t *testing.T, name string, kind MapSpaceType, fetch func(ctx context.Context, zoom, x, y int) (image.Image, error)) *fakeSource {
	t.Helper()
	space, err := NewMapSpace(kind, TileSize)
	require.NoError(t, err)
	return &fakeSource{name: name, space: space, minZoom: 0, maxZoom: ZoomMax, fetch: fetch}
}

func (s *fakeSource) Name() string       { return s.name }
func (s *fakeSource) MapSpace() MapSpace { return s.space }
func (s *fakeSource) MinZoom() int       { return s.minZoom }
func (s *fakeSource) MaxZoom() int       { return s.maxZoom }

func (s *fakeSource) TileImage(ctx context.Context, zoom, x, y int, lm LoadMethod) (image.Image, error) {
	s.mu.Lock()
	s.calls = append(s.calls, image.Pt(x, y))
	s.mu.Unlock()
	return s.fetch(ctx, zoom, x, y)
}

func (s *fakeSource) Calls() []image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]image.Point(nil), s.calls...)
}

func solidTile(size int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func solidFetch(c color.Color) func(ctx context.Context, zoom, x, y int) (image.Image, error) {
	return func(ctx context.Context, zoom, x, y int) (image.Image, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return solidTile(TileSize, c), nil
	}
}

func failFetch(ctx context.Context, zoom, x, y int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, tileIOError(zoom, x, y, errors.New("connection reset"))
}

func absentFetch(ctx context.Context, zoom, x, y int) (image.Image, error) {
	return nil, nil
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)
