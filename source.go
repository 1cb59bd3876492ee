package main

import (
	"context"
	"image"
)

// LoadMethod 加载方式, 原样传递给瓦片源
type LoadMethod int

const (
	// LoadDefault 由瓦片源自行决定
	LoadDefault LoadMethod = iota
	// LoadCacheOnly 只读本地, 不访问网络
	LoadCacheOnly
	// LoadNetwork 允许访问网络
	LoadNetwork
)

// TileSource is one pyramid of raster tiles in its own map space.
//
// TileImage returns (nil, nil) when the tile legitimately has no content.
// Implementations must return the context error unchanged when ctx is done.
type TileSource interface {
	Name() string
	MapSpace() MapSpace
	MinZoom() int
	MaxZoom() int
	TileImage(ctx context.Context, zoom, x, y int, lm LoadMethod) (image.Image, error)
}
