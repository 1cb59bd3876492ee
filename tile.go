package main

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// TileSize 默认瓦片大小
const TileSize = 256

// ZoomMin 最小级别
const ZoomMin = 0

// ZoomMax 最大级别
const ZoomMax = 22

// Tile 自定义瓦片存储
type Tile struct {
	T maptile.Tile
	C []byte
}

// Constants representing TileFormat types
const (
	PNG  = "png"
	JPG  = "jpg"
	JPEG = "jpeg"
	GIF  = "gif"
	WEBP = "webp"
)

// tileKey 瓦片唯一标识
func tileKey(z, x, y int) string {
	return fmt.Sprintf("%d-%d-%d", x, y, z)
}
