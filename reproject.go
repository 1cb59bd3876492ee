package main

import (
	"context"
	"image"

	"golang.org/x/image/draw"
)

// reprojectTile renders tile (zoom, x, y) of space dst from a source whose map
// space differs. The source tiles covering the tile's corners are stitched into
// one canvas and scaled to dst's tile size.
//
// A failed source tile is tolerated as long as another one succeeded, since
// tiles at the pyramid edges may not exist. If all of them failed the last
// failure is returned.
func reprojectTile(ctx context.Context, dst MapSpace, src TileSource, zoom, x, y int, lm LoadMethod) (image.Image, error) {
	tileSize := dst.TileSize()
	px1, py1 := x*tileSize, y*tileSize
	ll1 := dst.XYToLonLat(px1, py1, zoom)
	ll2 := dst.XYToLonLat(px1+tileSize-1, py1+tileSize-1, zoom)

	srcSpace := src.MapSpace()
	p1 := srcSpace.LonLatToXY(ll1, zoom)
	p2 := srcSpace.LonLatToXY(ll2, zoom)
	srcTileSize := srcSpace.TileSize()
	tx1, ty1 := p1.X/srcTileSize, p1.Y/srcTileSize
	tx2, ty2 := p2.X/srcTileSize, p2.Y/srcTileSize

	w, h := p2.X-p1.X+1, p2.Y-p1.Y+1
	if w <= 0 || h <= 0 {
		return nil, nil
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))

	var (
		matched bool
		drawn   bool
		lastErr error
	)
	for tx := tx1; tx <= tx2; tx++ {
		for ty := ty1; ty <= ty2; ty++ {
			img, err := src.TileImage(ctx, zoom, tx, ty, lm)
			if err != nil {
				if isCanceled(err) {
					return nil, err
				}
				log.Debugf("layer %s: sub tile(z:%d, x:%d, y:%d) failed, %s", src.Name(), zoom, tx, ty, err)
				lastErr = err
				continue
			}
			matched = true
			if img == nil {
				continue
			}
			off := image.Pt(tx*srcTileSize-p1.X, ty*srcTileSize-p1.Y)
			b := img.Bounds()
			draw.Draw(canvas, image.Rectangle{Min: off, Max: off.Add(b.Size())}, img, b.Min, draw.Over)
			drawn = true
		}
	}
	if !matched && lastErr != nil {
		return nil, tileIOError(zoom, x, y, lastErr)
	}
	if !drawn {
		return nil, nil
	}

	out := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	draw.BiLinear.Scale(out, out.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
	return out, nil
}
