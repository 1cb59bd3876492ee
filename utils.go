package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

// TileWriter 瓦片输出
type TileWriter interface {
	WriteTile(tile Tile) error
	Close() error
}

// NewTileWriter 按 output.format 创建输出: files 或 mbtiles
func NewTileWriter(kind, dir string, c *Composite) (TileWriter, error) {
	switch strings.ToLower(kind) {
	case "", "files":
		return newFileWriter(filepath.Join(dir, c.Name()), c.Format())
	case "mbtiles":
		return newMBTilesWriter(filepath.Join(dir, c.Name()+".mbtiles"), c)
	default:
		return nil, configErrorf("unknown output format %q", kind)
	}
}

// fileWriter 按 z/x/y.format 保存瓦片
type fileWriter struct {
	root   string
	format string
}

func newFileWriter(root, format string) (*fileWriter, error) {
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", root)
	}
	return &fileWriter{root: root, format: format}, nil
}

func (w *fileWriter) WriteTile(tile Tile) error {
	dir := filepath.Join(w.root, fmt.Sprintf(`%d`, tile.T.Z), fmt.Sprintf(`%d`, tile.T.X))
	os.MkdirAll(dir, os.ModePerm)
	fileName := filepath.Join(dir, fmt.Sprintf(`%d.%s`, tile.T.Y, w.format))
	return os.WriteFile(fileName, tile.C, os.ModePerm)
}

func (w *fileWriter) Close() error { return nil }

func loadCollection(path string) (orb.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read file")
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal feature")
	}

	var collection orb.Collection
	for _, f := range fc.Features {
		collection = append(collection, f.Geometry)
	}

	return collection, nil
}
