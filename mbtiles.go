package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// mbtilesWriter 写入 MBTiles 1.3 容器, tile_row 为 TMS 行号
type mbtilesWriter struct {
	db    *sql.DB
	space MapSpace
}

func newMBTilesWriter(path string, c *Composite) (*mbtilesWriter, error) {
	os.MkdirAll(filepath.Dir(path), os.ModePerm)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open mbtiles %s", path)
	}
	// sqlite 只允许一个写连接
	db.SetMaxOpenConns(1)

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)",
		"CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row)",
		"CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT)",
		"CREATE UNIQUE INDEX IF NOT EXISTS name ON metadata (name)",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "init mbtiles %s", path)
		}
	}
	meta := map[string]string{
		"name":    c.Name(),
		"type":    "baselayer",
		"version": "1.3",
		"format":  c.Format(),
		"minzoom": strconv.Itoa(c.MinZoom()),
		"maxzoom": strconv.Itoa(c.MaxZoom()),
	}
	for k, v := range meta {
		if _, err := db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", k, v); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "write mbtiles metadata %s", k)
		}
	}
	return &mbtilesWriter{db: db, space: c.MapSpace()}, nil
}

func (w *mbtilesWriter) WriteTile(tile Tile) error {
	z := int(tile.T.Z)
	rows := w.space.LatToY(-90, z)/w.space.TileSize() + 1
	row := rows - 1 - int(tile.T.Y)
	_, err := w.db.Exec("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)",
		z, int(tile.T.X), row, tile.C)
	return err
}

func (w *mbtilesWriter) Close() error {
	return w.db.Close()
}
