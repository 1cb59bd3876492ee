package main

import (
	"context"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// WatermarkConf 水印图层配置
type WatermarkConf struct {
	Name        string
	File        string
	MinZoom     int
	MaxZoom     int
	Probability int

	// Mosaic is up to 8 comma separated rows of '0'/'1'; row y%8, column x%8.
	Mosaic string
}

// WatermarkSource 不返回真实影像, 而是按掩码或概率决定每张瓦片是否返回水印图片
type WatermarkSource struct {
	name        string
	space       MapSpace
	minZoom     int
	maxZoom     int
	format      string
	image       image.Image
	probability int
	mosaic      []byte

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ TileSource = &WatermarkSource{}

// NewWatermarkSource 读取水印文件并解析掩码, 文件缺失时返回配置错误
func NewWatermarkSource(c WatermarkConf) (*WatermarkSource, error) {
	if c.Name == "" {
		c.Name = "Watermark"
	}
	if c.File == "" {
		return nil, configErrorf("layer %s: watermark file required", c.Name)
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "layer %s: watermark file: %v", c.Name, err)
	}
	img, err := DecodeTile(data)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "layer %s: watermark file: %v", c.Name, err)
	}
	if err := checkZoomRange(c.Name, c.MinZoom, c.MaxZoom); err != nil {
		return nil, err
	}
	if c.Probability < 0 || c.Probability > 100 {
		return nil, configErrorf("layer %s: probability %d not in [0, 100]", c.Name, c.Probability)
	}
	s := &WatermarkSource{
		name:        c.Name,
		space:       MercatorSpace256(),
		minZoom:     c.MinZoom,
		maxZoom:     c.MaxZoom,
		format:      strings.TrimPrefix(strings.ToLower(filepath.Ext(c.File)), "."),
		image:       img,
		probability: c.Probability,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if c.Mosaic != "" {
		s.mosaic = parseMosaic(c.Mosaic)
	}
	return s, nil
}

func parseMosaic(mosaic string) []byte {
	mask := make([]byte, 8)
	rows := strings.Split(mosaic, ",")
	for i := 0; i < len(rows) && i < len(mask); i++ {
		row := strings.TrimSpace(rows[i])
		for j := 0; j < len(row) && j < 8; j++ {
			if row[j] == '1' {
				mask[i] |= 1 << uint(j)
			}
		}
	}
	return mask
}

func (s *WatermarkSource) Name() string       { return s.name }
func (s *WatermarkSource) MapSpace() MapSpace { return s.space }
func (s *WatermarkSource) MinZoom() int       { return s.minZoom }
func (s *WatermarkSource) MaxZoom() int       { return s.maxZoom }
func (s *WatermarkSource) String() string     { return s.name }

// Format 水印文件的图片格式
func (s *WatermarkSource) Format() string { return s.format }

// Hit reports whether tile (x, y) gets the watermark.
func (s *WatermarkSource) Hit(x, y int) bool {
	if s.mosaic != nil {
		return s.mosaic[y%8]&(1<<uint(x%8)) != 0
	}
	s.mu.Lock()
	draw := s.rnd.Intn(100) + 1
	s.mu.Unlock()
	return draw <= s.probability
}

func (s *WatermarkSource) TileImage(ctx context.Context, zoom, x, y int, lm LoadMethod) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.Hit(x, y) {
		return nil, nil
	}
	return s.image, nil
}
