package main

import (
	"context"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// HTTPSource 按 url 模板下载瓦片
type HTTPSource struct {
	name    string
	url     string
	space   MapSpace
	minZoom int
	maxZoom int
	client  *http.Client
}

var _ TileSource = &HTTPSource{}

// NewHTTPSource 创建网络瓦片源, url 中的 {x} {y} {z} 会被替换
func NewHTTPSource(name, url string, space MapSpace, minZoom, maxZoom int) (*HTTPSource, error) {
	if url == "" {
		return nil, configErrorf("layer %s: empty url", name)
	}
	if err := checkZoomRange(name, minZoom, maxZoom); err != nil {
		return nil, err
	}
	return &HTTPSource{
		name:    name,
		url:     url,
		space:   space,
		minZoom: minZoom,
		maxZoom: maxZoom,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *HTTPSource) Name() string       { return s.name }
func (s *HTTPSource) MapSpace() MapSpace { return s.space }
func (s *HTTPSource) MinZoom() int       { return s.minZoom }
func (s *HTTPSource) MaxZoom() int       { return s.maxZoom }
func (s *HTTPSource) String() string     { return s.name }

// TileURL 获取瓦片URL
func (s *HTTPSource) TileURL(zoom, x, y int) string {
	url := strings.Replace(s.url, "{x}", strconv.Itoa(x), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(y), -1)
	url = strings.Replace(url, "{z}", strconv.Itoa(zoom), -1)
	return url
}

func (s *HTTPSource) TileImage(ctx context.Context, zoom, x, y int, lm LoadMethod) (image.Image, error) {
	if lm == LoadCacheOnly {
		return nil, nil
	}
	start := time.Now()
	url := s.TileURL(zoom, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, tileIOError(zoom, x, y, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, tileIOError(zoom, x, y, errors.Wrapf(err, "fetch %s", url))
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		log.Debugf("no tile at %s, status code: %d ~", url, resp.StatusCode)
		return nil, nil
	default:
		return nil, tileIOError(zoom, x, y, errors.Errorf("fetch %s, status code: %d", url, resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, tileIOError(zoom, x, y, errors.Wrapf(err, "read %s", url))
	}
	if len(body) == 0 {
		log.Debugf("nil tile %s ~", url)
		return nil, nil
	}
	img, err := DecodeTile(body)
	if err != nil {
		return nil, tileIOError(zoom, x, y, err)
	}
	log.Debugf("tile(z:%d, x:%d, y:%d), %dms , %.2f kb, %s ...", zoom, x, y, time.Since(start).Milliseconds(), float32(len(body))/1024.0, url)
	return img, nil
}

// DirSource 读取 z/x/y.format 目录结构的本地瓦片
type DirSource struct {
	name    string
	dir     string
	format  string
	space   MapSpace
	minZoom int
	maxZoom int
}

var _ TileSource = &DirSource{}

// NewDirSource 创建本地目录瓦片源, 目录必须存在
func NewDirSource(name, dir, format string, space MapSpace, minZoom, maxZoom int) (*DirSource, error) {
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, configErrorf("layer %s: tile directory %s not found", name, dir)
	}
	if format == "" {
		format = PNG
	}
	if err := checkZoomRange(name, minZoom, maxZoom); err != nil {
		return nil, err
	}
	return &DirSource{
		name:    name,
		dir:     dir,
		format:  strings.TrimPrefix(format, "."),
		space:   space,
		minZoom: minZoom,
		maxZoom: maxZoom,
	}, nil
}

func (s *DirSource) Name() string       { return s.name }
func (s *DirSource) MapSpace() MapSpace { return s.space }
func (s *DirSource) MinZoom() int       { return s.minZoom }
func (s *DirSource) MaxZoom() int       { return s.maxZoom }
func (s *DirSource) String() string     { return s.name }

func (s *DirSource) TileImage(ctx context.Context, zoom, x, y int, lm LoadMethod) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fileName := filepath.Join(s.dir, strconv.Itoa(zoom), strconv.Itoa(x), strconv.Itoa(y)+"."+s.format)
	data, err := os.ReadFile(fileName)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, tileIOError(zoom, x, y, err)
	}
	img, err := DecodeTile(data)
	if err != nil {
		return nil, tileIOError(zoom, x, y, errors.Wrapf(err, "file %s", fileName))
	}
	return img, nil
}

func checkZoomRange(name string, minZoom, maxZoom int) error {
	if minZoom < ZoomMin || maxZoom > ZoomMax || minZoom > maxZoom {
		return configErrorf("layer %s: invalid zoom range [%d, %d]", name, minZoom, maxZoom)
	}
	return nil
}
