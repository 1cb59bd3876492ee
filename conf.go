package main

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var conf *Conf

type Conf struct {
	App struct {
		Version string `toml:"version"`
		Title   string `toml:"title"`
	} `toml:"app"`
	Output struct {
		Directory      string `toml:"directory"`
		LogDir         string `toml:"logDir"`
		OutputTerminal bool   `toml:"outputTerminal"`
		Format         string `toml:"format"`
	} `toml:"output"`
	Task struct {
		Workers    int    `toml:"workers"`
		Timedelay  int    `toml:"timedelay"`
		BufSize    int    `toml:"bufSize"`
		LoadMethod string `toml:"loadMethod"`
	} `toml:"task"`
	BreakPoint struct {
		SaveFilePath string `toml:"saveFilePath"`
	} `toml:"breakPoint"`
	Tm struct {
		Name          string `toml:"name"`
		Format        string `toml:"format"`
		ForceMercator bool   `toml:"forceMercator"`
		UnionZoom     bool   `toml:"unionZoom"`
		Background    string `toml:"background"`
	} `toml:"tm"`
	Layers []LayerConf `toml:"layers"`

	Lrs []struct {
		Min     int    `toml:"min"`
		Max     int    `toml:"max"`
		Geojson string `toml:"geojson"`
	} `toml:"lrs"`
}

// LayerConf 图层配置, url/dir/watermark 三选一, max 为 0 时取 ZoomMax
type LayerConf struct {
	Name        string   `toml:"name"`
	Mapspace    string   `toml:"mapspace"`
	TileSize    int      `toml:"tileSize"`
	Min         int      `toml:"min"`
	Max         int      `toml:"max"`
	Opacity     *float64 `toml:"opacity"`
	URL         string   `toml:"url"`
	Dir         string   `toml:"dir"`
	Format      string   `toml:"format"`
	Watermark   string   `toml:"watermark"`
	Mosaic      string   `toml:"mosaic"`
	Probability *int     `toml:"probability"`
}

// InitConf 初始化配置
func InitConf(cfgFile string) {
	c, err := loadConf(cfgFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	conf = c
}

func loadConf(cfgFile string) (*Conf, error) {
	if cfgFile == "" {
		cfgFile = "conf.toml"
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		return nil, errors.Errorf("config file(%s) not exist", cfgFile)
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(cfgFile)
	v.AutomaticEnv() // read in environment variables that match
	// 设置默认值
	v.SetDefault("app.version", "v 0.2.0")
	v.SetDefault("app.title", "MapCloud Tiler")
	v.SetDefault("output.format", "files")
	v.SetDefault("output.directory", "output")
	v.SetDefault("output.outputTerminal", true)
	v.SetDefault("task.workers", 4)
	v.SetDefault("task.timedelay", 0)
	v.SetDefault("task.bufSize", 64)
	v.SetDefault("breakPoint.saveFilePath", "breakpoint")
	v.SetDefault("tm.name", "composite")
	v.SetDefault("tm.format", PNG)
	v.SetDefault("tm.background", "#000000")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file(%s)", v.ConfigFileUsed())
	}

	var c Conf
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "配置文件解析失败")
	}
	return &c, nil
}

// BuildComposite 按配置创建所有图层与合成源
func (c *Conf) BuildComposite() (*Composite, error) {
	bg, err := parseColor(c.Tm.Background)
	if err != nil {
		return nil, err
	}
	cc := CompositeConf{
		Name:          c.Tm.Name,
		Format:        c.Tm.Format,
		ForceMercator: c.Tm.ForceMercator,
		UnionZoom:     c.Tm.UnionZoom,
		Background:    bg,
	}
	for i, lc := range c.Layers {
		if lc.Name == "" {
			lc.Name = fmt.Sprintf("layer%d", i)
		}
		src, err := lc.Source()
		if err != nil {
			return nil, err
		}
		opacity := 1.0
		if lc.Opacity != nil {
			opacity = *lc.Opacity
		}
		log.Infof("layer %s: %s, zoom [%d, %d], opacity %.2f", src.Name(), src.MapSpace(), src.MinZoom(), src.MaxZoom(), opacity)
		cc.Layers = append(cc.Layers, Layer{Source: src, Opacity: opacity})
	}
	return NewComposite(cc)
}

// Source 创建图层对应的瓦片源
func (lc LayerConf) Source() (TileSource, error) {
	if lc.Max == 0 {
		lc.Max = ZoomMax
	}
	if lc.Watermark != "" {
		probability := 100
		if lc.Probability != nil {
			probability = *lc.Probability
		}
		wm, err := NewWatermarkSource(WatermarkConf{
			Name:        lc.Name,
			File:        lc.Watermark,
			MinZoom:     lc.Min,
			MaxZoom:     lc.Max,
			Probability: probability,
			Mosaic:      lc.Mosaic,
		})
		if err != nil {
			return nil, err
		}
		log.Debugf("layer %s: watermark %s (%s)", lc.Name, lc.Watermark, wm.Format())
		return wm, nil
	}

	kind, err := ParseMapSpaceType(lc.Mapspace)
	if err != nil {
		return nil, errors.Wrapf(err, "layer %s", lc.Name)
	}
	tileSize := lc.TileSize
	if tileSize == 0 {
		tileSize = TileSize
	}
	space, err := NewMapSpace(kind, tileSize)
	if err != nil {
		return nil, errors.Wrapf(err, "layer %s", lc.Name)
	}
	switch {
	case lc.URL != "":
		return NewHTTPSource(lc.Name, lc.URL, space, lc.Min, lc.Max)
	case lc.Dir != "":
		return NewDirSource(lc.Name, lc.Dir, lc.Format, space, lc.Min, lc.Max)
	default:
		return nil, configErrorf("layer %s: one of url, dir or watermark is required", lc.Name)
	}
}

// parseColor 解析 #rrggbb 颜色
func parseColor(s string) (color.Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return color.Black, nil
	}
	if len(s) != 6 {
		return nil, configErrorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, configErrorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// parseLoadMethod 解析加载方式: cache / network / default
func parseLoadMethod(s string) (LoadMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return LoadDefault, nil
	case "cache":
		return LoadCacheOnly, nil
	case "network":
		return LoadNetwork, nil
	default:
		return 0, configErrorf("unknown load method %q", s)
	}
}
