package main

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"github.com/pkg/errors"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"
)

func InitTask() {
	start := time.Now()

	c, err := conf.BuildComposite()
	if err != nil {
		log.Fatalf("build composite error, details: %s", err)
	}
	lm, err := parseLoadMethod(conf.Task.LoadMethod)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("composite %s: %s, zoom [%d, %d], %d layers", c.Name(), c.MapSpace(), c.MinZoom(), c.MaxZoom(), len(c.Layers()))

	w, err := NewTileWriter(conf.Output.Format, conf.Output.Directory, c)
	if err != nil {
		log.Fatal(err)
	}
	SafeExitInst.Register(func() { w.Close() })
	ctx := SafeExitInst.Context()

	if tileArg != "" {
		if err := renderOne(ctx, c, w, lm, tileArg); err != nil {
			log.Errorf("render %s error, details: %s", tileArg, err)
		}
		return
	}

	var regions []Region
	for _, lrs := range conf.Lrs {
		collection, err := loadCollection(lrs.Geojson)
		if err != nil {
			log.Fatalf("load %s error, details: %s", lrs.Geojson, err)
		}
		for z := maxInt(lrs.Min, c.MinZoom()); z <= minInt(lrs.Max, c.MaxZoom()); z++ {
			regions = append(regions, Region{Zoom: z, Collection: collection})
		}
	}

	task := NewTask(regions, c, w, TaskOptions{
		Workers:    conf.Task.Workers,
		TimeDelay:  conf.Task.Timedelay,
		BufSize:    conf.Task.BufSize,
		LoadMethod: lm,
		BreakPoint: BreakPointInst,
	})
	if task == nil {
		log.Warnf("no region within zoom [%d, %d], nothing to do", c.MinZoom(), c.MaxZoom())
		return
	}

	// 开始下载
	if err := task.Download(ctx); err != nil {
		log.Warnf("Task %s got canceled.", task.Name)
	}

	secs := time.Since(start).Seconds()
	log.Printf("\n%.3fs finished, %d tiles, %d failed ...", secs, task.Total, atomic.LoadInt64(&task.Failed))
}

// renderOne 渲染单张 z/x/y 瓦片
func renderOne(ctx context.Context, c *Composite, w TileWriter, lm LoadMethod, arg string) error {
	parts := strings.Split(arg, "/")
	if len(parts) != 3 {
		return errors.Errorf("tile %q is not z/x/y", arg)
	}
	var zxy [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return errors.Errorf("tile %q is not z/x/y", arg)
		}
		zxy[i] = v
	}
	data, err := c.TileData(ctx, zxy[0], zxy[1], zxy[2], lm)
	if err != nil {
		return err
	}
	if data == nil {
		log.Infof("tile %s is empty", arg)
		return nil
	}
	return w.WriteTile(Tile{T: maptile.Tile{X: uint32(zxy[1]), Y: uint32(zxy[2]), Z: maptile.Zoom(zxy[0])}, C: data})
}

// Region 级别&覆盖范围
type Region struct {
	Zoom       int
	Count      int64
	Collection orb.Collection
}

// TaskOptions 任务参数
type TaskOptions struct {
	Workers    int
	TimeDelay  int
	BufSize    int
	LoadMethod LoadMethod
	BreakPoint *BreakPoint
}

// Task 合成任务
type Task struct {
	ID        string
	Name      string
	Regions   []Region
	Composite *Composite
	Writer    TileWriter
	Total     int64
	Current   int64
	Failed    int64

	opts    TaskOptions
	tileWG  sync.WaitGroup
	workers chan struct{}
}

// NewTask 创建合成任务
func NewTask(regions []Region, c *Composite, w TileWriter, opts TaskOptions) *Task {
	if len(regions) == 0 {
		return nil
	}
	id, _ := shortid.Generate()
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	task := Task{
		ID:        id,
		Name:      c.Name(),
		Regions:   regions,
		Composite: c,
		Writer:    w,
		opts:      opts,
	}

	for i := 0; i < len(regions); i++ {
		regions[i].Count = task.count(regions[i])
		log.Printf("zoom: %d, tiles: %d \n", regions[i].Zoom, regions[i].Count)
		task.Total += regions[i].Count
	}

	task.workers = make(chan struct{}, opts.Workers)
	return &task
}

// mercatorCover 256 像素球面墨卡托可以直接使用 tilecover
func (task *Task) mercatorCover() bool {
	space := task.Composite.MapSpace()
	return space.Type() == MercatorSpherical && space.TileSize() == TileSize
}

func (task *Task) count(r Region) int64 {
	if task.mercatorCover() {
		return tilecover.CollectionCount(r.Collection, maptile.Zoom(r.Zoom))
	}
	p1, p2 := boundPixels(task.Composite.MapSpace(), r.Collection.Bound(), r.Zoom)
	ts := task.Composite.MapSpace().TileSize()
	return int64(p2.X/ts-p1.X/ts+1) * int64(p2.Y/ts-p1.Y/ts+1)
}

// Download 开启合成任务, 取消时返回 ctx.Err()
func (task *Task) Download(ctx context.Context) error {
	for _, r := range task.Regions {
		if err := task.downloadRegion(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// tileFetcher 瓦片合成器
func (task *Task) tileFetcher(ctx context.Context, mt maptile.Tile) {
	start := time.Now()
	//workers完成并清退
	defer func() {
		task.tileWG.Done()
		<-task.workers
	}()

	z, x, y := int(mt.Z), int(mt.X), int(mt.Y)
	data, err := task.Composite.TileData(ctx, z, x, y, task.opts.LoadMethod)
	if err != nil {
		if isCanceled(err) {
			return
		}
		atomic.AddInt64(&task.Failed, 1)
		log.Warnf("render tile(z:%d, x:%d, y:%d) error, details: %s ~", z, x, y, err)
		return
	}
	if data == nil {
		log.Debugf("nil tile %v ~", mt)
		return
	}
	if err := task.Writer.WriteTile(Tile{T: mt, C: data}); err != nil {
		atomic.AddInt64(&task.Failed, 1)
		log.Errorf("save %v tile error ~ %s", mt, err)
		return
	}
	task.opts.BreakPoint.SetSuccessed(z, x, y)

	cost := time.Since(start).Milliseconds()
	log.Debugf("tile(z:%d, x:%d, y:%d), %dms , %.2f kb ...", z, x, y, cost, float32(len(data))/1024.0)
}

// downloadRegion 合成指定层级
func (task *Task) downloadRegion(ctx context.Context, r Region) error {
	log.Infof("Task %s zoom %d starting", task.ID, r.Zoom)
	bar := pb.New64(r.Count).Prefix(fmt.Sprintf("Zoom %d : ", r.Zoom)).Postfix("\n")
	bar.SetRefreshRate(time.Second)
	bar.Start()

	var tilelist = make(chan maptile.Tile, task.opts.BufSize)
	if task.mercatorCover() {
		go tilecover.CollectionChannel(r.Collection, maptile.Zoom(r.Zoom), tilelist)
	} else {
		go boundCover(ctx, task.Composite.MapSpace(), r.Collection.Bound(), r.Zoom, tilelist)
	}

	for tile := range tilelist {
		// 取消后只清空队列
		if ctx.Err() != nil {
			continue
		}
		atomic.AddInt64(&task.Current, 1)
		// 如果已经在成功列表里
		if task.opts.BreakPoint.IsSuccessed(int(tile.Z), int(tile.X), int(tile.Y)) {
			log.Debugf("tile %v already written, skip", tile)
			bar.Increment()
			continue
		}
		select {
		// 向队列发送数据
		case task.workers <- struct{}{}:
			bar.Increment()
			//设置请求发送间隔时间
			time.Sleep(time.Duration(task.opts.TimeDelay) * time.Millisecond)
			task.tileWG.Add(1)
			go task.tileFetcher(ctx, tile)
		case <-ctx.Done():
		}
	}
	//等待该层结束
	task.tileWG.Wait()
	if err := ctx.Err(); err != nil {
		bar.Finish()
		log.Infof("Task %s zoom %d got canceled.", task.ID, r.Zoom)
		return err
	}
	bar.FinishPrint(fmt.Sprintf("Task %s Zoom %d finished ~", task.ID, r.Zoom))
	return nil
}

// boundPixels 范围左上与右下角在投影中的像素坐标
func boundPixels(space MapSpace, b orb.Bound, zoom int) (image.Point, image.Point) {
	return space.LonLatToXY(orb.Point{b.Min.X(), b.Max.Y()}, zoom), space.LonLatToXY(orb.Point{b.Max.X(), b.Min.Y()}, zoom)
}

// boundCover 按外包矩形枚举非 web 墨卡托投影下的瓦片
func boundCover(ctx context.Context, space MapSpace, b orb.Bound, zoom int, ch chan<- maptile.Tile) {
	defer close(ch)
	p1, p2 := boundPixels(space, b, zoom)
	ts := space.TileSize()
	for x := p1.X / ts; x <= p2.X/ts; x++ {
		for y := p1.Y / ts; y <= p2.Y/ts; y++ {
			select {
			case ch <- maptile.Tile{X: uint32(x), Y: uint32(y), Z: maptile.Zoom(zoom)}:
			case <-ctx.Done():
				return
			}
		}
	}
}
