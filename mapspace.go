package main

import (
	"image"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// MapSpaceType 投影类型
type MapSpaceType int

const (
	// MercatorSpherical web 墨卡托 (EPSG:3857)
	MercatorSpherical MapSpaceType = iota
	// MercatorEllipsoidal 椭球墨卡托 (EPSG:3395)
	MercatorEllipsoidal
	// MercatorGCJ02 带国测局偏移的球面墨卡托
	MercatorGCJ02
	// GeoLatlong 经纬度等距投影, 世界高度为宽度的一半
	GeoLatlong
)

// MaxLatSpherical is the latitude at which spherical mercator becomes a square world.
const MaxLatSpherical = 85.05112877980659

// MaxLatEllipsoidal is the same limit on the WGS84 ellipsoid.
const MaxLatEllipsoidal = 85.08405904978349

// WGS84 first eccentricity
const wgs84E = 0.0818191908426215

var mapSpaceNames = map[MapSpaceType]string{
	MercatorSpherical:   "mercator",
	MercatorEllipsoidal: "ellipsoidal",
	MercatorGCJ02:       "gcj02",
	GeoLatlong:          "latlong",
}

func (t MapSpaceType) String() string {
	if s, ok := mapSpaceNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseMapSpaceType 解析配置中的投影名称, 空字符串为球面墨卡托
func ParseMapSpaceType(s string) (MapSpaceType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MercatorSpherical, nil
	}
	for t, name := range mapSpaceNames {
		if name == s {
			return t, nil
		}
	}
	return 0, configErrorf("unknown mapspace %q", s)
}

// MapSpace converts between geographic coordinates and pixels of one tile pyramid.
// Implementations are immutable and safe for concurrent use.
type MapSpace interface {
	Type() MapSpaceType
	TileSize() int
	// MaxPixels is the world width in pixels at zoom.
	MaxPixels(zoom int) int
	LonToX(lon float64, zoom int) int
	LatToY(lat float64, zoom int) int
	XToLon(x, zoom int) float64
	YToLat(y, zoom int) float64
	LonLatToXY(p orb.Point, zoom int) image.Point
	XYToLonLat(x, y, zoom int) orb.Point
	ChangeZoom(p image.Point, oldZoom, newZoom int) image.Point
	// HorizontalDistance is the angular distance in radians between pixel x=0
	// and x=xDist along the parallel at y.
	HorizontalDistance(zoom, y, xDist int) float64
	// MoveOnLatitude returns the pixel displacement of moving angularDist
	// radians east from startX along the parallel at y.
	MoveOnLatitude(startX, y, zoom int, angularDist float64) int
}

// mapSpace shares the longitude axis and the point/zoom helpers between
// every kind; the latitude axis and the optional datum offset are per kind.
type mapSpace struct {
	kind      MapSpaceType
	tileSize  int
	latToY    func(mp int, lat float64) int
	yToLat    func(mp int, y int) float64
	toSpace   func(orb.Point) orb.Point
	fromSpace func(orb.Point) orb.Point
}

var _ MapSpace = &mapSpace{}

// NewMapSpace 创建投影, tileSize 必须为 2 的幂
func NewMapSpace(kind MapSpaceType, tileSize int) (MapSpace, error) {
	if tileSize <= 0 || tileSize&(tileSize-1) != 0 {
		return nil, configErrorf("tile size %d is not a positive power of two", tileSize)
	}
	ms := &mapSpace{kind: kind, tileSize: tileSize}
	switch kind {
	case MercatorSpherical:
		ms.latToY, ms.yToLat = sphericalLatToY, sphericalYToLat
	case MercatorEllipsoidal:
		ms.latToY, ms.yToLat = ellipsoidalLatToY, ellipsoidalYToLat
	case MercatorGCJ02:
		ms.latToY, ms.yToLat = sphericalLatToY, sphericalYToLat
		ms.toSpace, ms.fromSpace = ToGCJ02, FromGCJ02
	case GeoLatlong:
		ms.latToY, ms.yToLat = latlongLatToY, latlongYToLat
	default:
		return nil, configErrorf("unknown mapspace kind %d", kind)
	}
	return ms, nil
}

// MercatorSpace256 默认输出投影
func MercatorSpace256() MapSpace {
	ms, _ := NewMapSpace(MercatorSpherical, TileSize)
	return ms
}

func (ms *mapSpace) Type() MapSpaceType { return ms.kind }

func (ms *mapSpace) TileSize() int { return ms.tileSize }

func (ms *mapSpace) MaxPixels(zoom int) int {
	return ms.tileSize << uint(zoom)
}

func (ms *mapSpace) LonToX(lon float64, zoom int) int {
	mp := ms.MaxPixels(zoom)
	return clampInt(int(math.Floor(float64(mp)*(lon+180)/360)), 0, mp-1)
}

func (ms *mapSpace) LatToY(lat float64, zoom int) int {
	return ms.latToY(ms.MaxPixels(zoom), lat)
}

func (ms *mapSpace) XToLon(x, zoom int) float64 {
	return 360*float64(x)/float64(ms.MaxPixels(zoom)) - 180
}

func (ms *mapSpace) YToLat(y, zoom int) float64 {
	return ms.yToLat(ms.MaxPixels(zoom), y)
}

func (ms *mapSpace) LonLatToXY(p orb.Point, zoom int) image.Point {
	if ms.toSpace != nil {
		p = ms.toSpace(p)
	}
	return image.Point{X: ms.LonToX(p.X(), zoom), Y: ms.LatToY(p.Y(), zoom)}
}

func (ms *mapSpace) XYToLonLat(x, y, zoom int) orb.Point {
	p := orb.Point{ms.XToLon(x, zoom), ms.YToLat(y, zoom)}
	if ms.fromSpace != nil {
		p = ms.fromSpace(p)
	}
	return p
}

func (ms *mapSpace) ChangeZoom(p image.Point, oldZoom, newZoom int) image.Point {
	return image.Point{X: shiftZoom(p.X, oldZoom, newZoom), Y: shiftZoom(p.Y, oldZoom, newZoom)}
}

func (ms *mapSpace) HorizontalDistance(zoom, y, xDist int) float64 {
	y = clampInt(y, 0, ms.MaxPixels(zoom))
	lat := degToRad(ms.YToLat(y, zoom))
	dLon := degToRad(ms.XToLon(xDist, zoom) + 180)

	cosLat := math.Cos(lat)
	sinHalf := math.Sin(dLon / 2)
	a := cosLat * cosLat * sinHalf * sinHalf
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func (ms *mapSpace) MoveOnLatitude(startX, y, zoom int, angularDist float64) int {
	lat := degToRad(ms.YToLat(y, zoom))
	sinLat := math.Sin(lat)
	lon := ms.XToLon(startX, zoom)
	lon += radToDeg(math.Atan2(math.Sin(angularDist)*math.Cos(lat), math.Cos(angularDist)-sinLat*sinLat))
	return ms.LonToX(lon, zoom) - startX
}

func (ms *mapSpace) String() string {
	return ms.kind.String()
}

// sameMapSpace 同类型同瓦片大小的投影之间无需重投影
func sameMapSpace(a, b MapSpace) bool {
	return a.Type() == b.Type() && a.TileSize() == b.TileSize()
}

// 球面墨卡托, 半径 R = mp/2π, 赤道在 mp/2
func sphericalLatToY(mp int, lat float64) int {
	lat = math.Max(-MaxLatSpherical, math.Min(MaxLatSpherical, lat))
	sinLat := math.Sin(degToRad(lat))
	l := math.Log((1 + sinLat) / (1 - sinLat))
	y := int(math.Floor(float64(mp) * (0.5 - l/(4*math.Pi))))
	return clampInt(y, 0, mp-1)
}

func sphericalYToLat(mp int, y int) float64 {
	yy := float64(y) - float64(mp)/2
	return radToDeg(2*math.Atan(math.Exp(-yy/mercatorRadius(mp))) - math.Pi/2)
}

func ellipsoidalLatToY(mp int, lat float64) int {
	lat = math.Max(-MaxLatEllipsoidal, math.Min(MaxLatEllipsoidal, lat))
	phi := degToRad(lat)
	con := wgs84E * math.Sin(phi)
	n := math.Log(math.Tan(math.Pi/4+phi/2) * math.Pow((1-con)/(1+con), wgs84E/2))
	y := int(math.Floor(float64(mp)/2 - n*mercatorRadius(mp)))
	return clampInt(y, 0, mp-1)
}

func ellipsoidalYToLat(mp int, y int) float64 {
	ts := math.Exp(-(float64(mp)/2 - float64(y)) / mercatorRadius(mp))
	phi := math.Pi/2 - 2*math.Atan(ts)
	for i := 0; i < 15; i++ {
		con := wgs84E * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(ts*math.Pow((1-con)/(1+con), wgs84E/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}
	return radToDeg(phi)
}

func latlongLatToY(mp int, lat float64) int {
	h := mp / 2
	y := int(math.Floor(float64(h) * (90 - lat) / 180))
	return clampInt(y, 0, h-1)
}

func latlongYToLat(mp int, y int) float64 {
	h := mp / 2
	y = clampInt(y, 0, h-1)
	return 90 - 180*float64(y)/float64(h)
}

func mercatorRadius(mp int) float64 {
	return float64(mp) / (2 * math.Pi)
}

func shiftZoom(v, oldZoom, newZoom int) int {
	diff := oldZoom - newZoom
	if diff > 0 {
		return v >> uint(diff)
	}
	return v << uint(-diff)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }

func radToDeg(r float64) float64 { return r * 180 / math.Pi }
