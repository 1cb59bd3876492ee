package main

import (
	"math"

	"github.com/paulmach/orb"
)

// WGS-84 到 GCJ-02 的加偏算法.
// 加偏不可逆: FromGCJ02 只是把加偏量反向减去的近似, 国内误差在 5 米以内.

// Krasovsky 1940 椭球
const (
	gcjA  = 6378245.0
	gcjEE = 0.00669342162296594323
)

// GCJ02Bound 加偏生效的经纬度范围, 范围外的点原样返回
var GCJ02Bound = orb.Bound{
	Min: orb.Point{72.004, 0.8293},
	Max: orb.Point{137.8347, 55.8271},
}

// ToGCJ02 applies the offset to a WGS-84 point.
func ToGCJ02(p orb.Point) orb.Point {
	if !GCJ02Bound.Contains(p) {
		return p
	}
	lon, lat := p.X(), p.Y()
	dLat := gcjLat(lon-105.0, lat-35.0)
	dLon := gcjLon(lon-105.0, lat-35.0)

	radLat := lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - gcjEE*magic*magic
	sqrtMagic := math.Sqrt(magic)
	dLat = (dLat * 180.0) / ((gcjA * (1 - gcjEE)) / (magic * sqrtMagic) * math.Pi)
	dLon = (dLon * 180.0) / (gcjA / sqrtMagic * math.Cos(radLat) * math.Pi)
	return orb.Point{lon + dLon, lat + dLat}
}

// FromGCJ02 approximates the WGS-84 point for an offset point by subtracting
// the offset computed at the offset point itself. It is not an exact inverse.
func FromGCJ02(p orb.Point) orb.Point {
	q := ToGCJ02(p)
	return orb.Point{2*p.X() - q.X(), 2*p.Y() - q.Y()}
}

func gcjLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func gcjLon(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}
