package osm

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
)

const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// BBox is an axis aligned box in degrees.
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// ErrBBoxFormat is returned when a bbox string is not four comma separated numbers.
var ErrBBoxFormat = errors.New("bbox must be of the form min_lon,min_lat,max_lon,max_lat")

// ParseBBox parses the "min_lon,min_lat,max_lon,max_lat" form used by query parameters.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, ErrBBoxFormat
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, errors.Mark(errors.Wrapf(err, "bbox coordinate %d", i), ErrBBoxFormat)
		}
		vals[i] = v
	}

	return BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}, nil
}

// Rect returns the box as a planar rectangle with longitude on the x axis.
func (b BBox) Rect() r2.Rect {
	return r2.Rect{
		X: r1.Interval{Lo: b.MinLon, Hi: b.MaxLon},
		Y: r1.Interval{Lo: b.MinLat, Hi: b.MaxLat},
	}
}

// Valid reports whether the coordinates are within the world and the minima are not larger than the maxima.
func (b BBox) Valid() bool {
	world := r2.Rect{X: r1.Interval{Lo: MinLon, Hi: MaxLon}, Y: r1.Interval{Lo: MinLat, Hi: MaxLat}}
	rect := b.Rect()
	return !rect.IsEmpty() && world.Contains(rect)
}

// Area is the size of the box in square degrees.
func (b BBox) Area() float64 {
	size := b.Rect().Size()
	return size.X * size.Y
}

// Contains reports whether the location is inside the box, edges included.
func (b BBox) Contains(lon, lat float64) bool {
	return b.Rect().ContainsPoint(r2.Point{X: lon, Y: lat})
}

// Extend grows the box to include the location.
func (b BBox) Extend(lon, lat float64) BBox {
	rect := b.Rect().AddPoint(r2.Point{X: lon, Y: lat})
	return BBox{MinLon: rect.X.Lo, MinLat: rect.Y.Lo, MaxLon: rect.X.Hi, MaxLat: rect.Y.Hi}
}

// PointBBox returns the degenerate box around a single location.
func PointBBox(lon, lat float64) BBox {
	return BBox{MinLon: lon, MinLat: lat, MaxLon: lon, MaxLat: lat}
}
