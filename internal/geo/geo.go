// Package geo implements the great-circle and bounding-box predicates used to select buildings.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// boundsPadding widens prefilter bounds so points sitting on the circle survive float rounding.
const boundsPadding = 1e-9

// ErrInvalidCoordinates is returned when a point or box falls outside valid WGS84 ranges.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Point is a WGS84 position in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Validate checks latitude and longitude ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinates, p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinates, p.Lon)
	}
	return nil
}

// BBox is an axis-aligned latitude/longitude box with inclusive bounds.
// Boxes crossing the antimeridian are not supported.
type BBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Validate checks corner ranges and ordering.
func (b BBox) Validate() error {
	if err := (Point{Lat: b.MinLat, Lon: b.MinLon}).Validate(); err != nil {
		return err
	}
	if err := (Point{Lat: b.MaxLat, Lon: b.MaxLon}).Validate(); err != nil {
		return err
	}
	if b.MinLat > b.MaxLat {
		return fmt.Errorf("%w: min_lat %v greater than max_lat %v", ErrInvalidCoordinates, b.MinLat, b.MaxLat)
	}
	if b.MinLon > b.MaxLon {
		return fmt.Errorf("%w: min_lon %v greater than max_lon %v", ErrInvalidCoordinates, b.MinLon, b.MaxLon)
	}
	return nil
}

// Contains reports whether p lies inside the box, bounds included.
func (b BBox) Contains(p Point) bool {
	return b.MinLat <= p.Lat && p.Lat <= b.MaxLat &&
		b.MinLon <= p.Lon && p.Lon <= b.MaxLon
}

// Locator is anything with optional coordinates, typically a building.
type Locator interface {
	Coordinates() (Point, bool)
}

// Distance returns the haversine great-circle distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	// rounding can push h marginally above 1 for antipodal points
	h = math.Min(1, h)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// InRadius reports whether loc has coordinates within radiusKm of center.
func InRadius(center Point, radiusKm float64, loc Locator) bool {
	p, ok := loc.Coordinates()
	if !ok {
		return false
	}
	return Distance(center, p) <= radiusKm
}

// InBBox reports whether loc has coordinates inside box.
func InBBox(box BBox, loc Locator) bool {
	p, ok := loc.Coordinates()
	if !ok {
		return false
	}
	return box.Contains(p)
}

// BoundsAround returns the smallest box enclosing every point within radiusKm of center.
// Stores use it as an index-friendly prefilter ahead of InRadius. Near the poles, or when the
// circle crosses the antimeridian, the box spans the full longitude range.
func BoundsAround(center Point, radiusKm float64) BBox {
	angular := radiusKm / EarthRadiusKm
	if angular >= math.Pi/2 {
		return BBox{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
	}

	dLat := degrees(angular) + boundsPadding
	box := BBox{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLon: -180,
		MaxLon: 180,
	}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		return box
	}

	ratio := math.Sin(angular) / math.Cos(radians(center.Lat))
	if ratio >= 1 {
		return box
	}
	dLon := degrees(math.Asin(ratio)) + boundsPadding
	if center.Lon-dLon < -180 || center.Lon+dLon > 180 {
		return box
	}
	box.MinLon = center.Lon - dLon
	box.MaxLon = center.Lon + dLon
	return box
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
