// Package geo has the small amount of geometry the map view needs.
package geo

import (
	"fmt"
	"math"

	"github.com/linnemanlabs/dispatch/internal/alert"
)

const earthRadiusM = 6371000.0

// BoundsMargin widens computed bounds on each side, as a fraction of the span.
const BoundsMargin = 0.10

// Box is a lat/lon rectangle.
type Box struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Center returns the midpoint of b.
func (b Box) Center() alert.Location {
	return alert.Location{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Bounds returns the box enclosing every alert, widened by BoundsMargin.
// ok is false when alerts is empty.
func Bounds(alerts []alert.Alert) (box Box, ok bool) {
	if len(alerts) == 0 {
		return Box{}, false
	}
	box = Box{MinLat: math.Inf(1), MinLon: math.Inf(1), MaxLat: math.Inf(-1), MaxLon: math.Inf(-1)}
	for _, a := range alerts {
		box.MinLat = math.Min(box.MinLat, a.Location.Lat)
		box.MaxLat = math.Max(box.MaxLat, a.Location.Lat)
		box.MinLon = math.Min(box.MinLon, a.Location.Lon)
		box.MaxLon = math.Max(box.MaxLon, a.Location.Lon)
	}
	dLat := (box.MaxLat - box.MinLat) * BoundsMargin
	dLon := (box.MaxLon - box.MinLon) * BoundsMargin
	box.MinLat -= dLat
	box.MaxLat += dLat
	box.MinLon -= dLon
	box.MaxLon += dLon
	return box, true
}

// Distance is the great-circle distance between a and b in metres.
func Distance(a, b alert.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FormatDistance renders metres as "850 m" below one kilometre and
// "1.2 km" above.
func FormatDistance(m float64) string {
	if m < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(m)))
	}
	return fmt.Sprintf("%.1f km", m/1000)
}
