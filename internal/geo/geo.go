// Package geo wraps spherical geometry used by the track network: distances,
// bearings and projections are all computed on the same sphere so that a point
// projected by an edge's own length lands on the edge's far station.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// LatLon is a position in decimal degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p LatLon) point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

func fromPoint(p orb.Point) LatLon {
	return LatLon{Lat: p.Lat(), Lon: p.Lon()}
}

// DistanceKm returns the great-circle (haversine) distance between a and b.
func DistanceKm(a, b LatLon) float64 {
	return orbgeo.DistanceHaversine(a.point(), b.point()) / 1000
}

// BearingDeg returns the initial bearing from a to b in [0, 360).
func BearingDeg(a, b LatLon) float64 {
	return NormalizeDeg(orbgeo.Bearing(a.point(), b.point()))
}

// Destination projects distanceKm from p along the given bearing.
func Destination(p LatLon, bearingDeg, distanceKm float64) LatLon {
	return fromPoint(orbgeo.PointAtBearingAndDistance(p.point(), bearingDeg, distanceKm*1000))
}

// Midpoint returns the great-circle midpoint of a and b.
func Midpoint(a, b LatLon) LatLon {
	return fromPoint(orbgeo.Midpoint(a.point(), b.point()))
}

// NormalizeDeg maps any angle into [0, 360).
func NormalizeDeg(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// Bound returns the smallest bounding box containing all points.
func Bound(points ...LatLon) orb.Bound {
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		mp = append(mp, p.point())
	}
	return mp.Bound()
}

// InBound reports whether p lies inside b (edges inclusive).
func InBound(b orb.Bound, p LatLon) bool {
	return b.Contains(p.point())
}
