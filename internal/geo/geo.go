// internal/geo/geo.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package geo provides the geodetic position and own-ship navigation types
// shared by the engagement and weapon components.
package geo

import "math"

// Point is a 3-D geodetic position: latitude and longitude in degrees,
// depth/altitude in meters (positive below the waterline for mines,
// positive above it for missiles — the sign convention is the caller's).
type Point struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Depth float64 `json:"depth"`
}

// IsZero reports whether p is the zero value, used to detect an unset
// direct target position.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0 && p.Depth == 0
}

// ValidPosition reports whether p's components fall within the accepted
// ranges: latitude in [-90, 90], longitude in [-180, 180], depth in
// [-1000, 10000].
func ValidPosition(p Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 &&
		p.Lon >= -180 && p.Lon <= 180 &&
		p.Depth >= -1000 && p.Depth <= 10000
}

// Mid returns the component-wise midpoint of a and b.
func Mid(a, b Point) Point {
	return Point{
		Lat:   (a.Lat + b.Lat) / 2,
		Lon:   (a.Lon + b.Lon) / 2,
		Depth: (a.Depth + b.Depth) / 2,
	}
}

// Lerp linearly interpolates between a and b at fraction t ([0, 1]).
func Lerp(a, b Point, t float64) Point {
	return Point{
		Lat:   a.Lat + t*(b.Lat-a.Lat),
		Lon:   a.Lon + t*(b.Lon-a.Lon),
		Depth: a.Depth + t*(b.Depth-a.Depth),
	}
}

const earthRadiusM = 6371000.0

// DistanceMeters returns the great-circle distance between a and b in
// meters via the haversine formula, ignoring depth.
func DistanceMeters(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon) - radians(a.Lon)

	sinDLat2 := math.Sin(dLat / 2)
	sinDLon2 := math.Sin(dLon / 2)
	h := sinDLat2*sinDLat2 + math.Cos(lat1)*math.Cos(lat2)*sinDLon2*sinDLon2
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Nav is the own-ship navigation state fanned out to engagement managers.
type Nav struct {
	Position Point   `json:"position"`
	HeadingD float64 `json:"heading_deg"`
	SpeedMps float64 `json:"speed_mps"`
}

// PolylineLength sums the segment lengths of pts, treating it as a
// piecewise-linear path.
func PolylineLength(pts []Point) float64 {
	var total float64
	for i := 1; i < len(pts); i++ {
		total += DistanceMeters(pts[i-1], pts[i])
	}
	return total
}

// Interpolate walks pts (a piecewise-linear trajectory of at least one
// point) for distance traveled meters from the start and returns the
// corresponding position, clamping to the final point past the end.
func Interpolate(pts []Point, traveled float64) Point {
	if len(pts) == 0 {
		return Point{}
	}
	if len(pts) == 1 || traveled <= 0 {
		return pts[0]
	}
	remaining := traveled
	for i := 1; i < len(pts); i++ {
		segLen := DistanceMeters(pts[i-1], pts[i])
		if remaining <= segLen {
			if segLen == 0 {
				return pts[i-1]
			}
			return Lerp(pts[i-1], pts[i], remaining/segLen)
		}
		remaining -= segLen
	}
	return pts[len(pts)-1]
}
