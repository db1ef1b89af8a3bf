// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geo provides the geodesic primitives used by the tracking engine: points, position fixes,
// targets and the distance math between them.
package geo

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// EarthRadius is the mean earth radius in meters as used by the haversine computation.
const EarthRadius = orb.EarthRadius

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidRadius     = errors.New("invalid geofence radius")
	ErrMissingTimestamp  = errors.New("fix has no timestamp")
	ErrInvalidAccuracy   = errors.New("invalid fix accuracy")
)

// Point represents a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Valid checks if the point is a finite coordinate within the EPSG:4326 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p Point) orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Fix is a single timestamped position report.
type Fix struct {
	Point
	At time.Time
	// Accuracy is the horizontal accuracy in meters. Zero means unknown.
	Accuracy float64
	Source   string
}

// HasAccuracy reports whether the fix carries a horizontal accuracy estimate.
func (f Fix) HasAccuracy() bool {
	return f.Accuracy > 0
}

// Validate returns an error if the fix cannot be used by the tracking engine.
func (f Fix) Validate() error {
	if !f.Point.Valid() {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, f.Lat, f.Lon)
	}
	if f.At.IsZero() {
		return ErrMissingTimestamp
	}
	if math.IsNaN(f.Accuracy) || math.IsInf(f.Accuracy, 0) || f.Accuracy < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAccuracy, f.Accuracy)
	}
	return nil
}

// Target is the destination of a tracking session. It is immutable for the lifetime of a session.
type Target struct {
	ID     string
	Name   string
	Point  Point
	Radius float64
}

// Key returns the identifier the target is tracked under. Targets without an explicit ID are keyed
// by their coordinates.
func (t Target) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return fmt.Sprintf("%.6f,%.6f", t.Point.Lat, t.Point.Lon)
}

// Validate returns an error if the target coordinates or radius are unusable.
func (t Target) Validate() error {
	if !t.Point.Valid() {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, t.Point.Lat, t.Point.Lon)
	}
	if math.IsNaN(t.Radius) || math.IsInf(t.Radius, 0) || t.Radius <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRadius, t.Radius)
	}
	return nil
}

// Distance returns the great-circle distance between a and b in meters using the haversine formula.
func Distance(a, b Point) float64 {
	d := orbgeo.DistanceHaversine(a.orb(), b.orb())
	// Rounding can push the haversine term above 1 for antipodal points.
	if math.IsNaN(d) {
		return math.Pi * EarthRadius
	}
	return d
}

// Bearing returns the initial bearing from a to b in degrees, normalized to [0, 360).
func Bearing(a, b Point) float64 {
	if a == b {
		return 0
	}
	bearing := math.Mod(orbgeo.Bearing(a.orb(), b.orb())+360, 360)
	if math.IsNaN(bearing) {
		return 0
	}
	return bearing
}

// IsWithinRadius reports whether point lies within radius meters of target. The boundary is inclusive.
func IsWithinRadius(point, target Point, radius float64) bool {
	return Distance(point, target) <= radius
}

// FormatDistance renders a distance for humans. Values below one kilometer are shown in whole meters,
// everything else in kilometers with one decimal.
func FormatDistance(meters float64) string {
	if math.IsNaN(meters) || meters < 0 {
		meters = 0
	}
	rounded := math.Round(meters)
	if rounded < 1000 {
		return fmt.Sprintf("%dm", int64(rounded))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}
