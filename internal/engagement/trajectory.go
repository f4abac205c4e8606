// internal/engagement/trajectory.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package engagement

import (
	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// TrajectoryInput is everything the trajectory strategy needs to produce
// a plan.
type TrajectoryInput struct {
	LaunchPosition geo.Point
	TargetPosition geo.Point
	Waypoints      []geo.Point
	OwnShipNav     geo.Nav
	AxisCenter     geo.Point
	Kind           wcstypes.WeaponKind
}

// TrajectoryResult is the strategy's output. Trajectory is non-empty
// whenever the caller reports valid=true, its first point equals
// LaunchPosition and its last equals TargetPosition, and TotalTimeS is
// strictly positive. No other shape is imposed on implementations.
type TrajectoryResult struct {
	Trajectory    []geo.Point
	TotalTimeS    float64
	TurningPoints []geo.Point // missile only, len <= 16
}

// Calculator is the injectable trajectory strategy. The concrete
// ballistic/hydrodynamic model lives behind this interface.
type Calculator interface {
	Calculate(in TrajectoryInput) (TrajectoryResult, error)
}

// placeholderTotalTimeS gives the fixed flight-time estimate for the
// three missile kinds, returned regardless of geometry until a real
// ballistic model replaces DefaultCalculator.
var placeholderTotalTimeS = map[wcstypes.WeaponKind]float64{
	wcstypes.KindALM: 100,
	wcstypes.KindASM: 80,
	wcstypes.KindAAM: 60,
}

// DefaultCalculator is the placeholder trajectory model: a straight-line
// path launch -> waypoints -> target, with a fixed total time for
// missiles and a speed-derived estimate for mines.
type DefaultCalculator struct {
	// MineSpeedMps is the mine's transit speed, used to derive total time
	// as distance / speed.
	MineSpeedMps float64
}

func (c DefaultCalculator) Calculate(in TrajectoryInput) (TrajectoryResult, error) {
	pts := make([]geo.Point, 0, len(in.Waypoints)+2)
	pts = append(pts, in.LaunchPosition)
	pts = append(pts, in.Waypoints...)
	pts = append(pts, in.TargetPosition)

	if len(pts) > wcstypes.MaxTrajectoryPoints {
		pts = pts[:wcstypes.MaxTrajectoryPoints]
		pts[len(pts)-1] = in.TargetPosition
	}

	var totalTimeS float64
	if t, ok := placeholderTotalTimeS[in.Kind]; ok {
		totalTimeS = t
	} else {
		speed := c.MineSpeedMps
		if speed <= 0 {
			speed = 5.0
		}
		totalTimeS = geo.PolylineLength(pts) / speed
		if totalTimeS <= 0 {
			totalTimeS = 1
		}
	}

	var turning []geo.Point
	if in.Kind.IsMissile() && len(in.Waypoints) > 0 {
		turning = append(turning, in.Waypoints...)
		if len(turning) > wcstypes.MaxTurningPoints {
			turning = turning[:wcstypes.MaxTurningPoints]
		}
	}

	return TrajectoryResult{Trajectory: pts, TotalTimeS: totalTimeS, TurningPoints: turning}, nil
}
