// internal/engagement/base.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package engagement implements C3, the per-tube engagement manager: a
// polymorphic component (missile vs. mine variant) that owns target and
// waypoint state, recomputes the trajectory, and reports plan validity and
// the weapon's current estimated position.
package engagement

import (
	"sync"
	"time"

	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/log"
	"github.com/kjeon/wcs-core/internal/metrics"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// Manager is the base contract both variants implement.
type Manager interface {
	Initialize(tubeNo int, kind wcstypes.WeaponKind) error
	Reset()
	CalculatePlan() error
	GetResult() wcstypes.EngagementPlanResult
	IsPlanValid() bool
	UpdateOwnShip(nav geo.Nav)
	SetAxisCenter(p geo.Point)
	SetLaunched(launched bool)
	CurrentPosition(tSinceLaunch float64) geo.Point
	Tick()
}

// base holds the state and recompute machinery common to both variants.
// Embedders call recomputeLocked from their kind-specific setters and from
// their CalculatePlan.
type base struct {
	mu sync.RWMutex

	tubeNo int
	kind   wcstypes.WeaponKind

	launched       bool
	launchStart    time.Time
	axisCenter     geo.Point
	ownShip        geo.Nav
	waypoints      []geo.Point
	launchPosition geo.Point
	targetPosition geo.Point

	result wcstypes.EngagementPlanResult

	calc    Calculator
	metrics *metrics.Collector
	lg      *log.Logger
}

func newBase(calc Calculator, mc *metrics.Collector, lg *log.Logger) base {
	if lg == nil {
		lg = log.NewNop()
	}
	return base{calc: calc, metrics: mc, lg: lg}
}

func (b *base) initialize(tubeNo int, kind wcstypes.WeaponKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tubeNo = tubeNo
	b.kind = kind
	b.result = wcstypes.EngagementPlanResult{TubeNo: tubeNo, Kind: kind}
}

func (b *base) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.launched = false
	b.launchStart = time.Time{}
	b.waypoints = nil
	b.launchPosition = geo.Point{}
	b.targetPosition = geo.Point{}
	b.result = wcstypes.EngagementPlanResult{TubeNo: b.tubeNo, Kind: b.kind}
}

func (b *base) GetResult() wcstypes.EngagementPlanResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.result
}

func (b *base) IsPlanValid() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.result.Valid
}

func (b *base) UpdateOwnShip(nav geo.Nav) {
	b.mu.Lock()
	b.ownShip = nav
	b.mu.Unlock()
}

func (b *base) SetAxisCenter(p geo.Point) {
	b.mu.Lock()
	b.axisCenter = p
	b.mu.Unlock()
}

func (b *base) SetLaunched(launched bool) {
	b.mu.Lock()
	wasLaunched := b.launched
	b.launched = launched
	if launched && !wasLaunched {
		b.launchStart = time.Now()
		b.launchPosition = b.result.LaunchPosition
	}
	b.mu.Unlock()
}

func (b *base) CurrentPosition(tSinceLaunch float64) geo.Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return currentPositionLocked(b.result, tSinceLaunch)
}

func currentPositionLocked(result wcstypes.EngagementPlanResult, tSinceLaunch float64) geo.Point {
	if !result.Valid || len(result.Trajectory) == 0 {
		return geo.Point{}
	}
	if result.TotalTimeS <= 0 {
		return result.Trajectory[len(result.Trajectory)-1]
	}
	fraction := tSinceLaunch / result.TotalTimeS
	if fraction >= 1 {
		return result.Trajectory[len(result.Trajectory)-1]
	}
	if fraction < 0 {
		fraction = 0
	}
	totalLen := geo.PolylineLength(result.Trajectory)
	return geo.Interpolate(result.Trajectory, fraction*totalLen)
}

// Tick updates CurrentPosition from the wall-clock delta since launch,
// when launched; otherwise it is a no-op.
func (b *base) Tick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.launched {
		return
	}
	elapsed := time.Since(b.launchStart).Seconds()
	b.result.CurrentPosition = currentPositionLocked(b.result, elapsed)
}

// recomputeLocked runs the trajectory calculator against the current
// launch/target/waypoint/ownship state and stores the result. Callers must
// hold b.mu for writing. valid gates whether the recompute runs at all —
// variants pass false (e.g. missile with no target) to short-circuit to an
// invalid result without touching the calculator.
func (b *base) recomputeLocked(valid bool) error {
	if !valid {
		b.result.Valid = false
		return nil
	}

	start := time.Now()
	out, err := b.calc.Calculate(TrajectoryInput{
		LaunchPosition: b.launchPosition,
		TargetPosition: b.targetPosition,
		Waypoints:      b.waypoints,
		OwnShipNav:     b.ownShip,
		AxisCenter:     b.axisCenter,
		Kind:           b.kind,
	})
	if b.metrics != nil {
		b.metrics.PlanCalcDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		b.result.Valid = false
		if b.metrics != nil {
			b.metrics.PlanCalcFailures.Inc()
		}
		return err
	}

	nextIdx, timeToNext := nextWaypointInfo(out.Trajectory, out.TotalTimeS, b.waypoints)

	b.result = wcstypes.EngagementPlanResult{
		TubeNo:              b.tubeNo,
		Kind:                b.kind,
		Valid:               true,
		TotalTimeS:          out.TotalTimeS,
		TimeToTargetS:       out.TotalTimeS,
		NextWaypointIndex:   nextIdx,
		TimeToNextWaypointS: timeToNext,
		Trajectory:          out.Trajectory,
		TurningPoints:       out.TurningPoints,
		Waypoints:           append([]geo.Point{}, b.waypoints...),
		CurrentPosition:     b.launchPosition,
		LaunchPosition:      b.launchPosition,
		TargetPosition:      b.targetPosition,
	}
	return nil
}

// nextWaypointInfo finds the first waypoint index still ahead of the
// trajectory's start and estimates the time to reach it assuming constant
// speed across the whole trajectory.
func nextWaypointInfo(trajectory []geo.Point, totalTimeS float64, waypoints []geo.Point) (int, float64) {
	if len(waypoints) == 0 || len(trajectory) < 2 || totalTimeS <= 0 {
		return 0, 0
	}
	totalLen := geo.PolylineLength(trajectory)
	if totalLen <= 0 {
		return 0, 0
	}
	traveled := geo.DistanceMeters(trajectory[0], waypoints[0])
	fraction := traveled / totalLen
	if fraction > 1 {
		fraction = 1
	}
	return 0, fraction * totalTimeS
}
