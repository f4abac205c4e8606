// internal/engagement/mine.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package engagement

import (
	"fmt"

	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/log"
	"github.com/kjeon/wcs-core/internal/metrics"
	"github.com/kjeon/wcs-core/internal/wcserrors"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// MineManager is the variant for M_MINE: the "target" is a pre-planned
// drop position, resolved from the mine drop-plan store at assignment
// time, never a moving system track.
type MineManager struct {
	base

	dropPlanList int
	dropPlanNo   int
	plan         wcstypes.MinePlan
	hasPlan      bool
}

// NewMineManager builds a MineManager using calc for trajectory math and
// mc for plan-calculation metrics (mc may be nil in tests).
func NewMineManager(calc Calculator, mc *metrics.Collector, lg *log.Logger) *MineManager {
	return &MineManager{base: newBase(calc, mc, lg)}
}

func (m *MineManager) Initialize(tubeNo int, kind wcstypes.WeaponKind) error {
	if kind != wcstypes.KindMMine {
		return wcserrors.New(wcserrors.KindUnsupportedKind, fmt.Sprintf("%s is not the mine kind", kind))
	}
	m.initialize(tubeNo, kind)
	return nil
}

func (m *MineManager) Reset() {
	m.reset()
	m.mu.Lock()
	m.dropPlanList = 0
	m.dropPlanNo = 0
	m.plan = wcstypes.MinePlan{}
	m.hasPlan = false
	m.mu.Unlock()
}

// SetDropPlan records the resolved plan and recomputes. The coordinator
// looks the plan up in the drop-plan store by (list, planNo) and passes
// it in already resolved; managers consume snapshots, never store
// references.
func (m *MineManager) SetDropPlan(list, planNo int, plan wcstypes.MinePlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropPlanList = list
	m.dropPlanNo = planNo
	m.plan = plan
	m.hasPlan = true
	m.launchPosition = plan.LaunchPos
	m.targetPosition = plan.DropPos
	m.waypoints = append([]geo.Point{}, plan.Waypoints...)
	return m.recomputeLocked(true)
}

// UpdateDropPlanWaypoints replaces the waypoint list (capped at 8),
// mirrors it into the in-memory plan record, and recomputes. Persisting
// the change to the plan store is the coordinator's responsibility (it
// owns the store handle); this manager only holds the snapshot.
func (m *MineManager) UpdateDropPlanWaypoints(waypoints []geo.Point) error {
	if len(waypoints) > wcstypes.MaxWaypoints {
		return wcserrors.New(wcserrors.KindTooManyWaypoints, fmt.Sprintf("%d waypoints exceeds max %d", len(waypoints), wcstypes.MaxWaypoints))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waypoints = append([]geo.Point{}, waypoints...)
	m.plan.Waypoints = append([]geo.Point{}, waypoints...)
	return m.recomputeLocked(m.hasPlan)
}

// DropPlan returns the current in-memory plan record, for the coordinator
// to persist back to the store after a waypoint edit.
func (m *MineManager) DropPlan() wcstypes.MinePlan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plan
}

// DropPlanListNo and DropPlanNo identify the resolved plan.
func (m *MineManager) DropPlanListNo() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropPlanList
}

func (m *MineManager) DropPlanNo() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropPlanNo
}

// CalculatePlan is permitted regardless of target: the drop position is
// itself the "target", so the only failure mode is no plan having been
// resolved yet.
func (m *MineManager) CalculatePlan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasPlan {
		m.result.Valid = false
		return wcserrors.New(wcserrors.KindNoTarget, "no drop plan resolved")
	}
	return m.recomputeLocked(true)
}
