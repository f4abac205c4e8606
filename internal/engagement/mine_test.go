// internal/engagement/mine_test.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package engagement

import (
	"testing"

	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/wcserrors"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

func testDropPlan() wcstypes.MinePlan {
	return wcstypes.MinePlan{
		PlanNo:    7,
		LaunchPos: geo.Point{Lat: 35, Lon: 129},
		DropPos:   geo.Point{Lat: 35.1, Lon: 129.1, Depth: 40},
		Waypoints: []geo.Point{{Lat: 35.05, Lon: 129.05}},
	}
}

func newTestMine(t *testing.T) *MineManager {
	t.Helper()
	m := NewMineManager(DefaultCalculator{MineSpeedMps: 5}, nil, nil)
	if err := m.Initialize(4, wcstypes.KindMMine); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return m
}

func TestMineRejectsMissileKind(t *testing.T) {
	m := NewMineManager(DefaultCalculator{}, nil, nil)
	err := m.Initialize(1, wcstypes.KindALM)
	if wcserrors.KindOf(err) != wcserrors.KindUnsupportedKind {
		t.Errorf("Initialize with missile kind gave %v", err)
	}
}

func TestCalculatePlanWithoutDropPlan(t *testing.T) {
	m := newTestMine(t)
	if err := m.CalculatePlan(); wcserrors.KindOf(err) != wcserrors.KindNoTarget {
		t.Errorf("CalculatePlan without plan gave %v", err)
	}
}

func TestDropPlanTrajectory(t *testing.T) {
	m := newTestMine(t)
	plan := testDropPlan()

	if err := m.SetDropPlan(3, 7, plan); err != nil {
		t.Fatalf("SetDropPlan: %v", err)
	}
	if m.DropPlanListNo() != 3 || m.DropPlanNo() != 7 {
		t.Errorf("plan identity (%d, %d)", m.DropPlanListNo(), m.DropPlanNo())
	}

	if err := m.CalculatePlan(); err != nil {
		t.Fatalf("CalculatePlan: %v", err)
	}
	r := m.GetResult()
	if !r.Valid {
		t.Fatalf("plan invalid after SetDropPlan")
	}
	if r.TotalTimeS <= 0 {
		t.Errorf("total time %f, expected > 0", r.TotalTimeS)
	}
	if r.Trajectory[0] != plan.LaunchPos {
		t.Errorf("trajectory start %+v, expected launch %+v", r.Trajectory[0], plan.LaunchPos)
	}
	if last := r.Trajectory[len(r.Trajectory)-1]; last != plan.DropPos {
		t.Errorf("trajectory end %+v, expected drop %+v", last, plan.DropPos)
	}
}

func TestDropPlanWaypointEditMirrored(t *testing.T) {
	m := newTestMine(t)
	if err := m.SetDropPlan(3, 7, testDropPlan()); err != nil {
		t.Fatal(err)
	}

	edited := []geo.Point{{Lat: 35.02, Lon: 129.02}, {Lat: 35.07, Lon: 129.07}}
	if err := m.UpdateDropPlanWaypoints(edited); err != nil {
		t.Fatalf("UpdateDropPlanWaypoints: %v", err)
	}

	got := m.DropPlan()
	if len(got.Waypoints) != 2 || got.Waypoints[0] != edited[0] || got.Waypoints[1] != edited[1] {
		t.Errorf("edit not mirrored into plan record: %+v", got.Waypoints)
	}

	if err := m.UpdateDropPlanWaypoints(make([]geo.Point, 9)); wcserrors.KindOf(err) != wcserrors.KindTooManyWaypoints {
		t.Errorf("9 waypoints gave %v", err)
	}
	if got := m.DropPlan(); len(got.Waypoints) != 2 {
		t.Errorf("rejected edit changed the plan record: %+v", got.Waypoints)
	}
}
