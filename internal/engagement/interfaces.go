// internal/engagement/interfaces.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package engagement

import (
	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// MissileEngagementManager is the kind-specific contract the coordinator
// dispatches to for ALM/ASM/AAM tubes.
type MissileEngagementManager interface {
	Manager
	SetTargetPosition(p geo.Point) error
	SetSystemTarget(id uint32)
	UpdateTargetInfo(track wcstypes.TargetTrack)
	UpdateWaypoints(waypoints []geo.Point) error
	Waypoints() []geo.Point
	HasValidTarget() bool
	SystemTargetID() uint32
}

// MineEngagementManager is the kind-specific contract the coordinator
// dispatches to for M_MINE tubes.
type MineEngagementManager interface {
	Manager
	SetDropPlan(list, planNo int, plan wcstypes.MinePlan) error
	UpdateDropPlanWaypoints(waypoints []geo.Point) error
	DropPlan() wcstypes.MinePlan
	DropPlanListNo() int
	DropPlanNo() int
}

var (
	_ MissileEngagementManager = (*MissileManager)(nil)
	_ MineEngagementManager    = (*MineManager)(nil)
)
