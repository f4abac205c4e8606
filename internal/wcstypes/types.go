// internal/wcstypes/types.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package wcstypes holds the data model shared across the weapon control
// core: weapon kinds, control states, assignment info, and the snapshot
// types the coordinator and engagement managers hand back to callers.
package wcstypes

import (
	"time"

	"github.com/kjeon/wcs-core/internal/geo"
)

// WeaponKind is the closed set of weapon families the core supports.
type WeaponKind int

const (
	KindNA WeaponKind = iota
	KindALM
	KindASM
	KindAAM
	KindMMine
	// KindWGT is a no-op placeholder kind; the factory never builds it.
	KindWGT
)

func (k WeaponKind) String() string {
	switch k {
	case KindALM:
		return "ALM"
	case KindASM:
		return "ASM"
	case KindAAM:
		return "AAM"
	case KindMMine:
		return "M_MINE"
	case KindWGT:
		return "WGT"
	default:
		return "NA"
	}
}

// IsMissile reports whether k is one of the three guided-missile kinds
// sharing the system-target/direct-position targeting model.
func (k WeaponKind) IsMissile() bool {
	return k == KindALM || k == KindASM || k == KindAAM
}

// ControlState is the closed set of weapon control states, including the
// internal states (POC, RTL, POST_LAUNCH) that are never accepted as an
// external ControlWeapon target.
type ControlState int

const (
	StateOff ControlState = iota
	StatePOC
	StateOn
	StateRTL
	StateLaunch
	StateAbort
	StatePostLaunch
)

func (s ControlState) String() string {
	switch s {
	case StatePOC:
		return "POC"
	case StateOn:
		return "ON"
	case StateRTL:
		return "RTL"
	case StateLaunch:
		return "LAUNCH"
	case StateAbort:
		return "ABORT"
	case StatePostLaunch:
		return "POST_LAUNCH"
	default:
		return "OFF"
	}
}

// LaunchStep is one named, timed phase of the launch sequence.
type LaunchStep struct {
	Description string
	DurationS   float64
}

// DefaultLaunchSteps is the standard three-step, 1.0s-per-step sequence;
// concrete weapon kinds may override it.
func DefaultLaunchSteps() []LaunchStep {
	return []LaunchStep{
		{Description: "Power On Check", DurationS: 1.0},
		{Description: "System Verification", DurationS: 1.0},
		{Description: "Launch Sequence", DurationS: 1.0},
	}
}

// AssignmentInfo is immutable for the duration of one tube assignment.
type AssignmentInfo struct {
	TubeNo               int
	WeaponKind           WeaponKind
	SystemTargetID       uint32
	DirectTargetPosition geo.Point
	HasDirectTarget      bool
	DropPlanList         int
	DropPlanNo           int
}

// LaunchTubeStatus is a derived, on-demand snapshot of one tube.
type LaunchTubeStatus struct {
	TubeNo              int
	HasWeapon           bool
	WeaponKind          WeaponKind
	ControlState        ControlState
	Launched            bool
	EngagementPlanValid bool
}

// EngagementPlanResult is the output of one engagement-manager recompute.
type EngagementPlanResult struct {
	TubeNo              int
	Kind                WeaponKind
	Valid               bool
	TotalTimeS          float64
	TimeToTargetS       float64
	NextWaypointIndex   int
	TimeToNextWaypointS float64
	Trajectory          []geo.Point // start = launch, end = target/drop, len <= 128
	TurningPoints       []geo.Point // missile only, len <= 16
	Waypoints           []geo.Point // len <= 8
	CurrentPosition     geo.Point
	LaunchPosition      geo.Point
	TargetPosition      geo.Point
}

// Fixed size bounds on waypoint, trajectory, and turning-point lists.
const (
	MaxWaypoints        = 8
	MaxTrajectoryPoints = 128
	MaxTurningPoints    = 16
)

// TargetTrack is one system target's latest reported kinematics.
type TargetTrack struct {
	SystemTargetID uint32
	Position       geo.Point
	HeadingD       float64
	SpeedMps       float64
	LastUpdateAt   time.Time
}

// MinePlan is one pre-planned mine mission.
type MinePlan struct {
	PlanNo    int         `json:"plan_no"`
	LaunchPos geo.Point   `json:"launch_pos"`
	DropPos   geo.Point   `json:"drop_pos"`
	Waypoints []geo.Point `json:"waypoints"`
}
