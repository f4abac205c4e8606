// internal/engagement/missile.go
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

// MissileManager is the variant for ALM/ASM/AAM: targeting is either a
// system-track id or a direct geodetic position, never both at once.
type MissileManager struct {
	base

	systemTargetID  uint32
	hasTrack        bool // a track has been received for systemTargetID
	hasDirectTarget bool
}

// NewMissileManager builds a MissileManager using calc for trajectory math
// and mc for plan-calculation metrics (mc may be nil in tests).
func NewMissileManager(calc Calculator, mc *metrics.Collector, lg *log.Logger) *MissileManager {
	return &MissileManager{base: newBase(calc, mc, lg)}
}

func (m *MissileManager) Initialize(tubeNo int, kind wcstypes.WeaponKind) error {
	if !kind.IsMissile() {
		return wcserrors.New(wcserrors.KindUnsupportedKind, fmt.Sprintf("%s is not a missile kind", kind))
	}
	m.initialize(tubeNo, kind)
	return nil
}

func (m *MissileManager) Reset() {
	m.reset()
	m.mu.Lock()
	m.systemTargetID = 0
	m.hasTrack = false
	m.hasDirectTarget = false
	m.mu.Unlock()
}

// hasValidTargetLocked: valid iff a
// direct position was set, or a system target id was set and a matching
// track has since arrived. Caller must hold m.mu.
func (m *MissileManager) hasValidTargetLocked() bool {
	return m.hasDirectTarget || (m.systemTargetID != 0 && m.hasTrack)
}

// HasValidTarget reports the same invariant for external callers.
func (m *MissileManager) HasValidTarget() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasValidTargetLocked()
}

// SetTargetPosition sets a direct geodetic target, clearing any prior
// system-target id, and recomputes the plan synchronously.
func (m *MissileManager) SetTargetPosition(p geo.Point) error {
	m.mu.Lock()
	m.targetPosition = p
	m.systemTargetID = 0
	m.hasTrack = false
	m.hasDirectTarget = true
	err := m.recomputeLocked(true)
	m.mu.Unlock()
	return err
}

// SetSystemTarget records id as the target to track; the plan is invalid
// until a matching track arrives via UpdateTargetInfo.
func (m *MissileManager) SetSystemTarget(id uint32) {
	m.mu.Lock()
	m.systemTargetID = id
	m.hasTrack = false
	m.hasDirectTarget = false
	m.recomputeLocked(false)
	m.mu.Unlock()
}

// SystemTargetID returns the currently tracked system target id, or 0 if
// targeting is direct-position.
func (m *MissileManager) SystemTargetID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.systemTargetID
}

// UpdateTargetInfo is fanned in by the coordinator for every track update;
// it only takes effect if track.SystemTargetID matches what SetSystemTarget
// recorded.
func (m *MissileManager) UpdateTargetInfo(track wcstypes.TargetTrack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.systemTargetID == 0 || track.SystemTargetID != m.systemTargetID {
		return
	}
	m.targetPosition = track.Position
	m.hasTrack = true
	m.recomputeLocked(m.hasValidTargetLocked())
}

// UpdateWaypoints replaces the waypoint list (capped at 8) and recomputes.
func (m *MissileManager) UpdateWaypoints(waypoints []geo.Point) error {
	if len(waypoints) > wcstypes.MaxWaypoints {
		return wcserrors.New(wcserrors.KindTooManyWaypoints, fmt.Sprintf("%d waypoints exceeds max %d", len(waypoints), wcstypes.MaxWaypoints))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waypoints = append([]geo.Point{}, waypoints...)
	return m.recomputeLocked(m.hasValidTargetLocked())
}

// Waypoints returns a copy of the current waypoint list.
func (m *MissileManager) Waypoints() []geo.Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]geo.Point{}, m.waypoints...)
}

// CalculatePlan requires a valid target; otherwise it reports NoTarget
// and leaves the result invalid.
func (m *MissileManager) CalculatePlan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasValidTargetLocked() {
		m.result.Valid = false
		return wcserrors.New(wcserrors.KindNoTarget, "no valid target set")
	}
	// a missile launches from wherever the platform currently is, so the
	// launch position is the own-ship position at calculation time.
	m.launchPosition = m.ownShip.Position
	return m.recomputeLocked(true)
}
