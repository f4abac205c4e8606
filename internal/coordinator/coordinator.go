// internal/coordinator/coordinator.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package coordinator implements C5, the launch-tube coordinator: it owns
// the tube array, handles the assignment lifecycle, fans environment
// updates to all assigned tubes, routes control commands, and aggregates
// per-tube status.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/kjeon/wcs-core/internal/cancel"
	"github.com/kjeon/wcs-core/internal/engagement"
	"github.com/kjeon/wcs-core/internal/events"
	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/log"
	"github.com/kjeon/wcs-core/internal/metrics"
	"github.com/kjeon/wcs-core/internal/mineplan"
	"github.com/kjeon/wcs-core/internal/targetreg"
	"github.com/kjeon/wcs-core/internal/wcserrors"
	"github.com/kjeon/wcs-core/internal/wcstypes"
	"github.com/kjeon/wcs-core/internal/weapon"
)

// AssignRequest is the inbound shape of an AssignWeapon command.
type AssignRequest struct {
	TubeNo               int
	Kind                 wcstypes.WeaponKind
	SystemTargetID       uint32
	DirectTargetPosition geo.Point
	HasDirectTarget      bool
	DropPlanList         int
	DropPlanNo           int
}

// planFingerprint is the change-detection state for one tube's engagement
// plan: the outward plan callback fires only when valid toggles, the total
// time changes, or the trajectory length changes.
type planFingerprint struct {
	seen       bool
	valid      bool
	totalTimeS float64
	trajLen    int
}

// tubeSlot is one occupied tube: the weapon/manager pair plus the
// immutable assignment info recorded when the pair was bound.
type tubeSlot struct {
	weapon  *weapon.Weapon
	manager engagement.Manager
	info    wcstypes.AssignmentInfo

	planMu   sync.Mutex
	lastPlan planFingerprint
}

// Coordinator owns tubes[1..N]. Lock order is tubes -> tube.state ->
// tube.observers; the environment cache has its own lock and is never held
// together with a weapon's state lock.
type Coordinator struct {
	maxTubes int

	mu          sync.RWMutex
	tubes       []*tubeSlot // index tubeNo-1; nil = empty
	initialized bool

	envMu      sync.RWMutex
	ownShip    geo.Nav
	axisCenter geo.Point
	tracks     map[uint32]wcstypes.TargetTrack

	factory *weapon.Factory
	plans   *mineplan.Store
	targets *targetreg.Registry
	stream  *events.Stream
	metrics *metrics.Collector
	lg      *log.Logger
}

// New builds a coordinator over maxTubes tubes. plans may be nil when no
// mine kinds will be assigned (tests); stream may be nil to disable
// outward event posting.
func New(maxTubes int, factory *weapon.Factory, plans *mineplan.Store, targets *targetreg.Registry,
	stream *events.Stream, mc *metrics.Collector, lg *log.Logger) *Coordinator {
	if lg == nil {
		lg = log.NewNop()
	}
	return &Coordinator{
		maxTubes: maxTubes,
		factory:  factory,
		plans:    plans,
		targets:  targets,
		stream:   stream,
		metrics:  mc,
		lg:       lg,
		tracks:   make(map[uint32]wcstypes.TargetTrack),
	}
}

// Initialize constructs the tube array. Idempotent.
func (c *Coordinator) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	c.tubes = make([]*tubeSlot, c.maxTubes)
	c.initialized = true
	c.lg.Info("coordinator initialized", "max_tubes", c.maxTubes)
	return nil
}

// Shutdown clears every assignment, cancelling in-flight operations.
// Cancelled/Aborted outcomes are expected here and absorbed.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, slot := range c.tubes {
		if slot == nil {
			continue
		}
		slot.weapon.Reset()
		slot.manager.Reset()
		c.tubes[i] = nil
	}
	c.lg.Info("coordinator shut down")
	return nil
}

func (c *Coordinator) validTubeNo(tubeNo int) error {
	if tubeNo < 1 || tubeNo > c.maxTubes {
		return wcserrors.New(wcserrors.KindInvalidTube,
			fmt.Sprintf("tube %d out of range [1, %d]", tubeNo, c.maxTubes))
	}
	return nil
}

// slotFor returns the occupied slot for tubeNo under a read lock, or the
// appropriate InvalidTube/NotAssigned error.
func (c *Coordinator) slotFor(tubeNo int) (*tubeSlot, error) {
	if err := c.validTubeNo(tubeNo); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot := c.tubes[tubeNo-1]
	if slot == nil {
		return nil, wcserrors.New(wcserrors.KindNotAssigned, fmt.Sprintf("tube %d has no weapon", tubeNo))
	}
	return slot, nil
}

// tubeObserver adapts one tube's weapon notifications onto the event
// stream and the paired engagement manager. It holds the manager directly,
// captured at assign time, so the callback never re-enters the
// coordinator's tubes lock (lock order: tubes -> state -> observers).
type tubeObserver struct {
	c       *Coordinator
	manager engagement.Manager
}

func (o *tubeObserver) OnStateChanged(tubeNo int, from, to wcstypes.ControlState, at time.Time) {
	if o.c.stream != nil {
		o.c.stream.Post(events.Event{
			Type:      events.StateChangedEvent,
			At:        at,
			TubeNo:    tubeNo,
			FromState: from.String(),
			ToState:   to.String(),
		})
	}
}

func (o *tubeObserver) OnLaunchStatusChanged(tubeNo int, launched bool, at time.Time) {
	o.manager.SetLaunched(launched)
	if o.c.stream != nil {
		o.c.stream.Post(events.Event{
			Type:     events.LaunchedEvent,
			At:       at,
			TubeNo:   tubeNo,
			Launched: launched,
		})
	}
}

// Assign binds a freshly built (weapon, manager) pair to req.TubeNo. The
// operation is atomic: every sub-step runs against local values and the
// tube slot is only committed once all of them have succeeded, so any
// failure leaves the tube unassigned.
func (c *Coordinator) Assign(req AssignRequest) error {
	if err := c.validTubeNo(req.TubeNo); err != nil {
		return err
	}
	if err := c.validateTargeting(req); err != nil {
		return err
	}

	// Resolve the drop plan before taking any lock; managers consume the
	// snapshot, never a store reference.
	var plan wcstypes.MinePlan
	if req.Kind == wcstypes.KindMMine {
		if c.plans == nil {
			return wcserrors.New(wcserrors.KindInvalidPlan, "no mine plan store configured")
		}
		var err error
		plan, err = c.plans.GetPlan(req.DropPlanList, req.DropPlanNo)
		if err != nil {
			return err
		}
	}

	w, mgr, err := c.factory.Build(req.Kind)
	if err != nil {
		return err
	}
	if err := mgr.Initialize(req.TubeNo, req.Kind); err != nil {
		return err
	}
	w.Initialize(req.TubeNo)
	w.Subscribe(&tubeObserver{c: c, manager: mgr})

	// Push the current environment down before kind-specific setup so the
	// first recompute already sees own-ship and the axis center.
	c.envMu.RLock()
	nav := c.ownShip
	axis := c.axisCenter
	track, haveTrack := c.tracks[req.SystemTargetID]
	c.envMu.RUnlock()
	mgr.UpdateOwnShip(nav)
	mgr.SetAxisCenter(axis)

	switch {
	case req.Kind.IsMissile():
		mm := mgr.(engagement.MissileEngagementManager)
		if req.HasDirectTarget {
			if err := mm.SetTargetPosition(req.DirectTargetPosition); err != nil {
				return err
			}
		} else {
			mm.SetSystemTarget(req.SystemTargetID)
			if haveTrack {
				mm.UpdateTargetInfo(track)
			}
		}
	case req.Kind == wcstypes.KindMMine:
		if err := mgr.(engagement.MineEngagementManager).SetDropPlan(req.DropPlanList, req.DropPlanNo, plan); err != nil {
			return err
		}
	}

	info := wcstypes.AssignmentInfo{
		TubeNo:               req.TubeNo,
		WeaponKind:           req.Kind,
		SystemTargetID:       req.SystemTargetID,
		DirectTargetPosition: req.DirectTargetPosition,
		HasDirectTarget:      req.HasDirectTarget,
		DropPlanList:         req.DropPlanList,
		DropPlanNo:           req.DropPlanNo,
	}

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return wcserrors.New(wcserrors.KindInvalidTube, "coordinator not initialized")
	}
	if c.tubes[req.TubeNo-1] != nil {
		c.mu.Unlock()
		return wcserrors.New(wcserrors.KindAlreadyAssigned, fmt.Sprintf("tube %d already occupied", req.TubeNo))
	}
	c.tubes[req.TubeNo-1] = &tubeSlot{weapon: w, manager: mgr, info: info}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.TubesOccupied.Inc()
	}
	c.lg.Info("weapon assigned", "tube_no", req.TubeNo, "kind", req.Kind.String())
	c.postAssignment(req.TubeNo, true)
	return nil
}

// validateTargeting enforces the assignment targeting invariant: for
// missile kinds exactly one of system-target-id or direct position, for
// mines both plan numbers nonzero (store resolution happens in Assign).
func (c *Coordinator) validateTargeting(req AssignRequest) error {
	switch {
	case req.Kind.IsMissile():
		hasID := req.SystemTargetID != 0
		if hasID == req.HasDirectTarget {
			return wcserrors.New(wcserrors.KindNoTarget,
				"missile assignment requires exactly one of system_target_id or direct_target_position")
		}
		return nil
	case req.Kind == wcstypes.KindMMine:
		if req.DropPlanList == 0 || req.DropPlanNo == 0 {
			return wcserrors.New(wcserrors.KindInvalidPlan, "mine assignment requires nonzero plan list and plan number")
		}
		return nil
	default:
		return wcserrors.New(wcserrors.KindUnsupportedKind, fmt.Sprintf("kind %s cannot be assigned", req.Kind))
	}
}

// Unassign clears tubeNo, resetting the weapon (which cancels any in-flight
// token) and dropping both halves together.
func (c *Coordinator) Unassign(tubeNo int) error {
	if err := c.validTubeNo(tubeNo); err != nil {
		return err
	}

	c.mu.Lock()
	slot := c.tubes[tubeNo-1]
	if slot == nil {
		c.mu.Unlock()
		return wcserrors.New(wcserrors.KindNotAssigned, fmt.Sprintf("tube %d has no weapon", tubeNo))
	}
	c.tubes[tubeNo-1] = nil
	c.mu.Unlock()

	slot.weapon.Reset()
	slot.manager.Reset()

	if c.metrics != nil {
		c.metrics.TubesOccupied.Dec()
	}
	c.lg.Info("weapon unassigned", "tube_no", tubeNo)
	c.postAssignment(tubeNo, false)
	return nil
}

func (c *Coordinator) postAssignment(tubeNo int, assigned bool) {
	if c.stream != nil {
		c.stream.Post(events.Event{
			Type:     events.AssignmentChangedEvent,
			At:       time.Now(),
			TubeNo:   tubeNo,
			Assigned: assigned,
		})
	}
}

// externalTarget reports whether s is a control state an outside caller
// may request; RTL, POC, and POST_LAUNCH are internal-only states.
func externalTarget(s wcstypes.ControlState) bool {
	switch s {
	case wcstypes.StateOff, wcstypes.StateOn, wcstypes.StateLaunch, wcstypes.StateAbort:
		return true
	}
	return false
}

// Control forwards a state-change request to tubeNo's weapon. The call may
// block for the duration of a POC wait or launch sequence, so it must run
// on a command worker, never the tick thread. token may be nil.
func (c *Coordinator) Control(tubeNo int, target wcstypes.ControlState, token *cancel.Token) error {
	if !externalTarget(target) {
		return wcserrors.New(wcserrors.KindInvalidTransition,
			fmt.Sprintf("%s is not an externally commandable state", target))
	}
	slot, err := c.slotFor(tubeNo)
	if err != nil {
		return err
	}
	err = slot.weapon.RequestStateChange(target, token)
	if c.metrics != nil {
		c.metrics.CommandsTotal.WithLabelValues("ControlWeapon", wcserrors.KindOf(err).String()).Inc()
	}
	return err
}

// EmergencyStop drives every assigned tube to a terminal non-launch state:
// ABORT for tubes currently in LAUNCH, OFF for everything else. A running
// launch is preempted because ABORT cancels that sequence's own token; the
// pre-cancelled token passed along with the ABORT is not consulted by the
// weapon's ABORT path. It returns once every tube
// has been issued its terminal request; launch sequences already aborting
// finish on their own. Cancelled/Aborted outcomes are expected and
// absorbed; anything else is accumulated into a PartialFailure.
func (c *Coordinator) EmergencyStop() error {
	c.mu.RLock()
	slots := make([]*tubeSlot, len(c.tubes))
	copy(slots, c.tubes)
	c.mu.RUnlock()

	var failures []wcserrors.TubeError
	for _, slot := range slots {
		if slot == nil {
			continue
		}
		w := slot.weapon
		tubeNo := slot.info.TubeNo
		switch w.CurrentState() {
		case wcstypes.StateLaunch:
			tok := cancel.New()
			tok.Cancel()
			if err := w.RequestStateChange(wcstypes.StateAbort, tok); err != nil && !wcserrors.IsExpectedDuringShutdown(err) {
				failures = append(failures, wcserrors.TubeError{TubeNo: tubeNo, Kind: wcserrors.KindOf(err), Message: err.Error()})
			}
		case wcstypes.StateOff:
			// already terminal
		default:
			w.ForceOff()
		}
	}

	c.lg.Info("emergency stop issued", "failed_tubes", len(failures))
	if len(failures) > 0 {
		return &wcserrors.PartialFailure{PerTube: failures}
	}
	return nil
}

// RequestAllWeaponStateChange issues the same state-change request to
// every assigned tube, accumulating per-tube errors into a PartialFailure.
func (c *Coordinator) RequestAllWeaponStateChange(target wcstypes.ControlState) error {
	if !externalTarget(target) {
		return wcserrors.New(wcserrors.KindInvalidTransition,
			fmt.Sprintf("%s is not an externally commandable state", target))
	}

	c.mu.RLock()
	slots := make([]*tubeSlot, len(c.tubes))
	copy(slots, c.tubes)
	c.mu.RUnlock()

	var failures []wcserrors.TubeError
	for _, slot := range slots {
		if slot == nil {
			continue
		}
		if err := slot.weapon.RequestStateChange(target, nil); err != nil {
			failures = append(failures, wcserrors.TubeError{
				TubeNo: slot.info.TubeNo, Kind: wcserrors.KindOf(err), Message: err.Error(),
			})
		}
	}
	if len(failures) > 0 {
		return &wcserrors.PartialFailure{PerTube: failures}
	}
	return nil
}

// UpdateWaypoints dispatches a waypoint edit to tubeNo's manager based on
// its assigned kind. For mines the edit is mirrored into the plan store,
// since the manager only holds a snapshot.
func (c *Coordinator) UpdateWaypoints(tubeNo int, waypoints []geo.Point) error {
	slot, err := c.slotFor(tubeNo)
	if err != nil {
		return err
	}

	switch m := slot.manager.(type) {
	case engagement.MissileEngagementManager:
		return m.UpdateWaypoints(waypoints)
	case engagement.MineEngagementManager:
		if err := m.UpdateDropPlanWaypoints(waypoints); err != nil {
			return err
		}
		if c.plans != nil {
			if err := c.plans.UpdatePlan(m.DropPlanListNo(), m.DropPlan()); err != nil {
				c.lg.Warn("drop plan persist after waypoint edit failed",
					"tube_no", tubeNo, "list_no", m.DropPlanListNo(), "err", err)
				return err
			}
		}
		return nil
	default:
		return wcserrors.New(wcserrors.KindUnsupportedKind,
			fmt.Sprintf("tube %d manager accepts no waypoints", tubeNo))
	}
}

// UpdateOwnShip caches nav and fans it out to every assigned tube.
func (c *Coordinator) UpdateOwnShip(nav geo.Nav) {
	c.envMu.Lock()
	c.ownShip = nav
	c.envMu.Unlock()

	for _, slot := range c.assignedSlots() {
		slot.manager.UpdateOwnShip(nav)
	}
}

// UpdateTarget records the track in the registry and the local cache, then
// fans it out to missile managers whose system target id matches.
func (c *Coordinator) UpdateTarget(track wcstypes.TargetTrack) {
	if c.targets != nil {
		c.targets.Update(track)
	}

	c.envMu.Lock()
	c.tracks[track.SystemTargetID] = track
	c.envMu.Unlock()

	for _, slot := range c.assignedSlots() {
		if mm, ok := slot.manager.(engagement.MissileEngagementManager); ok {
			if mm.SystemTargetID() == track.SystemTargetID {
				mm.UpdateTargetInfo(track)
			}
		}
	}
}

// SetAxisCenter caches p and fans it out to every assigned tube.
func (c *Coordinator) SetAxisCenter(p geo.Point) {
	c.envMu.Lock()
	c.axisCenter = p
	c.envMu.Unlock()

	for _, slot := range c.assignedSlots() {
		slot.manager.SetAxisCenter(p)
	}
}

func (c *Coordinator) assignedSlots() []*tubeSlot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slots := make([]*tubeSlot, 0, len(c.tubes))
	for _, slot := range c.tubes {
		if slot != nil {
			slots = append(slots, slot)
		}
	}
	return slots
}

// CalculateAllEngagementPlans recomputes every assigned tube's plan,
// pushes the resulting validity into the weapon's fire-solution interlock,
// and fires the outward plan callback on material change.
func (c *Coordinator) CalculateAllEngagementPlans() {
	for _, slot := range c.assignedSlots() {
		c.calculateTubePlan(slot)
	}
}

func (c *Coordinator) calculateTubePlan(slot *tubeSlot) {
	err := slot.manager.CalculatePlan()
	if err != nil && wcserrors.KindOf(err) != wcserrors.KindNoTarget {
		c.lg.Warn("engagement plan calculation failed", "tube_no", slot.info.TubeNo, "err", err)
	}

	valid := slot.manager.IsPlanValid()
	slot.weapon.SetFireSolutionReady(valid)

	result := slot.manager.GetResult()
	fp := planFingerprint{
		seen:       true,
		valid:      result.Valid,
		totalTimeS: result.TotalTimeS,
		trajLen:    len(result.Trajectory),
	}

	slot.planMu.Lock()
	changed := slot.lastPlan != fp
	slot.lastPlan = fp
	slot.planMu.Unlock()

	if changed && c.stream != nil {
		c.stream.Post(events.Event{
			Type:           events.PlanUpdatedEvent,
			At:             time.Now(),
			TubeNo:         slot.info.TubeNo,
			PlanValid:      result.Valid,
			PlanTotalTimeS: result.TotalTimeS,
			TrajectoryLen:  len(result.Trajectory),
		})
	}
}

// Tick drives weapon.Tick and manager.Tick for each assigned tube, and
// triggers replanning on tubes that have not yet launched,
// keeping the ON<->RTL interlock within one tick of the plan's validity.
func (c *Coordinator) Tick() {
	for _, slot := range c.assignedSlots() {
		if !slot.weapon.Launched() {
			c.calculateTubePlan(slot)
		}
		slot.weapon.Tick()
		slot.manager.Tick()
	}
}

// GetStatus produces tubeNo's on-demand status snapshot. Unassigned tubes
// report OFF with no weapon.
func (c *Coordinator) GetStatus(tubeNo int) (wcstypes.LaunchTubeStatus, error) {
	if err := c.validTubeNo(tubeNo); err != nil {
		return wcstypes.LaunchTubeStatus{}, err
	}
	c.mu.RLock()
	slot := c.tubes[tubeNo-1]
	c.mu.RUnlock()

	if slot == nil {
		return wcstypes.LaunchTubeStatus{TubeNo: tubeNo, ControlState: wcstypes.StateOff}, nil
	}
	return wcstypes.LaunchTubeStatus{
		TubeNo:              tubeNo,
		HasWeapon:           true,
		WeaponKind:          slot.info.WeaponKind,
		ControlState:        slot.weapon.CurrentState(),
		Launched:            slot.weapon.Launched(),
		EngagementPlanValid: slot.manager.IsPlanValid(),
	}, nil
}

// Snapshot returns the status of every tube, assigned or not, in order.
func (c *Coordinator) Snapshot() []wcstypes.LaunchTubeStatus {
	out := make([]wcstypes.LaunchTubeStatus, 0, c.maxTubes)
	for n := 1; n <= c.maxTubes; n++ {
		st, err := c.GetStatus(n)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}

// EngagementPlan returns tubeNo's latest engagement plan result.
func (c *Coordinator) EngagementPlan(tubeNo int) (wcstypes.EngagementPlanResult, error) {
	slot, err := c.slotFor(tubeNo)
	if err != nil {
		return wcstypes.EngagementPlanResult{}, err
	}
	return slot.manager.GetResult(), nil
}

// AssignmentInfo returns the immutable assignment record for tubeNo.
func (c *Coordinator) AssignmentInfo(tubeNo int) (wcstypes.AssignmentInfo, error) {
	slot, err := c.slotFor(tubeNo)
	if err != nil {
		return wcstypes.AssignmentInfo{}, err
	}
	return slot.info, nil
}

// HandleEditedPlanList upserts an externally edited plan list into the
// store. The inbound message is already well-typed, so there is nothing to
// extract beyond validating each plan.
func (c *Coordinator) HandleEditedPlanList(listNo int, plans []wcstypes.MinePlan) error {
	if c.plans == nil {
		return wcserrors.New(wcserrors.KindInvalidPlan, "no mine plan store configured")
	}
	for _, p := range plans {
		if err := mineplan.ValidatePlan(p); err != nil {
			return err
		}
	}
	for _, p := range plans {
		if err := c.plans.UpdatePlan(listNo, p); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStateGauges refreshes the per-state tube gauges from a fresh
// snapshot; driven on the status-report interval.
func (c *Coordinator) UpdateStateGauges() {
	if c.metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, st := range c.Snapshot() {
		if st.HasWeapon {
			counts[st.ControlState.String()]++
		}
	}
	for _, s := range []wcstypes.ControlState{
		wcstypes.StateOff, wcstypes.StatePOC, wcstypes.StateOn, wcstypes.StateRTL,
		wcstypes.StateLaunch, wcstypes.StateAbort, wcstypes.StatePostLaunch,
	} {
		c.metrics.TubesByState.WithLabelValues(s.String()).Set(float64(counts[s.String()]))
	}
}
