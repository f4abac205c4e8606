// internal/weapon/weapon.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package weapon implements C4: the per-tube weapon control state
// machine, including its long-running, cancellable launch sequence.
package weapon

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kjeon/wcs-core/internal/cancel"
	"github.com/kjeon/wcs-core/internal/log"
	"github.com/kjeon/wcs-core/internal/metrics"
	"github.com/kjeon/wcs-core/internal/wcserrors"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// Observer receives weapon lifecycle notifications in commit order. It is
// invoked outside the state lock, under the weapon's separate observer
// lock, to avoid re-entrant deadlock.
type Observer interface {
	OnStateChanged(tubeNo int, from, to wcstypes.ControlState, at time.Time)
	OnLaunchStatusChanged(tubeNo int, launched bool, at time.Time)
}

// defaultTransitions is the closed transition table. ABORT is handled
// separately (accepted from any state) and is not listed here.
var defaultTransitions = map[wcstypes.ControlState][]wcstypes.ControlState{
	wcstypes.StateOff:       {wcstypes.StateOn},
	wcstypes.StateOn:        {wcstypes.StateOff},
	wcstypes.StateRTL:       {wcstypes.StateLaunch, wcstypes.StateOff},
	wcstypes.StateLaunch:    {wcstypes.StateAbort},
	wcstypes.StateAbort:     {wcstypes.StateOff},
	wcstypes.StatePostLaunch: {wcstypes.StateOff},
}

func isValidTransition(from, to wcstypes.ControlState) bool {
	for _, allowed := range defaultTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Weapon is the control state machine for one tube's weapon.
//
// Two separate critical sections matter here, and they are deliberately
// not the same lock:
//
//   - commitMu guards the act of committing a state (the atomic swap and
//     timestamp). obsMu is taken before commitMu is released and observers
//     are notified under obsMu, so notifications keep commit order.
//     Neither lock is held across a sleep, so Tick()'s auto ON<->RTL
//     transitions and an ABORT arriving mid-operation never block behind a
//     multi-second POC or launch wait.
//   - busy is a one-slot semaphore held for the full duration of a
//     non-ABORT state-change request (including its cancellable sleeps),
//     enforcing at most one state-change operation in flight per weapon.
//     A second non-ABORT request made while busy is held is rejected
//     outright rather than queued.
//
// ABORT never touches busy: it cancels the in-flight operation's token
// and commits ABORT through commitMu immediately, which is what lets it
// preempt a POC wait or launch step.
type Weapon struct {
	kind   wcstypes.WeaponKind
	tubeNo int

	commitMu sync.Mutex
	current  atomic.Int32 // wcstypes.ControlState

	busy chan struct{}

	launched          atomic.Bool
	fireSolutionReady atomic.Bool

	stateEnteredAt atomic.Pointer[time.Time]
	currentToken   atomic.Pointer[cancel.Token]

	launchSteps []wcstypes.LaunchStep
	onDelay     time.Duration

	obsMu     sync.Mutex
	observers []Observer

	metrics *metrics.Collector
	lg      *log.Logger
}

// New builds a Weapon for kind, with onDelay as the POC wait and steps as
// the launch sequence (DefaultLaunchSteps() if steps is empty).
func New(kind wcstypes.WeaponKind, onDelay time.Duration, steps []wcstypes.LaunchStep, mc *metrics.Collector, lg *log.Logger) *Weapon {
	if len(steps) == 0 {
		steps = wcstypes.DefaultLaunchSteps()
	}
	if lg == nil {
		lg = log.NewNop()
	}
	w := &Weapon{
		kind:        kind,
		busy:        make(chan struct{}, 1),
		launchSteps: steps,
		onDelay:     onDelay,
		metrics:     mc,
		lg:          lg,
	}
	w.current.Store(int32(wcstypes.StateOff))
	now := time.Now()
	w.stateEnteredAt.Store(&now)
	return w
}

// Initialize binds the weapon to tubeNo and resets it to OFF.
func (w *Weapon) Initialize(tubeNo int) {
	w.tubeNo = tubeNo
	w.Reset()
}

// Kind returns the weapon's kind.
func (w *Weapon) Kind() wcstypes.WeaponKind { return w.kind }

// CurrentState is a lock-free atomic read of the control state.
func (w *Weapon) CurrentState() wcstypes.ControlState {
	return wcstypes.ControlState(w.current.Load())
}

// Launched is a lock-free atomic read of the launched flag.
func (w *Weapon) Launched() bool { return w.launched.Load() }

// SetFireSolutionReady is called by the coordinator (on the engagement
// manager's behalf) after each replan. Mutation is atomic; the tick reads
// it without holding the state lock.
func (w *Weapon) SetFireSolutionReady(ready bool) {
	w.fireSolutionReady.Store(ready)
}

// FireSolutionReady is a lock-free atomic read of the interlock flag.
func (w *Weapon) FireSolutionReady() bool { return w.fireSolutionReady.Load() }

// Subscribe registers obs to receive state/launch notifications.
func (w *Weapon) Subscribe(obs Observer) {
	w.obsMu.Lock()
	defer w.obsMu.Unlock()
	w.observers = append(w.observers, obs)
}

// Reset cancels any in-flight operation and commits OFF, clearing launched
// and fire-solution state. A launch sequence that was in flight commits
// ABORT as it stops, so the weapon then ends in ABORT. Called by the
// coordinator on unassign.
func (w *Weapon) Reset() {
	w.ForceOff()
	w.launched.Store(false)
	w.fireSolutionReady.Store(false)
}

// ForceOff cancels any in-flight operation's token and commits OFF
// directly, bypassing the transition table. The coordinator's emergency
// stop uses it for tubes not currently launching; a POC wait woken by the
// cancellation sees the state already OFF and leaves it alone, while a
// launch step woken the same way commits ABORT.
func (w *Weapon) ForceOff() {
	w.CancelCurrentOperation()
	w.commitState(wcstypes.StateOff)
}

// CancelCurrentOperation fires the token of whatever cancellable operation
// is in flight, if any. Idempotent; safe with no operation running.
func (w *Weapon) CancelCurrentOperation() {
	if tok := w.currentToken.Load(); tok != nil {
		tok.Cancel()
	}
}

// commitState swaps in newState and re-stamps state_entered_at under
// commitMu, then notifies observers under obsMu, which it takes before
// releasing commitMu so that notifications follow commit order. Neither
// lock is held across a sleep.
func (w *Weapon) commitState(newState wcstypes.ControlState) {
	w.commitMu.Lock()
	old := wcstypes.ControlState(w.current.Swap(int32(newState)))
	now := time.Now()
	w.stateEnteredAt.Store(&now)

	if old == newState {
		w.commitMu.Unlock()
		return
	}
	w.obsMu.Lock()
	w.commitMu.Unlock()
	defer w.obsMu.Unlock()

	w.lg.Debug("weapon state committed",
		"tube_no", w.tubeNo, "kind", w.kind.String(), "from", old.String(), "to", newState.String())
	if w.metrics != nil {
		w.metrics.StateTransitions.WithLabelValues(w.kind.String(), old.String(), newState.String()).Inc()
	}

	w.notifyStateChanged(old, newState, now)
}

// notifyStateChanged delivers one state change; the caller holds obsMu.
func (w *Weapon) notifyStateChanged(from, to wcstypes.ControlState, at time.Time) {
	for _, o := range w.observers {
		o.OnStateChanged(w.tubeNo, from, to, at)
	}
}

func (w *Weapon) notifyLaunchStatusChanged(launched bool, at time.Time) {
	w.obsMu.Lock()
	defer w.obsMu.Unlock()
	for _, o := range w.observers {
		o.OnLaunchStatusChanged(w.tubeNo, launched, at)
	}
}

// setLaunched commits the launched flag, notifies observers on a rising
// edge, and moves LAUNCH to POST_LAUNCH, since reaching launched=true is
// itself a state transition.
func (w *Weapon) setLaunched(launched bool) {
	old := w.launched.Swap(launched)
	if old == launched {
		return
	}
	now := time.Now()
	if w.metrics != nil && launched {
		w.metrics.Launches.Inc()
	}
	w.notifyLaunchStatusChanged(launched, now)
	if launched {
		w.commitState(wcstypes.StatePostLaunch)
	}
}

// RequestStateChange performs one state-change request. ABORT is
// accepted from any state at any time: it cancels the
// current operation's token and commits ABORT without waiting for that
// operation to finish. Every other transition is checked against the
// table, rejected with InvalidTransition if undefined, and otherwise runs
// exclusively under the busy slot — a concurrent second non-ABORT request
// while one is already running is rejected outright.
func (w *Weapon) RequestStateChange(target wcstypes.ControlState, token *cancel.Token) error {
	if target == wcstypes.StateAbort {
		if tok := w.currentToken.Load(); tok != nil {
			tok.Cancel()
		}
		if w.metrics != nil {
			w.metrics.Aborts.Inc()
		}
		w.commitState(wcstypes.StateAbort)
		return nil
	}

	current := w.CurrentState()
	if !isValidTransition(current, target) {
		return wcserrors.New(wcserrors.KindInvalidTransition,
			fmt.Sprintf("%s -> %s is not a defined transition", current, target))
	}

	select {
	case w.busy <- struct{}{}:
	default:
		return wcserrors.New(wcserrors.KindInvalidTransition, "a state-change operation is already in progress")
	}
	defer func() { <-w.busy }()

	// Re-check: an ABORT may have landed between the check above and
	// acquiring the busy slot.
	current = w.CurrentState()
	if !isValidTransition(current, target) {
		return wcserrors.New(wcserrors.KindInvalidTransition,
			fmt.Sprintf("%s -> %s is not a defined transition", current, target))
	}

	if token == nil {
		token = cancel.New()
	}
	w.currentToken.Store(token)

	switch target {
	case wcstypes.StateOff:
		token.Cancel()
		w.commitState(wcstypes.StateOff)
		return nil
	case wcstypes.StateOn:
		return w.processTurnOn(token)
	case wcstypes.StateLaunch:
		return w.processLaunch(token)
	default:
		w.commitState(target)
		return nil
	}
}

// processTurnOn performs the transient POC sub-state: set POC, sleep
// onDelay in cancellation-polled chunks, then set ON. A cancellation
// during the wait reverts to OFF and reports Cancelled.
func (w *Weapon) processTurnOn(token *cancel.Token) error {
	w.commitState(wcstypes.StatePOC)
	w.lg.Debug("power-on check starting", "tube_no", w.tubeNo, "on_delay_s", w.onDelay.Seconds())

	if !token.Sleep(w.onDelay) {
		// Only revert if the cancellation wasn't an ABORT (or ForceOff)
		// that already committed a different state.
		if w.CurrentState() == wcstypes.StatePOC {
			w.commitState(wcstypes.StateOff)
		}
		return wcserrors.New(wcserrors.KindCancelled, "power-on check cancelled")
	}

	w.commitState(wcstypes.StateOn)
	return nil
}

// processLaunch runs the ordered launch-step list, sleeping each step's
// duration in cancellation-polled chunks. A cancellation mid-step
// transitions to ABORT and reports Aborted; completing every step sets
// launched=true, which auto-transitions LAUNCH -> POST_LAUNCH.
func (w *Weapon) processLaunch(token *cancel.Token) error {
	w.commitState(wcstypes.StateLaunch)

	for _, step := range w.launchSteps {
		w.lg.Debug("launch step", "tube_no", w.tubeNo, "step", step.Description, "duration_s", step.DurationS)
		d := time.Duration(step.DurationS * float64(time.Second))
		if !token.Sleep(d) {
			w.commitState(wcstypes.StateAbort)
			return wcserrors.New(wcserrors.KindAborted, "launch sequence aborted during "+step.Description)
		}
	}

	w.setLaunched(true)
	return nil
}

// Tick drives the two internal auto-transitions: ON -> RTL when the fire
// solution becomes ready, RTL -> ON when it is withdrawn. A successful
// SetFireSolutionReady(true) observed here causes ON -> RTL no later
// than the next tick. It never blocks on the busy slot, so a
// long POC/launch wait on this weapon never delays the tick thread beyond
// the brief commitState critical section.
func (w *Weapon) Tick() {
	switch w.CurrentState() {
	case wcstypes.StateOn:
		if w.fireSolutionReady.Load() {
			w.commitState(wcstypes.StateRTL)
		}
	case wcstypes.StateRTL:
		if !w.fireSolutionReady.Load() {
			w.commitState(wcstypes.StateOn)
		}
	}
}

// StateEnteredAt returns when the weapon last committed a state change.
func (w *Weapon) StateEnteredAt() time.Time {
	if p := w.stateEnteredAt.Load(); p != nil {
		return *p
	}
	return time.Time{}
}
