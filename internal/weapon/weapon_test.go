// internal/weapon/weapon_test.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package weapon

import (
	"sync"
	"testing"
	"time"

	"github.com/kjeon/wcs-core/internal/cancel"
	"github.com/kjeon/wcs-core/internal/wcserrors"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// fast timings keep the cancellable sleeps short without changing the
// state machine's behavior.
const testOnDelay = 60 * time.Millisecond

func fastSteps() []wcstypes.LaunchStep {
	return []wcstypes.LaunchStep{
		{Description: "Power On Check", DurationS: 0.06},
		{Description: "System Verification", DurationS: 0.06},
		{Description: "Launch Sequence", DurationS: 0.06},
	}
}

func newTestWeapon() *Weapon {
	w := New(wcstypes.KindALM, testOnDelay, fastSteps(), nil, nil)
	w.Initialize(1)
	return w
}

// recorder collects observer notifications in delivery order.
type recorder struct {
	mu          sync.Mutex
	transitions [][2]wcstypes.ControlState
	launches    []bool
}

func (r *recorder) OnStateChanged(tubeNo int, from, to wcstypes.ControlState, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, [2]wcstypes.ControlState{from, to})
}

func (r *recorder) OnLaunchStatusChanged(tubeNo int, launched bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launches = append(r.launches, launched)
}

func (r *recorder) snapshot() [][2]wcstypes.ControlState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]wcstypes.ControlState{}, r.transitions...)
}

func TestInitialState(t *testing.T) {
	w := newTestWeapon()
	if w.CurrentState() != wcstypes.StateOff {
		t.Errorf("initial state %s, expected OFF", w.CurrentState())
	}
	if w.Launched() {
		t.Errorf("launched initially true")
	}
	if w.FireSolutionReady() {
		t.Errorf("fire solution initially ready")
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	w := newTestWeapon()
	for _, target := range []wcstypes.ControlState{
		wcstypes.StateLaunch, wcstypes.StateRTL, wcstypes.StatePostLaunch, wcstypes.StatePOC,
	} {
		err := w.RequestStateChange(target, nil)
		if wcserrors.KindOf(err) != wcserrors.KindInvalidTransition {
			t.Errorf("OFF -> %s gave %v, expected InvalidTransition", target, err)
		}
	}
	if w.CurrentState() != wcstypes.StateOff {
		t.Errorf("state changed by rejected request: %s", w.CurrentState())
	}
}

func TestPowerOnSequence(t *testing.T) {
	w := newTestWeapon()

	start := time.Now()
	if err := w.RequestStateChange(wcstypes.StateOn, nil); err != nil {
		t.Fatalf("turn on: %v", err)
	}
	if elapsed := time.Since(start); elapsed < testOnDelay {
		t.Errorf("ON reached after %v, expected at least the POC delay %v", elapsed, testOnDelay)
	}
	if w.CurrentState() != wcstypes.StateOn {
		t.Errorf("state %s after turn on, expected ON", w.CurrentState())
	}

	if err := w.RequestStateChange(wcstypes.StateOff, nil); err != nil {
		t.Fatalf("turn off: %v", err)
	}
	if w.CurrentState() != wcstypes.StateOff {
		t.Errorf("state %s after turn off", w.CurrentState())
	}
}

func TestPowerOnCancelled(t *testing.T) {
	w := newTestWeapon()
	tok := cancel.New()

	errCh := make(chan error, 1)
	go func() { errCh <- w.RequestStateChange(wcstypes.StateOn, tok) }()

	time.Sleep(20 * time.Millisecond)
	if w.CurrentState() != wcstypes.StatePOC {
		t.Errorf("state %s during POC wait", w.CurrentState())
	}
	tok.Cancel()

	err := <-errCh
	if wcserrors.KindOf(err) != wcserrors.KindCancelled {
		t.Errorf("cancelled turn-on gave %v, expected Cancelled", err)
	}
	if w.CurrentState() != wcstypes.StateOff {
		t.Errorf("state %s after cancelled POC, expected OFF", w.CurrentState())
	}
}

func TestFireSolutionDrivesRTL(t *testing.T) {
	w := newTestWeapon()
	if err := w.RequestStateChange(wcstypes.StateOn, nil); err != nil {
		t.Fatal(err)
	}

	w.Tick()
	if w.CurrentState() != wcstypes.StateOn {
		t.Errorf("transitioned without fire solution: %s", w.CurrentState())
	}

	w.SetFireSolutionReady(true)
	w.Tick()
	if w.CurrentState() != wcstypes.StateRTL {
		t.Errorf("state %s after ready tick, expected RTL", w.CurrentState())
	}

	w.SetFireSolutionReady(false)
	w.Tick()
	if w.CurrentState() != wcstypes.StateOn {
		t.Errorf("state %s after readiness withdrawn, expected ON", w.CurrentState())
	}
}

func launchReady(t *testing.T, w *Weapon) {
	t.Helper()
	if err := w.RequestStateChange(wcstypes.StateOn, nil); err != nil {
		t.Fatal(err)
	}
	w.SetFireSolutionReady(true)
	w.Tick()
	if w.CurrentState() != wcstypes.StateRTL {
		t.Fatalf("not RTL: %s", w.CurrentState())
	}
}

func TestLaunchSequenceCompletes(t *testing.T) {
	w := newTestWeapon()
	rec := &recorder{}
	w.Subscribe(rec)
	launchReady(t, w)

	if err := w.RequestStateChange(wcstypes.StateLaunch, nil); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if !w.Launched() {
		t.Errorf("launched false after completed sequence")
	}
	if w.CurrentState() != wcstypes.StatePostLaunch {
		t.Errorf("state %s after launch, expected POST_LAUNCH", w.CurrentState())
	}

	rec.mu.Lock()
	launches := append([]bool{}, rec.launches...)
	rec.mu.Unlock()
	if len(launches) != 1 || !launches[0] {
		t.Errorf("launch notifications %v, expected one true", launches)
	}

	if err := w.RequestStateChange(wcstypes.StateOff, nil); err != nil {
		t.Errorf("POST_LAUNCH -> OFF: %v", err)
	}
}

func TestAbortMidLaunch(t *testing.T) {
	w := newTestWeapon()
	launchReady(t, w)

	errCh := make(chan error, 1)
	go func() { errCh <- w.RequestStateChange(wcstypes.StateLaunch, nil) }()

	// Let the sequence get about halfway through its second step.
	time.Sleep(90 * time.Millisecond)
	if w.CurrentState() != wcstypes.StateLaunch {
		t.Fatalf("state %s mid-sequence", w.CurrentState())
	}

	abortAt := time.Now()
	if err := w.RequestStateChange(wcstypes.StateAbort, nil); err != nil {
		t.Fatalf("abort: %v", err)
	}

	err := <-errCh
	if wcserrors.KindOf(err) != wcserrors.KindAborted {
		t.Errorf("aborted launch gave %v, expected Aborted", err)
	}
	if d := time.Since(abortAt); d > 100*time.Millisecond {
		t.Errorf("launch sequence took %v to return after abort, expected under 100ms", d)
	}
	if w.CurrentState() != wcstypes.StateAbort {
		t.Errorf("state %s after abort, expected ABORT", w.CurrentState())
	}
	if w.Launched() {
		t.Errorf("launched true after aborted sequence")
	}

	if err := w.RequestStateChange(wcstypes.StateOff, nil); err != nil {
		t.Errorf("ABORT -> OFF: %v", err)
	}
	if w.CurrentState() != wcstypes.StateOff {
		t.Errorf("state %s after OFF", w.CurrentState())
	}
}

func TestAbortPreemptsPOC(t *testing.T) {
	w := New(wcstypes.KindALM, time.Second, fastSteps(), nil, nil)
	w.Initialize(1)

	errCh := make(chan error, 1)
	go func() { errCh <- w.RequestStateChange(wcstypes.StateOn, cancel.New()) }()

	time.Sleep(20 * time.Millisecond)
	if err := w.RequestStateChange(wcstypes.StateAbort, nil); err != nil {
		t.Fatalf("abort during POC: %v", err)
	}

	err := <-errCh
	if wcserrors.KindOf(err) != wcserrors.KindCancelled {
		t.Errorf("preempted turn-on gave %v, expected Cancelled", err)
	}
	// The POC handler must not clobber the committed ABORT with OFF.
	if st := w.CurrentState(); st != wcstypes.StateAbort {
		t.Errorf("state %s after abort during POC, expected ABORT", st)
	}
}

func TestConcurrentRequestRejected(t *testing.T) {
	w := New(wcstypes.KindALM, 300*time.Millisecond, fastSteps(), nil, nil)
	w.Initialize(1)

	errCh := make(chan error, 1)
	go func() { errCh <- w.RequestStateChange(wcstypes.StateOn, nil) }()

	time.Sleep(30 * time.Millisecond)
	err := w.RequestStateChange(wcstypes.StateOff, nil)
	if wcserrors.KindOf(err) != wcserrors.KindInvalidTransition {
		t.Errorf("second request during POC gave %v, expected rejection", err)
	}

	if err := <-errCh; err != nil {
		t.Errorf("first request failed: %v", err)
	}
}

func TestObserverTransitionsWellFormed(t *testing.T) {
	w := newTestWeapon()
	rec := &recorder{}
	w.Subscribe(rec)

	launchReady(t, w)
	if err := w.RequestStateChange(wcstypes.StateLaunch, nil); err != nil {
		t.Fatal(err)
	}
	if err := w.RequestStateChange(wcstypes.StateOff, nil); err != nil {
		t.Fatal(err)
	}

	// Every observed transition is either in the defined table, an entry
	// into ABORT, or one of the internal POC/RTL/POST_LAUNCH legs.
	internal := map[[2]wcstypes.ControlState]bool{
		{wcstypes.StateOff, wcstypes.StatePOC}:         true,
		{wcstypes.StatePOC, wcstypes.StateOn}:          true,
		{wcstypes.StatePOC, wcstypes.StateOff}:         true,
		{wcstypes.StateOn, wcstypes.StateRTL}:          true,
		{wcstypes.StateRTL, wcstypes.StateOn}:          true,
		{wcstypes.StateLaunch, wcstypes.StatePostLaunch}: true,
	}
	for _, tr := range rec.snapshot() {
		if tr[1] == wcstypes.StateAbort || internal[tr] || isValidTransition(tr[0], tr[1]) {
			continue
		}
		t.Errorf("unexpected transition %s -> %s observed", tr[0], tr[1])
	}
}

func TestResetCancelsInFlight(t *testing.T) {
	w := New(wcstypes.KindALM, time.Second, fastSteps(), nil, nil)
	w.Initialize(1)

	errCh := make(chan error, 1)
	go func() { errCh <- w.RequestStateChange(wcstypes.StateOn, nil) }()

	time.Sleep(20 * time.Millisecond)
	w.Reset()

	if err := <-errCh; wcserrors.KindOf(err) != wcserrors.KindCancelled {
		t.Errorf("reset in-flight turn-on gave %v, expected Cancelled", err)
	}
	if w.CurrentState() != wcstypes.StateOff {
		t.Errorf("state %s after Reset", w.CurrentState())
	}
	if w.Launched() || w.FireSolutionReady() {
		t.Errorf("flags survived Reset")
	}
}

func TestFactory(t *testing.T) {
	f := NewDefaultFactory(Params{OnDelay: testOnDelay, LaunchSteps: fastSteps()})

	for _, kind := range []wcstypes.WeaponKind{
		wcstypes.KindALM, wcstypes.KindASM, wcstypes.KindAAM, wcstypes.KindMMine,
	} {
		if !f.Supports(kind) {
			t.Errorf("default factory does not support %s", kind)
		}
		w, mgr, err := f.Build(kind)
		if err != nil {
			t.Errorf("Build(%s): %v", kind, err)
			continue
		}
		if w.Kind() != kind {
			t.Errorf("built weapon kind %s, expected %s", w.Kind(), kind)
		}
		if mgr == nil {
			t.Errorf("Build(%s) returned nil manager", kind)
		}
	}

	for _, kind := range []wcstypes.WeaponKind{wcstypes.KindNA, wcstypes.KindWGT} {
		if _, _, err := f.Build(kind); wcserrors.KindOf(err) != wcserrors.KindUnsupportedKind {
			t.Errorf("Build(%s) gave %v, expected UnsupportedKind", kind, err)
		}
	}
}
