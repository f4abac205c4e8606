// internal/cancel/token.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package cancel implements the one-shot, monotonic cancellation token
// shared between a weapon's in-flight operation and whatever caller may
// need to preempt it (an ABORT command, an emergency stop).
package cancel

import (
	"sync"
	"sync/atomic"
	"time"
)

// PollInterval is the maximum slice duration used by Sleep when polling
// for cancellation.
const PollInterval = 50 * time.Millisecond

// Token is a single monotonic boolean: once cancelled it never un-cancels.
// Cancel is idempotent and safe to call concurrently with polling.
type Token struct {
	cancelled atomic.Bool
	done      chan struct{}
	once      sync.Once
	initOnce  sync.Once
}

// New returns a fresh, uncancelled Token.
func New() *Token {
	t := &Token{}
	t.ensureChan()
	return t
}

func (t *Token) ensureChan() {
	t.initOnce.Do(func() {
		t.done = make(chan struct{})
	})
}

// Cancel signals the token. Repeated calls are no-ops.
func (t *Token) Cancel() {
	t.ensureChan()
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
	})
}

// IsCancelled reports whether Cancel has been called.
func (t *Token) IsCancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.Load()
}

// Done returns a channel that is closed when the token is cancelled, so
// callers may select on it alongside other events.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		// A nil token never cancels; return a channel that never closes.
		return nil
	}
	t.ensureChan()
	return t.done
}

// Sleep waits for d, polling t at PollInterval granularity. It returns
// true if the full duration elapsed, false if t fired first. A nil t never
// fires.
func (t *Token) Sleep(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if t.IsCancelled() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > PollInterval {
			slice = PollInterval
		}
		time.Sleep(slice)
	}
}

// Any reports whether any of tokens is cancelled; nil tokens are ignored.
func Any(tokens ...*Token) bool {
	for _, tok := range tokens {
		if tok != nil && tok.IsCancelled() {
			return true
		}
	}
	return false
}

// SleepAny waits for d, returning early (false) the moment any of tokens
// fires. Used where a sleep must respect both a caller-supplied token and
// the weapon's own current-operation token simultaneously.
func SleepAny(d time.Duration, tokens ...*Token) bool {
	deadline := time.Now().Add(d)
	for {
		if Any(tokens...) {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > PollInterval {
			slice = PollInterval
		}
		time.Sleep(slice)
	}
}
