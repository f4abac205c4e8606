// internal/targetreg/registry.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package targetreg implements C1, the target registry: a mapping from
// system-target-id to the latest track report, evicted by age.
package targetreg

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// DefaultMaxAge is the fallback eviction age for stale tracks.
const DefaultMaxAge = 5 * time.Minute

// DefaultSweepInterval caps how often the lazy eviction sweep runs.
const DefaultSweepInterval = 1 * time.Minute

// Registry is a TTL'd cache of the latest track per system target.
type Registry struct {
	cache         *expirable.LRU[uint32, wcstypes.TargetTrack]
	sweepInterval time.Duration
	lastSweep     time.Time
}

// New builds a Registry with the given eviction age and a generous size
// cap (target counts are small and bounded by sensor throughput, not a
// hard spec limit, so the cap exists only to bound worst-case memory).
func New(maxAge time.Duration) *Registry {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Registry{
		cache:         expirable.NewLRU[uint32, wcstypes.TargetTrack](4096, nil, maxAge),
		sweepInterval: DefaultSweepInterval,
		lastSweep:     time.Now(),
	}
}

// Update stamps track with the current time and stores it, then — at most
// once per sweepInterval — triggers the LRU's lazy age-based eviction by
// walking the keys, since expirable.LRU only expires entries it is asked
// about.
func (r *Registry) Update(track wcstypes.TargetTrack) {
	track.LastUpdateAt = time.Now()
	r.cache.Add(track.SystemTargetID, track)
	r.maybeSweep()
}

// Get returns the track for id, or (zero, false) if absent or expired.
func (r *Registry) Get(id uint32) (wcstypes.TargetTrack, bool) {
	return r.cache.Get(id)
}

// Len returns the number of tracks currently cached (may include entries
// not yet lazily expired).
func (r *Registry) Len() int {
	return r.cache.Len()
}

// maybeSweep walks every key, which forces expirable.LRU to evict any
// entry past its TTL, at most once per sweepInterval.
func (r *Registry) maybeSweep() {
	now := time.Now()
	if now.Sub(r.lastSweep) < r.sweepInterval {
		return
	}
	r.lastSweep = now
	for _, id := range r.cache.Keys() {
		r.cache.Get(id)
	}
}
