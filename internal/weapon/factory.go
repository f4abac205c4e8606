// internal/weapon/factory.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package weapon

import (
	"fmt"
	"sync"
	"time"

	"github.com/kjeon/wcs-core/internal/engagement"
	"github.com/kjeon/wcs-core/internal/log"
	"github.com/kjeon/wcs-core/internal/metrics"
	"github.com/kjeon/wcs-core/internal/wcserrors"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// Builder constructs the (weapon, engagement manager) pair for one kind.
type Builder struct {
	NewWeapon  func() *Weapon
	NewManager func() engagement.Manager
}

// Factory maps weapon kinds to their builders. New kinds register here
// without the coordinator needing to know them; unregistered kinds (NA and
// the WGT placeholder among them) are rejected with UnsupportedKind.
type Factory struct {
	mu       sync.RWMutex
	builders map[wcstypes.WeaponKind]Builder
}

// Params carries the construction-time knobs the default builders need,
// threaded from the configuration at the composition root.
type Params struct {
	OnDelay      time.Duration
	LaunchSteps  []wcstypes.LaunchStep
	MineSpeedMps float64
	Calculator   engagement.Calculator
	Metrics      *metrics.Collector
	Logger       *log.Logger
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{builders: make(map[wcstypes.WeaponKind]Builder)}
}

// NewDefaultFactory registers builders for the four constructible kinds:
// the three missiles and the self-propelled mine.
func NewDefaultFactory(p Params) *Factory {
	calc := p.Calculator
	if calc == nil {
		calc = engagement.DefaultCalculator{MineSpeedMps: p.MineSpeedMps}
	}

	f := NewFactory()
	for _, kind := range []wcstypes.WeaponKind{wcstypes.KindALM, wcstypes.KindASM, wcstypes.KindAAM} {
		kind := kind
		f.Register(kind, Builder{
			NewWeapon: func() *Weapon {
				return New(kind, p.OnDelay, p.LaunchSteps, p.Metrics, p.Logger)
			},
			NewManager: func() engagement.Manager {
				return engagement.NewMissileManager(calc, p.Metrics, p.Logger)
			},
		})
	}
	f.Register(wcstypes.KindMMine, Builder{
		NewWeapon: func() *Weapon {
			return New(wcstypes.KindMMine, p.OnDelay, p.LaunchSteps, p.Metrics, p.Logger)
		},
		NewManager: func() engagement.Manager {
			return engagement.NewMineManager(calc, p.Metrics, p.Logger)
		},
	})
	return f
}

// Register installs (or replaces) the builder for kind.
func (f *Factory) Register(kind wcstypes.WeaponKind, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[kind] = b
}

// Supports reports whether kind has a registered builder.
func (f *Factory) Supports(kind wcstypes.WeaponKind) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.builders[kind]
	return ok
}

// Build constructs both halves of the pair for kind.
func (f *Factory) Build(kind wcstypes.WeaponKind) (*Weapon, engagement.Manager, error) {
	f.mu.RLock()
	b, ok := f.builders[kind]
	f.mu.RUnlock()
	if !ok {
		return nil, nil, wcserrors.New(wcserrors.KindUnsupportedKind,
			fmt.Sprintf("no builder registered for kind %s", kind))
	}
	return b.NewWeapon(), b.NewManager(), nil
}
