// internal/wcserrors/partial.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wcserrors

import (
	"fmt"
	"strings"
)

// TubeError pairs one tube number with the error kind it reported during a
// bulk operation.
type TubeError struct {
	TubeNo  int
	Kind    Kind
	Message string
}

// PartialFailure is the composite result of a bulk per-tube operation
// (emergency stop, all-tube state change) in which some tubes failed.
// Callers can still read per-tube states to reconcile.
type PartialFailure struct {
	PerTube []TubeError
}

func (e *PartialFailure) Error() string {
	var sb strings.Builder
	sb.WriteString("partial failure:")
	for _, te := range e.PerTube {
		fmt.Fprintf(&sb, " tube %d: %s", te.TubeNo, te.Kind)
		if te.Message != "" {
			fmt.Fprintf(&sb, " (%s)", te.Message)
		}
		sb.WriteByte(';')
	}
	return sb.String()
}
