// internal/wcserrors/errors.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package wcserrors defines the closed error taxonomy that is the sole
// error channel of the weapon control core.
package wcserrors

import "errors"

// Kind is one of the closed set of error categories the core can report.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidTube
	KindNotAssigned
	KindAlreadyAssigned
	KindUnsupportedKind
	KindInvalidTransition
	KindCancelled
	KindAborted
	KindNoTarget
	KindTooManyWaypoints
	KindInvalidPlan
	KindPlanListFull
	KindDuplicatePlanNumber
	KindIoError
	KindConfigError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidTube:
		return "InvalidTube"
	case KindNotAssigned:
		return "NotAssigned"
	case KindAlreadyAssigned:
		return "AlreadyAssigned"
	case KindUnsupportedKind:
		return "UnsupportedKind"
	case KindInvalidTransition:
		return "InvalidTransition"
	case KindCancelled:
		return "Cancelled"
	case KindAborted:
		return "Aborted"
	case KindNoTarget:
		return "NoTarget"
	case KindTooManyWaypoints:
		return "TooManyWaypoints"
	case KindInvalidPlan:
		return "InvalidPlan"
	case KindPlanListFull:
		return "PlanListFull"
	case KindDuplicatePlanNumber:
		return "DuplicatePlanNumber"
	case KindIoError:
		return "IoError"
	case KindConfigError:
		return "ConfigError"
	default:
		return "None"
	}
}

// CodedError is the uniform error value every fallible core operation
// returns: a Kind plus a human-readable message.
type CodedError struct {
	Kind    Kind
	Message string
}

func (e *CodedError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

// New builds a CodedError for kind with the given message.
func New(kind Kind, message string) *CodedError {
	return &CodedError{Kind: kind, Message: message}
}

// KindOf extracts the Kind from err, or KindNone if err is nil or not a
// *CodedError.
func KindOf(err error) Kind {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindNone
}

// Is lets errors.Is match a CodedError against a bare Kind-typed sentinel
// created via New(kind, "").
func (e *CodedError) Is(target error) bool {
	var ce *CodedError
	if errors.As(target, &ce) {
		return e.Kind == ce.Kind
	}
	return false
}

var (
	ErrInvalidTube         = New(KindInvalidTube, "")
	ErrNotAssigned         = New(KindNotAssigned, "")
	ErrAlreadyAssigned     = New(KindAlreadyAssigned, "")
	ErrUnsupportedKind     = New(KindUnsupportedKind, "")
	ErrInvalidTransition   = New(KindInvalidTransition, "")
	ErrCancelled           = New(KindCancelled, "")
	ErrAborted             = New(KindAborted, "")
	ErrNoTarget            = New(KindNoTarget, "")
	ErrTooManyWaypoints    = New(KindTooManyWaypoints, "")
	ErrInvalidPlan         = New(KindInvalidPlan, "")
	ErrPlanListFull        = New(KindPlanListFull, "")
	ErrDuplicatePlanNumber = New(KindDuplicatePlanNumber, "")
	ErrIoError             = New(KindIoError, "")
	ErrConfigError         = New(KindConfigError, "")
)

// kindByName supports decoding a Kind that has crossed a wire boundary
// (e.g. gob-encoded as a plain string on the RPC transport) back to one
// of the sentinels above.
var kindByName = map[string]Kind{
	"InvalidTube":         KindInvalidTube,
	"NotAssigned":         KindNotAssigned,
	"AlreadyAssigned":     KindAlreadyAssigned,
	"UnsupportedKind":     KindUnsupportedKind,
	"InvalidTransition":   KindInvalidTransition,
	"Cancelled":           KindCancelled,
	"Aborted":             KindAborted,
	"NoTarget":            KindNoTarget,
	"TooManyWaypoints":    KindTooManyWaypoints,
	"InvalidPlan":         KindInvalidPlan,
	"PlanListFull":        KindPlanListFull,
	"DuplicatePlanNumber": KindDuplicatePlanNumber,
	"IoError":             KindIoError,
	"ConfigError":         KindConfigError,
}

// TryDecodeKind maps a wire-transmitted kind name back to a Kind, returning
// (KindNone, false) for anything unrecognized.
func TryDecodeKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// IsExpectedDuringShutdown reports whether err is Cancelled or Aborted,
// the two kinds the coordinator absorbs during shutdown/emergency-stop
// rather than surfacing as failures.
func IsExpectedDuringShutdown(err error) bool {
	k := KindOf(err)
	return k == KindCancelled || k == KindAborted
}
