// Package workflow defines the legal values and transitions of an
// application's status.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jobhub/apiserver/types"
)

// Mode selects how transitions are validated.
type Mode string

const (
	// ModePermissive allows any status to be set from any status.
	ModePermissive Mode = "permissive"
	// ModeStrict only allows forward moves along the review pipeline.
	ModeStrict Mode = "strict"
)

var (
	// ErrUnknownStatus is returned for values outside the five statuses.
	ErrUnknownStatus = errors.New("unknown application status")
	// ErrInvalidTransition is returned when strict mode rejects a move.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Statuses lists every status in pipeline order.
var Statuses = []types.ApplicationStatus{
	types.StatusPending,
	types.StatusReviewed,
	types.StatusShortlisted,
	types.StatusRejected,
	types.StatusAccepted,
}

// edges is the strict transition graph. Pending is the only source,
// rejected and accepted are sinks.
var edges = map[types.ApplicationStatus][]types.ApplicationStatus{
	types.StatusPending:     {types.StatusReviewed, types.StatusShortlisted, types.StatusRejected, types.StatusAccepted},
	types.StatusReviewed:    {types.StatusShortlisted, types.StatusRejected, types.StatusAccepted},
	types.StatusShortlisted: {types.StatusRejected, types.StatusAccepted},
}

// ParseMode maps a config value to a Mode, defaulting to permissive.
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeStrict)) {
		return ModeStrict
	}
	return ModePermissive
}

// Parse normalizes raw and checks it is a known status.
func Parse(raw string) (types.ApplicationStatus, error) {
	status := types.ApplicationStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !Valid(status) {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return status, nil
}

// Valid reports whether status is one of the five statuses.
func Valid(status types.ApplicationStatus) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is expected.
func IsTerminal(status types.ApplicationStatus) bool {
	return status == types.StatusRejected || status == types.StatusAccepted
}

// Next returns the statuses reachable from status in strict mode.
func Next(status types.ApplicationStatus) []types.ApplicationStatus {
	return append([]types.ApplicationStatus(nil), edges[status]...)
}

// Validate checks that moving from one status to another is allowed.
// Setting the current status again is always allowed so notes can be
// edited without moving the application.
func Validate(from, to types.ApplicationStatus, mode Mode) error {
	if !Valid(to) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if mode != ModeStrict || from == to {
		return nil
	}
	allowed := Next(from)
	for _, next := range allowed {
		if next == to {
			return nil
		}
	}
	if len(allowed) == 0 {
		return fmt.Errorf("%w: %s -> %s (%s is final)", ErrInvalidTransition, from, to, from)
	}
	names := make([]string, len(allowed))
	for i, next := range allowed {
		names[i] = string(next)
	}
	return fmt.Errorf("%w: %s -> %s (allowed: %s)", ErrInvalidTransition, from, to, strings.Join(names, ", "))
}
