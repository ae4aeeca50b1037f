// Package state defines the singleton system state and its versioned,
// append-only history. Exactly one SystemState is current at any time; every
// committed transition produces a new record with Version = previous + 1.
package state

import (
	"context"
	"errors"
	"time"
)

// Mode is the operating mode of the system.
type Mode string

const (
	// ModeNormal — ordinary operations; the only mode crisis scenarios may be
	// triggered from, and the only mode drift applies to.
	ModeNormal Mode = "normal"
	// ModeCyber — cyber security event in progress.
	ModeCyber Mode = "cyber"
	// ModeLiquidity — liquidity freeze in progress.
	ModeLiquidity Mode = "liquidity"
)

// ErrNotFound is returned by Store.Current when no state has ever been
// committed. Callers must seed a baseline before reading.
var ErrNotFound = errors.New("no system state found")

// ErrVersionConflict is returned when a commit races another writer.
// Safe to retry.
var ErrVersionConflict = errors.New("system state version conflict")

// SystemState is one immutable point on the state timeline.
type SystemState struct {
	Mode         Mode      `json:"mode"`
	NAV          int64     `json:"nav"`
	LiquidityPct int       `json:"liquidity_pct"`
	Timestamp    time.Time `json:"timestamp"`
	Version      int64     `json:"version"`
}

// Validate checks the domain invariants on a candidate state.
func (s SystemState) Validate() error {
	if s.NAV < 0 {
		return errors.New("nav must be non-negative")
	}
	if s.LiquidityPct < 0 || s.LiquidityPct > 100 {
		return errors.New("liquidity_pct must be in [0,100]")
	}
	switch s.Mode {
	case ModeNormal, ModeCyber, ModeLiquidity:
	default:
		return errors.New("unknown mode " + string(s.Mode))
	}
	return nil
}

// Store owns the system state history.
// The Version field of a candidate is assigned by the store, never the caller.
type Store interface {
	// Current returns the state with the highest version, or ErrNotFound.
	Current(ctx context.Context) (SystemState, error)

	// Commit appends candidate as the new current state, assigning the next
	// version. Concurrent commits serialise; versions never skip or repeat.
	Commit(ctx context.Context, candidate SystemState) (SystemState, error)

	// History returns up to limit states, newest first.
	History(ctx context.Context, limit int) ([]SystemState, error)
}
