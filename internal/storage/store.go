// Package storage provides the durable store behind the state timeline, both
// ledgers, and sealed proof packs. A single store owns all four so a state
// commit and its paired ledger entries can land as one atomic unit of work —
// a reader never observes a state whose ledger entries only partially landed.
package storage

import (
	"context"

	"github.com/sentinel-reserve/sentinel/internal/ledger"
	"github.com/sentinel-reserve/sentinel/internal/proofpack"
	"github.com/sentinel-reserve/sentinel/internal/state"
)

// Store is the combined persistence contract. Memory and Postgres implement it.
type Store interface {
	state.Store
	ledger.Writer
	proofpack.Store

	// Transition commits next as the new current state and appends its audit
	// and governance entries in one atomic unit: either all three writes land
	// or none do.
	Transition(ctx context.Context, next state.SystemState, audit ledger.AuditEntry, gov ledger.GovernanceEntry) (state.SystemState, ledger.AuditEntry, ledger.GovernanceEntry, error)

	// Snapshot returns the current state plus up to limit entries of each
	// ledger (newest first) as one consistent view: a transition landing
	// mid-read is either fully visible or not at all. Returns
	// state.ErrNotFound when no state was ever committed.
	Snapshot(ctx context.Context, limit int) (state.SystemState, []ledger.AuditEntry, []ledger.GovernanceEntry, error)
}
