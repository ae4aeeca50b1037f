// Package ledger defines the append-only audit and governance ledgers.
// Entries are never updated or deleted after append; the governance ledger is
// additionally hash-chained so tampering is detectable.
package ledger

import "context"

// Writer appends to and reads from both ledgers. Implementations live in the
// storage package so a state commit and its ledger entries can share one
// atomic unit of work.
type Writer interface {
	// Append stores one audit and one governance entry as a single unit,
	// assigning each a strictly increasing sequence number and computing the
	// governance integrity tag. Returns the stored copies.
	Append(ctx context.Context, audit AuditEntry, gov GovernanceEntry) (AuditEntry, GovernanceEntry, error)

	// AuditEntries returns up to limit audit entries, newest first
	// (descending seq). limit <= 0 means no limit.
	AuditEntries(ctx context.Context, limit int) ([]AuditEntry, error)

	// GovernanceEntries returns up to limit governance entries, newest first.
	GovernanceEntries(ctx context.Context, limit int) ([]GovernanceEntry, error)

	// VerifyGovernance recomputes the governance hash chain from genesis and
	// returns ErrIntegrity if any stored entry has been altered or reordered.
	VerifyGovernance(ctx context.Context) error

	// GovernanceRoot returns the integrity tag of the most recent governance
	// entry, or GenesisTag when the ledger is empty.
	GovernanceRoot(ctx context.Context) (string, error)
}
