// Package proofpack seals the current system state plus recent ledger history
// into a cryptographically verifiable bundle for external auditors, and
// verifies previously sealed bundles.
package proofpack

import (
	"context"
	"errors"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/ledger"
	"github.com/sentinel-reserve/sentinel/internal/state"
)

// ErrNotFound is returned when a proof pack id is unknown.
var ErrNotFound = errors.New("proof pack not found")

// Pack is a sealed, immutable snapshot of the system state and ledger history.
//
// ContentHash is a SHA-256 over the RFC 8785 canonical JSON of all snapshot
// fields. AuthTag is an HMAC-SHA256 over ContentHash keyed by a shared secret
// supplied out-of-band; it is a symmetric integrity tag, not a digital
// signature, and proves nothing to parties without the secret.
type Pack struct {
	ID          string                   `json:"id"`
	GeneratedAt time.Time                `json:"generated_at"`
	State       state.SystemState        `json:"system_state"`
	Audit       []ledger.AuditEntry      `json:"audit_log"`
	Governance  []ledger.GovernanceEntry `json:"governance_log"`
	ContentHash string                   `json:"content_hash"`
	AuthTag     string                   `json:"auth_tag"`
}

// Verdict is the outcome of verifying a sealed pack.
type Verdict string

const (
	// VerdictValid — both the content hash and the authentication tag match.
	VerdictValid Verdict = "valid"
	// VerdictTamperedContent — the snapshots do not hash to ContentHash.
	VerdictTamperedContent Verdict = "tampered_content"
	// VerdictTamperedTag — the content is intact but AuthTag does not match;
	// either the tag was altered or it was computed with a different secret.
	VerdictTamperedTag Verdict = "tampered_tag"
)

// Store persists sealed packs. Packs are created once and never mutated.
type Store interface {
	SavePack(ctx context.Context, p *Pack) error
	GetPack(ctx context.Context, id string) (*Pack, error)
	ListPacks(ctx context.Context, limit int) ([]*Pack, error)
}
