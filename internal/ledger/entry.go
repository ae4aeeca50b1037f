package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/state"
)

// GenesisTag is the well-known integrity tag the governance chain starts from.
// The first appended entry chains from this constant rather than from a
// computed value.
const GenesisTag = "0000000000000000000000000000000000000000000000000000000000000000"

// ErrIntegrity is returned when a stored governance entry's tag does not match
// the recomputed hash chain. The affected entry must not be accepted.
var ErrIntegrity = errors.New("governance ledger integrity violation")

// AuditEntry is a single immutable audit record for a state transition.
// Seq is the insertion sequence number and breaks wall-clock timestamp ties.
type AuditEntry struct {
	Seq          int64      `json:"seq"`
	Timestamp    time.Time  `json:"timestamp"`
	Actor        string     `json:"actor"`
	Action       string     `json:"action"`
	PrevState    state.Mode `json:"prev_state"`
	NextState    state.Mode `json:"next_state"`
	NAV          int64      `json:"nav"`
	LiquidityPct int        `json:"liquidity_pct"`
}

// Multisig records how many of a required signer set approved an action.
type Multisig struct {
	Required  int `json:"required"`
	Approvals int `json:"approvals"`
}

// GovernanceEntry is a single immutable governance record. IntegrityTag hashes
// the entry's own fields plus the previous entry's tag, forming a chain that
// makes any retroactive edit or reorder detectable.
type GovernanceEntry struct {
	Seq          int64     `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Notes        string    `json:"notes"`
	Multisig     Multisig  `json:"multisig"`
	PrevTag      string    `json:"prev_tag"`
	IntegrityTag string    `json:"integrity_tag"`
}

// ComputeTag returns the integrity tag for e given its PrevTag field.
// The tag covers every field except IntegrityTag itself.
func ComputeTag(e *GovernanceEntry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%d|%d|%s",
		e.Seq, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Action, e.Notes, e.Multisig.Required, e.Multisig.Approvals, e.PrevTag,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain walks entries in ascending seq order and checks the hash chain
// from GenesisTag. It returns ErrIntegrity (wrapped with the offending seq)
// at the first corrupt or reordered entry; everything after that entry is
// equally untrustworthy.
func VerifyChain(entries []GovernanceEntry) error {
	prevTag := GenesisTag
	for i := range entries {
		e := &entries[i]
		if e.PrevTag != prevTag {
			return fmt.Errorf("entry %d: chain broken: %w", e.Seq, ErrIntegrity)
		}
		if ComputeTag(e) != e.IntegrityTag {
			return fmt.Errorf("entry %d: tag mismatch: %w", e.Seq, ErrIntegrity)
		}
		prevTag = e.IntegrityTag
	}
	return nil
}
