package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/ledger"
)

// chain builds a valid n-entry governance chain rooted at GenesisTag.
func chain(n int) []ledger.GovernanceEntry {
	entries := make([]ledger.GovernanceEntry, 0, n)
	prev := ledger.GenesisTag
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := ledger.GovernanceEntry{
			Seq:       int64(i + 1),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Action:    "approve",
			Notes:     "entry",
			Multisig:  ledger.Multisig{Required: 3, Approvals: 3},
			PrevTag:   prev,
		}
		e.IntegrityTag = ledger.ComputeTag(&e)
		entries = append(entries, e)
		prev = e.IntegrityTag
	}
	return entries
}

func TestVerifyChain_empty(t *testing.T) {
	if err := ledger.VerifyChain(nil); err != nil {
		t.Errorf("VerifyChain(nil) = %v, want nil", err)
	}
}

func TestVerifyChain_valid(t *testing.T) {
	if err := ledger.VerifyChain(chain(5)); err != nil {
		t.Errorf("VerifyChain on valid chain: %v", err)
	}
}

func TestVerifyChain_firstEntryMustChainFromGenesis(t *testing.T) {
	entries := chain(3)
	entries[0].PrevTag = "deadbeef"
	err := ledger.VerifyChain(entries)
	if !errors.Is(err, ledger.ErrIntegrity) {
		t.Errorf("VerifyChain with broken genesis link = %v, want ErrIntegrity", err)
	}
}

func TestVerifyChain_detectsMutatedEntry(t *testing.T) {
	entries := chain(5)
	entries[2].Notes = "rewritten after the fact"
	err := ledger.VerifyChain(entries)
	if !errors.Is(err, ledger.ErrIntegrity) {
		t.Errorf("VerifyChain with mutated entry = %v, want ErrIntegrity", err)
	}
}

func TestVerifyChain_detectsRecomputedTagViaSuccessor(t *testing.T) {
	// An attacker who edits an entry AND recomputes its tag still breaks the
	// link to the successor entry.
	entries := chain(5)
	entries[2].Notes = "rewritten"
	entries[2].IntegrityTag = ledger.ComputeTag(&entries[2])
	err := ledger.VerifyChain(entries)
	if !errors.Is(err, ledger.ErrIntegrity) {
		t.Errorf("VerifyChain with recomputed tag = %v, want ErrIntegrity", err)
	}
}

func TestVerifyChain_detectsReorder(t *testing.T) {
	entries := chain(4)
	entries[1], entries[2] = entries[2], entries[1]
	err := ledger.VerifyChain(entries)
	if !errors.Is(err, ledger.ErrIntegrity) {
		t.Errorf("VerifyChain with reordered entries = %v, want ErrIntegrity", err)
	}
}

func TestComputeTag_deterministic(t *testing.T) {
	e := ledger.GovernanceEntry{
		Seq:       7,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 123456789, time.UTC),
		Action:    "approve",
		Notes:     "cyber event",
		Multisig:  ledger.Multisig{Required: 3, Approvals: 3},
		PrevTag:   ledger.GenesisTag,
	}
	a := ledger.ComputeTag(&e)
	b := ledger.ComputeTag(&e)
	if a != b {
		t.Errorf("ComputeTag is not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("ComputeTag returned %d hex chars, want 64", len(a))
	}

	e.Notes = "different"
	if ledger.ComputeTag(&e) == a {
		t.Error("ComputeTag unchanged after mutating Notes")
	}
}

func TestGenesisTag_shape(t *testing.T) {
	if len(ledger.GenesisTag) != 64 {
		t.Errorf("GenesisTag is %d chars, want 64", len(ledger.GenesisTag))
	}
	for _, r := range ledger.GenesisTag {
		if r != '0' {
			t.Fatalf("GenesisTag contains %q, want all zeros", r)
		}
	}
}
