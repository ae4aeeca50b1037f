package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/ledger"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"github.com/sentinel-reserve/sentinel/internal/storage"
)

var ctx = context.Background()

func normalState(nav int64, liq int) state.SystemState {
	return state.SystemState{Mode: state.ModeNormal, NAV: nav, LiquidityPct: liq}
}

func quorum() ledger.Multisig { return ledger.Multisig{Required: 3, Approvals: 3} }

func TestCurrent_emptyStore(t *testing.T) {
	m := storage.NewMemory()
	_, err := m.Current(ctx)
	if !errors.Is(err, state.ErrNotFound) {
		t.Errorf("Current() on empty store = %v, want ErrNotFound", err)
	}
}

func TestCommit_assignsMonotonicVersions(t *testing.T) {
	m := storage.NewMemory()
	for i := 1; i <= 5; i++ {
		s, err := m.Commit(ctx, normalState(int64(i)*1000, 30))
		if err != nil {
			t.Fatal(err)
		}
		if s.Version != int64(i) {
			t.Errorf("commit %d: version = %d, want %d", i, s.Version, i)
		}
		if s.Timestamp.IsZero() {
			t.Errorf("commit %d: timestamp not assigned", i)
		}
	}
}

func TestCommit_ignoresCallerVersion(t *testing.T) {
	m := storage.NewMemory()
	s, err := m.Commit(ctx, state.SystemState{Mode: state.ModeNormal, NAV: 1, LiquidityPct: 30, Version: 99})
	if err != nil {
		t.Fatal(err)
	}
	if s.Version != 1 {
		t.Errorf("version = %d, want 1 (store-assigned)", s.Version)
	}
}

func TestCommit_rejectsInvalidState(t *testing.T) {
	m := storage.NewMemory()
	cases := []state.SystemState{
		{Mode: state.ModeNormal, NAV: -1, LiquidityPct: 30},
		{Mode: state.ModeNormal, NAV: 1, LiquidityPct: 101},
		{Mode: "panic", NAV: 1, LiquidityPct: 30},
	}
	for i, c := range cases {
		if _, err := m.Commit(ctx, c); err == nil {
			t.Errorf("case %d: Commit accepted invalid state %+v", i, c)
		}
	}
	if _, err := m.Current(ctx); !errors.Is(err, state.ErrNotFound) {
		t.Error("rejected commits must not advance the timeline")
	}
}

func TestCommit_concurrentVersionsNeverSkipOrRepeat(t *testing.T) {
	m := storage.NewMemory()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Commit(ctx, normalState(1000, 30)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	hist, err := m.History(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != n {
		t.Fatalf("history has %d states, want %d", len(hist), n)
	}
	// Newest first: versions n..1 with no gaps.
	for i, s := range hist {
		want := int64(n - i)
		if s.Version != want {
			t.Fatalf("history[%d].Version = %d, want %d", i, s.Version, want)
		}
	}
}

func TestHistory_newestFirstAndLimited(t *testing.T) {
	m := storage.NewMemory()
	for i := 0; i < 10; i++ {
		if _, err := m.Commit(ctx, normalState(1000, 30)); err != nil {
			t.Fatal(err)
		}
	}
	hist, err := m.History(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("History(3) returned %d states", len(hist))
	}
	if hist[0].Version != 10 || hist[2].Version != 8 {
		t.Errorf("History(3) versions = %d..%d, want 10..8", hist[0].Version, hist[2].Version)
	}
}

func TestAppend_chainsGovernanceEntries(t *testing.T) {
	m := storage.NewMemory()

	_, g1, err := m.Append(ctx,
		ledger.AuditEntry{Actor: "op", Action: "reset", PrevState: state.ModeNormal, NextState: state.ModeNormal},
		ledger.GovernanceEntry{Action: "reset_ack", Multisig: quorum()},
	)
	if err != nil {
		t.Fatal(err)
	}
	if g1.PrevTag != ledger.GenesisTag {
		t.Errorf("first entry PrevTag = %q, want GenesisTag", g1.PrevTag)
	}

	_, g2, err := m.Append(ctx,
		ledger.AuditEntry{Actor: "op", Action: "trigger_cyber", PrevState: state.ModeNormal, NextState: state.ModeCyber},
		ledger.GovernanceEntry{Action: "approve", Multisig: quorum()},
	)
	if err != nil {
		t.Fatal(err)
	}
	if g2.PrevTag != g1.IntegrityTag {
		t.Errorf("chain broken: g2.PrevTag = %q, want %q", g2.PrevTag, g1.IntegrityTag)
	}
	if g2.Seq != g1.Seq+1 {
		t.Errorf("seq = %d after %d", g2.Seq, g1.Seq)
	}

	if err := m.VerifyGovernance(ctx); err != nil {
		t.Errorf("VerifyGovernance after appends: %v", err)
	}
	root, err := m.GovernanceRoot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if root != g2.IntegrityTag {
		t.Errorf("GovernanceRoot = %q, want newest tag %q", root, g2.IntegrityTag)
	}
}

func TestAppend_rejectsOverApprovedMultisig(t *testing.T) {
	m := storage.NewMemory()
	_, _, err := m.Append(ctx,
		ledger.AuditEntry{Actor: "op", Action: "reset"},
		ledger.GovernanceEntry{Action: "approve", Multisig: ledger.Multisig{Required: 3, Approvals: 4}},
	)
	if err == nil {
		t.Fatal("Append accepted approvals > required")
	}
}

func TestAppend_tagSurvivesMicrosecondTimestampStorage(t *testing.T) {
	m := storage.NewMemory()

	// A timestamptz column keeps microseconds, so the stored tag must verify
	// against the truncated timestamp a read-back returns.
	ts := time.Date(2026, 8, 30, 12, 0, 0, 123_456_789, time.UTC)
	_, gov, err := m.Append(ctx,
		ledger.AuditEntry{Timestamp: ts, Actor: "op", Action: "reset"},
		ledger.GovernanceEntry{Timestamp: ts, Action: "reset_ack", Multisig: quorum()},
	)
	if err != nil {
		t.Fatal(err)
	}

	if gov.Timestamp.Nanosecond()%1000 != 0 {
		t.Errorf("stored timestamp keeps sub-microsecond precision: %v", gov.Timestamp)
	}
	roundTripped := gov
	roundTripped.Timestamp = roundTripped.Timestamp.Truncate(time.Microsecond)
	if got := ledger.ComputeTag(&roundTripped); got != gov.IntegrityTag {
		t.Errorf("tag after timestamp round trip = %q, want %q", got, gov.IntegrityTag)
	}
	if err := m.VerifyGovernance(ctx); err != nil {
		t.Errorf("VerifyGovernance after nanosecond-timestamp append: %v", err)
	}
}

func TestGovernanceRoot_emptyLedger(t *testing.T) {
	m := storage.NewMemory()
	root, err := m.GovernanceRoot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if root != ledger.GenesisTag {
		t.Errorf("GovernanceRoot on empty ledger = %q, want GenesisTag", root)
	}
}

func TestTransition_atomicSuccess(t *testing.T) {
	m := storage.NewMemory()

	s, a, g, err := m.Transition(ctx,
		normalState(1_001_325_059, 32),
		ledger.AuditEntry{Actor: "op", Action: "reset", PrevState: state.ModeNormal, NextState: state.ModeNormal},
		ledger.GovernanceEntry{Action: "reset_ack", Multisig: quorum()},
	)
	if err != nil {
		t.Fatal(err)
	}
	if s.Version != 1 || a.Seq != 1 || g.Seq != 1 {
		t.Errorf("version/seqs = %d/%d/%d, want 1/1/1", s.Version, a.Seq, g.Seq)
	}
	if g.IntegrityTag == "" {
		t.Error("governance entry has no integrity tag")
	}
}

func TestTransition_failureLeavesNothingBehind(t *testing.T) {
	m := storage.NewMemory()

	_, _, _, err := m.Transition(ctx,
		normalState(1000, 30),
		ledger.AuditEntry{Actor: "op", Action: "reset"},
		ledger.GovernanceEntry{Action: "approve", Multisig: ledger.Multisig{Required: 3, Approvals: 5}},
	)
	if err == nil {
		t.Fatal("Transition accepted invalid governance entry")
	}

	if _, err := m.Current(ctx); !errors.Is(err, state.ErrNotFound) {
		t.Error("failed transition committed a state")
	}
	audits, _ := m.AuditEntries(ctx, 0)
	if len(audits) != 0 {
		t.Errorf("failed transition left %d audit entries", len(audits))
	}
	govs, _ := m.GovernanceEntries(ctx, 0)
	if len(govs) != 0 {
		t.Errorf("failed transition left %d governance entries", len(govs))
	}
}

func TestSnapshot_emptyStore(t *testing.T) {
	m := storage.NewMemory()
	_, _, _, err := m.Snapshot(ctx, 0)
	if !errors.Is(err, state.ErrNotFound) {
		t.Errorf("Snapshot on empty store = %v, want ErrNotFound", err)
	}
}

func TestSnapshot_consistentUnderConcurrentTransitions(t *testing.T) {
	m := storage.NewMemory()

	// Every transition pairs state version N with audit and governance seq N,
	// so any snapshot where they disagree saw a half-landed transition.
	commit := func() {
		_, _, _, err := m.Transition(ctx,
			normalState(1_001_325_059, 32),
			ledger.AuditEntry{Actor: "op", Action: "reset"},
			ledger.GovernanceEntry{Action: "reset_ack", Multisig: quorum()},
		)
		if err != nil {
			t.Error(err)
		}
	}
	commit()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			commit()
		}
	}()

	for {
		st, audits, govs, err := m.Snapshot(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if audits[0].Seq != st.Version {
			t.Fatalf("snapshot pairs state v%d with audit seq %d", st.Version, audits[0].Seq)
		}
		if govs[0].Seq != st.Version {
			t.Fatalf("snapshot pairs state v%d with governance seq %d", st.Version, govs[0].Seq)
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

func TestAuditEntries_newestFirst(t *testing.T) {
	m := storage.NewMemory()
	for _, action := range []string{"reset", "trigger_cyber", "reset"} {
		if _, _, err := m.Append(ctx,
			ledger.AuditEntry{Actor: "op", Action: action},
			ledger.GovernanceEntry{Action: "approve", Multisig: quorum()},
		); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := m.AuditEntries(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("AuditEntries(2) returned %d entries", len(entries))
	}
	if entries[0].Seq != 3 || entries[1].Seq != 2 {
		t.Errorf("entries not newest first: seqs %d, %d", entries[0].Seq, entries[1].Seq)
	}
}
