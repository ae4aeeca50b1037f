package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/ledger"
	"github.com/sentinel-reserve/sentinel/internal/proofpack"
	"github.com/sentinel-reserve/sentinel/internal/state"
)

// Memory is an in-memory, thread-safe Store. It is used for tests and for
// single-process deployments that do not need persistence across restarts.
type Memory struct {
	mu        sync.RWMutex
	states    []state.SystemState
	audits    []ledger.AuditEntry
	govs      []ledger.GovernanceEntry
	packs     map[string]*proofpack.Pack
	packOrder []string // ids in seal order, oldest first
}

// NewMemory creates an empty Memory store. The state timeline starts empty;
// Current returns state.ErrNotFound until the first commit.
func NewMemory() *Memory {
	return &Memory{packs: make(map[string]*proofpack.Pack)}
}

// ── state.Store ──────────────────────────────────────────────────────────

// Current implements state.Store.
func (m *Memory) Current(_ context.Context) (state.SystemState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.states) == 0 {
		return state.SystemState{}, state.ErrNotFound
	}
	return m.states[len(m.states)-1], nil
}

// Commit implements state.Store.
func (m *Memory) Commit(_ context.Context, candidate state.SystemState) (state.SystemState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLocked(candidate)
}

func (m *Memory) commitLocked(candidate state.SystemState) (state.SystemState, error) {
	if err := candidate.Validate(); err != nil {
		return state.SystemState{}, fmt.Errorf("commit state: %w", err)
	}
	candidate.Version = int64(len(m.states)) + 1
	if candidate.Timestamp.IsZero() {
		candidate.Timestamp = time.Now().UTC()
	}
	candidate.Timestamp = candidate.Timestamp.UTC().Truncate(time.Microsecond)
	m.states = append(m.states, candidate)
	return candidate, nil
}

// History implements state.Store.
func (m *Memory) History(_ context.Context, limit int) ([]state.SystemState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.states)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]state.SystemState, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.states[i])
	}
	return out, nil
}

// ── ledger.Writer ────────────────────────────────────────────────────────

// Append implements ledger.Writer.
func (m *Memory) Append(_ context.Context, audit ledger.AuditEntry, gov ledger.GovernanceEntry) (ledger.AuditEntry, ledger.GovernanceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(audit, gov)
}

func (m *Memory) appendLocked(audit ledger.AuditEntry, gov ledger.GovernanceEntry) (ledger.AuditEntry, ledger.GovernanceEntry, error) {
	if gov.Multisig.Approvals > gov.Multisig.Required {
		return ledger.AuditEntry{}, ledger.GovernanceEntry{},
			fmt.Errorf("append governance entry: approvals %d exceed required %d", gov.Multisig.Approvals, gov.Multisig.Required)
	}

	// Timestamps are stored at microsecond precision on both drivers: a
	// timestamptz column keeps microseconds, and the integrity tag must hash
	// exactly what a read-back returns.
	audit.Seq = int64(len(m.audits)) + 1
	if audit.Timestamp.IsZero() {
		audit.Timestamp = time.Now().UTC()
	}
	audit.Timestamp = audit.Timestamp.UTC().Truncate(time.Microsecond)

	gov.Seq = int64(len(m.govs)) + 1
	if gov.Timestamp.IsZero() {
		gov.Timestamp = time.Now().UTC()
	}
	gov.Timestamp = gov.Timestamp.UTC().Truncate(time.Microsecond)
	gov.PrevTag = ledger.GenesisTag
	if n := len(m.govs); n > 0 {
		gov.PrevTag = m.govs[n-1].IntegrityTag
	}
	gov.IntegrityTag = ledger.ComputeTag(&gov)

	m.audits = append(m.audits, audit)
	m.govs = append(m.govs, gov)
	return audit, gov, nil
}

// AuditEntries implements ledger.Writer. Entries come back newest first.
func (m *Memory) AuditEntries(_ context.Context, limit int) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auditTailLocked(limit), nil
}

// GovernanceEntries implements ledger.Writer. Entries come back newest first.
func (m *Memory) GovernanceEntries(_ context.Context, limit int) ([]ledger.GovernanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.govTailLocked(limit), nil
}

func (m *Memory) auditTailLocked(limit int) []ledger.AuditEntry {
	n := len(m.audits)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ledger.AuditEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.audits[i])
	}
	return out
}

func (m *Memory) govTailLocked(limit int) []ledger.GovernanceEntry {
	n := len(m.govs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ledger.GovernanceEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.govs[i])
	}
	return out
}

// VerifyGovernance implements ledger.Writer.
func (m *Memory) VerifyGovernance(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ledger.VerifyChain(m.govs)
}

// GovernanceRoot implements ledger.Writer.
func (m *Memory) GovernanceRoot(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.govs) == 0 {
		return ledger.GenesisTag, nil
	}
	return m.govs[len(m.govs)-1].IntegrityTag, nil
}

// ── combined unit of work ────────────────────────────────────────────────

// Transition implements Store. Everything is validated before the first
// mutation, so under the single lock the three appends either all happen or
// none do.
func (m *Memory) Transition(_ context.Context, next state.SystemState, audit ledger.AuditEntry, gov ledger.GovernanceEntry) (state.SystemState, ledger.AuditEntry, ledger.GovernanceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := next.Validate(); err != nil {
		return state.SystemState{}, ledger.AuditEntry{}, ledger.GovernanceEntry{},
			fmt.Errorf("transition: %w", err)
	}
	if gov.Multisig.Approvals > gov.Multisig.Required {
		return state.SystemState{}, ledger.AuditEntry{}, ledger.GovernanceEntry{},
			fmt.Errorf("transition: approvals %d exceed required %d", gov.Multisig.Approvals, gov.Multisig.Required)
	}

	committed, err := m.commitLocked(next)
	if err != nil {
		return state.SystemState{}, ledger.AuditEntry{}, ledger.GovernanceEntry{}, err
	}
	auditOut, govOut, err := m.appendLocked(audit, gov)
	if err != nil {
		// Roll the state commit back; nothing else has landed yet.
		m.states = m.states[:len(m.states)-1]
		return state.SystemState{}, ledger.AuditEntry{}, ledger.GovernanceEntry{}, err
	}
	return committed, auditOut, govOut, nil
}

// Snapshot implements Store. The single read lock spans all three reads, so
// a transition can never be half-visible in the result.
func (m *Memory) Snapshot(_ context.Context, limit int) (state.SystemState, []ledger.AuditEntry, []ledger.GovernanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.states) == 0 {
		return state.SystemState{}, nil, nil, state.ErrNotFound
	}
	return m.states[len(m.states)-1], m.auditTailLocked(limit), m.govTailLocked(limit), nil
}

// ── proofpack.Store ──────────────────────────────────────────────────────

// SavePack implements proofpack.Store.
func (m *Memory) SavePack(_ context.Context, p *proofpack.Pack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.packs[p.ID]; exists {
		return fmt.Errorf("proof pack %s already sealed", p.ID)
	}
	cp := *p
	m.packs[p.ID] = &cp
	m.packOrder = append(m.packOrder, p.ID)
	return nil
}

// GetPack implements proofpack.Store.
func (m *Memory) GetPack(_ context.Context, id string) (*proofpack.Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.packs[id]
	if !ok {
		return nil, proofpack.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPacks implements proofpack.Store. Packs come back newest first.
func (m *Memory) ListPacks(_ context.Context, limit int) ([]*proofpack.Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.packOrder)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*proofpack.Pack, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *m.packs[m.packOrder[i]]
		out = append(out, &cp)
	}
	return out, nil
}
