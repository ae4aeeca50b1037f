package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sentinel-reserve/sentinel/internal/ledger"
	"github.com/sentinel-reserve/sentinel/internal/proofpack"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"go.uber.org/zap"
)

// advisoryLockKey serialises all writers — state commits, ledger appends, and
// combined transitions — with a transaction-scoped PostgreSQL advisory lock.
// The value is arbitrary but must be consistent across all instances.
const advisoryLockKey = int64(7_421_090_331)

// Postgres persists the state timeline, both ledgers, and sealed proof packs
// to PostgreSQL. Ledger immutability is enforced by the schema: the migration
// installs triggers that reject UPDATE and DELETE on ledger tables.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a Postgres store backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

// ── state.Store ──────────────────────────────────────────────────────────

// Current implements state.Store.
func (p *Postgres) Current(ctx context.Context) (state.SystemState, error) {
	var s state.SystemState
	err := p.pool.QueryRow(ctx,
		`SELECT mode, nav, liquidity_pct, ts, version
		 FROM system_states ORDER BY version DESC LIMIT 1`,
	).Scan(&s.Mode, &s.NAV, &s.LiquidityPct, &s.Timestamp, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return state.SystemState{}, state.ErrNotFound
	}
	if err != nil {
		return state.SystemState{}, fmt.Errorf("read current state: %w", err)
	}
	return s, nil
}

// Commit implements state.Store.
func (p *Postgres) Commit(ctx context.Context, candidate state.SystemState) (state.SystemState, error) {
	tx, err := p.begin(ctx)
	if err != nil {
		return state.SystemState{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	committed, err := p.commitTx(ctx, tx, candidate)
	if err != nil {
		return state.SystemState{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return state.SystemState{}, fmt.Errorf("commit state tx: %w", err)
	}
	return committed, nil
}

// History implements state.Store.
func (p *Postgres) History(ctx context.Context, limit int) ([]state.SystemState, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT mode, nav, liquidity_pct, ts, version
		 FROM system_states ORDER BY version DESC LIMIT $1`, nullableLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query state history: %w", err)
	}
	defer rows.Close()

	var out []state.SystemState
	for rows.Next() {
		var s state.SystemState
		if err := rows.Scan(&s.Mode, &s.NAV, &s.LiquidityPct, &s.Timestamp, &s.Version); err != nil {
			return nil, fmt.Errorf("scan state row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ── ledger.Writer ────────────────────────────────────────────────────────

// Append implements ledger.Writer.
func (p *Postgres) Append(ctx context.Context, audit ledger.AuditEntry, gov ledger.GovernanceEntry) (ledger.AuditEntry, ledger.GovernanceEntry, error) {
	tx, err := p.begin(ctx)
	if err != nil {
		return ledger.AuditEntry{}, ledger.GovernanceEntry{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	auditOut, govOut, err := p.appendTx(ctx, tx, audit, gov)
	if err != nil {
		return ledger.AuditEntry{}, ledger.GovernanceEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.AuditEntry{}, ledger.GovernanceEntry{}, fmt.Errorf("commit ledger tx: %w", err)
	}
	return auditOut, govOut, nil
}

// AuditEntries implements ledger.Writer.
func (p *Postgres) AuditEntries(ctx context.Context, limit int) ([]ledger.AuditEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT seq, ts, actor, action, prev_state, next_state, nav, liquidity_pct
		 FROM audit_ledger ORDER BY seq DESC LIMIT $1`, nullableLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query audit ledger: %w", err)
	}
	defer rows.Close()
	return scanAudit(rows)
}

// GovernanceEntries implements ledger.Writer.
func (p *Postgres) GovernanceEntries(ctx context.Context, limit int) ([]ledger.GovernanceEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT seq, ts, action, notes, required, approvals, prev_tag, integrity_tag
		 FROM governance_ledger ORDER BY seq DESC LIMIT $1`, nullableLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query governance ledger: %w", err)
	}
	defer rows.Close()
	return scanGovernance(rows)
}

// VerifyGovernance implements ledger.Writer. It streams the entire chain in
// ascending order and recomputes every tag from genesis. O(n) in ledger size.
func (p *Postgres) VerifyGovernance(ctx context.Context) error {
	rows, err := p.pool.Query(ctx,
		`SELECT seq, ts, action, notes, required, approvals, prev_tag, integrity_tag
		 FROM governance_ledger ORDER BY seq ASC`,
	)
	if err != nil {
		return fmt.Errorf("query governance ledger: %w", err)
	}
	defer rows.Close()

	entries, err := scanGovernance(rows)
	if err != nil {
		return err
	}
	return ledger.VerifyChain(entries)
}

// GovernanceRoot implements ledger.Writer.
func (p *Postgres) GovernanceRoot(ctx context.Context) (string, error) {
	var tag string
	err := p.pool.QueryRow(ctx,
		"SELECT integrity_tag FROM governance_ledger ORDER BY seq DESC LIMIT 1",
	).Scan(&tag)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.GenesisTag, nil
	}
	if err != nil {
		return "", fmt.Errorf("read governance root: %w", err)
	}
	return tag, nil
}

// ── combined unit of work ────────────────────────────────────────────────

// Transition implements Store. The state insert and both ledger appends run
// inside a single advisory-locked transaction, so a failure at any point
// rolls everything back.
func (p *Postgres) Transition(ctx context.Context, next state.SystemState, audit ledger.AuditEntry, gov ledger.GovernanceEntry) (state.SystemState, ledger.AuditEntry, ledger.GovernanceEntry, error) {
	tx, err := p.begin(ctx)
	if err != nil {
		return state.SystemState{}, ledger.AuditEntry{}, ledger.GovernanceEntry{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	committed, err := p.commitTx(ctx, tx, next)
	if err != nil {
		return state.SystemState{}, ledger.AuditEntry{}, ledger.GovernanceEntry{}, err
	}
	auditOut, govOut, err := p.appendTx(ctx, tx, audit, gov)
	if err != nil {
		return state.SystemState{}, ledger.AuditEntry{}, ledger.GovernanceEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return state.SystemState{}, ledger.AuditEntry{}, ledger.GovernanceEntry{}, fmt.Errorf("commit transition tx: %w", err)
	}

	p.logger.Debug("transition committed",
		zap.Int64("version", committed.Version),
		zap.String("mode", string(committed.Mode)),
		zap.String("action", auditOut.Action),
	)
	return committed, auditOut, govOut, nil
}

// Snapshot implements Store. A repeatable-read transaction pins one database
// snapshot for all three reads, so a transition landing mid-seal cannot
// produce ledger entries newer than the returned state.
func (p *Postgres) Snapshot(ctx context.Context, limit int) (state.SystemState, []ledger.AuditEntry, []ledger.GovernanceEntry, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return state.SystemState{}, nil, nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var s state.SystemState
	err = tx.QueryRow(ctx,
		`SELECT mode, nav, liquidity_pct, ts, version
		 FROM system_states ORDER BY version DESC LIMIT 1`,
	).Scan(&s.Mode, &s.NAV, &s.LiquidityPct, &s.Timestamp, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return state.SystemState{}, nil, nil, state.ErrNotFound
	}
	if err != nil {
		return state.SystemState{}, nil, nil, fmt.Errorf("read current state: %w", err)
	}

	auditRows, err := tx.Query(ctx,
		`SELECT seq, ts, actor, action, prev_state, next_state, nav, liquidity_pct
		 FROM audit_ledger ORDER BY seq DESC LIMIT $1`, nullableLimit(limit),
	)
	if err != nil {
		return state.SystemState{}, nil, nil, fmt.Errorf("query audit ledger: %w", err)
	}
	audits, err := scanAudit(auditRows)
	if err != nil {
		return state.SystemState{}, nil, nil, err
	}

	govRows, err := tx.Query(ctx,
		`SELECT seq, ts, action, notes, required, approvals, prev_tag, integrity_tag
		 FROM governance_ledger ORDER BY seq DESC LIMIT $1`, nullableLimit(limit),
	)
	if err != nil {
		return state.SystemState{}, nil, nil, fmt.Errorf("query governance ledger: %w", err)
	}
	govs, err := scanGovernance(govRows)
	if err != nil {
		return state.SystemState{}, nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return state.SystemState{}, nil, nil, fmt.Errorf("close snapshot tx: %w", err)
	}
	return s, audits, govs, nil
}

// ── proofpack.Store ──────────────────────────────────────────────────────

// SavePack implements proofpack.Store.
func (p *Postgres) SavePack(ctx context.Context, pack *proofpack.Pack) error {
	stateJSON, err := json.Marshal(pack.State)
	if err != nil {
		return fmt.Errorf("marshal pack state: %w", err)
	}
	auditJSON, err := json.Marshal(pack.Audit)
	if err != nil {
		return fmt.Errorf("marshal pack audit: %w", err)
	}
	govJSON, err := json.Marshal(pack.Governance)
	if err != nil {
		return fmt.Errorf("marshal pack governance: %w", err)
	}
	if _, err := p.pool.Exec(ctx,
		`INSERT INTO proof_packs (id, generated_at, state, audit, governance, content_hash, auth_tag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pack.ID, pack.GeneratedAt, stateJSON, auditJSON, govJSON, pack.ContentHash, pack.AuthTag,
	); err != nil {
		return fmt.Errorf("insert proof pack: %w", err)
	}
	return nil
}

// GetPack implements proofpack.Store.
func (p *Postgres) GetPack(ctx context.Context, id string) (*proofpack.Pack, error) {
	pack := &proofpack.Pack{}
	var stateJSON, auditJSON, govJSON []byte
	err := p.pool.QueryRow(ctx,
		`SELECT id, generated_at, state, audit, governance, content_hash, auth_tag
		 FROM proof_packs WHERE id = $1`, id,
	).Scan(&pack.ID, &pack.GeneratedAt, &stateJSON, &auditJSON, &govJSON, &pack.ContentHash, &pack.AuthTag)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, proofpack.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proof pack %s: %w", id, err)
	}
	if err := unmarshalPack(pack, stateJSON, auditJSON, govJSON); err != nil {
		return nil, err
	}
	return pack, nil
}

// ListPacks implements proofpack.Store.
func (p *Postgres) ListPacks(ctx context.Context, limit int) ([]*proofpack.Pack, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, generated_at, state, audit, governance, content_hash, auth_tag
		 FROM proof_packs ORDER BY generated_at DESC LIMIT $1`, nullableLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query proof packs: %w", err)
	}
	defer rows.Close()

	var out []*proofpack.Pack
	for rows.Next() {
		pack := &proofpack.Pack{}
		var stateJSON, auditJSON, govJSON []byte
		if err := rows.Scan(&pack.ID, &pack.GeneratedAt, &stateJSON, &auditJSON, &govJSON,
			&pack.ContentHash, &pack.AuthTag); err != nil {
			return nil, fmt.Errorf("scan proof pack row: %w", err)
		}
		if err := unmarshalPack(pack, stateJSON, auditJSON, govJSON); err != nil {
			return nil, err
		}
		out = append(out, pack)
	}
	return out, rows.Err()
}

// ── helpers ──────────────────────────────────────────────────────────────

func (p *Postgres) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	// The lock is released automatically when the transaction ends.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return tx, nil
}

func (p *Postgres) commitTx(ctx context.Context, tx pgx.Tx, candidate state.SystemState) (state.SystemState, error) {
	if err := candidate.Validate(); err != nil {
		return state.SystemState{}, fmt.Errorf("commit state: %w", err)
	}

	var prev int64
	err := tx.QueryRow(ctx, "SELECT version FROM system_states ORDER BY version DESC LIMIT 1").Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return state.SystemState{}, fmt.Errorf("read state tail: %w", err)
	}

	candidate.Version = prev + 1
	if candidate.Timestamp.IsZero() {
		candidate.Timestamp = time.Now().UTC()
	}
	candidate.Timestamp = candidate.Timestamp.UTC().Truncate(time.Microsecond)
	if _, err := tx.Exec(ctx,
		`INSERT INTO system_states (version, mode, nav, liquidity_pct, ts)
		 VALUES ($1, $2, $3, $4, $5)`,
		candidate.Version, candidate.Mode, candidate.NAV, candidate.LiquidityPct, candidate.Timestamp,
	); err != nil {
		return state.SystemState{}, fmt.Errorf("insert state: %w", err)
	}
	return candidate, nil
}

func (p *Postgres) appendTx(ctx context.Context, tx pgx.Tx, audit ledger.AuditEntry, gov ledger.GovernanceEntry) (ledger.AuditEntry, ledger.GovernanceEntry, error) {
	if gov.Multisig.Approvals > gov.Multisig.Required {
		return ledger.AuditEntry{}, ledger.GovernanceEntry{},
			fmt.Errorf("append governance entry: approvals %d exceed required %d", gov.Multisig.Approvals, gov.Multisig.Required)
	}
	now := time.Now().UTC()

	// Audit tail.
	var auditTail int64
	err := tx.QueryRow(ctx, "SELECT seq FROM audit_ledger ORDER BY seq DESC LIMIT 1").Scan(&auditTail)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return ledger.AuditEntry{}, ledger.GovernanceEntry{}, fmt.Errorf("read audit tail: %w", err)
	}
	audit.Seq = auditTail + 1
	if audit.Timestamp.IsZero() {
		audit.Timestamp = now
	}
	// timestamptz keeps microseconds; the integrity tag must hash exactly
	// what a read-back returns.
	audit.Timestamp = audit.Timestamp.UTC().Truncate(time.Microsecond)
	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_ledger (seq, ts, actor, action, prev_state, next_state, nav, liquidity_pct)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		audit.Seq, audit.Timestamp, audit.Actor, audit.Action,
		audit.PrevState, audit.NextState, audit.NAV, audit.LiquidityPct,
	); err != nil {
		return ledger.AuditEntry{}, ledger.GovernanceEntry{}, fmt.Errorf("insert audit entry: %w", err)
	}

	// Governance tail: both the seq and the previous tag feed the new tag.
	var govTail int64
	prevTag := ledger.GenesisTag
	err = tx.QueryRow(ctx,
		"SELECT seq, integrity_tag FROM governance_ledger ORDER BY seq DESC LIMIT 1",
	).Scan(&govTail, &prevTag)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return ledger.AuditEntry{}, ledger.GovernanceEntry{}, fmt.Errorf("read governance tail: %w", err)
	}
	gov.Seq = govTail + 1
	if gov.Timestamp.IsZero() {
		gov.Timestamp = now
	}
	gov.Timestamp = gov.Timestamp.UTC().Truncate(time.Microsecond)
	gov.PrevTag = prevTag
	gov.IntegrityTag = ledger.ComputeTag(&gov)
	if _, err := tx.Exec(ctx,
		`INSERT INTO governance_ledger (seq, ts, action, notes, required, approvals, prev_tag, integrity_tag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		gov.Seq, gov.Timestamp, gov.Action, gov.Notes,
		gov.Multisig.Required, gov.Multisig.Approvals, gov.PrevTag, gov.IntegrityTag,
	); err != nil {
		return ledger.AuditEntry{}, ledger.GovernanceEntry{}, fmt.Errorf("insert governance entry: %w", err)
	}

	return audit, gov, nil
}

func scanAudit(rows pgx.Rows) ([]ledger.AuditEntry, error) {
	var out []ledger.AuditEntry
	for rows.Next() {
		var e ledger.AuditEntry
		if err := rows.Scan(&e.Seq, &e.Timestamp, &e.Actor, &e.Action,
			&e.PrevState, &e.NextState, &e.NAV, &e.LiquidityPct); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanGovernance(rows pgx.Rows) ([]ledger.GovernanceEntry, error) {
	var out []ledger.GovernanceEntry
	for rows.Next() {
		var e ledger.GovernanceEntry
		if err := rows.Scan(&e.Seq, &e.Timestamp, &e.Action, &e.Notes,
			&e.Multisig.Required, &e.Multisig.Approvals, &e.PrevTag, &e.IntegrityTag); err != nil {
			return nil, fmt.Errorf("scan governance row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func unmarshalPack(pack *proofpack.Pack, stateJSON, auditJSON, govJSON []byte) error {
	if err := json.Unmarshal(stateJSON, &pack.State); err != nil {
		return fmt.Errorf("decode pack state: %w", err)
	}
	if err := json.Unmarshal(auditJSON, &pack.Audit); err != nil {
		return fmt.Errorf("decode pack audit: %w", err)
	}
	if err := json.Unmarshal(govJSON, &pack.Governance); err != nil {
		return fmt.Errorf("decode pack governance: %w", err)
	}
	return nil
}

// nullableLimit converts limit <= 0 into SQL NULL, which LIMIT treats as
// "no limit".
func nullableLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
