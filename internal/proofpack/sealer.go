package proofpack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/sentinel-reserve/sentinel/internal/ledger"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"go.uber.org/zap"
)

// DefaultSnapshotLimit is the number of entries taken from each ledger when
// sealing, unless overridden.
const DefaultSnapshotLimit = 100

// Snapshotter reads the current state plus the newest entries of both
// ledgers as one consistent view: no transition may land between the three
// reads, or a sealed pack could carry ledger entries newer than its state.
type Snapshotter interface {
	Snapshot(ctx context.Context, limit int) (state.SystemState, []ledger.AuditEntry, []ledger.GovernanceEntry, error)
}

// Sealer snapshots the state store and ledgers into sealed packs. It is a
// read path only: it never mutates the state store or the ledgers.
type Sealer struct {
	source Snapshotter
	packs  Store
	secret []byte
	limit  int
	logger *zap.Logger
}

// NewSealer creates a Sealer. The secret keys the pack authentication tag and
// must never be embedded in exported bundles.
func NewSealer(source Snapshotter, packs Store, secret []byte, logger *zap.Logger) *Sealer {
	return &Sealer{
		source: source,
		packs:  packs,
		secret: secret,
		limit:  DefaultSnapshotLimit,
		logger: logger,
	}
}

// SetSnapshotLimit overrides the per-ledger snapshot size.
func (s *Sealer) SetSnapshotLimit(n int) {
	if n > 0 {
		s.limit = n
	}
}

// payload is the canonicalised portion of a pack — everything ContentHash
// covers. Field order here is irrelevant: RFC 8785 sorts keys.
type payload struct {
	ID          string                   `json:"id"`
	GeneratedAt time.Time                `json:"generated_at"`
	State       state.SystemState        `json:"system_state"`
	Audit       []ledger.AuditEntry      `json:"audit_log"`
	Governance  []ledger.GovernanceEntry `json:"governance_log"`
}

// canonicalHash returns the SHA-256 hex digest of the RFC 8785 canonical JSON
// of p. Determinism matters: the same logical inputs must always reproduce
// the same hash.
func canonicalHash(p payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal pack payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalise pack payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// authTag binds a content hash to the shared secret.
func authTag(secret []byte, contentHash string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(contentHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// Seal snapshots the current state plus recent ledger entries, computes the
// content hash and authentication tag, persists the pack, and returns it.
func (s *Sealer) Seal(ctx context.Context) (*Pack, error) {
	current, audits, govs, err := s.source.Snapshot(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("seal: snapshot store: %w", err)
	}

	p := payload{
		ID: uuid.New().String(),
		// Microsecond precision: a timestamptz round trip must not change
		// the content hash.
		GeneratedAt: time.Now().UTC().Truncate(time.Microsecond),
		State:       current,
		Audit:       audits,
		Governance:  govs,
	}
	contentHash, err := canonicalHash(p)
	if err != nil {
		return nil, err
	}

	pack := &Pack{
		ID:          p.ID,
		GeneratedAt: p.GeneratedAt,
		State:       p.State,
		Audit:       p.Audit,
		Governance:  p.Governance,
		ContentHash: contentHash,
		AuthTag:     authTag(s.secret, contentHash),
	}
	if err := s.packs.SavePack(ctx, pack); err != nil {
		return nil, fmt.Errorf("seal: persist pack: %w", err)
	}

	s.logger.Info("proof pack sealed",
		zap.String("id", pack.ID),
		zap.String("content_hash", pack.ContentHash),
		zap.Int("audit_entries", len(pack.Audit)),
		zap.Int("governance_entries", len(pack.Governance)),
	)
	return pack, nil
}

// VerifyPack recomputes the content hash from the pack's embedded snapshots
// and the authentication tag from that hash and the shared secret, and
// compares both against the stored values. It needs no server-side state, so
// exported bundles can be verified offline.
func VerifyPack(pack *Pack, secret []byte) Verdict {
	contentHash, err := canonicalHash(payload{
		ID:          pack.ID,
		GeneratedAt: pack.GeneratedAt,
		State:       pack.State,
		Audit:       pack.Audit,
		Governance:  pack.Governance,
	})
	if err != nil || contentHash != pack.ContentHash {
		return VerdictTamperedContent
	}
	if !hmac.Equal([]byte(authTag(secret, contentHash)), []byte(pack.AuthTag)) {
		return VerdictTamperedTag
	}
	return VerdictValid
}

// Verify checks a pack against the sealer's own secret.
func (s *Sealer) Verify(pack *Pack) Verdict {
	return VerifyPack(pack, s.secret)
}

// Get returns a previously sealed pack by id.
func (s *Sealer) Get(ctx context.Context, id string) (*Pack, error) {
	return s.packs.GetPack(ctx, id)
}

// List returns up to limit sealed packs, newest first.
func (s *Sealer) List(ctx context.Context, limit int) ([]*Pack, error) {
	return s.packs.ListPacks(ctx, limit)
}
