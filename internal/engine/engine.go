// Package engine applies named transitions — crisis triggers, resets, and
// drift ticks — to the system state. Exactly one committed transition is in
// flight at a time; the engine's write lock guards the combined state-commit
// plus ledger-append unit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/connectors"
	"github.com/sentinel-reserve/sentinel/internal/feed"
	"github.com/sentinel-reserve/sentinel/internal/ledger"
	"github.com/sentinel-reserve/sentinel/internal/scenario"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"github.com/sentinel-reserve/sentinel/internal/storage"
	"go.uber.org/zap"
)

// ErrInvalidTransition is returned when a crisis scenario is triggered while
// the system is not in normal mode. Crises do not stack.
var ErrInvalidTransition = errors.New("crisis can only be triggered from normal mode")

// Baseline is the operator-chosen normal-operations state that reset restores.
type Baseline struct {
	NAV          int64
	LiquidityPct int
}

// DefaultBaseline matches the reference deployment.
var DefaultBaseline = Baseline{NAV: 1_001_325_059, LiquidityPct: 32}

// governanceQuorum is the fixed fully-approved multisig policy recorded with
// every operator transition.
var governanceQuorum = ledger.Multisig{Required: 3, Approvals: 3}

// Engine coordinates all writes to the system state.
type Engine struct {
	mu       sync.Mutex
	store    storage.Store
	baseline Baseline
	external *connectors.Manager // nil = no external side effects
	feed     *feed.Broadcaster   // nil = no live feed
	logger   *zap.Logger
}

// New creates an Engine. external and broadcaster may be nil.
func New(store storage.Store, baseline Baseline, external *connectors.Manager, broadcaster *feed.Broadcaster, logger *zap.Logger) *Engine {
	if baseline == (Baseline{}) {
		baseline = DefaultBaseline
	}
	return &Engine{
		store:    store,
		baseline: baseline,
		external: external,
		feed:     broadcaster,
		logger:   logger,
	}
}

// Trigger applies a named crisis scenario. It fails with ErrInvalidTransition
// unless the current mode is normal, and with scenario.ErrNotFound for an
// unknown id. On success the new state plus one audit and one governance
// entry have been committed atomically.
func (e *Engine) Trigger(ctx context.Context, scenarioID, actor string) (state.SystemState, error) {
	def, err := scenario.Lookup(scenarioID)
	if err != nil {
		return state.SystemState{}, fmt.Errorf("trigger %q: %w", scenarioID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.store.Current(ctx)
	if err != nil {
		return state.SystemState{}, fmt.Errorf("trigger %q: %w", scenarioID, err)
	}
	if current.Mode != state.ModeNormal {
		return state.SystemState{}, fmt.Errorf("trigger %q from mode %q: %w", scenarioID, current.Mode, ErrInvalidTransition)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	next := state.SystemState{
		Mode:         def.Mode,
		NAV:          int64(math.Floor(float64(current.NAV) * def.NAVImpactFactor)),
		LiquidityPct: def.LiquidityTarget,
		Timestamp:    now,
	}
	audit := ledger.AuditEntry{
		Timestamp:    now,
		Actor:        actor,
		Action:       "trigger_" + def.ID,
		PrevState:    current.Mode,
		NextState:    def.Mode,
		NAV:          next.NAV,
		LiquidityPct: next.LiquidityPct,
	}
	gov := ledger.GovernanceEntry{
		Timestamp: now,
		Action:    "approve",
		Notes:     def.Name + " triggered by " + actor,
		Multisig:  governanceQuorum,
	}

	committed, _, _, err := e.store.Transition(ctx, next, audit, gov)
	if err != nil {
		return state.SystemState{}, fmt.Errorf("trigger %q: %w", scenarioID, err)
	}

	e.logger.Info("crisis scenario triggered",
		zap.String("scenario", def.ID),
		zap.String("actor", actor),
		zap.Int64("nav", committed.NAV),
		zap.Int("liquidity_pct", committed.LiquidityPct),
		zap.Int64("version", committed.Version),
	)
	e.afterCommit(ctx, committed, true)
	return committed, nil
}

// Reset restores the baseline state: mode normal, NAV and liquidity at the
// configured baseline. It works from any mode, including an empty store
// (where it seeds version 1), and is idempotent in outcome.
func (e *Engine) Reset(ctx context.Context, actor string) (state.SystemState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prevMode := state.ModeNormal
	if current, err := e.store.Current(ctx); err == nil {
		prevMode = current.Mode
	} else if !errors.Is(err, state.ErrNotFound) {
		return state.SystemState{}, fmt.Errorf("reset: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	next := state.SystemState{
		Mode:         state.ModeNormal,
		NAV:          e.baseline.NAV,
		LiquidityPct: e.baseline.LiquidityPct,
		Timestamp:    now,
	}
	audit := ledger.AuditEntry{
		Timestamp:    now,
		Actor:        actor,
		Action:       "reset",
		PrevState:    prevMode,
		NextState:    state.ModeNormal,
		NAV:          next.NAV,
		LiquidityPct: next.LiquidityPct,
	}
	gov := ledger.GovernanceEntry{
		Timestamp: now,
		Action:    "reset_ack",
		Notes:     "Reset to normal operations by " + actor,
		Multisig:  governanceQuorum,
	}

	committed, _, _, err := e.store.Transition(ctx, next, audit, gov)
	if err != nil {
		return state.SystemState{}, fmt.Errorf("reset: %w", err)
	}

	e.logger.Info("system reset to baseline",
		zap.String("actor", actor),
		zap.String("prev_mode", string(prevMode)),
		zap.Int64("version", committed.Version),
	)
	e.afterCommit(ctx, committed, false)
	return committed, nil
}

// afterCommit runs the post-commit side effects: live-feed publish and, for
// crisis triggers, the custody freeze and compliance screen. These are
// deliberately outside the atomic unit — a collaborator failure here must
// not unwind a committed transition.
func (e *Engine) afterCommit(ctx context.Context, committed state.SystemState, crisis bool) {
	if e.feed != nil {
		e.feed.Publish(feed.FromState(committed))
	}
	if crisis && e.external != nil {
		e.external.EmergencyFreeze(ctx, "treasury")
		e.external.Screen(ctx, fmt.Sprintf("state-v%d", committed.Version), committed.NAV)
	}
}
