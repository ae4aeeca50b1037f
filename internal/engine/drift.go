package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/feed"
	"github.com/sentinel-reserve/sentinel/internal/state"
	"go.uber.org/zap"
)

// Drift parameters for normal operations. NAV moves by a signed factor within
// ±0.01% per tick, liquidity within ±0.2%, with hard bounds on both.
const (
	navDriftBound       = 0.0001 // ±0.01%
	liquidityDriftBound = 0.002  // ±0.2%
	// navFloorFactor caps a single-tick NAV drop at 5%. Slack at the
	// current navDriftBound; it only binds if the bound is ever raised.
	navFloorFactor = 0.95
	liquidityMin        = 25
	liquidityMax        = 35
	navNoiseFloor       = 0.00001 // commit only when relative NAV change > 0.001%
	liquidityNoiseFloor = 0.001   // or relative liquidity change > 0.1%
)

// DriftTick perturbs NAV and liquidity by a small random amount while the
// system is in normal mode. It commits a new state only when the change
// clears the noise floor; sub-noise ticks and non-normal modes are no-ops.
// Drift writes no ledger entries.
//
// A tick that arrives while an operator transition holds the write lock is
// skipped entirely — drift is best-effort and the next tick covers it.
func (e *Engine) DriftTick(ctx context.Context) (state.SystemState, bool, error) {
	if !e.mu.TryLock() {
		return state.SystemState{}, false, nil
	}
	defer e.mu.Unlock()

	current, err := e.store.Current(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return state.SystemState{}, false, nil
		}
		return state.SystemState{}, false, err
	}
	if current.Mode != state.ModeNormal {
		return state.SystemState{}, false, nil
	}

	navFactor := 1 + (rand.Float64()*2-1)*navDriftBound
	liqFactor := 1 + (rand.Float64()*2-1)*liquidityDriftBound

	newNAV := math.Max(float64(current.NAV)*navFactor, float64(current.NAV)*navFloorFactor)
	newLiq := math.Min(math.Max(float64(current.LiquidityPct)*liqFactor, liquidityMin), liquidityMax)

	nextNAV := int64(math.Floor(newNAV))
	nextLiq := int(math.Round(newLiq))

	navChange := 1.0
	if current.NAV > 0 {
		navChange = math.Abs(float64(nextNAV-current.NAV)) / float64(current.NAV)
	}
	liqChange := 1.0
	if current.LiquidityPct > 0 {
		liqChange = math.Abs(float64(nextLiq-current.LiquidityPct)) / float64(current.LiquidityPct)
	}
	if navChange <= navNoiseFloor && liqChange <= liquidityNoiseFloor {
		return state.SystemState{}, false, nil
	}

	committed, err := e.store.Commit(ctx, state.SystemState{
		Mode:         state.ModeNormal,
		NAV:          nextNAV,
		LiquidityPct: nextLiq,
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		return state.SystemState{}, false, err
	}
	if e.feed != nil {
		e.feed.Publish(feed.FromState(committed))
	}
	return committed, true, nil
}

// RunDrift applies drift ticks on the given interval until ctx is cancelled.
func (e *Engine) RunDrift(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, _, err := e.DriftTick(ctx); err != nil {
				e.logger.Warn("drift tick failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
