// Package scenario holds the static catalog of named crisis scenarios.
// The catalog is read-only and populated at process start; reset is not a
// scenario — it is handled directly by the transition engine.
package scenario

import (
	"errors"
	"sort"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/state"
)

// ErrNotFound is returned by Lookup for an unknown scenario id.
var ErrNotFound = errors.New("unknown crisis scenario")

// Severity classifies the expected operational impact of a scenario.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Definition is a predefined crisis template with fixed impact parameters.
type Definition struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	NAVImpactFactor float64       `json:"nav_impact_factor"` // multiplicative: 0.85 = 15% drop
	LiquidityTarget int           `json:"liquidity_target"`  // absolute target percentage
	Mode            state.Mode    `json:"mode"`              // mode entered when triggered
	Duration        time.Duration `json:"duration"`          // estimated duration
	Severity        Severity      `json:"severity"`
	Triggers        []string      `json:"triggers"`
	Mitigations     []string      `json:"mitigations"`
}

var catalog = map[string]Definition{
	"cyber": {
		ID:              "cyber",
		Name:            "Cyber Security Event",
		Description:     "Coordinated cyber attack on critical infrastructure",
		NAVImpactFactor: 0.85,
		LiquidityTarget: 15,
		Mode:            state.ModeCyber,
		Duration:        2 * time.Hour,
		Severity:        SeverityHigh,
		Triggers:        []string{"Unauthorized access detected", "Data integrity compromise", "System availability impact"},
		Mitigations:     []string{"Isolate affected systems", "Activate backup infrastructure", "Implement emergency protocols"},
	},
	"liquidity": {
		ID:              "liquidity",
		Name:            "Liquidity Freeze",
		Description:     "Market-wide liquidity constraints affecting operations",
		NAVImpactFactor: 0.92,
		LiquidityTarget: 8,
		Mode:            state.ModeLiquidity,
		Duration:        3 * time.Hour,
		Severity:        SeverityMedium,
		Triggers:        []string{"Market volatility spike", "Credit facility restrictions", "Counterparty risk elevation"},
		Mitigations:     []string{"Activate emergency credit lines", "Reduce non-essential operations", "Implement capital preservation measures"},
	},
	"lender-pull": {
		ID:              "lender-pull",
		Name:            "Lender Credit Pull",
		Description:     "Major lenders withdrawing credit facilities",
		NAVImpactFactor: 0.78,
		LiquidityTarget: 5,
		Mode:            state.ModeLiquidity,
		Duration:        4 * time.Hour,
		Severity:        SeverityCritical,
		Triggers:        []string{"Credit rating downgrade", "Covenant breach", "Market confidence loss"},
		Mitigations:     []string{"Emergency funding activation", "Asset liquidation protocols", "Stakeholder communication plan"},
	},
}

// Lookup returns the scenario definition for id, or ErrNotFound.
func Lookup(id string) (Definition, error) {
	def, ok := catalog[id]
	if !ok {
		return Definition{}, ErrNotFound
	}
	return def, nil
}

// All returns every scenario definition, sorted by id.
func All() []Definition {
	defs := make([]Definition, 0, len(catalog))
	for _, d := range catalog {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}
