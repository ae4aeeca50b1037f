package connectors

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthResult reports one connector's responsiveness.
type HealthResult struct {
	Status    string `json:"status"` // healthy or error
	LatencyMS int64  `json:"latency_ms"`
}

// HealthReport aggregates connector health probes.
type HealthReport struct {
	Custody    HealthResult `json:"custody"`
	Compliance HealthResult `json:"compliance"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Manager aggregates the external providers behind one handle. Either
// provider may be nil, in which case its operations are no-ops.
type Manager struct {
	custody    CustodyProvider
	compliance ComplianceProvider
	logger     *zap.Logger
}

// NewManager creates a Manager.
func NewManager(custody CustodyProvider, compliance ComplianceProvider, logger *zap.Logger) *Manager {
	return &Manager{custody: custody, compliance: compliance, logger: logger}
}

// EmergencyFreeze asks the custody provider to freeze the given asset.
// Failures are logged and swallowed: the caller's state transition has
// already committed and must not be unwound by a collaborator error.
func (m *Manager) EmergencyFreeze(ctx context.Context, asset string) {
	if m.custody == nil {
		return
	}
	tx, err := m.custody.EmergencyFreeze(ctx, asset)
	if err != nil {
		m.logger.Error("custody emergency freeze failed (non-fatal)",
			zap.String("asset", asset), zap.Error(err))
		return
	}
	m.logger.Info("custody emergency freeze initiated",
		zap.String("asset", asset),
		zap.String("tx_id", tx.ID),
		zap.Int("required_signatures", tx.RequiredSignatures),
	)
}

// Screen runs an AML screen on a committed transition. Failures are logged
// and swallowed for the same reason as EmergencyFreeze.
func (m *Manager) Screen(ctx context.Context, refID string, amount int64) {
	if m.compliance == nil {
		return
	}
	res, err := m.compliance.ScreenTransaction(ctx, refID, amount)
	if err != nil {
		m.logger.Error("compliance screen failed (non-fatal)",
			zap.String("ref", refID), zap.Error(err))
		return
	}
	if res.Status != "cleared" {
		m.logger.Warn("compliance screen raised flags",
			zap.String("ref", refID),
			zap.String("status", res.Status),
			zap.Int("risk_score", res.RiskScore),
			zap.Strings("flags", res.Flags),
		)
	}
}

// HealthCheck probes both providers and reports status plus latency.
func (m *Manager) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{
		Custody:    HealthResult{Status: "unknown"},
		Compliance: HealthResult{Status: "unknown"},
		Timestamp:  time.Now().UTC(),
	}

	if m.custody != nil {
		start := time.Now()
		if _, err := m.custody.Balance(ctx, "treasury"); err != nil {
			report.Custody = HealthResult{Status: "error"}
		} else {
			report.Custody = HealthResult{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
		}
	}
	if m.compliance != nil {
		start := time.Now()
		if _, err := m.compliance.Status(ctx, "healthcheck"); err != nil {
			report.Compliance = HealthResult{Status: "error"}
		} else {
			report.Compliance = HealthResult{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
		}
	}
	return report
}
