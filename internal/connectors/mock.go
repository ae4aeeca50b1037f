package connectors

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockCustody is an in-process CustodyProvider with a fixed 3-of-5 signing
// threshold, mirroring the sandbox behaviour of a real MPC provider.
type MockCustody struct {
	mu        sync.Mutex
	threshold int
	balances  map[string]int64
	txs       map[string]*CustodyTransaction
}

// NewMockCustody creates a MockCustody with a 3-of-5 threshold.
func NewMockCustody() *MockCustody {
	return &MockCustody{
		threshold: 3,
		balances:  map[string]int64{"treasury": 1_001_325_059},
		txs:       make(map[string]*CustodyTransaction),
	}
}

// InitiateTransaction implements CustodyProvider.
func (m *MockCustody) InitiateTransaction(_ context.Context, typ TransactionType, params TransactionParams) (*CustodyTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &CustodyTransaction{
		ID:                 "mpc_tx_" + uuid.New().String(),
		Type:               typ,
		Amount:             params.Amount,
		Asset:              params.Asset,
		Destination:        params.Destination,
		Status:             StatusPending,
		Signatures:         []string{},
		RequiredSignatures: m.threshold,
		CreatedAt:          time.Now().UTC(),
	}
	m.txs[tx.ID] = tx
	cp := *tx
	return &cp, nil
}

// TransactionStatus implements CustodyProvider.
func (m *MockCustody) TransactionStatus(_ context.Context, id string) (*CustodyTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, ErrProviderUnavailable
	}
	cp := *tx
	return &cp, nil
}

// EmergencyFreeze implements CustodyProvider.
func (m *MockCustody) EmergencyFreeze(ctx context.Context, asset string) (*CustodyTransaction, error) {
	return m.InitiateTransaction(ctx, TransactionEmergencyFreeze, TransactionParams{Asset: asset})
}

// Balance implements CustodyProvider.
func (m *MockCustody) Balance(_ context.Context, asset string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[asset], nil
}

// MockCompliance is an in-process ComplianceProvider that clears everything
// below a fixed amount and flags the rest.
type MockCompliance struct {
	flagThreshold int64
}

// NewMockCompliance creates a MockCompliance flagging amounts over 10M.
func NewMockCompliance() *MockCompliance {
	return &MockCompliance{flagThreshold: 10_000_000}
}

// ScreenTransaction implements ComplianceProvider.
func (m *MockCompliance) ScreenTransaction(_ context.Context, txID string, amount int64) (*ScreeningResult, error) {
	res := &ScreeningResult{
		TransactionID: txID,
		RiskScore:     12,
		Status:        "cleared",
	}
	if amount > m.flagThreshold {
		res.RiskScore = 68
		res.Status = "flagged"
		res.Flags = []string{"large_amount"}
	}
	return res, nil
}

// Status implements ComplianceProvider.
func (m *MockCompliance) Status(_ context.Context, subject string) (*ComplianceStatus, error) {
	return &ComplianceStatus{
		Subject:   subject,
		Status:    "approved",
		RiskLevel: "low",
		CheckedAt: time.Now().UTC(),
	}, nil
}
