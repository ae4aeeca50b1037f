// Package connectors defines the capability contracts for external custody
// and compliance providers, plus mock implementations used in tests and
// sandbox deployments. The core depends only on these contracts; a real
// provider is swapped in at the boundary.
package connectors

import (
	"context"
	"errors"
	"time"
)

// ErrProviderUnavailable wraps connector failures. Callers recover locally;
// a connector error must never corrupt the state store or the ledgers.
var ErrProviderUnavailable = errors.New("external provider unavailable")

// TransactionType classifies custody transactions.
type TransactionType string

const (
	TransactionTransfer        TransactionType = "transfer"
	TransactionApproval        TransactionType = "approval"
	TransactionEmergencyFreeze TransactionType = "emergency_freeze"
)

// TransactionStatus is the lifecycle state of a custody transaction.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
	StatusExecuted TransactionStatus = "executed"
)

// CustodyTransaction is a multi-party custody operation in flight.
type CustodyTransaction struct {
	ID                 string            `json:"id"`
	Type               TransactionType   `json:"type"`
	Amount             int64             `json:"amount,omitempty"`
	Asset              string            `json:"asset,omitempty"`
	Destination        string            `json:"destination,omitempty"`
	Status             TransactionStatus `json:"status"`
	Signatures         []string          `json:"signatures"`
	RequiredSignatures int               `json:"required_signatures"`
	CreatedAt          time.Time         `json:"created_at"`
}

// TransactionParams carries the inputs to InitiateTransaction.
type TransactionParams struct {
	Amount      int64
	Asset       string
	Destination string
}

// CustodyProvider is the multi-party-computation custody capability.
type CustodyProvider interface {
	InitiateTransaction(ctx context.Context, typ TransactionType, params TransactionParams) (*CustodyTransaction, error)
	TransactionStatus(ctx context.Context, id string) (*CustodyTransaction, error)
	EmergencyFreeze(ctx context.Context, asset string) (*CustodyTransaction, error)
	Balance(ctx context.Context, asset string) (int64, error)
}

// ScreeningResult is the outcome of an AML screen.
type ScreeningResult struct {
	TransactionID string   `json:"transaction_id"`
	RiskScore     int      `json:"risk_score"` // 0–100
	Status        string   `json:"status"`     // cleared, flagged, blocked
	Flags         []string `json:"flags,omitempty"`
}

// ComplianceStatus is a subject's standing with the compliance provider.
type ComplianceStatus struct {
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`     // approved, pending, rejected
	RiskLevel string    `json:"risk_level"` // low, medium, high
	CheckedAt time.Time `json:"checked_at"`
}

// ComplianceProvider is the KYC/AML screening capability.
type ComplianceProvider interface {
	ScreenTransaction(ctx context.Context, txID string, amount int64) (*ScreeningResult, error)
	Status(ctx context.Context, subject string) (*ComplianceStatus, error)
}
