/**
 * @description
 * This file defines the core domain models for the onramp-service. These structs
 * represent the entities persisted by the service (users, fiat wallets, transactions)
 * and the data transfer objects used by the settlement flow and API layers.
 *
 * @notes
 * - Monetary amounts are `decimal.Decimal` (NGN). Exact decimal arithmetic avoids
 *   the rounding drift that floating-point balances accumulate across repeated debits.
 * - Transactions are append-only in the settlement flow: a record is created once
 *   per attempt and only its status may move afterwards.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction statuses.
const (
	TxStatusProcessing = "PROCESSING"
	TxStatusComplete   = "COMPLETE"
	TxStatusFailed     = "FAILED"
)

// Transaction types.
const (
	TxTypeOnramp = "ONRAMP"
)

// AckStatusReceived is the acknowledgement status a licensed partner returns
// when it has accepted an on-ramp notification.
const AckStatusReceived = "RECEIVED"

// User represents a gateway customer as seen by the settlement flow.
// Users are created by seed/admin tooling and mutated by out-of-band
// risk-scoring processes; this service only reads them.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	KYCTier     string    `json:"kyc_tier"` // e.g. 'tier1', 'tier2', 'tier3'
	RiskScore   float64   `json:"risk_score"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Wallet is a user's fiat (NGN) balance. One wallet per user.
// Invariant: Balance is never negative; only the ledger debit path mutates it.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"` // NGN
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is the immutable intent record for one settlement attempt.
// This struct maps directly to the `transactions` table.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"` // NGN
	Type          string          `json:"type"`   // e.g. 'ONRAMP'
	VASPID        string          `json:"vasp_id"`
	Status        string          `json:"status"` // 'PROCESSING', 'COMPLETE', 'FAILED'
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Acknowledgement is the licensed partner's synchronous response to an
// on-ramp notification.
type Acknowledgement struct {
	VASPID    string          `json:"vasp_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"` // 'RECEIVED' on acceptance
}

// SettlementRequest is the DTO for an incoming on-ramp settlement request.
type SettlementRequest struct {
	UserID uuid.UUID       `json:"user_id"`
	Amount decimal.Decimal `json:"amount"` // NGN
	VASPID string          `json:"vasp_id"`
}

// SettlementResult is returned to the caller after a successful settlement.
type SettlementResult struct {
	TransactionID   uuid.UUID        `json:"transaction_id"`
	Status          string           `json:"status"`
	Acknowledgement *Acknowledgement `json:"vasp_response"`
}

// CreateUserRequest is the DTO for the internal seed/admin endpoint that
// provisions a user together with their fiat wallet.
type CreateUserRequest struct {
	DisplayName    string          `json:"display_name"`
	KYCTier        string          `json:"kyc_tier"`
	RiskScore      float64         `json:"risk_score"`
	Active         *bool           `json:"active,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// CreateUserResult echoes the provisioned user and wallet back to the caller.
type CreateUserResult struct {
	User   *User   `json:"user"`
	Wallet *Wallet `json:"wallet"`
}
