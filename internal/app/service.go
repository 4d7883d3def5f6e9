/**
 * @description
 * This file contains the core business logic for the onramp-service. The
 * `Service` struct orchestrates one fiat-to-crypto settlement per call,
 * coordinating the compliance evaluator, the wallet ledger, the transaction
 * recorder, the licensed partner client, and the audit sink.
 *
 * Key features:
 * - Linear settlement state progression: compliance gate, atomic debit plus
 *   transaction record, partner notification, audit emission.
 * - Business rejections are typed RejectionError values; callers branch on
 *   the stable code instead of string matching.
 * - Per-user serialization: concurrent settlements for the same user queue
 *   behind a per-user mutex for the duration of the call.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For transaction identifiers.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/vaspclient: For partner notification.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nairagate/onramp-service/internal/domain"
	"github.com/nairagate/onramp-service/internal/store"
	"github.com/nairagate/onramp-service/pkg/vaspclient"
)

// PartnerClient is the capability the orchestrator needs from a licensed
// partner integration. Both the HTTP client and the simulated client satisfy
// it, so swapping in a real network integration does not change the
// orchestrator's contract.
type PartnerClient interface {
	Initiate(ctx context.Context, vaspID, reference string, amount decimal.Decimal) (*vaspclient.Acknowledgement, error)
}

// Service provides the core settlement logic for on-ramp requests.
type Service struct {
	repo       store.Repository
	partner    PartnerClient
	audit      *AuditLogger
	compliance ComplianceConfig
	locks      *userLocks
}

// NewService creates a new settlement service instance.
func NewService(repo store.Repository, partner PartnerClient, audit *AuditLogger, compliance ComplianceConfig) *Service {
	return &Service{
		repo:       repo,
		partner:    partner,
		audit:      audit,
		compliance: compliance,
		locks:      newUserLocks(),
	}
}

// Settle runs one all-or-nothing settlement: compliance gate, atomic wallet
// debit plus transaction record, partner notification, audit emission.
//
// Business rejections come back as *RejectionError. Missing users or wallets
// surface as store.ErrUserNotFound / store.ErrWalletNotFound. Anything else
// is an unexpected failure; the cause is logged and the wrapped error returned.
func (s *Service) Settle(ctx context.Context, req domain.SettlementRequest) (*domain.SettlementResult, error) {
	user, err := s.repo.FindUserByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindWalletByUserID(ctx, req.UserID); err != nil {
		return nil, err
	}

	// Serialize settlements per user for the remainder of the call.
	mu := s.locks.acquire(req.UserID)
	mu.Lock()
	defer mu.Unlock()

	if rejection := EvaluateCompliance(user, req.Amount, req.VASPID, s.compliance); rejection != nil {
		log.Printf("level=info component=settlement outcome=rejected user_id=%s vasp_id=%s amount=%s code=%s", req.UserID, req.VASPID, req.Amount.String(), rejection.Code)
		s.audit.Emit(ctx, AuditOnrampRejected, map[string]interface{}{
			"user_id": req.UserID.String(),
			"vasp_id": req.VASPID,
			"amount":  req.Amount.String(),
			"code":    string(rejection.Code),
		})
		return nil, rejection
	}

	txRecord := &domain.Transaction{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Amount:    req.Amount,
		Type:      domain.TxTypeOnramp,
		VASPID:    req.VASPID,
		Status:    domain.TxStatusProcessing,
		CreatedAt: time.Now().UTC(),
	}

	// Debit and record are one atomic unit of work: no orphaned debit without
	// a transaction record, no record without a successful debit.
	if err := s.repo.DebitAndRecord(ctx, txRecord); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			log.Printf("level=info component=settlement outcome=rejected user_id=%s vasp_id=%s amount=%s code=%s", req.UserID, req.VASPID, req.Amount.String(), CodeInsufficientFunds)
			return nil, reject(CodeInsufficientFunds, "wallet balance does not cover the requested amount")
		}
		if errors.Is(err, store.ErrWalletNotFound) {
			return nil, err
		}
		log.Printf("level=error component=settlement msg=\"debit and record failed\" user_id=%s err=%v", req.UserID, err)
		return nil, fmt.Errorf("failed to persist settlement: %w", err)
	}

	// The partner is notified after the commit boundary. A failure here does
	// not reverse the debit; the transaction is marked FAILED and the caller
	// receives an opaque failure. Compensation policy is an open question
	// tracked in DESIGN.md.
	ack, err := s.partner.Initiate(ctx, req.VASPID, req.UserID.String(), req.Amount)
	if err != nil {
		log.Printf("level=error component=settlement msg=\"partner notification failed\" transaction_id=%s vasp_id=%s err=%v", txRecord.ID, req.VASPID, err)
		if markErr := s.repo.MarkTransactionAsFailed(ctx, txRecord.ID, "partner notification failed"); markErr != nil {
			log.Printf("level=error component=settlement msg=\"failed to mark transaction failed\" transaction_id=%s err=%v", txRecord.ID, markErr)
		}
		s.audit.Emit(ctx, AuditOnrampFailed, map[string]interface{}{
			"transaction_id": txRecord.ID.String(),
			"user_id":        req.UserID.String(),
			"vasp_id":        req.VASPID,
			"amount":         req.Amount.String(),
		})
		return nil, fmt.Errorf("partner notification failed: %w", err)
	}

	s.audit.Emit(ctx, AuditOnrampInitiated, map[string]interface{}{
		"transaction_id": txRecord.ID.String(),
		"user_id":        req.UserID.String(),
		"vasp_id":        req.VASPID,
		"amount":         req.Amount.String(),
		"status":         txRecord.Status,
	})
	log.Printf("level=info component=settlement outcome=success transaction_id=%s user_id=%s vasp_id=%s amount=%s", txRecord.ID, req.UserID, req.VASPID, req.Amount.String())

	return &domain.SettlementResult{
		TransactionID: txRecord.ID,
		Status:        txRecord.Status,
		Acknowledgement: &domain.Acknowledgement{
			VASPID:    ack.VASPID,
			Reference: ack.Reference,
			Amount:    ack.Amount,
			Status:    ack.Status,
		},
	}, nil
}

// ProvisionUser creates a user together with their fiat wallet. This backs the
// internal seed/admin endpoint; users are otherwise created out of band.
func (s *Service) ProvisionUser(ctx context.Context, req domain.CreateUserRequest) (*domain.CreateUserResult, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, errors.New("display_name is required")
	}
	if req.RiskScore < 0 || req.RiskScore > 1 {
		return nil, errors.New("risk_score must be between 0 and 1")
	}
	if req.OpeningBalance.Sign() < 0 {
		return nil, errors.New("opening_balance must not be negative")
	}

	kycTier := strings.TrimSpace(req.KYCTier)
	if kycTier == "" {
		kycTier = "tier1"
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	user := &domain.User{
		ID:          uuid.New(),
		DisplayName: displayName,
		KYCTier:     kycTier,
		RiskScore:   req.RiskScore,
		Active:      active,
		CreatedAt:   time.Now().UTC(),
	}
	wallet, err := s.repo.CreateUserWithWallet(ctx, user, req.OpeningBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	log.Printf("level=info component=settlement msg=\"user provisioned\" user_id=%s kyc_tier=%s balance=%s", user.ID, user.KYCTier, wallet.Balance.String())
	return &domain.CreateUserResult{User: user, Wallet: wallet}, nil
}

// ListTransactions returns the append-only transaction log for one user,
// newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	if _, err := s.repo.FindUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.FindTransactionsByUserID(ctx, userID)
}
