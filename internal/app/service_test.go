package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nairagate/onramp-service/internal/domain"
	"github.com/nairagate/onramp-service/internal/store"
	"github.com/nairagate/onramp-service/pkg/vaspclient"
)

// recordingPublisher captures audit events so tests can assert on emissions.
type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []AuditRecord
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if record, ok := body.(AuditRecord); ok {
		p.events = append(p.events, record)
	}
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) recorded() []AuditRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]AuditRecord, len(p.events))
	copy(out, p.events)
	return out
}

type settlementFixture struct {
	service   *Service
	repo      *store.MemoryRepository
	publisher *recordingPublisher
	partner   *vaspclient.Simulated
	userID    uuid.UUID
}

func newSettlementFixture(t *testing.T, riskScore float64, balance string) *settlementFixture {
	t.Helper()

	repo := store.NewMemoryRepository()
	publisher := &recordingPublisher{}
	partner := vaspclient.NewSimulated()
	service := NewService(repo, partner, NewAuditLogger(publisher), testComplianceConfig())

	user := &domain.User{
		ID:          uuid.New(),
		DisplayName: "Adaeze Obi",
		KYCTier:     "tier2",
		RiskScore:   riskScore,
		Active:      true,
	}
	if _, err := repo.CreateUserWithWallet(context.Background(), user, decimal.RequireFromString(balance)); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	return &settlementFixture{
		service:   service,
		repo:      repo,
		publisher: publisher,
		partner:   partner,
		userID:    user.ID,
	}
}

func (f *settlementFixture) walletBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	wallet, err := f.repo.FindWalletByUserID(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("failed to load wallet: %v", err)
	}
	return wallet.Balance
}

func (f *settlementFixture) transactions(t *testing.T) []domain.Transaction {
	t.Helper()
	transactions, err := f.repo.FindTransactionsByUserID(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("failed to list transactions: %v", err)
	}
	return transactions
}

func TestSettle_Success(t *testing.T) {
	fixture := newSettlementFixture(t, 0.2, "15000000")

	result, err := fixture.service.Settle(context.Background(), domain.SettlementRequest{
		UserID: fixture.userID,
		Amount: decimal.RequireFromString("5000000"),
		VASPID: "vasp_001",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if result.Status != domain.TxStatusProcessing {
		t.Fatalf("expected status %s, got %s", domain.TxStatusProcessing, result.Status)
	}
	if result.Acknowledgement == nil || result.Acknowledgement.Status != domain.AckStatusReceived {
		t.Fatalf("expected acknowledgement status RECEIVED, got %+v", result.Acknowledgement)
	}
	if result.Acknowledgement.Reference != fixture.userID.String() {
		t.Fatalf("expected user id as external reference, got %q", result.Acknowledgement.Reference)
	}

	if got, want := fixture.walletBalance(t), decimal.RequireFromString("10000000"); !got.Equal(want) {
		t.Fatalf("expected balance %s, got %s", want, got)
	}

	transactions := fixture.transactions(t)
	if len(transactions) != 1 {
		t.Fatalf("expected exactly one transaction, got %d", len(transactions))
	}
	if transactions[0].ID != result.TransactionID {
		t.Fatalf("result transaction id %s does not match stored %s", result.TransactionID, transactions[0].ID)
	}
	if transactions[0].Status != domain.TxStatusProcessing {
		t.Fatalf("expected stored status PROCESSING, got %s", transactions[0].Status)
	}
	if transactions[0].Type != domain.TxTypeOnramp {
		t.Fatalf("expected type ONRAMP, got %s", transactions[0].Type)
	}

	events := fixture.publisher.recorded()
	if len(events) != 1 || events[0].Event != AuditOnrampInitiated {
		t.Fatalf("expected one ONRAMP_INITIATED audit event, got %+v", events)
	}
	if events[0].Payload["transaction_id"] != result.TransactionID.String() {
		t.Fatalf("audit transaction id mismatch: %v", events[0].Payload["transaction_id"])
	}
}

func TestSettle_ComplianceRejectionLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name     string
		risk     float64
		amount   string
		vaspID   string
		wantCode RejectionCode
	}{
		{name: "invalid amount", risk: 0.2, amount: "-5", vaspID: "vasp_001", wantCode: CodeInvalidAmount},
		{name: "unlicensed partner", risk: 0.2, amount: "5000000", vaspID: "vasp_777", wantCode: CodeUnlicensedPartner},
		{name: "limit exceeded", risk: 0.2, amount: "20000000", vaspID: "vasp_001", wantCode: CodeLimitExceeded},
		{name: "aml risk", risk: 0.9, amount: "5000000", vaspID: "vasp_001", wantCode: CodeAMLRisk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newSettlementFixture(t, tt.risk, "15000000")

			_, err := fixture.service.Settle(context.Background(), domain.SettlementRequest{
				UserID: fixture.userID,
				Amount: decimal.RequireFromString(tt.amount),
				VASPID: tt.vaspID,
			})

			var rejection *RejectionError
			if !errors.As(err, &rejection) {
				t.Fatalf("expected RejectionError, got %v", err)
			}
			if rejection.Code != tt.wantCode {
				t.Fatalf("expected code %s, got %s", tt.wantCode, rejection.Code)
			}

			if got, want := fixture.walletBalance(t), decimal.RequireFromString("15000000"); !got.Equal(want) {
				t.Fatalf("wallet must be unchanged, got %s", got)
			}
			if transactions := fixture.transactions(t); len(transactions) != 0 {
				t.Fatalf("no transaction may be persisted on compliance rejection, got %d", len(transactions))
			}
		})
	}
}

func TestSettle_InsufficientFunds(t *testing.T) {
	fixture := newSettlementFixture(t, 0.2, "1000")

	_, err := fixture.service.Settle(context.Background(), domain.SettlementRequest{
		UserID: fixture.userID,
		Amount: decimal.RequireFromString("5000"),
		VASPID: "vasp_001",
	})

	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Code != CodeInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS rejection, got %v", err)
	}

	if got, want := fixture.walletBalance(t), decimal.RequireFromString("1000"); !got.Equal(want) {
		t.Fatalf("wallet must be unchanged on insufficient funds, got %s", got)
	}
	if transactions := fixture.transactions(t); len(transactions) != 0 {
		t.Fatalf("no transaction may be persisted when the debit fails, got %d", len(transactions))
	}
}

func TestSettle_UnknownUser(t *testing.T) {
	fixture := newSettlementFixture(t, 0.2, "15000000")

	_, err := fixture.service.Settle(context.Background(), domain.SettlementRequest{
		UserID: uuid.New(),
		Amount: decimal.RequireFromString("5000000"),
		VASPID: "vasp_001",
	})
	if !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

// Two identical settlements are two independent attempts: distinct transaction
// ids and two separate debits. There is no request deduplication.
func TestSettle_RepeatedRequestsAreNotDeduplicated(t *testing.T) {
	fixture := newSettlementFixture(t, 0.2, "15000000")
	req := domain.SettlementRequest{
		UserID: fixture.userID,
		Amount: decimal.RequireFromString("5000000"),
		VASPID: "vasp_001",
	}

	first, err := fixture.service.Settle(context.Background(), req)
	if err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}
	second, err := fixture.service.Settle(context.Background(), req)
	if err != nil {
		t.Fatalf("second settlement failed: %v", err)
	}

	if first.TransactionID == second.TransactionID {
		t.Fatal("expected distinct transaction ids for repeated requests")
	}
	if got, want := fixture.walletBalance(t), decimal.RequireFromString("5000000"); !got.Equal(want) {
		t.Fatalf("expected two separate debits leaving %s, got %s", want, got)
	}
	if transactions := fixture.transactions(t); len(transactions) != 2 {
		t.Fatalf("expected two transaction records, got %d", len(transactions))
	}
}

func TestSettle_PartnerFailureMarksTransactionFailedWithoutReversal(t *testing.T) {
	fixture := newSettlementFixture(t, 0.2, "15000000")
	fixture.partner.Err = errors.New("partner endpoint unreachable")

	_, err := fixture.service.Settle(context.Background(), domain.SettlementRequest{
		UserID: fixture.userID,
		Amount: decimal.RequireFromString("5000000"),
		VASPID: "vasp_001",
	})
	if err == nil {
		t.Fatal("expected an error when the partner notification fails")
	}
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		t.Fatalf("partner failures are not business rejections, got %s", rejection.Code)
	}

	// The debit is not reversed; the transaction moves to FAILED.
	if got, want := fixture.walletBalance(t), decimal.RequireFromString("10000000"); !got.Equal(want) {
		t.Fatalf("expected debit to stand at %s, got %s", want, got)
	}
	transactions := fixture.transactions(t)
	if len(transactions) != 1 {
		t.Fatalf("expected one transaction record, got %d", len(transactions))
	}
	if transactions[0].Status != domain.TxStatusFailed {
		t.Fatalf("expected FAILED status, got %s", transactions[0].Status)
	}
	if transactions[0].FailureReason == nil {
		t.Fatal("expected a failure reason on the transaction")
	}

	events := fixture.publisher.recorded()
	if len(events) != 1 || events[0].Event != AuditOnrampFailed {
		t.Fatalf("expected one ONRAMP_FAILED audit event, got %+v", events)
	}
}

// A broken audit sink must never abort a settlement.
func TestSettle_AuditFailureDoesNotAbortSettlement(t *testing.T) {
	fixture := newSettlementFixture(t, 0.2, "15000000")
	fixture.publisher.err = errors.New("broker unavailable")

	result, err := fixture.service.Settle(context.Background(), domain.SettlementRequest{
		UserID: fixture.userID,
		Amount: decimal.RequireFromString("5000000"),
		VASPID: "vasp_001",
	})
	if err != nil {
		t.Fatalf("expected settlement to succeed despite audit failure, got %v", err)
	}
	if result.Status != domain.TxStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", result.Status)
	}
	if got, want := fixture.walletBalance(t), decimal.RequireFromString("10000000"); !got.Equal(want) {
		t.Fatalf("expected balance %s, got %s", want, got)
	}
}

// Concurrent settlements for the same user serialize behind the per-user lock
// and every debit lands exactly once.
func TestSettle_ConcurrentSettlementsForSameUser(t *testing.T) {
	fixture := newSettlementFixture(t, 0.2, "10000000")
	amount := decimal.RequireFromString("1000000")

	const calls = 10
	var wg sync.WaitGroup
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fixture.service.Settle(context.Background(), domain.SettlementRequest{
				UserID: fixture.userID,
				Amount: amount,
				VASPID: "vasp_001",
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("settlement %d failed: %v", i, err)
		}
	}
	if got := fixture.walletBalance(t); !got.Equal(decimal.Zero) {
		t.Fatalf("expected zero balance after %d debits, got %s", calls, got)
	}
	if transactions := fixture.transactions(t); len(transactions) != calls {
		t.Fatalf("expected %d transaction records, got %d", calls, len(transactions))
	}
}

func TestProvisionUser_Validation(t *testing.T) {
	fixture := newSettlementFixture(t, 0.2, "0")

	tests := []struct {
		name string
		req  domain.CreateUserRequest
	}{
		{name: "missing display name", req: domain.CreateUserRequest{RiskScore: 0.1}},
		{name: "risk score above one", req: domain.CreateUserRequest{DisplayName: "Chinedu", RiskScore: 1.2}},
		{name: "negative opening balance", req: domain.CreateUserRequest{DisplayName: "Chinedu", OpeningBalance: decimal.RequireFromString("-1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fixture.service.ProvisionUser(context.Background(), tt.req); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestProvisionUser_DefaultsTierAndActive(t *testing.T) {
	fixture := newSettlementFixture(t, 0.2, "0")

	result, err := fixture.service.ProvisionUser(context.Background(), domain.CreateUserRequest{
		DisplayName:    "Chinedu Eze",
		RiskScore:      0.1,
		OpeningBalance: decimal.RequireFromString("2500.50"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.User.KYCTier != "tier1" {
		t.Fatalf("expected default tier1, got %s", result.User.KYCTier)
	}
	if !result.User.Active {
		t.Fatal("expected user to default to active")
	}
	if !result.Wallet.Balance.Equal(decimal.RequireFromString("2500.50")) {
		t.Fatalf("expected opening balance 2500.50, got %s", result.Wallet.Balance)
	}
}
