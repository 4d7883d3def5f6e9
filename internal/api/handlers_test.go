package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nairagate/onramp-service/internal/app"
	"github.com/nairagate/onramp-service/internal/domain"
	"github.com/nairagate/onramp-service/internal/store"
	"github.com/nairagate/onramp-service/pkg/vaspclient"
)

const testInternalAPIKey = "test-internal-key"

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}
func (nopPublisher) Close() {}

func newTestServer(t *testing.T) (http.Handler, *store.MemoryRepository) {
	t.Helper()

	repo := store.NewMemoryRepository()
	compliance := app.NewComplianceConfig(
		decimal.RequireFromString("10000000"),
		[]string{"vasp_001"},
		0.7,
	)
	service := app.NewService(repo, vaspclient.NewSimulated(), app.NewAuditLogger(nopPublisher{}), compliance)
	handlers := NewOnrampHandlers(service)
	return OnrampRoutes(handlers, testInternalAPIKey), repo
}

func seedTestUser(t *testing.T, repo *store.MemoryRepository, balance string) uuid.UUID {
	t.Helper()
	user := &domain.User{
		ID:          uuid.New(),
		DisplayName: "Funke Alabi",
		KYCTier:     "tier2",
		RiskScore:   0.2,
		Active:      true,
	}
	if _, err := repo.CreateUserWithWallet(context.Background(), user, decimal.RequireFromString(balance)); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user.ID
}

func TestOnrampHandler_Success(t *testing.T) {
	router, repo := newTestServer(t)
	userID := seedTestUser(t, repo, "15000000")

	body := `{"user_id":"` + userID.String() + `","amount":5000000,"vasp_id":"vasp_001"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
		VASPResponse  struct {
			Status    string `json:"status"`
			Reference string `json:"reference"`
		} `json:"vasp_response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != domain.TxStatusProcessing {
		t.Fatalf("expected status PROCESSING, got %q", resp.Status)
	}
	if resp.VASPResponse.Status != domain.AckStatusReceived {
		t.Fatalf("expected vasp_response status RECEIVED, got %q", resp.VASPResponse.Status)
	}
	if _, err := uuid.Parse(resp.TransactionID); err != nil {
		t.Fatalf("expected a transaction id, got %q", resp.TransactionID)
	}

	wallet, err := repo.FindWalletByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to load wallet: %v", err)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("10000000")) {
		t.Fatalf("expected balance 10000000, got %s", wallet.Balance)
	}
}

func TestOnrampHandler_AcceptsQuotedDecimalAmount(t *testing.T) {
	router, repo := newTestServer(t)
	userID := seedTestUser(t, repo, "1000.50")

	body := `{"user_id":"` + userID.String() + `","amount":"1000.50","vasp_id":"vasp_001"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	wallet, _ := repo.FindWalletByUserID(context.Background(), userID)
	if !wallet.Balance.Equal(decimal.Zero) {
		t.Fatalf("expected zero balance, got %s", wallet.Balance)
	}
}

func TestOnrampHandler_UnknownUserReturns404(t *testing.T) {
	router, _ := newTestServer(t)

	body := `{"user_id":"` + uuid.NewString() + `","amount":100,"vasp_id":"vasp_001"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestOnrampHandler_BusinessRejectionsReturn400WithCode(t *testing.T) {
	router, repo := newTestServer(t)
	userID := seedTestUser(t, repo, "15000000")

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{
			name:     "limit exceeded",
			body:     `{"user_id":"` + userID.String() + `","amount":20000000,"vasp_id":"vasp_001"}`,
			wantCode: "LIMIT_EXCEEDED",
		},
		{
			name:     "unlicensed partner",
			body:     `{"user_id":"` + userID.String() + `","amount":100,"vasp_id":"vasp_404"}`,
			wantCode: "UNLICENSED_PARTNER",
		},
		{
			name:     "invalid amount",
			body:     `{"user_id":"` + userID.String() + `","amount":-1,"vasp_id":"vasp_001"}`,
			wantCode: "INVALID_AMOUNT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Fatalf("expected code %s, got %s", tt.wantCode, resp.Code)
			}
			if resp.Message == "" {
				t.Fatal("expected a rejection message")
			}
		})
	}
}

func TestOnrampHandler_MalformedBodyReturns400(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateUserHandler_RequiresInternalAPIKey(t *testing.T) {
	router, _ := newTestServer(t)

	body := `{"display_name":"Funke Alabi","risk_score":0.1,"opening_balance":"1000"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	req.Header.Set("X-Internal-Api-Key", "wrong-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rec.Code)
	}
}

func TestCreateUserThenSettleRoundTrip(t *testing.T) {
	router, _ := newTestServer(t)

	createBody := `{"display_name":"Funke Alabi","kyc_tier":"tier3","risk_score":0.1,"opening_balance":"15000000"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(createBody))
	req.Header.Set("X-Internal-Api-Key", testInternalAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	settleBody := `{"user_id":"` + created.User.ID + `","amount":5000000,"vasp_id":"vasp_001"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(settleBody))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/transactions?user_id="+created.User.ID, nil)
	req.Header.Set("X-Internal-Api-Key", testInternalAPIKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var listing struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(listing.Transactions) != 1 {
		t.Fatalf("expected one transaction, got %d", len(listing.Transactions))
	}
	if listing.Transactions[0].Status != domain.TxStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", listing.Transactions[0].Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
