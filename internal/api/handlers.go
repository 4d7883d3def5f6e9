/**
 * @description
 * This file contains the HTTP handlers for the onramp-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the settlement
 * service, and writing the HTTP response. They act as the bridge between the web
 * layer and the business logic layer.
 *
 * Response contract:
 * - 200 with {transaction_id, status, vasp_response} on success.
 * - 404 when the user or wallet does not exist.
 * - 400 with {code, message} on a compliance/ledger rejection.
 * - 500 with a generic message on unexpected failure; the cause is logged.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nairagate/onramp-service/internal/app"
	"github.com/nairagate/onramp-service/internal/domain"
	"github.com/nairagate/onramp-service/internal/store"
)

// OnrampHandlers holds the application service that handlers will use.
type OnrampHandlers struct {
	service            *app.Service
	rateLimiter        app.SettlementRateLimiter
	rateLimitPerMinute int
}

// NewOnrampHandlers creates a new instance of OnrampHandlers.
func NewOnrampHandlers(service *app.Service) *OnrampHandlers {
	return &OnrampHandlers{service: service}
}

// SetRateLimiter enables per-user request rate limiting on the settlement
// endpoint. A nil limiter or non-positive limit leaves it disabled.
func (h *OnrampHandlers) SetRateLimiter(limiter app.SettlementRateLimiter, perMinute int) {
	h.rateLimiter = limiter
	h.rateLimitPerMinute = perMinute
}

// onrampRequest is the wire shape of POST /onramp. The amount accepts both a
// JSON number and a quoted decimal string.
type onrampRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	VASPID string          `json:"vasp_id"`
}

// rejectionResponse is the 400 body for business-rule rejections.
type rejectionResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OnrampHandler handles requests to settle a fiat-to-crypto on-ramp.
func (h *OnrampHandlers) OnrampHandler(w http.ResponseWriter, r *http.Request) {
	var req onrampRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=onramp outcome=reject reason=invalid_json err=%v", err)
		h.writeJSON(w, http.StatusBadRequest, rejectionResponse{Code: "INVALID_REQUEST", Message: "invalid request body"})
		return
	}

	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		log.Printf("level=warn component=api endpoint=onramp outcome=reject reason=invalid_user_id user_id=%q", req.UserID)
		h.writeJSON(w, http.StatusBadRequest, rejectionResponse{Code: "INVALID_REQUEST", Message: "user_id must be a valid UUID"})
		return
	}

	if !h.allowRequest(w, r, userID) {
		return
	}

	result, err := h.service.Settle(r.Context(), domain.SettlementRequest{
		UserID: userID,
		Amount: req.Amount,
		VASPID: strings.TrimSpace(req.VASPID),
	})
	if err != nil {
		h.writeSettlementError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": result.TransactionID.String(),
		"status":         result.Status,
		"vasp_response":  result.Acknowledgement,
	})
}

// allowRequest consumes the per-user rate limit when one is configured. The
// limiter fails open: a broken Redis must not block settlements.
func (h *OnrampHandlers) allowRequest(w http.ResponseWriter, r *http.Request, userID uuid.UUID) bool {
	if h.rateLimiter == nil || h.rateLimitPerMinute <= 0 {
		return true
	}
	count, retryAfter, err := h.rateLimiter.ConsumeRateLimit(r.Context(), "onramp", userID.String(), h.rateLimitPerMinute, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api endpoint=onramp msg=\"rate limiter unavailable; allowing request\" user_id=%s err=%v", userID, err)
		return true
	}
	if count > h.rateLimitPerMinute {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many settlement requests. Please wait and try again.")
		return false
	}
	return true
}

func (h *OnrampHandlers) writeSettlementError(w http.ResponseWriter, err error) {
	var rejection *app.RejectionError
	if errors.As(err, &rejection) {
		h.writeJSON(w, http.StatusBadRequest, rejectionResponse{Code: string(rejection.Code), Message: rejection.Message})
		return
	}
	if errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrWalletNotFound) {
		h.writeError(w, http.StatusNotFound, "User or wallet not found")
		return
	}
	// Unexpected failure: the body stays generic but the cause is logged.
	log.Printf("level=error component=api endpoint=onramp msg=\"settlement failed\" err=%v", err)
	h.writeError(w, http.StatusInternalServerError, "Settlement could not be completed")
}

// CreateUserHandler provisions a user and wallet. It sits behind the internal
// API key middleware; this is the seed/admin path, not a public surface.
func (h *OnrampHandlers) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_user outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.ProvisionUser(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_user outcome=reject err=%v", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// ListTransactionsHandler returns the append-only transaction log for a user.
func (h *OnrampHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("user_id")))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "user_id must be a valid UUID")
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("level=error component=api endpoint=list_transactions msg=\"listing failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list transactions")
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

func (h *OnrampHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func (h *OnrampHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
