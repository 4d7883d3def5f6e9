/**
 * @description
 * This package provides a client for notifying licensed VASP partners about
 * fiat on-ramp settlements. It encapsulates the logic for making authenticated
 * HTTP requests to a partner's notification endpoint, handling request body
 * construction, and parsing responses.
 *
 * The settlement orchestrator depends only on the `Initiate` method shape, so
 * the HTTP client and the simulated client are interchangeable.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact decimal NGN amounts.
 */
package vaspclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// StatusReceived is the acknowledgement status a partner returns on acceptance.
const StatusReceived = "RECEIVED"

// Client is an HTTP client for a licensed partner's notification API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new VASP notification client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NotificationRequest is the payload sent to the partner's on-ramp endpoint.
type NotificationRequest struct {
	VASPID    string          `json:"vasp_id"`
	Reference string          `json:"reference"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
}

// Acknowledgement is the partner's synchronous response to a notification.
type Acknowledgement struct {
	VASPID    string          `json:"vasp_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

// ErrorResponse represents an error returned by a partner API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("vasp api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown vasp api error"
}

// Initiate notifies the partner that an on-ramp settlement has been initiated
// and returns its acknowledgement.
func (c *Client) Initiate(ctx context.Context, vaspID, reference string, amount decimal.Decimal) (*Acknowledgement, error) {
	payload := NotificationRequest{
		VASPID:    vaspID,
		Reference: reference,
		Currency:  "NGN",
		Amount:    amount,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/onramp/notifications", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call vasp api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read vasp response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &apiErr); unmarshalErr == nil && len(apiErr.Errors) > 0 {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("vasp api returned status %d", resp.StatusCode)
	}

	var ack Acknowledgement
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return nil, fmt.Errorf("failed to parse vasp acknowledgement: %w", err)
	}
	return &ack, nil
}
