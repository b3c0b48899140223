// Package gateway is a client for the escrow-based payment gateway.
//
// The client is stateless apart from its HTTP client and never retries;
// waiting for asynchronous gateway state is left to the caller.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.fmm.finternetlab.io/api/v1"
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// Outcomes reported to an Observer.
const (
	OutcomeOK             = "ok"
	OutcomeAPIError       = "api_error"
	OutcomeTransportError = "transport_error"
	OutcomeDecodeError    = "decode_error"
)

// Observer is notified after every gateway call.
type Observer interface {
	ObserveGatewayCall(op, outcome string, elapsed time.Duration)
}

// Client calls the payment gateway's HTTP JSON API.
type Client struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client = &http.Client{Timeout: d}
		}
	}
}

// WithObserver installs a call observer, typically for metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a gateway client. An empty baseURL selects DefaultBaseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateIntent creates a payment intent.
func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body := intentRequestBody{
		Amount:                req.Amount.StringFixed(2),
		Currency:              req.Currency,
		Type:                  req.Type,
		SettlementMethod:      req.SettlementMethod,
		SettlementDestination: req.SettlementDestination,
		Description:           req.Description,
		Metadata:              req.Metadata,
	}

	var resp intentResponse
	if err := c.do(ctx, "create_intent", http.MethodPost, "/payment-intents", body, &resp); err != nil {
		return nil, err
	}

	intent := &Intent{
		ID:         firstNonEmpty(resp.ID, resp.Data.ID),
		Status:     firstNonEmpty(resp.Status, resp.Data.Status),
		PaymentURL: resp.Data.PaymentURL,
	}
	if intent.ID == "" {
		return nil, fmt.Errorf("gateway create_intent: response has no intent id")
	}
	return intent, nil
}

// GetIntent fetches the current status of an intent.
func (c *Client) GetIntent(ctx context.Context, intentID string) (*IntentStatus, error) {
	var resp intentStatusResponse
	if err := c.do(ctx, "get_intent", http.MethodGet, "/payment-intents/"+url.PathEscape(intentID), nil, &resp); err != nil {
		return nil, err
	}

	return &IntentStatus{
		ID:       firstNonEmpty(resp.ID, intentID),
		Status:   firstNonEmpty(resp.Status, resp.Data.Status),
		Metadata: resp.Metadata,
	}, nil
}

// GetEscrow fetches the escrow backing an intent.
func (c *Client) GetEscrow(ctx context.Context, intentID string) (*Escrow, error) {
	var resp escrowResponse
	if err := c.do(ctx, "get_escrow", http.MethodGet, "/payment-intents/"+url.PathEscape(intentID)+"/escrow", nil, &resp); err != nil {
		return nil, err
	}

	return &Escrow{
		BuyerAddress: resp.Data.BuyerAddress,
		Amount:       resp.Data.Amount,
	}, nil
}

// SubmitDeliveryProof submits a delivery proof to release the escrow.
// A response without a proof id is returned as a ProofResult with an empty ID.
func (c *Client) SubmitDeliveryProof(ctx context.Context, intentID string, proof Proof) (*ProofResult, error) {
	var resp proofResponse
	path := "/payment-intents/" + url.PathEscape(intentID) + "/escrow/delivery-proof"
	if err := c.do(ctx, "submit_proof", http.MethodPost, path, proof, &resp); err != nil {
		return nil, err
	}
	return &ProofResult{ID: resp.Data.ID}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	outcome := OutcomeOK
	defer func() {
		if c.observer != nil {
			c.observer.ObserveGatewayCall(op, outcome, time.Since(start))
		}
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			outcome = OutcomeDecodeError
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		outcome = OutcomeTransportError
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		outcome = OutcomeTransportError
		return fmt.Errorf("gateway %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		outcome = OutcomeTransportError
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = OutcomeAPIError
		return newAPIError(op, resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		outcome = OutcomeDecodeError
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("gateway %s error (%d): %s", e.Op, e.StatusCode, msg)
}

type errorBody struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func newAPIError(op string, status int, body []byte) *APIError {
	apiErr := &APIError{Op: op, StatusCode: status, Body: strings.TrimSpace(string(body))}

	var parsed errorBody
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Message = firstNonEmpty(parsed.Error.Message, parsed.Message)
	}
	return apiErr
}

// IsNotFound reports whether err is a gateway 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether the call may succeed on a later attempt.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err != nil && !errors.Is(err, context.Canceled)
	}
	return apiErr.StatusCode == http.StatusNotFound ||
		apiErr.StatusCode == http.StatusTooManyRequests ||
		apiErr.StatusCode >= 500
}
