package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	checkout "github.com/payelement/checkout/go"
)

// ============================================================================
// Store Client
// ============================================================================

// StoreClient talks to the store's intent API over HTTP.
// Implements checkout.PaymentServiceClient.
type StoreClient struct {
	rest   *resty.Client
	logger *zap.Logger
	newKey func() string
}

// StoreClientConfig configures the store client
type StoreClientConfig struct {
	// URL is the base URL of the store
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// Retries on 429 responses (optional, defaults to 2, negative disables)
	Retries int

	// RetryWait is the base backoff between retries (optional, defaults to 500ms)
	RetryWait time.Duration

	// Session is sent in HeaderSession with every request (optional)
	Session string

	// Logger (optional)
	Logger *zap.Logger

	// IdempotencyKey generates the key of each call (optional, defaults to uuid)
	IdempotencyKey func() string
}

// ErrMissingStoreURL is returned when the config has no URL
var ErrMissingStoreURL = errors.New("http: store URL is required")

const (
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 2
	retryBaseDelay    = 500 * time.Millisecond
	retryMaxDelay     = 5 * time.Second
	validationMessage = "Your payment information is incomplete."
)

// NewStoreClient creates a new store client
func NewStoreClient(config StoreClientConfig) (*StoreClient, error) {
	if config.URL == "" {
		return nil, ErrMissingStoreURL
	}

	rest := resty.New()
	if config.HTTPClient != nil {
		rest = resty.NewWithClient(config.HTTPClient)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	retries := config.Retries
	switch {
	case retries == 0:
		retries = defaultRetries
	case retries < 0:
		retries = 0
	}
	retryWait := config.RetryWait
	if retryWait == 0 {
		retryWait = retryBaseDelay
	}

	rest.SetBaseURL(config.URL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(retries).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(max(retryWait, retryMaxDelay)).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() == http.StatusTooManyRequests
		})
	if config.Session != "" {
		rest.SetHeader(HeaderSession, config.Session)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newKey := config.IdempotencyKey
	if newKey == nil {
		newKey = uuid.NewString
	}

	return &StoreClient{rest: rest, logger: logger, newKey: newKey}, nil
}

// ============================================================================
// PaymentServiceClient Implementation
// ============================================================================

// CreateIntent creates a payment intent for the cart, or for orderID
func (c *StoreClient) CreateIntent(ctx context.Context, fingerprint checkout.Fingerprint, orderID string) (*checkout.Intent, error) {
	var intent checkout.Intent
	body := CreateIntentRequest{Fingerprint: fingerprint, OrderID: orderID}
	if err := c.post(ctx, RouteIntents, body, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// InitSetupIntent creates a setup intent
func (c *StoreClient) InitSetupIntent(ctx context.Context) (*checkout.Intent, error) {
	var intent checkout.Intent
	if err := c.post(ctx, RouteSetupIntents, struct{}{}, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// UpdateIntent attaches order metadata to the intent
func (c *StoreClient) UpdateIntent(ctx context.Context, req checkout.UpdateIntentRequest) (*checkout.UpdateIntentResponse, error) {
	var resp checkout.UpdateIntentResponse
	if err := c.post(ctx, IntentPath(req.IntentID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Confirm confirms the intent the client secret belongs to. Without a client
// secret nothing is sent and the incomplete fields are reported.
func (c *StoreClient) Confirm(ctx context.Context, elements checkout.Elements, params checkout.ConfirmParams, clientSecret string) (*checkout.ConfirmResult, error) {
	paymentMethod := elements.PaymentMethod()
	if clientSecret == "" || paymentMethod == "" {
		return nil, &checkout.ProcessorError{Message: validationMessage, Code: "incomplete", Type: "validation_error"}
	}
	intentID := checkout.IntentIDFromSecret(clientSecret)
	if intentID == "" {
		return nil, fmt.Errorf("malformed client secret")
	}

	var result checkout.ConfirmResult
	body := ConfirmRequest{ClientSecret: clientSecret, PaymentMethod: paymentMethod, Params: params}
	if err := c.post(ctx, ConfirmPath(intentID), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmSetup confirms the setup intent the elements were created for
func (c *StoreClient) ConfirmSetup(ctx context.Context, elements checkout.Elements, params checkout.ConfirmParams) (*checkout.ConfirmResult, error) {
	paymentMethod := elements.PaymentMethod()
	if paymentMethod == "" {
		return nil, &checkout.ProcessorError{Message: validationMessage, Code: "incomplete", Type: "validation_error"}
	}

	var result checkout.ConfirmResult
	body := ConfirmRequest{ClientSecret: elements.ClientSecret(), PaymentMethod: paymentMethod, Params: params}
	if err := c.post(ctx, RouteSetupConfirm, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmPendingAuthentication completes an out-of-band authentication
func (c *StoreClient) ConfirmPendingAuthentication(ctx context.Context, pending checkout.PendingAuthentication) (string, error) {
	var resp PendingAuthenticationResponse
	if err := c.post(ctx, RoutePendingAuthentication, pending, &resp); err != nil {
		return "", err
	}
	return resp.RedirectURL, nil
}

// LogError reports a failed charge
func (c *StoreClient) LogError(ctx context.Context, chargeRef string) error {
	return c.post(ctx, RouteLogError, LogErrorRequest{Charge: chargeRef}, nil)
}

// Elements returns a headless element group for the client secret. The
// host completes it with the processor token once the shopper has entered
// the payment details.
func (c *StoreClient) Elements(ctx context.Context, clientSecret string) (checkout.Elements, error) {
	if clientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	return checkout.NewTokenElements(clientSecret, ""), nil
}

// ============================================================================
// Transport
// ============================================================================

// post sends body and decodes a 2xx answer into out. Retries share the
// idempotency key of the call.
func (c *StoreClient) post(ctx context.Context, path string, body, out interface{}) error {
	key := c.newKey()
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderIdempotencyKey, key).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		c.logger.Debug("store request failed",
			zap.String("path", path),
			zap.String("idempotency_key", key),
			zap.Int("status", resp.StatusCode()))
		return decodeError(resp.StatusCode(), resp.Body())
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

var _ checkout.PaymentServiceClient = (*StoreClient)(nil)
