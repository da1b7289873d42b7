// Package stripe implements gateway.Gateway over the Stripe Checkout REST API.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/services/gateway"
)

const (
	defaultBaseURL = "https://api.stripe.com"
	name           = "stripe"
)

// Config holds the Stripe client settings
type Config struct {
	SecretKey  string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
}

// checkoutSession is the subset of the Stripe checkout.session object we read
type checkoutSession struct {
	ID                string `json:"id"`
	URL               string `json:"url"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	ClientReferenceID string `json:"client_reference_id"`
	ExpiresAt         int64  `json:"expires_at"`
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Adapter implements gateway.Gateway for Stripe
type Adapter struct {
	client *resty.Client
	logger *zap.Logger
}

// NewAdapter creates a Stripe adapter. Requests are retried on transport
// errors and 5xx responses.
func NewAdapter(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.SecretKey).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4*cfg.RetryWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})

	return &Adapter{client: client, logger: logger}
}

// Name returns the gateway name
func (a *Adapter) Name() string {
	return name
}

// CreateCheckoutSession opens a one line item payment session
func (a *Adapter) CreateCheckoutSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
	form := map[string]string{
		"mode":                                          "payment",
		"success_url":                                   req.SuccessURL,
		"cancel_url":                                    req.CancelURL,
		"client_reference_id":                           req.SubmissionID.String(),
		"metadata[submission_id]":                       req.SubmissionID.String(),
		"line_items[0][quantity]":                       "1",
		"line_items[0][price_data][currency]":           strings.ToLower(req.Currency),
		"line_items[0][price_data][unit_amount]":        strconv.FormatInt(req.AmountCents, 10),
		"line_items[0][price_data][product_data][name]": req.Description,
		"payment_intent_data[metadata][submission_id]":  req.SubmissionID.String(),
	}
	if req.CustomerEmail != "" {
		form["customer_email"] = req.CustomerEmail
	}

	r := a.client.R().SetContext(ctx).SetFormData(form)
	if req.IdempotencyKey != "" {
		r.SetHeader("Idempotency-Key", req.IdempotencyKey)
	}

	var session checkoutSession
	var apiErr errorEnvelope
	resp, err := r.SetResult(&session).SetError(&apiErr).Post("/v1/checkout/sessions")
	if err != nil {
		a.logger.Error("stripe create session failed",
			zap.Error(err),
			zap.String("submission_id", req.SubmissionID.String()))
		return nil, gateway.NewError(name, "HTTP_ERROR", "stripe request failed", 0, true, err)
	}
	if resp.IsError() {
		return nil, a.handleErrorResponse(resp.StatusCode(), &apiErr)
	}

	a.logger.Info("stripe checkout session created",
		zap.String("session_id", session.ID),
		zap.String("submission_id", req.SubmissionID.String()),
		zap.Int64("amount_cents", req.AmountCents))

	return toSession(&session), nil
}

// GetCheckoutSession retrieves a session by id
func (a *Adapter) GetCheckoutSession(ctx context.Context, sessionID string) (*gateway.Session, error) {
	var session checkoutSession
	var apiErr errorEnvelope
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&session).
		SetError(&apiErr).
		Get("/v1/checkout/sessions/{id}")
	if err != nil {
		a.logger.Error("stripe get session failed", zap.Error(err), zap.String("session_id", sessionID))
		return nil, gateway.NewError(name, "HTTP_ERROR", "stripe request failed", 0, true, err)
	}
	if resp.IsError() {
		return nil, a.handleErrorResponse(resp.StatusCode(), &apiErr)
	}
	return toSession(&session), nil
}

func (a *Adapter) handleErrorResponse(statusCode int, apiErr *errorEnvelope) error {
	code := apiErr.Error.Code
	if code == "" {
		code = apiErr.Error.Type
	}
	message := apiErr.Error.Message
	if message == "" {
		message = fmt.Sprintf("stripe returned status %d", statusCode)
	}

	a.logger.Warn("stripe API error",
		zap.Int("status_code", statusCode),
		zap.String("code", code),
		zap.String("message", message))

	retryable := statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
	return gateway.NewError(name, code, message, statusCode, retryable, nil)
}

func toSession(s *checkoutSession) *gateway.Session {
	out := &gateway.Session{
		ID:                s.ID,
		URL:               s.URL,
		Status:            gateway.SessionStatus(s.Status),
		PaymentStatus:     gateway.PaymentStatus(s.PaymentStatus),
		AmountTotal:       s.AmountTotal,
		Currency:          strings.ToUpper(s.Currency),
		ClientReferenceID: s.ClientReferenceID,
	}
	if s.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	}
	return out
}
