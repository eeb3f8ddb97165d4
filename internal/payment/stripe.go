package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const metadataPendingText = "pending_text"

// Client talks to a Stripe-shaped payment API. It creates the payment
// reference carrying the pending text as metadata, and later resolves the
// reference back to a terminal status plus that text. It holds no local
// state; the metadata round-trip is what makes the service stateless
// between initiation and confirmation.
type Client struct {
	http     *resty.Client
	amount   int64
	currency string
	// returnBase is the origin fallback for success/cancel URLs when the
	// submit request carries no Origin header.
	returnBase string
}

type Options struct {
	BaseURL    string
	SecretKey  string
	Amount     int64
	Currency   string
	ReturnBase string
	Timeout    time.Duration
}

func NewClient(opts Options) (*Client, error) {
	if opts.SecretKey == "" {
		return nil, fmt.Errorf("payment secret key is empty")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.stripe.com"
	}
	if opts.Amount <= 0 {
		opts.Amount = 100
	}
	if opts.Currency == "" {
		opts.Currency = "eur"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetAuthToken(opts.SecretKey).
		SetTimeout(opts.Timeout)

	return &Client{
		http:       http,
		amount:     opts.Amount,
		currency:   opts.Currency,
		returnBase: strings.TrimRight(opts.ReturnBase, "/"),
	}, nil
}

// checkoutSession mirrors the fields we read from /v1/checkout/sessions.
type checkoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"` // paid, unpaid, no_payment_required
	Metadata      map[string]string `json:"metadata"`
}

// paymentIntent mirrors the fields we read from /v1/payment_intents.
type paymentIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"` // succeeded is the only terminal success
	Metadata     map[string]string `json:"metadata"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Verification is the processor's answer for one reference. Paid is true
// only on a terminal-success status; "processing" is not paid.
type Verification struct {
	Paid        bool
	Status      string
	PendingText string
}

// CreateCheckoutSession creates a fixed-price single-use checkout session
// carrying pendingText as metadata, and returns the hosted checkout URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, pendingText, origin string) (string, error) {
	base := strings.TrimRight(origin, "/")
	if base == "" {
		base = c.returnBase
	}
	if base == "" {
		return "", fmt.Errorf("no origin for checkout return urls")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", c.currency)
	form.Set("line_items[0][price_data][product_data][name]", "Message")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(c.amount, 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", base+"/?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", base+"/")
	form.Set("metadata["+metadataPendingText+"]", pendingText)

	var ok checkoutSession
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetFormDataFromValues(form).
		SetResult(&ok).
		SetError(&apiErr).
		Post("/v1/checkout/sessions")

	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create checkout session: %s", apiMessage(&apiErr, resp.Status()))
	}
	if ok.URL == "" {
		return "", fmt.Errorf("create checkout session: no url in response")
	}

	return ok.URL, nil
}

// CreatePaymentIntent creates a fixed-price payment intent for the
// embedded confirmation flow and returns its client secret.
func (c *Client) CreatePaymentIntent(ctx context.Context, pendingText string) (string, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(c.amount, 10))
	form.Set("currency", c.currency)
	form.Set("payment_method_types[0]", "card")
	form.Set("metadata["+metadataPendingText+"]", pendingText)

	var ok paymentIntent
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetFormDataFromValues(form).
		SetResult(&ok).
		SetError(&apiErr).
		Post("/v1/payment_intents")

	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create payment intent: %s", apiMessage(&apiErr, resp.Status()))
	}
	if ok.ClientSecret == "" {
		return "", fmt.Errorf("create payment intent: no client_secret in response")
	}

	return ok.ClientSecret, nil
}

// VerifyReference resolves the current processor-side status of ref and
// extracts the attached pending text. An unreachable processor or an
// unknown reference id is an error, never a "not paid" answer.
func (c *Client) VerifyReference(ctx context.Context, ref Reference) (*Verification, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("reference is empty")
	}

	switch ref.Kind {
	case KindSession:
		return c.verifySession(ctx, ref.ID)
	case KindIntent:
		return c.verifyIntent(ctx, ref.ID)
	default:
		return nil, fmt.Errorf("unknown reference kind: %s", ref.Kind)
	}
}

func (c *Client) verifySession(ctx context.Context, id string) (*Verification, error) {
	var ok checkoutSession
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&ok).
		SetError(&apiErr).
		Get("/v1/checkout/sessions/" + id)

	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("retrieve checkout session: %s", apiMessage(&apiErr, resp.Status()))
	}

	return &Verification{
		Paid:        ok.PaymentStatus == "paid",
		Status:      ok.PaymentStatus,
		PendingText: strings.TrimSpace(ok.Metadata[metadataPendingText]),
	}, nil
}

func (c *Client) verifyIntent(ctx context.Context, id string) (*Verification, error) {
	var ok paymentIntent
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&ok).
		SetError(&apiErr).
		Get("/v1/payment_intents/" + id)

	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("retrieve payment intent: %s", apiMessage(&apiErr, resp.Status()))
	}

	return &Verification{
		Paid:        ok.Status == "succeeded",
		Status:      ok.Status,
		PendingText: strings.TrimSpace(ok.Metadata[metadataPendingText]),
	}, nil
}

func apiMessage(e *apiError, fallback string) string {
	if e != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return "received status " + fallback
}
