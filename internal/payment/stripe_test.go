package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// processorStub is a minimal Stripe-shaped API for tests.
type processorStub struct {
	sessions map[string]map[string]any
	intents  map[string]map[string]any

	lastForm url.Values
}

func newProcessorStub() *processorStub {
	return &processorStub{
		sessions: make(map[string]map[string]any),
		intents:  make(map[string]map[string]any),
	}
}

func (p *processorStub) server(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.lastForm = r.PostForm
		writeStub(w, http.StatusOK, map[string]any{
			"id":             "cs_new",
			"url":            "https://checkout.example/cs_new",
			"payment_status": "unpaid",
		})
	})

	mux.HandleFunc("POST /v1/payment_intents", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.lastForm = r.PostForm
		writeStub(w, http.StatusOK, map[string]any{
			"id":            "pi_new",
			"client_secret": "pi_new_secret_abc",
			"status":        "requires_payment_method",
		})
	})

	mux.HandleFunc("GET /v1/checkout/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		s, ok := p.sessions[r.PathValue("id")]
		if !ok {
			writeStub(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"type": "invalid_request_error", "message": "No such checkout session"},
			})
			return
		}
		writeStub(w, http.StatusOK, s)
	})

	mux.HandleFunc("GET /v1/payment_intents/{id}", func(w http.ResponseWriter, r *http.Request) {
		s, ok := p.intents[r.PathValue("id")]
		if !ok {
			writeStub(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"type": "invalid_request_error", "message": "No such payment intent"},
			})
			return
		}
		writeStub(w, http.StatusOK, s)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeStub(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:    baseURL,
		SecretKey:  "sk_test_123",
		Amount:     100,
		Currency:   "eur",
		ReturnBase: "https://fallback.example",
		Timeout:    2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func Test_NewClient_Requires_Secret(t *testing.T) {
	req := require.New(t)
	_, err := NewClient(Options{})
	req.Error(err)
}

func Test_CreateCheckoutSession_Sends_Fixed_Price_And_Metadata(t *testing.T) {
	req := require.New(t)
	stub := newProcessorStub()
	c := newTestClient(t, stub.server(t).URL)

	url, err := c.CreateCheckoutSession(context.Background(), "hello", "https://example.org")
	req.NoError(err)
	req.Equal("https://checkout.example/cs_new", url)

	req.Equal("payment", stub.lastForm.Get("mode"))
	req.Equal("100", stub.lastForm.Get("line_items[0][price_data][unit_amount]"))
	req.Equal("eur", stub.lastForm.Get("line_items[0][price_data][currency]"))
	req.Equal("1", stub.lastForm.Get("line_items[0][quantity]"))
	req.Equal("hello", stub.lastForm.Get("metadata[pending_text]"))
	req.Equal("https://example.org/?session_id={CHECKOUT_SESSION_ID}", stub.lastForm.Get("success_url"))
	req.Equal("https://example.org/", stub.lastForm.Get("cancel_url"))
}

func Test_CreateCheckoutSession_Falls_Back_To_Configured_Origin(t *testing.T) {
	req := require.New(t)
	stub := newProcessorStub()
	c := newTestClient(t, stub.server(t).URL)

	_, err := c.CreateCheckoutSession(context.Background(), "hello", "")
	req.NoError(err)
	req.Equal("https://fallback.example/?session_id={CHECKOUT_SESSION_ID}", stub.lastForm.Get("success_url"))
}

func Test_CreatePaymentIntent_Returns_Client_Secret(t *testing.T) {
	req := require.New(t)
	stub := newProcessorStub()
	c := newTestClient(t, stub.server(t).URL)

	secret, err := c.CreatePaymentIntent(context.Background(), "hello")
	req.NoError(err)
	req.Equal("pi_new_secret_abc", secret)

	req.Equal("100", stub.lastForm.Get("amount"))
	req.Equal("eur", stub.lastForm.Get("currency"))
	req.Equal("card", stub.lastForm.Get("payment_method_types[0]"))
	req.Equal("hello", stub.lastForm.Get("metadata[pending_text]"))
}

func Test_VerifyReference_Session_Paid_With_Trimmed_Metadata(t *testing.T) {
	req := require.New(t)
	stub := newProcessorStub()
	stub.sessions["cs_1"] = map[string]any{
		"id":             "cs_1",
		"payment_status": "paid",
		"metadata":       map[string]any{"pending_text": "  hello  "},
	}
	c := newTestClient(t, stub.server(t).URL)

	v, err := c.VerifyReference(context.Background(), SessionReference("cs_1"))
	req.NoError(err)
	req.True(v.Paid)
	req.Equal("paid", v.Status)
	req.Equal("hello", v.PendingText)
}

func Test_VerifyReference_Session_Unpaid_Is_Negative_Not_Error(t *testing.T) {
	req := require.New(t)
	stub := newProcessorStub()
	stub.sessions["cs_1"] = map[string]any{
		"id":             "cs_1",
		"payment_status": "unpaid",
	}
	c := newTestClient(t, stub.server(t).URL)

	v, err := c.VerifyReference(context.Background(), SessionReference("cs_1"))
	req.NoError(err)
	req.False(v.Paid)
	req.Equal("unpaid", v.Status)
	req.Empty(v.PendingText)
}

func Test_VerifyReference_Intent_Succeeded_Only(t *testing.T) {
	req := require.New(t)
	stub := newProcessorStub()
	stub.intents["pi_1"] = map[string]any{
		"id":       "pi_1",
		"status":   "succeeded",
		"metadata": map[string]any{"pending_text": "world"},
	}
	stub.intents["pi_2"] = map[string]any{
		"id":     "pi_2",
		"status": "processing",
	}
	c := newTestClient(t, stub.server(t).URL)

	v, err := c.VerifyReference(context.Background(), IntentReference("pi_1"))
	req.NoError(err)
	req.True(v.Paid)
	req.Equal("world", v.PendingText)

	// "processing" is not a terminal success
	v, err = c.VerifyReference(context.Background(), IntentReference("pi_2"))
	req.NoError(err)
	req.False(v.Paid)
	req.Equal("processing", v.Status)
}

func Test_VerifyReference_Unknown_ID_Is_An_Error(t *testing.T) {
	req := require.New(t)
	stub := newProcessorStub()
	c := newTestClient(t, stub.server(t).URL)

	_, err := c.VerifyReference(context.Background(), SessionReference("cs_missing"))
	req.Error(err)
	req.Contains(err.Error(), "No such checkout session")
}

func Test_VerifyReference_Empty_Reference_Is_An_Error(t *testing.T) {
	req := require.New(t)
	stub := newProcessorStub()
	c := newTestClient(t, stub.server(t).URL)

	_, err := c.VerifyReference(context.Background(), Reference{})
	req.Error(err)
}
