package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"message_relay/internal/cache"
	"message_relay/internal/metrics"
	"message_relay/internal/models"
	"message_relay/internal/payment"
	"message_relay/internal/service"
)

// Error codes of the external interface.
const (
	codeInvalidMessage    = "INVALID_MESSAGE"
	codeNoToken           = "NO_TOKEN"
	codeUnpaid            = "UNPAID"
	codeVerificationError = "VERIFICATION_ERROR"
	codeStoreUnavailable  = "STORE_UNAVAILABLE"
	codeServerError       = "SERVER_ERROR"
)

// ExchangeService describes the service-layer methods the handlers need.
type ExchangeService interface {
	InitiateCheckout(ctx context.Context, rawText, origin string) (string, error)
	InitiateIntent(ctx context.Context, rawText string) (string, error)
	Confirm(ctx context.Context, ref payment.Reference) (*models.ExchangeOutcome, error)
	Last(ctx context.Context) (*models.Message, error)
}

type ExchangeHandler struct {
	service ExchangeService
	cache   cache.Cache
	ttl     time.Duration
}

func NewExchangeHandler(service ExchangeService, cache cache.Cache, ttl time.Duration) *ExchangeHandler {
	return &ExchangeHandler{
		service: service,
		cache:   cache,
		ttl:     ttl,
	}
}

type submitRequest struct {
	PendingText string `json:"pendingText"`
}

// POST /api/messages
// 200: { "url": "https://..." } — hosted checkout redirect target
// 400: INVALID_MESSAGE
// 500: SERVER_ERROR
func (h *ExchangeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorDetail(w, http.StatusBadRequest, codeInvalidMessage, "invalid json: "+err.Error())
		return
	}

	url, err := h.service.InitiateCheckout(r.Context(), req.PendingText, r.Header.Get("Origin"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMessage):
			writeErrorDetail(w, http.StatusBadRequest, codeInvalidMessage, "1-500 characters required")
		default:
			writeError(w, http.StatusInternalServerError, codeServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// POST /api/messages/intent
// 200: { "clientSecret": "pi_..._secret_..." } — embedded confirmation flow
// 400: INVALID_MESSAGE
// 500: SERVER_ERROR
func (h *ExchangeHandler) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorDetail(w, http.StatusBadRequest, codeInvalidMessage, "invalid json: "+err.Error())
		return
	}

	secret, err := h.service.InitiateIntent(r.Context(), req.PendingText)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMessage):
			writeErrorDetail(w, http.StatusBadRequest, codeInvalidMessage, "1-500 characters required")
		default:
			writeError(w, http.StatusInternalServerError, codeServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"clientSecret": secret})
}

// GET /api/messages/confirm?session_id=... | ?intent_id=...
// 200: { "previous": string|null, "saved": bool }
// 400: NO_TOKEN
// 402: UNPAID (+ processor status)
// 500: VERIFICATION_ERROR | STORE_UNAVAILABLE
func (h *ExchangeHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	intentID := strings.TrimSpace(r.URL.Query().Get("intent_id"))

	// exactly one token kind per call
	if (sessionID == "") == (intentID == "") {
		writeError(w, http.StatusBadRequest, codeNoToken)
		return
	}

	ref := payment.SessionReference(sessionID)
	if intentID != "" {
		ref = payment.IntentReference(intentID)
	}

	outcome, err := h.service.Confirm(r.Context(), ref)
	if err != nil {
		var unpaid *service.UnpaidError
		switch {
		case errors.Is(err, service.ErrNoToken):
			writeError(w, http.StatusBadRequest, codeNoToken)
		case errors.As(err, &unpaid):
			writeJSON(w, http.StatusPaymentRequired, map[string]string{
				"error":  codeUnpaid,
				"status": unpaid.Status,
			})
		case errors.Is(err, service.ErrVerification):
			writeError(w, http.StatusInternalServerError, codeVerificationError)
		case errors.Is(err, service.ErrStoreUnavailable):
			writeError(w, http.StatusInternalServerError, codeStoreUnavailable)
		default:
			writeError(w, http.StatusInternalServerError, codeServerError)
		}
		return
	}

	// the slot changed; drop the cached read
	if h.cache != nil && outcome.Saved {
		_ = h.cache.Del(r.Context(), cache.LastMessageKey())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"previous": outcome.Previous,
		"saved":    outcome.Saved,
	})
}

// GET /api/messages/last
// 200: { "last": Message|null } — read-only, no payment gate
// 500: STORE_UNAVAILABLE
func (h *ExchangeHandler) Last(w http.ResponseWriter, r *http.Request) {
	// 1) cache lookup
	if h.cache != nil {
		if b, ok, err := h.cache.Get(r.Context(), cache.LastMessageKey()); err == nil && ok {
			metrics.IncRedisHit()
			w.Header().Set("X-Cache", "HIT")
			writeRawJSON(w, http.StatusOK, b)
			return
		}
	}

	// 2) store via service
	last, err := h.service.Last(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeStoreUnavailable)
		return
	}

	b, _ := json.Marshal(map[string]any{"last": last})

	// 3) cache store
	if h.cache != nil {
		_ = h.cache.Set(r.Context(), cache.LastMessageKey(), b, h.ttl)
	}

	metrics.IncRedisMiss()
	w.Header().Set("X-Cache", "MISS")
	writeRawJSON(w, http.StatusOK, b)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}

	// reject a second JSON object in the body
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("only one JSON object is allowed")
	}

	return nil
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeErrorDetail(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeRawJSON(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
