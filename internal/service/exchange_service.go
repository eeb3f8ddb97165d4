package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"message_relay/internal/metrics"
	"message_relay/internal/models"
	"message_relay/internal/payment"
)

const maxMessageRunes = 500

var (
	ErrInvalidMessage   = errors.New("invalid message")
	ErrNoToken          = errors.New("missing payment token")
	ErrVerification     = errors.New("payment verification failed")
	ErrStoreUnavailable = errors.New("message store unavailable")
)

// UnpaidError is the legitimate negative verification result: the
// processor answered, and the answer was "not paid". Status carries the
// processor-reported sub-status for the client.
type UnpaidError struct {
	Status string
}

func (e *UnpaidError) Error() string {
	if e.Status == "" {
		return "payment not completed"
	}
	return "payment not completed: " + e.Status
}

// PaymentClient is the slice of the processor client the coordinator needs.
type PaymentClient interface {
	CreateCheckoutSession(ctx context.Context, pendingText, origin string) (string, error)
	CreatePaymentIntent(ctx context.Context, pendingText string) (string, error)
	VerifyReference(ctx context.Context, ref payment.Reference) (*payment.Verification, error)
}

// ExchangeStore is the transactional swap the coordinator drives. The
// implementation lives in repository; tests substitute a fake.
type ExchangeStore interface {
	Latest(ctx context.Context) (*models.Message, error)
	Exchange(ctx context.Context, referenceID string, text string) (*models.ExchangeOutcome, error)
}

// ExchangeService coordinates the payment-gated swap: it never touches the
// store, in either direction, before the processor has confirmed payment.
type ExchangeService struct {
	payments PaymentClient
	store    ExchangeStore
	logger   *log.Logger
}

func NewExchangeService(payments PaymentClient, store ExchangeStore, logger *log.Logger) *ExchangeService {
	if logger == nil {
		logger = log.Default()
	}
	return &ExchangeService{
		payments: payments,
		store:    store,
		logger:   logger,
	}
}

// InitiateCheckout validates the pending text and creates a hosted
// checkout session carrying it. No store access, no local state.
func (s *ExchangeService) InitiateCheckout(ctx context.Context, rawText, origin string) (string, error) {
	text, err := validateText(rawText)
	if err != nil {
		return "", err
	}

	url, err := s.payments.CreateCheckoutSession(ctx, text, origin)
	if err != nil {
		s.logger.Printf("initiate checkout failed: %v", err)
		return "", fmt.Errorf("initiate checkout: %w", err)
	}

	metrics.IncPaymentInitiated("checkout")
	return url, nil
}

// InitiateIntent is the embedded-flow variant of InitiateCheckout.
func (s *ExchangeService) InitiateIntent(ctx context.Context, rawText string) (string, error) {
	text, err := validateText(rawText)
	if err != nil {
		return "", err
	}

	secret, err := s.payments.CreatePaymentIntent(ctx, text)
	if err != nil {
		s.logger.Printf("initiate intent failed: %v", err)
		return "", fmt.Errorf("initiate intent: %w", err)
	}

	metrics.IncPaymentInitiated("intent")
	return secret, nil
}

// Confirm is the core state machine. Step order is strict:
// token check, then verification, and only on paid=true the swap.
// A verification fault is never reported as unpaid.
func (s *ExchangeService) Confirm(ctx context.Context, ref payment.Reference) (*models.ExchangeOutcome, error) {
	if ref.IsZero() {
		return nil, ErrNoToken
	}

	v, err := s.payments.VerifyReference(ctx, ref)
	if err != nil {
		metrics.IncPaymentVerification("error")
		s.logger.Printf("verify %s %s failed: %v", ref.Kind, ref.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	if !v.Paid {
		metrics.IncPaymentVerification("unpaid")
		return nil, &UnpaidError{Status: v.Status}
	}
	metrics.IncPaymentVerification("paid")

	text := strings.TrimSpace(v.PendingText)

	outcome, err := s.store.Exchange(ctx, ref.ID, text)
	if err != nil {
		s.logger.Printf("exchange for %s failed: %v", ref.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if outcome.Replayed {
		metrics.IncExchangeReplayed()
		s.logger.Printf("replayed confirmation for %s", ref.ID)
	} else {
		metrics.IncExchangeCompleted(outcome.Saved)
		if outcome.Saved {
			metrics.ObserveMessageLength(utf8.RuneCountInString(text))
		}
	}

	return outcome, nil
}

// Last returns the current message without any payment gate. Read-only,
// non-authoritative convenience.
func (s *ExchangeService) Last(ctx context.Context) (*models.Message, error) {
	m, err := s.store.Latest(ctx)
	if err != nil {
		s.logger.Printf("read last message failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return m, nil
}

func validateText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return "", fmt.Errorf("%w: text is empty after trimming", ErrInvalidMessage)
	}
	if n > maxMessageRunes {
		return "", fmt.Errorf("%w: text exceeds %d characters", ErrInvalidMessage, maxMessageRunes)
	}
	return text, nil
}
