package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"message_relay/internal/kafka"
	"message_relay/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExchangeStore runs the payment-confirmed swap as one transaction:
// take the slot lock, short-circuit on a replayed reference, capture the
// previous message, install the new one, record consumption and queue the
// exchange event. Either everything commits or nothing does.
type ExchangeStore struct {
	db       *pgxpool.Pool
	messages *MessageRepository
	consumed *ConsumedRepository
	outbox   *OutboxRepository

	topic       string
	consumedTTL time.Duration
}

func NewExchangeStore(
	db *pgxpool.Pool,
	messages *MessageRepository,
	consumed *ConsumedRepository,
	outbox *OutboxRepository,
	topic string,
	consumedTTL time.Duration,
) *ExchangeStore {
	if consumedTTL <= 0 {
		consumedTTL = 24 * time.Hour
	}
	return &ExchangeStore{
		db:          db,
		messages:    messages,
		consumed:    consumed,
		outbox:      outbox,
		topic:       topic,
		consumedTTL: consumedTTL,
	}
}

// Latest returns the current message without any payment gate.
func (s *ExchangeStore) Latest(ctx context.Context) (*models.Message, error) {
	return s.messages.Latest(ctx)
}

// Exchange performs the swap for a verified-paid reference. text must
// already be trimmed; empty text means "reveal only", which still consumes
// the reference but leaves the slot untouched.
func (s *ExchangeStore) Exchange(ctx context.Context, referenceID string, text string) (*models.ExchangeOutcome, error) {
	if referenceID == "" {
		return nil, fmt.Errorf("referenceID is empty")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1) serialize against concurrent swaps before looking at anything
	if err := s.messages.LockSlotTx(ctx, tx); err != nil {
		return nil, err
	}

	// 2) replayed reference: hand back the first outcome, no second swap
	cached, err := s.consumed.GetTx(ctx, tx, referenceID)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return &models.ExchangeOutcome{
			Previous: cached.PreviousText,
			Saved:    cached.Saved,
			Replayed: true,
		}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// 3) previous must be captured strictly before the write, so the payer
	// never sees their own message as "previous" on this call
	prev, err := s.messages.LatestTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	var previous *string
	if prev != nil {
		t := prev.Text
		previous = &t
	}

	// 4) install the new message, if any
	saved := text != ""
	if saved {
		if _, err := s.messages.AppendTx(ctx, tx, text); err != nil {
			return nil, err
		}
	}

	// 5) consume the reference with the outcome of this first confirmation
	if err := s.consumed.RecordTx(ctx, tx, referenceID, previous, saved, s.consumedTTL); err != nil {
		return nil, err
	}

	// 6) queue the exchange event in the same transaction
	event := kafka.NewExchangeEvent(referenceID, saved, len([]rune(text)))
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal exchange event: %w", err)
	}
	ob := &models.OutboxMessage{
		Topic:   s.topic,
		Payload: payload,
	}
	if err := s.outbox.CreateMessage(ctx, tx, ob); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &models.ExchangeOutcome{
		Previous: previous,
		Saved:    saved,
	}, nil
}
