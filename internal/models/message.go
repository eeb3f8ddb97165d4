package models

import "time"

// Message is the single persisted entity: the current "last message".
// The store keeps history rows, but only the newest one is ever read.
type Message struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ExchangeOutcome is the result of one confirmed exchange.
// Previous is nil when the store had never been written.
type ExchangeOutcome struct {
	Previous *string `json:"previous"`
	Saved    bool    `json:"saved"`
	Replayed bool    `json:"-"`
}

// ConsumedReference records the first outcome for a payment reference so
// a replayed confirmation returns the same result instead of swapping again.
type ConsumedReference struct {
	ReferenceID  string    `db:"reference_id"`
	PreviousText *string   `db:"previous_text"`
	Saved        bool      `db:"saved"`
	ConsumedAt   time.Time `db:"consumed_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}
