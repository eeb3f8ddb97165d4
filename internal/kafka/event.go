package kafka

import "time"

// ExchangeEvent is the payload published for every completed exchange.
// Message text never leaves the store through this path, only its length.
type ExchangeEvent struct {
	ReferenceID   string    `json:"reference_id"`
	Saved         bool      `json:"saved"`
	MessageLength int       `json:"message_length"`
	ExchangedAt   time.Time `json:"exchanged_at"`
}

func NewExchangeEvent(referenceID string, saved bool, messageLength int) *ExchangeEvent {
	return &ExchangeEvent{
		ReferenceID:   referenceID,
		Saved:         saved,
		MessageLength: messageLength,
		ExchangedAt:   time.Now().UTC(),
	}
}
