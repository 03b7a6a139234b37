package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

var ErrDuplicatePaymentEvent = errors.New("duplicate payment event")

type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

// InsertPaymentEvent records a webhook delivery. A replayed provider event id
// returns ErrDuplicatePaymentEvent.
func InsertPaymentEvent(ctx context.Context, tx pgx.Tx, evt PaymentEvent) error {
	if !json.Valid(evt.Payload) {
		return errors.New("payment event payload is not valid json")
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO payment_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, string(evt.Payload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicatePaymentEvent
	}
	return nil
}
