package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

var ErrNotConfigured = errors.New("stripe not configured")

type IntentRequest struct {
	AmountCents int64
	Currency    string
	Description string
	Email       string
	Metadata    map[string]string
	// IdempotencyKey makes client retries return the same intent.
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type IntentCreator interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// StripeIntents creates card PaymentIntents with the secret key.
type StripeIntents struct {
	secretKey string
}

func NewStripeIntents(secretKey string) *StripeIntents {
	return &StripeIntents{secretKey: strings.TrimSpace(secretKey)}
}

func (s *StripeIntents) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if s.secretKey == "" {
		return Intent{}, ErrNotConfigured
	}
	stripe.Key = s.secretKey

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return Intent{}, err
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}
