package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gildedshear/platform/libs/auth"
	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/services/booking-service/internal/adminview"
	"github.com/gildedshear/platform/services/booking-service/internal/availability"
	"github.com/gildedshear/platform/services/booking-service/internal/booking"
	"github.com/gildedshear/platform/services/booking-service/internal/model"
	"github.com/gildedshear/platform/services/booking-service/internal/outbox"
	"github.com/gildedshear/platform/services/booking-service/internal/payments"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

const (
	testWebhookSecret = "whsec_test"
	testJWTSecret     = "jwt-secret"
	testAdminEmail    = "barber@example.com"
)

type fakeCalendar struct {
	booked      []string
	month       map[string][]string
	slots       []string
	free        bool
	err         error
	invalidated []time.Time
}

func (f *fakeCalendar) Month(context.Context, int, time.Month) (map[string][]string, error) {
	return f.month, f.err
}

func (f *fakeCalendar) Booked(context.Context, availability.CalendarDate) ([]string, error) {
	return f.booked, f.err
}

func (f *fakeCalendar) Slots(context.Context, availability.CalendarDate) ([]string, error) {
	return f.slots, f.err
}

func (f *fakeCalendar) CanBook(context.Context, time.Time, time.Duration) (bool, error) {
	return f.free, f.err
}

func (f *fakeCalendar) Invalidate(_ context.Context, at time.Time) {
	f.invalidated = append(f.invalidated, at)
}

type fakeStore struct {
	pool    pgxmock.PgxPoolIface
	updated model.Appointment
	err     error
}

func (s *fakeStore) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

func (s *fakeStore) UpdateStatus(_ context.Context, _ pgx.Tx, id, status string) (model.Appointment, error) {
	if s.err != nil {
		return model.Appointment{}, s.err
	}
	appt := s.updated
	appt.ID = id
	appt.Status = status
	return appt, nil
}

type fakeConfirmer struct {
	result booking.Result
	err    error
	got    booking.PaymentIntent
}

func (f *fakeConfirmer) Confirm(_ context.Context, _ pgx.Tx, intent booking.PaymentIntent) (booking.Result, error) {
	f.got = intent
	return f.result, f.err
}

type fakeQueue struct {
	events []outbox.Event
}

func (f *fakeQueue) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

type fakeIntents struct {
	got payments.IntentRequest
	err error
}

func (f *fakeIntents) CreateIntent(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
	f.got = req
	if f.err != nil {
		return payments.Intent{}, f.err
	}
	return payments.Intent{ID: "pi_123", ClientSecret: "pi_123_secret_abc"}, nil
}

type fakeAdmin struct {
	snapshot adminview.Snapshot
	stats    adminview.Stats
}

func (f *fakeAdmin) Snapshot(context.Context) (adminview.Snapshot, error) { return f.snapshot, nil }
func (f *fakeAdmin) Stats(context.Context) (adminview.Stats, error)       { return f.stats, nil }

func (f *fakeAdmin) Watch(ctx context.Context) (<-chan adminview.Snapshot, error) {
	ch := make(chan adminview.Snapshot, 1)
	ch <- f.snapshot
	close(ch)
	return ch, nil
}

type fakeTokens struct {
	tokens []string
}

func (f *fakeTokens) AddPushToken(_ context.Context, token string) (int, error) {
	for _, t := range f.tokens {
		if t == token {
			return len(f.tokens), nil
		}
	}
	f.tokens = append(f.tokens, token)
	return len(f.tokens), nil
}

type fakeChanges struct {
	ids []string
}

func (f *fakeChanges) Publish(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

type fixture struct {
	h        *Handler
	pool     pgxmock.PgxPoolIface
	calendar *fakeCalendar
	store    *fakeStore
	writer   *fakeConfirmer
	queue    *fakeQueue
	intents  *fakeIntents
	admin    *fakeAdmin
	tokens   *fakeTokens
	changes  *fakeChanges
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(pool.Close)

	f := &fixture{
		pool:     pool,
		calendar: &fakeCalendar{free: true},
		store:    &fakeStore{pool: pool},
		writer:   &fakeConfirmer{},
		queue:    &fakeQueue{},
		intents:  &fakeIntents{},
		admin:    &fakeAdmin{},
		tokens:   &fakeTokens{},
		changes:  &fakeChanges{},
	}
	f.h = New(Deps{
		Business: business.Default(),
		Calendar: f.calendar,
		Store:    f.store,
		Writer:   f.writer,
		Outbox:   f.queue,
		Intents:  f.intents,
		Admin:    f.admin,
		Tokens:   f.tokens,
		Changes:  f.changes,
		Verifier: &auth.Verifier{Secret: testJWTSecret},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{
		StripeWebhookSecret: testWebhookSecret,
		AdminEmails:         []string{" Barber@Example.com "},
	})
	return f
}

func adminToken(t *testing.T, email string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.Claims{
		Sub:   "admin-1",
		Email: email,
		Iat:   time.Now().Unix(),
		Exp:   time.Now().Add(time.Hour).Unix(),
	}, testJWTSecret)
	if err != nil {
		t.Fatalf("SignHS256: %v", err)
	}
	return token
}
