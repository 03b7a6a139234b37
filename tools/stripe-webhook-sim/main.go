package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gildedshear/platform/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Sends a signed payment_intent event to the booking service so the webhook
// path can be exercised without the Stripe CLI.
func main() {
	var (
		baseURL  = flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking service base url")
		evtType  = flag.String("type", config.String("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "payment_intent.succeeded or payment_intent.payment_failed")
		secret   = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
		intentID = flag.String("intent", "", "payment intent id (default: generated)")
		eventID  = flag.String("event", "", "event id (default: generated; reuse one to test replays)")
		service  = flag.String("service", "classic-haircut", "serviceId metadata")
		name     = flag.String("name", "Test Client", "customerName metadata")
		email    = flag.String("email", "client@example.com", "customerEmail metadata")
		date     = flag.String("date", time.Now().AddDate(0, 0, 1).Format("2006-01-02"), "bookingDate metadata (YYYY-MM-DD)")
		clock    = flag.String("time", "4:00 PM", "bookingTime metadata")
		amount   = flag.Int64("amount", 2500, "amount in cents")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}

	now := time.Now().UTC()
	if *intentID == "" {
		*intentID = fmt.Sprintf("pi_test_%d", now.UnixNano())
	}
	if *eventID == "" {
		*eventID = fmt.Sprintf("evt_test_%d", now.UnixNano())
	}

	intent := map[string]any{
		"id":       *intentID,
		"object":   "payment_intent",
		"amount":   *amount,
		"currency": "usd",
		"status":   "succeeded",
		"metadata": map[string]string{
			"serviceId":     *service,
			"customerName":  *name,
			"customerEmail": *email,
			"bookingDate":   *date,
			"bookingTime":   *clock,
		},
	}
	switch *evtType {
	case "payment_intent.succeeded":
	case "payment_intent.payment_failed":
		intent["status"] = "requires_payment_method"
		intent["last_payment_error"] = map[string]any{"message": "Your card was declined."}
	default:
		fatal("unsupported event type: " + *evtType)
	}

	payload, err := json.Marshal(map[string]any{
		"id":          *eventID,
		"object":      "event",
		"created":     now.Unix(),
		"type":        *evtType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": intent},
	})
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	fmt.Printf("event=%s intent=%s status=%d body=%s\n", *eventID, *intentID, resp.StatusCode, strings.TrimSpace(string(body)))
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
