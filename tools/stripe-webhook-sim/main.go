// Command stripe-webhook-sim posts a signed payment_intent.succeeded event to a
// running booking service, as Stripe would after a client pays.
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

	"github.com/md-rashed-zaman/vetbook/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type options struct {
	purpose        string
	professionalID string
	petID          string
	serviceID      string
	ownerID        string
	startTime      string
	saleID         string
	amountCents    int64
	currency       string
}

func main() {
	config.LoadDotEnv()
	var opts options
	baseURL := flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking service base url")
	secret := flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	eventID := flag.String("event-id", "", "event id; random when empty so redeliveries can be replayed with a fixed id")
	flag.StringVar(&opts.purpose, "purpose", "booking", "booking or sale")
	flag.StringVar(&opts.professionalID, "professional-id", "", "professional_id metadata")
	flag.StringVar(&opts.petID, "pet-id", "", "pet_id metadata")
	flag.StringVar(&opts.serviceID, "service-id", "", "service_id metadata")
	flag.StringVar(&opts.ownerID, "owner-id", "", "owner_id metadata")
	flag.StringVar(&opts.startTime, "start", "", "start_time metadata (RFC3339)")
	flag.StringVar(&opts.saleID, "sale-id", "", "sale_id metadata")
	flag.Int64Var(&opts.amountCents, "amount", 3000, "amount in cents")
	flag.StringVar(&opts.currency, "currency", "eur", "currency")
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}

	now := time.Now().UTC()
	id := *eventID
	if id == "" {
		id = fmt.Sprintf("evt_test_%d", now.UnixNano())
	}
	payload, err := buildEventJSON(id, now, opts)
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
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID string, t time.Time, o options) ([]byte, error) {
	metadata := map[string]string{"purpose": o.purpose}
	switch o.purpose {
	case "booking":
		if o.startTime == "" {
			o.startTime = t.Add(48 * time.Hour).Truncate(time.Hour).Format(time.RFC3339)
		}
		metadata["professional_id"] = o.professionalID
		metadata["pet_id"] = o.petID
		metadata["service_id"] = o.serviceID
		metadata["owner_id"] = o.ownerID
		metadata["start_time"] = o.startTime
	case "sale":
		if o.saleID == "" {
			return nil, fmt.Errorf("-sale-id is required for sale payments")
		}
		metadata["sale_id"] = o.saleID
	default:
		return nil, fmt.Errorf("unsupported purpose: %s", o.purpose)
	}

	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        "payment_intent.succeeded",
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":       fmt.Sprintf("pi_test_%d", t.UnixNano()),
				"object":   "payment_intent",
				"amount":   o.amountCents,
				"currency": o.currency,
				"status":   "succeeded",
				"metadata": metadata,
			},
		},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
