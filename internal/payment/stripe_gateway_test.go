package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-questbooking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

// newTestStripeGateway points the Stripe client at an httptest server.
func newTestStripeGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        &http.Client{Timeout: 2 * time.Second},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	sc := client.New("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return NewStripeGatewayWithClient(sc, testWebhookSecret, nil)
}

func signedEvent(t *testing.T, eventType, intentJSON string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"api_version":"2025-01-27","data":{"object":%s}}`, eventType, intentJSON))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func TestStripeGateway_CreatePaymentIntent(t *testing.T) {
	var gotIdempotency string
	g := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "5000", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "hold-1", r.PostForm.Get("metadata[hold_id]"))
		gotIdempotency = r.Header.Get("Idempotency-Key")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_123","object":"payment_intent","amount":5000,"currency":"usd","status":"requires_payment_method","client_secret":"pi_123_secret","metadata":{"hold_id":"hold-1"}}`)
	})

	gi, err := g.CreatePaymentIntent(context.Background(), 5000, "usd", "hold-1", map[string]string{models.MetaHoldID: "hold-1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", gi.ID)
	assert.Equal(t, "pi_123_secret", gi.ClientSecret)
	assert.Equal(t, models.IntentCreated, gi.Status)
	assert.Equal(t, "hold-hold-1", gotIdempotency)
}

func TestStripeGateway_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"server error is unknown outcome", http.StatusInternalServerError, models.ErrGatewayUnavailable},
		{"rate limit is unknown outcome", http.StatusTooManyRequests, models.ErrGatewayUnavailable},
		{"card error is a rejection", http.StatusPaymentRequired, models.ErrGatewayRejected},
		{"bad request is a rejection", http.StatusBadRequest, models.ErrGatewayRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"type":"api_error","message":"nope"}}`)
			})
			_, err := g.CreatePaymentIntent(context.Background(), 100, "usd", "", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStripeGateway_GetIntentStatus(t *testing.T) {
	g := newTestStripeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/payment_intents/pi_ok":
			fmt.Fprint(w, `{"id":"pi_ok","object":"payment_intent","status":"succeeded","amount":100,"currency":"usd"}`)
		case "/v1/payment_intents/pi_failed":
			fmt.Fprint(w, `{"id":"pi_failed","object":"payment_intent","status":"requires_payment_method","last_payment_error":{"type":"card_error","code":"card_declined"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing"}}`)
		}
	})
	ctx := context.Background()

	gi, err := g.GetIntent(ctx, "pi_ok")
	require.NoError(t, err)
	assert.Equal(t, models.IntentConfirmed, gi.Status)

	gi, err = g.GetIntent(ctx, "pi_failed")
	require.NoError(t, err)
	assert.Equal(t, models.IntentFailed, gi.Status)

	_, err = g.GetIntent(ctx, "pi_unknown")
	assert.ErrorIs(t, err, models.ErrIntentNotFound)
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	g := NewStripeGatewayWithClient(nil, testWebhookSecret, nil)

	payload, header := signedEvent(t, "payment_intent.succeeded",
		`{"id":"pi_9","object":"payment_intent","status":"succeeded","amount":4000,"currency":"eur","metadata":{"hold_id":"h9","quest_id":"q9","quantity":"2"}}`)

	event, err := g.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, models.EventPaymentSucceeded, event.Type)
	assert.Equal(t, "pi_9", event.IntentID)
	assert.Equal(t, models.IntentConfirmed, event.Status)
	assert.Equal(t, int64(4000), event.Amount)
	assert.Equal(t, "eur", event.Currency)
	assert.Equal(t, "h9", event.Metadata[models.MetaHoldID])
}

func TestStripeGateway_ParseWebhookRejectsBadSignature(t *testing.T) {
	g := NewStripeGatewayWithClient(nil, testWebhookSecret, nil)
	payload, header := signedEvent(t, "payment_intent.succeeded", `{"id":"pi_9","object":"payment_intent"}`)

	tampered := []byte(strings.Replace(string(payload), "pi_9", "pi_X", 1))
	_, err := g.ParseWebhook(tampered, header)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)

	_, err = g.ParseWebhook(payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, models.ErrInvalidSignature)

	unconfigured := NewStripeGatewayWithClient(nil, "", nil)
	_, err = unconfigured.ParseWebhook(payload, header)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)
}

func TestStripeGateway_ParseWebhookFailureEvent(t *testing.T) {
	g := NewStripeGatewayWithClient(nil, testWebhookSecret, nil)
	payload, header := signedEvent(t, "payment_intent.payment_failed",
		`{"id":"pi_7","object":"payment_intent","status":"requires_payment_method"}`)

	event, err := g.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, models.EventPaymentFailed, event.Type)
	assert.Equal(t, models.IntentFailed, event.Status)
	assert.Equal(t, "pi_7", event.IntentID)
}
