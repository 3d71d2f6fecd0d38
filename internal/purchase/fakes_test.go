package purchase_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-questbooking/internal/config"
	"ms-questbooking/internal/inventory"
	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"
	"ms-questbooking/internal/payment"
	"ms-questbooking/internal/payment/storage"
	"ms-questbooking/internal/purchase"
	"ms-questbooking/internal/reservation"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const validSignature = "t=1,v1=valid"

// fakeGateway is an in-memory payment provider.
type fakeGateway struct {
	mu        sync.Mutex
	intents   map[string]*payment.GatewayIntent
	seq       int
	createErr error
	getErr    error
	cancelled []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*payment.GatewayIntent{}}
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency, key string, metadata map[string]string) (*payment.GatewayIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	id := fmt.Sprintf("pi_%d", g.seq)
	md := map[string]string{}
	for k, v := range metadata {
		md[k] = v
	}
	gi := &payment.GatewayIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       models.IntentCreated,
		Amount:       amount,
		Currency:     currency,
		Metadata:     md,
	}
	g.intents[id] = gi
	cp := *gi
	return &cp, nil
}

func (g *fakeGateway) GetIntent(ctx context.Context, intentID string) (*payment.GatewayIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	gi, ok := g.intents[intentID]
	if !ok {
		return nil, models.ErrIntentNotFound
	}
	cp := *gi
	return &cp, nil
}

func (g *fakeGateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gi, ok := g.intents[intentID]; ok {
		if gi.Status == models.IntentConfirmed {
			return fmt.Errorf("%w: intent %s already succeeded", models.ErrGatewayRejected, intentID)
		}
		gi.Status = models.IntentFailed
	}
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

type fakeWebhook struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	IntentID string `json:"intent_id"`
}

func (g *fakeGateway) ParseWebhook(payload []byte, sig string) (*models.PaymentEvent, error) {
	if sig != validSignature {
		return nil, fmt.Errorf("%w: bad header", models.ErrInvalidSignature)
	}
	var wh fakeWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedEvent, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ev := &models.PaymentEvent{ID: wh.ID, Type: models.PaymentEventType(wh.Type), IntentID: wh.IntentID}
	if gi, ok := g.intents[wh.IntentID]; ok {
		ev.Amount = gi.Amount
		ev.Currency = gi.Currency
		ev.Metadata = gi.Metadata
		ev.Status = gi.Status
	}
	return ev, nil
}

func (g *fakeGateway) setStatus(intentID string, status models.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intentID].Status = status
}

func webhook(eventType models.PaymentEventType, intentID string) []byte {
	b, _ := json.Marshal(fakeWebhook{ID: "evt_" + intentID, Type: string(eventType), IntentID: intentID})
	return b
}

type fakeCatalog map[string]*models.Quest

func (c fakeCatalog) GetQuest(ctx context.Context, questID string) (*models.Quest, error) {
	q, ok := c[questID]
	if !ok {
		return nil, models.ErrQuestNotFound
	}
	return q, nil
}

type published struct {
	topic string
	event models.ReservationEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	var ev models.ReservationEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, event: ev})
	return nil
}

func (p *recordingPublisher) byType(eventType string) []models.ReservationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ReservationEvent
	for _, e := range p.events {
		if e.event.Type == eventType {
			out = append(out, e.event)
		}
	}
	return out
}

type harness struct {
	rec          *purchase.Reconciler
	inv          *inventory.Ledger
	reservations *reservation.Ledger
	intents      *storage.IntentStore
	db           *bun.DB
	gateway      *fakeGateway
	pub          *recordingPublisher
	now          *time.Time
}

var testTopics = config.TopicConfig{
	ReservationSettled: "settled",
	PurchaseAbandoned:  "abandoned",
	HoldExpired:        "expired",
}

func newHarness(t *testing.T, quests ...*models.Quest) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())

	t.Cleanup(func() {
		db.Close()
		client.Close()
		mr.Close()
	})

	log := logger.NewWithWriter(nil)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	inv := inventory.NewLedger(client, log, inventory.Options{
		KeyPrefix: "t:",
		Clock:     func() time.Time { return now },
	})

	resLedger := reservation.NewLedger(db, log)
	require.NoError(t, resLedger.EnsureSchema(context.Background()))
	intents := storage.NewIntentStore(db, log)
	require.NoError(t, intents.EnsureSchema(context.Background()))

	gw := newFakeGateway()
	adapter := payment.NewAdapter(gw, intents, log, "usd")

	cat := fakeCatalog{}
	for _, q := range quests {
		cat[q.ID] = q
	}
	pub := &recordingPublisher{}

	rec := purchase.NewReconciler(inv, adapter, resLedger, cat, pub, log, purchase.Options{
		HoldTTL:     10 * time.Minute,
		MaxQuantity: 10,
		Currency:    "usd",
		SweepBatch:  50,
		Topics:      testTopics,
		Retry:       purchase.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})

	return &harness{
		rec:          rec,
		inv:          inv,
		reservations: resLedger,
		intents:      intents,
		db:           db,
		gateway:      gw,
		pub:          pub,
		now:          &now,
	}
}

func quest(id string, tickets, price int64) *models.Quest {
	return &models.Quest{ID: id, Title: "Quest " + id, TicketsAvailable: tickets, PricePerTicket: price}
}
