package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	defaultPrefix       = "inv:"
	defaultTombstoneTTL = 72 * time.Hour
)

// Ledger keeps per-quest ticket counters and the holds placed against them.
// Every mutation is a single Lua script, so Redis serializes writers per call
// and no lock is held across network round trips.
type Ledger struct {
	Client       *redis.Client
	Logger       *logger.Logger
	prefix       string
	tombstoneTTL time.Duration
	now          func() time.Time
}

type Options struct {
	KeyPrefix    string
	TombstoneTTL time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func NewLedger(client *redis.Client, log *logger.Logger, opts Options) *Ledger {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultPrefix
	}
	if opts.TombstoneTTL <= 0 {
		opts.TombstoneTTL = defaultTombstoneTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if log == nil {
		log = logger.NewWithWriter(nil)
	}
	return &Ledger{
		Client:       client,
		Logger:       log,
		prefix:       opts.KeyPrefix,
		tombstoneTTL: opts.TombstoneTTL,
		now:          opts.Clock,
	}
}

func (l *Ledger) questKey(questID string) string      { return l.prefix + "quest:" + questID }
func (l *Ledger) holdKey(holdID string) string        { return l.prefix + "hold:" + holdID }
func (l *Ledger) tombKey(holdID string) string        { return l.prefix + "tomb:" + holdID }
func (l *Ledger) expiryKey() string                   { return l.prefix + "holds:expiry" }
func (l *Ledger) questHoldsKey(questID string) string { return l.prefix + "quest_holds:" + questID }

// EnsureQuest seeds the counters for a quest the first time it is seen.
// Existing counters are left untouched; the ledger is authoritative after that.
func (l *Ledger) EnsureQuest(ctx context.Context, questID string, available int64) (bool, error) {
	if available < 0 {
		available = 0
	}
	key := l.questKey(questID)
	var seeded *redis.BoolCmd
	_, err := l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		seeded = pipe.HSetNX(ctx, key, "available", available)
		pipe.HSetNX(ctx, key, "held", 0)
		return nil
	})
	if err != nil {
		return false, models.Transient("inventory.ensure_quest", err)
	}
	if seeded.Val() {
		l.Logger.Info("INVENTORY", fmt.Sprintf("Seeded quest %s with %d tickets", questID, available))
	}
	return seeded.Val(), nil
}

// Hold reserves quantity tickets until now+ttl.
func (l *Ledger) Hold(ctx context.Context, questID string, quantity int, ttl time.Duration) (*models.Hold, error) {
	if quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("hold ttl must be positive, got %s", ttl)
	}

	holdID := uuid.NewString()
	expiresAt := l.now().Add(ttl)

	res, err := holdScript.Run(ctx, l.Client,
		[]string{l.questKey(questID), l.holdKey(holdID), l.expiryKey(), l.questHoldsKey(questID)},
		questID, quantity, expiresAt.UnixMilli(), holdID,
	).Result()
	if err != nil {
		return nil, models.Transient("inventory.hold", err)
	}
	reply, err := parseReply(res)
	if err != nil {
		return nil, err
	}

	switch reply.status {
	case "held":
	case "unknown_quest":
		return nil, models.ErrQuestNotFound
	case "insufficient":
		l.Logger.Debug("INVENTORY", fmt.Sprintf("Quest %s has %d free, %d requested", questID, reply.quantity, quantity))
		return nil, models.ErrInsufficientInventory
	default:
		return nil, fmt.Errorf("inventory hold: unexpected status %q", reply.status)
	}

	hold := &models.Hold{
		ID:        holdID,
		QuestID:   questID,
		Quantity:  quantity,
		ExpiresAt: expiresAt,
	}
	l.Logger.LogHold("HELD", holdID, fmt.Sprintf("quest=%s qty=%d expires=%s", questID, quantity, expiresAt.UTC().Format(time.RFC3339)))
	return hold, nil
}

// Commit turns a live hold into sold tickets. Repeating it reports the
// earlier outcome without touching the counters again.
func (l *Ledger) Commit(ctx context.Context, holdID string) (models.CommitOutcome, error) {
	res, err := commitScript.Run(ctx, l.Client,
		[]string{l.holdKey(holdID), l.tombKey(holdID), l.expiryKey()},
		holdID, l.now().UnixMilli(), l.tombstoneSeconds(), l.questKey(""), l.questHoldsKey(""),
	).Result()
	if err != nil {
		return 0, models.Transient("inventory.commit", err)
	}
	reply, err := parseReply(res)
	if err != nil {
		return 0, err
	}

	switch reply.status {
	case "committed_now":
		l.Logger.LogHold("COMMITTED", holdID, fmt.Sprintf("quest=%s qty=%d", reply.questID, reply.quantity))
		return models.CommitApplied, nil
	case string(models.HoldStateCommitted):
		return models.CommitAlreadyCommitted, nil
	case string(models.HoldStateReleased):
		return models.CommitAlreadyReleased, nil
	case "expired_now":
		l.Logger.LogHold("EXPIRED", holdID, "commit arrived after expiry, tickets returned")
		return 0, models.ErrHoldExpired
	case string(models.HoldStateExpired):
		return 0, models.ErrHoldExpired
	case "missing":
		return 0, models.ErrHoldNotFound
	default:
		return 0, fmt.Errorf("inventory commit: unexpected status %q", reply.status)
	}
}

// Release gives the held tickets back. Unknown and finished holds are a no-op.
func (l *Ledger) Release(ctx context.Context, holdID string) error {
	_, err := l.release(ctx, holdID, models.HoldStateReleased, 0)
	return err
}

func (l *Ledger) release(ctx context.Context, holdID string, final models.HoldState, cutoff int64) (scriptReply, error) {
	res, err := releaseScript.Run(ctx, l.Client,
		[]string{l.holdKey(holdID), l.tombKey(holdID), l.expiryKey()},
		holdID, l.tombstoneSeconds(), l.questKey(""), l.questHoldsKey(""), string(final), cutoff,
	).Result()
	if err != nil {
		return scriptReply{}, models.Transient("inventory.release", err)
	}
	reply, err := parseReply(res)
	if err != nil {
		return scriptReply{}, err
	}
	if reply.status == "released_now" {
		l.Logger.LogHold(string(final), holdID, fmt.Sprintf("quest=%s qty=%d returned", reply.questID, reply.quantity))
	}
	return reply, nil
}

// Sweep expires up to batch holds whose deadline has passed and returns them.
func (l *Ledger) Sweep(ctx context.Context, batch int64) ([]models.Hold, error) {
	if batch <= 0 {
		batch = 100
	}
	now := l.now().UnixMilli()
	due, err := l.Client.ZRangeByScoreWithScores(ctx, l.expiryKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: batch,
	}).Result()
	if err != nil {
		return nil, models.Transient("inventory.sweep", err)
	}

	var expired []models.Hold
	for _, z := range due {
		holdID, ok := z.Member.(string)
		if !ok {
			continue
		}
		reply, err := l.release(ctx, holdID, models.HoldStateExpired, now)
		if err != nil {
			return expired, err
		}
		switch reply.status {
		case "released_now":
			expired = append(expired, models.Hold{
				ID:        holdID,
				QuestID:   reply.questID,
				Quantity:  int(reply.quantity),
				ExpiresAt: time.UnixMilli(int64(z.Score)),
			})
		case "missing", string(models.HoldStateCommitted), string(models.HoldStateReleased), string(models.HoldStateExpired):
			// Index entry without a live hold; drop it so it is not rescanned.
			l.Client.ZRem(ctx, l.expiryKey(), holdID)
		}
	}
	return expired, nil
}

// Snapshot reads the counters of one quest.
func (l *Ledger) Snapshot(ctx context.Context, questID string) (models.QuestInventory, error) {
	vals, err := l.Client.HMGet(ctx, l.questKey(questID), "available", "held").Result()
	if err != nil {
		return models.QuestInventory{}, models.Transient("inventory.snapshot", err)
	}
	if vals[0] == nil {
		return models.QuestInventory{}, models.ErrQuestNotFound
	}
	inv := models.QuestInventory{QuestID: questID}
	inv.Available, _ = strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
	if vals[1] != nil {
		inv.Held, _ = strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	}
	return inv, nil
}

// Inspect reports a live hold or, once it is finished, how it ended.
func (l *Ledger) Inspect(ctx context.Context, holdID string) (models.HoldInfo, error) {
	fields, err := l.Client.HGetAll(ctx, l.holdKey(holdID)).Result()
	if err != nil {
		return models.HoldInfo{}, models.Transient("inventory.inspect", err)
	}
	if len(fields) > 0 {
		hold, err := holdFromFields(holdID, fields)
		if err != nil {
			return models.HoldInfo{}, err
		}
		return models.HoldInfo{State: models.HoldStateActive, Hold: hold}, nil
	}

	tomb, err := l.Client.Get(ctx, l.tombKey(holdID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.HoldInfo{State: models.HoldStateUnknown}, nil
	}
	if err != nil {
		return models.HoldInfo{}, models.Transient("inventory.inspect", err)
	}
	return models.HoldInfo{State: models.HoldState(tomb)}, nil
}

// ActiveHolds lists the live holds of a quest through the quest hold index.
func (l *Ledger) ActiveHolds(ctx context.Context, questID string) ([]models.Hold, error) {
	ids, err := l.Client.SMembers(ctx, l.questHoldsKey(questID)).Result()
	if err != nil {
		return nil, models.Transient("inventory.active_holds", err)
	}
	holds := make([]models.Hold, 0, len(ids))
	for _, id := range ids {
		fields, err := l.Client.HGetAll(ctx, l.holdKey(id)).Result()
		if err != nil {
			return nil, models.Transient("inventory.active_holds", err)
		}
		if len(fields) == 0 {
			continue
		}
		hold, err := holdFromFields(id, fields)
		if err != nil {
			return nil, err
		}
		holds = append(holds, *hold)
	}
	return holds, nil
}

func (l *Ledger) tombstoneSeconds() int64 {
	secs := int64(l.tombstoneTTL / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func holdFromFields(holdID string, fields map[string]string) (*models.Hold, error) {
	qty, err := strconv.Atoi(fields["quantity"])
	if err != nil {
		return nil, fmt.Errorf("hold %s: bad quantity %q", holdID, fields["quantity"])
	}
	ms, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("hold %s: bad expiry %q", holdID, fields["expires_at"])
	}
	return &models.Hold{
		ID:        holdID,
		QuestID:   fields["quest_id"],
		Quantity:  qty,
		ExpiresAt: time.UnixMilli(ms),
	}, nil
}

type scriptReply struct {
	status   string
	questID  string
	quantity int64
}

func parseReply(res interface{}) (scriptReply, error) {
	parts, ok := res.([]interface{})
	if !ok || len(parts) != 3 {
		return scriptReply{}, fmt.Errorf("inventory: unexpected script reply %v", res)
	}
	var r scriptReply
	r.status, _ = parts[0].(string)
	r.questID, _ = parts[1].(string)
	switch q := parts[2].(type) {
	case int64:
		r.quantity = q
	case string:
		r.quantity, _ = strconv.ParseInt(q, 10, 64)
	}
	return r, nil
}
