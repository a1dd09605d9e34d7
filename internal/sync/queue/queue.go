// Package queue persists outbound sync operations in the local store until
// the remote endpoint acknowledges them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
	"github.com/benbakir04-create/teachers-report/backend/internal/store"
	"github.com/benbakir04-create/teachers-report/backend/internal/uuid"
)

// Item is a queued operation.
type Item = models.QueueItem

// Config holds queue configuration.
type Config struct {
	// MaxRetries moves an item to the dead-letter collection once it has
	// failed this many times. Zero retries forever.
	MaxRetries int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Queue is the sync queue on top of a store.Store.
type Queue struct {
	store      store.Store
	logger     *logging.Logger
	maxRetries int
	now        func() time.Time

	seqMu   sync.Mutex
	lastSeq int64
}

// New creates a Queue. A nil config uses defaults; a nil logger uses the
// global logger.
func New(s store.Store, logger *logging.Logger, config *Config) *Queue {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = logging.Get()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Queue{
		store:      s,
		logger:     logger,
		maxRetries: config.MaxRetries,
		now:        now,
	}
}

// MaxRetries returns the configured retry ceiling (0 = unlimited).
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// nextSeq returns a strictly increasing sequence based on the clock.
func (q *Queue) nextSeq() int64 {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()
	seq := q.now().UnixNano()
	if seq <= q.lastSeq {
		seq = q.lastSeq + 1
	}
	q.lastSeq = seq
	return seq
}

// Enqueue validates env and persists it as a new pending item.
func (q *Queue) Enqueue(ctx context.Context, env models.Envelope) (*Item, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	now := q.now().UnixMilli()
	item := &Item{
		ID:        models.UUID(uuid.NewTimeOrdered()),
		Seq:       q.nextSeq(),
		Payload:   env,
		Status:    models.QueueStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.put(ctx, models.CollectionSyncQueue, item); err != nil {
		return nil, err
	}

	q.logger.Debug("Enqueued sync item",
		map[string]interface{}{
			"item_id":  item.ID.String(),
			"action":   string(env.Action),
			"resource": env.Resource,
		})

	return item, nil
}

// ListPending returns every unacknowledged item ordered by Seq. Items that
// cannot be decoded are logged and deleted.
func (q *Queue) ListPending(ctx context.Context) ([]*Item, error) {
	return q.list(ctx, models.CollectionSyncQueue)
}

// Get returns one queued item.
func (q *Queue) Get(ctx context.Context, id string) (*Item, error) {
	rec, err := q.store.Get(ctx, models.CollectionSyncQueue, id)
	if err != nil {
		return nil, err
	}
	item, err := decode(rec)
	if err != nil {
		q.dropCorrupt(ctx, models.CollectionSyncQueue, rec, err)
		return nil, apperrors.Wrap(apperrors.ErrQueueCorrupt, "queue item "+id+" is corrupt", err)
	}
	return item, nil
}

// Remove deletes an acknowledged item. Removing an absent id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.store.Delete(ctx, models.CollectionSyncQueue, id)
}

// Count returns the number of queued items. Rows are decoded as in
// ListPending, so a corrupt row is dropped rather than counted and Count
// always equals len(ListPending).
func (q *Queue) Count(ctx context.Context) (int, error) {
	items, err := q.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// MarkSyncing records that item is being submitted.
func (q *Queue) MarkSyncing(ctx context.Context, item *Item) error {
	item.Status = models.QueueStatusSyncing
	item.UpdatedAt = q.now().UnixMilli()
	return q.put(ctx, models.CollectionSyncQueue, item)
}

// MarkFailed records an unsuccessful attempt. When the retry ceiling is
// reached the item moves to the dead-letter collection and deadLettered is
// true; otherwise it stays queued with status failed.
func (q *Queue) MarkFailed(ctx context.Context, item *Item, reason string) (deadLettered bool, err error) {
	now := q.now().UnixMilli()
	item.Status = models.QueueStatusFailed
	item.RetryCount++
	item.LastError = reason
	item.UpdatedAt = now

	if q.maxRetries <= 0 || item.RetryCount < q.maxRetries {
		return false, q.put(ctx, models.CollectionSyncQueue, item)
	}

	item.DeadLetteredAt = now
	// written to deadLetter first so a crash in between leaves a duplicate,
	// never a lost item
	if err := q.put(ctx, models.CollectionDeadLetter, item); err != nil {
		return false, err
	}
	if err := q.store.Delete(ctx, models.CollectionSyncQueue, item.ID.String()); err != nil {
		return false, err
	}

	q.logger.Warn("Sync item moved to dead letter",
		map[string]interface{}{
			"item_id":     item.ID.String(),
			"retry_count": item.RetryCount,
			"last_error":  reason,
		})
	return true, nil
}

// DeadLetters returns items that exhausted their retries, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]*Item, error) {
	return q.list(ctx, models.CollectionDeadLetter)
}

// Requeue moves a dead-lettered item back to the queue with a fresh retry
// budget. It keeps its original Seq.
func (q *Queue) Requeue(ctx context.Context, id string) (*Item, error) {
	rec, err := q.store.Get(ctx, models.CollectionDeadLetter, id)
	if err != nil {
		return nil, err
	}
	item, err := decode(rec)
	if err != nil {
		q.dropCorrupt(ctx, models.CollectionDeadLetter, rec, err)
		return nil, apperrors.Wrap(apperrors.ErrQueueCorrupt, "dead letter "+id+" is corrupt", err)
	}

	item.Status = models.QueueStatusPending
	item.RetryCount = 0
	item.LastError = ""
	item.DeadLetteredAt = 0
	item.UpdatedAt = q.now().UnixMilli()

	if err := q.put(ctx, models.CollectionSyncQueue, item); err != nil {
		return nil, err
	}
	if err := q.store.Delete(ctx, models.CollectionDeadLetter, id); err != nil {
		return nil, err
	}

	q.logger.Info("Dead letter requeued", map[string]interface{}{"item_id": id})
	return item, nil
}

// Stats summarises queue contents.
type Stats struct {
	Total      int `json:"total" yaml:"total"`
	Pending    int `json:"pending" yaml:"pending"`
	Syncing    int `json:"syncing" yaml:"syncing"`
	Failed     int `json:"failed" yaml:"failed"`
	DeadLetter int `json:"dead_letter" yaml:"dead_letter"`
}

// Stats returns counts per status.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	items, err := q.ListPending(ctx)
	if err != nil {
		return Stats{}, err
	}
	dead, err := q.store.Count(ctx, models.CollectionDeadLetter)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: len(items), DeadLetter: dead}
	for _, item := range items {
		switch item.Status {
		case models.QueueStatusPending:
			stats.Pending++
		case models.QueueStatusSyncing:
			stats.Syncing++
		case models.QueueStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (q *Queue) list(ctx context.Context, collection models.Collection) ([]*Item, error) {
	records, err := q.store.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(records))
	for _, rec := range records {
		item, err := decode(rec)
		if err != nil {
			q.dropCorrupt(ctx, collection, rec, err)
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Seq != items[j].Seq {
			return items[i].Seq < items[j].Seq
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (q *Queue) put(ctx context.Context, collection models.Collection, item *Item) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode queue item", err)
	}
	return q.store.Put(ctx, collection, models.Record{
		ID:        item.ID.String(),
		Payload:   payload,
		CreatedAt: item.CreatedAt,
	})
}

func (q *Queue) dropCorrupt(ctx context.Context, collection models.Collection, rec models.Record, cause error) {
	q.logger.ErrorWithCode("Dropping corrupt queue item", string(apperrors.ErrQueueCorrupt), cause,
		map[string]interface{}{
			"item_id":    rec.ID,
			"collection": string(collection),
		})
	if err := q.store.Delete(ctx, collection, rec.ID); err != nil {
		q.logger.Error("Failed to delete corrupt queue item", err,
			map[string]interface{}{"item_id": rec.ID})
	}
}

func decode(rec models.Record) (*Item, error) {
	if len(rec.Payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	var item Item
	if err := json.Unmarshal(rec.Payload, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if item.ID.String() != rec.ID {
		return nil, fmt.Errorf("item id %q does not match record id %q", item.ID, rec.ID)
	}
	if err := item.Payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	return &item, nil
}
