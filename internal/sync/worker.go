package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
	"github.com/benbakir04-create/teachers-report/backend/internal/sync/queue"
)

// DefaultSubmitTimeout bounds a single submission when Config leaves it unset.
const DefaultSubmitTimeout = 15 * time.Second

// ErrDrainInProgress is returned when Drain overlaps a running pass.
var ErrDrainInProgress = apperrors.New(apperrors.ErrDrainInProgress, "a drain is already in progress")

// OnlineChecker reports the current connectivity guess.
type OnlineChecker interface {
	IsOnline() bool
}

// Config holds worker configuration.
type Config struct {
	SubmitTimeout time.Duration
}

// DefaultConfig returns default worker configuration.
func DefaultConfig() *Config {
	return &Config{SubmitTimeout: DefaultSubmitTimeout}
}

// DrainResult summarises one drain pass.
type DrainResult struct {
	StartedAt    time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	Offline      bool          `json:"offline" yaml:"offline"`
	Attempted    int           `json:"attempted" yaml:"attempted"`
	Synced       int           `json:"synced" yaml:"synced"`
	Rejected     int           `json:"rejected" yaml:"rejected"`
	Failed       int           `json:"failed" yaml:"failed"`
	DeadLettered int           `json:"dead_lettered" yaml:"dead_lettered"`
	Skipped      int           `json:"skipped" yaml:"skipped"`     // not attempted because ctx ended
	Remaining    int           `json:"remaining" yaml:"remaining"` // still queued after an online pass
	SyncedIDs    []string      `json:"synced_ids,omitempty" yaml:"synced_ids,omitempty"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Delivered reports whether the item with id was acknowledged in this pass.
func (r *DrainResult) Delivered(id string) bool {
	for _, synced := range r.SyncedIDs {
		if synced == id {
			return true
		}
	}
	return false
}

// Worker drains the sync queue, one item at a time.
type Worker struct {
	queue         *queue.Queue
	transport     Transport
	online        OnlineChecker
	logger        *logging.Logger
	submitTimeout time.Duration
	events        *Events

	drainMu sync.Mutex

	mu   sync.RWMutex
	last *DrainResult
}

// NewWorker creates a Worker. A nil config uses defaults; a nil logger uses
// the global logger.
func NewWorker(q *queue.Queue, transport Transport, online OnlineChecker, logger *logging.Logger, config *Config) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Get()
	}
	timeout := config.SubmitTimeout
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &Worker{
		queue:         q,
		transport:     transport,
		online:        online,
		logger:        logger,
		submitTimeout: timeout,
		events:        newEvents(),
	}
}

// Events returns the worker's event hook.
func (w *Worker) Events() *Events {
	return w.events
}

// LastResult returns the most recent completed drain, or nil.
func (w *Worker) LastResult() *DrainResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last == nil {
		return nil
	}
	r := *w.last
	return &r
}

// Draining reports whether a pass is running.
func (w *Worker) Draining() bool {
	if w.drainMu.TryLock() {
		w.drainMu.Unlock()
		return false
	}
	return true
}

// Drain submits every pending item. When offline it returns at once
// without touching the transport. Failures of individual items are recorded
// on the item and never stop the pass; only ctx cancellation does, and only
// between items. An overlapping call returns ErrDrainInProgress.
func (w *Worker) Drain(ctx context.Context) (DrainResult, error) {
	if !w.drainMu.TryLock() {
		return DrainResult{}, ErrDrainInProgress
	}
	defer w.drainMu.Unlock()

	result := DrainResult{StartedAt: time.Now()}

	if !w.online.IsOnline() {
		result.Offline = true
		w.finish(&result)
		return result, nil
	}

	items, err := w.queue.ListPending(ctx)
	if err != nil {
		result.Error = err.Error()
		w.finish(&result)
		return result, apperrors.Wrap(apperrors.ErrSyncFailed, "list pending items", err)
	}
	if len(items) == 0 {
		w.finish(&result)
		return result, nil
	}

	w.events.publish(EventSyncStarted, map[string]interface{}{"pending": len(items)})
	w.logger.Info("Draining sync queue", map[string]interface{}{"pending": len(items)})

	var drainErr error
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			result.Skipped = len(items) - i
			drainErr = err
			break
		}
		w.process(ctx, item, &result)
	}

	result.Remaining = result.Skipped + result.Failed + result.Rejected - result.DeadLettered
	if drainErr != nil {
		result.Error = drainErr.Error()
	}
	w.finish(&result)

	w.events.publish(EventSyncCompleted, map[string]interface{}{
		"attempted":     result.Attempted,
		"synced":        result.Synced,
		"rejected":      result.Rejected,
		"failed":        result.Failed,
		"dead_lettered": result.DeadLettered,
		"duration":      result.Duration.Milliseconds(),
	})
	w.logger.Info("Sync queue drain completed",
		map[string]interface{}{
			"attempted":     result.Attempted,
			"synced":        result.Synced,
			"rejected":      result.Rejected,
			"failed":        result.Failed,
			"dead_lettered": result.DeadLettered,
		})

	return result, drainErr
}

// process submits one item and records the outcome. A panic inside is
// contained to the item.
func (w *Worker) process(ctx context.Context, item *queue.Item, result *DrainResult) {
	id := item.ID.String()
	result.Attempted++

	res, err := w.submit(ctx, item)
	switch {
	case err == nil && res.OK:
		if err := w.queue.Remove(ctx, id); err != nil {
			// delivered but still queued; the next pass resubmits it
			w.logger.Error("Failed to remove synced item", err, map[string]interface{}{"item_id": id})
		}
		result.Synced++
		result.SyncedIDs = append(result.SyncedIDs, id)
		w.events.publish(EventSyncItemSynced, map[string]interface{}{"item_id": id})

	case err == nil:
		result.Rejected++
		w.logger.Warn("Remote rejected sync item",
			map[string]interface{}{
				"error_code": string(apperrors.ErrSyncRejected),
				"item_id":    id,
				"reason":     res.Error,
			})
		w.fail(ctx, item, "rejected: "+res.Error, result)

	default:
		result.Failed++
		code := apperrors.ErrSyncFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = apperrors.ErrSyncTimeout
		}
		w.logger.ErrorWithCode("Sync item submission failed", string(code), err,
			map[string]interface{}{"item_id": id})
		w.fail(ctx, item, err.Error(), result)
	}
}

func (w *Worker) submit(ctx context.Context, item *queue.Item) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during submit: %v", r)
		}
	}()

	if err := w.queue.MarkSyncing(ctx, item); err != nil {
		w.logger.Warn("Failed to mark item syncing",
			map[string]interface{}{"item_id": item.ID.String(), "error": err.Error()})
	}

	subCtx, cancel := context.WithTimeout(ctx, w.submitTimeout)
	defer cancel()
	return w.transport.Submit(subCtx, item.Payload)
}

func (w *Worker) fail(ctx context.Context, item *queue.Item, reason string, result *DrainResult) {
	id := item.ID.String()
	dead, err := w.queue.MarkFailed(ctx, item, reason)
	if err != nil {
		w.logger.Error("Failed to record sync failure", err, map[string]interface{}{"item_id": id})
	}
	if dead {
		result.DeadLettered++
	}
	w.events.publish(EventSyncItemFailed, map[string]interface{}{
		"item_id":       id,
		"error":         reason,
		"retry_count":   item.RetryCount,
		"dead_lettered": dead,
	})
}

func (w *Worker) finish(result *DrainResult) {
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	last := *result
	w.mu.Lock()
	w.last = &last
	w.mu.Unlock()
}
