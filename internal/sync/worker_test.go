package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
	"github.com/benbakir04-create/teachers-report/backend/internal/store"
	"github.com/benbakir04-create/teachers-report/backend/internal/sync/queue"
)

type fakeOnline struct{ online atomic.Bool }

func (f *fakeOnline) IsOnline() bool { return f.online.Load() }

func online(v bool) *fakeOnline {
	f := &fakeOnline{}
	f.online.Store(v)
	return f
}

// fakeTransport answers from a per-record-id script and records calls.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []string
	answers map[string]func() (Result, error)
}

func (f *fakeTransport) Submit(ctx context.Context, env models.Envelope) (Result, error) {
	id, _ := env.Record["id"].(string)
	f.mu.Lock()
	f.calls = append(f.calls, id)
	answer := f.answers[id]
	f.mu.Unlock()
	if answer == nil {
		return Result{OK: true}, nil
	}
	return answer()
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func env(id string) models.Envelope {
	return models.Envelope{Action: models.ActionUpsert, Resource: "reports", Record: map[string]interface{}{"id": id}}
}

func newQueue(t *testing.T, maxRetries int) *queue.Queue {
	t.Helper()
	return queue.New(store.NewMemoryStore(), logging.Discard(), &queue.Config{MaxRetries: maxRetries})
}

func enqueue(t *testing.T, q *queue.Queue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := q.Enqueue(context.Background(), env(id))
		require.NoError(t, err)
	}
}

func pendingIDs(t *testing.T, q *queue.Queue) []string {
	t.Helper()
	items, err := q.ListPending(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Payload.Record["id"].(string))
	}
	return ids
}

func TestDrain_successRemovesItem(t *testing.T) {
	q := newQueue(t, 0)
	enqueue(t, q, "X")
	tr := &fakeTransport{}
	w := NewWorker(q, tr, online(true), logging.Discard(), nil)

	result, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Len(t, result.SyncedIDs, 1)
	assert.Empty(t, pendingIDs(t, q))
	assert.Equal(t, []string{"X"}, tr.Calls())
}

func TestDrain_rejectionLeavesItemQueued(t *testing.T) {
	q := newQueue(t, 0)
	enqueue(t, q, "X")
	tr := &fakeTransport{answers: map[string]func() (Result, error){
		"X": func() (Result, error) { return Result{OK: false, Error: "validation"}, nil },
	}}
	w := NewWorker(q, tr, online(true), logging.Discard(), nil)

	result, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 1, result.Remaining)
	assert.Zero(t, result.Skipped)

	items, err := q.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.QueueStatusFailed, items[0].Status)
	// a rejection counts as a failed attempt, so the item stays queued with retryCount 1
	assert.Equal(t, 1, items[0].RetryCount)
	assert.Contains(t, items[0].LastError, "validation")
}

func TestDrain_offlineNeverCallsTransport(t *testing.T) {
	q := newQueue(t, 0)
	enqueue(t, q, "X", "Y")
	tr := &fakeTransport{}
	w := NewWorker(q, tr, online(false), logging.Discard(), nil)

	result, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Offline)
	assert.Empty(t, tr.Calls())
	assert.Len(t, pendingIDs(t, q), 2)
}

func TestDrain_failureIsIsolated(t *testing.T) {
	q := newQueue(t, 0)
	enqueue(t, q, "A", "B", "C")
	tr := &fakeTransport{answers: map[string]func() (Result, error){
		"A": func() (Result, error) { return Result{}, errors.New("connection refused") },
		"B": func() (Result, error) { panic("boom") },
	}}
	w := NewWorker(q, tr, online(true), logging.Discard(), nil)

	result, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, tr.Calls())
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, []string{"A", "B"}, pendingIDs(t, q))
}

func TestDrain_removedItemsNeverReappear(t *testing.T) {
	q := newQueue(t, 0)
	enqueue(t, q, "A", "B")
	fail := true
	tr := &fakeTransport{answers: map[string]func() (Result, error){
		"B": func() (Result, error) {
			if fail {
				return Result{}, errors.New("timeout")
			}
			return Result{OK: true}, nil
		},
	}}
	w := NewWorker(q, tr, online(true), logging.Discard(), nil)
	ctx := context.Background()

	_, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, pendingIDs(t, q))

	fail = false
	_, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, pendingIDs(t, q))

	_, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "B"}, tr.Calls())
}

func TestDrain_overlappingCallsDoNotDoubleSubmit(t *testing.T) {
	q := newQueue(t, 0)
	enqueue(t, q, "X")
	entered := make(chan struct{})
	release := make(chan struct{})
	tr := &fakeTransport{answers: map[string]func() (Result, error){
		"X": func() (Result, error) {
			close(entered)
			<-release
			return Result{OK: true}, nil
		},
	}}
	w := NewWorker(q, tr, online(true), logging.Discard(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := w.Drain(context.Background())
		done <- err
	}()
	<-entered

	assert.True(t, w.Draining())
	_, err := w.Drain(context.Background())
	assert.ErrorIs(t, err, ErrDrainInProgress)
	assert.True(t, apperrors.Is(err, apperrors.ErrDrainInProgress))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"X"}, tr.Calls())
	assert.False(t, w.Draining())
}

func TestDrain_submitTimeout(t *testing.T) {
	q := newQueue(t, 0)
	enqueue(t, q, "slow", "fast")
	tr := TransportFunc(func(ctx context.Context, e models.Envelope) (Result, error) {
		if e.Record["id"] == "slow" {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}
		return Result{OK: true}, nil
	})
	w := NewWorker(q, tr, online(true), logging.Discard(), &Config{SubmitTimeout: 20 * time.Millisecond})

	result, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, []string{"slow"}, pendingIDs(t, q))
}

func TestDrain_cancelStopsBetweenItems(t *testing.T) {
	q := newQueue(t, 0)
	enqueue(t, q, "A", "B", "C")
	ctx, cancel := context.WithCancel(context.Background())
	tr := TransportFunc(func(context.Context, models.Envelope) (Result, error) {
		cancel()
		return Result{OK: true}, nil
	})
	w := NewWorker(q, tr, online(true), logging.Discard(), nil)

	result, err := w.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 2, result.Remaining)
	assert.Equal(t, []string{"B", "C"}, pendingIDs(t, q))
}

func TestDrain_deadLettersAtCeiling(t *testing.T) {
	q := newQueue(t, 2)
	enqueue(t, q, "X")
	tr := &fakeTransport{answers: map[string]func() (Result, error){
		"X": func() (Result, error) { return Result{OK: false, Error: "bad row"}, nil },
	}}
	w := NewWorker(q, tr, online(true), logging.Discard(), nil)
	ctx := context.Background()

	first, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, first.DeadLettered)
	assert.Equal(t, 1, first.Remaining)

	second, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.DeadLettered)
	assert.Zero(t, second.Remaining)
	assert.Empty(t, pendingIDs(t, q))

	letters, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Len(t, letters, 1)
}

func TestDrain_events(t *testing.T) {
	q := newQueue(t, 0)
	enqueue(t, q, "ok", "bad")
	tr := &fakeTransport{answers: map[string]func() (Result, error){
		"bad": func() (Result, error) { return Result{}, fmt.Errorf("unreachable") },
	}}
	w := NewWorker(q, tr, online(true), logging.Discard(), nil)

	var types []EventType
	unsubscribe := w.Events().Subscribe(func(e Event) { types = append(types, e.Type) })

	_, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventSyncStarted, EventSyncItemSynced, EventSyncItemFailed, EventSyncCompleted}, types)

	unsubscribe()
	_, err = w.Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, types, 4)
}

func TestDrain_emptyQueue(t *testing.T) {
	tr := &fakeTransport{}
	w := NewWorker(newQueue(t, 0), tr, online(true), logging.Discard(), nil)
	assert.Nil(t, w.LastResult())

	result, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
	assert.Empty(t, tr.Calls())
	require.NotNil(t, w.LastResult())
}
