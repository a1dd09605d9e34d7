package store

import (
	"context"
	"io"
	"sync"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// OpenFunc performs the one-time setup of a durable store.
type OpenFunc func(ctx context.Context) (Store, error)

// Lazy opens its backing store on first use. Concurrent first calls share
// a single in-flight setup. If setup fails, Lazy logs a warning and serves
// from a MemoryStore for the rest of the process lifetime.
type Lazy struct {
	open   OpenFunc
	logger *logging.Logger

	mu       sync.Mutex
	ready    chan struct{}
	store    Store
	degraded bool
	setupErr error
}

var _ Store = (*Lazy)(nil)

// NewLazy wraps open. A nil logger uses the global logger.
func NewLazy(open OpenFunc, logger *logging.Logger) *Lazy {
	if logger == nil {
		logger = logging.Get()
	}
	return &Lazy{open: open, logger: logger}
}

// NewLazySQLite returns a Lazy store over SQLite in dataDir.
func NewLazySQLite(dataDir string, logger *logging.Logger) *Lazy {
	return NewLazy(func(context.Context) (Store, error) {
		return OpenSQLite(dataDir)
	}, logger)
}

// Open returns the backing store, running setup on the first call. It only
// fails if ctx ends while waiting on another caller's setup.
func (l *Lazy) Open(ctx context.Context) (Store, error) {
	l.mu.Lock()
	if l.ready == nil {
		l.ready = make(chan struct{})
		l.mu.Unlock()
		// setup outlives the first caller's cancellation
		l.setup(context.WithoutCancel(ctx))
		close(l.ready)
		return l.store, nil
	}
	ready := l.ready
	l.mu.Unlock()

	select {
	case <-ready:
		return l.store, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Lazy) setup(ctx context.Context) {
	s, err := l.open(ctx)
	if err == nil {
		l.store = s
		return
	}

	l.setupErr = err
	l.degraded = true
	l.store = NewMemoryStore()
	l.logger.Warn("Local storage unavailable, running without persistence",
		map[string]interface{}{
			"error_code": string(apperrors.ErrStorageUnavailable),
			"error":      err.Error(),
		})
}

// Degraded reports whether the store fell back to memory. It is false
// until the first Open completes.
func (l *Lazy) Degraded() bool {
	l.mu.Lock()
	ready := l.ready
	l.mu.Unlock()
	if ready == nil {
		return false
	}
	select {
	case <-ready:
		return l.degraded
	default:
		return false
	}
}

// SetupError returns the error that caused degradation, if any.
func (l *Lazy) SetupError() error {
	if !l.Degraded() {
		return nil
	}
	return l.setupErr
}

// Close closes the backing store if it was opened and is closable.
func (l *Lazy) Close() error {
	l.mu.Lock()
	ready := l.ready
	l.mu.Unlock()
	if ready == nil {
		return nil
	}
	<-ready
	if c, ok := l.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Put implements Store.
func (l *Lazy) Put(ctx context.Context, collection models.Collection, rec models.Record) error {
	s, err := l.Open(ctx)
	if err != nil {
		return err
	}
	return s.Put(ctx, collection, rec)
}

// Get implements Store.
func (l *Lazy) Get(ctx context.Context, collection models.Collection, id string) (models.Record, error) {
	s, err := l.Open(ctx)
	if err != nil {
		return models.Record{}, err
	}
	return s.Get(ctx, collection, id)
}

// GetAll implements Store.
func (l *Lazy) GetAll(ctx context.Context, collection models.Collection) ([]models.Record, error) {
	s, err := l.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetAll(ctx, collection)
}

// Delete implements Store.
func (l *Lazy) Delete(ctx context.Context, collection models.Collection, id string) error {
	s, err := l.Open(ctx)
	if err != nil {
		return err
	}
	return s.Delete(ctx, collection, id)
}

// Count implements Store.
func (l *Lazy) Count(ctx context.Context, collection models.Collection) (int, error) {
	s, err := l.Open(ctx)
	if err != nil {
		return 0, err
	}
	return s.Count(ctx, collection)
}
