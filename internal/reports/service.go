// Package reports saves teacher daily reports locally first and hands them
// to the sync queue for delivery.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
	"github.com/benbakir04-create/teachers-report/backend/internal/store"
	syncpkg "github.com/benbakir04-create/teachers-report/backend/internal/sync"
	"github.com/benbakir04-create/teachers-report/backend/internal/sync/queue"
	"github.com/benbakir04-create/teachers-report/backend/internal/uuid"
)

// DefaultResource is the sheet range reports are appended to.
const DefaultResource = "Reports!A1"

// Outcome tells the user what happened to a save.
type Outcome string

const (
	// OutcomeSaved means the report reached the remote during the save.
	OutcomeSaved Outcome = "saved"
	// OutcomeSavedLocally means the report is queued for a later drain.
	OutcomeSavedLocally Outcome = "saved_locally"
)

// Message returns the user-facing text for o.
func (o Outcome) Message() string {
	if o == OutcomeSaved {
		return "saved"
	}
	return "saved locally, will sync later"
}

// SaveResult is returned by Save.
type SaveResult struct {
	Report  models.Report `json:"report" yaml:"report"`
	Outcome Outcome       `json:"outcome" yaml:"outcome"`
	Message string        `json:"message" yaml:"message"`
	ItemID  string        `json:"item_id" yaml:"item_id"`
}

// Drainer runs a drain pass.
type Drainer interface {
	Drain(ctx context.Context) (syncpkg.DrainResult, error)
}

// OnlineChecker reports the current connectivity guess.
type OnlineChecker interface {
	IsOnline() bool
}

// Config holds service configuration.
type Config struct {
	Resource   string // sheet range for append envelopes
	Passphrase string // key material for secret settings
	Now        func() time.Time
}

// Service implements report operations.
type Service struct {
	store      store.Store
	queue      *queue.Queue
	drainer    Drainer
	online     OnlineChecker
	logger     *logging.Logger
	resource   string
	passphrase string
	now        func() time.Time
}

// NewService creates a Service.
func NewService(s store.Store, q *queue.Queue, drainer Drainer, online OnlineChecker, logger *logging.Logger, config *Config) *Service {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = logging.Get()
	}
	resource := config.Resource
	if resource == "" {
		resource = DefaultResource
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      s,
		queue:      q,
		drainer:    drainer,
		online:     online,
		logger:     logger,
		resource:   resource,
		passphrase: config.Passphrase,
		now:        now,
	}
}

// Save validates and stores report, queues it for delivery and, when
// online, drains immediately. The remote outcome never fails the save.
func (s *Service) Save(ctx context.Context, report models.Report) (*SaveResult, error) {
	if err := models.Validate(report); err != nil {
		return nil, err
	}

	report.ID = models.UUID(uuid.NewTimeOrdered())
	report.CreatedAt = s.now().UnixMilli()

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode report", err)
	}
	rec := models.Record{
		ID:        report.ID.String(),
		Key:       report.BusinessKey(),
		Payload:   payload,
		CreatedAt: report.CreatedAt,
	}
	if err := s.store.Put(ctx, models.CollectionReports, rec); err != nil {
		return nil, err
	}

	item, err := s.queue.Enqueue(ctx, models.Envelope{
		Action:   models.ActionAppend,
		Resource: s.resource,
		Values:   report.Rows(),
	})
	if err != nil {
		// a report that was never queued would be a second version on resubmit
		if delErr := s.store.Delete(ctx, models.CollectionReports, rec.ID); delErr != nil {
			s.logger.Error("Failed to remove unqueued report", delErr,
				map[string]interface{}{"report_id": rec.ID})
		}
		return nil, err
	}

	outcome := s.deliver(ctx, item.ID.String())
	s.logger.Info("Report saved",
		map[string]interface{}{
			"report_id":  report.ID.String(),
			"teacher_id": report.TeacherID,
			"date":       report.Date,
			"outcome":    string(outcome),
		})

	return &SaveResult{
		Report:  report,
		Outcome: outcome,
		Message: outcome.Message(),
		ItemID:  item.ID.String(),
	}, nil
}

// deliver attempts an immediate drain and reports whether itemID made it.
func (s *Service) deliver(ctx context.Context, itemID string) Outcome {
	if s.drainer == nil || !s.online.IsOnline() {
		return OutcomeSavedLocally
	}
	result, err := s.drainer.Drain(ctx)
	if errors.Is(err, syncpkg.ErrDrainInProgress) {
		return OutcomeSavedLocally
	}
	if err != nil {
		s.logger.Warn("Drain after save failed", map[string]interface{}{"error": err.Error()})
	}
	if result.Delivered(itemID) {
		return OutcomeSaved
	}
	return OutcomeSavedLocally
}

// Filter narrows List. Empty fields match everything; dates are inclusive
// YYYY-MM-DD bounds.
type Filter struct {
	TeacherID string
	From      string
	To        string
}

func (f Filter) match(r *models.Report) bool {
	if f.TeacherID != "" && r.TeacherID != f.TeacherID {
		return false
	}
	if f.From != "" && r.Date < f.From {
		return false
	}
	if f.To != "" && r.Date > f.To {
		return false
	}
	return true
}

// List returns the latest version of each report matching filter, newest
// date first.
func (s *Service) List(ctx context.Context, filter Filter) ([]models.Report, error) {
	records, err := s.store.GetAll(ctx, models.CollectionReports)
	if err != nil {
		return nil, err
	}

	all := make([]models.Report, 0, len(records))
	for _, rec := range records {
		var r models.Report
		if err := json.Unmarshal(rec.Payload, &r); err != nil {
			s.logger.Warn("Skipping unreadable report",
				map[string]interface{}{"report_id": rec.ID, "error": err.Error()})
			continue
		}
		all = append(all, r)
	}

	latest := resolveLatest(all, s.logger)
	out := latest[:0]
	for i := range latest {
		if filter.match(&latest[i]) {
			out = append(out, latest[i])
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].TeacherID < out[j].TeacherID
	})
	return out, nil
}

// Get returns one stored report version by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Report, error) {
	rec, err := s.store.Get(ctx, models.CollectionReports, id)
	if err != nil {
		return nil, err
	}
	var r models.Report
	if err := json.Unmarshal(rec.Payload, &r); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "decode report "+id, err)
	}
	return &r, nil
}

// PendingCount returns the number of items waiting to sync.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.queue.Count(ctx)
}
