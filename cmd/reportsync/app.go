package main

import (
	"context"
	"io"
	"os"

	"github.com/benbakir04-create/teachers-report/backend/internal/config"
	"github.com/benbakir04-create/teachers-report/backend/internal/connectivity"
	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
	"github.com/benbakir04-create/teachers-report/backend/internal/reports"
	"github.com/benbakir04-create/teachers-report/backend/internal/store"
	syncpkg "github.com/benbakir04-create/teachers-report/backend/internal/sync"
	"github.com/benbakir04-create/teachers-report/backend/internal/sync/queue"
	"github.com/benbakir04-create/teachers-report/backend/internal/sync/scheduler"
)

// app is the wired object graph shared by all commands.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	logFile   io.Closer
	store     *store.Lazy
	queue     *queue.Queue
	observer  *connectivity.Observer
	prober    *connectivity.Prober
	remote    *syncpkg.HTTPConfig
	worker    *syncpkg.Worker
	scheduler *scheduler.Scheduler
	reports   *reports.Service
}

// newApp wires the service from cfg. Logs go to stderr unless log.file is
// set.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		w := logging.NewFileWriter(logging.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		out = w
		a.logFile = w
	}
	level := logging.ParseLevel(cfg.Log.Level)
	logging.Init(out, level)
	a.logger = logging.Get()

	a.store = store.NewLazySQLite(cfg.DataDir, a.logger)
	if _, err := a.store.Open(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.queue = queue.New(a.store, a.logger, &queue.Config{MaxRetries: cfg.Sync.MaxRetries})
	a.observer = connectivity.NewObserver(cfg.Connectivity.AssumeOnline, a.logger)
	if cfg.Connectivity.ProbeURL != "" {
		a.prober = connectivity.NewProber(a.observer, connectivity.ProberConfig{
			URL:      cfg.Connectivity.ProbeURL,
			Interval: cfg.Connectivity.ProbeInterval,
		}, a.logger)
	}

	a.remote = &syncpkg.HTTPConfig{
		Endpoint: cfg.Remote.Endpoint,
		Timeout:  cfg.Remote.SubmitTimeout * 2,
	}
	transport := syncpkg.NewHTTPTransport(a.remote)
	a.worker = syncpkg.NewWorker(a.queue, transport, a.observer, a.logger, &syncpkg.Config{
		SubmitTimeout: cfg.Remote.SubmitTimeout,
	})

	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Interval = cfg.Sync.Interval
	a.scheduler = scheduler.NewScheduler(a.worker, a.observer, a.queue, a.logger, schedCfg)

	a.reports = reports.NewService(a.store, a.queue, a.worker, a.observer, a.logger, &reports.Config{
		Resource:   cfg.Remote.Resource,
		Passphrase: cfg.Secrets.Passphrase,
	})

	a.remote.AuthToken = a.authToken(ctx)
	return a, nil
}

// authToken prefers the configured token and falls back to the stored
// setting.
func (a *app) authToken(ctx context.Context) string {
	if a.cfg.Remote.AuthToken != "" {
		return a.cfg.Remote.AuthToken
	}
	setting, err := a.reports.GetSetting(ctx, reports.SettingAuthToken)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			a.logger.Warn("Stored auth token unavailable", map[string]interface{}{
				"error_code": string(apperrors.CodeOf(err)),
			})
		}
		return ""
	}
	return setting.Value
}

// probeOnce refreshes the connectivity guess when a probe URL is set.
func (a *app) probeOnce(ctx context.Context) {
	if a.prober != nil {
		a.prober.Probe(ctx)
	}
}

// Close releases the store and the log file.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close store", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
