package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
)

// DefaultProbeInterval is used when ProberConfig.Interval is zero.
const DefaultProbeInterval = 30 * time.Second

// ProberConfig configures a Prober.
type ProberConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
}

// Prober feeds an Observer by polling a URL with HEAD requests. Any
// response below 500 counts as online; errors and 5xx count as offline.
type Prober struct {
	observer *Observer
	url      string
	interval time.Duration
	client   *http.Client
	logger   *logging.Logger
}

// NewProber creates a Prober for observer.
func NewProber(observer *Observer, config ProberConfig, logger *logging.Logger) *Prober {
	if logger == nil {
		logger = logging.Get()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	client := config.Client
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Prober{
		observer: observer,
		url:      config.URL,
		interval: interval,
		client:   client,
		logger:   logger,
	}
}

// Probe performs one check and records the result in the Observer.
func (p *Prober) Probe(ctx context.Context) bool {
	online := p.check(ctx)
	p.observer.Set(online)
	return online
}

func (p *Prober) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warn("Invalid probe URL", map[string]interface{}{"url": p.url, "error": err.Error()})
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("Probe failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
