package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// HTTPConfig holds remote endpoint configuration.
type HTTPConfig struct {
	Endpoint  string
	AuthToken string        // sent as "auth" when the envelope carries none
	Timeout   time.Duration // client-level ceiling; per-submission timeouts come from ctx
}

// HTTPTransport posts envelopes as JSON to a web app endpoint that answers
// with {"success": bool, "error": string} (or "ok" in place of "success").
type HTTPTransport struct {
	config     *HTTPConfig
	httpClient *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// wireEnvelope is the request body: the envelope plus the auth secret,
// which the stored form omits.
type wireEnvelope struct {
	models.Envelope
	Auth string `json:"auth,omitempty"`
}

// remoteResponse accepts both spellings of the success flag.
type remoteResponse struct {
	Success *bool  `json:"success"`
	OK      *bool  `json:"ok"`
	Error   string `json:"error"`
}

// NewHTTPTransport creates an HTTPTransport.
func NewHTTPTransport(config *HTTPConfig) *HTTPTransport {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// NewHTTPTransportWithClient creates an HTTPTransport with a custom client.
func NewHTTPTransportWithClient(config *HTTPConfig, client *http.Client) *HTTPTransport {
	return &HTTPTransport{config: config, httpClient: client}
}

// Submit implements Transport.
func (t *HTTPTransport) Submit(ctx context.Context, env models.Envelope) (Result, error) {
	if t.config.Endpoint == "" {
		return Result{}, fmt.Errorf("remote endpoint is not configured")
	}
	wire := wireEnvelope{Envelope: env, Auth: env.Auth}
	if wire.Auth == "" {
		wire.Auth = t.config.AuthToken
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("remote returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var decoded remoteResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	ok := false
	switch {
	case decoded.Success != nil:
		ok = *decoded.Success
	case decoded.OK != nil:
		ok = *decoded.OK
	default:
		return Result{}, fmt.Errorf("response carries neither success nor ok")
	}
	return Result{OK: ok, Error: decoded.Error}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
