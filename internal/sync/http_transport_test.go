package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

func newEndpoint(t *testing.T, status int, body string, seen *wireEnvelope) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		if seen != nil {
			assert.NoError(t, json.Unmarshal(raw, seen))
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func appendEnvelope() models.Envelope {
	return models.Envelope{
		Action:   models.ActionAppend,
		Resource: "Reports!A1",
		Values:   [][]interface{}{{"2026-03-01", "t1"}},
	}
}

func TestHTTPTransport_success(t *testing.T) {
	var seen wireEnvelope
	srv := newEndpoint(t, http.StatusOK, `{"success":true}`, &seen)
	tr := NewHTTPTransport(&HTTPConfig{Endpoint: srv.URL, AuthToken: "secret"})

	res, err := tr.Submit(context.Background(), appendEnvelope())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, models.ActionAppend, seen.Action)
	assert.Equal(t, "Reports!A1", seen.Resource)
	assert.Equal(t, "secret", seen.Auth)
}

func TestHTTPTransport_okSpelling(t *testing.T) {
	srv := newEndpoint(t, http.StatusOK, `{"ok":false,"error":"validation"}`, nil)
	tr := NewHTTPTransport(&HTTPConfig{Endpoint: srv.URL})

	res, err := tr.Submit(context.Background(), appendEnvelope())
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "validation", res.Error)
}

func TestHTTPTransport_keepsEnvelopeAuth(t *testing.T) {
	var seen wireEnvelope
	srv := newEndpoint(t, http.StatusOK, `{"success":true}`, &seen)
	tr := NewHTTPTransport(&HTTPConfig{Endpoint: srv.URL, AuthToken: "default"})

	e := appendEnvelope()
	e.Auth = "own"
	_, err := tr.Submit(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, "own", seen.Auth)
}

func TestHTTPTransport_failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"success":true}`},
		{"not found", http.StatusNotFound, `nope`},
		{"html body", http.StatusOK, `<html>login</html>`},
		{"no verdict", http.StatusOK, `{"error":"?"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newEndpoint(t, tt.status, tt.body, nil)
			tr := NewHTTPTransport(&HTTPConfig{Endpoint: srv.URL})
			_, err := tr.Submit(context.Background(), appendEnvelope())
			assert.Error(t, err)
		})
	}
}

func TestHTTPTransport_customClient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHTTPTransportWithClient(&HTTPConfig{Endpoint: srv.URL}, &http.Client{Timeout: 20 * time.Millisecond})
	_, err := tr.Submit(context.Background(), appendEnvelope())
	assert.Error(t, err, "client timeout applies")
}

func TestHTTPTransport_authStaysOffTheStoredEnvelope(t *testing.T) {
	e := appendEnvelope()
	e.Auth = "secret"
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	var seen wireEnvelope
	srv := newEndpoint(t, http.StatusOK, `{"success":true}`, &seen)
	_, err = NewHTTPTransport(&HTTPConfig{Endpoint: srv.URL}).Submit(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, "secret", seen.Auth)
	assert.Equal(t, models.ActionAppend, seen.Action)
}

func TestHTTPTransport_noEndpoint(t *testing.T) {
	tr := NewHTTPTransport(&HTTPConfig{})
	_, err := tr.Submit(context.Background(), appendEnvelope())
	assert.Error(t, err)
}
