// Package sync drains the sync queue against the remote endpoint.
package sync

import (
	"context"

	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// Result is the remote endpoint's verdict on one submission.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Transport delivers envelopes to the remote endpoint. A non-nil error is a
// transport failure (unreachable, timeout, non-2xx); a nil error with
// Result.OK false is a logical rejection by the remote.
type Transport interface {
	Submit(ctx context.Context, env models.Envelope) (Result, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, env models.Envelope) (Result, error)

// Submit implements Transport.
func (f TransportFunc) Submit(ctx context.Context, env models.Envelope) (Result, error) {
	return f(ctx, env)
}
