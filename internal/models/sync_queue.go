package models

import "time"

// QueueStatus represents the delivery state of a queued operation.
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSyncing QueueStatus = "syncing"
	QueueStatusFailed  QueueStatus = "failed"
)

// QueueItem is a pending outbound operation. It lives in the syncQueue
// collection from the moment a write is accepted locally until the remote
// endpoint acknowledges it.
type QueueItem struct {
	ID             UUID        `json:"id"`
	Seq            int64       `json:"seq"`
	Payload        Envelope    `json:"payload"`
	Status         QueueStatus `json:"status"`
	RetryCount     int         `json:"retry_count"`
	LastError      string      `json:"last_error,omitempty"`
	CreatedAt      int64       `json:"created_at"` // unix millis
	UpdatedAt      int64       `json:"updated_at"`
	DeadLetteredAt int64       `json:"dead_lettered_at,omitempty"`
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (q *QueueItem) CreatedAtTime() time.Time {
	return time.UnixMilli(q.CreatedAt)
}
