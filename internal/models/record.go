package models

import "encoding/json"

// Collection names a logical keyed collection in the local store.
type Collection string

const (
	CollectionReports    Collection = "reports"
	CollectionSyncQueue  Collection = "syncQueue"
	CollectionSettings   Collection = "settings"
	CollectionDeadLetter Collection = "deadLetter"
)

// Collections lists every collection the local store accepts.
var Collections = []Collection{
	CollectionReports,
	CollectionSyncQueue,
	CollectionSettings,
	CollectionDeadLetter,
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// Record is an opaque JSON payload stored under a generated identifier.
// Records are never mutated in place: an update writes a new record with
// the same business Key and readers resolve by last write.
type Record struct {
	ID         string          `db:"id" json:"id"`
	Collection Collection      `db:"collection" json:"collection"`
	Key        string          `db:"business_key" json:"key,omitempty"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  int64           `db:"created_at" json:"created_at"` // unix millis
}

// Clone returns a deep copy so callers cannot alias stored payload bytes.
func (r Record) Clone() Record {
	if r.Payload != nil {
		r.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	return r
}
