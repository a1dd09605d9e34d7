package models

// Action selects the shape of an Envelope.
type Action string

const (
	// ActionAppend appends Values as rows to the sheet range in Resource.
	ActionAppend Action = "append"
	// ActionUpsert writes Record into the table named by Resource.
	ActionUpsert Action = "upsert"
	// ActionDelete removes the row whose "id" is given in Record.
	ActionDelete Action = "delete"
)

// Envelope is the payload delivered to the remote endpoint. It is a tagged
// union keyed by Action; Validate enforces the per-action fields.
type Envelope struct {
	Action   Action                 `json:"action" yaml:"action" validate:"required,oneof=append upsert delete"`
	Resource string                 `json:"resource" yaml:"resource" validate:"required"`
	Values   [][]interface{}        `json:"values,omitempty" yaml:"values,omitempty"`
	Record   map[string]interface{} `json:"record,omitempty" yaml:"record,omitempty"`
	// Auth is a per-call shared secret. It is never persisted with the
	// queued envelope; transports add it on the wire.
	Auth     string                 `json:"-" yaml:"-"`
}

// Validate checks the envelope shape.
func (e Envelope) Validate() error {
	return Validate(e)
}
