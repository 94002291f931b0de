package state

import "time"

// SchemaVersion is stamped on every Envelope.
const SchemaVersion = 1

type UpdateKind string

const (
	KindSession   UpdateKind = "session"
	KindEquipment UpdateKind = "equipment"
	KindImage     UpdateKind = "image"
	KindStack     UpdateKind = "stack"
	KindEvents    UpdateKind = "events"
	KindFullSync  UpdateKind = "fullSync"
	KindHeartbeat UpdateKind = "heartbeat"
)

// Change hints at what an update touched so subscribers need not diff.
type Change struct {
	Path    string         `json:"path"`
	Summary string         `json:"summary"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Clone returns a deep copy; nil stays nil.
func (c *Change) Clone() *Change {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Meta = cloneMap(c.Meta)
	return &cp
}

// Envelope is what every subscriber receives: the full state plus a hint.
type Envelope struct {
	SchemaVersion int          `json:"schemaVersion"`
	Timestamp     time.Time    `json:"timestamp"`
	UpdateKind    UpdateKind   `json:"updateKind"`
	UpdateReason  string       `json:"updateReason"`
	Changed       *Change      `json:"changed"`
	State         UnifiedState `json:"state"`
}
