package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogRecord is an immutable audit entry for one logical operation.
// Details.RevertedBy is the only field written after creation.
type LogRecord struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Operation   Operation `json:"operation"`
	ActorID     string    `json:"actor_id,omitempty"`
	EntityKind  string    `json:"entity_kind,omitempty"`
	AffectedIDs []string  `json:"affected_ids"`
	Details     Details   `json:"details"`
	SnapshotRef string    `json:"snapshot_ref,omitempty"`
}

// Details is the per-operation payload of a LogRecord. Which fields are set
// depends on the operation.
type Details struct {
	Reason           string                 `json:"reason,omitempty"`
	ObjectRepr       string                 `json:"object_repr,omitempty"`
	FieldChanges     map[string]FieldChange `json:"field_changes,omitempty"`
	DeletedObject    map[string]any         `json:"deleted_object,omitempty"`
	ObjectsRepr      map[string]string      `json:"objects_repr,omitempty"`
	ModifiedFields   []string               `json:"modified_fields,omitempty"`
	RevertFromBackup bool                   `json:"revert_from_backup,omitempty"`
	RevertedBy       string                 `json:"reverted_by,omitempty"`
}

// FieldChange is an (old, new) value pair, encoded as a two-element array.
type FieldChange struct {
	Old any
	New any
}

// MarshalJSON encodes the change as [old, new].
func (c FieldChange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{c.Old, c.New})
}

// UnmarshalJSON decodes a [old, new] pair and normalizes both values.
func (c *FieldChange) UnmarshalJSON(data []byte) error {
	var pair []any
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decoding field change: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("field change must have 2 elements, got %d", len(pair))
	}
	c.Old = NormalizeValue(pair[0])
	c.New = NormalizeValue(pair[1])
	return nil
}

// IsReverted reports whether a later REVERT record undid this one.
func (r *LogRecord) IsReverted() bool {
	return r.Details.RevertedBy != ""
}

// HasSnapshot reports whether a database snapshot was taken for this record.
func (r *LogRecord) HasSnapshot() bool {
	return r.SnapshotRef != ""
}

// String returns "<operation label>: <object label>".
func (r *LogRecord) String() string {
	subject := r.Details.ObjectRepr
	if subject == "" {
		switch n := len(r.AffectedIDs); {
		case n == 1:
			subject = r.AffectedIDs[0]
		case n > 1:
			subject = fmt.Sprintf("%d objects", n)
		}
	}
	if r.EntityKind != "" && r.Operation != OpRevert {
		subject = r.EntityKind + " " + subject
	}
	return fmt.Sprintf("%s: %s", r.Operation.Label(), subject)
}
