package content

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Reserved attribute names shared by every collection.
const (
	FieldID          = "id"
	FieldSubmittedAt = "submittedAt"
	FieldStatus      = "status"
	FieldRating      = "rating"
)

// Document is one record of a collection. Fields holds the kind-specific
// attributes; ID and SubmittedAt are owned by the store.
type Document struct {
	ID          string
	SubmittedAt time.Time
	Fields      map[string]any
}

// Clone returns a copy whose Fields map can be mutated independently.
func (d Document) Clone() Document {
	d.Fields = CloneFields(d.Fields)
	return d
}

// String returns a field rendered as text, "" when absent.
func (d Document) String(name string) string {
	v, ok := d.Fields[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Status is the moderation status of a testimonial.
func (d Document) Status() string { return d.String(FieldStatus) }

// MarshalJSON emits the fields shallow-merged with id and submittedAt.
func (d Document) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Fields)+2)
	for k, v := range d.Fields {
		m[k] = v
	}
	m[FieldID] = d.ID
	if !d.SubmittedAt.IsZero() {
		m[FieldSubmittedAt] = d.SubmittedAt.UTC()
	} else {
		delete(m, FieldSubmittedAt)
	}
	return json.Marshal(m)
}

func (d *Document) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	d.ID, _ = m[FieldID].(string)
	d.SubmittedAt = time.Time{}
	if s, ok := m[FieldSubmittedAt].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("submittedAt: %w", err)
		}
		d.SubmittedAt = t
	}
	delete(m, FieldID)
	delete(m, FieldSubmittedAt)
	d.Fields = m
	return nil
}

// CloneFields copies a field map; values are scalars so a shallow copy suffices.
func CloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// StripReserved removes the store-owned attributes from a write payload.
func StripReserved(fields map[string]any) map[string]any {
	out := CloneFields(fields)
	delete(out, FieldID)
	delete(out, FieldSubmittedAt)
	return out
}
