// Package record defines the log record passed between ingesters, digesters,
// the stream hub, and the HTTP API.
package record

import (
	"time"

	"github.com/google/uuid"

	"containeryard/internal/logquery"
)

// Well-known field keys set by ingesters and digesters.
const (
	FieldContainerID   = "container_id"
	FieldContainerName = "container_name"
	FieldImage         = "image"
	FieldStream        = "stream"
	FieldPath          = "path"
)

// Record is one log line flowing through the system. Once published to the
// hub it is treated as immutable; digesters run before publication.
type Record struct {
	ID       uuid.UUID         `json:"id"`
	Source   string            `json:"source"`              // ingester name, e.g. "docker" or "tail"
	SourceTS time.Time         `json:"source_ts,omitzero"`  // when the line was generated (zero if unknown)
	IngestTS time.Time         `json:"ingest_ts"`           // when the line was received
	Raw      string            `json:"raw"`                 // the log line text
	Level    string            `json:"level,omitempty"`     // normalized severity, empty if unknown
	Fields   map[string]string `json:"fields,omitempty"`    // key/value metadata and extracted pairs
}

// New creates a record with a fresh ID and the ingest timestamp set.
func New(source, raw string) *Record {
	return &Record{
		ID:       uuid.New(),
		Source:   source,
		IngestTS: time.Now(),
		Raw:      raw,
	}
}

// SetField sets a field, allocating the map on first use. Existing values
// are overwritten; callers that must not clobber ingester-provided fields
// check presence first.
func (r *Record) SetField(key, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[key] = value
}

// QueryView returns the read-only view the query matcher evaluates.
func (r *Record) QueryView() logquery.Record {
	return logquery.Record{
		Raw:    r.Raw,
		Level:  r.Level,
		Fields: r.Fields,
	}
}

// Timestamp returns the best-known time for the record: the source time when
// present, otherwise the ingest time.
func (r *Record) Timestamp() time.Time {
	if !r.SourceTS.IsZero() {
		return r.SourceTS
	}
	return r.IngestTS
}
