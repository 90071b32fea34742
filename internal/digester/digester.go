// Package digester defines the enrichment step that runs on every record
// between ingestion and publication.
package digester

import "containeryard/internal/record"

// Digester processes a record in-place before it is published. Digesters
// enrich records by deriving the severity level or extracting fields from
// the raw text. They must not modify Raw or timestamps.
//
// Digesters are best-effort: a parse failure simply means no enrichment is
// applied. Implementations must not return errors or panic.
type Digester interface {
	Digest(rec *record.Record)
}

// Chain applies a sequence of digesters in order.
type Chain []Digester

func (c Chain) Digest(rec *record.Record) {
	for _, d := range c {
		d.Digest(rec)
	}
}
