// Package ingester defines the contract between log sources and the rest of
// the system.
package ingester

import (
	"context"
	"time"
)

// Message is one raw log line as emitted by a source, before digestion.
type Message struct {
	Source   string            // emitting ingester's Name()
	Attrs    map[string]string // source metadata (container name, path, stream, ...)
	Raw      string            // the log line text, newline stripped
	SourceTS time.Time         // when the line was generated at the source (zero if unknown)
	IngestTS time.Time         // when the ingester received the line
}

// Ingester is a source of log messages.
// Implementations must respect context cancellation and exit promptly.
// Ingesters know nothing about digesters, the hub, or the HTTP layer.
type Ingester interface {
	// Name identifies the source in records and logs, e.g. "docker".
	Name() string

	// Run starts the ingester and emits messages to the output channel.
	// Run blocks until ctx is cancelled or an unrecoverable error occurs.
	Run(ctx context.Context, out chan<- Message) error
}
