// Package orchestrator runs the ingest pipeline: it supervises ingesters,
// digests their messages into records, and publishes the records to the
// stream hub.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"containeryard/internal/digester"
	"containeryard/internal/ingester"
	"containeryard/internal/logging"
	"containeryard/internal/record"
	"containeryard/internal/stream"
)

// Sentinel errors for lifecycle misuse.
var (
	ErrAlreadyRunning = errors.New("orchestrator already running")
	ErrNotRunning     = errors.New("orchestrator not running")
)

// DefaultIngestBuffer is the ingest channel capacity used when
// Config.IngestBuffer is zero.
const DefaultIngestBuffer = 1024

// Config configures an Orchestrator.
type Config struct {
	// Ingesters are the message sources to supervise.
	Ingesters []ingester.Ingester
	// Digesters run in order over each record before publication.
	Digesters digester.Chain
	// Hub receives every digested record.
	Hub *stream.Hub
	// IngestBuffer is the shared ingest channel capacity.
	IngestBuffer int
	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Orchestrator owns the pipeline goroutines. Each ingester runs in its own
// goroutine emitting to a shared channel; a single digest loop drains the
// channel, enriches records, and publishes them.
type Orchestrator struct {
	ingesters []ingester.Ingester
	digesters digester.Chain
	hub       *stream.Hub
	bufSize   int
	logger    *slog.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	ingestCh   chan ingester.Message
	ingesterWg sync.WaitGroup
	digestWg   sync.WaitGroup
}

// New creates an orchestrator. The hub must be non-nil.
func New(cfg Config) *Orchestrator {
	bufSize := cfg.IngestBuffer
	if bufSize <= 0 {
		bufSize = DefaultIngestBuffer
	}
	return &Orchestrator{
		ingesters: cfg.Ingesters,
		digesters: cfg.Digesters,
		hub:       cfg.Hub,
		bufSize:   bufSize,
		logger:    logging.Default(cfg.Logger).With("component", "orchestrator"),
	}
}

// Start launches all ingesters and the digest loop, then returns.
// Use Stop to shut down.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.ingestCh = make(chan ingester.Message, o.bufSize)
	o.running = true

	o.logger.Info("starting pipeline", "ingesters", len(o.ingesters))

	for _, ing := range o.ingesters {
		o.logger.Info("starting ingester", "name", ing.Name())
		o.ingesterWg.Go(func() {
			if err := ing.Run(ctx, o.ingestCh); err != nil {
				o.logger.Error("ingester exited", "name", ing.Name(), "error", err)
			}
		})
	}

	o.digestWg.Go(func() { o.digestLoop(o.ingestCh) })

	return nil
}

// Stop shuts the pipeline down in stages: cancel ingesters and wait for them
// to exit, close the ingest channel, then wait for the digest loop to drain.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	cancel := o.cancel
	ingestCh := o.ingestCh
	o.mu.Unlock()

	cancel()
	o.ingesterWg.Wait()
	close(ingestCh)
	o.digestWg.Wait()

	o.mu.Lock()
	o.running = false
	o.cancel = nil
	o.ingestCh = nil
	o.mu.Unlock()

	o.logger.Info("pipeline stopped")
	return nil
}

// digestLoop drains the ingest channel until it is closed. It runs after
// context cancellation so queued messages are not lost on shutdown.
func (o *Orchestrator) digestLoop(in <-chan ingester.Message) {
	for msg := range in {
		o.hub.Publish(o.digest(msg))
	}
}

// digest builds a record from a message and runs the digester chain.
func (o *Orchestrator) digest(msg ingester.Message) *record.Record {
	rec := record.New(msg.Source, msg.Raw)
	if !msg.IngestTS.IsZero() {
		rec.IngestTS = msg.IngestTS
	}
	rec.SourceTS = msg.SourceTS
	for key, value := range msg.Attrs {
		rec.SetField(key, value)
	}
	for _, d := range o.digesters {
		d.Digest(rec)
	}
	return rec
}
