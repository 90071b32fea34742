package docker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"containeryard/internal/ingester"
	"containeryard/internal/logging"
	"containeryard/internal/record"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Options configures the Docker ingester.
type Options struct {
	// Host is the Docker daemon address; empty uses the environment.
	Host string
	// PollInterval re-lists containers as a safety net for missed events.
	// Zero disables polling.
	PollInterval time.Duration
	// Logger for lifecycle events; nil discards.
	Logger *slog.Logger
}

// Ingester follows the log streams of all running containers, attaching to
// new containers as they start and detaching when they die.
type Ingester struct {
	client       engineClient
	pollInterval time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	tracked map[string]context.CancelFunc // container ID -> stream cancel
}

// New connects to the Docker daemon and returns the ingester.
func New(opts Options) (*Ingester, error) {
	client, err := newSDKClient(opts.Host)
	if err != nil {
		return nil, err
	}
	return newWithClient(client, opts), nil
}

func newWithClient(client engineClient, opts Options) *Ingester {
	return &Ingester{
		client:       client,
		pollInterval: opts.PollInterval,
		logger:       logging.Default(opts.Logger).With("component", "ingester.docker"),
		tracked:      make(map[string]context.CancelFunc),
	}
}

// Name implements ingester.Ingester.
func (ing *Ingester) Name() string { return "docker" }

// Run implements ingester.Ingester. It blocks until ctx is cancelled.
func (ing *Ingester) Run(ctx context.Context, out chan<- ingester.Message) error {
	if err := ing.waitForDaemon(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	ing.attachAll(ctx, out, &wg)

	wg.Go(func() { ing.eventLoop(ctx, out, &wg) })
	if ing.pollInterval > 0 {
		wg.Go(func() { ing.pollLoop(ctx, out, &wg) })
	}

	<-ctx.Done()

	ing.mu.Lock()
	for _, cancel := range ing.tracked {
		cancel()
	}
	ing.mu.Unlock()

	wg.Wait()
	return nil
}

// waitForDaemon retries the first daemon call with backoff so the service
// survives starting before Docker does.
func (ing *Ingester) waitForDaemon(ctx context.Context) error {
	backoff := initialBackoff
	for {
		if _, err := ing.client.ListContainers(ctx); err == nil {
			ing.logger.Info("connected to docker daemon")
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		} else {
			ing.logger.Warn("docker daemon not ready, retrying", "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// attachAll starts streams for every currently running container.
func (ing *Ingester) attachAll(ctx context.Context, out chan<- ingester.Message, wg *sync.WaitGroup) {
	containers, err := ing.client.ListContainers(ctx)
	if err != nil {
		ing.logger.Warn("container list failed", "error", err)
		return
	}
	for _, c := range containers {
		ing.attach(ctx, c, out, wg)
	}
}

// attach begins streaming one container's logs unless already tracked.
func (ing *Ingester) attach(ctx context.Context, info containerInfo, out chan<- ingester.Message, wg *sync.WaitGroup) {
	ing.mu.Lock()
	if _, exists := ing.tracked[info.ID]; exists {
		ing.mu.Unlock()
		return
	}
	cctx, cancel := context.WithCancel(ctx)
	ing.tracked[info.ID] = cancel
	ing.mu.Unlock()

	wg.Go(func() {
		ing.streamContainer(cctx, info, out)
		ing.mu.Lock()
		delete(ing.tracked, info.ID)
		ing.mu.Unlock()
	})
}

// detach stops the stream for a container. The stream goroutine removes the
// tracking entry itself on exit.
func (ing *Ingester) detach(id string) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if cancel, ok := ing.tracked[id]; ok {
		cancel()
	}
}

// streamContainer follows one container's logs, reconnecting with backoff
// until its context is cancelled.
func (ing *Ingester) streamContainer(ctx context.Context, info containerInfo, out chan<- ingester.Message) {
	logger := ing.logger.With("container", info.Name, "container_id", info.shortID())
	logger.Info("following container logs")

	since := time.Time{}
	backoff := initialBackoff
	for {
		last, err := ing.streamOnce(ctx, info, since, out)
		if ctx.Err() != nil {
			logger.Info("container log stream stopped")
			return
		}
		if err != nil {
			logger.Warn("container log stream error, reconnecting", "error", err, "backoff", backoff)
		}
		if !last.IsZero() {
			// Resume just past the last seen line to avoid duplicates.
			since = last.Add(time.Nanosecond)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// streamOnce opens one log stream and reads it until EOF or error, returning
// the newest source timestamp seen.
func (ing *Ingester) streamOnce(ctx context.Context, info containerInfo, since time.Time, out chan<- ingester.Message) (time.Time, error) {
	body, isTTY, err := ing.client.FollowLogs(ctx, info.ID, since)
	if err != nil {
		return time.Time{}, err
	}
	defer func() { _ = body.Close() }()

	// Closing the body on cancellation unblocks the reader.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	var last time.Time
	emit := func(line logLine) {
		msg := ingester.Message{
			Source: ing.Name(),
			Attrs: map[string]string{
				record.FieldContainerID:   info.shortID(),
				record.FieldContainerName: info.Name,
				record.FieldImage:         info.Image,
				record.FieldStream:        line.Stream,
			},
			Raw:      line.Text,
			SourceTS: line.Timestamp,
			IngestTS: time.Now(),
		}
		if !line.Timestamp.IsZero() {
			last = line.Timestamp
		}

		select {
		case out <- msg:
		case <-ctx.Done():
		}
	}

	if isTTY || info.IsTTY {
		err = readLines(body, emit)
	} else {
		err = readFrames(body, emit)
	}
	if err == io.EOF {
		err = nil
	}
	return last, err
}

// eventLoop reacts to container lifecycle events, reconnecting to the event
// stream with backoff when it drops.
func (ing *Ingester) eventLoop(ctx context.Context, out chan<- ingester.Message, wg *sync.WaitGroup) {
	for {
		events, errs := ing.client.WatchEvents(ctx)

	consume:
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					break consume
				}
				ing.handleEvent(ctx, ev, out, wg)
			case err := <-errs:
				if ctx.Err() != nil {
					return
				}
				ing.logger.Warn("event stream error", "error", err)
				break consume
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(initialBackoff):
		}
	}
}

func (ing *Ingester) handleEvent(ctx context.Context, ev containerEvent, out chan<- ingester.Message, wg *sync.WaitGroup) {
	switch ev.Action {
	case "start":
		info, err := ing.client.InspectContainer(ctx, ev.ContainerID)
		if err != nil {
			ing.logger.Warn("inspect on start event failed", "error", err)
			return
		}
		ing.attach(ctx, info, out, wg)
	case "stop", "die", "destroy":
		ing.detach(ev.ContainerID)
	}
}

// pollLoop periodically re-lists containers to catch any missed start event.
func (ing *Ingester) pollLoop(ctx context.Context, out chan<- ingester.Message, wg *sync.WaitGroup) {
	ticker := time.NewTicker(ing.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ing.attachAll(ctx, out, wg)
		}
	}
}
