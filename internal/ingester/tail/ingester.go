// Package tail follows plain log files on disk, emitting one message per
// appended line.
package tail

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"containeryard/internal/ingester"
	"containeryard/internal/logging"
	"containeryard/internal/record"
)

// Options configures the tail ingester.
type Options struct {
	// Globs select files to follow, e.g. /var/log/app/*.log.
	Globs []string
	// PollInterval re-scans globs and file sizes as a safety net for missed
	// notifications. Zero disables polling.
	PollInterval time.Duration
	// FromStart reads existing content instead of seeking to the end.
	FromStart bool
	// Logger for lifecycle events; nil discards.
	Logger *slog.Logger
}

// tailedFile is the follow state for one open file.
type tailedFile struct {
	path   string
	file   *os.File
	offset int64
	buf    []byte // trailing partial line from the previous read
}

// Ingester follows files matched by the configured globs. New files are
// picked up from directory notifications; truncated files restart from the
// beginning.
type Ingester struct {
	globs        []string
	pollInterval time.Duration
	fromStart    bool
	logger       *slog.Logger

	files map[string]*tailedFile
}

// New creates the tail ingester.
func New(opts Options) *Ingester {
	return &Ingester{
		globs:        opts.Globs,
		pollInterval: opts.PollInterval,
		fromStart:    opts.FromStart,
		logger:       logging.Default(opts.Logger).With("component", "ingester.tail"),
		files:        make(map[string]*tailedFile),
	}
}

// Name implements ingester.Ingester.
func (ing *Ingester) Name() string { return "tail" }

// Run implements ingester.Ingester. All file state is owned by this
// goroutine; there is no locking because nothing else touches it.
func (ing *Ingester) Run(ctx context.Context, out chan<- ingester.Message) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, dir := range watchDirs(ing.globs) {
		if err := watcher.Add(dir); err != nil {
			ing.logger.Warn("cannot watch directory", "dir", dir, "error", err)
		}
	}

	ing.scanGlobs(ctx, out)

	var tick <-chan time.Time
	if ing.pollInterval > 0 {
		ticker := time.NewTicker(ing.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			ing.closeAll()
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				ing.closeAll()
				return nil
			}
			ing.handleEvent(ctx, ev, out)

		case err, ok := <-watcher.Errors:
			if !ok {
				ing.closeAll()
				return nil
			}
			ing.logger.Warn("watch error", "error", err)

		case <-tick:
			ing.scanGlobs(ctx, out)
			for _, tf := range ing.files {
				ing.readLines(ctx, tf, out)
			}
		}
	}
}

func (ing *Ingester) handleEvent(ctx context.Context, ev fsnotify.Event, out chan<- ingester.Message) {
	switch {
	case ev.Has(fsnotify.Write):
		if tf, ok := ing.files[ev.Name]; ok {
			ing.readLines(ctx, tf, out)
		}
	case ev.Has(fsnotify.Create):
		if matchesGlobs(ing.globs, ev.Name) {
			// Read a newly created file from the start regardless of the
			// FromStart setting; it has no history to flood us with.
			ing.open(ev.Name, true)
			if tf, ok := ing.files[ev.Name]; ok {
				ing.readLines(ctx, tf, out)
			}
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if tf, ok := ing.files[ev.Name]; ok {
			_ = tf.file.Close()
			delete(ing.files, ev.Name)
			ing.logger.Info("stopped tailing removed file", "path", ev.Name)
		}
	}
}

// scanGlobs opens any matching file not yet tracked and drains new content.
func (ing *Ingester) scanGlobs(ctx context.Context, out chan<- ingester.Message) {
	for _, g := range ing.globs {
		paths, err := filepath.Glob(g)
		if err != nil {
			ing.logger.Warn("bad glob pattern", "glob", g, "error", err)
			continue
		}
		for _, p := range paths {
			if _, tracked := ing.files[p]; tracked {
				continue
			}
			ing.open(p, ing.fromStart)
			if tf, ok := ing.files[p]; ok {
				ing.readLines(ctx, tf, out)
			}
		}
	}
}

// open starts tracking a file. Without fromStart the offset begins at the
// current end so a restart doesn't replay an entire log file.
func (ing *Ingester) open(path string, fromStart bool) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		ing.logger.Warn("cannot open file", "path", path, "error", err)
		return
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		_ = f.Close()
		return
	}

	tf := &tailedFile{path: path, file: f}
	if !fromStart {
		tf.offset = info.Size()
	}
	if _, err := f.Seek(tf.offset, io.SeekStart); err != nil {
		_ = f.Close()
		ing.logger.Warn("cannot seek", "path", path, "error", err)
		return
	}

	ing.files[path] = tf
	ing.logger.Info("tailing file", "path", path, "offset", tf.offset)
}

// readLines drains complete lines appended since the last read.
func (ing *Ingester) readLines(ctx context.Context, tf *tailedFile, out chan<- ingester.Message) {
	info, err := os.Stat(tf.path)
	if err != nil {
		return
	}

	// Truncation: start over from the top of the file.
	if info.Size() < tf.offset {
		ing.logger.Info("file truncated, restarting", "path", tf.path)
		if _, err := tf.file.Seek(0, io.SeekStart); err != nil {
			return
		}
		tf.offset = 0
		tf.buf = nil
	}

	reader := bufio.NewReader(tf.file)
	for {
		chunk, err := reader.ReadBytes('\n')
		tf.offset += int64(len(chunk))

		if err != nil {
			// Keep the partial tail for the next write notification.
			tf.buf = append(tf.buf, chunk...)
			return
		}

		line := string(append(tf.buf, chunk...))
		tf.buf = nil
		line = trimEOL(line)
		if line == "" {
			continue
		}

		msg := ingester.Message{
			Source:   ing.Name(),
			Attrs:    map[string]string{record.FieldPath: tf.path},
			Raw:      line,
			IngestTS: time.Now(),
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (ing *Ingester) closeAll() {
	for _, tf := range ing.files {
		_ = tf.file.Close()
	}
	clear(ing.files)
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// watchDirs returns the unique parent directories of the glob patterns.
func watchDirs(globs []string) []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, g := range globs {
		dir := filepath.Dir(g)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

// matchesGlobs reports whether the path matches any configured pattern.
func matchesGlobs(globs []string, path string) bool {
	for _, g := range globs {
		if ok, err := filepath.Match(g, path); err == nil && ok {
			return true
		}
	}
	return false
}
