package docker

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"
)

// logLine is one parsed line from a container's log output.
type logLine struct {
	Timestamp time.Time // zero when the prefix could not be parsed
	Stream    string    // "stdout", "stderr", or "tty"
	Text      string
}

// streamName maps Docker's frame-header stream byte to a field value.
func streamName(b byte) string {
	switch b {
	case 1:
		return "stdout"
	case 2:
		return "stderr"
	default:
		return "stdin"
	}
}

// readFrames decodes the multiplexed log format of a non-TTY container and
// calls emit for every line. Docker frames carry an 8-byte header:
// stream byte, 3 padding bytes, and a big-endian payload size.
func readFrames(r io.Reader, emit func(logLine)) error {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			return err
		}

		stream := streamName(header[0])
		size := binary.BigEndian.Uint32(header[4:8])
		if size == 0 {
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("read frame payload: %w", err)
		}

		// A frame may carry several newline-separated lines.
		for line := range bytes.Lines(payload) {
			emitLine(line, stream, emit)
		}
	}
}

// readLines reads the raw output of a TTY container, one line at a time.
func readLines(r io.Reader, emit func(logLine)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		emitLine(scanner.Bytes(), "tty", emit)
	}
	return scanner.Err()
}

func emitLine(line []byte, stream string, emit func(logLine)) {
	text := strings.TrimRight(string(line), "\r\n")
	if text == "" {
		return
	}
	ts, rest := splitTimestamp(text)
	emit(logLine{Timestamp: ts, Stream: stream, Text: rest})
}

// splitTimestamp strips the RFC3339Nano prefix Docker prepends when logs are
// requested with timestamps. Returns a zero time and the whole line when no
// valid prefix is present.
func splitTimestamp(line string) (time.Time, string) {
	idx := strings.IndexByte(line, ' ')
	if idx < 20 { // shortest RFC3339 form
		return time.Time{}, line
	}

	ts, err := time.Parse(time.RFC3339Nano, line[:idx])
	if err != nil {
		return time.Time{}, line
	}
	return ts, line[idx+1:]
}
