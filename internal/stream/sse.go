package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultKeepalive is how often an idle SSE connection gets a comment line.
const DefaultKeepalive = 15 * time.Second

var ErrStreamingUnsupported = errors.New("stream: response writer cannot flush")

// Encode writes ev as one SSE frame. The data line is compacted so it is a single line.
func Encode(w io.Writer, ev Event) error {
	var data bytes.Buffer
	if len(ev.Data) == 0 {
		data.WriteString("null")
	} else if err := json.Compact(&data, ev.Data); err != nil {
		return fmt.Errorf("encode %s frame: %w", ev.Kind, err)
	}

	var buf bytes.Buffer
	if ev.Seq > 0 {
		buf.WriteString("id: ")
		buf.WriteString(strconv.FormatInt(ev.Seq, 10))
		buf.WriteByte('\n')
	}
	buf.WriteString("event: ")
	buf.WriteString(string(ev.Kind))
	buf.WriteString("\ndata: ")
	buf.Write(data.Bytes())
	buf.WriteString("\n\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func WriteKeepalive(w io.Writer, now time.Time) error {
	_, err := fmt.Fprintf(w, ": keepalive %d\n\n", now.Unix())
	return err
}

// SSEWriter streams frames to an HTTP response, flushing after each one.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewSSEWriter sets the event-stream headers and writes the status line.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) Emit(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if err := Encode(s.w, ev); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// KeepAlive writes a comment line every interval until ctx ends or Close is called.
func (s *SSEWriter) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultKeepalive
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			if err := WriteKeepalive(s.w, now); err == nil {
				s.flusher.Flush()
			}
			s.mu.Unlock()
		}
	}
}

// Close stops further writes; the handler still owns the response.
func (s *SSEWriter) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
