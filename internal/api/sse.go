package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

// liveSink opens the event stream on the first frame, so a run rejected before it
// emits anything can still answer with a JSON error.
type liveSink struct {
	w        http.ResponseWriter
	ctx      context.Context
	interval time.Duration

	mu  sync.Mutex
	sse *stream.SSEWriter
	err error
}

func (s *liveSink) Emit(ctx context.Context, ev stream.Event) error {
	s.mu.Lock()
	if s.sse == nil && s.err == nil {
		s.sse, s.err = stream.NewSSEWriter(s.w)
		if s.err == nil {
			go s.sse.KeepAlive(s.ctx, s.interval)
		}
	}
	sse, err := s.sse, s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return sse.Emit(ctx, ev)
}

func (s *liveSink) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sse != nil
}

func (s *liveSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sse != nil {
		s.sse.Close()
	}
}

// streamRun runs a job in the request goroutine. A client disconnect cancels the
// run, which then stores a resumable snapshot.
func streamRun(w http.ResponseWriter, r *http.Request, cfg *Config, run func(context.Context, stream.Sink) (*model.Job, error)) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	clearWriteDeadline(w)
	sink := &liveSink{w: w, ctx: ctx, interval: cfg.Keepalive}
	_, err := run(ctx, sink)
	sink.close()

	// Once frames were sent, the terminal frame carries the outcome.
	if !sink.started() && err != nil {
		writeError(w, r, err)
	}
}

// clearWriteDeadline lifts the server write timeout for long-lived streams.
func clearWriteDeadline(w http.ResponseWriter) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
}
