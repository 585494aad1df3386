package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
	"github.com/abdul-hamid-achik/scene.cheap/internal/archive"
	"github.com/abdul-hamid-achik/scene.cheap/internal/cache"
	"github.com/abdul-hamid-achik/scene.cheap/internal/generation"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

type QueuedResponse struct {
	JobID     string       `json:"jobId"`
	Status    model.Status `json:"status"`
	EventsURL string       `json:"eventsUrl"`
}

type ListResponse struct {
	Jobs []model.JobSummary `json:"jobs"`
}

func createJobHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var opts model.Options
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&opts); err != nil {
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(err, apperror.CodeInvalidInput, "request body must be a JSON job options object", http.StatusBadRequest))
			return
		}

		if isAsync(r) {
			job, err := cfg.Service.Submit(r.Context(), opts)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeQueued(w, job)
			return
		}

		streamRun(w, r, cfg, func(ctx context.Context, sink stream.Sink) (*model.Job, error) {
			return cfg.Service.Generate(ctx, opts, sink)
		})
	}
}

// resumeOverrides reads the optional re-extraction toggles. An empty body keeps the
// choices stored with the job.
func resumeOverrides(w http.ResponseWriter, r *http.Request) (resume.Overrides, error) {
	var ov resume.Overrides
	if r.Body == nil || r.Body == http.NoBody {
		return ov, nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&ov)
	if errors.Is(err, io.EOF) {
		return resume.Overrides{}, nil
	}
	return ov, err
}

func resumeJobHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ov, err := resumeOverrides(w, r)
		if err != nil {
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(err, apperror.CodeInvalidInput, "request body must be a JSON resume options object", http.StatusBadRequest))
			return
		}
		if isAsync(r) {
			job, err := cfg.Service.SubmitResume(r.Context(), id, ov)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeQueued(w, job)
			return
		}

		streamRun(w, r, cfg, func(ctx context.Context, sink stream.Sink) (*model.Job, error) {
			return cfg.Service.Resume(ctx, id, ov, sink)
		})
	}
}

func cancelJobHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := cfg.Service.Cancel(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id, "status": "cancelling"})
	}
}

func listJobsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Service.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if jobs == nil {
			jobs = []model.JobSummary{}
		}
		writeJSON(w, http.StatusOK, ListResponse{Jobs: jobs})
	}
}

func getJobHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Service.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func deleteJobHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := cfg.Service.Delete(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		if cfg.Archive != nil {
			if err := cfg.Archive.Delete(r.Context(), id); err != nil {
				logger.FromContext(r.Context()).Warn("failed to delete archived result", "job_id", id, "error", err)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clearJobsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Service.Clear(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// jobEventsHandler replays a job's recorded frames, then tails them while the job
// is still running. Last-Event-ID (or ?after=) skips frames already seen.
func jobEventsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Events == nil {
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(nil, apperror.ErrServiceUnavailable.Code, "event replay requires Redis", http.StatusServiceUnavailable))
			return
		}
		id := r.PathValue("id")
		job, err := cfg.Service.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		after, err := lastEventID(r)
		if err != nil {
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(err, apperror.ErrBadRequest.Code, "Last-Event-ID must be an integer", http.StatusBadRequest))
			return
		}

		clearWriteDeadline(w)
		sse, err := stream.NewSSEWriter(w)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer sse.Close()
		ctx := r.Context()
		go sse.KeepAlive(ctx, cfg.Keepalive)

		if job.Status == model.StatusInProgress {
			if err := cfg.Events.Follow(ctx, id, after, sse); err != nil && ctx.Err() == nil {
				logger.FromContext(ctx).Warn("event follow ended", "job_id", id, "error", err)
			}
			return
		}

		frames, err := cfg.Events.Replay(ctx, id)
		if err != nil {
			logger.FromContext(ctx).Warn("event replay failed", "job_id", id, "error", err)
			return
		}
		for _, ev := range frames {
			if ev.Seq <= after {
				continue
			}
			if err := sse.Emit(ctx, ev); err != nil {
				return
			}
		}
	}
}

func jobResultHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Archive == nil {
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(nil, apperror.ErrServiceUnavailable.Code, "result archive is not configured", http.StatusServiceUnavailable))
			return
		}
		link, err := cfg.Archive.URL(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		http.Redirect(w, r, link, http.StatusFound)
	}
}

func isAsync(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return ok
}

func lastEventID(r *http.Request) (int64, error) {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("after")
	}
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func writeQueued(w http.ResponseWriter, job *model.Job) {
	writeJSON(w, http.StatusAccepted, QueuedResponse{
		JobID:     job.ID,
		Status:    job.Status,
		EventsURL: "/v1/jobs/" + job.ID + "/events",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto the API error taxonomy.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apperror.WriteJSON(w, r, toAPIError(err))
}

func toAPIError(err error) error {
	var invalid *model.InvalidOptionsError
	var appErr *apperror.Error
	switch {
	case errors.As(err, &invalid):
		return apperror.WrapWithMessage(err, apperror.CodeInvalidInput, invalid.Error(), http.StatusBadRequest)
	case errors.Is(err, cache.ErrNotFound):
		return apperror.Wrap(err, apperror.ErrNotFound)
	case errors.Is(err, archive.ErrNotArchived):
		return apperror.WrapWithMessage(err, apperror.ErrNotFound.Code, "no archived result for this job", http.StatusNotFound)
	case errors.Is(err, resume.ErrNotResumable),
		errors.Is(err, model.ErrJobCompleted),
		errors.Is(err, generation.ErrAlreadyRunning),
		errors.Is(err, generation.ErrNotRunning):
		return apperror.WrapWithMessage(err, apperror.ErrConflict.Code, err.Error(), http.StatusConflict)
	case errors.Is(err, generation.ErrNoQueue), errors.Is(err, stream.ErrStreamingUnsupported):
		return apperror.WrapWithMessage(err, apperror.ErrServiceUnavailable.Code, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &appErr):
		return appErr
	default:
		return apperror.Wrap(err, apperror.ErrInternal)
	}
}
