package orchestrator

import (
	"context"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
	"github.com/abdul-hamid-achik/scene.cheap/internal/metrics"
	"github.com/abdul-hamid-achik/scene.cheap/internal/phase"
	"github.com/abdul-hamid-achik/scene.cheap/internal/retry"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

// emit numbers and sends one frame. Delivery is detached from ctx so terminal frames
// still reach the sink after cancellation; a failing sink never stops the job.
func (r *runner) emit(ctx context.Context, kind stream.Kind, payload any) {
	ev, err := stream.NewEvent(kind, payload)
	if err != nil {
		r.log.Error("failed to encode frame", "kind", string(kind), "error", err)
		return
	}
	r.seq++
	ev.Seq = r.seq
	metrics.RecordFrame(string(kind))

	ectx, cancel := r.detached(ctx)
	defer cancel()
	if err := r.sink.Emit(ectx, ev); err != nil {
		r.log.Warn("frame delivery failed", "kind", string(kind), "seq", ev.Seq, "error", err)
	}
}

func (r *runner) progress(ctx context.Context, phaseName, message string, batch *int) {
	job := r.job
	r.emit(ctx, stream.KindProgress, stream.Progress{
		JobID:           job.ID,
		Phase:           phaseName,
		Message:         message,
		Batch:           batch,
		TotalBatches:    job.Options.TotalBatches(),
		ScenesCompleted: len(job.Scenes),
		TargetScenes:    job.Options.SceneCount,
	})
}

// CallStarted announces Phase0 and Phase1 calls with a pending log entry. Scene batch
// calls are already announced by their progress frame.
func (r *runner) CallStarted(c *phase.Call) {
	if c.Batch != nil {
		return
	}
	entry := c.Entry()
	r.job.UpsertLog(entry)
	r.emit(context.Background(), stream.KindLog, entry)
}

func (r *runner) CallFinished(c *phase.Call) {
	entry := c.Entry()
	r.job.UpsertLog(entry)
	r.emit(context.Background(), stream.KindLogUpdate, entry)

	prompt, output := 0, 0
	if c.Response != nil {
		prompt, output = c.Response.PromptTokens, c.Response.OutputTokens
	}
	metrics.RecordProviderCall(c.Phase, string(entry.Status), c.Duration.Seconds(), prompt, output)
}

func (r *runner) Retrying(c *phase.Call, a retry.Attempt) {
	metrics.RecordProviderRetry(c.Phase, apperror.Classify(a.Err).Code)
}

var _ phase.Observer = (*runner)(nil)
