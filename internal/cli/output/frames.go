package output

import (
	"fmt"

	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

// FrameRenderer turns a job's event stream into terminal output: phase messages,
// a batch progress bar and a final summary. In JSON mode every frame is printed as
// one JSON line instead.
type FrameRenderer struct {
	p        *Printer
	opts     []ProgressOption
	progress *Progress
	jobID    string
	target   int
}

func NewFrameRenderer(p *Printer, opts ...ProgressOption) *FrameRenderer {
	opts = append([]ProgressOption{ProgressWithQuiet(p.IsQuiet() || p.IsJSON())}, opts...)
	return &FrameRenderer{p: p, opts: opts}
}

// JobID is the job id announced by the stream, once seen.
func (r *FrameRenderer) JobID() string {
	return r.jobID
}

func (r *FrameRenderer) Render(ev stream.Event) error {
	if r.p.IsJSON() {
		return r.p.JSONLine(ev)
	}

	switch ev.Kind {
	case stream.KindProgress:
		var pr stream.Progress
		if err := ev.Decode(&pr); err != nil {
			return err
		}
		r.noteJob(pr.JobID)
		r.target = pr.TargetScenes
		r.ensureBar(pr.TotalBatches)
		if pr.Batch == nil {
			r.p.Info("%s", pr.Message)
		}
		if r.progress != nil {
			r.progress.Describe(pr.Message)
		}

	case stream.KindColorProfile:
		r.p.Success("Color profile extracted")

	case stream.KindCharacter:
		var ch stream.Character
		if err := ev.Decode(&ch); err != nil {
			return err
		}
		r.p.Success("Character: %s", ch.Name)

	case stream.KindScript:
		var s stream.Script
		if err := ev.Decode(&s); err != nil {
			return err
		}
		r.p.Success("Script extracted (%d characters)", len([]rune(s.Script)))

	case stream.KindBatchComplete:
		var bc stream.BatchComplete
		if err := ev.Decode(&bc); err != nil {
			return err
		}
		r.ensureBar(bc.TotalBatches)
		if r.progress != nil {
			r.progress.Set(bc.BatchNumber + 1)
		}

	case stream.KindComplete:
		var done stream.Complete
		if err := ev.Decode(&done); err != nil {
			return err
		}
		r.noteJob(done.JobID)
		r.finishBar(true)
		r.p.Success("Job %s completed", done.JobID)
		target := r.target
		if target == 0 {
			target = len(done.Scenes)
		}
		r.p.Summary(len(done.Scenes), target)

	case stream.KindError:
		var fe stream.Error
		if err := ev.Decode(&fe); err != nil {
			return err
		}
		r.noteJob(fe.JobID)
		r.finishBar(false)
		r.p.Error("%s: %s", fe.Type, fe.Message)
		r.p.Indent("%d/%d batches completed, %d scenes kept", fe.CompletedBatches, fe.TotalBatches, fe.ScenesCompleted)
		if fe.Retryable {
			r.p.Info("Resume with: sc resume %s", fe.JobID)
		}

	case stream.KindCancelled:
		var c stream.Cancelled
		if err := ev.Decode(&c); err != nil {
			return err
		}
		r.noteJob(c.JobID)
		r.finishBar(false)
		r.p.Warn("Job %s cancelled after %d/%d batches", c.JobID, c.CompletedBatches, c.TotalBatches)
		if c.Resumable {
			r.p.Info("Resume with: sc resume %s", c.JobID)
		}
	}
	return nil
}

// Close releases the progress bar when the stream ended without a terminal frame.
func (r *FrameRenderer) Close() {
	r.finishBar(false)
}

func (r *FrameRenderer) noteJob(id string) {
	if r.jobID == "" && id != "" {
		r.jobID = id
	}
}

func (r *FrameRenderer) ensureBar(total int) {
	if r.progress != nil || total <= 0 {
		return
	}
	r.progress = NewProgress(total, fmt.Sprintf("%d batches", total), r.opts...)
}

func (r *FrameRenderer) finishBar(complete bool) {
	if r.progress == nil {
		return
	}
	if complete {
		r.progress.Finish()
	} else {
		r.progress.Clear()
	}
	r.progress = nil
}
