// Package worker runs queued generation jobs on the job-queue worker pool.
package worker

import (
	"fmt"

	"github.com/abdul-hamid-achik/scene.cheap/internal/tracing"
)

const (
	JobTypeGenerate = "scenes:generate"
	JobTypeEvict    = "cache:evict"
)

// GeneratePayload names a stored job to run. Resume selects the resume entry point.
type GeneratePayload struct {
	JobID  string               `json:"job_id"`
	Resume bool                 `json:"resume,omitempty"`
	Trace  tracing.TraceCarrier `json:"trace,omitempty"`
}

func (p GeneratePayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	return nil
}
