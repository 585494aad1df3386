package webhook

import (
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
	EventJobCancelled = "job.cancelled"
)

// Delivery is the body POSTed to a job's callback URL.
type Delivery struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	JobID     string       `json:"jobId"`
	Status    model.Status `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	Frame     stream.Event `json:"frame"`
}

// EventType maps a terminal frame kind to a delivery type.
func EventType(kind stream.Kind) string {
	switch kind {
	case stream.KindComplete:
		return EventJobCompleted
	case stream.KindCancelled:
		return EventJobCancelled
	default:
		return EventJobFailed
	}
}
