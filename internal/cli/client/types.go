package client

import "github.com/abdul-hamid-achik/scene.cheap/internal/model"

type ErrorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable,omitempty"`
	} `json:"error"`
}

type QueuedResponse struct {
	JobID     string       `json:"jobId"`
	Status    model.Status `json:"status"`
	EventsURL string       `json:"eventsUrl"`
}

type ListResponse struct {
	Jobs []model.JobSummary `json:"jobs"`
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}
