package model

import "time"

type LogStatus string

const (
	LogPending   LogStatus = "pending"
	LogCompleted LogStatus = "completed"
	LogError     LogStatus = "error"
)

type TokenCounts struct {
	Prompt int `json:"prompt"`
	Output int `json:"output"`
}

// LogEntry records one provider call of a job.
type LogEntry struct {
	ID          string       `json:"id"`
	Phase       string       `json:"phase"`
	BatchNumber *int         `json:"batchNumber,omitempty"`
	Status      LogStatus    `json:"status"`
	Request     string       `json:"request"`
	Response    string       `json:"response,omitempty"`
	StartedAt   time.Time    `json:"startedAt"`
	DurationMS  int64        `json:"durationMs"`
	Attempts    int          `json:"attempts,omitempty"`
	Tokens      *TokenCounts `json:"tokens,omitempty"`
	Error       string       `json:"error,omitempty"`
}
