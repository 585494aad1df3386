package model

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
)

// DefaultJobTTL bounds how long a job snapshot stays readable.
const DefaultJobTTL = 7 * 24 * time.Hour

var ErrJobCompleted = errors.New("model: job is completed and read-only")

// ErrorRecord is the terminal error attached to partial and failed jobs.
type ErrorRecord struct {
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	Retryable   bool      `json:"retryable"`
	FailedBatch *int      `json:"failedBatch,omitempty"`
	At          time.Time `json:"at"`
}

// Job is the lifetime record of one generation request.
type Job struct {
	ID           string          `json:"id"`
	Options      Options         `json:"options"`
	Status       Status          `json:"status"`
	Scenes       []Scene         `json:"scenes"`
	BatchScenes  []int           `json:"batchScenes,omitempty"`
	Characters   Registry        `json:"characters"`
	ColorProfile *ColorProfile   `json:"colorProfile,omitempty"`
	Background   string          `json:"background,omitempty"`
	Script       string          `json:"script,omitempty"`
	Logs         []LogEntry      `json:"logs"`
	CreatedAt    time.Time       `json:"createdAt"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Error        *ErrorRecord    `json:"error,omitempty"`
	Resume       json.RawMessage `json:"resume,omitempty"`
}

// JobSummary is the history-list view of a job.
type JobSummary struct {
	ID             string    `json:"id"`
	Status         Status    `json:"status"`
	Workflow       Workflow  `json:"workflow"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	SceneCount     int       `json:"sceneCount"`
	TargetScenes   int       `json:"targetScenes"`
	CharacterCount int       `json:"characterCount"`
	Error          string    `json:"error,omitempty"`
}

func NewJob(id string, opts Options, now time.Time, ttl time.Duration) *Job {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &Job{
		ID:         id,
		Options:    opts,
		Status:     StatusInProgress,
		Scenes:     []Scene{},
		Characters: Registry{},
		Logs:       []LogEntry{},
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		UpdatedAt:  now,
	}
}

func (j *Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && now.After(j.ExpiresAt)
}

func (j *Job) Summary() JobSummary {
	s := JobSummary{
		ID:             j.ID,
		Status:         j.Status,
		Workflow:       j.Options.Workflow,
		CreatedAt:      j.CreatedAt,
		ExpiresAt:      j.ExpiresAt,
		SceneCount:     len(j.Scenes),
		TargetScenes:   j.Options.SceneCount,
		CharacterCount: len(j.Characters),
	}
	if j.Error != nil {
		s.Error = j.Error.Type + ": " + j.Error.Message
	}
	return s
}

// NextSequence is the sequence number the next appended scene receives.
func (j *Job) NextSequence() int {
	return len(j.Scenes) + 1
}

// AppendScenes renumbers scenes to continue the running sequence and appends them,
// never exceeding the target scene count. It returns the scenes actually appended.
func (j *Job) AppendScenes(scenes []Scene, now time.Time) ([]Scene, error) {
	if j.Status == StatusCompleted {
		return nil, ErrJobCompleted
	}
	room := j.Options.SceneCount - len(j.Scenes)
	if room < 0 {
		room = 0
	}
	if len(scenes) > room {
		scenes = scenes[:room]
	}
	added := Renumber(scenes, j.NextSequence())
	j.Scenes = append(j.Scenes, added...)
	j.UpdatedAt = now
	return added, nil
}

// CompleteBatch appends the scenes of one finished batch and records how many of them
// were kept, so a short batch still counts as one batch.
func (j *Job) CompleteBatch(scenes []Scene, now time.Time) ([]Scene, error) {
	added, err := j.AppendScenes(scenes, now)
	if err != nil {
		return nil, err
	}
	j.BatchScenes = append(j.BatchScenes, len(added))
	return added, nil
}

// CompletedBatches is the number of batches recorded by CompleteBatch.
func (j *Job) CompletedBatches() int {
	return len(j.BatchScenes)
}

// TruncateBatches keeps the first k completed batches and exactly their scenes.
func (j *Job) TruncateBatches(k int) {
	if k < 0 {
		k = 0
	}
	if k < len(j.BatchScenes) {
		j.BatchScenes = j.BatchScenes[:k]
	}
	n := 0
	for _, c := range j.BatchScenes {
		n += c
	}
	j.TruncateScenes(n)
}

// TruncateScenes keeps only the first n scenes.
func (j *Job) TruncateScenes(n int) {
	if n < len(j.Scenes) {
		j.Scenes = j.Scenes[:n]
	}
}

// UpsertLog replaces the entry with the same id or appends it.
func (j *Job) UpsertLog(entry LogEntry) {
	for i := range j.Logs {
		if j.Logs[i].ID == entry.ID {
			j.Logs[i] = entry
			return
		}
	}
	j.Logs = append(j.Logs, entry)
}

func (j *Job) MarkCompleted(now time.Time) error {
	if j.Status == StatusCompleted {
		return ErrJobCompleted
	}
	j.Status = StatusCompleted
	j.Error = nil
	j.Resume = nil
	j.UpdatedAt = now
	return nil
}

// MarkFailed records rec and sets partial when scenes exist, failed otherwise.
func (j *Job) MarkFailed(rec ErrorRecord, now time.Time) error {
	if j.Status == StatusCompleted {
		return ErrJobCompleted
	}
	if len(j.Scenes) > 0 {
		j.Status = StatusPartial
	} else {
		j.Status = StatusFailed
	}
	j.Error = &rec
	j.UpdatedAt = now
	return nil
}

// Reopen puts a partial or failed job back in progress for a resumed run.
func (j *Job) Reopen(now time.Time) error {
	if j.Status == StatusCompleted {
		return ErrJobCompleted
	}
	j.Status = StatusInProgress
	j.Error = nil
	j.UpdatedAt = now
	return nil
}

// Clone deep-copies the job through its JSON form.
func (j *Job) Clone() (*Job, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	var out Job
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
