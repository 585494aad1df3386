// Package stream defines the progress frames a generation job emits and the sinks and
// codecs that carry them to callers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

type Kind string

const (
	KindProgress      Kind = "progress"
	KindCharacter     Kind = "character"
	KindColorProfile  Kind = "colorProfile"
	KindScript        Kind = "script"
	KindLog           Kind = "log"
	KindLogUpdate     Kind = "logUpdate"
	KindBatchComplete Kind = "batchComplete"
	KindComplete      Kind = "complete"
	KindError         Kind = "error"
	KindCancelled     Kind = "cancelled"
	KindKeepalive     Kind = "keepalive"
)

// Terminal reports whether no frame follows k for the same run.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError || k == KindCancelled
}

// Event is one frame. Seq increases by one per frame within a run, starting at 1.
type Event struct {
	Seq  int64           `json:"seq,omitempty"`
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(kind Kind, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s frame: %w", kind, err)
	}
	return Event{Kind: kind, Data: data}, nil
}

func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Sink receives frames in emission order. Implementations must be safe for use by one
// producer goroutine; SSEWriter and Recorder also tolerate a concurrent keepalive.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every frame.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

type Progress struct {
	JobID           string `json:"jobId"`
	Phase           string `json:"phase"`
	Message         string `json:"message"`
	Batch           *int   `json:"batch,omitempty"`
	TotalBatches    int    `json:"totalBatches"`
	ScenesCompleted int    `json:"scenesCompleted"`
	TargetScenes    int    `json:"targetScenes"`
}

type Character struct {
	Name      string          `json:"name"`
	Character model.Character `json:"character"`
}

type Script struct {
	Script string `json:"script"`
}

// BatchComplete carries the scenes of one batch and the characters it introduced.
type BatchComplete struct {
	BatchNumber  int           `json:"batchNumber"`
	TotalBatches int           `json:"totalBatches"`
	Scenes       []model.Scene `json:"scenes"`
	Characters   []Character   `json:"characters"`
	CacheHit     bool          `json:"cacheHit,omitempty"`
}

type Complete struct {
	JobID        string              `json:"jobId"`
	Scenes       []model.Scene       `json:"scenes"`
	Characters   model.Registry      `json:"characters"`
	ColorProfile *model.ColorProfile `json:"colorProfile,omitempty"`
	Background   string              `json:"background,omitempty"`
	Script       string              `json:"script,omitempty"`
}

type Error struct {
	JobID            string `json:"jobId"`
	Type             string `json:"type"`
	Message          string `json:"message"`
	Retryable        bool   `json:"retryable"`
	FailedBatch      *int   `json:"failedBatch,omitempty"`
	CompletedBatches int    `json:"completedBatches"`
	TotalBatches     int    `json:"totalBatches"`
	ScenesCompleted  int    `json:"scenesCompleted"`
	Debug            string `json:"debug,omitempty"`
}

type Cancelled struct {
	JobID            string `json:"jobId"`
	CompletedBatches int    `json:"completedBatches"`
	TotalBatches     int    `json:"totalBatches"`
	ScenesCompleted  int    `json:"scenesCompleted"`
	Resumable        bool   `json:"resumable"`
}
