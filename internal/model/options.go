package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type Workflow string

const (
	WorkflowStandard Workflow = "standard"
	WorkflowMerged   Workflow = "merged"
	WorkflowScript   Workflow = "script"
)

type Mode string

const (
	ModeVideo Mode = "video"
	ModeText  Mode = "text"
)

const (
	DefaultBatchSize = 5
	MaxBatchSize     = 50
)

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Voice controls narration hints passed to scene generation.
type Voice struct {
	Enabled  bool   `json:"enabled"`
	Language string `json:"language,omitempty"`
	Tone     string `json:"tone,omitempty"`
}

// VideoRange restricts analysis to a sub-range of the source video, in seconds.
type VideoRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Options is what a caller submits. It is stored verbatim in the resume config so a
// resumed job replays exactly the same settings.
type Options struct {
	Workflow              Workflow    `json:"workflow"`
	Mode                  Mode        `json:"mode"`
	Source                string      `json:"source"`
	SceneCount            int         `json:"sceneCount"`
	BatchSize             int         `json:"batchSize"`
	Voice                 Voice       `json:"voice"`
	Range                 *VideoRange `json:"range,omitempty"`
	Style                 string      `json:"style,omitempty"`
	Model                 string      `json:"model,omitempty"`
	CallbackURL           string      `json:"callbackUrl,omitempty"`
	ReextractColorProfile bool        `json:"reextractColorProfile,omitempty"`
	ReextractCharacters   bool        `json:"reextractCharacters,omitempty"`
}

func (o *Options) ApplyDefaults(batchSize int) {
	if o.Workflow == "" {
		o.Workflow = WorkflowStandard
	}
	if o.Mode == "" {
		o.Mode = ModeVideo
	}
	if o.BatchSize <= 0 {
		o.BatchSize = batchSize
		if o.BatchSize <= 0 {
			o.BatchSize = DefaultBatchSize
		}
	}
	o.Source = strings.TrimSpace(o.Source)
}

// Validate reports the first problem with the options as an *InvalidOptionsError.
func (o Options) Validate(maxScenes int) error {
	switch o.Workflow {
	case WorkflowStandard, WorkflowMerged, WorkflowScript:
	default:
		return invalid("workflow", "unknown workflow %q", o.Workflow)
	}
	switch o.Mode {
	case ModeVideo, ModeText:
	default:
		return invalid("mode", "unknown mode %q", o.Mode)
	}
	if o.Workflow == WorkflowScript && o.Mode == ModeText {
		return invalid("workflow", "script workflow requires a video source")
	}
	if o.Source == "" {
		return invalid("source", "source is required")
	}
	if o.Mode == ModeVideo && !validVideoSource(o.Source) {
		return invalid("source", "source must be a video URL or an 11-character video id")
	}
	if o.SceneCount <= 0 {
		return invalid("sceneCount", "sceneCount must be positive")
	}
	if maxScenes > 0 && o.SceneCount > maxScenes {
		return invalid("sceneCount", "sceneCount must be at most %d", maxScenes)
	}
	if o.BatchSize <= 0 || o.BatchSize > MaxBatchSize {
		return invalid("batchSize", "batchSize must be between 1 and %d", MaxBatchSize)
	}
	if o.Range != nil && (o.Range.Start < 0 || o.Range.End <= o.Range.Start) {
		return invalid("range", "range end must be after start")
	}
	if o.CallbackURL != "" {
		u, err := url.Parse(o.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("callbackUrl", "callbackUrl must be an http(s) URL")
		}
	}
	return nil
}

// TotalBatches is ceil(SceneCount / BatchSize).
func (o Options) TotalBatches() int {
	if o.BatchSize <= 0 || o.SceneCount <= 0 {
		return 0
	}
	return (o.SceneCount + o.BatchSize - 1) / o.BatchSize
}

// BatchCount returns how many scenes batch index i should produce.
func (o Options) BatchCount(i int) int {
	remaining := o.SceneCount - i*o.BatchSize
	if remaining <= 0 {
		return 0
	}
	if remaining < o.BatchSize {
		return remaining
	}
	return o.BatchSize
}

// VideoURI turns a bare video id into a watch URL; URLs pass through unchanged.
func (o Options) VideoURI() string {
	if youtubeIDPattern.MatchString(o.Source) {
		return "https://www.youtube.com/watch?v=" + o.Source
	}
	return o.Source
}

func validVideoSource(s string) bool {
	if youtubeIDPattern.MatchString(s) {
		return true
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "gs":
		return true
	}
	return false
}

// InvalidOptionsError describes a rejected submission.
type InvalidOptionsError struct {
	Field  string
	Reason string
}

func (e *InvalidOptionsError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidInput marks the error as caller-caused for classification.
func (e *InvalidOptionsError) InvalidInput() bool { return true }

func invalid(field, format string, args ...any) error {
	return &InvalidOptionsError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
