// Package resume builds and reads the snapshot a partial, failed or cancelled job is
// restarted from.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

// Version is the current on-disk shape. Records without a version are the legacy shape.
const Version = 2

var ErrNotResumable = errors.New("resume: job is not resumable")

type Config struct {
	Version               int                 `json:"version"`
	CompletedBatches      int                 `json:"completedBatches"`
	TotalBatches          int                 `json:"totalBatches"`
	BatchScenes           []int               `json:"batchScenes,omitempty"`
	Options               model.Options       `json:"options"`
	Scenes                []model.Scene       `json:"scenes"`
	Characters            model.Registry      `json:"characters"`
	ColorProfile          *model.ColorProfile `json:"colorProfile,omitempty"`
	Background            string              `json:"background,omitempty"`
	Script                string              `json:"script,omitempty"`
	ReextractColorProfile bool                `json:"reextractColorProfile"`
	CreatedAt             time.Time           `json:"createdAt"`
}

// Build snapshots the job. Only batches recorded as finished count as completed,
// whatever number of scenes each of them produced.
func Build(job *model.Job) *Config {
	return &Config{
		Version:               Version,
		CompletedBatches:      job.CompletedBatches(),
		TotalBatches:          job.Options.TotalBatches(),
		BatchScenes:           append([]int(nil), job.BatchScenes...),
		Options:               job.Options,
		Scenes:                append([]model.Scene(nil), job.Scenes...),
		Characters:            job.Characters.Clone(),
		ColorProfile:          job.ColorProfile,
		Background:            job.Background,
		Script:                job.Script,
		ReextractColorProfile: job.Options.ReextractColorProfile,
		CreatedAt:             job.CreatedAt,
	}
}

func (c *Config) Encode() (json.RawMessage, error) {
	return json.Marshal(c)
}

// batchCounts returns the scene count of each completed batch. Records without counts
// assume full batches up to the stored scenes, so a trailing short batch keeps what it
// has.
func (c *Config) batchCounts() []int {
	completed := c.CompletedBatches
	if completed < 0 {
		completed = 0
	}
	if len(c.BatchScenes) >= completed {
		return c.BatchScenes[:completed]
	}
	counts := make([]int, 0, completed)
	left := len(c.Scenes)
	for i := 0; i < completed; i++ {
		n := c.Options.BatchCount(i)
		if n > left {
			n = left
		}
		if n < 0 {
			n = 0
		}
		counts = append(counts, n)
		left -= n
	}
	return counts
}

// ScenesKept is how many of the stored scenes a resumed run starts from.
func (c *Config) ScenesKept() int {
	n := 0
	for _, count := range c.batchCounts() {
		n += count
	}
	if n > len(c.Scenes) {
		n = len(c.Scenes)
	}
	return n
}

// Restore resets job to the snapshot: stored options, scenes of the completed batches,
// registry and analysis results. The job is reopened; id and timestamps are kept.
func (c *Config) Restore(job *model.Job, now time.Time) error {
	job.Options = c.Options
	job.Options.ReextractColorProfile = c.ReextractColorProfile
	job.Scenes = model.Renumber(c.Scenes[:c.ScenesKept()], 1)
	job.BatchScenes = append([]int(nil), c.batchCounts()...)
	job.Characters = c.Characters.Clone()
	job.ColorProfile = c.ColorProfile
	job.Background = c.Background
	job.Script = c.Script
	return job.Reopen(now)
}

// Overrides changes what a resumed run extracts again. Nil fields keep the choice
// stored with the job.
type Overrides struct {
	ReextractColorProfile *bool `json:"reextractColorProfile,omitempty"`
	ReextractCharacters   *bool `json:"reextractCharacters,omitempty"`
}

func (o Overrides) Empty() bool {
	return o.ReextractColorProfile == nil && o.ReextractCharacters == nil
}

// Apply sets the re-extraction toggles the next Restore hands to the run.
func (c *Config) Apply(o Overrides) {
	if o.ReextractColorProfile != nil {
		c.ReextractColorProfile = *o.ReextractColorProfile
		c.Options.ReextractColorProfile = *o.ReextractColorProfile
	}
	if o.ReextractCharacters != nil {
		c.Options.ReextractCharacters = *o.ReextractCharacters
	}
}

// legacy is the flat shape written before options were stored verbatim.
type legacy struct {
	BatchesCompleted   int                 `json:"batchesCompleted"`
	SceneCount         int                 `json:"sceneCount"`
	BatchSize          int                 `json:"batchSize"`
	Workflow           model.Workflow      `json:"workflow"`
	Mode               model.Mode          `json:"mode"`
	Source             string              `json:"source"`
	VideoID            string              `json:"videoId"`
	ExistingScenes     []model.Scene       `json:"existingScenes"`
	ExistingCharacters model.Registry      `json:"existingCharacters"`
	VoiceEnabled       bool                `json:"voiceEnabled"`
	VoiceLanguage      string              `json:"voiceLanguage"`
	ColorProfile       *model.ColorProfile `json:"colorProfile"`
	Background         string              `json:"background"`
}

// Parse reads either shape and returns the current one. The input is not modified, so
// legacy records stay as they are until they expire.
func Parse(data []byte) (*Config, error) {
	var head struct {
		Version          int             `json:"version"`
		BatchesCompleted json.RawMessage `json:"batchesCompleted"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("resume: decode: %w", err)
	}

	if head.Version == 0 && head.BatchesCompleted != nil {
		var l legacy
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("resume: decode legacy: %w", err)
		}
		return fromLegacy(l), nil
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("resume: decode: %w", err)
	}
	if c.Version > Version {
		return nil, fmt.Errorf("resume: unsupported version %d", c.Version)
	}
	c.Version = Version
	if c.Characters == nil {
		c.Characters = model.Registry{}
	}
	if c.TotalBatches == 0 {
		c.TotalBatches = c.Options.TotalBatches()
	}
	return &c, nil
}

func fromLegacy(l legacy) *Config {
	opts := model.Options{
		Workflow:   l.Workflow,
		Mode:       l.Mode,
		Source:     l.Source,
		SceneCount: l.SceneCount,
		BatchSize:  l.BatchSize,
		Voice:      model.Voice{Enabled: l.VoiceEnabled, Language: l.VoiceLanguage},
	}
	if opts.Source == "" {
		opts.Source = l.VideoID
	}
	opts.ApplyDefaults(model.DefaultBatchSize)
	if opts.SceneCount < len(l.ExistingScenes) {
		opts.SceneCount = len(l.ExistingScenes)
	}

	chars := l.ExistingCharacters
	if chars == nil {
		chars = model.Registry{}
	}
	scenes := l.ExistingScenes
	if scenes == nil {
		scenes = []model.Scene{}
	}
	return &Config{
		Version:          Version,
		CompletedBatches: l.BatchesCompleted,
		TotalBatches:     opts.TotalBatches(),
		Options:          opts,
		Scenes:           model.Renumber(scenes, 1),
		Characters:       chars,
		ColorProfile:     l.ColorProfile,
		Background:       l.Background,
	}
}

// ForJob parses the config stored on job.
func ForJob(job *model.Job) (*Config, error) {
	if len(job.Resume) == 0 {
		return nil, fmt.Errorf("%w: no resume config stored", ErrNotResumable)
	}
	return Parse(job.Resume)
}

// Validate checks that job may be resumed from cfg at now.
func Validate(cfg *Config, job *model.Job, now time.Time) error {
	if job == nil {
		return fmt.Errorf("%w: job not found", ErrNotResumable)
	}
	if job.Status != model.StatusPartial && job.Status != model.StatusFailed {
		return fmt.Errorf("%w: job is %s", ErrNotResumable, job.Status)
	}
	if cfg == nil {
		return fmt.Errorf("%w: no resume config stored", ErrNotResumable)
	}
	if job.Expired(now) {
		return fmt.Errorf("%w: job expired at %s", ErrNotResumable, job.ExpiresAt.Format(time.RFC3339))
	}
	if cfg.CompletedBatches < 0 || cfg.CompletedBatches > cfg.TotalBatches {
		return fmt.Errorf("%w: %d of %d batches completed", ErrNotResumable, cfg.CompletedBatches, cfg.TotalBatches)
	}
	return nil
}
