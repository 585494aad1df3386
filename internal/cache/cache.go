// Package cache persists job snapshots and per-phase intermediate results. Records are
// whole-value replacements keyed by job id; expired records read as absent even while
// they are still physically stored.
package cache

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

var ErrNotFound = errors.New("cache: not found")

// DefaultGrace is how long an expired record may physically outlive its logical expiry.
const DefaultGrace = time.Hour

type Store interface {
	Put(ctx context.Context, job *model.Job) error
	// Get returns ErrNotFound when the job is absent or expired.
	Get(ctx context.Context, id string) (*model.Job, error)
	// List returns unexpired jobs, newest first.
	List(ctx context.Context) ([]model.JobSummary, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error

	PutPhase(ctx context.Context, jobID, key string, data []byte) error
	GetPhase(ctx context.Context, jobID, key string) ([]byte, error)
	DeletePhases(ctx context.Context, jobID string) error

	// Evict physically removes expired records and returns how many jobs were removed.
	Evict(ctx context.Context) (int, error)
}

// Clock returns the current time. Backends compare it against ExpiresAt.
type Clock func() time.Time

// PhaseKey names the phase entry of scene batch i.
func PhaseKey(batch int) string {
	return model.PhaseScenes + ":" + strconv.Itoa(batch)
}

func sortNewestFirst(s []model.JobSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].ID > s[j].ID
		}
		return s[i].CreatedAt.After(s[j].CreatedAt)
	})
}
