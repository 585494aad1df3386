// Package archive writes completed jobs to object storage as JSON documents.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/storage"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

const (
	keyPrefix         = "results/"
	contentType       = "application/json"
	DefaultLinkExpiry = 15 * time.Minute
)

var ErrNotArchived = errors.New("archive: result not archived")

func Key(jobID string) string {
	return keyPrefix + jobID + ".json"
}

type Archiver struct {
	store  storage.Storage
	expiry time.Duration
}

func New(store storage.Storage, linkExpiry time.Duration) *Archiver {
	if linkExpiry <= 0 {
		linkExpiry = DefaultLinkExpiry
	}
	return &Archiver{store: store, expiry: linkExpiry}
}

// Hook archives jobs whose run ended with a complete frame. Its signature matches
// generation.Hook.
func (a *Archiver) Hook(ctx context.Context, job *model.Job, terminal stream.Event) {
	if terminal.Kind != stream.KindComplete {
		return
	}
	log := logger.FromContext(ctx).With("job_id", job.ID)
	if err := a.Put(ctx, job); err != nil {
		log.Error("archive upload failed", "error", err)
		return
	}
	log.Info("result archived", "key", Key(job.ID), "scenes", len(job.Scenes))
}

func (a *Archiver) Put(ctx context.Context, job *model.Job) error {
	if job.Status != model.StatusCompleted {
		return fmt.Errorf("archive %s: status %s is not completed", job.ID, job.Status)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return a.store.Upload(ctx, Key(job.ID), bytes.NewReader(data), contentType, int64(len(data)))
}

func (a *Archiver) Get(ctx context.Context, jobID string) (*model.Job, error) {
	rc, err := a.store.Download(ctx, Key(jobID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotArchived
		}
		return nil, err
	}
	defer rc.Close()

	var job model.Job
	if err := json.NewDecoder(rc).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode archived job %s: %w", jobID, err)
	}
	return &job, nil
}

// URL returns a presigned download link for an archived result.
func (a *Archiver) URL(ctx context.Context, jobID string) (string, error) {
	ok, err := a.store.Exists(ctx, Key(jobID))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotArchived
	}
	return a.store.GetPresignedURL(ctx, Key(jobID), int(a.expiry/time.Second))
}

func (a *Archiver) Delete(ctx context.Context, jobID string) error {
	return a.store.Delete(ctx, Key(jobID))
}
