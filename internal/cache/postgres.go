package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS scene_jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	snapshot   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS scene_jobs_created_at_idx ON scene_jobs (created_at DESC);
CREATE INDEX IF NOT EXISTS scene_jobs_expires_at_idx ON scene_jobs (expires_at);
CREATE TABLE IF NOT EXISTS scene_job_phases (
	job_id     TEXT NOT NULL,
	key        TEXT NOT NULL,
	data       BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_id, key)
);`

// PostgresStore keeps job snapshots as JSONB rows. Expiry is evaluated against the
// store clock, not the database clock.
type PostgresStore struct {
	db  DB
	now Clock
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) WithClock(now Clock) *PostgresStore {
	s.now = now
	return s
}

// Migrate creates the tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate job cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO scene_jobs (id, status, created_at, expires_at, updated_at, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at,
			snapshot = EXCLUDED.snapshot`,
		job.ID, string(job.Status), job.CreatedAt, job.ExpiresAt, job.UpdatedAt, data)
	if err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Job, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT snapshot FROM scene_jobs WHERE id = $1 AND expires_at >= $2`,
		id, s.now()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]model.JobSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT snapshot FROM scene_jobs WHERE expires_at >= $1 ORDER BY created_at DESC, id DESC`,
		s.now())
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []model.JobSummary{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		out = append(out, job.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM scene_job_phases WHERE job_id = $1`, id); err != nil {
		return fmt.Errorf("delete phases %s: %w", id, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM scene_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `TRUNCATE scene_job_phases, scene_jobs`); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutPhase(ctx context.Context, jobID, key string, data []byte) error {
	fallback := s.now().Add(model.DefaultJobTTL)
	_, err := s.db.Exec(ctx, `
		INSERT INTO scene_job_phases (job_id, key, data, expires_at)
		VALUES ($1, $2, $3, COALESCE((SELECT expires_at FROM scene_jobs WHERE id = $1), $4))
		ON CONFLICT (job_id, key) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
		jobID, key, data, fallback)
	if err != nil {
		return fmt.Errorf("put phase %s/%s: %w", jobID, key, err)
	}
	return nil
}

func (s *PostgresStore) GetPhase(ctx context.Context, jobID, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM scene_job_phases WHERE job_id = $1 AND key = $2 AND expires_at >= $3`,
		jobID, key, s.now()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get phase %s/%s: %w", jobID, key, err)
	}
	return data, nil
}

func (s *PostgresStore) DeletePhases(ctx context.Context, jobID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM scene_job_phases WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete phases %s: %w", jobID, err)
	}
	return nil
}

func (s *PostgresStore) Evict(ctx context.Context) (int, error) {
	now := s.now()
	tag, err := s.db.Exec(ctx, `DELETE FROM scene_jobs WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("evict jobs: %w", err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM scene_job_phases WHERE expires_at < $1`, now); err != nil {
		return int(tag.RowsAffected()), fmt.Errorf("evict phases: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
