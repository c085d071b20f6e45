package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertJobSQL = `
INSERT INTO sync_jobs (store_id, priority, retry_count, next_run_at, last_run_at, status, last_error, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (store_id) DO UPDATE
SET priority    = EXCLUDED.priority,
    retry_count = EXCLUDED.retry_count,
    next_run_at = EXCLUDED.next_run_at,
    last_run_at = EXCLUDED.last_run_at,
    status      = EXCLUDED.status,
    last_error  = EXCLUDED.last_error,
    updated_at  = EXCLUDED.updated_at
`

const updateJobSQL = `
UPDATE sync_jobs
SET priority    = $2,
    retry_count = $3,
    next_run_at = $4,
    last_run_at = $5,
    status      = $6,
    last_error  = $7,
    updated_at  = $8
WHERE store_id = $1
`

const getJobSQL = `
SELECT store_id, priority, retry_count, next_run_at, last_run_at, status, last_error, updated_at
FROM sync_jobs
WHERE store_id = $1
`

const listJobsSQL = `
SELECT store_id, priority, retry_count, next_run_at, last_run_at, status, last_error, updated_at
FROM sync_jobs
ORDER BY store_id
`

const dueJobsSQL = `
SELECT store_id, priority, retry_count, next_run_at, last_run_at, status, last_error, updated_at
FROM sync_jobs
WHERE status IN ('pending', 'completed', 'failed') AND next_run_at <= $1
ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, next_run_at, store_id
`

const deleteJobSQL = `DELETE FROM sync_jobs WHERE store_id = $1`

// PostgresStore implements Store on a sync_jobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a job store over an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Upsert implements Store.
func (s *PostgresStore) Upsert(ctx context.Context, job *SyncJob) error {
	_, err := s.pool.Exec(ctx, upsertJobSQL,
		job.StoreID, string(job.Priority), job.RetryCount, job.NextRunAt,
		job.LastRunAt, string(job.Status), job.LastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert sync job: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, storeID string) (*SyncJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, getJobSQL, storeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync job: %w", err)
	}
	return job, nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, job *SyncJob) error {
	tag, err := s.pool.Exec(ctx, updateJobSQL,
		job.StoreID, string(job.Priority), job.RetryCount, job.NextRunAt,
		job.LastRunAt, string(job.Status), job.LastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, storeID string) error {
	if _, err := s.pool.Exec(ctx, deleteJobSQL, storeID); err != nil {
		return fmt.Errorf("failed to delete sync job: %w", err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]SyncJob, error) {
	rows, err := s.pool.Query(ctx, listJobsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Due implements Store.
func (s *PostgresStore) Due(ctx context.Context, now time.Time) ([]SyncJob, error) {
	rows, err := s.pool.Query(ctx, dueJobsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select due sync jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]SyncJob, error) {
	var out []SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync job row: %w", err)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync job rows: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (*SyncJob, error) {
	var (
		job      SyncJob
		priority string
		status   string
	)
	err := row.Scan(&job.StoreID, &priority, &job.RetryCount, &job.NextRunAt,
		&job.LastRunAt, &status, &job.LastError, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Priority = Priority(priority)
	job.Status = Status(status)
	return &job, nil
}
