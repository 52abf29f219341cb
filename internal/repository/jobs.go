package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/set-night/bootimgbot/internal/domain"
)

// DBTX is the part of pgxpool.Pool the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// JobRepository stores the history of finished download jobs.
type JobRepository struct {
	db DBTX
}

func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

const insertJob = `
INSERT INTO download_jobs (id, chat_id, url, file_name, size_bytes, format, status, error, link, created_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (r *JobRepository) Record(ctx context.Context, job *domain.DownloadJob) error {
	var finished *time.Time
	if !job.FinishedAt.IsZero() {
		finished = &job.FinishedAt
	}
	_, err := r.db.Exec(ctx, insertJob,
		job.ID,
		job.ChatID,
		job.URL,
		job.FileName,
		job.Size,
		string(job.Format),
		string(job.Status),
		job.Error,
		job.Link,
		job.CreatedAt,
		finished,
	)
	if err != nil {
		return fmt.Errorf("insert download job: %w", err)
	}
	return nil
}

// StatusCount is the number of jobs that ended with one status.
type StatusCount struct {
	Status domain.JobStatus
	Count  int64
}

const countByStatus = `
SELECT status, COUNT(*) FROM download_jobs
WHERE created_at >= $1
GROUP BY status
ORDER BY COUNT(*) DESC`

// CountByStatus groups jobs created since the given time by status.
func (r *JobRepository) CountByStatus(ctx context.Context, since time.Time) ([]StatusCount, error) {
	rows, err := r.db.Query(ctx, countByStatus, since)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StatusCount, error) {
		var c StatusCount
		var status string
		if err := row.Scan(&status, &c.Count); err != nil {
			return c, err
		}
		c.Status = domain.JobStatus(status)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan job counts: %w", err)
	}
	return counts, nil
}

const totalTransferred = `
SELECT COALESCE(SUM(size_bytes), 0) FROM download_jobs
WHERE created_at >= $1 AND status IN ('delivered', 'uploaded')`

// TotalTransferred sums archive sizes of successful jobs since the given time.
func (r *JobRepository) TotalTransferred(ctx context.Context, since time.Time) (int64, error) {
	rows, err := r.db.Query(ctx, totalTransferred, since)
	if err != nil {
		return 0, fmt.Errorf("sum job sizes: %w", err)
	}
	total, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("scan job sizes: %w", err)
	}
	return total, nil
}
