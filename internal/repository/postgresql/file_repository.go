package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pdf-markdown-service/internal/entity"
)

var ErrNotFound = errors.New("not found")

const fileColumns = `id, name, original_filename, status, created_at, started_at, completed_at`

type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

func (r *FileRepository) PutFile(ctx context.Context, f *entity.FileRecord) error {
	const q = `
INSERT INTO files (id, name, original_filename, status, created_at)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, q, f.ID, f.Name, f.OriginalFilename, string(f.Status), f.CreatedAt)
	return err
}

func (r *FileRepository) GetFile(ctx context.Context, id string) (*entity.FileRecord, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE id = $1;`

	var (
		f          entity.FileRecord
		statusText string
	)
	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&f.ID,
		&f.Name,
		&f.OriginalFilename,
		&statusText,
		&f.CreatedAt,
		&f.StartedAt, // NULL => nil
		&f.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	f.Status = entity.FileStatus(statusText)
	return &f, nil
}

// MarkProcessing records the start of a conversion attempt.
func (r *FileRepository) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	const q = `UPDATE files SET status='processing', started_at=$2 WHERE id=$1;`

	tag, err := r.pool.Exec(ctx, q, id, startedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFinished writes the terminal status of a conversion attempt.
func (r *FileRepository) MarkFinished(ctx context.Context, id string, status entity.FileStatus, completedAt time.Time) error {
	const q = `UPDATE files SET status=$2, completed_at=$3 WHERE id=$1;`

	tag, err := r.pool.Exec(ctx, q, id, string(status), completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PutJob appends the outcome row of one finished attempt. Rows are never
// updated or deleted; history stays for audit.
func (r *FileRepository) PutJob(ctx context.Context, j *entity.ConversionJob) error {
	const q = `
INSERT INTO conversion_jobs (id, file_id, status, result, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, q, j.ID, j.FileID, string(j.Status), j.Result, j.ErrorMessage, j.CreatedAt)
	return err
}

// LatestCompletedJob returns the authoritative result for a file: the most
// recently created completed attempt.
func (r *FileRepository) LatestCompletedJob(ctx context.Context, fileID string) (*entity.ConversionJob, error) {
	const q = `
SELECT id, file_id, status, result, error_message, created_at
FROM conversion_jobs
WHERE file_id = $1 AND status = 'completed'
ORDER BY created_at DESC
LIMIT 1;
`

	var (
		j          entity.ConversionJob
		statusText string
		result     *string
	)
	if err := r.pool.QueryRow(ctx, q, fileID).Scan(
		&j.ID,
		&j.FileID,
		&statusText,
		&result,
		&j.ErrorMessage,
		&j.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	j.Status = entity.JobStatus(statusText)
	if result != nil {
		j.Result = *result
	}
	return &j, nil
}
