package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dental-inference-service/internal/core/domain"
	output "dental-inference-service/internal/core/ports/output"
)

type analysisRepo struct {
	pool *pgxpool.Pool
}

// NewAnalysisRepository creates a new AnalysisRepository
func NewAnalysisRepository(pool *pgxpool.Pool) output.AnalysisRepository {
	return &analysisRepo{pool: pool}
}

// EnsureSchema creates the history table when it does not exist yet. The
// service owns this single table, so there is no separate migration step.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS analysis_record (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			mode TEXT NOT NULL,
			patient_name TEXT NOT NULL DEFAULT '',
			image_name TEXT NOT NULL DEFAULT '',
			s3_bucket TEXT NOT NULL DEFAULT '',
			s3_prefix TEXT NOT NULL DEFAULT '',
			remote_job_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			num_findings INT NOT NULL DEFAULT 0,
			result JSONB,
			error TEXT NOT NULL DEFAULT ''
		)
	`
	if _, err := pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure analysis_record schema: %w", err)
	}
	return nil
}

func (r *analysisRepo) Save(ctx context.Context, record *domain.AnalysisRecord) error {
	query := `
		INSERT INTO analysis_record
			(id, created_at, completed_at, mode, patient_name, image_name,
			 s3_bucket, s3_prefix, remote_job_id, status, num_findings,
			 result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var result any
	if len(record.Result) > 0 {
		result = []byte(record.Result)
	}

	_, err := r.pool.Exec(ctx, query,
		record.ID, record.CreatedAt, record.CompletedAt,
		string(record.Mode), record.PatientName, record.ImageName,
		record.S3Bucket, record.S3Prefix, record.RemoteJobID,
		string(record.Status), record.NumFindings,
		result, record.Error,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAnalysisConflict
		}
		return fmt.Errorf("save analysis record: %w", err)
	}
	return nil
}

func (r *analysisRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.AnalysisRecord, error) {
	query := `
		SELECT id, created_at, completed_at, mode, patient_name, image_name,
			   s3_bucket, s3_prefix, remote_job_id, status, num_findings,
			   result, error
		FROM analysis_record
		WHERE id = $1
	`

	record, err := r.scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("get analysis record by id: %w", err)
	}
	return record, nil
}

func (r *analysisRepo) List(ctx context.Context, filter output.AnalysisListFilter) ([]*domain.AnalysisRecord, int, error) {
	conditions := []string{}
	args := []interface{}{}
	argPos := 1

	if filter.Mode != "" {
		conditions = append(conditions, fmt.Sprintf("mode = $%d", argPos))
		args = append(args, filter.Mode)
		argPos++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}

	whereClause := "1=1"
	if len(conditions) > 0 {
		whereClause = strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM analysis_record WHERE %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analysis records: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, created_at, completed_at, mode, patient_name, image_name,
			   s3_bucket, s3_prefix, remote_job_id, status, num_findings,
			   result, error
		FROM analysis_record
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list analysis records: %w", err)
	}
	defer rows.Close()

	records := []*domain.AnalysisRecord{}
	for rows.Next() {
		record, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan analysis record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate analysis records: %w", err)
	}

	return records, total, nil
}

func (r *analysisRepo) scanRecord(row pgx.Row) (*domain.AnalysisRecord, error) {
	var record domain.AnalysisRecord
	var mode, status string
	var result []byte

	err := row.Scan(
		&record.ID, &record.CreatedAt, &record.CompletedAt,
		&mode, &record.PatientName, &record.ImageName,
		&record.S3Bucket, &record.S3Prefix, &record.RemoteJobID,
		&status, &record.NumFindings,
		&result, &record.Error,
	)
	if err != nil {
		return nil, err
	}

	record.Mode = domain.AnalysisMode(mode)
	record.Status = domain.AnalysisStatus(status)
	record.Result = result
	return &record, nil
}
