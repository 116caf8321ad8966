package repository

import (
	"context"

	"fileconvert/database"
	"fileconvert/models"
)

type PostgresArchive struct {
	db *database.DB
}

func NewPostgresArchive(db *database.DB) Archive {
	return &PostgresArchive{db: db}
}

func (r *PostgresArchive) ArchiveOperation(ctx context.Context, op *models.Operation) error {
	query := `
		INSERT INTO operations_archive
			(id, trace_id, source_file_id, status, progress_percent, result_file_id,
			 error_code, error_message, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress_percent = EXCLUDED.progress_percent,
			result_file_id = EXCLUDED.result_file_id,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`

	var errCode, errMessage string
	if op.Error != nil {
		errCode = op.Error.Code
		errMessage = op.Error.Message
	}

	_, err := r.db.Pool.Exec(ctx, query,
		op.ID,
		op.TraceID,
		op.SourceFileID,
		string(op.Status),
		op.ProgressPercent,
		op.ResultFileID,
		errCode,
		errMessage,
		op.CreatedAt,
		op.UpdatedAt,
		op.CompletedAt,
	)
	return err
}
