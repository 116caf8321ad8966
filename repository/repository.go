package repository

import (
	"context"

	"fileconvert/models"
)

// Archive persists terminal operations outside the ephemeral process
// for audit and billing. The in-memory core never reads it back.
type Archive interface {
	ArchiveOperation(ctx context.Context, op *models.Operation) error
}
