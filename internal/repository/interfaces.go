// Package repository defines data access for run history. All database
// access goes through these interfaces.
package repository

import (
	"context"

	"github.com/jmylchreest/jobctl/internal/models"
)

// RunRepository defines operations for run history persistence.
type RunRepository interface {
	// Create records a new run. The run's ID is assigned on create.
	Create(ctx context.Context, run *models.Run) error
	// Complete stores the final run counts and status together with its
	// outcomes in one transaction.
	Complete(ctx context.Context, run *models.Run, outcomes []models.OutcomeRecord) error
	// GetByID retrieves a run with its outcomes ordered by item index.
	// It returns nil when no run has that ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Run, error)
	// List returns runs newest first, without outcomes, and the total count.
	List(ctx context.Context, offset, limit int) ([]*models.Run, int64, error)
	// SucceededInputs returns the subset of inputs that already have a
	// succeeded outcome for workflowID.
	SucceededInputs(ctx context.Context, workflowID string, inputs []string) (map[string]bool, error)
}
