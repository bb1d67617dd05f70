package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/jobctl/internal/models"
)

// inputBatchSize keeps IN clauses under SQLite's bound variable limit.
const inputBatchSize = 500

// runRepo implements RunRepository using GORM.
type runRepo struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *runRepo {
	return &runRepo{db: db}
}

// Create creates a new run.
func (r *runRepo) Create(ctx context.Context, run *models.Run) error {
	if err := r.db.WithContext(ctx).Omit("Outcomes").Create(run).Error; err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// Complete updates the run and inserts its outcomes.
func (r *runRepo) Complete(ctx context.Context, run *models.Run, outcomes []models.OutcomeRecord) error {
	if run.ID.IsZero() {
		return fmt.Errorf("completing run: %w", &models.ValidationError{Field: "id", Message: "run has not been created"})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Run{}).Where("id = ?", run.ID).Updates(map[string]any{
			"status":       run.Status,
			"completed_at": run.CompletedAt,
			"total":        run.Total,
			"succeeded":    run.Succeeded,
			"failed":       run.Failed,
			"report_path":  run.ReportPath,
		}).Error; err != nil {
			return fmt.Errorf("updating run: %w", err)
		}

		if len(outcomes) == 0 {
			return nil
		}
		for i := range outcomes {
			outcomes[i].RunID = run.ID
		}
		if err := tx.CreateInBatches(outcomes, 100).Error; err != nil {
			return fmt.Errorf("creating outcomes: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("completing run: %w", err)
	}

	run.Outcomes = outcomes
	return nil
}

// GetByID retrieves a run by ID.
func (r *runRepo) GetByID(ctx context.Context, id models.ULID) (*models.Run, error) {
	var run models.Run
	err := r.db.WithContext(ctx).
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("item_index ASC") }).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting run by ID: %w", err)
	}
	return &run, nil
}

// List retrieves runs with pagination.
func (r *runRepo) List(ctx context.Context, offset, limit int) ([]*models.Run, int64, error) {
	var runs []*models.Run
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Run{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting runs: %w", err)
	}

	// ULIDs sort by creation time.
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing runs: %w", err)
	}
	return runs, total, nil
}

// SucceededInputs looks inputs up in batches.
func (r *runRepo) SucceededInputs(ctx context.Context, workflowID string, inputs []string) (map[string]bool, error) {
	done := make(map[string]bool)
	for start := 0; start < len(inputs); start += inputBatchSize {
		end := min(start+inputBatchSize, len(inputs))

		var found []string
		err := r.db.WithContext(ctx).Model(&models.OutcomeRecord{}).
			Distinct("input_ref").
			Where("workflow_id = ? AND status = ? AND input_ref IN ?", workflowID, models.OutcomeSucceeded, inputs[start:end]).
			Pluck("input_ref", &found).Error
		if err != nil {
			return nil, fmt.Errorf("looking up succeeded inputs: %w", err)
		}
		for _, in := range found {
			done[in] = true
		}
	}
	return done, nil
}

// Ensure runRepo implements RunRepository at compile time.
var _ RunRepository = (*runRepo)(nil)
