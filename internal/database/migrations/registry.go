package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/jobctl/internal/models"
)

// AllMigrations returns every schema migration, oldest first.
func AllMigrations() []Migration {
	return []Migration{
		createTable("001", "Create runs table", &models.Run{}),
		createTable("002", "Create job_outcomes table with workflow/input index", &models.OutcomeRecord{}),
	}
}

// createTable returns a migration that auto-migrates one model and drops
// its table on rollback.
func createTable(version, description string, model any) Migration {
	return Migration{
		Version:     version,
		Description: description,
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(model)
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(model)
		},
	}
}
