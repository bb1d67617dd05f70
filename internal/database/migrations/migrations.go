// Package migrations applies versioned schema changes to the run history
// database and records them in a schema_migrations table.
package migrations

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"gorm.io/gorm"
)

// Migration is one versioned schema change. Versions compare as strings,
// so they are zero padded.
type Migration struct {
	Version     string
	Description string
	Up          func(tx *gorm.DB) error
	Down        func(tx *gorm.DB) error
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	ID          uint      `gorm:"primarykey"`
	Version     string    `gorm:"uniqueIndex;not null;size:32"`
	Description string    `gorm:"not null;size:255"`
	AppliedAt   time.Time `gorm:"not null"`
}

func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// MigrationStatus pairs a registered migration with its applied time.
type MigrationStatus struct {
	Version     string
	Description string
	Applied     bool
	AppliedAt   *time.Time
}

// Migrator applies registered migrations in version order.
type Migrator struct {
	db         *gorm.DB
	logger     *slog.Logger
	migrations []Migration
}

func NewMigrator(db *gorm.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, logger: logger}
}

// RegisterAll adds migrations and keeps the registry sorted by version.
func (m *Migrator) RegisterAll(migrations []Migration) {
	m.migrations = append(m.migrations, migrations...)
	slices.SortFunc(m.migrations, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
}

// Init creates schema_migrations if it does not exist.
func (m *Migrator) Init(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}
	return nil
}

// Up applies every pending migration, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) error {
	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}
	for _, mg := range pending {
		m.logger.InfoContext(ctx, "applying migration",
			slog.String("version", mg.Version),
			slog.String("description", mg.Description),
		)
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mg.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:     mg.Version,
				Description: mg.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", mg.Version, err)
		}
	}
	return nil
}

// Down rolls back the most recently applied migration. It does nothing
// when no migration has been applied.
func (m *Migrator) Down(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		m.logger.InfoContext(ctx, "no migrations to roll back")
		return nil
	}
	last := slices.MaxFunc(applied, func(a, b MigrationRecord) int {
		return cmp.Compare(a.Version, b.Version)
	})

	i := slices.IndexFunc(m.migrations, func(mg Migration) bool { return mg.Version == last.Version })
	if i < 0 {
		return fmt.Errorf("migration definition not found for version %s", last.Version)
	}
	mg := m.migrations[i]
	if mg.Down == nil {
		return fmt.Errorf("migration %s does not support rollback", mg.Version)
	}

	m.logger.InfoContext(ctx, "rolling back migration",
		slog.String("version", mg.Version),
		slog.String("description", mg.Description),
	)
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mg.Down(tx); err != nil {
			return fmt.Errorf("rolling back migration %s: %w", mg.Version, err)
		}
		return tx.Where("version = ?", mg.Version).Delete(&MigrationRecord{}).Error
	})
}

// Status reports every registered migration in version order.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	at := make(map[string]time.Time, len(applied))
	for _, rec := range applied {
		at[rec.Version] = rec.AppliedAt
	}

	out := make([]MigrationStatus, len(m.migrations))
	for i, mg := range m.migrations {
		out[i] = MigrationStatus{Version: mg.Version, Description: mg.Description}
		if t, ok := at[mg.Version]; ok {
			out[i].Applied = true
			out[i].AppliedAt = &t
		}
	}
	return out, nil
}

// Pending returns the registered migrations not yet applied.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for i, s := range statuses {
		if !s.Applied {
			pending = append(pending, m.migrations[i])
		}
	}
	return pending, nil
}

func (m *Migrator) applied(ctx context.Context) ([]MigrationRecord, error) {
	if err := m.Init(ctx); err != nil {
		return nil, err
	}
	var records []MigrationRecord
	if err := m.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("getting applied migrations: %w", err)
	}
	return records, nil
}
