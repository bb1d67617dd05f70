package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/jobctl/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return db
}

func TestAllMigrations_VersionsAreUniqueAndOrdered(t *testing.T) {
	migrations := AllMigrations()
	require.NotEmpty(t, migrations)

	seen := make(map[string]bool)
	for i, m := range migrations {
		assert.False(t, seen[m.Version], "duplicate version: %s", m.Version)
		seen[m.Version] = true
		assert.NotNil(t, m.Up)
		assert.NotNil(t, m.Down)
		if i > 0 {
			assert.Less(t, migrations[i-1].Version, m.Version)
		}
	}
}

func TestMigrator_Up(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	require.NoError(t, migrator.Up(ctx))
	assert.True(t, db.Migrator().HasTable("runs"))
	assert.True(t, db.Migrator().HasTable("job_outcomes"))
	assert.True(t, db.Migrator().HasIndex(&models.OutcomeRecord{}, "idx_outcome_workflow_input"))

	// Running again is a no-op.
	require.NoError(t, migrator.Up(ctx))

	var count int64
	require.NoError(t, db.Model(&MigrationRecord{}).Count(&count).Error)
	assert.Equal(t, int64(len(AllMigrations())), count)
}

func TestMigrator_StatusAndPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(AllMigrations()))
	for _, s := range statuses {
		assert.False(t, s.Applied)
		assert.Nil(t, s.AppliedAt)
	}

	pending, err := migrator.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, len(AllMigrations()))

	require.NoError(t, migrator.Up(ctx))

	statuses, err = migrator.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.True(t, s.Applied)
		assert.NotNil(t, s.AppliedAt)
	}

	pending, err = migrator.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrator_Down(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())
	require.NoError(t, migrator.Up(ctx))

	// Newest first.
	require.NoError(t, migrator.Down(ctx))
	assert.False(t, db.Migrator().HasTable("job_outcomes"))
	assert.True(t, db.Migrator().HasTable("runs"))

	pending, err := migrator.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "002", pending[0].Version)

	require.NoError(t, migrator.Down(ctx))
	assert.False(t, db.Migrator().HasTable("runs"))

	// Nothing left to roll back.
	require.NoError(t, migrator.Down(ctx))
}

func TestMigrator_DownWithoutDefinition(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	require.NoError(t, migrator.Init(ctx))
	require.NoError(t, db.Create(&MigrationRecord{Version: "999", Description: "unknown", AppliedAt: time.Now()}).Error)

	err := migrator.Down(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "999")
}

func TestMigrations_CanInsertRunWithOutcomes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())
	require.NoError(t, migrator.Up(ctx))

	run := &models.Run{
		WorkflowID: "wf-1",
		Trigger:    models.RunTriggerLaunch,
		Status:     models.RunStatusRunning,
		StartedAt:  time.Now(),
		Outcomes: []models.OutcomeRecord{
			{WorkflowID: "wf-1", InputRef: "/media/a.mov", Status: models.OutcomeSucceeded},
		},
	}
	require.NoError(t, db.Create(run).Error)
	assert.False(t, run.ID.IsZero())
	assert.Equal(t, run.ID, run.Outcomes[0].RunID)
}
