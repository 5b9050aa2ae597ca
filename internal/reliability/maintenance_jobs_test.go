package reliability

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenzel91/catalyst-bot/internal/database"
	testhelpers "github.com/amenzel91/catalyst-bot/internal/testing"
)

func newMaintenanceTestSet(t *testing.T) (map[string]*database.DB, map[string]*DatabaseHealthService) {
	t.Helper()
	dbs := make(map[string]*database.DB)
	health := make(map[string]*DatabaseHealthService)
	for _, name := range []string{"dedup", "outcomes", "pricecache"} {
		db, cleanup := testhelpers.NewTestDB(t, name)
		t.Cleanup(cleanup)
		dbs[name] = db
		health[name] = NewDatabaseHealthService(db, name, db.Path(), nil, zerolog.Nop())
	}
	return dbs, health
}

func TestWeeklyMaintenanceJobVacuumsConfiguredDatabases(t *testing.T) {
	dbs, _ := newMaintenanceTestSet(t)
	job := NewWeeklyMaintenanceJob(dbs, zerolog.Nop())

	err := job.Run()

	assert.NoError(t, err)
	assert.Equal(t, "weekly_maintenance", job.Name())
}

func TestMonthlyMaintenanceJobSkipsOutcomesVacuum(t *testing.T) {
	dbs, health := newMaintenanceTestSet(t)
	backupDir := t.TempDir()

	backups := NewBackupService(dbs, backupDir, zerolog.Nop())
	require.NoError(t, backups.DailyBackup())

	job := NewMonthlyMaintenanceJob(dbs, health, backupDir, zerolog.Nop())

	err := job.Run()

	require.NoError(t, err)
	assert.Equal(t, "monthly_maintenance", job.Name())
}

func TestDailyMaintenanceJobReturnsErrorWhenBackupDirMissingYesterday(t *testing.T) {
	dbs, health := newMaintenanceTestSet(t)
	job := NewDailyMaintenanceJob(dbs, health, t.TempDir(), zerolog.Nop())

	err := job.verifyBackups()

	assert.Error(t, err, "no daily backup directory for yesterday exists in a fresh temp dir")
}

func TestDailyMaintenanceJobNameIsStable(t *testing.T) {
	dbs, health := newMaintenanceTestSet(t)
	job := NewDailyMaintenanceJob(dbs, health, t.TempDir(), zerolog.Nop())

	assert.Equal(t, "daily_maintenance", job.Name())
}
