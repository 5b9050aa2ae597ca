package reliability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenzel91/catalyst-bot/internal/database"
	testhelpers "github.com/amenzel91/catalyst-bot/internal/testing"
)

func newBackupTestSet(t *testing.T) map[string]*database.DB {
	t.Helper()
	dbs := make(map[string]*database.DB)
	for _, name := range []string{"dedup", "outcomes", "pricecache"} {
		db, cleanup := testhelpers.NewTestDB(t, name)
		t.Cleanup(cleanup)
		dbs[name] = db
	}
	return dbs
}

func TestGetDatabaseNamesExcludesHttpcacheByDefault(t *testing.T) {
	svc := NewBackupService(newBackupTestSet(t), t.TempDir(), zerolog.Nop())

	names := svc.GetDatabaseNames(false, false)

	assert.Contains(t, names, "dedup")
	assert.NotContains(t, names, "httpcache")
}

func TestGetDatabaseNamesOutcomesOnlyReturnsSingleEntry(t *testing.T) {
	svc := NewBackupService(newBackupTestSet(t), t.TempDir(), zerolog.Nop())

	names := svc.GetDatabaseNames(true, true)

	assert.Equal(t, []string{"outcomes"}, names)
}

func TestHourlyBackupProducesVerifiedOutcomesFile(t *testing.T) {
	backupDir := t.TempDir()
	svc := NewBackupService(newBackupTestSet(t), backupDir, zerolog.Nop())

	err := svc.HourlyBackup()

	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(backupDir, "hourly"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "outcomes_")
}

func TestDailyBackupSkipsMissingDatabasesWithoutFailing(t *testing.T) {
	backupDir := t.TempDir()
	svc := NewBackupService(newBackupTestSet(t), backupDir, zerolog.Nop())

	err := svc.DailyBackup()

	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(backupDir, "daily"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	dbFiles, err := os.ReadDir(filepath.Join(backupDir, "daily", entries[0].Name()))
	require.NoError(t, err)
	assert.Len(t, dbFiles, 3, "dedup, outcomes, pricecache all present; llmcache/httpcache absent from the fixture set")
}

func TestBackupDatabaseFailsForUnknownName(t *testing.T) {
	svc := NewBackupService(newBackupTestSet(t), t.TempDir(), zerolog.Nop())

	err := svc.BackupDatabase("nonexistent", filepath.Join(t.TempDir(), "out.db"))

	assert.Error(t, err)
}

func TestFindMostRecentBackupFindsOutcomesBackup(t *testing.T) {
	backupDir := t.TempDir()
	svc := NewBackupService(newBackupTestSet(t), backupDir, zerolog.Nop())

	require.NoError(t, svc.HourlyBackup())
	require.NoError(t, svc.DailyBackup())

	found := svc.findMostRecentBackup("outcomes")

	assert.NotEmpty(t, found)
}
