package reliability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amenzel91/catalyst-bot/internal/database"
	"github.com/rs/zerolog"
)

// DailyMaintenanceJob runs once a day: integrity check/recovery on every
// database, WAL checkpoints, disk space check, backup verification, and
// growth analysis. It implements internal/scheduler.Job directly.
type DailyMaintenanceJob struct {
	databases      map[string]*database.DB
	healthServices map[string]*DatabaseHealthService
	backupDir      string
	log            zerolog.Logger
}

func NewDailyMaintenanceJob(
	databases map[string]*database.DB,
	healthServices map[string]*DatabaseHealthService,
	backupDir string,
	log zerolog.Logger,
) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases:      databases,
		healthServices: healthServices,
		backupDir:      backupDir,
		log:            log.With().Str("job", "daily_maintenance").Logger(),
	}
}

func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("starting daily maintenance")
	startTime := time.Now()
	ctx := context.Background()

	for name, healthService := range j.healthServices {
		j.log.Debug().Str("database", name).Msg("running integrity check")
		if err := healthService.CheckAndRecover(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("CRITICAL: failed to recover database")
			return fmt.Errorf("CRITICAL: failed to recover %s: %w", name, err)
		}
	}

	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if err := j.verifyBackups(); err != nil {
		j.log.Error().Err(err).Msg("backup verification failed")
	}

	j.analyzeDatabaseGrowth()

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("daily maintenance completed")
	return nil
}

func (j *DailyMaintenanceJob) Name() string { return "daily_maintenance" }

func (j *DailyMaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	dataDir := filepath.Dir(filepath.Dir(j.backupDir))
	if err := syscall.Statfs(dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("disk space check")

	if availableGB < 0.5 {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: insufficient disk space, halting")
		return fmt.Errorf("CRITICAL: only %.2f GB free, system halted", availableGB)
	}
	if availableGB < 5.0 {
		j.log.Error().Float64("available_gb", availableGB).Msg("low disk space, consider cleanup")
	} else if availableGB < 10.0 {
		j.log.Warn().Float64("available_gb", availableGB).Msg("disk space running low")
	}
	return nil
}

func (j *DailyMaintenanceJob) verifyBackups() error {
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	dailyBackupDir := filepath.Join(j.backupDir, "daily", yesterday)

	if _, err := os.Stat(dailyBackupDir); os.IsNotExist(err) {
		return fmt.Errorf("yesterday's backup directory not found: %s", dailyBackupDir)
	}

	for dbName := range j.databases {
		backupPath := filepath.Join(dailyBackupDir, dbName+".db")
		if _, err := os.Stat(backupPath); os.IsNotExist(err) {
			j.log.Error().Str("database", dbName).Str("path", backupPath).Msg("backup file missing")
			continue
		}
		if err := verifyIntegrity(backupPath); err != nil {
			j.log.Error().Str("database", dbName).Err(err).Msg("backup integrity check failed")
		} else {
			j.log.Debug().Str("database", dbName).Msg("backup verified")
		}
	}
	return nil
}

func (j *DailyMaintenanceJob) analyzeDatabaseGrowth() {
	for name, healthService := range j.healthServices {
		metrics, err := healthService.GetMetrics()
		if err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("failed to get metrics")
			continue
		}
		j.log.Info().Str("database", name).Float64("size_mb", metrics.SizeMB).
			Float64("wal_size_mb", metrics.WALSizeMB).Msg("database metrics")
	}
}

// WeeklyMaintenanceJob runs VACUUM on the most write-heavy, most
// fragmentation-prone databases: pricecache, llmcache, httpcache.
type WeeklyMaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

func NewWeeklyMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("starting weekly maintenance")
	startTime := time.Now()

	for _, dbName := range []string{"pricecache", "llmcache", "httpcache"} {
		if db, ok := j.databases[dbName]; ok {
			j.log.Info().Str("database", dbName).Msg("running VACUUM")
			if err := vacuumDatabase(db, dbName, j.log); err != nil {
				j.log.Error().Str("database", dbName).Err(err).Msg("VACUUM failed")
			}
		}
	}

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("weekly maintenance completed")
	return nil
}

func (j *WeeklyMaintenanceJob) Name() string { return "weekly_maintenance" }

// MonthlyMaintenanceJob runs VACUUM on every database except outcomes
// (append-heavy audit trail, left alone to avoid disturbing the nightly
// report's win-rate history mid-analysis), then fully verifies the most
// recent daily backup by restoring it to a scratch directory.
type MonthlyMaintenanceJob struct {
	databases      map[string]*database.DB
	healthServices map[string]*DatabaseHealthService
	backupDir      string
	log            zerolog.Logger
}

func NewMonthlyMaintenanceJob(
	databases map[string]*database.DB,
	healthServices map[string]*DatabaseHealthService,
	backupDir string,
	log zerolog.Logger,
) *MonthlyMaintenanceJob {
	return &MonthlyMaintenanceJob{
		databases:      databases,
		healthServices: healthServices,
		backupDir:      backupDir,
		log:            log.With().Str("job", "monthly_maintenance").Logger(),
	}
}

func (j *MonthlyMaintenanceJob) Run() error {
	j.log.Info().Msg("starting monthly maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		if name == "outcomes" {
			j.log.Debug().Str("database", name).Msg("skipping VACUUM for outcomes store")
			continue
		}
		j.log.Info().Str("database", name).Msg("running VACUUM")
		if err := vacuumDatabase(db, name, j.log); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("VACUUM failed")
		}
	}

	if err := j.fullBackupVerification(); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: backup verification failed")
		return fmt.Errorf("CRITICAL: backup verification failed: %w", err)
	}

	j.analyzeGrowthTrends()

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("monthly maintenance completed")
	return nil
}

func (j *MonthlyMaintenanceJob) Name() string { return "monthly_maintenance" }

func (j *MonthlyMaintenanceJob) fullBackupVerification() error {
	j.log.Info().Msg("starting full backup verification")

	tempDir, err := os.MkdirTemp("", "backup_verification_*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	dailyBackupDir := filepath.Join(j.backupDir, "daily")
	entries, err := os.ReadDir(dailyBackupDir)
	if err != nil {
		return fmt.Errorf("failed to read daily backup directory: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no daily backups found")
	}

	var mostRecentBackup string
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].IsDir() {
			mostRecentBackup = entries[i].Name()
			break
		}
	}
	if mostRecentBackup == "" {
		return fmt.Errorf("no valid backup directory found")
	}

	backupPath := filepath.Join(dailyBackupDir, mostRecentBackup)
	j.log.Info().Str("backup_date", mostRecentBackup).Msg("verifying backup")

	for name := range j.databases {
		dbFile := name + ".db"
		srcPath := filepath.Join(backupPath, dbFile)
		dstPath := filepath.Join(tempDir, dbFile)

		if err := CopyFile(srcPath, dstPath); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("failed to copy backup for verification, skipping")
			continue
		}
		if err := verifyIntegrity(dstPath); err != nil {
			return fmt.Errorf("integrity check failed for %s: %w", dbFile, err)
		}
		j.log.Debug().Str("database", dbFile).Msg("backup verified")
	}

	j.log.Info().Str("backup_date", mostRecentBackup).Msg("full backup verification completed")
	return nil
}

func (j *MonthlyMaintenanceJob) analyzeGrowthTrends() {
	for name, healthService := range j.healthServices {
		metrics, err := healthService.GetMetrics()
		if err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("failed to get metrics")
			continue
		}
		j.log.Info().Str("database", name).Float64("size_mb", metrics.SizeMB).Msg("monthly growth analysis")
	}
}

func vacuumDatabase(db *database.DB, name string, log zerolog.Logger) error {
	statsBefore, _ := db.GetStats()
	if err := db.Vacuum(); err != nil {
		return err
	}
	statsAfter, err := db.GetStats()
	if err != nil {
		return nil
	}

	var sizeBefore, sizeAfter float64
	if statsBefore != nil {
		sizeBefore = float64(statsBefore.SizeBytes) / 1024 / 1024
	}
	sizeAfter = float64(statsAfter.SizeBytes) / 1024 / 1024

	log.Info().Str("database", name).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")
	return nil
}

func verifyIntegrity(path string) error {
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileStandard, Name: "verify"})
	if err != nil {
		return fmt.Errorf("failed to open for verification: %w", err)
	}
	defer db.Close()
	return db.HealthCheck(context.Background())
}
