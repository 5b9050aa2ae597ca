package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amenzel91/catalyst-bot/internal/database"
	"github.com/rs/zerolog"
)

// databaseSet is the full roster of sqlite databases this system owns.
// httpcache is the only one excluded from the daily tier: it is pure
// cache, rebuildable from nothing, and not worth a day's retention.
var databaseSet = []string{"dedup", "paramstore", "outcomes", "pricecache", "llmcache", "httpcache"}

// BackupService manages tiered database backups (hourly/daily/weekly/monthly).
type BackupService struct {
	databases map[string]*database.DB
	backupDir string
	log       zerolog.Logger
}

// NewBackupService creates a new backup service.
func NewBackupService(databases map[string]*database.DB, backupDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		backupDir: backupDir,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// GetDatabaseNames returns the roster of databases this service knows
// about, filtered by tier. includeCache controls whether httpcache is
// included; outcomesOnly restricts the result to just the
// outcomes store, used by the hourly tier.
func (s *BackupService) GetDatabaseNames(includeCache, outcomesOnly bool) []string {
	if outcomesOnly {
		return []string{"outcomes"}
	}
	names := make([]string, 0, len(databaseSet))
	for _, name := range databaseSet {
		if name == "httpcache" && !includeCache {
			continue
		}
		if _, ok := s.databases[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// HourlyBackup backs up the outcomes store only -- it is the one database
// where losing even an hour of decision/outcome history would blind the
// nightly report's win-rate rollup. Keeps last 24 hours.
func (s *BackupService) HourlyBackup() error {
	s.log.Info().Msg("starting hourly backup")
	startTime := time.Now()

	hourlyDir := filepath.Join(s.backupDir, "hourly")
	if err := os.MkdirAll(hourlyDir, 0755); err != nil {
		return fmt.Errorf("failed to create hourly backup directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15")
	backupPath := filepath.Join(hourlyDir, fmt.Sprintf("outcomes_%s.db", timestamp))

	if err := s.BackupDatabase("outcomes", backupPath); err != nil {
		return fmt.Errorf("failed to backup outcomes: %w", err)
	}
	if err := s.verifyBackup(backupPath); err != nil {
		os.Remove(backupPath)
		return fmt.Errorf("backup verification failed: %w", err)
	}

	if err := s.rotateHourlyBackups(hourlyDir); err != nil {
		s.log.Error().Err(err).Msg("failed to rotate hourly backups")
	}

	s.log.Info().Dur("duration_ms", time.Since(startTime)).Str("backup_path", backupPath).
		Msg("hourly backup completed")
	return nil
}

// DailyBackup backs up every database except httpcache. Keeps last 30 days.
func (s *BackupService) DailyBackup() error {
	s.log.Info().Msg("starting daily backup")
	startTime := time.Now()

	date := time.Now().Format("2006-01-02")
	dailyDir := filepath.Join(s.backupDir, "daily", date)
	if err := os.MkdirAll(dailyDir, 0755); err != nil {
		return fmt.Errorf("failed to create daily backup directory: %w", err)
	}

	s.backupTier(dailyDir, s.GetDatabaseNames(false, false))

	if err := s.rotateDailyBackups(); err != nil {
		s.log.Error().Err(err).Msg("failed to rotate daily backups")
	}

	s.log.Info().Dur("duration_ms", time.Since(startTime)).Str("backup_dir", dailyDir).
		Msg("daily backup completed")
	return nil
}

// WeeklyBackup backs up every database, including httpcache. Keeps last 12 weeks.
func (s *BackupService) WeeklyBackup() error {
	s.log.Info().Msg("starting weekly backup")
	startTime := time.Now()

	year, week := time.Now().ISOWeek()
	weekDir := filepath.Join(s.backupDir, "weekly", fmt.Sprintf("%04d-W%02d", year, week))
	if err := os.MkdirAll(weekDir, 0755); err != nil {
		return fmt.Errorf("failed to create weekly backup directory: %w", err)
	}

	s.backupTier(weekDir, s.GetDatabaseNames(true, false))

	if err := s.rotateWeeklyBackups(); err != nil {
		s.log.Error().Err(err).Msg("failed to rotate weekly backups")
	}

	s.log.Info().Dur("duration_ms", time.Since(startTime)).Str("backup_dir", weekDir).
		Msg("weekly backup completed")
	return nil
}

// MonthlyBackup backs up every database, including httpcache. Keeps 10 years.
func (s *BackupService) MonthlyBackup() error {
	s.log.Info().Msg("starting monthly backup")
	startTime := time.Now()

	month := time.Now().Format("2006-01")
	monthDir := filepath.Join(s.backupDir, "monthly", month)
	if err := os.MkdirAll(monthDir, 0755); err != nil {
		return fmt.Errorf("failed to create monthly backup directory: %w", err)
	}

	s.backupTier(monthDir, s.GetDatabaseNames(true, false))

	if err := s.rotateMonthlyBackups(); err != nil {
		s.log.Error().Err(err).Msg("failed to rotate monthly backups")
	}

	s.log.Info().Dur("duration_ms", time.Since(startTime)).Str("backup_dir", monthDir).
		Msg("monthly backup completed")
	return nil
}

func (s *BackupService) backupTier(dir string, dbNames []string) {
	for _, dbName := range dbNames {
		backupPath := filepath.Join(dir, dbName+".db")

		if err := s.BackupDatabase(dbName, backupPath); err != nil {
			s.log.Error().Str("database", dbName).Err(err).Msg("failed to backup database")
			continue
		}
		if err := s.verifyBackup(backupPath); err != nil {
			s.log.Error().Str("database", dbName).Err(err).Msg("backup verification failed")
			os.Remove(backupPath)
		}
	}
}

// BackupDatabase performs an atomic backup of a single database using
// SQLite's VACUUM INTO, which also defragments the copy.
func (s *BackupService) BackupDatabase(dbName, backupPath string) error {
	db, ok := s.databases[dbName]
	if !ok {
		return fmt.Errorf("database %s not found", dbName)
	}

	_, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath))
	if err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	info, err := os.Stat(backupPath)
	if err != nil {
		return fmt.Errorf("failed to stat backup: %w", err)
	}
	s.log.Debug().Str("database", dbName).Float64("size_mb", float64(info.Size())/1024/1024).
		Msg("backup created")
	return nil
}

func (s *BackupService) verifyBackup(backupPath string) error {
	backupDB, err := sql.Open("sqlite", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func (s *BackupService) rotateHourlyBackups(hourlyDir string) error {
	cutoff := time.Now().Add(-24 * time.Hour)
	return removeOlderThan(hourlyDir, cutoff, false, s.log)
}

func (s *BackupService) rotateDailyBackups() error {
	return removeDatedDirsOlderThan(filepath.Join(s.backupDir, "daily"), "2006-01-02", time.Now().AddDate(0, 0, -30), s.log)
}

func (s *BackupService) rotateWeeklyBackups() error {
	cutoff := time.Now().AddDate(0, 0, -12*7)
	return removeOlderThan(filepath.Join(s.backupDir, "weekly"), cutoff, true, s.log)
}

func (s *BackupService) rotateMonthlyBackups() error {
	return removeDatedDirsOlderThan(filepath.Join(s.backupDir, "monthly"), "2006-01", time.Now().AddDate(-10, 0, 0), s.log)
}

func removeOlderThan(dir string, cutoff time.Time, isDir bool, log zerolog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() != isDir {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(dir, entry.Name())
			var removeErr error
			if isDir {
				removeErr = os.RemoveAll(path)
			} else {
				removeErr = os.Remove(path)
			}
			if removeErr != nil {
				log.Warn().Str("path", path).Err(removeErr).Msg("failed to delete old backup")
			}
		}
	}
	return nil
}

func removeDatedDirsOlderThan(dir, layout string, cutoff time.Time, log zerolog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirDate, err := time.Parse(layout, entry.Name())
		if err != nil {
			log.Warn().Str("dir", entry.Name()).Msg("failed to parse date from directory name")
			continue
		}
		if dirDate.Before(cutoff) {
			path := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				log.Warn().Str("path", path).Err(err).Msg("failed to delete old backup")
			}
		}
	}
	return nil
}

// findMostRecentBackup walks hourly/daily/weekly/monthly in that order
// looking for filename, the most recently modified match wins.
func (s *BackupService) findMostRecentBackup(dbName string) string {
	tiers := []struct {
		dir     string
		pattern string
	}{
		{filepath.Join(s.backupDir, "hourly"), dbName + "_*.db"},
		{filepath.Join(s.backupDir, "daily"), ""},
		{filepath.Join(s.backupDir, "weekly"), ""},
		{filepath.Join(s.backupDir, "monthly"), ""},
	}

	var best string
	var bestTime time.Time
	for _, tier := range tiers {
		path, modTime := walkForBackup(tier.dir, dbName+".db", tier.pattern)
		if path != "" && modTime.After(bestTime) {
			best, bestTime = path, modTime
		}
	}
	return best
}

func walkForBackup(baseDir, filename, pattern string) (string, time.Time) {
	var mostRecent string
	var mostRecentTime time.Time

	_ = filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		match := false
		if pattern != "" {
			matched, _ := filepath.Match(pattern, filepath.Base(path))
			match = matched
		} else {
			match = filepath.Base(path) == filename
		}
		if match && info.ModTime().After(mostRecentTime) {
			mostRecent, mostRecentTime = path, info.ModTime()
		}
		return nil
	})
	return mostRecent, mostRecentTime
}

// HourlyBackupJob, DailyBackupJob, WeeklyBackupJob and MonthlyBackupJob
// adapt the four BackupService tiers to internal/scheduler.Job.

type HourlyBackupJob struct{ service *BackupService }

func NewHourlyBackupJob(service *BackupService) *HourlyBackupJob { return &HourlyBackupJob{service} }
func (j *HourlyBackupJob) Run() error                            { return j.service.HourlyBackup() }
func (j *HourlyBackupJob) Name() string                          { return "hourly_backup" }

type DailyBackupJob struct{ service *BackupService }

func NewDailyBackupJob(service *BackupService) *DailyBackupJob { return &DailyBackupJob{service} }
func (j *DailyBackupJob) Run() error                           { return j.service.DailyBackup() }
func (j *DailyBackupJob) Name() string                         { return "daily_backup" }

type WeeklyBackupJob struct{ service *BackupService }

func NewWeeklyBackupJob(service *BackupService) *WeeklyBackupJob { return &WeeklyBackupJob{service} }
func (j *WeeklyBackupJob) Run() error                            { return j.service.WeeklyBackup() }
func (j *WeeklyBackupJob) Name() string                          { return "weekly_backup" }

type MonthlyBackupJob struct{ service *BackupService }

func NewMonthlyBackupJob(service *BackupService) *MonthlyBackupJob {
	return &MonthlyBackupJob{service}
}
func (j *MonthlyBackupJob) Run() error   { return j.service.MonthlyBackup() }
func (j *MonthlyBackupJob) Name() string { return "monthly_backup" }
