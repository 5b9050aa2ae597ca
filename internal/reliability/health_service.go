package reliability

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/amenzel91/catalyst-bot/internal/database"
	"github.com/rs/zerolog"
)

// DatabaseHealthService monitors a single database's health and attempts
// auto-recovery (WAL checkpoint, then restore-from-backup) when its
// integrity check fails.
type DatabaseHealthService struct {
	db      *database.DB
	name    string
	path    string
	backups *BackupService
	log     zerolog.Logger
}

// NewDatabaseHealthService creates a new database health service. backups
// may be nil, in which case restoreFromBackup always fails loudly rather
// than silently skipping recovery.
func NewDatabaseHealthService(db *database.DB, name, path string, backups *BackupService, log zerolog.Logger) *DatabaseHealthService {
	return &DatabaseHealthService{
		db:      db,
		name:    name,
		path:    path,
		backups: backups,
		log:     log.With().Str("service", "health").Str("database", name).Logger(),
	}
}

// CheckAndRecover runs the integrity check db.HealthCheck already
// implements, and on failure escalates: WAL checkpoint, then restore
// from the most recent tiered backup.
func (s *DatabaseHealthService) CheckAndRecover(ctx context.Context) error {
	s.log.Debug().Msg("starting health check")

	if err := s.db.HealthCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("integrity check failed")

		if err := s.db.WALCheckpoint("RESTART"); err != nil {
			s.log.Error().Err(err).Msg("WAL checkpoint recovery failed")
			return s.restoreFromBackup()
		}
		if err := s.db.HealthCheck(ctx); err != nil {
			s.log.Error().Err(err).Msg("integrity check still failing after WAL checkpoint")
			return s.restoreFromBackup()
		}
		s.log.Info().Msg("database recovered via WAL checkpoint")
	}

	s.log.Debug().Msg("health check complete")
	return nil
}

func (s *DatabaseHealthService) restoreFromBackup() error {
	if s.backups == nil {
		return fmt.Errorf("CRITICAL: no backup service configured for %s", s.name)
	}

	s.log.Warn().Msg("attempting restore from backup")
	backup := s.backups.findMostRecentBackup(s.name)
	if backup == "" {
		return fmt.Errorf("CRITICAL: no backup found for %s", s.name)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database before restore: %w", err)
	}

	corruptedPath := s.path + ".corrupted." + time.Now().Format("20060102_150405")
	if err := os.Rename(s.path, corruptedPath); err != nil {
		s.log.Error().Err(err).Msg("failed to preserve corrupted file")
	} else {
		s.log.Info().Str("path", corruptedPath).Msg("corrupted file preserved for investigation")
	}

	if err := CopyFile(backup, s.path); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	restored, err := database.New(database.Config{Path: s.path, Profile: s.db.Profile(), Name: s.name})
	if err != nil {
		return fmt.Errorf("failed to reopen restored database: %w", err)
	}
	s.db = restored

	if err := s.db.HealthCheck(context.Background()); err != nil {
		return fmt.Errorf("restored backup is also corrupt: %w", err)
	}

	s.log.Info().Str("backup", backup).Msg("successfully restored from backup")
	return nil
}

// GetMetrics reports the current size/WAL/page metrics for this database.
func (s *DatabaseHealthService) GetMetrics() (*DatabaseMetrics, error) {
	stats, err := s.db.GetStats()
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for %s: %w", s.name, err)
	}
	return &DatabaseMetrics{
		Name:          s.name,
		SizeMB:        float64(stats.SizeBytes) / 1024 / 1024,
		WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
		PageCount:     stats.PageCount,
		FreelistCount: stats.FreelistCount,
	}, nil
}

// DatabaseMetrics holds the subset of database.Stats the maintenance jobs
// log for growth-trend analysis.
type DatabaseMetrics struct {
	Name          string
	SizeMB        float64
	WALSizeMB     float64
	PageCount     int64
	FreelistCount int64
}

// CopyFile copies a file from src to dst, used by restoreFromBackup and
// the monthly full-backup-verification pass.
func CopyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0644)
}
