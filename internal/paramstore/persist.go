package paramstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amenzel91/catalyst-bot/internal/database"
	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// loadOrSeed reads the live `parameters` table into a snapshot at the
// last committed revision (0 on a fresh store), seeding any schema key
// that has no row yet from its default.
func (s *Store) loadOrSeed() (*domain.ConfigSnapshot, error) {
	rows, err := s.db.Query("SELECT key, value_json FROM parameters")
	if err != nil {
		return nil, fmt.Errorf("loadOrSeed: query parameters: %w", err)
	}
	full := make(map[string]interface{})
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("loadOrSeed: scan row: %w", err)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue
		}
		full[key] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for key, sc := range s.schema {
		if _, ok := full[key]; !ok {
			full[key] = sc.Default
			if err := s.writeParameter(key, sc.Default, now); err != nil {
				return nil, err
			}
		}
	}

	maxRevision, err := s.maxBackupRevision()
	if err != nil {
		return nil, err
	}
	// Every apply/rollback backs up the previous revision and commits the
	// next one, so the live revision is one past the newest backup.
	var backups int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM snapshot_backups").Scan(&backups); err != nil {
		return nil, fmt.Errorf("loadOrSeed: count backups: %w", err)
	}
	if backups > 0 {
		maxRevision++
	}

	return &domain.ConfigSnapshot{
		Revision:   maxRevision,
		Timestamp:  now,
		Author:     "startup",
		SourceTag:  "seed",
		Delta:      nil,
		FullValues: full,
	}, nil
}

func (s *Store) maxBackupRevision() (int, error) {
	var rev sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(revision) FROM snapshot_backups").Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("maxBackupRevision: %w", err)
	}
	if !rev.Valid {
		return 0, nil
	}
	return int(rev.Int64), nil
}

func (s *Store) writeParameter(key string, value interface{}, ts time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("writeParameter: marshal %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO parameters (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, key, string(raw), ts.Unix())
	return err
}

// persist writes prev's full values to the backup ring, updates the live
// `parameters` rows to next's values, and appends an audit record -- all
// inside one transaction, so a crash mid-apply never leaves a partial
// mutation visible to readers.
func (s *Store) persist(prev, next *domain.ConfigSnapshot, action string) error {
	prevJSON, err := json.Marshal(prev.FullValues)
	if err != nil {
		return fmt.Errorf("persist: marshal prev snapshot: %w", err)
	}
	deltaJSON, err := json.Marshal(next.Delta)
	if err != nil {
		return fmt.Errorf("persist: marshal delta: %w", err)
	}

	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO snapshot_backups (revision, ts, author, source_tag, values_json)
			VALUES (?, ?, ?, ?, ?)
		`, prev.Revision, prev.Timestamp.Unix(), prev.Author, prev.SourceTag, string(prevJSON)); err != nil {
			return fmt.Errorf("persist: write backup: %w", err)
		}

		for key, value := range next.Delta {
			if key == "__rollback_to__" {
				continue
			}
			raw, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("persist: marshal %s: %w", key, err)
			}
			if _, err := tx.Exec(`
				INSERT INTO parameters (key, value_json, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
			`, key, string(raw), next.Timestamp.Unix()); err != nil {
				return fmt.Errorf("persist: write parameter %s: %w", key, err)
			}
		}

		if action == "rollback" {
			for key, value := range next.FullValues {
				raw, err := json.Marshal(value)
				if err != nil {
					continue
				}
				if _, err := tx.Exec(`
					INSERT INTO parameters (key, value_json, updated_at)
					VALUES (?, ?, ?)
					ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
				`, key, string(raw), next.Timestamp.Unix()); err != nil {
					return fmt.Errorf("persist: rollback write %s: %w", key, err)
				}
			}
		}

		if _, err := tx.Exec(`
			INSERT INTO audit_log (revision, ts, author, source_tag, action, delta_json)
			VALUES (?, ?, ?, ?, ?, ?)
		`, next.Revision, next.Timestamp.Unix(), next.Author, next.SourceTag, action, string(deltaJSON)); err != nil {
			return fmt.Errorf("persist: write audit record: %w", err)
		}

		return nil
	})
}

func (s *Store) readBackup(revision int) (valuesJSON, author, sourceTag string, err error) {
	err = s.db.QueryRow(`
		SELECT values_json, author, source_tag FROM snapshot_backups WHERE revision = ?
	`, revision).Scan(&valuesJSON, &author, &sourceTag)
	if err == sql.ErrNoRows {
		return "", "", "", fmt.Errorf("no backup found for revision %d", revision)
	}
	return
}
