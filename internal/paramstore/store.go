// Package paramstore implements the Config & Parameter Store (spec.md
// §4.A): a typed, schema-validated, live-reloadable view of the pipeline's
// tunables, persisted with an append-only audit log and a backup ring for
// rollback. It generalizes the key/value repository pattern used
// throughout the teacher codebase's settings module.
package paramstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/events"
)

// Result is the outcome of an Apply or Rollback call.
type Result struct {
	Revision int
	Snapshot *domain.ConfigSnapshot
}

// RateLimitedError is returned when Apply is called before
// ApplyMinInterval has elapsed since the last successful apply.
type RateLimitedError struct {
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry in %s", e.Remaining.Round(time.Second))
}

// Store is the process-wide parameter service. Readers call Get() and
// hold onto the returned snapshot for the duration of one cycle; writers
// go through Apply/Rollback, which is the only path that mutates state.
type Store struct {
	db     *sql.DB
	log    zerolog.Logger
	bus    *events.Bus
	schema map[string]ParamSchema

	current atomic.Pointer[domain.ConfigSnapshot]

	mu           sync.Mutex // serializes Apply/Rollback
	lastApply    time.Time
	minInterval  time.Duration
}

// New loads the current snapshot (or seeds it from schema defaults if the
// parameters table is empty) and returns a ready-to-use Store.
func New(db *sql.DB, schema []ParamSchema, bus *events.Bus, log zerolog.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		log:    log.With().Str("component", "paramstore").Logger(),
		bus:    bus,
		schema: make(map[string]ParamSchema, len(schema)),
	}
	for _, sc := range schema {
		s.schema[sc.Key] = sc
	}

	snap, err := s.loadOrSeed()
	if err != nil {
		return nil, fmt.Errorf("paramstore: initial load failed: %w", err)
	}
	s.current.Store(snap)

	if interval, ok := snap.Get("APPLY_MIN_INTERVAL_SECONDS"); ok {
		if f, ok := interval.(float64); ok {
			s.minInterval = time.Duration(f) * time.Second
		}
	}
	if s.minInterval == 0 {
		s.minInterval = 60 * time.Second
	}

	return s, nil
}

// Get returns the currently live snapshot. Safe for concurrent use; the
// returned pointer is immutable and never mutated in place.
func (s *Store) Get() *domain.ConfigSnapshot {
	return s.current.Load()
}

// Apply validates every key in delta against the registered schema,
// fails the whole delta on any invalid key (all-or-nothing), and -- if
// valid -- backs up the prior snapshot, writes the new one, appends an
// audit record, and atomically swaps the live pointer.
func (s *Store) Apply(delta map[string]interface{}, author, sourceTag string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastApply.IsZero() {
		elapsed := time.Since(s.lastApply)
		if elapsed < s.minInterval {
			return nil, &RateLimitedError{Remaining: s.minInterval - elapsed}
		}
	}

	normalized := make(map[string]interface{}, len(delta))
	for k, v := range delta {
		sc, ok := s.schema[k]
		if !ok {
			return nil, fmt.Errorf("unknown parameter key %q", k)
		}
		nv, err := sc.Validate(v)
		if err != nil {
			return nil, fmt.Errorf("validation failed, delta rejected in full: %w", err)
		}
		normalized[k] = nv
	}

	prev := s.current.Load()
	full := make(map[string]interface{}, len(prev.FullValues))
	for k, v := range prev.FullValues {
		full[k] = v
	}
	for k, v := range normalized {
		full[k] = v
	}

	next := &domain.ConfigSnapshot{
		Revision:   prev.Revision + 1,
		Timestamp:  time.Now().UTC(),
		Author:     author,
		SourceTag:  sourceTag,
		Delta:      normalized,
		FullValues: full,
	}

	if err := s.persist(prev, next, "apply"); err != nil {
		return nil, err
	}

	s.current.Store(next)
	s.lastApply = next.Timestamp

	s.emitApplied(next, "apply", keysOf(normalized))
	return &Result{Revision: next.Revision, Snapshot: next}, nil
}

// Rollback restores the most recent backup prior to the live snapshot and
// appends its own audit record; it does not delete history.
func (s *Store) Rollback(n int) (*Result, error) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	target := prev.Revision - n
	if target < 0 {
		return nil, fmt.Errorf("rollback %d revisions: no such revision", n)
	}

	valuesJSON, author, sourceTag, err := s.readBackup(target)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}

	var full map[string]interface{}
	if err := json.Unmarshal([]byte(valuesJSON), &full); err != nil {
		return nil, fmt.Errorf("rollback: corrupt backup for revision %d: %w", target, err)
	}

	next := &domain.ConfigSnapshot{
		Revision:   prev.Revision + 1,
		Timestamp:  time.Now().UTC(),
		Author:     author,
		SourceTag:  sourceTag,
		Delta:      map[string]interface{}{"__rollback_to__": target},
		FullValues: full,
	}

	if err := s.persist(prev, next, "rollback"); err != nil {
		return nil, err
	}

	s.current.Store(next)
	s.emitApplied(next, "rollback", []string{"__rollback_to__"})
	return &Result{Revision: next.Revision, Snapshot: next}, nil
}

// History returns up to limit audit records, most recent first.
func (s *Store) History(limit int) ([]domain.AuditRecord, error) {
	rows, err := s.db.Query(`
		SELECT revision, ts, author, source_tag, action, delta_json
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("paramstore: history query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var ts int64
		if err := rows.Scan(&rec.Revision, &ts, &rec.Author, &rec.SourceTag, &rec.Action, &rec.DeltaJSON); err != nil {
			return nil, fmt.Errorf("paramstore: scan history row: %w", err)
		}
		rec.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) emitApplied(snap *domain.ConfigSnapshot, action string, keys []string) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(events.ConfigApplied, "paramstore", &events.ConfigAppliedData{
		Revision: snap.Revision,
		Author:   snap.Author,
		Action:   action,
		Keys:     keys,
	})
}

func keysOf(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
