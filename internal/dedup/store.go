// Package dedup implements the two-index "seen" store (spec.md §4.B):
// an exact (source, source_id) index and a fuzzy content-signature index,
// both persisted to sqlite with a short-TTL in-memory layer over the hot
// path. The signature index also falls back to a title-similarity scan
// (spec.md §3/§9) so two sources reporting the same story under slightly
// different headlines collapse to one sig_key rather than alerting twice.
// check_and_mark is linearizable per key so two concurrent workers
// can never both observe Fresh for the same item.
package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// fuzzyTitleThreshold is the normalized-Jaccard similarity above which two
// titles from different sources are treated as the same story (spec.md
// §3/§9's 0.8 cross-source fuzzy-title threshold).
const fuzzyTitleThreshold = 0.8

// queryer is satisfied by both *sql.DB and *sql.Tx, letting fuzzyTitleSeen
// run identically inside Peek's read-only path and checkAndMarkPersistent's
// transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Store is the persistent, concurrency-safe dedup index.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	ttl time.Duration // in-memory cache TTL for hot-path lookups

	mu    sync.Mutex // serializes check_and_mark so marking is atomic with checking
	cache map[string]time.Time
}

// New returns a Store backed by db. memTTL controls how long a freshly
// marked key is remembered in the in-process cache before falling back to
// the sqlite source of truth (default 5 minutes when zero).
func New(db *sql.DB, memTTL time.Duration, log zerolog.Logger) *Store {
	if memTTL <= 0 {
		memTTL = 5 * time.Minute
	}
	return &Store{
		db:    db,
		log:   log.With().Str("component", "dedup").Logger(),
		ttl:   memTTL,
		cache: make(map[string]time.Time),
	}
}

// PurgeExpired removes entries older than ttlDays from both indexes. It
// should be run once at startup and can safely be run again later from a
// maintenance job.
func (s *Store) PurgeExpired(ctx context.Context, ttlDays int) error {
	cutoff := time.Now().Add(-time.Duration(ttlDays) * 24 * time.Hour).Unix()
	for _, table := range []string{"seen_id", "seen_sig"} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE first_seen_ts < ?", table), cutoff); err != nil {
			return fmt.Errorf("dedup: purge %s: %w", table, err)
		}
	}
	return nil
}

// CheckAndMark atomically checks whether id_key or sig_key has already
// been seen and, if not, marks both as seen now. The persistent layer is
// the source of truth; the in-memory cache only short-circuits repeat
// lookups within the same hot window.
func (s *Store) CheckAndMark(ctx context.Context, key domain.DedupKey, source, ticker string) (domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.memSeen(key.IDKey) {
		return domain.SeenByID, nil
	}
	if s.memSeen(key.SigKey) {
		return domain.SeenBySig, nil
	}

	decision, err := s.checkAndMarkPersistent(ctx, key, source, ticker)
	if err != nil {
		return domain.Fresh, err
	}

	now := time.Now()
	s.cache[key.IDKey] = now
	s.cache[key.SigKey] = now
	return decision, nil
}

// Peek reports whether key is already seen without marking it, for the
// filter chain's SEEN gate (spec.md §4.H step 1). Dispatch-deferred
// items (per-cycle alert cap reached) must NOT be marked seen by this
// call, since spec.md §4.I requires the dedup key is written only after
// a successful delivery; CheckAndMark is reserved for that moment.
func (s *Store) Peek(ctx context.Context, key domain.DedupKey) (domain.Decision, error) {
	s.mu.Lock()
	if s.memSeen(key.IDKey) {
		s.mu.Unlock()
		return domain.SeenByID, nil
	}
	if s.memSeen(key.SigKey) {
		s.mu.Unlock()
		return domain.SeenBySig, nil
	}
	s.mu.Unlock()

	if seen, err := existsByKey(ctx, s.db, "seen_id", key.IDKey); err != nil {
		return domain.Fresh, err
	} else if seen {
		return domain.SeenByID, nil
	}
	if seen, err := existsByKey(ctx, s.db, "seen_sig", key.SigKey); err != nil {
		return domain.Fresh, err
	} else if seen {
		return domain.SeenBySig, nil
	}
	if seen, err := fuzzyTitleSeen(ctx, s.db, key.TitleNorm); err != nil {
		return domain.Fresh, err
	} else if seen {
		return domain.SeenBySig, nil
	}
	return domain.Fresh, nil
}

// fuzzyTitleSeen reports whether any recently recorded seen_sig title_norm
// is a Jaccard-similar (>= fuzzyTitleThreshold) match for titleNorm, so a
// cross-source rewrite of the same story is caught even when its exact
// sig_key hash misses. An empty titleNorm never matches.
func fuzzyTitleSeen(ctx context.Context, q queryer, titleNorm string) (bool, error) {
	if titleNorm == "" {
		return false, nil
	}
	rows, err := q.QueryContext(ctx, "SELECT title_norm FROM seen_sig WHERE title_norm != ''")
	if err != nil {
		return false, fmt.Errorf("dedup: fuzzy title scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var existing string
		if err := rows.Scan(&existing); err != nil {
			return false, fmt.Errorf("dedup: fuzzy title scan: %w", err)
		}
		if JaccardSimilarity(titleNorm, existing) >= fuzzyTitleThreshold {
			return true, nil
		}
	}
	return false, rows.Err()
}

func existsByKey(ctx context.Context, db *sql.DB, table, key string) (bool, error) {
	var discard string
	err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT hash_key FROM %s WHERE hash_key = ?", table), key).Scan(&discard)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup: peek %s: %w", table, err)
	}
	return true, nil
}

func (s *Store) memSeen(key string) bool {
	ts, ok := s.cache[key]
	if !ok {
		return false
	}
	if time.Since(ts) > s.ttl {
		delete(s.cache, key)
		return false
	}
	return true
}

func (s *Store) checkAndMarkPersistent(ctx context.Context, key domain.DedupKey, source, ticker string) (domain.Decision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Fresh, fmt.Errorf("dedup: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if seen, err := existsForUpdate(ctx, tx, "seen_id", key.IDKey); err != nil {
		return domain.Fresh, err
	} else if seen {
		return domain.SeenByID, tx.Commit()
	}
	if seen, err := existsForUpdate(ctx, tx, "seen_sig", key.SigKey); err != nil {
		return domain.Fresh, err
	} else if seen {
		return domain.SeenBySig, tx.Commit()
	}
	if seen, err := fuzzyTitleSeen(ctx, tx, key.TitleNorm); err != nil {
		return domain.Fresh, err
	} else if seen {
		return domain.SeenBySig, tx.Commit()
	}

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO seen_id (hash_key, first_seen_ts, source, ticker) VALUES (?, ?, ?, ?)",
		key.IDKey, now, source, ticker); err != nil {
		return domain.Fresh, fmt.Errorf("dedup: insert seen_id: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO seen_sig (hash_key, first_seen_ts, source, ticker, title_norm) VALUES (?, ?, ?, ?, ?)",
		key.SigKey, now, source, ticker, key.TitleNorm); err != nil {
		return domain.Fresh, fmt.Errorf("dedup: insert seen_sig: %w", err)
	}

	return domain.Fresh, tx.Commit()
}

func existsForUpdate(ctx context.Context, tx *sql.Tx, table, key string) (bool, error) {
	var discard string
	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT hash_key FROM %s WHERE hash_key = ?", table), key).Scan(&discard)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup: lookup %s: %w", table, err)
	}
	return true, nil
}
