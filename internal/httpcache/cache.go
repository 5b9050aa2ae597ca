// Package httpcache provides a small generic TTL cache over sqlite for
// external API clients (OpenFIGI, Alpha Vantage, ...): responses are
// stored as JSON blobs keyed by (provider, key) with an expiration
// timestamp, generalizing the teacher's client-data cache-table pattern
// to an arbitrary provider namespace instead of a fixed table list.
package httpcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Cache stores arbitrary JSON-serializable values with a TTL, shared
// across every external-API client in internal/clients.
type Cache struct {
	db *sql.DB
}

// New wraps db, which must already have the cache_entries table (see
// internal/database/schemas -- the cache lives alongside whichever
// sqlite file its owning component migrates).
func New(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Store serializes value to JSON and upserts it with expiration = now + ttl.
func (c *Cache) Store(provider, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("httpcache: marshal %s/%s: %w", provider, key, err)
	}
	now := time.Now()
	_, err = c.db.Exec(`
		INSERT INTO cache_entries (provider, key, value_json, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider, key) DO UPDATE SET
			value_json = excluded.value_json,
			cached_at  = excluded.cached_at,
			expires_at = excluded.expires_at
	`, provider, key, string(raw), now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("httpcache: store %s/%s: %w", provider, key, err)
	}
	return nil
}

// GetIfFresh unmarshals dest from the cached value if present and not
// expired. It reports whether a fresh value was found.
func (c *Cache) GetIfFresh(provider, key string, dest interface{}) (bool, error) {
	return c.get(provider, key, dest, true)
}

// GetStale unmarshals dest from the cached value regardless of
// expiration -- used as a last-resort fallback when the upstream API is
// unreachable, since stale data is preferable to no data.
func (c *Cache) GetStale(provider, key string, dest interface{}) (bool, error) {
	return c.get(provider, key, dest, false)
}

func (c *Cache) get(provider, key string, dest interface{}, requireFresh bool) (bool, error) {
	var valueJSON string
	var expiresAt int64
	err := c.db.QueryRow(`
		SELECT value_json, expires_at FROM cache_entries WHERE provider = ? AND key = ?
	`, provider, key).Scan(&valueJSON, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("httpcache: get %s/%s: %w", provider, key, err)
	}
	if requireFresh && time.Now().Unix() > expiresAt {
		return false, nil
	}
	if err := json.Unmarshal([]byte(valueJSON), dest); err != nil {
		return false, fmt.Errorf("httpcache: unmarshal %s/%s: %w", provider, key, err)
	}
	return true, nil
}

// DeleteExpired removes every entry past its expiration and returns the
// number of rows deleted, for a daily cleanup job.
func (c *Cache) DeleteExpired() (int64, error) {
	res, err := c.db.Exec("DELETE FROM cache_entries WHERE expires_at < ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("httpcache: delete expired: %w", err)
	}
	return res.RowsAffected()
}
