package llm

import (
	"database/sql"
	"fmt"

	"github.com/amenzel91/catalyst-bot/internal/database"
)

// SQLiteCache persists semantic-cache verdicts in the llm_cache table,
// keyed by (prompt_hash, model_tier), msgpack-encoded.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache wraps an already-migrated llmcache database.
func NewSQLiteCache(db *database.DB) *SQLiteCache {
	return &SQLiteCache{db: db.Conn()}
}

func (c *SQLiteCache) Get(promptHash string, tier Tier) (Verdict, bool, error) {
	var blob []byte
	err := c.db.QueryRow(
		`SELECT response FROM llm_cache WHERE prompt_hash = ? AND model_tier = ?`,
		promptHash, string(tier),
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return Verdict{}, false, nil
	}
	if err != nil {
		return Verdict{}, false, fmt.Errorf("llm cache lookup: %w", err)
	}

	v, err := decodeVerdict(blob)
	if err != nil {
		return Verdict{}, false, fmt.Errorf("llm cache decode: %w", err)
	}
	return v, true, nil
}

func (c *SQLiteCache) Set(promptHash string, tier Tier, verdict Verdict) error {
	blob, err := encodeVerdict(verdict)
	if err != nil {
		return fmt.Errorf("llm cache encode: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT INTO llm_cache (prompt_hash, model_tier, response, cost_usd, created_ts)
		 VALUES (?, ?, ?, ?, strftime('%s', 'now'))
		 ON CONFLICT(prompt_hash, model_tier) DO UPDATE SET
		   response = excluded.response,
		   cost_usd = excluded.cost_usd,
		   created_ts = excluded.created_ts`,
		promptHash, string(tier), blob, verdict.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("llm cache store: %w", err)
	}
	return nil
}
