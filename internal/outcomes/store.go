// Package outcomes persists the append-only OutcomeRecord log spec.md
// §4.K's nightly report and recommendation engine read back from: one
// row per item the cycle orchestrator dispatched or rejected.
package outcomes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// Store is a thin sqlite-backed append log, following the same
// `*sql.DB`-over-`internal/database` wiring as internal/llm's sqlite
// cache/budget.
type Store struct {
	db *sql.DB
}

// New wraps db, which must already have the outcomes table migrated.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Write appends one outcome record.
func (s *Store) Write(ctx context.Context, rec domain.OutcomeRecord) error {
	reasonsJSON, err := json.Marshal(rec.Reasons)
	if err != nil {
		return fmt.Errorf("outcomes: marshal reasons: %w", err)
	}
	categoriesJSON, err := json.Marshal(rec.Categories)
	if err != nil {
		return fmt.Errorf("outcomes: marshal categories: %w", err)
	}

	var priceLast sql.NullFloat64
	priceMissing := 1
	if rec.Price != nil {
		priceMissing = 0
		if !rec.Price.Missing {
			priceLast = sql.NullFloat64{Float64: rec.Price.Last, Valid: true}
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes (ts, ticker, source, decision, reasons_json, score, sentiment, categories_json, price_last, price_missing)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Timestamp.UTC().Unix(), rec.Ticker, rec.Source, rec.Decision, string(reasonsJSON), rec.Score, rec.Sentiment, string(categoriesJSON), priceLast, priceMissing)
	if err != nil {
		return fmt.Errorf("outcomes: write: %w", err)
	}
	return nil
}

// Between returns every outcome recorded in [from, to), oldest first.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]domain.OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, ticker, source, decision, reasons_json, score, sentiment, categories_json, price_last, price_missing
		FROM outcomes WHERE ts >= ? AND ts < ? ORDER BY ts ASC
	`, from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("outcomes: query between: %w", err)
	}
	defer rows.Close()

	var out []domain.OutcomeRecord
	for rows.Next() {
		rec, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOutcome(row scanner) (domain.OutcomeRecord, error) {
	var (
		ts             int64
		reasonsJSON    string
		categoriesJSON string
		priceLast      sql.NullFloat64
		priceMissing   int
		rec            domain.OutcomeRecord
	)
	if err := row.Scan(&ts, &rec.Ticker, &rec.Source, &rec.Decision, &reasonsJSON, &rec.Score, &rec.Sentiment, &categoriesJSON, &priceLast, &priceMissing); err != nil {
		return domain.OutcomeRecord{}, fmt.Errorf("outcomes: scan: %w", err)
	}
	rec.Timestamp = time.Unix(ts, 0).UTC()
	if err := json.Unmarshal([]byte(reasonsJSON), &rec.Reasons); err != nil {
		return domain.OutcomeRecord{}, fmt.Errorf("outcomes: decode reasons: %w", err)
	}
	if err := json.Unmarshal([]byte(categoriesJSON), &rec.Categories); err != nil {
		return domain.OutcomeRecord{}, fmt.Errorf("outcomes: decode categories: %w", err)
	}
	if priceMissing == 0 {
		rec.Price = &domain.PriceSnapshot{Ticker: rec.Ticker, Last: priceLast.Float64}
	} else {
		rec.Price = &domain.PriceSnapshot{Ticker: rec.Ticker, Missing: true}
	}
	return rec, nil
}
