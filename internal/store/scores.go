package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// UpsertScore inserts a score, or replaces an existing row only if that row
// is older than the freshness window relative to score.LastUpdated.
func (db *DB) UpsertScore(ctx context.Context, score models.TickerScore) (bool, error) {
	score.Ticker = strings.ToUpper(strings.TrimSpace(score.Ticker))
	if score.Ticker == "" {
		return false, fmt.Errorf("upsert score: empty ticker")
	}
	if !score.Kind.Valid() {
		return false, fmt.Errorf("upsert score: invalid kind %q", score.Kind)
	}
	if score.LastUpdated.IsZero() {
		score.LastUpdated = time.Now()
	}

	db.mu.RLock()
	freshness := db.freshness
	db.mu.RUnlock()
	cutoff := score.LastUpdated.Add(-freshness)

	result, err := db.ExecContext(ctx, `
		INSERT INTO ticker_scores (ticker, kind, company_name, composite, payload, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, kind) DO UPDATE SET
			company_name = COALESCE(NULLIF(excluded.company_name, ''), ticker_scores.company_name),
			composite = excluded.composite,
			payload = excluded.payload,
			last_updated = excluded.last_updated
		WHERE ticker_scores.last_updated <= ?
	`,
		score.Ticker,
		string(score.Kind),
		score.CompanyName,
		score.Composite,
		string(score.Payload),
		formatTime(score.LastUpdated),
		formatTime(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("upsert score: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// GetScore returns the stored score for ticker and kind.
func (db *DB) GetScore(ctx context.Context, ticker string, kind models.ScoreKind) (*models.TickerScore, error) {
	row := db.QueryRowContext(ctx, `
		SELECT ticker, kind, company_name, composite, payload, last_updated
		FROM ticker_scores WHERE ticker = ? AND kind = ?
	`, strings.ToUpper(strings.TrimSpace(ticker)), string(kind))

	s, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get score: %w", err)
	}
	return s, nil
}

// ListScores returns stored scores for ticker, or every score when ticker
// is empty, ordered by ticker then kind.
func (db *DB) ListScores(ctx context.Context, ticker string) ([]models.TickerScore, error) {
	query := `SELECT ticker, kind, company_name, composite, payload, last_updated FROM ticker_scores`
	var args []any
	if t := strings.ToUpper(strings.TrimSpace(ticker)); t != "" {
		query += ` WHERE ticker = ?`
		args = append(args, t)
	}
	query += ` ORDER BY ticker, kind`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []models.TickerScore
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScore(row scanner) (*models.TickerScore, error) {
	var (
		s           models.TickerScore
		kind        string
		companyName sql.NullString
		payload     sql.NullString
		updated     string
	)
	if err := row.Scan(&s.Ticker, &kind, &companyName, &s.Composite, &payload, &updated); err != nil {
		return nil, err
	}
	s.Kind = models.ScoreKind(kind)
	s.CompanyName = companyName.String
	if payload.Valid && payload.String != "" {
		s.Payload = []byte(payload.String)
	}
	t, err := parseTime(updated)
	if err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}
	s.LastUpdated = t
	return &s, nil
}
