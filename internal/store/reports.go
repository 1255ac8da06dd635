package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// SaveReport stores r, assigning an ID and creation time when unset.
func (db *DB) SaveReport(ctx context.Context, r *models.Report) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	tickers, err := json.Marshal(r.Entities)
	if err != nil {
		return fmt.Errorf("marshal tickers: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO reports (id, tickers, report, summary, delegations, synthesized, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		string(tickers),
		r.Report,
		r.Summary,
		r.Delegations,
		r.Synthesized,
		formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport returns the report with the given ID.
func (db *DB) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, tickers, report, summary, delegations, synthesized, created_at
		FROM reports WHERE id = ?
	`, id)

	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// ListReports returns the most recent reports, newest first. A
// non-positive limit defaults to 20.
func (db *DB) ListReports(ctx context.Context, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, tickers, report, summary, delegations, synthesized, created_at
		FROM reports ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanReport(row scanner) (*models.Report, error) {
	var (
		r       models.Report
		tickers string
		created string
	)
	if err := row.Scan(&r.ID, &tickers, &r.Report, &r.Summary, &r.Delegations, &r.Synthesized, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tickers), &r.Entities); err != nil {
		return nil, fmt.Errorf("unmarshal tickers: %w", err)
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	r.CreatedAt = t
	return &r, nil
}
