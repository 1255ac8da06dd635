package store

import (
	"context"
	"io"

	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// ScoreStore handles per-ticker score snapshots.
type ScoreStore interface {
	// UpsertScore writes score unless a row for the same ticker and kind
	// was updated within the freshness window. It reports whether it wrote.
	UpsertScore(ctx context.Context, score models.TickerScore) (bool, error)
	GetScore(ctx context.Context, ticker string, kind models.ScoreKind) (*models.TickerScore, error)
	ListScores(ctx context.Context, ticker string) ([]models.TickerScore, error)
}

// ReportStore handles generated reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListReports(ctx context.Context, limit int) ([]models.Report, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Store composes every persistence concern tickerdesk needs.
type Store interface {
	io.Closer
	Migrator
	ScoreStore
	ReportStore
}

var (
	_ Store       = (*DB)(nil)
	_ ScoreStore  = (*DB)(nil)
	_ ReportStore = (*DB)(nil)
	_ Migrator    = (*DB)(nil)
)
