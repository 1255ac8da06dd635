package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

func TestSaveAndGetReport(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := &models.Report{
		Entities:    []string{"NVDA", "AAPL"},
		Report:      "# Financial Analysis Report",
		Summary:     "Short.",
		Delegations: 3,
		Synthesized: true,
	}
	if err := db.SaveReport(ctx, r); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if r.ID == "" {
		t.Fatal("SaveReport should assign an ID")
	}
	if r.CreatedAt.IsZero() {
		t.Error("SaveReport should set CreatedAt")
	}

	got, err := db.GetReport(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got.Report != r.Report || got.Summary != r.Summary {
		t.Errorf("report = %+v", got)
	}
	if len(got.Entities) != 2 || got.Entities[1] != "AAPL" {
		t.Errorf("entities = %v", got.Entities)
	}
	if got.Delegations != 3 || !got.Synthesized {
		t.Errorf("delegations/synthesized = %d/%v", got.Delegations, got.Synthesized)
	}
}

func TestGetReport_NotFound(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.GetReport(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListReports_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, ticker := range []string{"A", "B", "C"} {
		r := &models.Report{
			Entities:  []string{ticker},
			Report:    "r",
			Summary:   "s",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.SaveReport(ctx, r); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}
	}

	list, err := db.ListReports(ctx, 2)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Entities[0] != "C" || list[1].Entities[0] != "B" {
		t.Errorf("order = %v, %v", list[0].Entities, list[1].Entities)
	}
}
