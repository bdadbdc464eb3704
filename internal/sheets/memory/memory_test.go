package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"costing/internal/core"
)

func TestMemoryStoreExport(t *testing.T) {
	s := New()
	ctx := context.Background()
	report := core.SaveReport{
		ID:         "save-1",
		SessionID:  "s1",
		FinishedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Steps:      []core.StepResult{{Step: core.StepInvoice, Status: core.StepOK}},
		Rollup:     core.RollupResult{FinalProfit: decimal.RequireFromString("4545.5")},
	}

	ref, err := s.ExportRollup(ctx, report)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}

	again, err := s.ExportRollup(ctx, report)
	if err != nil || again != ref {
		t.Fatalf("second export should reuse the row: ref=%q err=%v", again, err)
	}

	rows := s.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][0] != "save-1" || rows[0][2] != "2025-03-01T09:00:00Z" || rows[0][3] != "ok" || rows[0][12] != "4545.50" {
		t.Errorf("row = %v", rows[0])
	}

	if _, err := s.ExportRollup(ctx, core.SaveReport{}); err == nil {
		t.Error("a save without id should be refused")
	}
}
