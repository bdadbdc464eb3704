package sheets

import (
	"context"
	"errors"
	"time"

	"costing/internal/core"
)

var ErrNotConfigured = errors.New("sheets service not initialized")

// Ports for outbound adapters.
type (
	// RollupExporter appends the rollup of a journalled save to a
	// spreadsheet. Exporting the same save twice returns the existing row.
	RollupExporter interface {
		ExportRollup(ctx context.Context, r core.SaveReport) (rowRef string, err error)
	}
)

// Header is the first row of the export sheet.
var Header = []any{
	"Save ID", "Session ID", "Saved At", "Outcome",
	"Invoice Total", "Tax", "Gross Revenue",
	"Trainers", "Coordinator", "Expenses",
	"Profit Before Marketing", "Marketing", "Final Profit", "Margin %",
}

// RollupRow renders a save as one sheet row, in Header order. Amounts are
// fixed to two decimals so the sheet parses them as numbers.
func RollupRow(r core.SaveReport) []any {
	ro := r.Rollup
	return []any{
		r.ID,
		r.SessionID,
		r.FinishedAt.UTC().Format(time.RFC3339),
		r.Outcome(),
		ro.InvoiceTotal.StringFixed(2),
		ro.TaxAmount.StringFixed(2),
		ro.GrossRevenue.StringFixed(2),
		ro.TrainerTotal.StringFixed(2),
		ro.CoordinatorTotal.StringFixed(2),
		ro.ExpensesTotal.StringFixed(2),
		ro.ProfitBeforeMarketing.StringFixed(2),
		ro.MarketingAmount.StringFixed(2),
		ro.FinalProfit.StringFixed(2),
		ro.ProfitMarginPercent.StringFixed(2),
	}
}
