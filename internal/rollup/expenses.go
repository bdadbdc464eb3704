package rollup

import (
	"github.com/shopspring/decimal"

	"costing/internal/core"
)

// SuggestExpense returns the amount a category implies for the session.
// Percentage categories take a share of the invoice total, per_pax categories
// charge per head. Fixed categories and categories without a rate have no
// suggestion. Suggestions are rounded to cents because they become editable
// form values.
func SuggestExpense(cat core.ExpenseCategory, invoiceTotal decimal.Decimal, headcount int) (decimal.Decimal, bool) {
	if !cat.Rate.IsSet() {
		return decimal.Zero, false
	}
	switch cat.Type {
	case core.ExpensePercentage:
		return percentOf(invoiceTotal, cat.Rate.Decimal).Round(2), true
	case core.ExpensePerPax:
		return decimal.NewFromInt(int64(headcount)).Mul(cat.Rate.Decimal).Round(2), true
	default:
		return decimal.Zero, false
	}
}

// ApplyCategory points an expense line at a category. Description, type and,
// when the category yields one, the estimated amount are re-derived from the
// category and replace whatever was typed before. Actual amount and remark
// are kept.
func ApplyCategory(line core.ExpenseLine, cat core.ExpenseCategory, invoiceTotal decimal.Decimal, headcount int) core.ExpenseLine {
	line.Category = cat.ID
	line.Description = cat.Name
	line.ExpenseType = cat.Type
	if line.ExpenseType == "" {
		line.ExpenseType = core.ExpenseFixed
	}
	if amount, ok := SuggestExpense(cat, invoiceTotal, headcount); ok {
		line.EstimatedAmount = core.NewAmount(amount)
	}
	return line
}

// AutoAddResult is the outcome of AutoAddExpenses.
type AutoAddResult struct {
	Lines []core.ExpenseLine
	Added int
}

// AutoAddExpenses appends one line per percentage or per_pax category that is
// not yet referenced by any line and whose suggestion is positive. The input
// slice is not modified. Adding nothing is not an error.
func AutoAddExpenses(lines []core.ExpenseLine, cats []core.ExpenseCategory, invoiceTotal decimal.Decimal, headcount int) AutoAddResult {
	present := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.Category != "" {
			present[l.Category] = struct{}{}
		}
	}

	out := make([]core.ExpenseLine, len(lines), len(lines)+len(cats))
	copy(out, lines)

	added := 0
	for _, cat := range cats {
		if cat.Type != core.ExpensePercentage && cat.Type != core.ExpensePerPax {
			continue
		}
		if _, ok := present[cat.ID]; ok {
			continue
		}
		amount, ok := SuggestExpense(cat, invoiceTotal, headcount)
		if !ok || !amount.IsPositive() {
			continue
		}
		out = append(out, core.ExpenseLine{
			Category:        cat.ID,
			Description:     cat.Name,
			ExpenseType:     cat.Type,
			EstimatedAmount: core.NewAmount(amount),
		})
		present[cat.ID] = struct{}{}
		added++
	}

	return AutoAddResult{Lines: out, Added: added}
}

// FindCategory looks a category up by id.
func FindCategory(cats []core.ExpenseCategory, id string) (core.ExpenseCategory, bool) {
	for _, c := range cats {
		if c.ID == id {
			return c, true
		}
	}
	return core.ExpenseCategory{}, false
}
