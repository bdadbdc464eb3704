package rollup

import (
	"github.com/shopspring/decimal"

	"costing/internal/core"
)

// TrainerTotal sums every trainer fee; blank fees count as zero.
func TrainerTotal(lines []core.TrainerFeeLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.FeeAmount.Decimal)
	}
	return total
}

// CoordinatorTotal is days × rate, or zero when nobody coordinates the
// session even if a fee was entered.
func CoordinatorTotal(fee core.CoordinatorFee, assigned bool) decimal.Decimal {
	if !assigned {
		return decimal.Zero
	}
	return fee.Total()
}

// ExpensesTotal sums the effective amount of every expense line.
func ExpensesTotal(lines []core.ExpenseLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.EffectiveAmount())
	}
	return total
}

// Commission is the marketing cut. It is zero while no marketing party is
// active. A percentage commission is taken on profit before marketing and
// goes negative with it.
func Commission(m core.MarketingCommission, profitBeforeMarketing decimal.Decimal) decimal.Decimal {
	if !m.Active() {
		return decimal.Zero
	}
	switch m.CommissionType {
	case core.CommissionPercentage:
		return percentOf(profitBeforeMarketing, m.CommissionRate.Decimal)
	case core.CommissionFixed:
		return m.FixedAmount.Decimal
	default:
		return decimal.Zero
	}
}

// Margin is final profit as a percent of gross revenue, zero when there is
// no positive revenue to divide by.
func Margin(finalProfit, grossRevenue decimal.Decimal) decimal.Decimal {
	if !grossRevenue.IsPositive() {
		return decimal.Zero
	}
	return finalProfit.Div(grossRevenue).Mul(core.Hundred)
}

// Compute derives the full rollup from the current form.
func Compute(form core.CostingForm) core.RollupResult {
	rev := ResolveRevenue(form.Invoice, form.Pax)

	trainers := TrainerTotal(form.TrainerFees)
	coordinator := CoordinatorTotal(form.Coordinator, form.CoordinatorAssigned())
	expenses := ExpensesTotal(form.Expenses)

	beforeMarketing := rev.GrossRevenue.Sub(trainers).Sub(coordinator).Sub(expenses)
	marketing := Commission(form.Marketing, beforeMarketing)
	final := beforeMarketing.Sub(marketing)

	return core.RollupResult{
		InvoiceTotal:          rev.InvoiceTotal,
		TaxRate:               rev.TaxRate,
		TaxAmount:             rev.TaxAmount,
		GrossRevenue:          rev.GrossRevenue,
		TrainerTotal:          trainers,
		CoordinatorTotal:      coordinator,
		ExpensesTotal:         expenses,
		ProfitBeforeMarketing: beforeMarketing,
		MarketingAmount:       marketing,
		FinalProfit:           final,
		ProfitMarginPercent:   Margin(final, rev.GrossRevenue),
	}
}
