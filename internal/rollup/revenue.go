// Package rollup computes the cost and profit summary of a training session.
//
// Every function here is pure: it reads the current form state and returns
// a fresh result. Nothing is rounded; rounding to cents is left to whoever
// renders the numbers.
package rollup

import (
	"github.com/shopspring/decimal"

	"costing/internal/core"
)

// Revenue is the invoice side of the rollup.
type Revenue struct {
	InvoiceTotal decimal.Decimal
	TaxRate      decimal.Decimal
	TaxAmount    decimal.Decimal
	GrossRevenue decimal.Decimal
}

// InvoiceTotal is the lumpsum amount for lumpsum pricing and
// participants × per-pax rate otherwise. Unset amounts count as zero.
func InvoiceTotal(terms core.InvoiceTerms, participants int) decimal.Decimal {
	if terms.PricingType == core.PricingPerPax {
		if participants < 0 {
			participants = 0
		}
		return decimal.NewFromInt(int64(participants)).Mul(terms.PerPaxRate.Decimal)
	}
	return terms.LumpsumAmount.Decimal
}

// ResolveRevenue derives tax and gross revenue from the invoice total. Tax is
// withheld from revenue, so a rate above 100 gives negative gross revenue.
func ResolveRevenue(terms core.InvoiceTerms, participants int) Revenue {
	total := InvoiceTotal(terms, participants)
	rate := terms.TaxRate.Decimal
	tax := percentOf(total, rate)
	return Revenue{
		InvoiceTotal: total,
		TaxRate:      rate,
		TaxAmount:    tax,
		GrossRevenue: total.Sub(tax),
	}
}

// ResolveHeadcount counts everyone attending the session: participants,
// trainers and at most one coordinator. Precomputed counts win over the
// assignment lists they summarise.
func ResolveHeadcount(in core.HeadcountInputs) int {
	participants := len(in.ParticipantIDs)
	if in.ParticipantCount != nil {
		participants = *in.ParticipantCount
	}

	trainers := len(in.TrainerIDs)
	if in.TrainerCount != nil {
		trainers = *in.TrainerCount
	}

	coordinators := 0
	if in.CoordinatorID != "" {
		coordinators = 1
	}
	if in.CoordinatorCount != nil {
		coordinators = *in.CoordinatorCount
	}
	if coordinators > 1 {
		coordinators = 1
	}

	total := nonNegative(participants) + nonNegative(trainers) + nonNegative(coordinators)
	return total
}

func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(core.Hundred)
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
