package finance

import (
	"github.com/shopspring/decimal"

	"costing/internal/core"
	"costing/internal/rollup"
)

const (
	lumpsumLineDescription = "Training Course Fee"
	perPaxLineDescription  = "Training Fee per Participant"
)

// NewInvoicePayload builds the invoice upsert for a session's revenue terms.
// The invoice carries one line item. Total equals subtotal; the tax amount
// is the withheld tax reported alongside it.
func NewInvoicePayload(sessionID string, terms core.InvoiceTerms, pax int) InvoicePayload {
	rev := rollup.ResolveRevenue(terms, pax)

	pricing := terms.PricingType
	if pricing == "" {
		pricing = core.PricingLumpsum
	}

	var item LineItem
	if pricing == core.PricingPerPax {
		if pax < 0 {
			pax = 0
		}
		item = LineItem{
			Description: perPaxLineDescription,
			Quantity:    pax,
			UnitPrice:   terms.PerPaxRate.Decimal,
			Amount:      rev.InvoiceTotal,
		}
	} else {
		item = LineItem{
			Description: lumpsumLineDescription,
			Quantity:    1,
			UnitPrice:   terms.LumpsumAmount.Decimal,
			Amount:      rev.InvoiceTotal,
		}
	}

	return InvoicePayload{
		SessionID:   sessionID,
		PricingType: pricing,
		LineItems:   []LineItem{item},
		Subtotal:    rev.InvoiceTotal,
		TaxRate:     rev.TaxRate,
		TaxAmount:   rev.TaxAmount,
		TotalAmount: rev.InvoiceTotal,
	}
}

// LineItemsTotal sums the amount of every line item.
func LineItemsTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}
