package finance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"costing/internal/core"
)

func TestNewInvoicePayload(t *testing.T) {
	tests := []struct {
		name      string
		terms     core.InvoiceTerms
		pax       int
		wantDesc  string
		wantQty   int
		wantTotal string
		wantTax   string
	}{
		{
			name:      "lumpsum",
			terms:     core.InvoiceTerms{PricingType: core.PricingLumpsum, LumpsumAmount: core.AmountOf(8000), TaxRate: core.AmountOf(6)},
			pax:       20,
			wantDesc:  "Training Course Fee",
			wantQty:   1,
			wantTotal: "8000",
			wantTax:   "480",
		},
		{
			name:      "per pax",
			terms:     core.InvoiceTerms{PricingType: core.PricingPerPax, PerPaxRate: core.AmountOf(400)},
			pax:       20,
			wantDesc:  "Training Fee per Participant",
			wantQty:   20,
			wantTotal: "8000",
			wantTax:   "0",
		},
		{
			name:      "blank pricing treated as lumpsum",
			terms:     core.InvoiceTerms{LumpsumAmount: core.AmountOf(100)},
			wantDesc:  "Training Course Fee",
			wantQty:   1,
			wantTotal: "100",
			wantTax:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewInvoicePayload("s1", tt.terms, tt.pax)
			if len(p.LineItems) != 1 {
				t.Fatalf("expected one line item, got %d", len(p.LineItems))
			}
			item := p.LineItems[0]
			if item.Description != tt.wantDesc || item.Quantity != tt.wantQty {
				t.Errorf("line item = %+v", item)
			}
			want := decimal.RequireFromString(tt.wantTotal)
			if !p.TotalAmount.Equal(want) || !p.Subtotal.Equal(want) || !LineItemsTotal(p.LineItems).Equal(want) {
				t.Errorf("total = %s subtotal = %s, want %s", p.TotalAmount, p.Subtotal, want)
			}
			if !p.TaxAmount.Equal(decimal.RequireFromString(tt.wantTax)) {
				t.Errorf("tax = %s, want %s", p.TaxAmount, tt.wantTax)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	err := fmt.Errorf("issue invoice: %w", Rejected("Only approved invoices can be issued"))
	if got := Detail(err); got != "Only approved invoices can be issued" {
		t.Errorf("Detail() = %q", got)
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("400 should not match ErrNotFound")
	}

	nf := fmt.Errorf("get: %w", NotFound("Invoice"))
	if !errors.Is(nf, ErrNotFound) {
		t.Errorf("404 should match ErrNotFound")
	}
	if got := Detail(nf); got != "Invoice not found" {
		t.Errorf("Detail() = %q", got)
	}

	bare := &APIError{Status: 502}
	if bare.Error() != "finance api: 502 Bad Gateway" {
		t.Errorf("Error() = %q", bare.Error())
	}
	if Detail(errors.New("plain")) != "plain" {
		t.Errorf("plain errors should pass through")
	}
}

func TestFindSessionInvoice(t *testing.T) {
	invoices := []Invoice{
		{ID: "a", SessionID: "s1", Status: core.StatusCancelled},
		{ID: "b", SessionID: "s2", Status: core.StatusDraft},
		{ID: "c", SessionID: "s1", Status: core.StatusApproved},
	}
	inv, ok := FindSessionInvoice(invoices, "s1")
	if !ok || inv.ID != "c" {
		t.Fatalf("FindSessionInvoice = %+v %v", inv, ok)
	}
	if _, ok := FindSessionInvoice(invoices, "s9"); ok {
		t.Fatalf("unexpected match")
	}
}

func TestActor(t *testing.T) {
	if ActorFrom(context.Background()) != "system" {
		t.Errorf("default actor")
	}
	if ActorFrom(WithActor(context.Background(), "amy")) != "amy" {
		t.Errorf("actor not carried")
	}
}
