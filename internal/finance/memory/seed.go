package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"costing/internal/core"
	"costing/internal/finance"
)

// OpenSession registers a session together with the empty auto-draft invoice
// the finance system creates for every new session.
func (s *Store) OpenSession(ctx context.Context, snap finance.CostingSnapshot) finance.Invoice {
	s.AddSession(snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	inv := &finance.Invoice{
		ID:            uuid.NewString(),
		InvoiceNumber: s.nextInvoiceNumber(now),
		SessionID:     snap.Session.ID,
		CompanyName:   snap.Session.CompanyName,
		ProgrammeName: snap.Session.Name,
		Pax:           snap.Pax,
		LineItems:     []finance.LineItem{},
		Subtotal:      decimal.Zero,
		TaxRate:       decimal.Zero,
		TaxAmount:     decimal.Zero,
		TotalAmount:   decimal.Zero,
		Status:        core.StatusAutoDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	s.invoices[inv.ID] = inv
	s.record(ctx, "invoice", inv.ID, "created", nil, invoiceValues(inv), "")
	return cloneInvoice(*inv)
}

// DemoSessionID is the session NewDemo opens.
const DemoSessionID = "demo-session"

// DemoCategories is the expense category set used for local runs.
func DemoCategories() []core.ExpenseCategory {
	return []core.ExpenseCategory{
		{ID: "hrdcorp-levy", Name: "HRDCorp Levy", Type: core.ExpensePercentage, Rate: core.AmountOf(4)},
		{ID: "food-beverage", Name: "F&B", Type: core.ExpensePerPax, Rate: core.AmountOf(25)},
		{ID: "training-materials", Name: "Training Materials", Type: core.ExpensePerPax, Rate: core.AmountOf(15)},
		{ID: "venue", Name: "Venue Rental", Type: core.ExpenseFixed},
		{ID: "transport", Name: "Transport", Type: core.ExpenseFixed},
	}
}

// NewDemo returns a store seeded with reference data and one session ready
// to be costed.
func NewDemo(opts ...Option) *Store {
	s := New(opts...)
	s.SetCategories(DemoCategories())
	s.AddMarketingUser(finance.MarketingUser{ID: "mkt-aisyah", FullName: "Aisyah Rahman", Email: "aisyah@example.com", Role: "marketing"})
	s.AddMarketingUser(finance.MarketingUser{ID: "mkt-daniel", FullName: "Daniel Lee", Email: "daniel@example.com", Role: "sales"})

	participants := make([]string, 20)
	for i := range participants {
		participants[i] = uuid.NewString()
	}
	s.OpenSession(context.Background(), finance.CostingSnapshot{
		Session: finance.SessionInfo{
			ID:             DemoSessionID,
			Name:           "Defensive Driving Fundamentals",
			CompanyName:    "Acme Logistics Sdn Bhd",
			StartDate:      "2025-03-03",
			EndDate:        "2025-03-05",
			CoordinatorID:  "coord-farid",
			ParticipantIDs: participants,
			TrainerAssignments: []finance.TrainerAssignment{
				{TrainerID: "trainer-mei", TrainerName: "Tan Mei Ling", Role: "chief_trainer"},
				{TrainerID: "trainer-raj", TrainerName: "Rajesh Kumar", Role: "trainer"},
			},
		},
		Pax: len(participants),
	})
	return s
}
