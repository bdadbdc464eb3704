package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"costing/internal/core"
	"costing/internal/finance"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newSessionStore(t *testing.T) (*Store, finance.Invoice) {
	t.Helper()
	s := New(WithClock(fixedClock()))
	s.SetCategories(DemoCategories())
	s.AddMarketingUser(finance.MarketingUser{ID: "mkt-1", FullName: "Aisyah"})
	inv := s.OpenSession(context.Background(), finance.CostingSnapshot{
		Session: finance.SessionInfo{ID: "s1", CoordinatorID: "c1"},
		Pax:     20,
	})
	return s, inv
}

func lumpsum(total int64) finance.InvoicePayload {
	return finance.NewInvoicePayload("s1", core.InvoiceTerms{
		PricingType:   core.PricingLumpsum,
		LumpsumAmount: core.AmountOf(total),
		TaxRate:       core.AmountOf(6),
	}, 20)
}

func detail(t *testing.T, err error) string {
	t.Helper()
	var apiErr *finance.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	return apiErr.Detail
}

func TestInvoiceNumbering(t *testing.T) {
	s, first := newSessionStore(t)
	if first.InvoiceNumber != "INV-2025-0001" || first.Status != core.StatusAutoDraft {
		t.Fatalf("first invoice = %s %s", first.InvoiceNumber, first.Status)
	}

	s.AddSession(finance.CostingSnapshot{Session: finance.SessionInfo{ID: "s2"}})
	second, err := s.CreateInvoice(context.Background(), finance.InvoicePayload{SessionID: "s2"})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if second.InvoiceNumber != "INV-2025-0002" || second.Status != core.StatusDraft {
		t.Fatalf("second invoice = %s %s", second.InvoiceNumber, second.Status)
	}

	if _, err := s.CreateInvoice(context.Background(), finance.InvoicePayload{SessionID: "s2"}); err == nil {
		t.Fatalf("duplicate invoice should be rejected")
	}
	if _, err := s.CreateInvoice(context.Background(), finance.InvoicePayload{SessionID: "missing"}); !errors.Is(err, finance.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInvoicePayloadMustMatchLineItems(t *testing.T) {
	s, inv := newSessionStore(t)
	s.AddSession(finance.CostingSnapshot{Session: finance.SessionInfo{ID: "s2"}})

	bad := lumpsum(8000)
	bad.Subtotal = decimal.NewFromInt(7000)
	if _, err := s.UpdateInvoice(context.Background(), inv.ID, bad); detail(t, err) != "Subtotal does not match line items" {
		t.Fatalf("update with mismatched subtotal: %v", err)
	}
	bad.SessionID = "s2"
	if _, err := s.CreateInvoice(context.Background(), bad); detail(t, err) != "Subtotal does not match line items" {
		t.Fatalf("create with mismatched subtotal: %v", err)
	}
	if _, err := s.UpdateInvoice(context.Background(), inv.ID, lumpsum(8000)); err != nil {
		t.Fatalf("matching payload rejected: %v", err)
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	ctx := finance.WithActor(context.Background(), "finance-amy")
	s, inv := newSessionStore(t)

	if _, err := s.UpdateInvoice(ctx, inv.ID, lumpsum(8000)); err != nil {
		t.Fatalf("UpdateInvoice: %v", err)
	}
	if got := detail(t, s.IssueInvoice(ctx, inv.ID)); got != "Only approved invoices can be issued" {
		t.Fatalf("issue from draft: %q", got)
	}
	if err := s.ApproveInvoice(ctx, inv.ID); err != nil {
		t.Fatalf("ApproveInvoice: %v", err)
	}
	if got := detail(t, s.ApproveInvoice(ctx, inv.ID)); got != "Invoice cannot be approved from current status" {
		t.Fatalf("double approve: %q", got)
	}

	_, err := s.RecordPayment(ctx, core.PaymentRequest{InvoiceID: inv.ID, Amount: decimal.NewFromInt(10)})
	if got := detail(t, err); got != "Can only record payments for issued invoices" {
		t.Fatalf("payment on approved: %q", got)
	}

	if err := s.IssueInvoice(ctx, inv.ID); err != nil {
		t.Fatalf("IssueInvoice: %v", err)
	}
	if _, err := s.UpdateInvoice(ctx, inv.ID, lumpsum(9000)); err == nil {
		t.Fatalf("issued invoice should not be editable")
	}

	if _, err := s.RecordPayment(ctx, core.PaymentRequest{InvoiceID: inv.ID, Amount: decimal.NewFromInt(5000), PaymentDate: "2025-03-10"}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	got, _ := s.GetInvoice(ctx, inv.ID)
	if got.Status != core.StatusIssued {
		t.Fatalf("partial payment status = %s", got.Status)
	}

	pay, err := s.RecordPayment(ctx, core.PaymentRequest{InvoiceID: inv.ID, Amount: decimal.NewFromInt(3000)})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if pay.Method != core.MethodBankTransfer || pay.RecordedBy != "finance-amy" {
		t.Errorf("payment = %+v", pay)
	}
	got, _ = s.GetInvoice(ctx, inv.ID)
	if got.Status != core.StatusPaid {
		t.Fatalf("full payment status = %s", got.Status)
	}

	if got := detail(t, s.CancelInvoice(ctx, inv.ID, "too late")); got != "Invoice cannot be cancelled from current status" {
		t.Fatalf("cancel paid: %q", got)
	}

	payments, _ := s.ListPayments(ctx, inv.ID)
	if len(payments) != 2 || !payments[0].Amount.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("payments newest first: %+v", payments)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	s, inv := newSessionStore(t)
	ctx := context.Background()

	if got := detail(t, s.CancelInvoice(ctx, inv.ID, "  ")); got != "Cancellation reason is required" {
		t.Fatalf("blank reason: %q", got)
	}
	if err := s.CancelInvoice(ctx, inv.ID, "duplicate booking"); err != nil {
		t.Fatalf("CancelInvoice: %v", err)
	}
	got, _ := s.GetInvoice(ctx, inv.ID)
	if got.Status != core.StatusCancelled || got.CancellationReason != "duplicate booking" {
		t.Fatalf("invoice = %+v", got)
	}

	entries, _ := s.ListAudit(ctx, finance.AuditFilter{EntityID: inv.ID})
	if len(entries) == 0 || entries[0].Action != "status_changed" || entries[0].Reason != "duplicate booking" {
		t.Fatalf("latest audit entry = %+v", entries)
	}
}

func TestIssueFinalizesCommission(t *testing.T) {
	ctx := context.Background()
	s, inv := newSessionStore(t)

	if err := s.SaveMarketing(ctx, "s1", core.MarketingCommission{
		MarketingUserID: "mkt-1",
		CommissionType:  core.CommissionPercentage,
		CommissionRate:  core.AmountOf(10),
	}); err != nil {
		t.Fatalf("SaveMarketing: %v", err)
	}
	s.UpdateInvoice(ctx, inv.ID, lumpsum(8000))
	s.ApproveInvoice(ctx, inv.ID)
	if err := s.IssueInvoice(ctx, inv.ID); err != nil {
		t.Fatalf("IssueInvoice: %v", err)
	}

	dash, _ := s.Dashboard(ctx)
	if !dash.Payables.PendingTotal.Equal(decimal.NewFromInt(800)) {
		t.Errorf("payables = %s, want 800", dash.Payables.PendingTotal)
	}
	if dash.Invoices.Issued != 1 || !dash.Financials.OutstandingReceivables.Equal(decimal.NewFromInt(8000)) {
		t.Errorf("dashboard = %+v", dash)
	}
}

func TestSaveMarketingCreatesPerson(t *testing.T) {
	ctx := context.Background()
	s, _ := newSessionStore(t)

	err := s.SaveMarketing(ctx, "s1", core.MarketingCommission{CreateNew: true, CommissionType: core.CommissionFixed, FullName: "New Person"})
	if err == nil {
		t.Fatalf("missing id number should be rejected")
	}

	err = s.SaveMarketing(ctx, "s1", core.MarketingCommission{
		CreateNew:      true,
		CommissionType: core.CommissionFixed,
		FixedAmount:    core.AmountOf(300),
		FullName:       "New Person",
		IDNumber:       "900101-14-5555",
	})
	if err != nil {
		t.Fatalf("SaveMarketing: %v", err)
	}

	snap, _ := s.GetCosting(ctx, "s1")
	if snap.Marketing == nil || snap.Marketing.MarketingUserID == "" || snap.Marketing.CreateNew {
		t.Fatalf("marketing = %+v", snap.Marketing)
	}
	users, _ := s.ListMarketingUsers(ctx)
	if len(users) != 2 {
		t.Fatalf("expected new user to be listed, got %d", len(users))
	}

	if err := s.SaveMarketing(ctx, "s1", core.MarketingCommission{MarketingUserID: "ghost", CommissionType: core.CommissionFixed}); !errors.Is(err, finance.ErrNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestCostingWrites(t *testing.T) {
	ctx := context.Background()
	s, inv := newSessionStore(t)

	if err := s.SaveTrainerFees(ctx, "s1", []core.TrainerFeeLine{{TrainerID: "t1", FeeAmount: core.AmountOf(1200)}}); err != nil {
		t.Fatalf("SaveTrainerFees: %v", err)
	}
	if err := s.SaveCoordinatorFee(ctx, "s1", finance.CoordinatorFeeRequest{CoordinatorID: "c1", NumDays: 0}); err == nil {
		t.Fatalf("zero days should be rejected")
	}
	if err := s.SaveCoordinatorFee(ctx, "s1", finance.CoordinatorFeeRequest{CoordinatorID: "c1", NumDays: 3, DailyRate: core.AmountOf(50)}); err != nil {
		t.Fatalf("SaveCoordinatorFee: %v", err)
	}
	if err := s.SaveExpenses(ctx, "s1", []core.ExpenseLine{{Description: "no category"}}); err == nil {
		t.Fatalf("expense without category should be rejected")
	}
	if err := s.SaveExpenses(ctx, "s1", []core.ExpenseLine{{Category: "venue", EstimatedAmount: core.AmountOf(320)}}); err != nil {
		t.Fatalf("SaveExpenses: %v", err)
	}
	s.UpdateInvoice(ctx, inv.ID, lumpsum(8000))

	snap, err := s.GetCosting(ctx, "s1")
	if err != nil {
		t.Fatalf("GetCosting: %v", err)
	}
	if len(snap.TrainerFees) != 1 || snap.CoordinatorFee == nil || snap.CoordinatorFee.NumDays != 3 || len(snap.Expenses) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.InvoiceTotal.String() != "8000" || snap.LessTax.String() != "480" {
		t.Fatalf("invoice totals = %s / %s", snap.InvoiceTotal, snap.LessTax)
	}

	snap.TrainerFees[0].FeeAmount = core.AmountOf(1)
	again, _ := s.GetCosting(ctx, "s1")
	if again.TrainerFees[0].FeeAmount.String() != "1200" {
		t.Fatalf("snapshot shares memory with the store")
	}

	if err := s.SaveExpenses(ctx, "nope", nil); !errors.Is(err, finance.ErrNotFound) {
		t.Fatalf("unknown session: %v", err)
	}
}

func TestCreditNotes(t *testing.T) {
	ctx := context.Background()
	s, inv := newSessionStore(t)

	tests := []struct {
		name    string
		req     core.CreditNoteRequest
		wantErr bool
	}{
		{"no reason", core.CreditNoteRequest{SessionID: "s1", Percentage: decimal.NewFromInt(10), BaseAmount: decimal.NewFromInt(100)}, true},
		{"over 100", core.CreditNoteRequest{SessionID: "s1", Reason: "r", Percentage: decimal.NewFromInt(101), BaseAmount: decimal.NewFromInt(100)}, true},
		{"zero base", core.CreditNoteRequest{SessionID: "s1", Reason: "r", Percentage: decimal.NewFromInt(10)}, true},
		{"ok", core.CreditNoteRequest{SessionID: "s1", Reason: "short delivery", Percentage: decimal.NewFromInt(25), BaseAmount: decimal.NewFromInt(8000)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cn, err := s.CreateCreditNote(ctx, tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if !cn.Amount.Equal(decimal.NewFromInt(2000)) || cn.InvoiceID != inv.ID {
					t.Errorf("credit note = %+v", cn)
				}
			}
		})
	}

	notes, _ := s.ListCreditNotes(ctx, "s1")
	if len(notes) != 1 {
		t.Fatalf("credit notes = %d", len(notes))
	}
}

func TestListInvoicesFilter(t *testing.T) {
	ctx := context.Background()
	s, inv := newSessionStore(t)
	s.AddSession(finance.CostingSnapshot{Session: finance.SessionInfo{ID: "s2"}})
	s.CreateInvoice(ctx, finance.InvoicePayload{SessionID: "s2"})
	s.ApproveInvoice(ctx, inv.ID)

	all, _ := s.ListInvoices(ctx, finance.InvoiceFilter{})
	if len(all) != 2 || all[0].SessionID != "s2" {
		t.Fatalf("invoices newest first: %+v", all)
	}
	approved, _ := s.ListInvoices(ctx, finance.InvoiceFilter{Status: core.StatusApproved})
	if len(approved) != 1 || approved[0].ID != inv.ID {
		t.Fatalf("approved = %+v", approved)
	}
}

func TestAuditLimit(t *testing.T) {
	ctx := context.Background()
	s, inv := newSessionStore(t)
	for i := 0; i < 5; i++ {
		s.UpdateInvoice(ctx, inv.ID, lumpsum(int64(1000+i)))
	}

	entries, _ := s.ListAudit(ctx, finance.AuditFilter{EntityType: "invoice", Limit: 3})
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].ChangedBy != "system" || entries[0].Action != "updated" {
		t.Errorf("latest entry = %+v", entries[0])
	}
}

func TestNewDemo(t *testing.T) {
	s := NewDemo()
	snap, err := s.GetCosting(context.Background(), "demo-session")
	if err != nil {
		t.Fatalf("GetCosting: %v", err)
	}
	if snap.Pax != 20 || len(snap.Session.TrainerAssignments) != 2 {
		t.Errorf("demo session = %+v", snap.Session)
	}
	invoices, _ := s.ListInvoices(context.Background(), finance.InvoiceFilter{SessionID: "demo-session"})
	if len(invoices) != 1 || invoices[0].Status != core.StatusAutoDraft {
		t.Errorf("demo invoices = %+v", invoices)
	}
}
