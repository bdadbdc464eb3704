// Package memory is an in-process finance API. It follows the external
// system's rules for invoice numbering, status transitions and payments so
// the console can run and be tested without the real service.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"costing/internal/core"
	"costing/internal/finance"
)

type commission struct {
	InvoiceID string
	Amount    decimal.Decimal
	Status    string
}

// Store implements finance.API in memory. It is safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	sessions    map[string]*finance.CostingSnapshot
	categories  []core.ExpenseCategory
	users       []finance.MarketingUser
	invoices    map[string]*finance.Invoice
	payments    []finance.Payment
	creditNotes []finance.CreditNote
	audit       []finance.AuditEntry
	commissions map[string]commission // by session id
}

var _ finance.API = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		sessions:    make(map[string]*finance.CostingSnapshot),
		invoices:    make(map[string]*finance.Invoice),
		commissions: make(map[string]commission),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSession registers a session and its current costing.
func (s *Store) AddSession(snap finance.CostingSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneSnapshot(snap)
	s.sessions[snap.Session.ID] = &c
}

// SetCategories replaces the expense category reference data.
func (s *Store) SetCategories(cats []core.ExpenseCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]core.ExpenseCategory(nil), cats...)
}

// AddMarketingUser registers a marketing-eligible user.
func (s *Store) AddMarketingUser(u finance.MarketingUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
}

func (s *Store) GetCosting(_ context.Context, sessionID string) (finance.CostingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.sessions[sessionID]
	if !ok {
		return finance.CostingSnapshot{}, finance.NotFound("Session")
	}
	return cloneSnapshot(*snap), nil
}

func (s *Store) ListExpenseCategories(context.Context) ([]core.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.ExpenseCategory(nil), s.categories...), nil
}

func (s *Store) ListMarketingUsers(context.Context) ([]finance.MarketingUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]finance.MarketingUser(nil), s.users...), nil
}

func (s *Store) ListInvoices(_ context.Context, filter finance.InvoiceFilter) ([]finance.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]finance.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.SessionID != "" && inv.SessionID != filter.SessionID {
			continue
		}
		out = append(out, cloneInvoice(*inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].InvoiceNumber > out[j].InvoiceNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (finance.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return finance.Invoice{}, finance.NotFound("Invoice")
	}
	return cloneInvoice(*inv), nil
}

// CreateInvoice opens a draft invoice for a session that has none.
func (s *Store) CreateInvoice(ctx context.Context, p finance.InvoicePayload) (finance.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.sessions[p.SessionID]
	if !ok {
		return finance.Invoice{}, finance.NotFound("Session")
	}
	if err := checkPayload(p); err != nil {
		return finance.Invoice{}, err
	}
	for _, inv := range s.invoices {
		if inv.SessionID == p.SessionID && inv.Status != core.StatusCancelled {
			return finance.Invoice{}, finance.Rejected("Session already has an invoice")
		}
	}

	now := s.now()
	inv := &finance.Invoice{
		ID:            uuid.NewString(),
		InvoiceNumber: s.nextInvoiceNumber(now),
		SessionID:     p.SessionID,
		CompanyName:   snap.Session.CompanyName,
		ProgrammeName: snap.Session.Name,
		Pax:           snap.Pax,
		Status:        core.StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	applyPayload(inv, p)
	s.invoices[inv.ID] = inv
	s.syncSnapshotTotals(inv)

	s.record(ctx, "invoice", inv.ID, "created", nil, invoiceValues(inv), "")
	return cloneInvoice(*inv), nil
}

// UpdateInvoice replaces the terms of an invoice that is not yet issued.
func (s *Store) UpdateInvoice(ctx context.Context, id string, p finance.InvoicePayload) (finance.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return finance.Invoice{}, finance.NotFound("Invoice")
	}
	if !inv.Status.CanEdit() {
		return finance.Invoice{}, finance.Rejected("Cannot modify issued/paid invoice. Create a revision instead.")
	}
	if err := checkPayload(p); err != nil {
		return finance.Invoice{}, err
	}

	before := invoiceValues(inv)
	applyPayload(inv, p)
	inv.UpdatedAt = s.now()
	inv.Version++
	s.syncSnapshotTotals(inv)

	s.record(ctx, "invoice", id, "updated", before, invoiceValues(inv), "")
	return cloneInvoice(*inv), nil
}

func (s *Store) ApproveInvoice(ctx context.Context, id string) error {
	return s.transition(ctx, id, core.StatusApproved, "", func(inv *finance.Invoice) error {
		if !inv.Status.CanApprove() {
			return finance.Rejected("Invoice cannot be approved from current status")
		}
		return nil
	})
}

// IssueInvoice moves an approved invoice to issued and finalizes the
// session's marketing commission against the invoice total.
func (s *Store) IssueInvoice(ctx context.Context, id string) error {
	return s.transition(ctx, id, core.StatusIssued, "", func(inv *finance.Invoice) error {
		if !inv.Status.CanIssue() {
			return finance.Rejected("Only approved invoices can be issued")
		}
		s.finalizeCommission(inv)
		return nil
	})
}

func (s *Store) CancelInvoice(ctx context.Context, id, reason string) error {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, id, core.StatusCancelled, reason, func(inv *finance.Invoice) error {
		if reason == "" {
			return finance.Rejected("Cancellation reason is required")
		}
		if !inv.Status.CanCancel() {
			return finance.Rejected("Invoice cannot be cancelled from current status")
		}
		inv.CancellationReason = reason
		return nil
	})
}

func (s *Store) transition(ctx context.Context, id string, to core.InvoiceStatus, reason string, check func(*finance.Invoice) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return finance.NotFound("Invoice")
	}
	if err := check(inv); err != nil {
		return err
	}

	from := inv.Status
	inv.Status = to
	inv.UpdatedAt = s.now()

	after := map[string]any{"status": string(to)}
	if reason != "" {
		after["reason"] = reason
	}
	s.record(ctx, "invoice", id, "status_changed", map[string]any{"status": string(from)}, after, reason)
	return nil
}

func (s *Store) finalizeCommission(inv *finance.Invoice) {
	snap, ok := s.sessions[inv.SessionID]
	if !ok || snap.Marketing == nil || !snap.Marketing.Active() {
		return
	}
	m := snap.Marketing
	amount := m.FixedAmount.Decimal
	if m.CommissionType == core.CommissionPercentage {
		amount = inv.TotalAmount.Mul(m.CommissionRate.Decimal).Div(core.Hundred)
	}
	s.commissions[inv.SessionID] = commission{InvoiceID: inv.ID, Amount: amount, Status: "approved"}
}

// RecordPayment adds a payment to an issued invoice. Once payments cover the
// total the invoice becomes paid.
func (s *Store) RecordPayment(ctx context.Context, p core.PaymentRequest) (finance.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[p.InvoiceID]
	if !ok {
		return finance.Payment{}, finance.NotFound("Invoice")
	}
	if inv.Status != core.StatusIssued && inv.Status != core.StatusPaid {
		return finance.Payment{}, finance.Rejected("Can only record payments for issued invoices")
	}
	if !p.Amount.IsPositive() {
		return finance.Payment{}, finance.Rejected("Payment amount must be greater than zero")
	}

	method := p.Method
	if method == "" {
		method = core.MethodBankTransfer
	}
	pay := finance.Payment{
		ID:              uuid.NewString(),
		InvoiceID:       p.InvoiceID,
		Amount:          p.Amount,
		PaymentDate:     p.PaymentDate,
		Method:          method,
		ReferenceNumber: p.ReferenceNumber,
		Notes:           p.Notes,
		RecordedBy:      finance.ActorFrom(ctx),
		CreatedAt:       s.now(),
	}
	s.payments = append(s.payments, pay)

	paid := decimal.Zero
	for _, existing := range s.payments {
		if existing.InvoiceID == inv.ID {
			paid = paid.Add(existing.Amount)
		}
	}
	if paid.GreaterThanOrEqual(inv.TotalAmount) && inv.Status != core.StatusPaid {
		inv.Status = core.StatusPaid
		inv.UpdatedAt = s.now()
	}

	s.record(ctx, "payment", pay.ID, "created", nil, map[string]any{
		"invoice_id": pay.InvoiceID,
		"amount":     pay.Amount.String(),
		"method":     string(pay.Method),
	}, "")
	return pay, nil
}

func (s *Store) ListPayments(_ context.Context, invoiceID string) ([]finance.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []finance.Payment
	for i := len(s.payments) - 1; i >= 0; i-- {
		if invoiceID == "" || s.payments[i].InvoiceID == invoiceID {
			out = append(out, s.payments[i])
		}
	}
	return out, nil
}

// CreateCreditNote issues a credit of base × percentage / 100 against the
// session. The amount is recomputed here whatever the caller sent.
func (s *Store) CreateCreditNote(ctx context.Context, c core.CreditNoteRequest) (finance.CreditNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[c.SessionID]; !ok {
		return finance.CreditNote{}, finance.NotFound("Session")
	}
	if strings.TrimSpace(c.Reason) == "" {
		return finance.CreditNote{}, finance.Rejected("Credit note reason is required")
	}
	if !c.Percentage.IsPositive() || c.Percentage.GreaterThan(core.Hundred) {
		return finance.CreditNote{}, finance.Rejected("Percentage must be between 0 and 100")
	}
	if !c.BaseAmount.IsPositive() {
		return finance.CreditNote{}, finance.Rejected("Base amount must be greater than zero")
	}

	cn := finance.CreditNote{
		ID:          uuid.NewString(),
		SessionID:   c.SessionID,
		Reason:      strings.TrimSpace(c.Reason),
		Description: c.Description,
		Percentage:  c.Percentage,
		BaseAmount:  c.BaseAmount,
		Amount:      c.BaseAmount.Mul(c.Percentage).Div(core.Hundred),
		CreatedBy:   finance.ActorFrom(ctx),
		CreatedAt:   s.now(),
	}
	for _, inv := range s.invoices {
		if inv.SessionID == c.SessionID && inv.Status != core.StatusCancelled {
			cn.InvoiceID = inv.ID
			break
		}
	}
	s.creditNotes = append(s.creditNotes, cn)

	s.record(ctx, "credit_note", cn.ID, "created", nil, map[string]any{
		"session_id": cn.SessionID,
		"amount":     cn.Amount.String(),
	}, cn.Reason)
	return cn, nil
}

func (s *Store) ListCreditNotes(_ context.Context, sessionID string) ([]finance.CreditNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []finance.CreditNote
	for i := len(s.creditNotes) - 1; i >= 0; i-- {
		if sessionID == "" || s.creditNotes[i].SessionID == sessionID {
			out = append(out, s.creditNotes[i])
		}
	}
	return out, nil
}

func (s *Store) SaveTrainerFees(ctx context.Context, sessionID string, fees []core.TrainerFeeLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.sessions[sessionID]
	if !ok {
		return finance.NotFound("Session")
	}
	for _, f := range fees {
		if f.FeeAmount.IsNegative() {
			return finance.Rejected("Trainer fee cannot be negative")
		}
	}
	snap.TrainerFees = append([]core.TrainerFeeLine(nil), fees...)
	s.record(ctx, "trainer_fees", sessionID, "updated", nil, map[string]any{"count": len(fees)}, "")
	return nil
}

func (s *Store) SaveCoordinatorFee(ctx context.Context, sessionID string, fee finance.CoordinatorFeeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.sessions[sessionID]
	if !ok {
		return finance.NotFound("Session")
	}
	if fee.NumDays <= 0 {
		return finance.Rejected("Number of days must be at least 1")
	}
	if fee.DailyRate.IsNegative() {
		return finance.Rejected("Daily rate cannot be negative")
	}
	if fee.CoordinatorID != "" {
		snap.Session.CoordinatorID = fee.CoordinatorID
	}
	snap.CoordinatorFee = &core.CoordinatorFee{NumDays: fee.NumDays, DailyRate: fee.DailyRate}
	s.record(ctx, "coordinator_fee", sessionID, "updated", nil, map[string]any{
		"num_days":   fee.NumDays,
		"daily_rate": fee.DailyRate.String(),
	}, "")
	return nil
}

func (s *Store) SaveExpenses(ctx context.Context, sessionID string, lines []core.ExpenseLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.sessions[sessionID]
	if !ok {
		return finance.NotFound("Session")
	}
	for i, l := range lines {
		if l.Category == "" {
			return finance.Rejected(fmt.Sprintf("Expense %d has no category", i+1))
		}
	}
	snap.Expenses = append([]core.ExpenseLine(nil), lines...)
	s.record(ctx, "expenses", sessionID, "updated", nil, map[string]any{"count": len(lines)}, "")
	return nil
}

// SaveMarketing assigns the marketing party of a session, creating the
// person first when asked to.
func (s *Store) SaveMarketing(ctx context.Context, sessionID string, m core.MarketingCommission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.sessions[sessionID]
	if !ok {
		return finance.NotFound("Session")
	}
	if !m.CommissionType.IsValid() {
		return finance.Rejected("Invalid commission type")
	}

	if m.CreateNew && m.MarketingUserID == "" {
		name := strings.TrimSpace(m.FullName)
		idNumber := strings.TrimSpace(m.IDNumber)
		if name == "" || idNumber == "" {
			return finance.Rejected("Full name and ID number are required for a new marketing person")
		}
		u := finance.MarketingUser{ID: uuid.NewString(), FullName: name, Role: "marketing"}
		s.users = append(s.users, u)
		m.MarketingUserID = u.ID
	} else if !s.knownUser(m.MarketingUserID) {
		return finance.NotFound("Marketing user")
	}

	m.CreateNew = false
	m.FullName = ""
	m.IDNumber = ""
	snap.Marketing = &m

	s.record(ctx, "marketing", sessionID, "updated", nil, map[string]any{
		"marketing_user_id": m.MarketingUserID,
		"commission_type":   string(m.CommissionType),
	}, "")
	return nil
}

func (s *Store) knownUser(id string) bool {
	for _, u := range s.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) ListAudit(_ context.Context, filter finance.AuditFilter) ([]finance.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = finance.DefaultAuditLimit
	}

	var out []finance.AuditEntry
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.audit[i]
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Dashboard summarises invoices by status and the money still owed in both
// directions.
func (s *Store) Dashboard(context.Context) (finance.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum finance.DashboardSummary
	issued := decimal.Zero
	collected := decimal.Zero

	for _, inv := range s.invoices {
		sum.Invoices.Total++
		switch inv.Status {
		case core.StatusAutoDraft, core.StatusDraft, core.StatusFinanceReview:
			sum.Invoices.Draft++
		case core.StatusApproved:
			sum.Invoices.Approved++
		case core.StatusIssued:
			sum.Invoices.Issued++
			issued = issued.Add(inv.TotalAmount)
		case core.StatusPaid:
			sum.Invoices.Paid++
			issued = issued.Add(inv.TotalAmount)
			collected = collected.Add(inv.TotalAmount)
		}
	}

	payables := decimal.Zero
	for _, snap := range s.sessions {
		for _, f := range snap.TrainerFees {
			payables = payables.Add(f.FeeAmount.Decimal)
		}
		if snap.CoordinatorFee != nil && snap.Session.CoordinatorID != "" {
			payables = payables.Add(snap.CoordinatorFee.Total())
		}
	}
	for _, c := range s.commissions {
		payables = payables.Add(c.Amount)
	}

	sum.Financials = finance.Financials{
		TotalIssued:            issued,
		TotalCollected:         collected,
		OutstandingReceivables: issued.Sub(collected),
	}
	sum.Payables.PendingTotal = payables
	return sum, nil
}

// nextInvoiceNumber returns INV-YYYY-NNNN, one past the highest number used
// this year. Callers hold the write lock.
func (s *Store) nextInvoiceNumber(now time.Time) string {
	prefix := fmt.Sprintf("INV-%d-", now.Year())
	last := 0
	for _, inv := range s.invoices {
		if !strings.HasPrefix(inv.InvoiceNumber, prefix) {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(strings.TrimPrefix(inv.InvoiceNumber, prefix), "%d", &n); err == nil && n > last {
			last = n
		}
	}
	return fmt.Sprintf("%s%04d", prefix, last+1)
}

func (s *Store) syncSnapshotTotals(inv *finance.Invoice) {
	if snap, ok := s.sessions[inv.SessionID]; ok {
		snap.InvoiceTotal = core.NewAmount(inv.TotalAmount)
		snap.LessTax = core.NewAmount(inv.TaxAmount)
	}
}

func (s *Store) record(ctx context.Context, entityType, entityID, action string, before, after map[string]any, reason string) {
	s.audit = append(s.audit, finance.AuditEntry{
		ID:          uuid.NewString(),
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		BeforeValue: before,
		AfterValue:  after,
		ChangedBy:   finance.ActorFrom(ctx),
		Reason:      reason,
		Timestamp:   s.now(),
	})
}

func checkPayload(p finance.InvoicePayload) error {
	if !finance.LineItemsTotal(p.LineItems).Equal(p.Subtotal) {
		return finance.Rejected("Subtotal does not match line items")
	}
	return nil
}

func applyPayload(inv *finance.Invoice, p finance.InvoicePayload) {
	inv.PricingType = p.PricingType
	inv.LineItems = append([]finance.LineItem(nil), p.LineItems...)
	inv.Subtotal = p.Subtotal
	inv.TaxRate = p.TaxRate
	inv.TaxAmount = p.TaxAmount
	inv.TotalAmount = p.TotalAmount
}

func invoiceValues(inv *finance.Invoice) map[string]any {
	return map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"status":         string(inv.Status),
		"subtotal":       inv.Subtotal.String(),
		"tax_amount":     inv.TaxAmount.String(),
		"total_amount":   inv.TotalAmount.String(),
	}
}

func cloneInvoice(inv finance.Invoice) finance.Invoice {
	inv.LineItems = append([]finance.LineItem(nil), inv.LineItems...)
	return inv
}

func cloneSnapshot(snap finance.CostingSnapshot) finance.CostingSnapshot {
	snap.TrainerFees = append([]core.TrainerFeeLine(nil), snap.TrainerFees...)
	snap.Expenses = append([]core.ExpenseLine(nil), snap.Expenses...)
	snap.Session.ParticipantIDs = append([]string(nil), snap.Session.ParticipantIDs...)
	snap.Session.TrainerAssignments = append([]finance.TrainerAssignment(nil), snap.Session.TrainerAssignments...)
	if snap.CoordinatorFee != nil {
		fee := *snap.CoordinatorFee
		snap.CoordinatorFee = &fee
	}
	if snap.Marketing != nil {
		m := *snap.Marketing
		snap.Marketing = &m
	}
	return snap
}
