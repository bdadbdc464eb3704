package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"costing/internal/core"
	"costing/internal/finance"
	"costing/internal/log"
)

var ErrActionNotAllowed = errors.New("unsupported invoice action")

type (
	// DashboardView is the finance dashboard: summary, invoice list and the
	// side lists the console shows in its tabs.
	DashboardView struct {
		Summary         finance.DashboardSummary `json:"summary"`
		Invoices        []InvoiceRow             `json:"invoices"`
		PendingInvoices []InvoiceRow             `json:"pending_invoices"`
		CreditNotes     []finance.CreditNote     `json:"credit_notes"`
		Payments        []finance.Payment        `json:"payments"`
		Audit           []finance.AuditEntry     `json:"audit"`
		Warnings        []string                 `json:"warnings,omitempty"`
	}

	// InvoiceRow is an invoice with the actions its status offers.
	InvoiceRow struct {
		finance.Invoice
		Actions []core.InvoiceAction `json:"actions"`
	}
)

// ConsoleService runs the finance dashboard: invoice lifecycle actions,
// payments and credit notes. Status rules are enforced by the finance API;
// its rejections are returned unchanged.
type ConsoleService struct {
	api    finance.API
	logger *log.Logger
	events *log.StructuredLogger
	now    func() time.Time
}

func NewConsoleService(api finance.API, logger *log.Logger) *ConsoleService {
	logger = log.OrDiscard(logger).WithComponent(log.ComponentConsole)
	return &ConsoleService{
		api:    api,
		logger: logger,
		events: log.NewStructuredLogger(logger),
		now:    time.Now,
	}
}

// Dashboard loads the dashboard in parallel. The invoice list is required;
// every other part degrades to empty with a warning.
func (s *ConsoleService) Dashboard(ctx context.Context, status core.InvoiceStatus) (DashboardView, error) {
	var (
		view     DashboardView
		warnMu   sync.Mutex
		warnings []string
	)
	warn := func(what string, err error) {
		s.logger.WarnContext(ctx, "Optional dashboard data unavailable",
			log.FieldOperation, log.OpLoad, "resource", what, log.FieldError, err)
		warnMu.Lock()
		warnings = append(warnings, fmt.Sprintf("%s unavailable: %s", what, finance.Detail(err)))
		warnMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		invoices, err := s.api.ListInvoices(gctx, finance.InvoiceFilter{Status: status})
		if err != nil {
			return fmt.Errorf("list invoices: %w", err)
		}
		view.Invoices = invoiceRows(invoices)
		return nil
	})
	g.Go(func() error {
		summary, err := s.api.Dashboard(gctx)
		if err != nil {
			warn("summary", err)
			return nil
		}
		view.Summary = summary
		return nil
	})
	g.Go(func() error {
		pending, err := s.api.ListInvoices(gctx, finance.InvoiceFilter{Status: core.StatusFinanceReview})
		if err != nil {
			warn("pending invoices", err)
		}
		view.PendingInvoices = invoiceRows(pending)
		return nil
	})
	g.Go(func() error {
		notes, err := s.api.ListCreditNotes(gctx, "")
		if err != nil {
			warn("credit notes", err)
			notes = []finance.CreditNote{}
		}
		view.CreditNotes = notes
		return nil
	})
	g.Go(func() error {
		payments, err := s.api.ListPayments(gctx, "")
		if err != nil {
			warn("payments", err)
			payments = []finance.Payment{}
		}
		view.Payments = payments
		return nil
	})
	g.Go(func() error {
		entries, err := s.api.ListAudit(gctx, finance.AuditFilter{Limit: 50})
		if err != nil {
			warn("audit log", err)
			entries = []finance.AuditEntry{}
		}
		view.Audit = entries
		return nil
	})
	if err := g.Wait(); err != nil {
		s.events.LogError(ctx, "Failed to load dashboard", err, log.ComponentConsole, log.OpLoad, nil)
		return DashboardView{}, err
	}

	view.Warnings = warnings
	return view, nil
}

// Act runs a lifecycle action on an invoice. Only cancel needs input: a
// non-blank reason, checked before anything is sent.
func (s *ConsoleService) Act(ctx context.Context, invoiceID string, action core.InvoiceAction, reason string) error {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return core.ErrMissingInvoice
	}

	var err error
	switch action {
	case core.ActionApprove:
		err = s.api.ApproveInvoice(ctx, invoiceID)
	case core.ActionIssue:
		err = s.api.IssueInvoice(ctx, invoiceID)
	case core.ActionCancel:
		r, rerr := core.CancelReason(reason)
		if rerr != nil {
			return rerr
		}
		err = s.api.CancelInvoice(ctx, invoiceID, r)
	default:
		return fmt.Errorf("%w: %q", ErrActionNotAllowed, action)
	}

	fields := log.NewFields().WithInvoice(invoiceID)
	fields[log.FieldAction] = string(action)
	if err != nil {
		s.events.LogError(ctx, "Invoice action rejected", err, log.ComponentConsole, log.OpAction, fields)
		return fmt.Errorf("%s invoice: %w", action, err)
	}
	s.logger.InfoContext(ctx, "Invoice action applied", fields.ToSlice()...)
	return nil
}

// RecordPayment validates and submits a payment.
func (s *ConsoleService) RecordPayment(ctx context.Context, in core.PaymentInput) (finance.Payment, error) {
	req, err := in.Parse(s.now())
	if err != nil {
		return finance.Payment{}, err
	}
	pay, err := s.api.RecordPayment(ctx, req)
	if err != nil {
		s.events.LogError(ctx, "Payment rejected", err, log.ComponentConsole, log.OpPayment,
			log.NewFields().WithInvoice(req.InvoiceID))
		return finance.Payment{}, fmt.Errorf("record payment: %w", err)
	}
	s.logger.InfoContext(ctx, "Payment recorded",
		log.FieldInvoiceID, req.InvoiceID, "amount", req.Amount.StringFixed(2))
	return pay, nil
}

// CreateCreditNote validates and submits a credit note.
func (s *ConsoleService) CreateCreditNote(ctx context.Context, in core.CreditNoteInput) (finance.CreditNote, error) {
	req, err := in.Parse()
	if err != nil {
		return finance.CreditNote{}, err
	}
	cn, err := s.api.CreateCreditNote(ctx, req)
	if err != nil {
		s.events.LogError(ctx, "Credit note rejected", err, log.ComponentConsole, log.OpCredit,
			log.NewFields().WithSession(req.SessionID))
		return finance.CreditNote{}, fmt.Errorf("create credit note: %w", err)
	}
	s.logger.InfoContext(ctx, "Credit note created",
		log.FieldSessionID, req.SessionID, "amount", cn.Amount.StringFixed(2))
	return cn, nil
}

func (s *ConsoleService) Invoice(ctx context.Context, id string) (InvoiceRow, error) {
	inv, err := s.api.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceRow{}, fmt.Errorf("get invoice: %w", err)
	}
	return InvoiceRow{Invoice: inv, Actions: actionsOf(inv.Status)}, nil
}

func (s *ConsoleService) Payments(ctx context.Context, invoiceID string) ([]finance.Payment, error) {
	return s.api.ListPayments(ctx, invoiceID)
}

func (s *ConsoleService) CreditNotes(ctx context.Context, sessionID string) ([]finance.CreditNote, error) {
	return s.api.ListCreditNotes(ctx, sessionID)
}

func (s *ConsoleService) Audit(ctx context.Context, filter finance.AuditFilter) ([]finance.AuditEntry, error) {
	return s.api.ListAudit(ctx, filter)
}

func invoiceRows(invoices []finance.Invoice) []InvoiceRow {
	rows := make([]InvoiceRow, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, InvoiceRow{Invoice: inv, Actions: actionsOf(inv.Status)})
	}
	return rows
}

func actionsOf(status core.InvoiceStatus) []core.InvoiceAction {
	actions := status.Actions()
	if actions == nil {
		return []core.InvoiceAction{}
	}
	return actions
}
