// Package finance describes the external finance API the console depends on.
// It owns invoices, payments, credit notes and the persisted costing of every
// session; this module only reads and submits through these ports.
package finance

import (
	"context"

	"costing/internal/core"
)

// Ports for outbound adapters.
type (
	CostingReader interface {
		GetCosting(ctx context.Context, sessionID string) (CostingSnapshot, error)
	}

	CategoryReader interface {
		ListExpenseCategories(ctx context.Context) ([]core.ExpenseCategory, error)
	}

	MarketingUserReader interface {
		ListMarketingUsers(ctx context.Context) ([]MarketingUser, error)
	}

	InvoiceStore interface {
		ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
		GetInvoice(ctx context.Context, id string) (Invoice, error)
		CreateInvoice(ctx context.Context, p InvoicePayload) (Invoice, error)
		UpdateInvoice(ctx context.Context, id string, p InvoicePayload) (Invoice, error)
	}

	// CostingWriter replaces the per-session costing resources. Each call is
	// an independent upsert.
	CostingWriter interface {
		SaveTrainerFees(ctx context.Context, sessionID string, fees []core.TrainerFeeLine) error
		SaveCoordinatorFee(ctx context.Context, sessionID string, fee CoordinatorFeeRequest) error
		SaveExpenses(ctx context.Context, sessionID string, lines []core.ExpenseLine) error
		SaveMarketing(ctx context.Context, sessionID string, m core.MarketingCommission) error
	}

	InvoiceLifecycle interface {
		ApproveInvoice(ctx context.Context, id string) error
		IssueInvoice(ctx context.Context, id string) error
		CancelInvoice(ctx context.Context, id, reason string) error
	}

	PaymentStore interface {
		RecordPayment(ctx context.Context, p core.PaymentRequest) (Payment, error)
		// ListPayments returns every payment, or only those of invoiceID when set.
		ListPayments(ctx context.Context, invoiceID string) ([]Payment, error)
	}

	CreditNoteStore interface {
		CreateCreditNote(ctx context.Context, c core.CreditNoteRequest) (CreditNote, error)
		ListCreditNotes(ctx context.Context, sessionID string) ([]CreditNote, error)
	}

	AuditReader interface {
		ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
	}

	DashboardReader interface {
		Dashboard(ctx context.Context) (DashboardSummary, error)
	}

	// API is everything the console needs from the finance system.
	API interface {
		CostingReader
		CategoryReader
		MarketingUserReader
		InvoiceStore
		CostingWriter
		InvoiceLifecycle
		PaymentStore
		CreditNoteStore
		AuditReader
		DashboardReader
	}
)
