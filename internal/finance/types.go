package finance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"costing/internal/core"
)

type (
	// TrainerAssignment is a trainer scheduled on a session.
	TrainerAssignment struct {
		TrainerID   string `json:"trainer_id"`
		TrainerName string `json:"trainer_name"`
		Role        string `json:"role"`
	}

	// SessionInfo is the slice of the training session the costing needs.
	SessionInfo struct {
		ID                 string              `json:"id"`
		Name               string              `json:"name"`
		CompanyName        string              `json:"company_name,omitempty"`
		StartDate          string              `json:"start_date"`
		EndDate            string              `json:"end_date"`
		CoordinatorID      string              `json:"coordinator_id,omitempty"`
		ParticipantIDs     []string            `json:"participant_ids,omitempty"`
		TrainerAssignments []TrainerAssignment `json:"trainer_assignments,omitempty"`
	}

	// CostingSnapshot is the persisted costing of a session as the finance
	// API returns it. Nil fee and marketing entries mean none was saved yet.
	CostingSnapshot struct {
		Session        SessionInfo               `json:"session"`
		Pax            int                       `json:"pax"`
		Headcount      core.HeadcountInputs      `json:"headcount"`
		InvoiceTotal   core.Amount               `json:"invoice_total"`
		LessTax        core.Amount               `json:"less_tax"`
		TrainerFees    []core.TrainerFeeLine     `json:"trainer_fees"`
		CoordinatorFee *core.CoordinatorFee      `json:"coordinator_fee"`
		Expenses       []core.ExpenseLine        `json:"expenses"`
		Marketing      *core.MarketingCommission `json:"marketing"`
	}

	LineItem struct {
		Description string          `json:"description"`
		Quantity    int             `json:"quantity"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
		Amount      decimal.Decimal `json:"amount"`
	}

	Invoice struct {
		ID                 string             `json:"id"`
		InvoiceNumber      string             `json:"invoice_number"`
		SessionID          string             `json:"session_id"`
		CompanyName        string             `json:"company_name,omitempty"`
		ProgrammeName      string             `json:"programme_name,omitempty"`
		Pax                int                `json:"pax"`
		PricingType        core.PricingType   `json:"pricing_type,omitempty"`
		LineItems          []LineItem         `json:"line_items"`
		Subtotal           decimal.Decimal    `json:"subtotal"`
		TaxRate            decimal.Decimal    `json:"tax_rate"`
		TaxAmount          decimal.Decimal    `json:"tax_amount"`
		TotalAmount        decimal.Decimal    `json:"total_amount"`
		Status             core.InvoiceStatus `json:"status"`
		CancellationReason string             `json:"cancellation_reason,omitempty"`
		CreatedAt          time.Time          `json:"created_at"`
		UpdatedAt          time.Time          `json:"updated_at"`
		Version            int                `json:"version"`
	}

	// InvoicePayload is the body of an invoice create or update.
	InvoicePayload struct {
		SessionID   string           `json:"session_id"`
		PricingType core.PricingType `json:"pricing_type"`
		LineItems   []LineItem       `json:"line_items"`
		Subtotal    decimal.Decimal  `json:"subtotal"`
		TaxRate     decimal.Decimal  `json:"tax_rate"`
		TaxAmount   decimal.Decimal  `json:"tax_amount"`
		TotalAmount decimal.Decimal  `json:"total_amount"`
	}

	InvoiceFilter struct {
		Status    core.InvoiceStatus
		SessionID string
	}

	CoordinatorFeeRequest struct {
		CoordinatorID string      `json:"coordinator_id"`
		NumDays       int         `json:"num_days"`
		DailyRate     core.Amount `json:"daily_rate"`
	}

	MarketingUser struct {
		ID       string `json:"id"`
		FullName string `json:"full_name"`
		Email    string `json:"email,omitempty"`
		Role     string `json:"role,omitempty"`
	}

	Payment struct {
		ID              string             `json:"id"`
		InvoiceID       string             `json:"invoice_id"`
		Amount          decimal.Decimal    `json:"amount"`
		PaymentDate     string             `json:"payment_date"`
		Method          core.PaymentMethod `json:"payment_method"`
		ReferenceNumber string             `json:"reference_number,omitempty"`
		Notes           string             `json:"notes,omitempty"`
		RecordedBy      string             `json:"recorded_by,omitempty"`
		CreatedAt       time.Time          `json:"created_at"`
	}

	CreditNote struct {
		ID          string          `json:"id"`
		SessionID   string          `json:"session_id"`
		InvoiceID   string          `json:"invoice_id,omitempty"`
		Reason      string          `json:"reason"`
		Description string          `json:"description,omitempty"`
		Percentage  decimal.Decimal `json:"percentage"`
		BaseAmount  decimal.Decimal `json:"base_amount"`
		Amount      decimal.Decimal `json:"amount"`
		CreatedBy   string          `json:"created_by,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	AuditEntry struct {
		ID          string         `json:"id"`
		EntityType  string         `json:"entity_type"`
		EntityID    string         `json:"entity_id"`
		Action      string         `json:"action"`
		BeforeValue map[string]any `json:"before_value,omitempty"`
		AfterValue  map[string]any `json:"after_value,omitempty"`
		ChangedBy   string         `json:"changed_by"`
		Reason      string         `json:"reason,omitempty"`
		Timestamp   time.Time      `json:"timestamp"`
	}

	AuditFilter struct {
		EntityType string
		EntityID   string
		Limit      int
	}

	InvoiceCounts struct {
		Total    int `json:"total"`
		Draft    int `json:"draft"`
		Approved int `json:"approved"`
		Issued   int `json:"issued"`
		Paid     int `json:"paid"`
	}

	Financials struct {
		TotalIssued            decimal.Decimal `json:"total_issued"`
		TotalCollected         decimal.Decimal `json:"total_collected"`
		OutstandingReceivables decimal.Decimal `json:"outstanding_receivables"`
	}

	Payables struct {
		PendingTotal decimal.Decimal `json:"pending_total"`
	}

	DashboardSummary struct {
		Invoices   InvoiceCounts `json:"invoices"`
		Financials Financials    `json:"financials"`
		Payables   Payables      `json:"payables"`
	}
)

// DefaultAuditLimit caps audit queries that do not set a limit.
const DefaultAuditLimit = 100

// FindSessionInvoice returns the first non-cancelled invoice of a session.
func FindSessionInvoice(invoices []Invoice, sessionID string) (Invoice, bool) {
	for _, inv := range invoices {
		if inv.SessionID == sessionID && inv.Status != core.StatusCancelled {
			return inv, true
		}
	}
	return Invoice{}, false
}

// ActorHeader names the acting user on console requests and on calls to
// the finance API.
const ActorHeader = "X-Actor"

// SystemActor is recorded when no user is known.
const SystemActor = "system"

type actorKey struct{}

// WithActor records who is acting on the finance API for audit purposes.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor, or SystemActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SystemActor
}
