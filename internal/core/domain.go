package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	PricingLumpsum PricingType = "lumpsum"
	PricingPerPax  PricingType = "per_pax"
)

const (
	ExpenseFixed      ExpenseType = "fixed"
	ExpensePercentage ExpenseType = "percentage"
	ExpensePerPax     ExpenseType = "per_pax"
)

const (
	CommissionPercentage CommissionType = "percentage"
	CommissionFixed      CommissionType = "fixed"
)

// DefaultDailyRate is the coordinator day rate used when no fee exists yet.
var DefaultDailyRate = AmountOf(50)

type (
	PricingType    string
	ExpenseType    string
	CommissionType string

	// InvoiceTerms are the revenue inputs of a session. Only the amount that
	// matches PricingType drives revenue.
	InvoiceTerms struct {
		PricingType   PricingType `json:"pricing_type"`
		LumpsumAmount Amount      `json:"lumpsum_amount"`
		PerPaxRate    Amount      `json:"per_pax_rate"`
		TaxRate       Amount      `json:"tax_rate"` // percent, 0-100
	}

	TrainerFeeLine struct {
		TrainerID   string `json:"trainer_id"`
		TrainerName string `json:"trainer_name"`
		Role        string `json:"role"`
		FeeAmount   Amount `json:"fee_amount"`
		Remark      string `json:"remark"`
	}

	CoordinatorFee struct {
		NumDays   int    `json:"num_days"`
		DailyRate Amount `json:"daily_rate"`
	}

	ExpenseLine struct {
		Category        string      `json:"category"` // ExpenseCategory.ID
		Description     string      `json:"description"`
		ExpenseType     ExpenseType `json:"expense_type"`
		EstimatedAmount Amount      `json:"estimated_amount"`
		ActualAmount    Amount      `json:"actual_amount"`
		Remark          string      `json:"remark"`
	}

	// ExpenseCategory is reference data owned by the finance API. Rate is a
	// percent of the invoice total for percentage categories and a currency
	// amount per head for per_pax categories.
	ExpenseCategory struct {
		ID   string      `json:"id"`
		Name string      `json:"name"`
		Type ExpenseType `json:"type"`
		Rate Amount      `json:"rate"`
	}

	// MarketingCommission describes the marketing party of a session, either
	// an existing user or a person created during this edit.
	MarketingCommission struct {
		MarketingUserID string         `json:"marketing_user_id"`
		CommissionType  CommissionType `json:"commission_type"`
		CommissionRate  Amount         `json:"commission_rate"`
		FixedAmount     Amount         `json:"fixed_amount"`
		CreateNew       bool           `json:"create_new"`
		FullName        string         `json:"full_name"`
		IDNumber        string         `json:"id_number"`
	}

	// HeadcountInputs holds the sources for the cost-allocation headcount.
	// A non-nil count is authoritative; otherwise the count is derived from
	// the matching assignment list.
	HeadcountInputs struct {
		ParticipantCount *int     `json:"participant_count,omitempty"`
		TrainerCount     *int     `json:"trainer_count,omitempty"`
		CoordinatorCount *int     `json:"coordinator_count,omitempty"`
		ParticipantIDs   []string `json:"participant_ids,omitempty"`
		TrainerIDs       []string `json:"trainer_ids,omitempty"`
		CoordinatorID    string   `json:"coordinator_id,omitempty"`
	}

	// CostingForm is the in-memory editing state of one session costing.
	CostingForm struct {
		SessionID     string              `json:"session_id"`
		CoordinatorID string              `json:"coordinator_id"`
		Pax           int                 `json:"pax"`
		Headcount     HeadcountInputs     `json:"headcount"`
		Invoice       InvoiceTerms        `json:"invoice"`
		TrainerFees   []TrainerFeeLine    `json:"trainer_fees"`
		Coordinator   CoordinatorFee      `json:"coordinator_fee"`
		Expenses      []ExpenseLine       `json:"expenses"`
		Marketing     MarketingCommission `json:"marketing"`
	}

	// RollupResult is derived from a CostingForm and never persisted.
	RollupResult struct {
		InvoiceTotal          decimal.Decimal `json:"invoice_total"`
		TaxRate               decimal.Decimal `json:"tax_rate"`
		TaxAmount             decimal.Decimal `json:"tax_amount"`
		GrossRevenue          decimal.Decimal `json:"gross_revenue"`
		TrainerTotal          decimal.Decimal `json:"trainer_total"`
		CoordinatorTotal      decimal.Decimal `json:"coordinator_total"`
		ExpensesTotal         decimal.Decimal `json:"expenses_total"`
		ProfitBeforeMarketing decimal.Decimal `json:"profit_before_marketing"`
		MarketingAmount       decimal.Decimal `json:"marketing_amount"`
		FinalProfit           decimal.Decimal `json:"final_profit"`
		ProfitMarginPercent   decimal.Decimal `json:"profit_margin_percent"`
	}
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidForm           = errors.New("invalid costing form")
	ErrInvalidPricingType    = errors.New("invalid pricing type")
	ErrInvalidExpenseType    = errors.New("invalid expense type")
	ErrInvalidCommissionType = errors.New("invalid commission type")
	ErrMissingSession        = errors.New("missing session reference")
)

func (p PricingType) IsValid() bool {
	return p == PricingLumpsum || p == PricingPerPax
}

func (t ExpenseType) IsValid() bool {
	switch t {
	case ExpenseFixed, ExpensePercentage, ExpensePerPax:
		return true
	}
	return false
}

func (c CommissionType) IsValid() bool {
	return c == CommissionPercentage || c == CommissionFixed
}

// EffectiveAmount is the actual amount when one was entered, otherwise the
// estimate, otherwise zero.
func (e ExpenseLine) EffectiveAmount() decimal.Decimal {
	if e.ActualAmount.IsSet() {
		return e.ActualAmount.Decimal
	}
	return e.EstimatedAmount.Decimal
}

// HasAmount reports whether either amount was entered.
func (e ExpenseLine) HasAmount() bool {
	return e.EstimatedAmount.IsSet() || e.ActualAmount.IsSet()
}

// Active reports whether a marketing party is selected or being created.
func (m MarketingCommission) Active() bool {
	return strings.TrimSpace(m.MarketingUserID) != "" || m.CreateNew
}

// Total is numDays × dailyRate.
func (c CoordinatorFee) Total() decimal.Decimal {
	return decimal.NewFromInt(int64(c.NumDays)).Mul(c.DailyRate.Decimal)
}

// CoordinatorAssigned reports whether the session has a coordinator.
func (f CostingForm) CoordinatorAssigned() bool {
	return strings.TrimSpace(f.CoordinatorID) != ""
}

// Validate checks the form before any of it is sent to the finance API.
// Blank amounts are fine; negative ones and unknown enum values are not.
func (f CostingForm) Validate() error {
	var problems []string

	if strings.TrimSpace(f.SessionID) == "" {
		return ErrMissingSession
	}
	if !f.Invoice.PricingType.IsValid() {
		problems = append(problems, fmt.Sprintf("%v %q", ErrInvalidPricingType, f.Invoice.PricingType))
	}
	if f.Pax < 0 {
		problems = append(problems, "participant count cannot be negative")
	}
	problems = appendNegative(problems, "lumpsum amount", f.Invoice.LumpsumAmount)
	problems = appendNegative(problems, "per pax rate", f.Invoice.PerPaxRate)
	problems = appendNegative(problems, "tax rate", f.Invoice.TaxRate)

	for i, t := range f.TrainerFees {
		problems = appendNegative(problems, fmt.Sprintf("trainer fee %d", i+1), t.FeeAmount)
	}

	if f.CoordinatorAssigned() {
		if f.Coordinator.NumDays < 0 {
			problems = append(problems, "coordinator days cannot be negative")
		}
		problems = appendNegative(problems, "coordinator daily rate", f.Coordinator.DailyRate)
	}

	for i, e := range f.Expenses {
		if e.ExpenseType != "" && !e.ExpenseType.IsValid() {
			problems = append(problems, fmt.Sprintf("expense %d: %v %q", i+1, ErrInvalidExpenseType, e.ExpenseType))
		}
		problems = appendNegative(problems, fmt.Sprintf("expense %d estimated amount", i+1), e.EstimatedAmount)
		problems = appendNegative(problems, fmt.Sprintf("expense %d actual amount", i+1), e.ActualAmount)
	}

	if f.Marketing.Active() {
		m := f.Marketing
		if !m.CommissionType.IsValid() {
			problems = append(problems, fmt.Sprintf("%v %q", ErrInvalidCommissionType, m.CommissionType))
		}
		problems = appendNegative(problems, "commission rate", m.CommissionRate)
		problems = appendNegative(problems, "commission fixed amount", m.FixedAmount)
		if m.CreateNew && strings.TrimSpace(m.MarketingUserID) == "" {
			if strings.TrimSpace(m.FullName) == "" {
				problems = append(problems, "new marketing person requires a full name")
			}
			if strings.TrimSpace(m.IDNumber) == "" {
				problems = append(problems, "new marketing person requires an identity number")
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidForm, strings.Join(problems, "; "))
	}
	return nil
}

func appendNegative(problems []string, field string, a Amount) []string {
	if a.IsNegative() {
		return append(problems, field+" cannot be negative")
	}
	return problems
}
