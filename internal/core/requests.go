package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheque       PaymentMethod = "cheque"
	MethodCash         PaymentMethod = "cash"
	MethodOnline       PaymentMethod = "online"
)

const dateLayout = "2006-01-02"

var (
	ErrMissingInvoice       = errors.New("no invoice selected")
	ErrInvalidPaymentDate   = errors.New("invalid payment date")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrMissingReason        = errors.New("a reason is required")
	ErrInvalidPercentage    = errors.New("percentage must be greater than 0 and at most 100")
)

type (
	PaymentMethod string

	// PaymentInput is a payment as typed into the console.
	PaymentInput struct {
		InvoiceID       string        `json:"invoice_id"`
		Amount          string        `json:"amount"`
		PaymentDate     string        `json:"payment_date"`
		Method          PaymentMethod `json:"payment_method"`
		ReferenceNumber string        `json:"reference_number"`
		Notes           string        `json:"notes"`
	}

	// PaymentRequest is a validated payment ready for submission.
	PaymentRequest struct {
		InvoiceID       string          `json:"invoice_id"`
		Amount          decimal.Decimal `json:"amount"`
		PaymentDate     string          `json:"payment_date"`
		Method          PaymentMethod   `json:"payment_method"`
		ReferenceNumber string          `json:"reference_number"`
		Notes           string          `json:"notes"`
	}

	CreditNoteInput struct {
		SessionID   string `json:"session_id"`
		Reason      string `json:"reason"`
		Description string `json:"description"`
		Percentage  string `json:"percentage"`
		BaseAmount  string `json:"base_amount"`
	}

	CreditNoteRequest struct {
		SessionID   string          `json:"session_id"`
		Reason      string          `json:"reason"`
		Description string          `json:"description"`
		Percentage  decimal.Decimal `json:"percentage"`
		BaseAmount  decimal.Decimal `json:"base_amount"`
		Amount      decimal.Decimal `json:"amount"`
	}
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodBankTransfer, MethodCheque, MethodCash, MethodOnline:
		return true
	}
	return false
}

// Parse validates the input. A blank date defaults to today and a blank
// method to bank transfer.
func (p PaymentInput) Parse(now time.Time) (PaymentRequest, error) {
	invoiceID := strings.TrimSpace(p.InvoiceID)
	if invoiceID == "" {
		return PaymentRequest{}, ErrMissingInvoice
	}
	amount, err := ParseAmount(p.Amount)
	if err != nil {
		return PaymentRequest{}, err
	}

	date := strings.TrimSpace(p.PaymentDate)
	if date == "" {
		date = now.Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return PaymentRequest{}, ErrInvalidPaymentDate
	}

	method := p.Method
	if method == "" {
		method = MethodBankTransfer
	}
	if !method.IsValid() {
		return PaymentRequest{}, ErrInvalidPaymentMethod
	}

	return PaymentRequest{
		InvoiceID:       invoiceID,
		Amount:          amount,
		PaymentDate:     date,
		Method:          method,
		ReferenceNumber: strings.TrimSpace(p.ReferenceNumber),
		Notes:           strings.TrimSpace(p.Notes),
	}, nil
}

// Parse validates the input and computes the credit amount as
// baseAmount × percentage / 100.
func (c CreditNoteInput) Parse() (CreditNoteRequest, error) {
	sessionID := strings.TrimSpace(c.SessionID)
	if sessionID == "" {
		return CreditNoteRequest{}, ErrMissingSession
	}
	reason := strings.TrimSpace(c.Reason)
	if reason == "" {
		return CreditNoteRequest{}, ErrMissingReason
	}
	pct, err := ParseAmount(c.Percentage)
	if err != nil || pct.GreaterThan(Hundred) {
		return CreditNoteRequest{}, ErrInvalidPercentage
	}
	base, err := ParseAmount(c.BaseAmount)
	if err != nil {
		return CreditNoteRequest{}, err
	}

	return CreditNoteRequest{
		SessionID:   sessionID,
		Reason:      reason,
		Description: strings.TrimSpace(c.Description),
		Percentage:  pct,
		BaseAmount:  base,
		Amount:      base.Mul(pct).Div(Hundred),
	}, nil
}

// CancelReason validates the reason given for cancelling an invoice.
func CancelReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", ErrMissingReason
	}
	return reason, nil
}
