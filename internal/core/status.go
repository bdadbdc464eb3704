package core

// Invoice statuses are owned by the finance API; this package only knows
// which console actions each one offers.
const (
	StatusAutoDraft     InvoiceStatus = "auto_draft"
	StatusDraft         InvoiceStatus = "draft"
	StatusFinanceReview InvoiceStatus = "finance_review"
	StatusApproved      InvoiceStatus = "approved"
	StatusIssued        InvoiceStatus = "issued"
	StatusPaid          InvoiceStatus = "paid"
	StatusCancelled     InvoiceStatus = "cancelled"
)

const (
	ActionApprove       InvoiceAction = "approve"
	ActionIssue         InvoiceAction = "issue"
	ActionRecordPayment InvoiceAction = "record_payment"
	ActionCancel        InvoiceAction = "cancel"
)

type (
	InvoiceStatus string
	InvoiceAction string
)

// IsDraft covers both the auto-generated and the manual draft.
func (s InvoiceStatus) IsDraft() bool {
	return s == StatusAutoDraft || s == StatusDraft
}

func (s InvoiceStatus) IsKnown() bool {
	switch s {
	case StatusAutoDraft, StatusDraft, StatusFinanceReview, StatusApproved,
		StatusIssued, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

func (s InvoiceStatus) CanApprove() bool {
	return s.IsDraft() || s == StatusFinanceReview
}

func (s InvoiceStatus) CanIssue() bool {
	return s == StatusApproved
}

func (s InvoiceStatus) CanRecordPayment() bool {
	return s == StatusIssued || s == StatusApproved
}

func (s InvoiceStatus) CanCancel() bool {
	return s != StatusPaid && s != StatusCancelled
}

// CanEdit reports whether the invoice terms may still be changed in place.
func (s InvoiceStatus) CanEdit() bool {
	return s != StatusIssued && s != StatusPaid
}

// Allows reports whether the console offers action a for this status.
func (s InvoiceStatus) Allows(a InvoiceAction) bool {
	switch a {
	case ActionApprove:
		return s.CanApprove()
	case ActionIssue:
		return s.CanIssue()
	case ActionRecordPayment:
		return s.CanRecordPayment()
	case ActionCancel:
		return s.CanCancel()
	}
	return false
}

// Actions lists the actions available for the status in display order.
func (s InvoiceStatus) Actions() []InvoiceAction {
	var out []InvoiceAction
	for _, a := range []InvoiceAction{ActionApprove, ActionIssue, ActionRecordPayment, ActionCancel} {
		if s.Allows(a) {
			out = append(out, a)
		}
	}
	return out
}
