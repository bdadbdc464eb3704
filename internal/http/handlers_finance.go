package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"costing/internal/core"
	"costing/internal/finance"
	"costing/internal/log"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type actionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	status := core.InvoiceStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	if status == "pending" {
		status = core.StatusFinanceReview
	}
	if status != "" && !status.IsKnown() {
		s.writeError(w, r, log.OpLoad, fmt.Errorf("%w: unknown status %q", errInvalidParam, status))
		return
	}
	view, err := s.console.Dashboard(r.Context(), status)
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := PathParam(r, "invoiceID")
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	row, err := s.console.Invoice(r.Context(), invoiceID)
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	NewJSONResponse().Body(row).Write(w)
}

// handleInvoiceAction applies approve, issue or cancel and answers with the
// invoice as it is afterwards.
func (s *Server) handleInvoiceAction(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := PathParam(r, "invoiceID")
	if err != nil {
		s.writeError(w, r, log.OpAction, err)
		return
	}
	action, err := PathParam(r, "action")
	if err != nil {
		s.writeError(w, r, log.OpAction, err)
		return
	}

	var req actionRequest
	if err := DecodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.writeError(w, r, log.OpAction, err)
		return
	}
	if err := s.console.Act(r.Context(), invoiceID, core.InvoiceAction(action), req.Reason); err != nil {
		s.writeError(w, r, log.OpAction, err)
		return
	}

	row, err := s.console.Invoice(r.Context(), invoiceID)
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	NewJSONResponse().Body(row).Write(w)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := PathParam(r, "invoiceID")
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	payments, err := s.console.Payments(r.Context(), invoiceID)
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	if payments == nil {
		payments = []finance.Payment{}
	}
	NewJSONResponse().Body(payments).Write(w)
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := PathParam(r, "invoiceID")
	if err != nil {
		s.writeError(w, r, log.OpPayment, err)
		return
	}
	var in core.PaymentInput
	if err := DecodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, log.OpPayment, err)
		return
	}
	in.InvoiceID = invoiceID

	payment, err := s.console.RecordPayment(r.Context(), in)
	if err != nil {
		s.writeError(w, r, log.OpPayment, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(payment).Write(w)
}

func (s *Server) handleListCreditNotes(w http.ResponseWriter, r *http.Request) {
	sessionID, err := PathParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	notes, err := s.console.CreditNotes(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	if notes == nil {
		notes = []finance.CreditNote{}
	}
	NewJSONResponse().Body(notes).Write(w)
}

func (s *Server) handleCreateCreditNote(w http.ResponseWriter, r *http.Request) {
	var in core.CreditNoteInput
	if err := DecodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, log.OpCredit, err)
		return
	}
	note, err := s.console.CreateCreditNote(r.Context(), in)
	if err != nil {
		s.writeError(w, r, log.OpCredit, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(note).Write(w)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := finance.AuditFilter{
		EntityType: strings.TrimSpace(q.Get("entity_type")),
		EntityID:   strings.TrimSpace(q.Get("entity_id")),
		Limit:      QueryInt(r, "limit", defaultAuditLimit, maxAuditLimit),
	}
	entries, err := s.console.Audit(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	if entries == nil {
		entries = []finance.AuditEntry{}
	}
	NewJSONResponse().Body(entries).Write(w)
}
