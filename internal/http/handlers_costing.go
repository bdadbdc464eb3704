package http

import (
	"fmt"
	"net/http"
	"strings"

	"costing/internal/core"
	"costing/internal/log"
)

type (
	applyCategoryRequest struct {
		Form       core.CostingForm `json:"form"`
		CategoryID string           `json:"category_id"`
	}

	// formResponse is an edited form returned together with its new rollup.
	formResponse struct {
		Form   core.CostingForm  `json:"form"`
		Rollup core.RollupResult `json:"rollup"`
		Added  *int              `json:"added,omitempty"`
	}

	saveResponse struct {
		Outcome string            `json:"outcome"`
		Report  core.SaveReport   `json:"report"`
		Failed  []core.StepResult `json:"failed,omitempty"`
	}
)

func (s *Server) handleLoadCosting(w http.ResponseWriter, r *http.Request) {
	sessionID, err := PathParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	view, err := s.costing.Load(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.costing.Categories(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	NewJSONResponse().Body(cats).Write(w)
}

func (s *Server) handleRollup(w http.ResponseWriter, r *http.Request) {
	var form core.CostingForm
	if err := DecodeJSON(w, r, &form); err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}
	NewJSONResponse().Body(s.costing.Rollup(form)).Write(w)
}

func (s *Server) handleApplyCategory(w http.ResponseWriter, r *http.Request) {
	index, err := PathIndex(r, "index")
	if err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}
	var req applyCategoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}
	form, err := s.costing.ApplyCategory(r.Context(), req.Form, index, strings.TrimSpace(req.CategoryID))
	if err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}
	NewJSONResponse().Body(formResponse{Form: form, Rollup: s.costing.Rollup(form)}).Write(w)
}

func (s *Server) handleAutoAddExpenses(w http.ResponseWriter, r *http.Request) {
	var form core.CostingForm
	if err := DecodeJSON(w, r, &form); err != nil {
		s.writeError(w, r, log.OpValidate, err)
		return
	}
	form, added, err := s.costing.AutoAddExpenses(r.Context(), form)
	if err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	NewJSONResponse().Body(formResponse{Form: form, Rollup: s.costing.Rollup(form), Added: &added}).Write(w)
}

// handleSaveCosting runs a save. Step failures are part of a 200 report;
// only a rejected form or a concurrent save fail the request.
func (s *Server) handleSaveCosting(w http.ResponseWriter, r *http.Request) {
	sessionID, err := PathParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	var form core.CostingForm
	if err := DecodeJSON(w, r, &form); err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	switch strings.TrimSpace(form.SessionID) {
	case "":
		form.SessionID = sessionID
	case sessionID:
	default:
		s.writeError(w, r, log.OpSave, fmt.Errorf("%w: form belongs to session %q", errInvalidParam, form.SessionID))
		return
	}

	report, err := s.costing.Save(r.Context(), form)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	NewJSONResponse().Body(saveResponse{
		Outcome: report.Outcome(),
		Report:  report,
		Failed:  report.Failed(),
	}).Write(w)
}
