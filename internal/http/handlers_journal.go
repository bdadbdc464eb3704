package http

import (
	"net/http"

	"costing/internal/core"
	"costing/internal/log"
)

const (
	defaultSaveListLimit = 20
	maxSaveListLimit     = 200
)

// handleListSaves returns the session's save attempts, newest first.
func (s *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	sessionID, err := PathParam(r, "sessionID")
	if err != nil {
		s.writeError(w, r, log.OpJournal, err)
		return
	}
	saves, err := s.journal.ListSaves(r.Context(), sessionID, QueryInt(r, "limit", defaultSaveListLimit, maxSaveListLimit))
	if err != nil {
		s.writeError(w, r, log.OpJournal, err)
		return
	}
	if saves == nil {
		saves = []core.SaveReport{}
	}
	NewJSONResponse().Body(saves).Write(w)
}

func (s *Server) handleGetSave(w http.ResponseWriter, r *http.Request) {
	saveID, err := PathParam(r, "saveID")
	if err != nil {
		s.writeError(w, r, log.OpJournal, err)
		return
	}
	report, err := s.journal.GetSave(r.Context(), saveID)
	if err != nil {
		s.writeError(w, r, log.OpJournal, err)
		return
	}
	NewJSONResponse().Body(report).Write(w)
}
