package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gestionjm/internal/core"
	"gestionjm/internal/identity"
	"gestionjm/internal/log"
)

type meResponse struct {
	core.User
	TransferTargets []core.UserID `json:"transferTargets"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	targets := []core.UserID{}
	if user.CanManageTransfers {
		targets = append(targets, core.AllowedTransferTargets(user.ID)...)
	}
	writeJSON(w, http.StatusOK, meResponse{User: user, TransferTargets: targets})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": core.Users()})
}

type categoryInfo struct {
	ID   core.Category `json:"id"`
	Name string        `json:"name"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats := core.Categories()
	out := make([]categoryInfo, len(cats))
	for i, c := range cats {
		out[i] = categoryInfo{ID: c, Name: c.Name()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

type pinRequest struct {
	CurrentPin string `json:"currentPin"`
	NewPin     string `json:"newPin"`
}

// handleChangePin changes the caller's own PIN. A wrong current PIN is a
// 403: the caller is authenticated, the change is refused.
func (s *Server) handleChangePin(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	var req pinRequest
	if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.identity.ChangePin(r.Context(), user.ID, req.CurrentPin, req.NewPin)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		err = fmt.Errorf("%w: current PIN does not match", core.ErrForbidden)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExport downloads every record as a JSON snapshot.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Export(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filename := fmt.Sprintf("gestionjm-%s.json", s.today())
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Data exported",
		log.FieldOperation, log.OpExport,
		"expenses", len(snap.Expenses),
		"transfers", len(snap.Transfers))
	writeJSON(w, http.StatusOK, snap)
}

type importResponse struct {
	Expenses  int `json:"expenses"`
	Transfers int `json:"transfers"`
}

// importRequest is a snapshot, optionally carrying the user list that
// browser-side exports include. Users are fixed here, so it is ignored.
type importRequest struct {
	core.Snapshot
	Users json.RawMessage `json:"users"`
}

// handleImport replaces every record with the uploaded snapshot.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req, maxImportBytes); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap := req.Snapshot
	if err := s.ledger.Import(r.Context(), currentUser(r.Context()), snap); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateReports()
	writeJSON(w, http.StatusOK, importResponse{Expenses: len(snap.Expenses), Transfers: len(snap.Transfers)})
}
