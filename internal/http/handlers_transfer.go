package http

import (
	"net/http"
	"strings"

	"gestionjm/internal/core"
	"gestionjm/internal/services"
)

type transferRequest struct {
	From   core.UserID `json:"from"`
	To     core.UserID `json:"to"`
	Amount amountField `json:"amount"`
	Date   core.Date   `json:"date"`
}

type transferListResponse struct {
	Year      int             `json:"year,omitempty"`
	Month     int             `json:"month,omitempty"`
	Count     int             `json:"count"`
	Transfers []core.Transfer `json:"transfers"`
}

// handleListTransfers lists one month, or every transfer with all=true.
func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var resp transferListResponse
	if query.Get("all") != "true" {
		p, err := ParseMonthParams(query, s.now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Year, resp.Month = p.Year, p.Month
	}
	transfers, err := s.ledger.ListTransfers(r.Context(), resp.Year, resp.Month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if transfers == nil {
		transfers = []core.Transfer{}
	}
	resp.Transfers = transfers
	resp.Count = len(transfers)
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateTransfer defaults the sender to the caller and the date to
// today.
func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	req := transferRequest{From: user.ID, Date: s.today()}
	if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.ledger.AddTransfer(r.Context(), user, services.TransferInput{
		From:   core.UserID(strings.ToLower(strings.TrimSpace(string(req.From)))),
		To:     core.UserID(strings.ToLower(strings.TrimSpace(string(req.To)))),
		Amount: req.Amount.Decimal,
		Date:   req.Date,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateReports()
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransfer(r.Context(), currentUser(r.Context()), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateReports()
	w.WriteHeader(http.StatusNoContent)
}
