package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gestionjm/internal/core"
	"gestionjm/internal/identity"
	"gestionjm/internal/log"
	"gestionjm/internal/middleware/trace"
	"gestionjm/internal/records"
)

// Error codes returned in errorBody.Code.
const (
	codeBadRequest   = "bad_request"
	codeValidation   = "validation_failed"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeRateLimited  = "rate_limited"
	codeInternal     = "internal_error"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

var validationErrors = []error{
	core.ErrInvalidRecord,
	core.ErrInvalidAmount,
	core.ErrInvalidDate,
	core.ErrInvalidMonth,
	core.ErrInvalidImpute,
	core.ErrInvalidCategory,
	core.ErrEmptyDescription,
	core.ErrUnknownUser,
	core.ErrTransferNotAllowed,
	identity.ErrInvalidPin,
}

// classify maps a service error to its status, code and log error type.
func classify(err error) (status int, code, errType string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, codeBadRequest, log.ErrorTypeValidation
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, codeForbidden, log.ErrorTypeForbidden
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, codeUnauthorized, log.ErrorTypeAuth
	case errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound, codeNotFound, log.ErrorTypeNotFound
	case errors.Is(err, records.ErrDuplicate) && !errors.Is(err, core.ErrInvalidRecord):
		return http.StatusConflict, codeConflict, log.ErrorTypeValidation
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, codeValidation, log.ErrorTypeValidation
		}
	}
	return http.StatusInternalServerError, codeInternal, log.ErrorTypeInternal
}

// writeError answers with the mapped status. Internal errors are logged in
// full and reported to the client without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, errType := classify(err)
	body := errorBody{Error: err.Error(), Code: code, RequestID: trace.RequestID(r)}

	if status == http.StatusInternalServerError {
		s.events.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, r.Method+" "+r.URL.Path,
			log.NewFields().WithRequestID(body.RequestID).WithErrorType(errType))
		body.Error = "internal error"
	} else {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected",
			log.FieldStatusCode, status,
			log.FieldErrorType, errType,
			log.FieldError, err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", authRealm)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
