package http

import (
	"context"
	"errors"
	"net/http"

	"gestionjm/internal/core"
	"gestionjm/internal/identity"
	"gestionjm/internal/log"
	"gestionjm/internal/middleware/trace"
)

type contextKey int

const userContextKey contextKey = iota

const authRealm = `Basic realm="gestionjm", charset="UTF-8"`

// requireUser authenticates the Basic auth pair (user id, PIN) and stores
// the user in the request context.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name, pin, ok := r.BasicAuth()
		if !ok {
			s.unauthorized(w, r)
			return
		}
		id, err := core.ParseUserID(name)
		if err != nil {
			s.logAuthFailure(r, name)
			s.unauthorized(w, r)
			return
		}
		user, err := s.identity.Authenticate(ctx, id, pin)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.logAuthFailure(r, name)
			s.unauthorized(w, r)
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		logger := log.FromContext(ctx).With(log.FieldUser, user.ID)
		ctx = log.WithLogger(context.WithValue(ctx, userContextKey, user), logger)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) logAuthFailure(r *http.Request, name string) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Authentication failed",
		log.FieldComponent, log.ComponentIdentity,
		log.FieldErrorType, log.ErrorTypeAuth,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		"login", name)
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", authRealm)
	writeJSON(w, http.StatusUnauthorized, errorBody{
		Error:     "authentication required",
		Code:      codeUnauthorized,
		RequestID: trace.RequestID(r),
	})
}

// currentUser returns the user set by requireUser.
func currentUser(ctx context.Context) core.User {
	u, _ := ctx.Value(userContextKey).(core.User)
	return u
}
