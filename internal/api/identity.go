package api

import (
	"context"
	"net/http"

	"github.com/peopledesk/starled/internal/domain"
)

// IdentityProvider resolves the authenticated employee behind a request.
// Session handling is external to the engine; the engine only consumes the
// resolved id.
type IdentityProvider interface {
	EmployeeID(r *http.Request) (string, error)
}

// HeaderIdentity trusts an employee id header set by the authenticating
// reverse proxy in front of the service.
type HeaderIdentity struct {
	Header string
}

// NewHeaderIdentity returns a provider reading the X-Employee-Id header.
func NewHeaderIdentity() *HeaderIdentity {
	return &HeaderIdentity{Header: "X-Employee-Id"}
}

// EmployeeID extracts the caller's employee id from the request.
func (h *HeaderIdentity) EmployeeID(r *http.Request) (string, error) {
	id := r.Header.Get(h.Header)
	if id == "" {
		return "", domain.ErrUnauthenticated
	}
	return id, nil
}

type contextKey string

const employeeIDKey contextKey = "employee_id"

// requireIdentity rejects requests without a resolvable caller identity and
// stashes the employee id in the request context.
func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.identity.EmployeeID(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), employeeIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerID returns the employee id stashed by requireIdentity.
func callerID(r *http.Request) string {
	id, _ := r.Context().Value(employeeIDKey).(string)
	return id
}
