// Package directory provides a static in-memory employee directory for the
// embedded dev mode and for tests. Production deployments use the SQL-backed
// adapters instead.
package directory

import (
	"context"

	"github.com/peopledesk/starled/internal/domain"
)

// Employee is one static directory entry.
type Employee struct {
	ID          string
	DisplayName string
	Department  string
}

// Static is an immutable in-memory employee directory.
type Static struct {
	byID map[string]Employee
}

// NewStatic builds a directory from a fixed employee list.
func NewStatic(employees []Employee) *Static {
	byID := make(map[string]Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}
	return &Static{byID: byID}
}

// Exists reports whether the employee id resolves.
func (s *Static) Exists(_ context.Context, id string) (bool, error) {
	_, ok := s.byID[id]
	return ok, nil
}

// DisplayName resolves a single employee id to a display name.
func (s *Static) DisplayName(_ context.Context, id string) (string, bool, error) {
	e, ok := s.byID[id]
	return e.DisplayName, ok, nil
}

// DisplayNames bulk-resolves employee ids.
func (s *Static) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if e, ok := s.byID[id]; ok {
			names[id] = e.DisplayName
		}
	}
	return names, nil
}

var _ domain.EmployeeDirectory = (*Static)(nil)
