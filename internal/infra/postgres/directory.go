// Read-only employee directory adapter over the employees table.
package postgres

import (
	"context"

	"github.com/peopledesk/starled/internal/domain"
)

// Directory implements domain.EmployeeDirectory over the employees table.
type Directory struct {
	store *Store
}

// Directory returns the employee directory view of this database.
func (s *Store) Directory() *Directory { return &Directory{store: s} }

// Exists reports whether the employee id resolves.
func (dir *Directory) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := dir.store.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM employees WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, translate(err)
	}
	return exists, nil
}

// DisplayName resolves a single employee id to a display name.
func (dir *Directory) DisplayName(ctx context.Context, id string) (string, bool, error) {
	names, err := dir.DisplayNames(ctx, []string{id})
	if err != nil {
		return "", false, err
	}
	name, ok := names[id]
	return name, ok, nil
}

// DisplayNames bulk-resolves employee ids in one query.
func (dir *Directory) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := dir.store.pool.Query(ctx,
		`SELECT id, display_name FROM employees WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, translate(err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return names, nil
}

var _ domain.EmployeeDirectory = (*Directory)(nil)
