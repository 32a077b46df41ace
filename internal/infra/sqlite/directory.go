// Read-only employee directory adapter over the employees table.
// The HR application owns writes; the engine never mutates employees.
package sqlite

import (
	"context"
	"strings"

	"github.com/peopledesk/starled/internal/domain"
)

// Directory implements domain.EmployeeDirectory over the employees table.
type Directory struct {
	db *DB
}

// Directory returns the employee directory view of this database.
func (d *DB) Directory() *Directory { return &Directory{db: d} }

// Exists reports whether the employee id resolves.
func (dir *Directory) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := dir.db.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM employees WHERE id = ?)`, id,
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

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := dir.db.db.QueryContext(ctx,
		`SELECT id, display_name FROM employees WHERE id IN (`+placeholders+`)`, args...)
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
