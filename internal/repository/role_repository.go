package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/openrecords-api/internal/permission"
)

// RoleRepository keeps the roles table in step with the in-code presets.
type RoleRepository struct {
	db sqlx.ExtContext
}

// NewRoleRepository constructs the repository.
func NewRoleRepository(db sqlx.ExtContext) *RoleRepository {
	return &RoleRepository{db: db}
}

// List returns the persisted roles.
func (r *RoleRepository) List(ctx context.Context) ([]permission.Role, error) {
	const query = `SELECT name, description, permissions FROM roles ORDER BY permissions ASC`
	var roles []permission.Role
	if err := sqlx.SelectContext(ctx, r.db, &roles, query); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// Upsert writes every role, replacing description and mask of existing rows.
func (r *RoleRepository) Upsert(ctx context.Context, roles []permission.Role) error {
	const query = `INSERT INTO roles (name, description, permissions) VALUES (:name, :description, :permissions)
	ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, permissions = EXCLUDED.permissions`
	for _, role := range roles {
		if _, err := sqlx.NamedExecContext(ctx, r.db, query, role); err != nil {
			return fmt.Errorf("upsert role %s: %w", role.Name, err)
		}
	}
	return nil
}
