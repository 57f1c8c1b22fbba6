package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/openrecords-api/internal/models"
)

const userColumns = `guid, email, full_name, agency_ein, is_super, is_agency_admin, is_agency_active, is_anonymous_requester, created_at`

// UserRepository provides read access to users.
type UserRepository struct {
	db sqlx.ExtContext
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

// FindByGUID returns a user by identifier.
func (r *UserRepository) FindByGUID(ctx context.Context, guid string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE guid = $1 LIMIT 1`
	var user models.User
	if err := sqlx.GetContext(ctx, r.db, &user, query, guid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by guid: %w", err)
	}
	return &user, nil
}

// ListAgencyAdmins returns active administrators of an agency.
func (r *UserRepository) ListAgencyAdmins(ctx context.Context, agencyEIN string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	WHERE agency_ein = $1 AND is_agency_admin = TRUE AND is_agency_active = TRUE ORDER BY email`
	var users []models.User
	if err := sqlx.SelectContext(ctx, r.db, &users, query, agencyEIN); err != nil {
		return nil, fmt.Errorf("list agency admins: %w", err)
	}
	return users, nil
}
