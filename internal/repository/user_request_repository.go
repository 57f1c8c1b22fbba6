package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/openrecords-api/internal/models"
)

const userRequestColumns = `user_guid, request_id, request_user_type, permissions, point_of_contact`

// UserRequestRepository persists the user/request authorization edges.
type UserRequestRepository struct {
	db sqlx.ExtContext
}

// NewUserRequestRepository constructs the repository over a database handle or transaction.
func NewUserRequestRepository(db sqlx.ExtContext) *UserRequestRepository {
	return &UserRequestRepository{db: db}
}

// GetUserRequest returns the edge between a user and a request.
func (r *UserRequestRepository) GetUserRequest(ctx context.Context, requestID, userGUID string) (*models.UserRequest, error) {
	query := `SELECT ` + userRequestColumns + ` FROM user_requests WHERE request_id = $1 AND user_guid = $2`
	var ur models.UserRequest
	if err := sqlx.GetContext(ctx, r.db, &ur, query, requestID, userGUID); err != nil {
		return nil, err
	}
	return &ur, nil
}

// LockUserRequest returns the edge and locks it for the rest of the transaction.
func (r *UserRequestRepository) LockUserRequest(ctx context.Context, requestID, userGUID string) (*models.UserRequest, error) {
	query := `SELECT ` + userRequestColumns + ` FROM user_requests WHERE request_id = $1 AND user_guid = $2 FOR UPDATE`
	var ur models.UserRequest
	if err := sqlx.GetContext(ctx, r.db, &ur, query, requestID, userGUID); err != nil {
		return nil, err
	}
	return &ur, nil
}

// ListUserRequests returns every participant of a request, requester first.
func (r *UserRequestRepository) ListUserRequests(ctx context.Context, requestID string) ([]models.UserRequest, error) {
	query := `SELECT ` + userRequestColumns + ` FROM user_requests WHERE request_id = $1
	ORDER BY request_user_type DESC, user_guid ASC`
	var edges []models.UserRequest
	if err := sqlx.SelectContext(ctx, r.db, &edges, query, requestID); err != nil {
		return nil, fmt.Errorf("list user requests: %w", err)
	}
	return edges, nil
}

// FindPointOfContact returns the current point of contact, or sql.ErrNoRows when none is set.
func (r *UserRequestRepository) FindPointOfContact(ctx context.Context, requestID string) (*models.UserRequest, error) {
	query := `SELECT ` + userRequestColumns + ` FROM user_requests WHERE request_id = $1 AND point_of_contact = TRUE FOR UPDATE`
	var ur models.UserRequest
	if err := sqlx.GetContext(ctx, r.db, &ur, query, requestID); err != nil {
		return nil, err
	}
	return &ur, nil
}

// CreateUserRequest inserts a new edge.
func (r *UserRequestRepository) CreateUserRequest(ctx context.Context, ur *models.UserRequest) error {
	const query = `INSERT INTO user_requests (user_guid, request_id, request_user_type, permissions, point_of_contact)
	VALUES (:user_guid, :request_id, :request_user_type, :permissions, :point_of_contact)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, ur); err != nil {
		return fmt.Errorf("create user request: %w", err)
	}
	return nil
}

// UpdateUserRequest persists the permission mask and point-of-contact flag.
func (r *UserRequestRepository) UpdateUserRequest(ctx context.Context, ur *models.UserRequest) error {
	const query = `UPDATE user_requests SET permissions = $3, point_of_contact = $4 WHERE request_id = $1 AND user_guid = $2`
	result, err := r.db.ExecContext(ctx, query, ur.RequestID, ur.UserGUID, ur.Permissions, ur.PointOfContact)
	if err != nil {
		return fmt.Errorf("update user request: %w", err)
	}
	return expectRow(result, "update user request")
}

// DeleteUserRequest removes an agency edge. Requester edges are never removed.
func (r *UserRequestRepository) DeleteUserRequest(ctx context.Context, requestID, userGUID string) error {
	const query = `DELETE FROM user_requests WHERE request_id = $1 AND user_guid = $2 AND request_user_type <> 'requester'`
	result, err := r.db.ExecContext(ctx, query, requestID, userGUID)
	if err != nil {
		return fmt.Errorf("delete user request: %w", err)
	}
	return expectRow(result, "delete user request")
}
