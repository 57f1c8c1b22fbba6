package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/openrecords-api/internal/models"
)

const requestColumns = `id, agency_ein, title, description, agency_request_summary, category, submission_method,
       status, created_at, submitted_at, due_date, privacy_title, privacy_agency_request_summary`

// RequestRepository persists FOIL requests.
type RequestRepository struct {
	db sqlx.ExtContext
}

// NewRequestRepository constructs the repository over a database handle or transaction.
func NewRequestRepository(db sqlx.ExtContext) *RequestRepository {
	return &RequestRepository{db: db}
}

// CreateRequest inserts a new request row.
func (r *RequestRepository) CreateRequest(ctx context.Context, request *models.Request) error {
	const query = `INSERT INTO requests
	(id, agency_ein, title, description, agency_request_summary, category, submission_method,
	 status, created_at, submitted_at, due_date, privacy_title, privacy_agency_request_summary)
	VALUES (:id, :agency_ein, :title, :description, :agency_request_summary, :category, :submission_method,
	 :status, :created_at, :submitted_at, :due_date, :privacy_title, :privacy_agency_request_summary)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetRequest fetches a request by identifier.
func (r *RequestRepository) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	var request models.Request
	if err := sqlx.GetContext(ctx, r.db, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// LockRequest fetches a request and holds its row lock until the transaction ends.
func (r *RequestRepository) LockRequest(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1 FOR UPDATE`
	var request models.Request
	if err := sqlx.GetContext(ctx, r.db, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter ordered by due date.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + requestColumns + ` FROM requests`)

	conditions := make([]string, 0, 2)
	if filter.AgencyEIN != "" {
		args = append(args, filter.AgencyEIN)
		conditions = append(conditions, fmt.Sprintf("agency_ein = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY due_date ASC, id ASC")
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset))
	}

	var requests []models.Request
	if err := sqlx.SelectContext(ctx, r.db, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// UpdateRequestState persists status and due date. It returns sql.ErrNoRows
// when the request does not exist.
func (r *RequestRepository) UpdateRequestState(ctx context.Context, params models.UpdateRequestStateParams) error {
	const query = `UPDATE requests SET status = $2, due_date = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, params.ID, params.Status, params.DueDate.UTC())
	if err != nil {
		return fmt.Errorf("update request state: %w", err)
	}
	return expectRow(result, "update request state")
}

// UpdateRequestPrivacy persists the privacy flags of title and agency summary.
func (r *RequestRepository) UpdateRequestPrivacy(ctx context.Context, id string, titlePrivate, summaryPrivate bool) error {
	const query = `UPDATE requests SET privacy_title = $2, privacy_agency_request_summary = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, titlePrivate, summaryPrivate)
	if err != nil {
		return fmt.Errorf("update request privacy: %w", err)
	}
	return expectRow(result, "update request privacy")
}

func expectRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
