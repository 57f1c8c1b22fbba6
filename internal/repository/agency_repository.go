package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/openrecords-api/internal/models"
)

const agencyColumns = `ein, name, is_active, next_request_number, counter_year, agency_features`

// AgencyRepository persists agencies and their request counters.
type AgencyRepository struct {
	db sqlx.ExtContext
}

// NewAgencyRepository constructs the repository over a database handle or transaction.
func NewAgencyRepository(db sqlx.ExtContext) *AgencyRepository {
	return &AgencyRepository{db: db}
}

// GetAgency fetches an agency by EIN.
func (r *AgencyRepository) GetAgency(ctx context.Context, ein string) (*models.Agency, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies WHERE ein = $1`
	var agency models.Agency
	if err := sqlx.GetContext(ctx, r.db, &agency, query, ein); err != nil {
		return nil, err
	}
	return &agency, nil
}

// ListAgencies returns agencies ordered by EIN, optionally only active ones.
func (r *AgencyRepository) ListAgencies(ctx context.Context, activeOnly bool) ([]models.Agency, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY ein`
	var agencies []models.Agency
	if err := sqlx.SelectContext(ctx, r.db, &agencies, query); err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	return agencies, nil
}

// NextRequestNumber atomically reserves the agency's next sequence number for
// year. The first reservation of a new year starts the sequence at 1.
func (r *AgencyRepository) NextRequestNumber(ctx context.Context, agencyEIN string, year int) (int, error) {
	const query = `UPDATE agencies SET
		next_request_number = CASE WHEN counter_year = $2 THEN next_request_number + 1 ELSE 2 END,
		counter_year = $2
	WHERE ein = $1 RETURNING next_request_number - 1`
	var next int
	if err := sqlx.GetContext(ctx, r.db, &next, query, agencyEIN, year); err != nil {
		return 0, fmt.Errorf("reserve request number: %w", err)
	}
	return next, nil
}

// ResetRequestNumber restarts the agency's sequence for year just past the
// highest sequence already issued that year, so no id is handed out twice. It
// returns the counter before and after.
func (r *AgencyRepository) ResetRequestNumber(ctx context.Context, agencyEIN string, year int) (previous, next int, err error) {
	const query = `UPDATE agencies a SET next_request_number = used.max_sequence + 1, counter_year = $2
	FROM (SELECT ein, next_request_number FROM agencies WHERE ein = $1 FOR UPDATE) prev,
		(SELECT COALESCE(MAX(CAST(SUBSTRING(id FROM 16) AS INTEGER)), 0) AS max_sequence
			FROM requests WHERE agency_ein = $1 AND id LIKE $3) used
	WHERE a.ein = prev.ein RETURNING prev.next_request_number, a.next_request_number`
	row := r.db.QueryRowxContext(ctx, query, agencyEIN, year, models.RequestIDPrefix(year, agencyEIN)+"%")
	if err = row.Scan(&previous, &next); err != nil {
		return 0, 0, fmt.Errorf("reset request number: %w", err)
	}
	return previous, next, nil
}
