package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/openrecords-api/internal/models"
)

// ReasonRepository reads canned determination reasons.
type ReasonRepository struct {
	db sqlx.ExtContext
}

// NewReasonRepository constructs the repository.
func NewReasonRepository(db sqlx.ExtContext) *ReasonRepository {
	return &ReasonRepository{db: db}
}

// FindByIDs returns the reasons with the given ids in no particular order.
// Callers are responsible for ordering and detecting missing ids.
func (r *ReasonRepository) FindByIDs(ctx context.Context, ids []int) ([]models.Reason, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, title, content, type, agency_ein FROM reasons WHERE id = ANY($1)`
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}
	var reasons []models.Reason
	if err := sqlx.SelectContext(ctx, r.db, &reasons, query, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("find reasons: %w", err)
	}
	return reasons, nil
}

// ListForAgency returns global reasons plus the agency's own. An empty kind
// returns every kind.
func (r *ReasonRepository) ListForAgency(ctx context.Context, agencyEIN string, kind models.ReasonKind) ([]models.Reason, error) {
	const query = `SELECT id, title, content, type, agency_ein FROM reasons
	WHERE ($1 = '' OR type = $1) AND (agency_ein IS NULL OR agency_ein = $2) ORDER BY id`
	var reasons []models.Reason
	if err := sqlx.SelectContext(ctx, r.db, &reasons, query, kind, agencyEIN); err != nil {
		return nil, fmt.Errorf("list reasons: %w", err)
	}
	return reasons, nil
}
