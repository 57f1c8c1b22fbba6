package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/repository"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

// CounterReset records one agency whose sequence was reset.
type CounterReset struct {
	AgencyEIN string `json:"agency_ein"`
	Previous  int    `json:"previous"`
	Next      int    `json:"next"`
}

type reasonLister interface {
	ListForAgency(ctx context.Context, agencyEIN string, kind models.ReasonKind) ([]models.Reason, error)
}

// AgencyService owns the per-agency request number sequence.
type AgencyService struct {
	store    txRunner
	agencies agencyLister
	users    userReader
	reasons  reasonLister
	logger   *zap.Logger
	now      func() time.Time
	loc      *time.Location
}

// NewAgencyService constructs the service.
func NewAgencyService(store txRunner, agencies agencyLister, users userReader, logger *zap.Logger) *AgencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgencyService{store: store, agencies: agencies, users: users, logger: logger, now: time.Now, loc: time.UTC}
}

// WithLocation sets the zone whose calendar year scopes request numbers.
func (s *AgencyService) WithLocation(loc *time.Location) *AgencyService {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// List returns the agencies, active ones only when asked.
func (s *AgencyService) List(ctx context.Context, activeOnly bool) ([]models.Agency, error) {
	agencies, err := s.agencies.ListAgencies(ctx, activeOnly)
	if err != nil {
		return nil, storeError(err, "failed to list agencies")
	}
	return agencies, nil
}

// WithReasons enables ListReasons.
func (s *AgencyService) WithReasons(reasons reasonLister) *AgencyService {
	s.reasons = reasons
	return s
}

// ListReasons returns the canned reasons an agency may cite, shared ones included.
func (s *AgencyService) ListReasons(ctx context.Context, agencyEIN string, kind models.ReasonKind) ([]models.Reason, error) {
	if s.reasons == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "reasons are not configured")
	}
	switch kind {
	case "", models.ReasonDenial, models.ReasonClosing, models.ReasonReopening:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown reason type "+string(kind))
	}
	reasons, err := s.reasons.ListForAgency(ctx, agencyEIN, kind)
	if err != nil {
		return nil, storeError(err, "failed to list reasons")
	}
	return reasons, nil
}

// RequireSuperUser fails with FORBIDDEN unless the actor is an active super user.
func (s *AgencyService) RequireSuperUser(ctx context.Context, actorGUID string) error {
	if actorGUID == "" {
		return appErrors.ErrUnauthorized
	}
	user, err := s.users.FindByGUID(ctx, actorGUID)
	if err != nil {
		return notFoundOr(err, "user not found", "failed to load actor")
	}
	if !user.IsSuperUser {
		return appErrors.Clone(appErrors.ErrForbidden, "super user required")
	}
	return nil
}

// ResetRequestCounters realigns every agency's sequence with the current year:
// it restarts at 1, or just past the highest id already issued this year.
// An empty actor is the scheduler; a named actor must be a super user.
func (s *AgencyService) ResetRequestCounters(ctx context.Context, actorGUID string) ([]CounterReset, error) {
	if actorGUID != "" {
		if err := s.RequireSuperUser(ctx, actorGUID); err != nil {
			return nil, err
		}
	}
	agencies, err := s.agencies.ListAgencies(ctx, false)
	if err != nil {
		return nil, storeError(err, "failed to list agencies")
	}

	now := s.now().UTC()
	year := now.In(s.loc).Year()
	resets := make([]CounterReset, 0, len(agencies))
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		for _, agency := range agencies {
			before, after, err := tx.ResetRequestNumber(ctx, agency.EIN, year)
			if err != nil {
				return notFoundOr(err, "agency not found", "failed to reset request counter")
			}
			prevSnap := models.NewSnapshot()
			prevSnap.AgencyEIN = &agency.EIN
			prevSnap.NextRequestNumber = &before
			nextSnap := models.NewSnapshot()
			nextSnap.AgencyEIN = &agency.EIN
			nextSnap.NextRequestNumber = &after
			if err := tx.CreateEvent(ctx, newEvent(models.EventAgencyCounterReset, "", actorGUID, &prevSnap, nextSnap, now)); err != nil {
				return storeError(err, "failed to record event")
			}
			resets = append(resets, CounterReset{AgencyEIN: agency.EIN, Previous: before, Next: after})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("request counters reset", zap.Int("agencies", len(resets)), zap.Int("year", year))
	return resets, nil
}
