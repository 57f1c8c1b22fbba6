package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/calendar"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/repository"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

type agencyLister interface {
	ListAgencies(ctx context.Context, activeOnly bool) ([]models.Agency, error)
}

type agencyAdminLister interface {
	ListAgencyAdmins(ctx context.Context, agencyEIN string) ([]models.User, error)
}

// SweepError is a per-request failure collected during a sweep.
type SweepError struct {
	AgencyEIN string `json:"agency_ein"`
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

func (e SweepError) Error() string {
	if e.RequestID == "" {
		return e.AgencyEIN + ": " + e.Message
	}
	return e.RequestID + ": " + e.Message
}

// SweepReport summarises one status sweep.
type SweepReport struct {
	RanAt        time.Time         `json:"ran_at"`
	Transitioned []SweepTransition `json:"transitioned"`
	Errors       []SweepError      `json:"errors"`
}

// sweepStatuses are the statuses the sweeper may still move.
var sweepStatuses = []models.RequestStatus{
	models.RequestStatusOpen,
	models.RequestStatusInProgress,
	models.RequestStatusDueSoon,
}

// SweeperService moves requests into Due Soon and Overdue as deadlines approach.
type SweeperService struct {
	workflow
	agencies agencyLister
	lister   requestLister
	admins   agencyAdminLister
}

// NewSweeperService constructs the sweeper.
func NewSweeperService(store txRunner, agencies agencyLister, lister requestLister, cal *calendar.Calendar, cfg WorkflowConfig, logger *zap.Logger, opts ...WorkflowOption) *SweeperService {
	return &SweeperService{
		workflow: newWorkflow(store, nil, nil, cal, cfg, logger, opts),
		agencies: agencies,
		lister:   lister,
	}
}

// WithRecipients addresses each agency digest to the agency's active administrators.
func (s *SweeperService) WithRecipients(admins agencyAdminLister) *SweeperService {
	s.admins = admins
	return s
}

// RunStatusSweep evaluates every open request of every active agency at now.
// Each transition commits on its own; failures are collected and do not stop
// the sweep. Successful transitions are reported once per agency.
func (s *SweeperService) RunStatusSweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	started := time.Now()
	now = now.UTC()
	report := &SweepReport{RanAt: now, Transitioned: []SweepTransition{}, Errors: []SweepError{}}

	agencies, err := s.agencies.ListAgencies(ctx, true)
	if err != nil {
		s.metrics.ObserveSweep(time.Since(started), 0, true)
		return nil, storeError(err, "failed to list agencies")
	}

	for _, agency := range agencies {
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveSweep(time.Since(started), len(report.Errors), true)
			return report, err
		}
		digest := SweepDigest{AgencyEIN: agency.EIN, RanAt: now}
		requests, err := s.lister.List(ctx, models.RequestFilter{AgencyEIN: agency.EIN, Statuses: sweepStatuses})
		if err != nil {
			report.Errors = append(report.Errors, SweepError{AgencyEIN: agency.EIN, Message: "list requests failed", Err: err})
			continue
		}
		for i := range requests {
			candidate := &requests[i]
			if _, err := SweepTarget(s.calendar, candidate, now, s.cfg.DueSoonDays); err != nil {
				continue
			}
			transition, err := s.transition(ctx, candidate.ID, now)
			if err != nil {
				if errors.Is(err, appErrors.ErrAlreadyInState) {
					continue
				}
				s.logger.Warn("sweep transition failed", zap.String("request_id", candidate.ID), zap.Error(err))
				report.Errors = append(report.Errors, SweepError{AgencyEIN: agency.EIN, RequestID: candidate.ID, Message: err.Error(), Err: err})
				continue
			}
			digest.Transitions = append(digest.Transitions, *transition)
			report.Transitioned = append(report.Transitioned, *transition)
		}
		if len(digest.Transitions) > 0 {
			digest.Recipients = s.recipients(ctx, agency.EIN)
			s.hooks.SweepCompleted(context.WithoutCancel(ctx), digest)
		}
	}

	s.metrics.ObserveSweep(time.Since(started), len(report.Errors), false)
	s.logger.Info("status sweep finished",
		zap.Time("now", now),
		zap.Int("transitioned", len(report.Transitioned)),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

func (s *SweeperService) recipients(ctx context.Context, agencyEIN string) []string {
	if s.admins == nil {
		return nil
	}
	admins, err := s.admins.ListAgencyAdmins(ctx, agencyEIN)
	if err != nil {
		s.logger.Warn("digest recipients unavailable", zap.String("agency_ein", agencyEIN), zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(admins))
	for _, admin := range admins {
		if admin.Email != "" {
			out = append(out, admin.Email)
		}
	}
	return out
}

// transition re-evaluates the request under its row lock so a concurrent
// extension that committed first is respected.
func (s *SweeperService) transition(ctx context.Context, requestID string, now time.Time) (*SweepTransition, error) {
	var (
		result *SweepTransition
		change *Change
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		target, err := SweepTarget(s.calendar, request, now, s.cfg.DueSoonDays)
		if err != nil {
			return err
		}
		if err := tx.UpdateRequestState(ctx, models.UpdateRequestStateParams{ID: request.ID, Status: target, DueDate: request.DueDate}); err != nil {
			return storeError(err, "failed to update request status")
		}
		previous := models.NewSnapshot().WithStatus(request.Status)
		event := newEvent(models.EventRequestStatusChanged, request.ID, "", &previous, models.NewSnapshot().WithStatus(target), now)
		if err := tx.CreateEvent(ctx, event); err != nil {
			return storeError(err, "failed to record event")
		}
		result = &SweepTransition{RequestID: request.ID, From: request.Status, To: target, DueDate: request.DueDate}
		updated := *request
		updated.Status = target
		change = &Change{Request: &updated, Event: event, Batched: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(result.From, result.To, "sweep")
	s.hooks.RequestChanged(context.WithoutCancel(ctx), *change)
	return result, nil
}
