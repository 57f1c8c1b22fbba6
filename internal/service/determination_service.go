package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/calendar"
	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/permission"
	"github.com/noah-isme/openrecords-api/internal/repository"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

type reasonReader interface {
	FindByIDs(ctx context.Context, ids []int) ([]models.Reason, error)
}

// ReasonSeparator joins canned reason texts in a determination.
const ReasonSeparator = "|"

// DeterminationService issues the determinations that drive the status machine.
type DeterminationService struct {
	workflow
	reasons reasonReader
}

// NewDeterminationService constructs the service.
func NewDeterminationService(store txRunner, requests requestReader, reasons reasonReader, auth authorizer, cal *calendar.Calendar, cfg WorkflowConfig, logger *zap.Logger, opts ...WorkflowOption) *DeterminationService {
	return &DeterminationService{
		workflow: newWorkflow(store, requests, auth, cal, cfg, logger, opts),
		reasons:  reasons,
	}
}

// dueDateInput is the validated {days|date} pair. A date wins over days.
type dueDateInput struct {
	days int
	date *time.Time
}

func parseDueDateInput(days int, rawDate string) (dueDateInput, error) {
	if rawDate != "" {
		date, err := parseDate(rawDate)
		if err != nil {
			return dueDateInput{}, err
		}
		return dueDateInput{date: &date}, nil
	}
	if days == dto.CustomDateDays {
		return dueDateInput{}, appErrors.Clone(appErrors.ErrValidation, "date is required when days is -1")
	}
	return dueDateInput{days: days}, nil
}

func (in dueDateInput) resolve(cal *calendar.Calendar, base time.Time) time.Time {
	if in.date != nil {
		return cal.DueDateOn(*in.date)
	}
	return cal.DueDate(base, in.days)
}

// Acknowledge records the single acknowledgment of a request and sets its first
// due date, counted from the submission date. A request the sweeper already
// marked Due Soon or Overdue is re-tiered against the new date.
func (s *DeterminationService) Acknowledge(ctx context.Context, actorGUID, requestID string, req dto.AcknowledgePayload) (resp *models.Response, err error) {
	var change *Change
	defer func() { s.complete(ctx, "acknowledge", change, err) }()

	if err = s.validate(req); err != nil {
		return nil, err
	}
	input, err := parseDueDateInput(req.Days, req.Date)
	if err != nil {
		return nil, err
	}
	if input.date == nil && input.days == 0 {
		input.days = s.cfg.AcknowledgmentDays
	}
	if _, err = s.authorize(ctx, actorGUID, requestID, permission.Acknowledge); err != nil {
		return nil, err
	}

	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockOpenRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		acknowledged, err := tx.HasLiveDetermination(ctx, requestID, models.DeterminationAcknowledgment)
		if err != nil {
			return storeError(err, "failed to check acknowledgment")
		}
		if acknowledged {
			return appErrors.ErrAlreadyAcknowledged
		}

		due := input.resolve(s.calendar, request.SubmittedAt)
		status := models.RequestStatusInProgress
		if request.Status == models.RequestStatusDueSoon || request.Status == models.RequestStatusOverdue {
			status = retierAfterExtension(s.calendar, request.Status, due, now, s.cfg.DueSoonDays)
		}
		det := &models.Determination{DeterminationKind: models.DeterminationAcknowledgment, Reason: stringPtr(req.Info), DueDate: &due}
		change, err = s.applyDetermination(ctx, tx, request, det, status, models.EventRequestAcknowledged, actorGUID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change.Response, nil
}

// Extend moves the due date strictly later. Due Soon and Overdue requests are
// re-tiered against the new date; Open and In Progress keep their status. The
// new date is not required to lie in the future.
func (s *DeterminationService) Extend(ctx context.Context, actorGUID, requestID string, req dto.ExtendPayload) (resp *models.Response, err error) {
	var change *Change
	defer func() { s.complete(ctx, "extend", change, err) }()

	if err = s.validate(req); err != nil {
		return nil, err
	}
	input, err := parseDueDateInput(req.Days, req.Date)
	if err != nil {
		return nil, err
	}
	if input.date == nil && input.days <= 0 {
		err = appErrors.Clone(appErrors.ErrValidation, "days or date is required")
		return nil, err
	}
	if _, err = s.authorize(ctx, actorGUID, requestID, permission.Extend); err != nil {
		return nil, err
	}

	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockOpenRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		due := input.resolve(s.calendar, request.DueDate)
		if !due.After(request.DueDate) {
			return appErrors.ErrDueDateNotLater
		}
		status := retierAfterExtension(s.calendar, request.Status, due, now, s.cfg.DueSoonDays)
		det := &models.Determination{DeterminationKind: models.DeterminationExtension, Reason: stringPtr(req.Reason), DueDate: &due}
		change, err = s.applyDetermination(ctx, tx, request, det, status, models.EventRequestExtended, actorGUID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change.Response, nil
}

// Deny closes the request with a denial.
func (s *DeterminationService) Deny(ctx context.Context, actorGUID, requestID string, req dto.ReasonPayload) (*models.Response, error) {
	return s.terminate(ctx, "deny", actorGUID, requestID, req, permission.Deny, models.DeterminationDenial, models.EventRequestDenied)
}

// Close closes the request with a closing.
func (s *DeterminationService) Close(ctx context.Context, actorGUID, requestID string, req dto.ReasonPayload) (*models.Response, error) {
	return s.terminate(ctx, "close", actorGUID, requestID, req, permission.Close, models.DeterminationClosing, models.EventRequestClosed)
}

func (s *DeterminationService) terminate(ctx context.Context, operation, actorGUID, requestID string, req dto.ReasonPayload, required permission.Mask, kind models.DeterminationKind, eventType models.EventType) (resp *models.Response, err error) {
	var change *Change
	defer func() { s.complete(ctx, operation, change, err) }()

	if err = s.validate(req); err != nil {
		return nil, err
	}
	if len(req.ReasonIDs) == 0 && strings.TrimSpace(req.Reason) == "" {
		err = appErrors.Clone(appErrors.ErrValidation, "at least one reason is required")
		return nil, err
	}
	request, err := s.authorize(ctx, actorGUID, requestID, required)
	if err != nil {
		return nil, err
	}
	reason, err := s.aggregateReasons(ctx, request.AgencyEIN, req.ReasonIDs, req.Reason)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		locked, err := lockOpenRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		det := &models.Determination{DeterminationKind: kind, Reason: &reason}
		change, err = s.applyDetermination(ctx, tx, locked, det, models.RequestStatusClosed, eventType, actorGUID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change.Response, nil
}

// Reopen returns a closed request to In Progress with a new due date that must
// fall after now once moved to a business day at 17:00.
func (s *DeterminationService) Reopen(ctx context.Context, actorGUID, requestID string, req dto.ReopenPayload) (resp *models.Response, err error) {
	var change *Change
	defer func() { s.complete(ctx, "reopen", change, err) }()

	if err = s.validate(req); err != nil {
		return nil, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	due := s.calendar.DueDateOn(date)
	if !due.After(now) {
		err = appErrors.Clone(appErrors.ErrValidation, "reopening date must be in the future")
		return nil, err
	}
	if _, err = s.authorize(ctx, actorGUID, requestID, permission.Reopen); err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !request.IsClosed() {
			return appErrors.ErrNotClosed
		}
		det := &models.Determination{DeterminationKind: models.DeterminationReopening, Reason: stringPtr(req.Reason), DueDate: &due}
		change, err = s.applyDetermination(ctx, tx, request, det, models.RequestStatusInProgress, models.EventRequestReopened, actorGUID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change.Response, nil
}

// applyDetermination writes the new request state, the determination and its
// event. A nil due date on the determination keeps the current one.
func (s *DeterminationService) applyDetermination(ctx context.Context, tx repository.Tx, request *models.Request, det *models.Determination, status models.RequestStatus, eventType models.EventType, actorGUID string, now time.Time) (*Change, error) {
	due := request.DueDate
	if det.DueDate != nil {
		due = *det.DueDate
	}
	previous := models.NewSnapshot().WithStatus(request.Status).WithDueDate(request.DueDate)
	if err := tx.UpdateRequestState(ctx, models.UpdateRequestStateParams{ID: request.ID, Status: status, DueDate: due}); err != nil {
		return nil, storeError(err, "failed to update request")
	}

	response := newResponse(request.ID, models.PrivacyReleaseAndPublic, det, now)
	if err := tx.CreateResponse(ctx, response); err != nil {
		return nil, storeError(err, "failed to create determination")
	}

	next := responseSnapshot(response).WithStatus(status).WithDueDate(due)
	event := newEvent(eventType, request.ID, actorGUID, &previous, next, now)
	event.ResponseID = &response.ID
	if err := tx.CreateEvent(ctx, event); err != nil {
		return nil, storeError(err, "failed to record event")
	}

	updated := *request
	updated.Status = status
	updated.DueDate = due
	s.recordTransition(request.Status, status, string(eventType))
	return &Change{Request: &updated, Event: event, Response: response, ActorGUID: actorGUID}, nil
}

// aggregateReasons resolves canned reasons in the order given and joins their
// text. Free text, when present, is appended last.
func (s *DeterminationService) aggregateReasons(ctx context.Context, agencyEIN string, ids []int, free string) (string, error) {
	parts := make([]string, 0, len(ids)+1)
	if len(ids) > 0 {
		found, err := s.reasons.FindByIDs(ctx, ids)
		if err != nil {
			return "", storeError(err, "failed to load reasons")
		}
		byID := make(map[int]models.Reason, len(found))
		for _, r := range found {
			if r.AgencyEIN != nil && *r.AgencyEIN != agencyEIN {
				continue
			}
			byID[r.ID] = r
		}
		for _, id := range ids {
			reason, ok := byID[id]
			if !ok {
				return "", appErrors.Clone(appErrors.ErrUnknownReason, "unknown reason id "+strconv.Itoa(id))
			}
			parts = append(parts, reason.Content)
		}
	}
	if text := strings.TrimSpace(free); text != "" {
		parts = append(parts, text)
	}
	return strings.Join(parts, ReasonSeparator), nil
}
