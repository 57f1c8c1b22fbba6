package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/calendar"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/permission"
	"github.com/noah-isme/openrecords-api/internal/repository"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
	"github.com/noah-isme/openrecords-api/pkg/logger"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

type requestReader interface {
	GetRequest(ctx context.Context, id string) (*models.Request, error)
}

type authorizer interface {
	Check(ctx context.Context, actorGUID string, request *models.Request, required permission.Mask) (Decision, error)
	Require(ctx context.Context, actorGUID string, request *models.Request, required permission.Mask) error
}

// WorkflowConfig carries the lifecycle tunables.
type WorkflowConfig struct {
	AcknowledgmentDays int
	DueSoonDays        int
}

func (c WorkflowConfig) withDefaults() WorkflowConfig {
	if c.AcknowledgmentDays <= 0 {
		c.AcknowledgmentDays = 5
	}
	if c.DueSoonDays <= 0 {
		c.DueSoonDays = 2
	}
	return c
}

// WorkflowOption configures the workflow services.
type WorkflowOption func(*workflow)

// WithHooks sets the post-commit hooks.
func WithHooks(h Hooks) WorkflowOption {
	return func(w *workflow) {
		if h != nil {
			w.hooks = h
		}
	}
}

// WithMetrics enables transition and operation metrics.
func WithMetrics(m *MetricsService) WorkflowOption {
	return func(w *workflow) { w.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) WorkflowOption {
	return func(w *workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// WithValidator overrides the payload validator.
func WithValidator(v *validator.Validate) WorkflowOption {
	return func(w *workflow) {
		if v != nil {
			registerWorkflowValidations(v)
			w.validator = v
		}
	}
}

// workflow holds what every mutating service shares: the transactional
// store, the authorization gateway, the calendar and the post-commit path.
type workflow struct {
	store     txRunner
	requests  requestReader
	auth      authorizer
	calendar  *calendar.Calendar
	cfg       WorkflowConfig
	hooks     Hooks
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func newWorkflow(store txRunner, requests requestReader, auth authorizer, cal *calendar.Calendar, cfg WorkflowConfig, logger *zap.Logger, opts []WorkflowOption) workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := workflow{
		store:    store,
		requests: requests,
		auth:     auth,
		calendar: cal,
		cfg:      cfg.withDefaults(),
		hooks:    NopHooks{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&w)
		}
	}
	if w.validator == nil {
		w.validator = NewValidator()
	}
	return w
}

func (w *workflow) clock() time.Time {
	return w.now().UTC()
}

func (w *workflow) validate(payload interface{}) error {
	if err := w.validator.Struct(payload); err != nil {
		return validationError(err)
	}
	return nil
}

func (w *workflow) loadRequest(ctx context.Context, id string) (*models.Request, error) {
	if !models.ValidRequestID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	request, err := w.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	return request, nil
}

// authorize loads the request and requires the capability. The owning agency
// never changes, so the decision holds for the transaction that follows.
func (w *workflow) authorize(ctx context.Context, actorGUID, requestID string, required permission.Mask) (*models.Request, error) {
	request, err := w.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := w.auth.Require(ctx, actorGUID, request, required); err != nil {
		return nil, err
	}
	return request, nil
}

func lockRequest(ctx context.Context, tx repository.Tx, id string) (*models.Request, error) {
	request, err := tx.LockRequest(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to lock request")
	}
	return request, nil
}

func lockOpenRequest(ctx context.Context, tx repository.Tx, id string) (*models.Request, error) {
	request, err := lockRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if request.IsClosed() {
		return nil, appErrors.ErrAlreadyClosed
	}
	return request, nil
}

// complete records the outcome of an operation and, on success, runs the hooks.
func (w *workflow) complete(ctx context.Context, operation string, change *Change, err error) {
	if err != nil {
		outcome := appErrors.ErrInternal.Code
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			outcome = appErr.Code
		}
		w.metrics.RecordOperation(operation, outcome)
		if outcome == appErrors.ErrInternal.Code || outcome == appErrors.ErrTransactionConflict.Code {
			logger.WithContext(ctx, w.logger).Error("workflow operation failed", zap.String("operation", operation), zap.Error(err))
		}
		return
	}
	w.metrics.RecordOperation(operation, "ok")
	if change != nil {
		w.hooks.RequestChanged(context.WithoutCancel(ctx), *change)
	}
}

func (w *workflow) recordTransition(from, to models.RequestStatus, trigger string) {
	w.metrics.RecordTransition(string(from), string(to), trigger)
}

func newResponse(requestID string, privacy models.ResponsePrivacy, payload models.Payload, now time.Time) *models.Response {
	editable := true
	switch payload.(type) {
	case *models.Determination, *models.Email:
		editable = false
	}
	return &models.Response{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Privacy:   privacy,
		CreatedAt: now,
		UpdatedAt: now,
		Editable:  editable,
		Payload:   payload,
	}
}

func newEvent(eventType models.EventType, requestID, actorGUID string, previous *models.Snapshot, next models.Snapshot, now time.Time) *models.Event {
	event := &models.Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Timestamp:     now,
		PreviousValue: previous,
		NewValue:      next,
	}
	if requestID != "" {
		event.RequestID = &requestID
	}
	if actorGUID != "" {
		event.UserGUID = &actorGUID
	}
	return event
}

func responseSnapshot(response *models.Response) models.Snapshot {
	kind := response.Kind()
	privacy := response.Privacy
	snap := models.NewSnapshot()
	snap.ResponseKind = &kind
	snap.Privacy = &privacy
	switch p := response.Payload.(type) {
	case *models.Note:
		snap.Content = &p.Content
	case *models.Instruction:
		snap.Content = &p.Content
	case *models.Link:
		snap.Title = &p.Title
		snap.URL = &p.URL
	case *models.File:
		snap.Title = &p.Title
		snap.ObjectKey = &p.ObjectKey
	case *models.Email:
		snap.Content = &p.Subject
	case *models.Determination:
		snap.DeterminationKind = &p.DeterminationKind
		snap.Reason = p.Reason
		if p.DueDate != nil {
			snap = snap.WithDueDate(*p.DueDate)
		}
	}
	return snap
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return storeError(err, internal)
}

// storeError keeps typed errors intact and wraps everything else as internal.
func storeError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
