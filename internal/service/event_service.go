package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/permission"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
	"github.com/noah-isme/openrecords-api/pkg/export"
)

type eventReader interface {
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
}

// ExportFile is a rendered audit trail.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// EventService exposes the audit trail of a request to agency staff.
type EventService struct {
	requests  requestReader
	events    eventReader
	auth      authorizer
	exporters map[string]export.Exporter
	validate  func(interface{}) error
	logger    *zap.Logger
}

// NewEventService constructs the service with CSV and PDF exporters.
func NewEventService(requests requestReader, events eventReader, auth authorizer, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := NewValidator()
	return &EventService{
		requests: requests,
		events:   events,
		auth:     auth,
		exporters: map[string]export.Exporter{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		validate: func(payload interface{}) error {
			if err := v.Struct(payload); err != nil {
				return validationError(err)
			}
			return nil
		},
		logger: logger,
	}
}

func (s *EventService) authorize(ctx context.Context, actorGUID, requestID string) error {
	if !models.ValidRequestID(requestID) {
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	request, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return notFoundOr(err, "request not found", "failed to load request")
	}
	return s.auth.Require(ctx, actorGUID, request, permission.ViewRequestInfoAll)
}

// List returns the request's events in commit order.
func (s *EventService) List(ctx context.Context, actorGUID, requestID string, query dto.EventQuery) ([]models.Event, error) {
	if err := s.validate(query); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorGUID, requestID); err != nil {
		return nil, err
	}
	filter := models.EventFilter{RequestID: requestID, Types: query.Types, Limit: query.Limit, Offset: query.Offset}
	if query.Since != "" {
		since, err := time.Parse(time.RFC3339, query.Since)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "since must be RFC3339")
		}
		filter.Since = &since
	}
	events, err := s.events.ListEvents(ctx, filter)
	if err != nil {
		return nil, storeError(err, "failed to list events")
	}
	return events, nil
}

// Export renders the full audit trail of a request as csv or pdf.
func (s *EventService) Export(ctx context.Context, actorGUID, requestID, format string) (*ExportFile, error) {
	exporter, ok := s.exporters[strings.ToLower(format)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err := s.authorize(ctx, actorGUID, requestID); err != nil {
		return nil, err
	}
	events, err := s.events.ListEvents(ctx, models.EventFilter{RequestID: requestID, Limit: 1000})
	if err != nil {
		return nil, storeError(err, "failed to list events")
	}
	body, err := exporter.Render(eventDataset(requestID, events))
	if err != nil {
		s.logger.Error("audit export failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("%s-audit.%s", requestID, exporter.Extension()),
		ContentType: exporter.ContentType(),
		Body:        body,
	}, nil
}

func eventDataset(requestID string, events []models.Event) export.Dataset {
	data := export.Dataset{
		Title:   "Audit trail " + requestID,
		Headers: []string{"Timestamp", "Type", "User", "Response", "Previous", "New"},
		Rows:    make([][]string, 0, len(events)),
	}
	for _, e := range events {
		data.Rows = append(data.Rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Type),
			deref(e.UserGUID, "system"),
			deref(e.ResponseID, ""),
			describeSnapshot(e.PreviousValue),
			describeSnapshot(&e.NewValue),
		})
	}
	return data
}

func describeSnapshot(s *models.Snapshot) string {
	if s == nil || s.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, 4)
	if s.Status != nil {
		parts = append(parts, "status="+string(*s.Status))
	}
	if s.DueDate != nil {
		parts = append(parts, "due_date="+s.DueDate.UTC().Format(time.RFC3339))
	}
	if s.DeterminationKind != nil {
		parts = append(parts, "determination="+string(*s.DeterminationKind))
	}
	if s.ResponseKind != nil {
		parts = append(parts, "response="+string(*s.ResponseKind))
	}
	if s.Reason != nil {
		parts = append(parts, "reason="+*s.Reason)
	}
	if s.UserGUID != nil {
		parts = append(parts, "user="+*s.UserGUID)
	}
	if s.Permissions != nil {
		parts = append(parts, "permissions="+s.Permissions.String())
	}
	if s.PointOfContact != nil {
		parts = append(parts, fmt.Sprintf("point_of_contact=%t", *s.PointOfContact))
	}
	if s.TitlePrivate != nil {
		parts = append(parts, fmt.Sprintf("privacy_title=%t", *s.TitlePrivate))
	}
	if s.SummaryPrivate != nil {
		parts = append(parts, fmt.Sprintf("privacy_summary=%t", *s.SummaryPrivate))
	}
	if s.Deleted != nil {
		parts = append(parts, fmt.Sprintf("deleted=%t", *s.Deleted))
	}
	if s.NextRequestNumber != nil {
		parts = append(parts, fmt.Sprintf("next_request_number=%d", *s.NextRequestNumber))
	}
	return strings.Join(parts, "; ")
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
