package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/openrecords-api/internal/models"
)

// EventRepository appends and reads audit events. Events are never updated or deleted.
type EventRepository struct {
	db sqlx.ExtContext
}

// NewEventRepository constructs the repository over a database handle or transaction.
func NewEventRepository(db sqlx.ExtContext) *EventRepository {
	return &EventRepository{db: db}
}

// CreateEvent appends an event.
func (r *EventRepository) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.NewValue.Version == 0 {
		event.NewValue.Version = models.SnapshotVersion
	}
	const query = `INSERT INTO events (id, request_id, response_id, user_guid, type, timestamp, previous_value, new_value)
	VALUES (:id, :request_id, :response_id, :user_guid, :type, :timestamp, :previous_value, :new_value)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// ListEvents returns events in chronological order.
func (r *EventRepository) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, request_id, response_id, user_guid, type, timestamp, previous_value, new_value FROM events`)

	conditions := make([]string, 0, 3)
	if filter.RequestID != "" {
		args = append(args, filter.RequestID)
		conditions = append(conditions, fmt.Sprintf("request_id = $%d", len(args)))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, eventType := range filter.Types {
			args = append(args, eventType)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Since != nil {
		args = append(args, filter.Since.UTC())
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY timestamp ASC, id ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var events []models.Event
	if err := sqlx.SelectContext(ctx, r.db, &events, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
