package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/models"
)

func TestEventRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	requestID := "FOIL-2024-0002-00001"
	prev := models.NewSnapshot().WithStatus(models.RequestStatusOpen)
	event := &models.Event{
		RequestID:     &requestID,
		Type:          models.EventRequestStatusChanged,
		PreviousValue: &prev,
		NewValue:      models.Snapshot{}.WithStatus(models.RequestStatusDueSoon),
	}
	require.NoError(t, repo.CreateEvent(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, models.SnapshotVersion, event.NewValue.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryListDecodesSnapshots(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	rows := sqlmock.NewRows([]string{"id", "request_id", "response_id", "user_guid", "type", "timestamp", "previous_value", "new_value"}).
		AddRow("evt-1", "FOIL-2024-0002-00001", nil, nil, "REQ_CREATED", time.Now(), nil, `{"v":1,"status":"Open"}`).
		AddRow("evt-2", "FOIL-2024-0002-00001", nil, nil, "REQ_STATUS_CHANGED", time.Now(), `{"v":1,"status":"Open"}`, `{"v":1,"status":"Due Soon"}`)
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE request_id = $1 AND type IN ($2)")).
		WithArgs("FOIL-2024-0002-00001", models.EventRequestStatusChanged).
		WillReturnRows(rows)

	events, err := repo.ListEvents(context.Background(), models.EventFilter{
		RequestID: "FOIL-2024-0002-00001",
		Types:     []models.EventType{models.EventRequestStatusChanged},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].PreviousValue)
	assert.Nil(t, events[0].UserGUID)
	require.NotNil(t, events[1].PreviousValue)
	assert.Equal(t, models.RequestStatusOpen, *events[1].PreviousValue.Status)
	assert.Equal(t, models.RequestStatusDueSoon, *events[1].NewValue.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
