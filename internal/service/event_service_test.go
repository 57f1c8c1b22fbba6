package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

func TestEventListFiltersAndAuthorizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seedRequest(t)
	_, err := f.determination.Acknowledge(ctx, officerGUID, r.ID, dto.AcknowledgePayload{Days: 5})
	require.NoError(t, err)
	_, err = f.responses.AddNote(ctx, officerGUID, r.ID, dto.NotePayload{Content: "n"})
	require.NoError(t, err)

	events, err := f.events.List(ctx, officerGUID, r.ID, dto.EventQuery{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.EventRequestCreated, events[0].Type)
	assert.Equal(t, models.EventRequestAcknowledged, events[1].Type)
	assert.Equal(t, models.EventNoteAdded, events[2].Type)

	events, err = f.events.List(ctx, officerGUID, r.ID, dto.EventQuery{Types: []models.EventType{models.EventNoteAdded}})
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = f.events.List(ctx, requesterGUID, r.ID, dto.EventQuery{})
	requireCode(t, err, appErrors.ErrForbidden)
	_, err = f.events.List(ctx, officerGUID, r.ID, dto.EventQuery{Since: "yesterday"})
	requireCode(t, err, appErrors.ErrValidation)
	_, err = f.events.List(ctx, officerGUID, "bogus", dto.EventQuery{})
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestEventExportCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seedRequest(t)
	_, err := f.determination.Close(ctx, officerGUID, r.ID, dto.ReasonPayload{ReasonIDs: []int{7}})
	require.NoError(t, err)

	file, err := f.events.Export(ctx, officerGUID, r.ID, "CSV")
	require.NoError(t, err)
	assert.Equal(t, r.ID+"-audit.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	records, err := csv.NewReader(bytes.NewReader(file.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Timestamp", "Type", "User", "Response", "Previous", "New"}, records[0])
	assert.Equal(t, "REQ_CLOSED", records[2][1])
	assert.Equal(t, officerGUID, records[2][2])
	assert.Equal(t, "status=Open; due_date=2024-06-10T21:00:00Z", records[2][4])
	assert.Contains(t, records[2][5], "status=Closed")
	assert.Contains(t, records[2][5], "reason=Not a record")
}

func TestEventExportRejectsUnknownFormat(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t)

	_, err := f.events.Export(context.Background(), officerGUID, r.ID, "xlsx")
	requireCode(t, err, appErrors.ErrValidation)
}
