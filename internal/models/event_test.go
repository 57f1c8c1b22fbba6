package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/permission"
)

func TestSnapshotRoundTripThroughDriver(t *testing.T) {
	due := time.Date(2024, 6, 10, 21, 0, 0, 0, time.UTC)
	snap := NewSnapshot().WithStatus(RequestStatusInProgress).WithDueDate(due).WithPermissions(permission.Union(permission.AddNote, permission.Close))

	raw, err := snap.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"status":"In Progress","due_date":"2024-06-10T21:00:00Z","permissions":4128}`, string(raw.([]byte)))

	var decoded Snapshot
	require.NoError(t, decoded.Scan(raw))
	assert.Equal(t, RequestStatusInProgress, *decoded.Status)
	assert.True(t, due.Equal(*decoded.DueDate))
	assert.Equal(t, permission.Union(permission.AddNote, permission.Close), *decoded.Permissions)
}

func TestSnapshotRejectsFutureVersions(t *testing.T) {
	var s Snapshot
	require.Error(t, s.Scan([]byte(`{"v":99}`)))
	require.Error(t, s.Scan(42))
	require.NoError(t, s.Scan(nil))
	assert.True(t, s.IsEmpty())
}

func TestSnapshotIsEmpty(t *testing.T) {
	assert.True(t, NewSnapshot().IsEmpty())
	assert.False(t, NewSnapshot().WithReason("x").IsEmpty())
}

func TestResponseJSONCarriesTypeAndPayload(t *testing.T) {
	due := time.Date(2024, 6, 10, 21, 0, 0, 0, time.UTC)
	reason := "Acknowledged"
	resp := Response{
		ID:        "r-1",
		RequestID: "FOIL-2024-0002-00001",
		Privacy:   PrivacyReleaseAndPublic,
		Payload:   &Determination{DeterminationKind: DeterminationAcknowledgment, Reason: &reason, DueDate: &due},
	}

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "determination", decoded["type"])
	payload := decoded["payload"].(map[string]interface{})
	assert.Equal(t, "acknowledgment", payload["dtype"])

	det, ok := resp.Determination()
	require.True(t, ok)
	assert.Equal(t, DeterminationAcknowledgment, det.DeterminationKind)

	note := Response{Payload: &Note{Content: "hi"}}
	_, ok = note.Determination()
	assert.False(t, ok)
	assert.Equal(t, ResponseKindNote, note.Kind())
}

func TestRequestIDFormat(t *testing.T) {
	id := FormatRequestID(2024, "0002", 17)
	assert.Equal(t, "FOIL-2024-0002-00017", id)
	assert.True(t, ValidRequestID(id))
	assert.False(t, ValidRequestID("FOIL-24-0002-17"))
}

func TestAgencyFeatureToggles(t *testing.T) {
	agency := &Agency{Features: []byte(`{"letters":true,"digest":"yes"}`)}
	assert.True(t, agency.FeatureEnabled("letters"))
	assert.False(t, agency.FeatureEnabled("digest"))
	assert.False(t, agency.FeatureEnabled("missing"))
}
