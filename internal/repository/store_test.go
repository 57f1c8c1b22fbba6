package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewStore(db)

	due := time.Date(2024, 6, 10, 21, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM requests WHERE id = $1 FOR UPDATE")).
		WithArgs("FOIL-2024-0002-00001").
		WillReturnRows(requestRows().AddRow(requestRowValues("FOIL-2024-0002-00001", models.RequestStatusOpen, due)...))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = $2, due_date = $3 WHERE id = $1")).
		WithArgs("FOIL-2024-0002-00001", models.RequestStatusInProgress, due).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		request, err := tx.LockRequest(context.Background(), "FOIL-2024-0002-00001")
		if err != nil {
			return err
		}
		return tx.UpdateRequestState(context.Background(), models.UpdateRequestStateParams{
			ID: request.ID, Status: models.RequestStatusInProgress, DueDate: request.DueDate,
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(tx Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxMapsSerializationFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.UpdateRequestState(context.Background(), models.UpdateRequestStateParams{ID: "x", Status: models.RequestStatusOverdue, DueDate: time.Now()})
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrTransactionConflict.Code, appErr.Code)
	assert.True(t, appErr.Retryable())
	assert.NoError(t, mock.ExpectationsWereMet())
}
