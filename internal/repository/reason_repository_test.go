package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/permission"
)

func TestReasonRepositoryFindByIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReasonRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "content", "type", "agency_ein"}).
		AddRow(3, "Privacy", "Disclosure would be an unwarranted invasion of privacy", "denial", nil).
		AddRow(1, "No records", "No responsive records", "denial", "0002")
	mock.ExpectQuery(regexp.QuoteMeta("FROM reasons WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	reasons, err := repo.FindByIDs(context.Background(), []int{1, 3})
	require.NoError(t, err)
	require.Len(t, reasons, 2)
	assert.Equal(t, models.ReasonDenial, reasons[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReasonRepositoryFindByNoIDsSkipsQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReasonRepository(db)

	reasons, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, reasons)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryUpsertsPresets(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoleRepository(db)

	for range permission.Roles {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO roles (name, description, permissions)")).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	require.NoError(t, repo.Upsert(context.Background(), permission.Roles))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReasonRepositoryListForAgency(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReasonRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "content", "type", "agency_ein"}).
		AddRow(1, "No records", "No responsive records", "denial", nil).
		AddRow(8, "Parks exemption", "Parks only", "denial", "0860")
	mock.ExpectQuery(regexp.QuoteMeta("AND (agency_ein IS NULL OR agency_ein = $2) ORDER BY id")).
		WithArgs("denial", "0860").
		WillReturnRows(rows)

	reasons, err := repo.ListForAgency(context.Background(), "0860", models.ReasonDenial)
	require.NoError(t, err)
	require.Len(t, reasons, 2)
	assert.Nil(t, reasons[0].AgencyEIN)
	require.NotNil(t, reasons[1].AgencyEIN)
	assert.Equal(t, "0860", *reasons[1].AgencyEIN)
	assert.NoError(t, mock.ExpectationsWereMet())
}
