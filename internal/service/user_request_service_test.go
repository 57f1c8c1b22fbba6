package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/permission"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

const staffGUID = "staff-2"

func withStaff(f *fixture) {
	ein := testAgency
	f.store.putUser(models.User{GUID: staffGUID, AgencyEIN: &ein, IsAgencyActive: true})
}

func TestAddUserWithRolePreset(t *testing.T) {
	f := newFixture(t)
	withStaff(f)
	r := f.seedRequest(t)

	edge, err := f.users.AddUser(context.Background(), officerGUID, r.ID, dto.AddUserPayload{UserGUID: staffGUID, Role: string(permission.RoleAgencyHelper)})
	require.NoError(t, err)
	helper, _ := permission.LookupRole(permission.RoleAgencyHelper)
	assert.Equal(t, helper.Permissions, edge.Permissions)
	assert.Equal(t, models.RequestUserAgency, edge.RequestUserType)

	events := f.store.eventsFor(r.ID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventUserAdded, last.Type)
	assert.Nil(t, last.PreviousValue)
	assert.Equal(t, staffGUID, *last.NewValue.UserGUID)
	assert.Equal(t, helper.Permissions, *last.NewValue.Permissions)

	_, err = f.users.AddUser(context.Background(), officerGUID, r.ID, dto.AddUserPayload{UserGUID: staffGUID, Permissions: []string{"add_note"}})
	requireCode(t, err, appErrors.ErrConflict)
}

func TestAddUserRejectsOutsiders(t *testing.T) {
	f := newFixture(t)
	r := f.seedRequest(t)
	ctx := context.Background()

	_, err := f.users.AddUser(ctx, officerGUID, r.ID, dto.AddUserPayload{UserGUID: outsiderGUID, Role: string(permission.RoleAgencyHelper)})
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.users.AddUser(ctx, officerGUID, r.ID, dto.AddUserPayload{UserGUID: requesterGUID, Role: string(permission.RoleAgencyHelper)})
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.users.AddUser(ctx, officerGUID, r.ID, dto.AddUserPayload{UserGUID: "ghost", Role: string(permission.RoleAgencyHelper)})
	requireCode(t, err, appErrors.ErrNotFound)

	_, err = f.users.AddUser(ctx, officerGUID, r.ID, dto.AddUserPayload{UserGUID: outsiderGUID, Permissions: []string{"fly"}})
	requireCode(t, err, appErrors.ErrValidation)

	withStaff(f)
	_, err = f.users.AddUser(ctx, helperGUID, r.ID, dto.AddUserPayload{UserGUID: staffGUID, Role: string(permission.RoleAgencyHelper)})
	requireCode(t, err, appErrors.ErrForbidden)
}

func TestEditUserPermissionsOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seedRequest(t)
	helper, _ := permission.LookupRole(permission.RoleAgencyHelper)

	edge, err := f.users.EditUserPermissions(ctx, officerGUID, r.ID, helperGUID, dto.EditPermissionsPayload{Operation: dto.PermissionAdd, Permissions: []string{"close", "deny"}})
	require.NoError(t, err)
	assert.Equal(t, helper.Permissions.Add(permission.Union(permission.Close, permission.Deny)), edge.Permissions)

	events := f.store.eventsFor(r.ID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventUserPermissionChanged, last.Type)
	assert.Equal(t, helper.Permissions, *last.PreviousValue.Permissions)
	assert.Equal(t, edge.Permissions, *last.NewValue.Permissions)

	edge, err = f.users.EditUserPermissions(ctx, officerGUID, r.ID, helperGUID, dto.EditPermissionsPayload{Operation: dto.PermissionRemove, Permissions: []string{"deny"}})
	require.NoError(t, err)
	assert.True(t, edge.Permissions.Has(permission.Close))
	assert.False(t, edge.Permissions.Has(permission.Deny))

	edge, err = f.users.EditUserPermissions(ctx, officerGUID, r.ID, helperGUID, dto.EditPermissionsPayload{Operation: dto.PermissionSet, Permissions: []string{"add_note"}})
	require.NoError(t, err)
	assert.Equal(t, permission.AddNote, edge.Permissions)

	count := f.store.eventCount()
	_, err = f.users.EditUserPermissions(ctx, officerGUID, r.ID, helperGUID, dto.EditPermissionsPayload{Operation: dto.PermissionAdd, Permissions: []string{"add_note"}})
	require.NoError(t, err)
	assert.Equal(t, count, f.store.eventCount(), "no-op edit writes nothing")
}

func TestEditUserPermissionsGrantsCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seedRequest(t)

	_, err := f.determination.Close(ctx, helperGUID, r.ID, dto.ReasonPayload{Reason: "done"})
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = f.users.EditUserPermissions(ctx, officerGUID, r.ID, helperGUID, dto.EditPermissionsPayload{Operation: dto.PermissionAdd, Permissions: []string{"close"}})
	require.NoError(t, err)
	_, err = f.determination.Close(ctx, helperGUID, r.ID, dto.ReasonPayload{Reason: "done"})
	require.NoError(t, err)
}

func TestRequesterEdgeIsProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seedRequest(t)

	_, err := f.users.EditUserPermissions(ctx, officerGUID, r.ID, requesterGUID, dto.EditPermissionsPayload{Operation: dto.PermissionAdd, Permissions: []string{"close"}})
	requireCode(t, err, appErrors.ErrValidation)

	err = f.users.RemoveUser(ctx, adminGUID, r.ID, requesterGUID)
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.users.ChangePointOfContact(ctx, officerGUID, r.ID, dto.PointOfContactPayload{UserGUID: requesterGUID})
	requireCode(t, err, appErrors.ErrValidation)
}

func TestRemoveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seedRequest(t)

	require.NoError(t, f.users.RemoveUser(ctx, officerGUID, r.ID, helperGUID))
	_, err := f.store.GetUserRequest(ctx, r.ID, helperGUID)
	require.Error(t, err)

	events := f.store.eventsFor(r.ID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventUserRemoved, last.Type)
	assert.Equal(t, helperGUID, *last.PreviousValue.UserGUID)

	err = f.users.RemoveUser(ctx, officerGUID, r.ID, helperGUID)
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestChangePointOfContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seedRequest(t)

	contact, err := f.users.ChangePointOfContact(ctx, officerGUID, r.ID, dto.PointOfContactPayload{UserGUID: helperGUID})
	require.NoError(t, err)
	assert.True(t, contact.PointOfContact)
	events := f.store.eventsFor(r.ID)
	first := events[len(events)-1]
	assert.Equal(t, models.EventPointOfContactChanged, first.Type)
	assert.Nil(t, first.PreviousValue)

	_, err = f.users.ChangePointOfContact(ctx, officerGUID, r.ID, dto.PointOfContactPayload{UserGUID: officerGUID})
	require.NoError(t, err)
	helperEdge, err := f.store.GetUserRequest(ctx, r.ID, helperGUID)
	require.NoError(t, err)
	assert.False(t, helperEdge.PointOfContact)
	events = f.store.eventsFor(r.ID)
	last := events[len(events)-1]
	assert.Equal(t, helperGUID, *last.PreviousValue.UserGUID)
	assert.Equal(t, officerGUID, *last.NewValue.UserGUID)

	count := f.store.eventCount()
	_, err = f.users.ChangePointOfContact(ctx, officerGUID, r.ID, dto.PointOfContactPayload{UserGUID: officerGUID})
	require.NoError(t, err)
	assert.Equal(t, count, f.store.eventCount())
}

func TestListUsersRequiresAgencyVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seedRequest(t)

	_, err := f.users.ListUsers(ctx, officerGUID, r.ID)
	requireCode(t, err, appErrors.ErrPreconditionFailed)

	f.users.WithLister(f.store)

	edges, err := f.users.ListUsers(ctx, officerGUID, r.ID)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, requesterGUID, edges[0].UserGUID)
	assert.True(t, edges[0].IsRequester())
	assert.Equal(t, helperGUID, edges[1].UserGUID)
	assert.Equal(t, officerGUID, edges[2].UserGUID)

	_, err = f.users.ListUsers(ctx, outsiderGUID, r.ID)
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = f.users.ListUsers(ctx, officerGUID, "FOIL-2024-0002-99999")
	requireCode(t, err, appErrors.ErrNotFound)
}
