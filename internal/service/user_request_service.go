package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/calendar"
	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/permission"
	"github.com/noah-isme/openrecords-api/internal/repository"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

type userRequestLister interface {
	ListUserRequests(ctx context.Context, requestID string) ([]models.UserRequest, error)
}

// UserRequestService manages who participates in a request and with which
// capabilities. Every change is audited.
type UserRequestService struct {
	workflow
	users  userReader
	lister userRequestLister
}

// NewUserRequestService constructs the service.
func NewUserRequestService(store txRunner, requests requestReader, users userReader, auth authorizer, cal *calendar.Calendar, logger *zap.Logger, opts ...WorkflowOption) *UserRequestService {
	return &UserRequestService{
		workflow: newWorkflow(store, requests, auth, cal, WorkflowConfig{}, logger, opts),
		users:    users,
	}
}

// WithLister enables ListUsers.
func (s *UserRequestService) WithLister(lister userRequestLister) *UserRequestService {
	s.lister = lister
	return s
}

// ListUsers returns everyone attached to the request. Agency staff only.
func (s *UserRequestService) ListUsers(ctx context.Context, actorGUID, requestID string) ([]models.UserRequest, error) {
	if s.lister == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "user listing is not configured")
	}
	if _, err := s.authorize(ctx, actorGUID, requestID, permission.ViewRequestInfoAll); err != nil {
		return nil, err
	}
	edges, err := s.lister.ListUserRequests(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "failed to list request users")
	}
	return edges, nil
}

func resolveMask(role string, names []string) (permission.Mask, error) {
	if role != "" {
		preset, err := permission.LookupRole(permission.RoleName(role))
		if err != nil {
			return permission.None, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		return preset.Permissions, nil
	}
	mask, err := permission.Parse(names)
	if err != nil {
		return permission.None, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return mask, nil
}

func edgeSnapshot(ur *models.UserRequest) models.Snapshot {
	snap := models.NewSnapshot().WithPermissions(ur.Permissions)
	guid, poc, kind := ur.UserGUID, ur.PointOfContact, ur.RequestUserType
	snap.UserGUID = &guid
	snap.PointOfContact = &poc
	snap.RequestUserType = &kind
	return snap
}

// AddUser attaches an active staff member of the owning agency to the request.
func (s *UserRequestService) AddUser(ctx context.Context, actorGUID, requestID string, req dto.AddUserPayload) (added *models.UserRequest, err error) {
	var change *Change
	defer func() { s.complete(ctx, "add_user", change, err) }()

	if err = s.validate(req); err != nil {
		return nil, err
	}
	mask, err := resolveMask(req.Role, req.Permissions)
	if err != nil {
		return nil, err
	}
	request, err := s.authorize(ctx, actorGUID, requestID, permission.AddUser)
	if err != nil {
		return nil, err
	}
	target, err := s.users.FindByGUID(ctx, req.UserGUID)
	if err != nil {
		err = notFoundOr(err, "user not found", "failed to load user")
		return nil, err
	}
	if !target.IsAgencyUser(request.AgencyEIN) {
		err = appErrors.Clone(appErrors.ErrValidation, "user is not active staff of the request's agency")
		return nil, err
	}

	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		locked, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if _, err := tx.LockUserRequest(ctx, locked.ID, target.GUID); err == nil {
			return appErrors.Clone(appErrors.ErrConflict, "user already participates in the request")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return storeError(err, "failed to load user request")
		}
		edge := &models.UserRequest{
			UserGUID:        target.GUID,
			RequestID:       locked.ID,
			RequestUserType: models.RequestUserAgency,
			Permissions:     mask,
		}
		if err := tx.CreateUserRequest(ctx, edge); err != nil {
			return storeError(err, "failed to add user")
		}
		event := newEvent(models.EventUserAdded, locked.ID, actorGUID, nil, edgeSnapshot(edge), now)
		if err := tx.CreateEvent(ctx, event); err != nil {
			return storeError(err, "failed to record event")
		}
		added = edge
		change = &Change{Request: locked, Event: event, ActorGUID: actorGUID}
		return nil
	})
	if err != nil {
		change = nil
		return nil, err
	}
	return added, nil
}

// EditUserPermissions applies a set, add or remove to one agency user's mask.
// When the mask does not change nothing is written and the row is returned as is.
func (s *UserRequestService) EditUserPermissions(ctx context.Context, actorGUID, requestID, userGUID string, req dto.EditPermissionsPayload) (edited *models.UserRequest, err error) {
	var change *Change
	defer func() { s.complete(ctx, "edit_user_permissions", change, err) }()

	if err = s.validate(req); err != nil {
		return nil, err
	}
	bits, err := permission.Parse(req.Permissions)
	if err != nil {
		err = appErrors.Clone(appErrors.ErrValidation, err.Error())
		return nil, err
	}
	if _, err = s.authorize(ctx, actorGUID, requestID, permission.EditUserPermissions); err != nil {
		return nil, err
	}

	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		edge, err := tx.LockUserRequest(ctx, request.ID, userGUID)
		if err != nil {
			return notFoundOr(err, "user does not participate in the request", "failed to load user request")
		}
		if edge.IsRequester() {
			return appErrors.Clone(appErrors.ErrValidation, "requester permissions cannot be edited")
		}

		var mask permission.Mask
		switch req.Operation {
		case dto.PermissionSet:
			mask = bits
		case dto.PermissionAdd:
			mask = edge.Permissions.Add(bits)
		case dto.PermissionRemove:
			mask = edge.Permissions.Remove(bits)
		}
		if mask == edge.Permissions {
			edited = edge
			return nil
		}

		previous := models.NewSnapshot().WithPermissions(edge.Permissions)
		previous.UserGUID = &edge.UserGUID
		updated := *edge
		updated.Permissions = mask
		if err := tx.UpdateUserRequest(ctx, &updated); err != nil {
			return notFoundOr(err, "user does not participate in the request", "failed to update permissions")
		}
		next := models.NewSnapshot().WithPermissions(mask)
		next.UserGUID = &updated.UserGUID
		event := newEvent(models.EventUserPermissionChanged, request.ID, actorGUID, &previous, next, now)
		if err := tx.CreateEvent(ctx, event); err != nil {
			return storeError(err, "failed to record event")
		}
		edited = &updated
		change = &Change{Request: request, Event: event, ActorGUID: actorGUID}
		return nil
	})
	if err != nil {
		change = nil
		return nil, err
	}
	return edited, nil
}

// RemoveUser detaches an agency user. The requester can never be removed.
func (s *UserRequestService) RemoveUser(ctx context.Context, actorGUID, requestID, userGUID string) (err error) {
	var change *Change
	defer func() { s.complete(ctx, "remove_user", change, err) }()

	if _, err = s.authorize(ctx, actorGUID, requestID, permission.RemoveUser); err != nil {
		return err
	}
	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		edge, err := tx.LockUserRequest(ctx, request.ID, userGUID)
		if err != nil {
			return notFoundOr(err, "user does not participate in the request", "failed to load user request")
		}
		if edge.IsRequester() {
			return appErrors.Clone(appErrors.ErrValidation, "the requester cannot be removed")
		}
		if err := tx.DeleteUserRequest(ctx, request.ID, userGUID); err != nil {
			return notFoundOr(err, "user does not participate in the request", "failed to remove user")
		}
		previous := edgeSnapshot(edge)
		next := models.NewSnapshot()
		next.UserGUID = &edge.UserGUID
		event := newEvent(models.EventUserRemoved, request.ID, actorGUID, &previous, next, now)
		if err := tx.CreateEvent(ctx, event); err != nil {
			return storeError(err, "failed to record event")
		}
		change = &Change{Request: request, Event: event, ActorGUID: actorGUID}
		return nil
	})
	if err != nil {
		change = nil
	}
	return err
}

// ChangePointOfContact moves the point of contact to another agency user.
func (s *UserRequestService) ChangePointOfContact(ctx context.Context, actorGUID, requestID string, req dto.PointOfContactPayload) (contact *models.UserRequest, err error) {
	var change *Change
	defer func() { s.complete(ctx, "change_point_of_contact", change, err) }()

	if err = s.validate(req); err != nil {
		return nil, err
	}
	if _, err = s.authorize(ctx, actorGUID, requestID, permission.ChangePointOfContact); err != nil {
		return nil, err
	}
	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		target, err := tx.LockUserRequest(ctx, request.ID, req.UserGUID)
		if err != nil {
			return notFoundOr(err, "user does not participate in the request", "failed to load user request")
		}
		if target.IsRequester() {
			return appErrors.Clone(appErrors.ErrValidation, "the requester cannot be the point of contact")
		}
		if target.PointOfContact {
			contact = target
			return nil
		}

		previous := models.NewSnapshot()
		current, err := tx.FindPointOfContact(ctx, request.ID)
		switch {
		case err == nil:
			current.PointOfContact = false
			if err := tx.UpdateUserRequest(ctx, current); err != nil {
				return storeError(err, "failed to clear point of contact")
			}
			previous.UserGUID = &current.UserGUID
		case !errors.Is(err, sql.ErrNoRows):
			return storeError(err, "failed to load point of contact")
		}

		updated := *target
		updated.PointOfContact = true
		if err := tx.UpdateUserRequest(ctx, &updated); err != nil {
			return storeError(err, "failed to set point of contact")
		}
		poc := true
		next := models.NewSnapshot()
		next.UserGUID = &updated.UserGUID
		next.PointOfContact = &poc
		var prev *models.Snapshot
		if !previous.IsEmpty() {
			prev = &previous
		}
		event := newEvent(models.EventPointOfContactChanged, request.ID, actorGUID, prev, next, now)
		if err := tx.CreateEvent(ctx, event); err != nil {
			return storeError(err, "failed to record event")
		}
		contact = &updated
		change = &Change{Request: request, Event: event, ActorGUID: actorGUID}
		return nil
	})
	if err != nil {
		change = nil
		return nil, err
	}
	return contact, nil
}
