package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/permission"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

type userReader interface {
	FindByGUID(ctx context.Context, guid string) (*models.User, error)
}

type userRequestReader interface {
	GetUserRequest(ctx context.Context, requestID, userGUID string) (*models.UserRequest, error)
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Reason: reason} }

// AuthorizationService decides whether an actor may exercise a capability on a request.
type AuthorizationService struct {
	users  userReader
	edges  userRequestReader
	logger *zap.Logger
}

// NewAuthorizationService constructs the gateway.
func NewAuthorizationService(users userReader, edges userRequestReader, logger *zap.Logger) *AuthorizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationService{users: users, edges: edges, logger: logger}
}

// Check evaluates the actor against the request. Super users and active
// administrators of the owning agency hold every capability; everyone else
// needs the bits on their UserRequest edge.
func (s *AuthorizationService) Check(ctx context.Context, actorGUID string, request *models.Request, required permission.Mask) (Decision, error) {
	if actorGUID == "" {
		return deny("anonymous actor"), nil
	}
	user, err := s.users.FindByGUID(ctx, actorGUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deny("unknown user"), nil
		}
		return Decision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor")
	}
	if user.IsSuperUser {
		return allow("super user"), nil
	}
	if user.AdministersAgency(request.AgencyEIN) {
		return allow("agency administrator"), nil
	}
	edge, err := s.edges.GetUserRequest(ctx, request.ID, actorGUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deny("user is not associated with the request"), nil
		}
		return Decision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user request")
	}
	if edge.Permissions.Has(required) {
		return allow("request permission"), nil
	}
	missing := required.Remove(edge.Permissions)
	return deny(fmt.Sprintf("missing permission: %s", strings.Join(missing.Names(), ", "))), nil
}

// Require turns a denied decision into a FORBIDDEN error.
func (s *AuthorizationService) Require(ctx context.Context, actorGUID string, request *models.Request, required permission.Mask) error {
	decision, err := s.Check(ctx, actorGUID, request, required)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		s.logger.Debug("authorization denied",
			zap.String("actor", actorGUID),
			zap.String("request_id", request.ID),
			zap.String("reason", decision.Reason))
		return appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	return nil
}
