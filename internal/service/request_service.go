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

type agencyReader interface {
	GetAgency(ctx context.Context, ein string) (*models.Agency, error)
}

type requestLister interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, error)
}

type responseReader interface {
	GetResponse(ctx context.Context, id string) (*models.Response, error)
	ListResponses(ctx context.Context, filter models.ResponseFilter) ([]models.Response, error)
}

type requestCache interface {
	GetRequest(ctx context.Context, id string) (*models.Request, bool)
	PutRequest(ctx context.Context, request *models.Request)
}

// audience is how much of a request an actor may see.
type audience int

const (
	audiencePublic audience = iota
	audienceRequester
	audienceAgency
)

func (a audience) canSee(privacy models.ResponsePrivacy) bool {
	switch a {
	case audienceAgency:
		return true
	case audienceRequester:
		return privacy != models.PrivacyPrivate
	}
	return privacy == models.PrivacyReleaseAndPublic
}

// RequestService handles intake and read access to requests.
type RequestService struct {
	workflow
	users     userReader
	edges     userRequestReader
	agencies  agencyReader
	lister    requestLister
	responses responseReader
	cache     requestCache
}

// RequestServiceOption configures optional collaborators.
type RequestServiceOption func(*RequestService)

// WithRequestCache fronts GetRequest with a cache.
func WithRequestCache(cache requestCache) RequestServiceOption {
	return func(s *RequestService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// RequestServiceDeps groups the readers used by RequestService.
type RequestServiceDeps struct {
	Users     userReader
	Edges     userRequestReader
	Agencies  agencyReader
	Lister    requestLister
	Responses responseReader
}

// NewRequestService constructs the service.
func NewRequestService(store txRunner, requests requestReader, deps RequestServiceDeps, auth authorizer, cal *calendar.Calendar, cfg WorkflowConfig, logger *zap.Logger, opts []WorkflowOption, extra ...RequestServiceOption) *RequestService {
	svc := &RequestService{
		workflow:  newWorkflow(store, requests, auth, cal, cfg, logger, opts),
		users:     deps.Users,
		edges:     deps.Edges,
		agencies:  deps.Agencies,
		lister:    deps.Lister,
		responses: deps.Responses,
	}
	for _, opt := range extra {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateRequest files a new request for the actor. The request id takes the
// next agency sequence number, the due date counts the acknowledgment period
// from the submission date, and the actor becomes the requester.
func (s *RequestService) CreateRequest(ctx context.Context, actorGUID string, req dto.CreateRequestPayload) (created *models.Request, err error) {
	var change *Change
	defer func() { s.complete(ctx, "create_request", change, err) }()

	if err = s.validate(req); err != nil {
		return nil, err
	}
	requester, err := s.users.FindByGUID(ctx, actorGUID)
	if err != nil {
		err = notFoundOr(err, "requester not found", "failed to load requester")
		if errors.Is(err, appErrors.ErrNotFound) {
			err = appErrors.Clone(appErrors.ErrUnauthorized, "unknown requester")
		}
		return nil, err
	}
	agency, err := s.agencies.GetAgency(ctx, req.AgencyEIN)
	if err != nil {
		err = notFoundOr(err, "agency not found", "failed to load agency")
		return nil, err
	}
	if !agency.IsActive {
		err = appErrors.Clone(appErrors.ErrValidation, "agency is not accepting requests")
		return nil, err
	}

	role, _ := permission.LookupRole(permission.RolePublicRequester)
	if requester.IsAnonymousRequester {
		role, _ = permission.LookupRole(permission.RoleAnonymous)
	}

	now := s.clock()
	year := now.In(s.calendar.Location()).Year()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		sequence, err := tx.NextRequestNumber(ctx, agency.EIN, year)
		if err != nil {
			return notFoundOr(err, "agency not found", "failed to allocate request number")
		}
		submitted := s.calendar.SubmittedAt(now)
		request := &models.Request{
			ID:                   models.FormatRequestID(year, agency.EIN, sequence),
			AgencyEIN:            agency.EIN,
			Title:                req.Title,
			Description:          req.Description,
			AgencyRequestSummary: req.AgencyRequestSummary,
			Category:             req.Category,
			SubmissionMethod:     req.SubmissionMethod,
			Status:               models.RequestStatusOpen,
			CreatedAt:            now,
			SubmittedAt:          submitted,
			DueDate:              s.calendar.DueDate(submitted, s.cfg.AcknowledgmentDays),
		}
		if err := tx.CreateRequest(ctx, request); err != nil {
			return storeError(err, "failed to create request")
		}
		edge := &models.UserRequest{
			UserGUID:        requester.GUID,
			RequestID:       request.ID,
			RequestUserType: models.RequestUserRequester,
			Permissions:     role.Permissions,
		}
		if err := tx.CreateUserRequest(ctx, edge); err != nil {
			return storeError(err, "failed to attach requester")
		}

		next := models.NewSnapshot().WithStatus(request.Status).WithDueDate(request.DueDate)
		next.Title = &request.Title
		next.AgencyEIN = &request.AgencyEIN
		next.SubmissionMethod = &request.SubmissionMethod
		next.UserGUID = &requester.GUID
		event := newEvent(models.EventRequestCreated, request.ID, actorGUID, nil, next, now)
		if err := tx.CreateEvent(ctx, event); err != nil {
			return storeError(err, "failed to record event")
		}
		created = request
		change = &Change{Request: request, Event: event, ActorGUID: actorGUID}
		return nil
	})
	if err != nil {
		change = nil
		return nil, err
	}
	return created, nil
}

// GetRequest returns the request as the actor may see it. Private title and
// agency summary are blanked for the public.
func (s *RequestService) GetRequest(ctx context.Context, actorGUID, id string) (*models.Request, error) {
	request, err := s.cachedRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	aud, err := s.audienceFor(ctx, actorGUID, request)
	if err != nil {
		return nil, err
	}
	return redact(request, aud), nil
}

func (s *RequestService) cachedRequest(ctx context.Context, id string) (*models.Request, error) {
	if s.cache != nil {
		if request, ok := s.cache.GetRequest(ctx, id); ok {
			return request, nil
		}
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.PutRequest(ctx, request)
	}
	return request, nil
}

// List returns requests of one agency. Agency staff only see their own agency.
func (s *RequestService) List(ctx context.Context, actorGUID string, query dto.RequestQuery) ([]models.Request, error) {
	if err := s.validate(query); err != nil {
		return nil, err
	}
	user, err := s.users.FindByGUID(ctx, actorGUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown user")
		}
		return nil, storeError(err, "failed to load actor")
	}
	filter := models.RequestFilter{AgencyEIN: query.AgencyEIN, Statuses: query.Statuses, Limit: query.Limit, Offset: query.Offset}
	if filter.Limit == 0 {
		filter.Limit = 50
	}
	if !user.IsSuperUser {
		if user.AgencyEIN == nil || !user.IsAgencyActive {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "agency staff only")
		}
		if filter.AgencyEIN != "" && filter.AgencyEIN != *user.AgencyEIN {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "requests of another agency")
		}
		filter.AgencyEIN = *user.AgencyEIN
	}
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status "+string(status))
		}
	}
	requests, err := s.lister.List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "failed to list requests")
	}
	return requests, nil
}

// ListResponses returns the live responses the actor may see, oldest first.
func (s *RequestService) ListResponses(ctx context.Context, actorGUID, requestID string) ([]models.Response, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	aud, err := s.audienceFor(ctx, actorGUID, request)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses.ListResponses(ctx, models.ResponseFilter{
		RequestID:  requestID,
		PublicOnly: aud == audiencePublic,
	})
	if err != nil {
		return nil, storeError(err, "failed to list responses")
	}
	visible := make([]models.Response, 0, len(responses))
	for _, r := range responses {
		if aud.canSee(r.Privacy) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// audienceFor classifies the actor: agency staff with full view rights, the
// requester, or the public.
func (s *RequestService) audienceFor(ctx context.Context, actorGUID string, request *models.Request) (audience, error) {
	return resolveAudience(ctx, s.auth, s.edges, actorGUID, request)
}

func resolveAudience(ctx context.Context, auth authorizer, edges userRequestReader, actorGUID string, request *models.Request) (audience, error) {
	if actorGUID == "" {
		return audiencePublic, nil
	}
	decision, err := auth.Check(ctx, actorGUID, request, permission.ViewRequestInfoAll)
	if err != nil {
		return audiencePublic, err
	}
	if decision.Allowed {
		return audienceAgency, nil
	}
	edge, err := edges.GetUserRequest(ctx, request.ID, actorGUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return audiencePublic, nil
		}
		return audiencePublic, storeError(err, "failed to load user request")
	}
	if edge.IsRequester() {
		return audienceRequester, nil
	}
	return audiencePublic, nil
}

func redact(request *models.Request, aud audience) *models.Request {
	if aud == audienceAgency {
		return request
	}
	out := *request
	if out.TitlePrivate && aud == audiencePublic {
		out.Title = ""
	}
	if out.AgencyRequestSummaryPrivate {
		out.AgencyRequestSummary = nil
	}
	return &out
}
