package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/calendar"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/permission"
	"github.com/noah-isme/openrecords-api/internal/repository"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

// memStore is an in-memory repository.Tx plus the read-side interfaces.
// Transactions are serialised and roll back to a snapshot on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	requests      map[string]models.Request
	responses     map[string]models.Response
	responseOrder []string
	events        []models.Event
	edges         map[string]models.UserRequest
	users         map[string]models.User
	agencies      map[string]models.Agency
	reasons       map[int]models.Reason

	// fail injects an error for an operation and id ("" matches any id).
	fail    func(op, id string) error
	commits int
}

var _ repository.Tx = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		requests:  map[string]models.Request{},
		responses: map[string]models.Response{},
		edges:     map[string]models.UserRequest{},
		users:     map[string]models.User{},
		agencies:  map[string]models.Agency{},
		reasons:   map[int]models.Reason{},
	}
}

type memSnapshot struct {
	requests      map[string]models.Request
	responses     map[string]models.Response
	responseOrder []string
	events        []models.Event
	edges         map[string]models.UserRequest
	agencies      map[string]models.Agency
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		requests:      copyMap(s.requests),
		responses:     copyMap(s.responses),
		responseOrder: append([]string(nil), s.responseOrder...),
		events:        append([]models.Event(nil), s.events...),
		edges:         copyMap(s.edges),
		agencies:      copyMap(s.agencies),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = snap.requests
	s.responses = snap.responses
	s.responseOrder = snap.responseOrder
	s.events = snap.events
	s.edges = snap.edges
	s.agencies = snap.agencies
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return nil
}

func (s *memStore) injected(op, id string) error {
	if s.fail == nil {
		return nil
	}
	return s.fail(op, id)
}

func edgeKey(requestID, userGUID string) string { return requestID + "|" + userGUID }

// seeding helpers

func (s *memStore) putAgency(a models.Agency)   { s.agencies[a.EIN] = a }
func (s *memStore) putUser(u models.User)       { s.users[u.GUID] = u }
func (s *memStore) putReason(r models.Reason)   { s.reasons[r.ID] = r }
func (s *memStore) putRequest(r models.Request) { s.requests[r.ID] = r }
func (s *memStore) putEdge(ur models.UserRequest) {
	s.edges[edgeKey(ur.RequestID, ur.UserGUID)] = ur
}

func (s *memStore) eventsFor(requestID string) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if e.RequestID != nil && *e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memStore) responsesFor(requestID string) []models.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Response
	for _, id := range s.responseOrder {
		if r := s.responses[id]; r.RequestID == requestID {
			out = append(out, r)
		}
	}
	return out
}

func (s *memStore) request(id string) models.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

// requests

func (s *memStore) GetRequest(_ context.Context, id string) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (s *memStore) LockRequest(ctx context.Context, id string) (*models.Request, error) {
	if err := s.injected("LockRequest", id); err != nil {
		return nil, err
	}
	return s.GetRequest(ctx, id)
}

func (s *memStore) CreateRequest(_ context.Context, r *models.Request) error {
	if err := s.injected("CreateRequest", r.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; ok {
		return fmt.Errorf("duplicate request %s", r.ID)
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *memStore) UpdateRequestState(_ context.Context, p models.UpdateRequestStateParams) error {
	if err := s.injected("UpdateRequestState", p.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[p.ID]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = p.Status
	r.DueDate = p.DueDate.UTC()
	s.requests[p.ID] = r
	return nil
}

func (s *memStore) UpdateRequestPrivacy(_ context.Context, id string, title, summary bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.TitlePrivate, r.AgencyRequestSummaryPrivate = title, summary
	s.requests[id] = r
	return nil
}

func (s *memStore) List(_ context.Context, filter models.RequestFilter) ([]models.Request, error) {
	if err := s.injected("List", filter.AgencyEIN); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Request, 0)
	for _, r := range s.requests {
		if filter.AgencyEIN != "" && r.AgencyEIN != filter.AgencyEIN {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, st := range filter.Statuses {
				match = match || st == r.Status
			}
			if !match {
				continue
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

// responses

func (s *memStore) CreateResponse(_ context.Context, r *models.Response) error {
	if err := s.injected("CreateResponse", r.RequestID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if det, ok := r.Determination(); ok && det.DeterminationKind == models.DeterminationAcknowledgment {
		for _, existing := range s.responses {
			if d, ok := existing.Determination(); ok && existing.RequestID == r.RequestID && d.DeterminationKind == models.DeterminationAcknowledgment {
				return appErrors.ErrAlreadyAcknowledged
			}
		}
	}
	s.responses[r.ID] = *r
	s.responseOrder = append(s.responseOrder, r.ID)
	return nil
}

func (s *memStore) GetResponse(_ context.Context, id string) (*models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (s *memStore) LockResponse(ctx context.Context, id string) (*models.Response, error) {
	return s.GetResponse(ctx, id)
}

func (s *memStore) SoftDeleteResponse(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[id]
	if !ok || r.Deleted || !r.Editable {
		return sql.ErrNoRows
	}
	r.Deleted = true
	r.UpdatedAt = at
	s.responses[id] = r
	return nil
}

func (s *memStore) HasLiveDetermination(_ context.Context, requestID string, kind models.DeterminationKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.responses {
		if d, ok := r.Determination(); ok && r.RequestID == requestID && !r.Deleted && d.DeterminationKind == kind {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListResponses(_ context.Context, filter models.ResponseFilter) ([]models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Response, 0)
	for _, id := range s.responseOrder {
		r := s.responses[id]
		if r.RequestID != filter.RequestID || (r.Deleted && !filter.IncludeDeleted) {
			continue
		}
		if filter.PublicOnly && r.Privacy != models.PrivacyReleaseAndPublic {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// events

func (s *memStore) CreateEvent(_ context.Context, e *models.Event) error {
	id := ""
	if e.RequestID != nil {
		id = *e.RequestID
	}
	if err := s.injected("CreateEvent", id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

func (s *memStore) ListEvents(_ context.Context, filter models.EventFilter) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, 0)
	for _, e := range s.events {
		if filter.RequestID != "" && (e.RequestID == nil || *e.RequestID != filter.RequestID) {
			continue
		}
		if len(filter.Types) > 0 {
			match := false
			for _, t := range filter.Types {
				match = match || t == e.Type
			}
			if !match {
				continue
			}
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// user requests

func (s *memStore) GetUserRequest(_ context.Context, requestID, userGUID string) (*models.UserRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ur, ok := s.edges[edgeKey(requestID, userGUID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &ur, nil
}

func (s *memStore) LockUserRequest(ctx context.Context, requestID, userGUID string) (*models.UserRequest, error) {
	return s.GetUserRequest(ctx, requestID, userGUID)
}

func (s *memStore) CreateUserRequest(_ context.Context, ur *models.UserRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(ur.RequestID, ur.UserGUID)
	if _, ok := s.edges[key]; ok {
		return fmt.Errorf("duplicate user request %s", key)
	}
	s.edges[key] = *ur
	return nil
}

func (s *memStore) UpdateUserRequest(_ context.Context, ur *models.UserRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(ur.RequestID, ur.UserGUID)
	if _, ok := s.edges[key]; !ok {
		return sql.ErrNoRows
	}
	if ur.PointOfContact {
		for k, other := range s.edges {
			if k != key && other.RequestID == ur.RequestID && other.PointOfContact {
				return fmt.Errorf("second point of contact on %s", ur.RequestID)
			}
		}
	}
	s.edges[key] = *ur
	return nil
}

func (s *memStore) DeleteUserRequest(_ context.Context, requestID, userGUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey(requestID, userGUID)
	ur, ok := s.edges[key]
	if !ok || ur.IsRequester() {
		return sql.ErrNoRows
	}
	delete(s.edges, key)
	return nil
}

func (s *memStore) FindPointOfContact(_ context.Context, requestID string) (*models.UserRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ur := range s.edges {
		if ur.RequestID == requestID && ur.PointOfContact {
			out := ur
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) ListUserRequests(_ context.Context, requestID string) ([]models.UserRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserRequest
	for _, ur := range s.edges {
		if ur.RequestID == requestID {
			out = append(out, ur)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestUserType != out[j].RequestUserType {
			return out[i].RequestUserType > out[j].RequestUserType
		}
		return out[i].UserGUID < out[j].UserGUID
	})
	return out, nil
}

// agencies, users, reasons

func (s *memStore) NextRequestNumber(_ context.Context, ein string, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agencies[ein]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if a.CounterYear != year {
		a.NextRequestNumber, a.CounterYear = 1, year
	}
	n := a.NextRequestNumber
	a.NextRequestNumber++
	s.agencies[ein] = a
	return n, nil
}

func (s *memStore) ResetRequestNumber(_ context.Context, ein string, year int) (int, int, error) {
	if err := s.injected("ResetRequestNumber", ein); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agencies[ein]
	if !ok {
		return 0, 0, sql.ErrNoRows
	}
	prefix := models.RequestIDPrefix(year, ein)
	issued := 0
	for id := range s.requests {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(id, prefix)); err == nil && n > issued {
			issued = n
		}
	}
	prev := a.NextRequestNumber
	a.NextRequestNumber, a.CounterYear = issued+1, year
	s.agencies[ein] = a
	return prev, a.NextRequestNumber, nil
}

func (s *memStore) GetAgency(_ context.Context, ein string) (*models.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agencies[ein]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (s *memStore) ListAgencies(_ context.Context, activeOnly bool) ([]models.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Agency, 0, len(s.agencies))
	for _, a := range s.agencies {
		if activeOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EIN < out[j].EIN })
	return out, nil
}

func (s *memStore) FindByGUID(_ context.Context, guid string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[guid]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (s *memStore) ListAgencyAdmins(_ context.Context, ein string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ListAgencyAdmins", ein); err != nil {
		return nil, err
	}
	var out []models.User
	for _, u := range s.users {
		if u.AdministersAgency(ein) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out, nil
}

func (s *memStore) FindByIDs(_ context.Context, ids []int) ([]models.Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Reason, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.reasons[id]; ok {
			out = append(out, r)
		}
	}
	// database order, not request order
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListForAgency(_ context.Context, ein string, kind models.ReasonKind) ([]models.Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reason
	for _, r := range s.reasons {
		if kind != "" && r.Kind != kind {
			continue
		}
		if r.AgencyEIN != nil && *r.AgencyEIN != ein {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// hooksRecorder captures post-commit notifications.
type hooksRecorder struct {
	mu      sync.Mutex
	changes []Change
	digests []SweepDigest
}

func (h *hooksRecorder) RequestChanged(_ context.Context, c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, c)
}

func (h *hooksRecorder) SweepCompleted(_ context.Context, d SweepDigest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.digests = append(h.digests, d)
}

// fixture wires every workflow service over one memStore.
type fixture struct {
	store    *memStore
	calendar *calendar.Calendar
	now      time.Time
	hooks    *hooksRecorder
	metrics  *MetricsService

	auth          *AuthorizationService
	requests      *RequestService
	determination *DeterminationService
	responses     *ResponseService
	users         *UserRequestService
	sweeper       *SweeperService
	agencies      *AgencyService
	events        *EventService
}

const (
	testAgency    = "0002"
	otherAgency   = "0860"
	requesterGUID = "requester-1"
	officerGUID   = "officer-1"
	helperGUID    = "helper-1"
	adminGUID     = "admin-1"
	superGUID     = "super-1"
	outsiderGUID  = "outsider-1"
)

var ny = mustLocation("America/New_York")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		calendar: calendar.MustNew(calendar.Config{Timezone: "America/New_York", FirstYear: 2023, LastYear: 2026}),
		now:      time.Date(2024, 6, 3, 10, 0, 0, 0, ny),
		hooks:    &hooksRecorder{},
		metrics:  NewMetricsService(),
	}
	ein, other := testAgency, otherAgency
	f.store.putAgency(models.Agency{EIN: testAgency, Name: "Department of Records", IsActive: true, NextRequestNumber: 1})
	f.store.putAgency(models.Agency{EIN: otherAgency, Name: "Department of Parks", IsActive: true, NextRequestNumber: 1})
	f.store.putUser(models.User{GUID: requesterGUID, Email: "pat@example.com"})
	f.store.putUser(models.User{GUID: officerGUID, AgencyEIN: &ein, IsAgencyActive: true})
	f.store.putUser(models.User{GUID: helperGUID, AgencyEIN: &ein, IsAgencyActive: true})
	f.store.putUser(models.User{GUID: adminGUID, AgencyEIN: &ein, IsAgencyActive: true, IsAgencyAdmin: true})
	f.store.putUser(models.User{GUID: superGUID, IsSuperUser: true})
	f.store.putUser(models.User{GUID: outsiderGUID, AgencyEIN: &other, IsAgencyActive: true, IsAgencyAdmin: true})
	f.store.putReason(models.Reason{ID: 7, Title: "Not a record", Content: "Not a record", Kind: models.ReasonDenial})
	f.store.putReason(models.Reason{ID: 9, Title: "Duplicate", Content: "Duplicate", Kind: models.ReasonDenial})
	f.store.putReason(models.Reason{ID: 11, Title: "Parks only", Content: "Parks only", Kind: models.ReasonClosing, AgencyEIN: &other})

	clock := func() time.Time { return f.now }
	opts := []WorkflowOption{WithHooks(f.hooks), WithMetrics(f.metrics), WithClock(clock)}
	cfg := WorkflowConfig{AcknowledgmentDays: 5, DueSoonDays: 2}

	f.auth = NewAuthorizationService(f.store, f.store, nil)
	f.requests = NewRequestService(f.store, f.store, RequestServiceDeps{
		Users: f.store, Edges: f.store, Agencies: f.store, Lister: f.store, Responses: f.store,
	}, f.auth, f.calendar, cfg, nil, opts)
	f.determination = NewDeterminationService(f.store, f.store, f.store, f.auth, f.calendar, cfg, nil, opts...)
	f.responses = NewResponseService(f.store, f.store, f.store, f.store, f.auth, f.calendar, nil, opts)
	f.users = NewUserRequestService(f.store, f.store, f.store, f.auth, f.calendar, nil, opts...)
	f.sweeper = NewSweeperService(f.store, f.store, f.store, f.calendar, cfg, nil, opts...)
	f.agencies = NewAgencyService(f.store, f.store, f.store, nil).WithLocation(f.calendar.Location())
	f.agencies.now = clock
	f.events = NewEventService(f.store, f.store, f.auth, nil)
	return f
}

// seedRequest files a request through the service and attaches the officer.
func (f *fixture) seedRequest(t *testing.T) models.Request {
	t.Helper()
	r, err := f.requests.CreateRequest(context.Background(), requesterGUID, createPayload())
	require.NoError(t, err)
	officer, err := permission.LookupRole(permission.RoleAgencyOfficer)
	require.NoError(t, err)
	f.store.putEdge(models.UserRequest{UserGUID: officerGUID, RequestID: r.ID, RequestUserType: models.RequestUserAgency, Permissions: officer.Permissions})
	helper, err := permission.LookupRole(permission.RoleAgencyHelper)
	require.NoError(t, err)
	f.store.putEdge(models.UserRequest{UserGUID: helperGUID, RequestID: r.ID, RequestUserType: models.RequestUserAgency, Permissions: helper.Permissions})
	return *r
}

func (f *fixture) setStatus(id string, status models.RequestStatus, due time.Time) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	r := f.store.requests[id]
	r.Status = status
	r.DueDate = due.UTC()
	f.store.requests[id] = r
}

func requireCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected typed error, got %T: %v", err, err)
	require.Equal(t, want.Code, appErr.Code, appErr.Message)
}
