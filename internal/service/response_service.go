package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/calendar"
	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/filestore"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/permission"
	"github.com/noah-isme/openrecords-api/internal/repository"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
	"github.com/noah-isme/openrecords-api/pkg/storage"
)

// FileChecker confirms an uploaded object exists before a file response references it.
type FileChecker interface {
	Stat(ctx context.Context, key string) (*filestore.ObjectInfo, error)
}

type downloadSigner interface {
	Sign(claims storage.DownloadClaims) (string, time.Time, error)
}

// ResponseService adds and removes the non-determination responses of a request.
type ResponseService struct {
	workflow
	edges     userRequestReader
	responses responseReader
	files     FileChecker
	signer    downloadSigner
}

// ResponseServiceOption configures optional collaborators.
type ResponseServiceOption func(*ResponseService)

// WithFileChecker verifies object keys of new file responses.
func WithFileChecker(files FileChecker) ResponseServiceOption {
	return func(s *ResponseService) { s.files = files }
}

// WithDownloadSigner enables download tokens for file responses.
func WithDownloadSigner(signer downloadSigner) ResponseServiceOption {
	return func(s *ResponseService) { s.signer = signer }
}

// NewResponseService constructs the service.
func NewResponseService(store txRunner, requests requestReader, responses responseReader, edges userRequestReader, auth authorizer, cal *calendar.Calendar, logger *zap.Logger, opts []WorkflowOption, extra ...ResponseServiceOption) *ResponseService {
	svc := &ResponseService{
		workflow:  newWorkflow(store, requests, auth, cal, WorkflowConfig{}, logger, opts),
		edges:     edges,
		responses: responses,
	}
	for _, opt := range extra {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// AddNote attaches a note.
func (s *ResponseService) AddNote(ctx context.Context, actorGUID, requestID string, req dto.NotePayload) (*models.Response, error) {
	if err := s.validate(req); err != nil {
		s.complete(ctx, "add_note", nil, err)
		return nil, err
	}
	return s.addResponse(ctx, "add_note", actorGUID, requestID, permission.AddNote, models.EventNoteAdded,
		privacyOrDefault(req.Privacy, models.PrivacyPrivate), &models.Note{Content: req.Content})
}

// AddFile attaches a reference to an already stored object.
func (s *ResponseService) AddFile(ctx context.Context, actorGUID, requestID string, req dto.FilePayload) (*models.Response, error) {
	if err := s.validate(req); err != nil {
		s.complete(ctx, "add_file", nil, err)
		return nil, err
	}
	file := &models.File{Title: req.Title, Name: req.Name, MimeType: req.MimeType, Size: req.Size, ObjectKey: req.ObjectKey, Hash: req.Hash}
	if s.files != nil {
		info, err := s.files.Stat(ctx, req.ObjectKey)
		if err != nil {
			if errors.Is(err, filestore.ErrObjectNotFound) {
				err = appErrors.Clone(appErrors.ErrValidation, "object_key does not reference a stored file")
			} else {
				err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check stored file")
			}
			s.complete(ctx, "add_file", nil, err)
			return nil, err
		}
		if file.Size == 0 {
			file.Size = info.Size
		}
	}
	return s.addResponse(ctx, "add_file", actorGUID, requestID, permission.AddFile, models.EventFileAdded,
		privacyOrDefault(req.Privacy, models.PrivacyPrivate), file)
}

// AddLink attaches an external link.
func (s *ResponseService) AddLink(ctx context.Context, actorGUID, requestID string, req dto.LinkPayload) (*models.Response, error) {
	if err := s.validate(req); err != nil {
		s.complete(ctx, "add_link", nil, err)
		return nil, err
	}
	return s.addResponse(ctx, "add_link", actorGUID, requestID, permission.AddLink, models.EventLinkAdded,
		privacyOrDefault(req.Privacy, models.PrivacyPrivate), &models.Link{Title: req.Title, URL: req.URL})
}

// AddInstruction attaches offline retrieval instructions.
func (s *ResponseService) AddInstruction(ctx context.Context, actorGUID, requestID string, req dto.InstructionPayload) (*models.Response, error) {
	if err := s.validate(req); err != nil {
		s.complete(ctx, "add_instruction", nil, err)
		return nil, err
	}
	return s.addResponse(ctx, "add_instruction", actorGUID, requestID, permission.AddInstructions, models.EventInstructionsAdded,
		privacyOrDefault(req.Privacy, models.PrivacyPrivate), &models.Instruction{Content: req.Content})
}

// RecordEmail stores a private copy of an email sent about the request.
func (s *ResponseService) RecordEmail(ctx context.Context, actorGUID, requestID string, req dto.EmailPayload) (*models.Response, error) {
	if err := s.validate(req); err != nil {
		s.complete(ctx, "record_email", nil, err)
		return nil, err
	}
	email := &models.Email{To: req.To, CC: req.CC, BCC: req.BCC, Subject: req.Subject, Body: req.Body}
	return s.addResponse(ctx, "record_email", actorGUID, requestID, permission.AddNote, models.EventEmailNotificationSent,
		models.PrivacyPrivate, email)
}

func (s *ResponseService) addResponse(ctx context.Context, operation, actorGUID, requestID string, required permission.Mask, eventType models.EventType, privacy models.ResponsePrivacy, payload models.Payload) (resp *models.Response, err error) {
	var change *Change
	defer func() { s.complete(ctx, operation, change, err) }()

	if _, err = s.authorize(ctx, actorGUID, requestID, required); err != nil {
		return nil, err
	}
	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		response := newResponse(request.ID, privacy, payload, now)
		if err := tx.CreateResponse(ctx, response); err != nil {
			return storeError(err, "failed to create response")
		}
		event := newEvent(eventType, request.ID, actorGUID, nil, responseSnapshot(response), now)
		event.ResponseID = &response.ID
		if err := tx.CreateEvent(ctx, event); err != nil {
			return storeError(err, "failed to record event")
		}
		change = &Change{Request: request, Event: event, Response: response, ActorGUID: actorGUID}
		return nil
	})
	if err != nil {
		change = nil
		return nil, err
	}
	return change.Response, nil
}

// DeleteResponse soft-deletes an editable response. Determinations and
// emails are permanent.
func (s *ResponseService) DeleteResponse(ctx context.Context, actorGUID, requestID, responseID string) (err error) {
	var change *Change
	defer func() { s.complete(ctx, "delete_response", change, err) }()

	if _, err = s.authorize(ctx, actorGUID, requestID, permission.DeleteResponse); err != nil {
		return err
	}
	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		response, err := tx.LockResponse(ctx, responseID)
		if err != nil {
			return notFoundOr(err, "response not found", "failed to lock response")
		}
		if response.RequestID != request.ID || response.Deleted {
			return appErrors.Clone(appErrors.ErrNotFound, "response not found")
		}
		if !response.Editable {
			return appErrors.Clone(appErrors.ErrInvalidTransition, string(response.Kind())+" responses cannot be deleted")
		}
		if err := tx.SoftDeleteResponse(ctx, response.ID, now); err != nil {
			return notFoundOr(err, "response not found", "failed to delete response")
		}

		deleted, live := true, false
		previous := responseSnapshot(response)
		previous.Deleted = &live
		next := models.NewSnapshot()
		next.ResponseKind = previous.ResponseKind
		next.Deleted = &deleted
		event := newEvent(models.EventResponseDeleted, request.ID, actorGUID, &previous, next, now)
		event.ResponseID = &response.ID
		if err := tx.CreateEvent(ctx, event); err != nil {
			return storeError(err, "failed to record event")
		}
		response.Deleted = true
		change = &Change{Request: request, Event: event, Response: response, ActorGUID: actorGUID}
		return nil
	})
	if err != nil {
		change = nil
	}
	return err
}

// EditRequestPrivacy toggles the privacy of the title and agency summary.
// An edit that changes nothing writes nothing.
func (s *ResponseService) EditRequestPrivacy(ctx context.Context, actorGUID, requestID string, req dto.EditPrivacyPayload) (updated *models.Request, err error) {
	var change *Change
	defer func() { s.complete(ctx, "edit_request_privacy", change, err) }()

	if req.Title == nil && req.AgencyRequestSummary == nil {
		err = appErrors.Clone(appErrors.ErrValidation, "no privacy flag supplied")
		return nil, err
	}
	if _, err = s.authorize(ctx, actorGUID, requestID, permission.EditRequestPrivacy); err != nil {
		return nil, err
	}
	now := s.clock()
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		request, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		titlePrivate, summaryPrivate := request.TitlePrivate, request.AgencyRequestSummaryPrivate
		if req.Title != nil {
			titlePrivate = *req.Title
		}
		if req.AgencyRequestSummary != nil {
			summaryPrivate = *req.AgencyRequestSummary
		}
		if titlePrivate == request.TitlePrivate && summaryPrivate == request.AgencyRequestSummaryPrivate {
			updated = request
			return nil
		}
		if err := tx.UpdateRequestPrivacy(ctx, request.ID, titlePrivate, summaryPrivate); err != nil {
			return notFoundOr(err, "request not found", "failed to update privacy")
		}

		previous := models.NewSnapshot()
		previous.TitlePrivate = &request.TitlePrivate
		previous.SummaryPrivate = &request.AgencyRequestSummaryPrivate
		next := models.NewSnapshot()
		next.TitlePrivate = &titlePrivate
		next.SummaryPrivate = &summaryPrivate
		event := newEvent(models.EventRequestPrivacyChanged, request.ID, actorGUID, &previous, next, now)
		if err := tx.CreateEvent(ctx, event); err != nil {
			return storeError(err, "failed to record event")
		}

		out := *request
		out.TitlePrivate = titlePrivate
		out.AgencyRequestSummaryPrivate = summaryPrivate
		updated = &out
		change = &Change{Request: &out, Event: event, ActorGUID: actorGUID}
		return nil
	})
	if err != nil {
		change = nil
		return nil, err
	}
	return updated, nil
}

// FileDownloadToken issues a short-lived token for a file response the actor may see.
func (s *ResponseService) FileDownloadToken(ctx context.Context, actorGUID, requestID, responseID string) (*dto.DownloadToken, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "file downloads are disabled")
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	response, err := s.responses.GetResponse(ctx, responseID)
	if err != nil {
		return nil, notFoundOr(err, "response not found", "failed to load response")
	}
	file, ok := response.Payload.(*models.File)
	if !ok || response.RequestID != request.ID || response.Deleted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	aud, err := resolveAudience(ctx, s.auth, s.edges, actorGUID, request)
	if err != nil {
		return nil, err
	}
	if !aud.canSee(response.Privacy) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "file is not released to this user")
	}
	token, expiresAt, err := s.signer.Sign(storage.DownloadClaims{ResponseID: response.ID, ObjectKey: file.ObjectKey, UserGUID: actorGUID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return &dto.DownloadToken{Token: token, ExpiresAt: expiresAt.Format(time.RFC3339)}, nil
}
