package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
	"github.com/noah-isme/openrecords-api/pkg/response"
	"github.com/noah-isme/openrecords-api/pkg/storage"
)

type responseService interface {
	AddNote(ctx context.Context, actorGUID, requestID string, req dto.NotePayload) (*models.Response, error)
	AddFile(ctx context.Context, actorGUID, requestID string, req dto.FilePayload) (*models.Response, error)
	AddLink(ctx context.Context, actorGUID, requestID string, req dto.LinkPayload) (*models.Response, error)
	AddInstruction(ctx context.Context, actorGUID, requestID string, req dto.InstructionPayload) (*models.Response, error)
	RecordEmail(ctx context.Context, actorGUID, requestID string, req dto.EmailPayload) (*models.Response, error)
	DeleteResponse(ctx context.Context, actorGUID, requestID, responseID string) error
	EditRequestPrivacy(ctx context.Context, actorGUID, requestID string, req dto.EditPrivacyPayload) (*models.Request, error)
	FileDownloadToken(ctx context.Context, actorGUID, requestID, responseID string) (*dto.DownloadToken, error)
}

type downloadVerifier interface {
	Verify(token string) (storage.DownloadClaims, error)
}

type objectPresigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ResponseHandler exposes notes, files, links, instructions and emails.
type ResponseHandler struct {
	service  responseService
	verifier downloadVerifier
	files    objectPresigner
}

// NewResponseHandler constructs the handler. verifier and files may be nil
// when file downloads are disabled.
func NewResponseHandler(service responseService, verifier downloadVerifier, files objectPresigner) *ResponseHandler {
	return &ResponseHandler{service: service, verifier: verifier, files: files}
}

// AddNote godoc
// @Summary Add a note
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.NotePayload true "Note"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/notes [post]
func (h *ResponseHandler) AddNote(c *gin.Context) {
	determine(c, h.service.AddNote)
}

// AddFile godoc
// @Summary Attach a stored file
// @Description The object must already exist in the file store.
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.FilePayload true "File reference"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/files [post]
func (h *ResponseHandler) AddFile(c *gin.Context) {
	determine(c, h.service.AddFile)
}

// AddLink godoc
// @Summary Add an external link
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.LinkPayload true "Link"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/links [post]
func (h *ResponseHandler) AddLink(c *gin.Context) {
	determine(c, h.service.AddLink)
}

// AddInstruction godoc
// @Summary Add offline instructions
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.InstructionPayload true "Instructions"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/instructions [post]
func (h *ResponseHandler) AddInstruction(c *gin.Context) {
	determine(c, h.service.AddInstruction)
}

// RecordEmail godoc
// @Summary Record a sent email
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.EmailPayload true "Email copy"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/emails [post]
func (h *ResponseHandler) RecordEmail(c *gin.Context) {
	determine(c, h.service.RecordEmail)
}

// Delete godoc
// @Summary Soft delete a response
// @Tags Responses
// @Param id path string true "Request ID"
// @Param responseId path string true "Response ID"
// @Success 204
// @Router /requests/{id}/responses/{responseId} [delete]
func (h *ResponseHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := h.service.DeleteResponse(c.Request.Context(), actor, c.Param("id"), c.Param("responseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EditPrivacy godoc
// @Summary Change privacy of the title or agency summary
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.EditPrivacyPayload true "Privacy flags"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/privacy [patch]
func (h *ResponseHandler) EditPrivacy(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.EditPrivacyPayload
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.service.EditRequestPrivacy(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// DownloadToken godoc
// @Summary Issue a download token for a file response
// @Tags Responses
// @Produce json
// @Param id path string true "Request ID"
// @Param responseId path string true "Response ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/responses/{responseId}/download-token [post]
func (h *ResponseHandler) DownloadToken(c *gin.Context) {
	token, err := h.service.FileDownloadToken(c.Request.Context(), actorGUID(c), c.Param("id"), c.Param("responseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

// Download godoc
// @Summary Redeem a download token
// @Description Redirects to a short-lived presigned URL of the stored object.
// @Tags Responses
// @Param token path string true "Download token"
// @Success 302
// @Failure 401 {object} response.Envelope
// @Router /downloads/{token} [get]
func (h *ResponseHandler) Download(c *gin.Context) {
	if h.verifier == nil || h.files == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "file downloads are disabled"))
		return
	}
	claims, err := h.verifier.Verify(c.Param("token"))
	if err != nil {
		msg := "invalid download token"
		if errors.Is(err, storage.ErrTokenExpired) {
			msg = "download token expired"
		}
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, msg))
		return
	}
	expiry := time.Until(claims.ExpiresAt)
	if expiry < time.Minute {
		expiry = time.Minute
	}
	link, err := h.files.PresignGet(c.Request.Context(), claims.ObjectKey, expiry)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to presign download"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, link)
}
