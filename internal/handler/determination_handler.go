package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/pkg/response"
)

type determinationService interface {
	Acknowledge(ctx context.Context, actorGUID, requestID string, req dto.AcknowledgePayload) (*models.Response, error)
	Extend(ctx context.Context, actorGUID, requestID string, req dto.ExtendPayload) (*models.Response, error)
	Deny(ctx context.Context, actorGUID, requestID string, req dto.ReasonPayload) (*models.Response, error)
	Close(ctx context.Context, actorGUID, requestID string, req dto.ReasonPayload) (*models.Response, error)
	Reopen(ctx context.Context, actorGUID, requestID string, req dto.ReopenPayload) (*models.Response, error)
}

// DeterminationHandler exposes the legally significant decisions on a request.
type DeterminationHandler struct {
	service determinationService
}

// NewDeterminationHandler constructs the handler.
func NewDeterminationHandler(service determinationService) *DeterminationHandler {
	return &DeterminationHandler{service: service}
}

// determine binds the payload, runs op for the authenticated actor and writes 201.
func determine[T any](c *gin.Context, op func(ctx context.Context, actor, requestID string, req T) (*models.Response, error)) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req T
	if !bindJSON(c, &req) {
		return
	}
	created, err := op(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Acknowledge godoc
// @Summary Acknowledge a request
// @Description Sets the first due date. A date wins over days; days -1 requires a date.
// @Tags Determinations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.AcknowledgePayload true "Acknowledgment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/acknowledgment [post]
func (h *DeterminationHandler) Acknowledge(c *gin.Context) {
	determine(c, h.service.Acknowledge)
}

// Extend godoc
// @Summary Extend the due date of a request
// @Tags Determinations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ExtendPayload true "Extension"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/extension [post]
func (h *DeterminationHandler) Extend(c *gin.Context) {
	determine(c, h.service.Extend)
}

// Deny godoc
// @Summary Deny and close a request
// @Tags Determinations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReasonPayload true "Denial reasons"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/denial [post]
func (h *DeterminationHandler) Deny(c *gin.Context) {
	determine(c, h.service.Deny)
}

// Close godoc
// @Summary Close a fulfilled request
// @Tags Determinations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReasonPayload true "Closing reasons"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/closing [post]
func (h *DeterminationHandler) Close(c *gin.Context) {
	determine(c, h.service.Close)
}

// Reopen godoc
// @Summary Reopen a closed request
// @Tags Determinations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReopenPayload true "New due date"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/reopening [post]
func (h *DeterminationHandler) Reopen(c *gin.Context) {
	determine(c, h.service.Reopen)
}
