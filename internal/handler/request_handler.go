package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
	"github.com/noah-isme/openrecords-api/pkg/response"
)

type requestService interface {
	CreateRequest(ctx context.Context, actorGUID string, req dto.CreateRequestPayload) (*models.Request, error)
	GetRequest(ctx context.Context, actorGUID, id string) (*models.Request, error)
	List(ctx context.Context, actorGUID string, query dto.RequestQuery) ([]models.Request, error)
	ListResponses(ctx context.Context, actorGUID, requestID string) ([]models.Response, error)
}

// RequestHandler exposes request intake and reads.
type RequestHandler struct {
	service requestService
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(service requestService) *RequestHandler {
	return &RequestHandler{service: service}
}

// Create godoc
// @Summary Submit a FOIL request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestPayload true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateRequestPayload
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.service.CreateRequest(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Location", "/api/v1/requests/"+created.ID)
	response.Created(c, created)
}

// Get godoc
// @Summary Get a request
// @Description Anonymous callers receive the public view with private fields blanked.
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.service.GetRequest(c.Request.Context(), actorGUID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// List godoc
// @Summary List requests of an agency
// @Tags Requests
// @Produce json
// @Param agency_ein query string false "Agency EIN"
// @Param status query []string false "Statuses" collectionFormat(multi)
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.RequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	requests, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil, listMeta(query.Limit, query.Offset, len(requests)))
}

// ListResponses godoc
// @Summary List responses visible to the caller
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/responses [get]
func (h *RequestHandler) ListResponses(c *gin.Context) {
	responses, err := h.service.ListResponses(c.Request.Context(), actorGUID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, responses, nil)
}
