package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/service"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
	"github.com/noah-isme/openrecords-api/pkg/response"
)

type eventService interface {
	List(ctx context.Context, actorGUID, requestID string, query dto.EventQuery) ([]models.Event, error)
	Export(ctx context.Context, actorGUID, requestID, format string) (*service.ExportFile, error)
}

// EventHandler exposes the audit trail of a request.
type EventHandler struct {
	service eventService
}

// NewEventHandler constructs the handler.
func NewEventHandler(service eventService) *EventHandler {
	return &EventHandler{service: service}
}

// List godoc
// @Summary List request events
// @Tags Events
// @Produce json
// @Param id path string true "Request ID"
// @Param type query []string false "Event types" collectionFormat(multi)
// @Param since query string false "RFC3339 lower bound"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/events [get]
func (h *EventHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.EventQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	events, err := h.service.List(c.Request.Context(), actor, c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil, listMeta(query.Limit, query.Offset, len(events)))
}

// Export godoc
// @Summary Export the audit trail
// @Tags Events
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /requests/{id}/events/export [get]
func (h *EventHandler) Export(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv")))
	file, err := h.service.Export(c.Request.Context(), actor, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
