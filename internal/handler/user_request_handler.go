package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/pkg/response"
)

type userRequestService interface {
	ListUsers(ctx context.Context, actorGUID, requestID string) ([]models.UserRequest, error)
	AddUser(ctx context.Context, actorGUID, requestID string, req dto.AddUserPayload) (*models.UserRequest, error)
	EditUserPermissions(ctx context.Context, actorGUID, requestID, userGUID string, req dto.EditPermissionsPayload) (*models.UserRequest, error)
	RemoveUser(ctx context.Context, actorGUID, requestID, userGUID string) error
	ChangePointOfContact(ctx context.Context, actorGUID, requestID string, req dto.PointOfContactPayload) (*models.UserRequest, error)
}

// UserRequestHandler manages which staff may act on a request.
type UserRequestHandler struct {
	service userRequestService
}

// NewUserRequestHandler constructs the handler.
func NewUserRequestHandler(service userRequestService) *UserRequestHandler {
	return &UserRequestHandler{service: service}
}

// List godoc
// @Summary List the users attached to a request
// @Tags Request Users
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests/{id}/users [get]
func (h *UserRequestHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	edges, err := h.service.ListUsers(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edges, nil, map[string]interface{}{"count": len(edges)})
}

// Add godoc
// @Summary Add a user to a request
// @Tags Request Users
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.AddUserPayload true "User and role or permissions"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/users [post]
func (h *UserRequestHandler) Add(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.AddUserPayload
	if !bindJSON(c, &req) {
		return
	}
	added, err := h.service.AddUser(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, added)
}

// Edit godoc
// @Summary Change a user's permissions on a request
// @Tags Request Users
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param guid path string true "User GUID"
// @Param payload body dto.EditPermissionsPayload true "Permission change"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/users/{guid} [patch]
func (h *UserRequestHandler) Edit(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.EditPermissionsPayload
	if !bindJSON(c, &req) {
		return
	}
	edited, err := h.service.EditUserPermissions(c.Request.Context(), actor, c.Param("id"), c.Param("guid"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, edited, nil)
}

// Remove godoc
// @Summary Remove a user from a request
// @Tags Request Users
// @Param id path string true "Request ID"
// @Param guid path string true "User GUID"
// @Success 204
// @Router /requests/{id}/users/{guid} [delete]
func (h *UserRequestHandler) Remove(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := h.service.RemoveUser(c.Request.Context(), actor, c.Param("id"), c.Param("guid")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PointOfContact godoc
// @Summary Designate the agency point of contact
// @Tags Request Users
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.PointOfContactPayload true "Contact"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/point-of-contact [put]
func (h *UserRequestHandler) PointOfContact(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.PointOfContactPayload
	if !bindJSON(c, &req) {
		return
	}
	contact, err := h.service.ChangePointOfContact(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contact, nil)
}
