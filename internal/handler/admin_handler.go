package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	"github.com/noah-isme/openrecords-api/internal/service"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
	"github.com/noah-isme/openrecords-api/pkg/response"
)

type statusSweeper interface {
	RunStatusSweep(ctx context.Context, now time.Time) (*service.SweepReport, error)
}

type agencyService interface {
	List(ctx context.Context, activeOnly bool) ([]models.Agency, error)
	ListReasons(ctx context.Context, agencyEIN string, kind models.ReasonKind) ([]models.Reason, error)
	RequireSuperUser(ctx context.Context, actorGUID string) error
	ResetRequestCounters(ctx context.Context, actorGUID string) ([]service.CounterReset, error)
}

// AdminHandler exposes operator endpoints.
type AdminHandler struct {
	sweeper  statusSweeper
	agencies agencyService
	now      func() time.Time
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(sweeper statusSweeper, agencies agencyService) *AdminHandler {
	return &AdminHandler{sweeper: sweeper, agencies: agencies, now: time.Now}
}

// RunSweep godoc
// @Summary Run the status sweep now
// @Description Super users only. The optional now pins the evaluation clock.
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.SweepPayload false "Sweep clock"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/sweeps [post]
func (h *AdminHandler) RunSweep(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := h.agencies.RequireSuperUser(c.Request.Context(), actor); err != nil {
		response.Error(c, err)
		return
	}
	now := h.now()
	if c.Request.ContentLength != 0 {
		var req dto.SweepPayload
		if !bindJSON(c, &req) {
			return
		}
		if raw := strings.TrimSpace(req.Now); raw != "" {
			pinned, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "now must be RFC3339"))
				return
			}
			now = pinned
		}
	}
	report, err := h.sweeper.RunStatusSweep(c.Request.Context(), now)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil, map[string]interface{}{
		"transitioned": len(report.Transitioned),
		"errors":       len(report.Errors),
	})
}

// ResetCounters godoc
// @Summary Restart every agency's request sequence
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/counter-resets [post]
func (h *AdminHandler) ResetCounters(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	resets, err := h.agencies.ResetRequestCounters(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resets, nil)
}

// Agencies godoc
// @Summary List agencies
// @Tags Agencies
// @Produce json
// @Param active query bool false "Active agencies only" default(true)
// @Success 200 {object} response.Envelope
// @Router /agencies [get]
func (h *AdminHandler) Agencies(c *gin.Context) {
	agencies, err := h.agencies.List(c.Request.Context(), queryBool(c, "active", true))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, agencies, nil)
}

// Reasons godoc
// @Summary List the determination reasons an agency may cite
// @Tags Agencies
// @Produce json
// @Param ein path string true "Agency EIN"
// @Param type query string false "denial, closing or re-opening"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /agencies/{ein}/reasons [get]
func (h *AdminHandler) Reasons(c *gin.Context) {
	kind := models.ReasonKind(strings.ToLower(strings.TrimSpace(c.Query("type"))))
	reasons, err := h.agencies.ListReasons(c.Request.Context(), c.Param("ein"), kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reasons, nil)
}
