package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openrecords-api/internal/middleware"
)

// Handlers groups every HTTP handler of the API.
type Handlers struct {
	Requests       *RequestHandler
	Determinations *DeterminationHandler
	Responses      *ResponseHandler
	Users          *UserRequestHandler
	Events         *EventHandler
	Admin          *AdminHandler
	Metrics        *MetricsHandler
}

// Register mounts the API under /api/v1 plus the observability endpoints.
func Register(r *gin.Engine, h Handlers, tokens middleware.TokenValidator) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group("/api/v1")
	auth := middleware.JWT(tokens)
	optional := middleware.OptionalJWT(tokens)

	api.GET("/agencies", h.Admin.Agencies)
	api.GET("/agencies/:ein/reasons", h.Admin.Reasons)
	api.GET("/downloads/:token", h.Responses.Download)

	requests := api.Group("/requests")
	requests.POST("", auth, h.Requests.Create)
	requests.GET("", auth, h.Requests.List)
	requests.GET("/:id", optional, h.Requests.Get)
	requests.GET("/:id/responses", optional, h.Requests.ListResponses)
	requests.PATCH("/:id/privacy", auth, h.Responses.EditPrivacy)

	requests.POST("/:id/acknowledgment", auth, h.Determinations.Acknowledge)
	requests.POST("/:id/extension", auth, h.Determinations.Extend)
	requests.POST("/:id/denial", auth, h.Determinations.Deny)
	requests.POST("/:id/closing", auth, h.Determinations.Close)
	requests.POST("/:id/reopening", auth, h.Determinations.Reopen)

	requests.POST("/:id/notes", auth, h.Responses.AddNote)
	requests.POST("/:id/files", auth, h.Responses.AddFile)
	requests.POST("/:id/links", auth, h.Responses.AddLink)
	requests.POST("/:id/instructions", auth, h.Responses.AddInstruction)
	requests.POST("/:id/emails", auth, h.Responses.RecordEmail)
	requests.DELETE("/:id/responses/:responseId", auth, h.Responses.Delete)
	requests.POST("/:id/responses/:responseId/download-token", optional, h.Responses.DownloadToken)

	requests.GET("/:id/users", auth, h.Users.List)
	requests.POST("/:id/users", auth, h.Users.Add)
	requests.PATCH("/:id/users/:guid", auth, h.Users.Edit)
	requests.DELETE("/:id/users/:guid", auth, h.Users.Remove)
	requests.PUT("/:id/point-of-contact", auth, h.Users.PointOfContact)

	requests.GET("/:id/events", auth, h.Events.List)
	requests.GET("/:id/events/export", auth, h.Events.Export)

	admin := api.Group("/admin", auth)
	admin.POST("/sweeps", h.Admin.RunSweep)
	admin.POST("/counter-resets", h.Admin.ResetCounters)
}
