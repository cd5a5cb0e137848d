package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/cesar/internal/common"
	"github.com/suPer8Hu/cesar/internal/httpapi/handlers"
	"github.com/suPer8Hu/cesar/internal/httpapi/middleware"
)

// NewRouter wires the job API. Routes other than /health require a bearer
// token when apiSecret is set.
func NewRouter(h *handlers.Handler, apiSecret string, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.MaxMultipartMemory = 32 << 20
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/health", h.Health)

	api := r.Group("/")
	if apiSecret != "" {
		api.Use(middleware.AuthRequired(apiSecret))
	}
	api.POST("/jobs", h.CreateJob)
	api.POST("/jobs/upload", h.UploadJob)
	api.GET("/jobs", h.ListJobs)
	api.GET("/jobs/:id", h.GetJob)
	api.POST("/jobs/:id/retry", h.RetryJob)
	api.GET("/events", h.Events)
	return r
}
