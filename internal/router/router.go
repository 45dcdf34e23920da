package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/case-service/api"
	"github.com/psds-microservice/case-service/internal/handler"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Служебные пути сервиса.
const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathSwagger = "/swagger"
)

func New(caseHandler *handler.CaseHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(PathHealth, gin.WrapF(handler.Health))
	r.GET(PathReady, gin.WrapF(handler.Ready))
	r.GET(PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, PathSwagger+"/") })
	r.GET(PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = PathSwagger + "/index.html"
			c.Request.RequestURI = PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/cases", caseHandler.Create)
		v1.GET("/cases", caseHandler.List)
		v1.POST("/cases/bulk-update", caseHandler.BulkUpdate)
		v1.GET("/cases/:id", caseHandler.Get)
		v1.PATCH("/cases/:id", caseHandler.Update)
		v1.POST("/cases/:id/close", caseHandler.Close)
		v1.GET("/bookings/:booking_id/events", caseHandler.BookingEvents)
	}

	return r
}
