package server

import (
	"net/http"

	"github.com/cozy-creator/lesion-server/internal/api"
	"github.com/cozy-creator/lesion-server/internal/app"
	"github.com/gin-gonic/gin"
)

func (s *Server) SetupRoutes(app *app.App) {
	// Health check endpoint
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if m := app.Metrics(); m != nil {
		s.ginEngine.GET("/metrics", gin.WrapH(m.Handler()))
	}

	apiV1 := s.ginEngine.Group("/api/v1")

	apiV1.GET("/health", handlerWrapper(app, api.Health))
	apiV1.GET("/classes", handlerWrapper(app, api.Classes))
	apiV1.POST("/predict", handlerWrapper(app, api.Predict))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
