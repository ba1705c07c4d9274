package api

import (
	"net/http"

	"github.com/cozy-creator/lesion-server/internal/app"
	"github.com/gin-gonic/gin"
)

// Health reports the model lifecycle. It answers 200 even when the model is
// unavailable; callers read "ready".
func Health(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"model":  app.Predictor().Status(),
	})
}
