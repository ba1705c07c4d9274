package api

import (
	"net/http"

	"github.com/cozy-creator/lesion-server/internal/app"
	"github.com/gin-gonic/gin"
)

func Classes(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"classes": app.Predictor().Catalogue(),
	})
}
