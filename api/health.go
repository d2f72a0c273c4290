package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health is a liveness probe with no side effects.
func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
