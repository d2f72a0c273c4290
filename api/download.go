package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/db"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Download proxies a separated stem from the object store as an
// attachment. Expired stems are treated as missing.
func (a *API) Download(c *gin.Context) {
	jobID := c.Param("jobId")
	stemType := c.Param("stemType")

	if !model.ValidStemType(stemType) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid stem type",
		})
		return
	}

	stem, err := a.Store.StemByJobAndType(jobID, stemType)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Stem not found",
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})

		zap.L().Error("Failed to look up stem", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	if stem.ExpiresAt.Before(time.Now()) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Stem not found",
		})
		return
	}

	data, err := a.Blobs.Fetch(c.Request.Context(), stem.StorageURL)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to fetch stem",
		})

		zap.L().Error("Failed to fetch stem from storage",
			zap.String("job_id", jobID),
			zap.String("stem", stemType),
			zap.Error(err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem.Filename))
	c.Data(http.StatusOK, "audio/wav", data)
}
