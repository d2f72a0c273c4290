package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/db"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type processRequest struct {
	FileID string `json:"fileId"`
}

// ProcessStart creates a separation job for an uploaded file and
// returns its id right away. Failures downstream only become visible
// through polling.
func (a *API) ProcessStart(c *gin.Context) {
	var req processRequest

	if err := c.ShouldBindJSON(&req); err != nil || req.FileID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "No file ID provided",
		})
		return
	}

	file, err := a.Store.AudioFileByID(req.FileID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "File not found",
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})

		zap.L().Error("Failed to look up file", zap.String("file_id", req.FileID), zap.Error(err))
		return
	}

	// Expired uploads are purged asynchronously, refuse them here even
	// when the row still exists.
	if file.Expired || file.ExpiresAt.Before(time.Now()) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "File expired",
		})
		return
	}

	job, err := a.Separator.CreateJob(file.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to create job",
		})

		zap.L().Error("Failed to create separation job", zap.String("file_id", file.ID), zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"jobId":         job.ID,
			"status":        model.JobPending,
			"estimatedTime": job.EstimatedSeconds,
		},
	})
}
