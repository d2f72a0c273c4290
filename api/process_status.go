package api

import (
	"errors"
	"net/http"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/db"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProcessStatus is the polling endpoint clients hit until a job goes
// terminal.
func (a *API) ProcessStatus(c *gin.Context) {
	jobID := c.Param("jobId")

	res, err := a.Separator.JobStatus(jobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Job not found",
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})

		zap.L().Error("Failed to read job status", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    res,
	})
}
