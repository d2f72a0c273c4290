package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/db"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckFile returns the stored metadata of an upload. Expired files are
// reported as missing.
func (a *API) CheckFile(c *gin.Context) {
	fileID := c.Param("fileId")

	file, err := a.Store.AudioFileByID(fileID)
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

		zap.L().Error("Failed to fetch file from db", zap.String("file_id", fileID), zap.Error(err))
		return
	}

	if file.Expired || file.ExpiresAt.Before(time.Now()) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "File not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"fileId":     file.ID,
			"fileName":   file.OriginalName,
			"fileSize":   file.Size,
			"mimeType":   file.MimeType,
			"storageUrl": file.StorageURL,
			"expiresAt":  file.ExpiresAt,
		},
	})
}
