package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/validators"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Upload accepts a single audio file in the "audio" multipart field,
// stores it and persists its metadata with a retention deadline.
func (a *API) Upload(c *gin.Context) {
	if !strings.HasPrefix(c.Request.Header.Get("Content-Type"), "multipart/form-data") {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request",
		})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})

		zap.L().Error("Failed to parse multipart form", zap.Error(err))
		return
	}

	files := form.File["audio"]
	if len(files) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "No file provided",
		})
		return
	}

	fh := files[0]

	code, mimeType, f, err := validators.AudioFile(fh)
	if err != nil {
		if code == http.StatusInternalServerError {
			zap.L().Error("Failed to validate file", zap.Error(err))
			err = errors.New("internal server error")
		}

		c.AbortWithStatusJSON(code, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})

		zap.L().Error("Failed to read uploaded file", zap.Error(err))
		return
	}

	key, url, err := a.Blobs.Store(c.Request.Context(), data, mimeType, fh.Filename)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})

		zap.L().Error("Failed to store uploaded file", zap.Error(err))
		return
	}

	// Anonymous uploads get the free tier retention window.
	file := &model.AudioFile{
		ID:           uuid.NewString(),
		OriginalName: fh.Filename,
		Size:         fh.Size,
		MimeType:     mimeType,
		StorageKey:   key,
		StorageURL:   url,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(time.Duration(viper.GetInt("retention.free")) * time.Hour),
	}

	if err := a.Store.CreateAudioFile(file); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})

		zap.L().Error("Failed to save file record to db", zap.Error(err))

		// Orphaned blob, best-effort removal
		if derr := a.Blobs.Delete(c.Request.Context(), key); derr != nil {
			zap.L().Warn("Failed to clean up blob after failed upload", zap.String("key", key), zap.Error(derr))
		}
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
