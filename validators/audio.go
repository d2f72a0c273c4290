// Package validators contains input validation helpers for the API
package validators

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/viper"
)

var (
	ErrNoFile              = errors.New("no file provided")
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
)

const maxFileNameSize = 255

// AudioFile checks an uploaded file against the configured size cap and
// allowed audio types. Returns the detected MIME type and the opened
// file positioned at the start.
func AudioFile(fh *multipart.FileHeader) (int, string, multipart.File, error) {
	if fh == nil {
		return http.StatusBadRequest, "", nil, ErrNoFile
	}

	// Check headers first which is easy to spoof, but faster for legit clients
	ct := fh.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "audio/") {
		return http.StatusBadRequest, "", nil, ErrFileTypeUnsupported
	}

	if len(fh.Filename) > maxFileNameSize {
		return http.StatusBadRequest, "", nil, ErrFileNameTooLong
	}

	if fh.Size > viper.GetInt64("upload.max_size") {
		return http.StatusBadRequest, "", nil, ErrFileTooLarge
	}

	// And now check the actual bytes to catch clients lying in headers
	f, err := fh.Open()
	if err != nil {
		return http.StatusInternalServerError, "", nil, err
	}

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return http.StatusInternalServerError, "", nil, err
	}

	allowed := viper.GetStringSlice("upload.allowed_types")

	ok := len(allowed) == 0 && strings.HasPrefix(mime.String(), "audio/")
	for _, t := range allowed {
		if mime.Is(t) {
			ok = true
			break
		}
	}

	if !ok {
		f.Close()
		return http.StatusBadRequest, "", nil, ErrFileTypeUnsupported
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return http.StatusInternalServerError, "", nil, err
	}

	return 0, mime.String(), f, nil
}
