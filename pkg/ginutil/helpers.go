package ginutil

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrFileTooLarge is returned when an upload exceeds the request body limit
var ErrFileTooLarge = errors.New("file too large")

// LimitBody caps the request body at maxBytes; zero or less leaves it unlimited
func LimitBody(c *gin.Context, maxBytes int64) {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	}
}

// ParseMultipart parses a multipart body up to the in-memory threshold.
// Non-multipart bodies are left for the regular form parser.
func ParseMultipart(c *gin.Context) error {
	err := c.Request.ParseMultipartForm(32 << 20)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ErrFileTooLarge
	}
	return err
}

// OptionalFormFile returns the uploaded file for key, or nil when the field is absent
func OptionalFormFile(c *gin.Context, key string) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(key)
	if err == nil {
		return fh, nil
	}
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return nil, ErrFileTooLarge
	}
	return nil, err
}

// FileContentType returns the declared content type of an upload, sniffing when absent
func FileContentType(fh *multipart.FileHeader, f multipart.File) string {
	if ct := strings.TrimSpace(fh.Header.Get("Content-Type")); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	head := make([]byte, 512)
	n, _ := f.Read(head)
	_, _ = f.Seek(0, io.SeekStart)
	return http.DetectContentType(head[:n])
}

// Param returns a trimmed path parameter and whether it is non-empty
func Param(c *gin.Context, key string) (string, bool) {
	v := strings.TrimSpace(c.Param(key))
	return v, v != ""
}
