package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response status discriminators
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// APIResponse uniform response envelope
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse returns a 200 JSON response
func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

// CreatedResponse returns a 201 JSON response
func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse returns an error JSON response. err is never exposed to the client.
func ErrorResponse(c *gin.Context, status int, message string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(status, APIResponse{
		Status:  StatusError,
		Message: message,
		Code:    getErrorCode(status),
	})
}

// HandleError maps a service error onto the envelope.
// fallback is used as the message for unexpected (500) errors.
func HandleError(c *gin.Context, err error, fallback string) {
	status, message := StatusFor(err)
	if status == http.StatusInternalServerError {
		message = fallback
	}
	ErrorResponse(c, status, message, err)
}

// StatusFor returns the HTTP status and client-safe message for err
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrStatusNotFound):
		return http.StatusNotFound, firstLine(err)
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrNotFound.Error()
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "Not authorized to access this resource"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "Not authorized to perform this action"
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrUnsupportedMedia):
		return http.StatusBadRequest, firstLine(err)
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, ErrInvalidInput.Error()
	case errors.Is(err, ErrMediaUnavailable):
		return http.StatusServiceUnavailable, ErrMediaUnavailable.Error()
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "Failed to upload media"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// firstLine returns the sentinel text for wrapped errors so wrapping context stays server-side
func firstLine(err error) string {
	for _, sentinel := range []error{ErrConversationNotFound, ErrMessageNotFound, ErrStatusNotFound, ErrEmptyMessage, ErrUnsupportedMedia} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// getErrorCode generates error code from HTTP status
func getErrorCode(status int) string {
	switch status {
	case 400:
		return "BAD_REQUEST"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 409:
		return "CONFLICT"
	case 413:
		return "PAYLOAD_TOO_LARGE"
	case 429:
		return "TOO_MANY_REQUESTS"
	case 500:
		return "INTERNAL_SERVER_ERROR"
	case 502:
		return "BAD_GATEWAY"
	case 503:
		return "SERVICE_UNAVAILABLE"
	default:
		return "ERROR"
	}
}
