package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")

	// Chat errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrStatusNotFound       = errors.New("status not found")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")

	// Validation errors
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyMessage     = errors.New("message content is required")
	ErrUnsupportedMedia = errors.New("unsupported file type")

	// Upstream errors
	ErrUpstream         = errors.New("upstream failure")
	ErrMediaUnavailable = errors.New("media storage is not configured")
)
