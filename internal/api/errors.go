//
//
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/autoland/lander/internal/auth"
	"github.com/autoland/lander/internal/bus"
	"github.com/autoland/lander/internal/vehicle"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// NewAPIError creates a new API error.
func NewAPIError(code string, message string, statusCode int, details interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// API error codes for transport and lookup conditions.
var (
	ErrBadRequest = errors.New("BAD_REQUEST")
	ErrNotFound   = errors.New("NOT_FOUND")
)

type errorMapping struct {
	target  error
	code    string
	status  int
	message string
}

// errorMappings are checked in order with errors.Is.
var errorMappings = []errorMapping{
	{bus.ErrMalformedPayload, "BAD_REQUEST", http.StatusBadRequest, "Payload does not fit the topic"},
	{bus.ErrUnknownTopic, "NOT_FOUND", http.StatusNotFound, "Unknown topic"},
	{bus.ErrClosed, "UNAVAILABLE", http.StatusServiceUnavailable, "Event bus is closed"},
	{vehicle.ErrInvalidRange, "INVALID_RANGE", http.StatusBadRequest, "Parameter value is outside the allowed range"},
	{vehicle.ErrBusy, "BUSY", http.StatusServiceUnavailable, "Service is busy, please retry with backoff"},
	{vehicle.ErrUnavailable, "UNAVAILABLE", http.StatusServiceUnavailable, "Service is temporarily unavailable"},
	{vehicle.ErrInternal, "INTERNAL", http.StatusInternalServerError, "Internal server error"},
	{auth.ErrInvalidToken, "UNAUTHORIZED", http.StatusUnauthorized, "Authentication required"},
	{ErrBadRequest, "BAD_REQUEST", http.StatusBadRequest, "Malformed or missing required parameter"},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "Resource not found"},
}

// ToAPIError converts an error to an HTTP status code and JSON body.
func ToAPIError(err error) (int, []byte) {
	if err == nil {
		return http.StatusOK, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, marshalErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			var details interface{}
			var linkErr *vehicle.LinkError
			if errors.As(err, &linkErr) {
				details = linkErr.Details
			}
			if details == nil {
				details = map[string]string{"reason": err.Error()}
			}
			return m.status, marshalErrorResponse(m.code, m.message, details)
		}
	}

	return http.StatusInternalServerError, marshalErrorResponse("INTERNAL", "Internal server error", map[string]interface{}{
		"original": err.Error(),
	})
}

func marshalErrorResponse(code, message string, details interface{}) []byte {
	body, err := json.Marshal(ErrorResponse(code, message, details))
	if err != nil {
		fallback, _ := json.Marshal(ErrorResponse("INTERNAL", "Failed to marshal error response", nil))
		return fallback
	}
	return body
}
