package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// ErrorDetail is the machine-readable part of an error response.
type ErrorDetail struct {
	Code    string `json:"code" doc:"Stable error code derived from the HTTP status"`
	Message string `json:"message" doc:"Human-readable description"`
}

// ErrorEnvelope is the uniform error body for every failed request.
type ErrorEnvelope struct {
	Status string      `json:"status" doc:"Always \"error\""`
	Error_ ErrorDetail `json:"error"`

	statusCode int
}

func (e *ErrorEnvelope) Error() string  { return e.Error_.Message }
func (e *ErrorEnvelope) GetStatus() int { return e.statusCode }

// newErrorEnvelope builds the envelope huma returns for failed requests.
// Wrapped causes are joined into the message so clients see the reason,
// not just the status text.
func newErrorEnvelope(status int, msg string, errs ...error) huma.StatusError {
	parts := []string{}
	if msg != "" {
		parts = append(parts, msg)
	}
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	if len(parts) == 0 {
		parts = append(parts, http.StatusText(status))
	}
	return &ErrorEnvelope{
		Status: "error",
		Error_: ErrorDetail{
			Code:    errorCode(status),
			Message: strings.Join(parts, ": "),
		},
		statusCode: status,
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_input"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "invalid_input"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		if status >= 500 {
			return "internal_error"
		}
		return fmt.Sprintf("http_%d", status)
	}
}
