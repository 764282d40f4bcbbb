package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for control-plane requests.
var (
	ErrNotFound     = errors.New("pipeline not found")
	ErrUnauthorized = errors.New("authentication required")
	ErrUnavailable  = errors.New("control plane unavailable")
)

// APIError carries a non-sentinel HTTP failure with its status code.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}
