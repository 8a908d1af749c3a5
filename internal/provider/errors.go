package provider

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"
)

// ErrInvalidCredential matches an APIError with status 401.
var ErrInvalidCredential = errors.New("provider: invalid credential")

// APIError is a non-2xx reply from the Messages API.
type APIError struct {
	StatusCode int
	// Message is the upstream error.message, or the SDK error text when the body
	// carries none.
	Message string
	err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic: %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.err }

func (e *APIError) Is(target error) bool {
	return target == ErrInvalidCredential && e.StatusCode == 401
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic: %w", err)
	}
	msg := gjson.Get(apiErr.RawJSON(), "error.message").String()
	if msg == "" {
		msg = apiErr.Error()
	}
	return &APIError{StatusCode: apiErr.StatusCode, Message: msg, err: err}
}

// ErrorMessage returns the text shown to the user for a failed call: the upstream
// message for API errors, err.Error() otherwise.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
