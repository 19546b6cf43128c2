package snapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	ErrNoInstance    = errors.New("snapi: instance missing")
	ErrNoCredentials = errors.New("snapi: credentials missing")
	ErrNotFound      = errors.New("snapi: record not found")
)

// APIError is the error body returned by the table API along with the response status.
type APIError struct {
	Status int `json:"-"`
	Detail struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

func newAPIError(status int, message string) *APIError {
	e := &APIError{Status: status}
	e.Detail.Message = message
	return e
}

func (e *APIError) Error() string {
	msg := e.Detail.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Detail.Detail != "" {
		return fmt.Sprintf("api error: %d - %s (%s)", e.Status, msg, e.Detail.Detail)
	}
	return fmt.Sprintf("api error: %d - %s", e.Status, msg)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsTemporary reports whether err wraps a temporary APIError.
func IsTemporary(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// handleAPIError is a helper function that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr != nil {
			apiErr.Status = resp.StatusCode
			return fmt.Errorf("%s %w", operation, apiErr)
		}
		return fmt.Errorf("%s %w", operation, newAPIError(resp.StatusCode, resp.String()))
	}

	if !resp.IsSuccessState() {
		return fmt.Errorf("%s %w", operation, newAPIError(resp.StatusCode, "unexpected response"))
	}

	return nil
}
