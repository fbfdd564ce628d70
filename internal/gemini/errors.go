package gemini

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// StatusError is a non-success HTTP answer from the generative API.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API request failed: %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("API request failed: %d", e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is an HTTP 429 from the API.
func IsRateLimited(err error) bool {
	var status *StatusError
	return errors.As(err, &status) && status.Code == http.StatusTooManyRequests
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &StatusError{Code: gerr.Code, Message: gerr.Message, Err: err}
	}

	// gax wraps REST failures in an APIError that exposes the HTTP code.
	var coded interface{ HTTPCode() int }
	if errors.As(err, &coded) && coded.HTTPCode() > 0 {
		return &StatusError{Code: coded.HTTPCode(), Err: err}
	}
	return err
}
