package upstream

import (
	"errors"
	"fmt"
	"strings"
)

// maxErrorBodyLength bounds how much of an upstream response body is carried
// in an APIError. Enough for the caller to act on, small enough to log.
const maxErrorBodyLength = 512

// APIError is a status-coded failure from the upstream provider. None of the
// calls in this package retry automatically: token and code exchanges are not
// safe to retry blindly, so the caller decides.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream api error: status %d: %s", e.Status, e.Body)
}

func newAPIError(status int, body string) *APIError {
	if len(body) > maxErrorBodyLength {
		body = body[:maxErrorBodyLength]
	}
	return &APIError{Status: status, Body: body}
}

// isProfileExists reports whether err is the provider telling us the profile
// identifier is already registered. That is a recoverable condition: the
// caller falls back to fetching the existing profile's credentials.
func isProfileExists(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Body), "exists")
}
