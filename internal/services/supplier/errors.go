package supplier

import (
	"fmt"
)

// AuthenticationError is returned when the token exchange fails for good.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("supplier authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx supplier response. The raw body is kept for
// stop-signal inspection.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("API request failed: %d - %s", e.Status, body)
}

func (e *StatusError) StatusCode() int {
	return e.Status
}
