package sync

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrRateLimited stops a run early without failing it.
	ErrRateLimited = errors.New("supplier rate limit reached")
	// ErrEndOfRange means the supplier has no records past the offset.
	ErrEndOfRange = errors.New("supplier reported end of range")
)

const (
	StopEmptyPage  = "empty_page"
	StopEndOfRange = "end_of_range"
	StopRateLimit  = "rate_limited"
	StopMaxRecords = "max_records"
)

var rateLimitMarkers = []string{
	"rate limit",
	"rate-limit",
	"ratelimit",
	"too many requests",
	"quota exceeded",
	"throttled",
}

var endOfRangeMarkers = []string{
	"end of range",
	"out of range",
	"no more",
	"no products",
	"not found",
	"offset exceeds",
}

// stopSignal inspects raw supplier text for rate-limit and end-of-range
// markers. Rate limiting wins when both appear.
func stopSignal(text string) error {
	lower := strings.ToLower(text)
	for _, m := range rateLimitMarkers {
		if strings.Contains(lower, m) {
			return ErrRateLimited
		}
	}
	for _, m := range endOfRangeMarkers {
		if strings.Contains(lower, m) {
			return ErrEndOfRange
		}
	}
	return nil
}

// statusSignal also maps the statuses that mean the same thing without any
// body text.
func statusSignal(status int, body []byte) error {
	if sig := stopSignal(string(body)); sig != nil {
		return sig
	}
	switch status {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrEndOfRange
	}
	return nil
}

func stopReason(sig error) string {
	if errors.Is(sig, ErrRateLimited) {
		return StopRateLimit
	}
	return StopEndOfRange
}
