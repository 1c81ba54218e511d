package link

import (
	"math"
	"net/http"

	"github.com/pkg/errors"

	"shortlink/links"
	"shortlink/ratelimit"
)

// status maps a domain error to the response code and the message shown to
// clients. Store details never leak.
func status(err error) (int, string) {
	switch {
	case errors.Is(err, links.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, links.ErrRateLimited):
		return http.StatusTooManyRequests, "rate limit exceeded"
	case errors.Is(err, links.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, links.ErrDuplicateConflict):
		return http.StatusConflict, "conflicting short link, try again"
	case errors.Is(err, links.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "couldn't process request"
	}
}

// retryAfter is the whole seconds until one token is back in a bucket.
func retryAfter(p ratelimit.Profile) int {
	if p.Rate <= 0 {
		return 1
	}
	s := int(math.Ceil(1 / p.Rate))
	if s < 1 {
		return 1
	}
	return s
}
