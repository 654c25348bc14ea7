package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
)

// RateLimitHeader is the response header through which the partner API
// advertises the current requests-per-second ceiling for the operation.
const RateLimitHeader = "x-amzn-RateLimit-Limit"

// ObserveHeaders extracts the advertised rate ceiling from a response
// and feeds it to Observe. Responses without the header, or with an
// unparseable value, are ignored.
func (l *Limiter) ObserveHeaders(class string, headers http.Header) {
	raw := headers.Get(RateLimitHeader)
	if raw == "" {
		return
	}

	rps, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		l.logger.Debug().
			Str("class", class).
			Str("value", raw).
			Msg("Unparseable rate limit header")
		return
	}

	l.Observe(class, rps)
}
