// Package retry implements the one backoff/retry policy spec.md defines
// in three places (HTTP Engine §4.4, Auth Flows §4.3, Upload Engine
// §4.5): up to 3 attempts, exponential backoff with jitter from
// base delays {1, 2, 4} seconds capped at 30s, and a Retry-After header
// (numeric-seconds form only — see DESIGN.md on the HTTP-date question)
// raising the floor of the computed delay.
//
// Wraps github.com/hashicorp/go-retryablehttp for the request/retry loop
// itself, supplying custom CheckRetry/Backoff hooks because
// retryablehttp's own default backoff does not implement this exact
// discrete schedule.
package retry

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// MaxAttempts is the bound on transient retries spec.md places on every
// layer that retries (3 attempts total, i.e. up to 2 retries after the
// first).
const MaxAttempts = 3

var baseDelays = []float64{1, 2, 4}

// TransientStatuses are the HTTP statuses spec.md §4.4/§7 calls
// transient: retried silently, never surfaced to the user.
var TransientStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransientStatus reports whether status is one of the retried codes.
func IsTransientStatus(status int) bool {
	return TransientStatuses[status]
}

// Delay computes the backoff for retry attempt i (0-indexed): base[i] (or
// the last base value beyond the table) plus a random jitter in [0,1),
// capped at 30 seconds.
func Delay(attempt int) time.Duration {
	base := baseDelays[len(baseDelays)-1]
	if attempt < len(baseDelays) {
		base = baseDelays[attempt]
	}
	seconds := base + rand.Float64()
	if seconds > 30 {
		seconds = 30
	}
	return time.Duration(seconds * float64(time.Second))
}

// WithRetryAfterFloor raises computed to the value of a response's
// Retry-After header when that header parses as a plain number of
// seconds. An HTTP-date Retry-After is left unsupported, per spec.md §9.
func WithRetryAfterFloor(computed time.Duration, resp *http.Response) time.Duration {
	if resp == nil {
		return computed
	}
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return computed
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return computed
	}
	floor := time.Duration(secs * float64(time.Second))
	if floor > computed {
		return floor
	}
	return computed
}

// NewHTTPClient returns a retryablehttp.Client configured with this
// package's backoff/retry policy: up to MaxAttempts total attempts on
// network errors or a transient status, silent to the caller until
// exhausted.
func NewHTTPClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.Logger = nil
	c.RetryMax = MaxAttempts - 1
	c.RetryWaitMin = time.Second
	c.RetryWaitMax = 30 * time.Second
	c.CheckRetry = checkRetry
	c.Backoff = backoff
	return c
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp != nil && IsTransientStatus(resp.StatusCode) {
		return true, nil
	}
	return false, nil
}

func backoff(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
	return WithRetryAfterFloor(Delay(attemptNum), resp)
}
