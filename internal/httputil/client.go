package httputil

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jrschumacher/linkdash/internal/logger"
)

// RetryOptions configures an outbound HTTP client.
type RetryOptions struct {
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
	// Timeout bounds each attempt.
	Timeout time.Duration
}

// NewRetryClient returns a plain *http.Client whose transport retries
// connection failures and 502/503/504 responses. Other statuses are returned
// to the caller untouched.
func NewRetryClient(opts RetryOptions) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = opts.Backoff
	rc.RetryWaitMax = opts.Backoff
	rc.CheckRetry = RetryTransient
	rc.Logger = redactingLogger{l: logger.Logger()}
	rc.HTTPClient.Timeout = opts.Timeout
	return rc.StandardClient()
}

// RetryTransient is a retryablehttp.CheckRetry that gives up as soon as the
// request context is done.
func RetryTransient(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if err != nil {
		return true, nil
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}
