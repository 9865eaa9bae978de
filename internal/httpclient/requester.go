// Package httpclient provides the bounded-retry GET executor shared by the
// price and balance clients.
package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options controls per-request timeout and retry behavior.
type Options struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// RequestError is the terminal failure after all attempts are exhausted. It
// carries the last underlying error and, when the last attempt reached the
// server, the response status code.
type RequestError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request to %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Requester executes GET requests with a per-attempt deadline, bounded
// retries with linearly increasing delay, and a shared outbound rate limit.
type Requester struct {
	client  *fasthttp.Client
	limiter *rate.Limiter
	opts    Options
	logger  *zap.Logger
}

// NewRequester creates a Requester. rps/burst bound the outbound request
// rate across all callers sharing this instance.
func NewRequester(opts Options, rps int, burst int, logger *zap.Logger) *Requester {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	return &Requester{
		client:  &fasthttp.Client{},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		opts:    opts,
		logger:  logger.Named("Requester"),
	}
}

// Get fetches url, returning the response body. Each attempt is bounded by
// the configured timeout; a non-2xx status or transport error is retried up
// to RetryAttempts times, waiting RetryDelay x attemptNumber between
// attempts. After the last attempt it returns a *RequestError.
func (r *Requester) Get(ctx context.Context, url string, accept string) ([]byte, error) {
	var lastErr error
	lastStatus := 0

	for attempt := 1; attempt <= r.opts.RetryAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &RequestError{URL: url, Attempts: attempt, Err: err}
		}

		body, status, err := r.do(ctx, url, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		lastStatus = status
		r.logger.Warn("API request attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("statusCode", status),
			zap.Error(err))

		if attempt == r.opts.RetryAttempts {
			break
		}
		select {
		case <-time.After(r.opts.RetryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, &RequestError{URL: url, Attempts: attempt, StatusCode: lastStatus, Err: ctx.Err()}
		}
	}

	return nil, &RequestError{URL: url, Attempts: r.opts.RetryAttempts, StatusCode: lastStatus, Err: lastErr}
}

func (r *Requester) do(ctx context.Context, url string, accept string) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline := time.Now().Add(r.opts.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := r.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, 0, fmt.Errorf("failed to execute request to %s: %w", url, err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return nil, status, fmt.Errorf("HTTP %d: %s", status, fasthttp.StatusMessage(status))
	}

	// Body() is pooled with resp; hand back a copy.
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, status, nil
}
