package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock abstracts waiting so back-off schedules can be tested without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RetryPolicy bounds how often and how slowly a request is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Clock       Clock
}

var DefaultRetry = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

// Delay returns the wait before the attempt that follows attempt n (1-based):
// BaseDelay doubled per failed attempt, capped at MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay || d <= 0 {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

func (p RetryPolicy) clock() Clock {
	if p.Clock == nil {
		return realClock{}
	}
	return p.Clock
}

// RetryableStatus reports whether a response status is worth retrying:
// rate limiting and server-side failures.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// ExhaustedError is returned when every attempt failed with a retryable outcome.
type ExhaustedError struct {
	Attempts   int
	StatusCode int // last status, 0 when the last failure was a transport error
	Err        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed, last error: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do executes an HTTP request, retrying transport errors, 429 and 5xx
// responses according to the policy. Any other response is returned to the
// caller as-is. The buildReq function is called on each attempt to produce a
// fresh request.
func Do(ctx context.Context, client *http.Client, policy RetryPolicy, log logrus.FieldLogger, buildReq func() (*http.Request, error)) (*http.Response, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetry.MaxAttempts
	}

	var lastErr error
	lastStatus := 0

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err == nil && !RetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		delay := policy.Delay(attempt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			lastStatus = 0
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			lastStatus = resp.StatusCode
			if ra, ok := retryAfter(resp); ok && ra > delay {
				delay = min(ra, policy.MaxDelay)
			}
		}

		if attempt == policy.MaxAttempts {
			break
		}

		log.WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": policy.MaxAttempts,
			"retry_in":     delay.String(),
			"url":          req.URL.Redacted(),
		}).Warnf("request failed, retrying: %v", lastErr)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-policy.clock().After(delay):
		}
	}

	return nil, &ExhaustedError{Attempts: policy.MaxAttempts, StatusCode: lastStatus, Err: lastErr}
}

// IsExhausted reports whether err came from running out of attempts.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
