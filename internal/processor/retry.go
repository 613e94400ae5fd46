package processor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RetryBaseDelay is the first backoff interval. Tests override it to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

// retryable reports whether a response status is worth another attempt.
func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// doWithRetry sends the request built by newReq, retrying transport errors,
// 429 and 5xx responses with exponential backoff. After maxRetries extra
// attempts the last response (or error) is returned as-is.
func doWithRetry(ctx context.Context, client *http.Client, newReq func(context.Context) (*http.Request, error), maxRetries int) (*http.Response, error) {
	backoff := RetryBaseDelay
	for attempt := 0; ; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err == nil && !retryable(resp.StatusCode) {
			return resp, nil
		}
		if attempt >= maxRetries {
			return resp, err
		}

		if err != nil {
			slog.Warn("Processor request failed, will retry.", "attempt", attempt+1, "maxRetries", maxRetries, "backoff", backoff.String(), "error", err)
		} else {
			slog.Warn("Processor returned a retryable status, will retry.", "attempt", attempt+1, "maxRetries", maxRetries, "backoff", backoff.String(), "status", resp.StatusCode)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
