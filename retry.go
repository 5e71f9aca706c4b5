package pdf2md

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxBackoff caps any single retry delay, including Retry-After hints.
const maxBackoff = 30 * time.Second

// callErrorClass drives the retry loop's reaction to a failed VLM call.
// The string matching lives here and nowhere else: provider SDKs surface
// HTTP failures as opaque error strings, and centralising the mapping keeps
// the policy reviewable in one place.
type callErrorClass int

const (
	// errRetryable covers transport errors, 408/429/5xx and provider
	// rate-limit signals.
	errRetryable callErrorClass = iota
	// errTimeout is a per-attempt deadline hit; retryable, but reported
	// distinctly.
	errTimeout
	// errAuth is 401/403; retrying cannot help.
	errAuth
	// errContextWindow is a 400 telling us the request was too large;
	// handled by downgrading the image resolution once.
	errContextWindow
	// errPermanent is any other 4xx.
	errPermanent
)

// classified is the outcome of classifyCallError.
type classified struct {
	class      callErrorClass
	retryAfter time.Duration // provider hint, 0 when absent
}

var (
	reStatusCode = regexp.MustCompile(`\b(4\d\d|5\d\d)\b`)
	reRetryAfter = regexp.MustCompile(`(?i)retry[- ]after:?\s*(\d+)`)
)

// classifyCallError maps a provider error onto a retry decision.
func classifyCallError(err error) classified {
	if err == nil {
		return classified{class: errRetryable}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classified{class: errTimeout}
	}

	msg := strings.ToLower(err.Error())

	var retryAfter time.Duration
	if m := reRetryAfter.FindStringSubmatch(msg); m != nil {
		if secs, convErr := strconv.Atoi(m[1]); convErr == nil {
			retryAfter = time.Duration(secs) * time.Second
			if retryAfter > maxBackoff {
				retryAfter = maxBackoff
			}
		}
	}

	switch {
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return classified{class: errRetryable, retryAfter: retryAfter}

	case strings.Contains(msg, "context length"),
		strings.Contains(msg, "context_length"),
		strings.Contains(msg, "context window"),
		strings.Contains(msg, "maximum context"),
		strings.Contains(msg, "request too large"):
		return classified{class: errContextWindow}

	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "incorrect api key"),
		strings.Contains(msg, "forbidden"):
		return classified{class: errAuth}

	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"):
		return classified{class: errTimeout}
	}

	if m := reStatusCode.FindString(msg); m != "" {
		switch m[0] {
		case '5':
			return classified{class: errRetryable, retryAfter: retryAfter}
		case '4':
			if m == "408" || m == "429" {
				return classified{class: errRetryable, retryAfter: retryAfter}
			}
			return classified{class: errPermanent}
		}
	}

	// No recognisable status: assume a transport-level failure, which is
	// worth retrying.
	return classified{class: errRetryable, retryAfter: retryAfter}
}

// isRateLimit reports whether the error text is a rate-limit signal, used
// to pick the page-error kind once retries exhaust.
func isRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}

// backoffDelay computes the wait before retry attempt k (1-based):
// base × 2^(k-1), capped at 30 s, perturbed by ±10% uniform jitter so
// concurrent workers do not retry in lockstep.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			d = maxBackoff
			break
		}
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := 0.9 + 0.2*rand.Float64()
	d = time.Duration(float64(d) * jitter)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
