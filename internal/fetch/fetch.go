package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"jobharvest-engine/internal/throttle"
)

type Kind int

const (
	KindThrottled Kind = iota // breaker open or bucket unavailable; no I/O happened
	KindTimeout
	KindRateLimited // HTTP 429
	KindServerError // HTTP 5xx or transport failure
	KindClientError // HTTP 4xx other than 429; not retried
)

func (k Kind) String() string {
	switch k {
	case KindThrottled:
		return "throttled"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindClientError:
		return "client_error"
	}
	return "unknown"
}

// Retryable reports whether the orchestrator's bounded-retry policy may
// try this failure again. Throttled is skipped for the cycle and client
// errors are bad targets, so neither retries.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindServerError:
		return true
	}
	return false
}

type Error struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

type Content struct {
	URL       string
	FinalURL  string // after redirects
	Status    int
	HTML      string
	FetchedAt time.Time
}

const maxBodyBytes = 2 << 20

// Client performs governed HTTP fetches. Every request goes through the
// throttle gate first and reports its outcome back to the breaker; the
// client itself never retries.
type Client struct {
	hc        *http.Client
	gate      *throttle.Gate
	userAgent string
}

func New(gate *throttle.Gate, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		hc:        &http.Client{Timeout: timeout},
		gate:      gate,
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	}
}

// Fetch returns page content or a typed *Error. A KindThrottled error
// means no network call was attempted.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Content, error) {
	domain := throttle.DomainOf(rawURL)

	if err := c.gate.Acquire(ctx, domain); err != nil {
		if errors.Is(err, throttle.ErrBlocked) {
			return nil, &Error{Kind: KindThrottled, URL: rawURL, Err: err}
		}
		return nil, err // context cancelled while waiting for a token
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		c.gate.Report(domain, OutcomeForKind(KindClientError))
		return nil, &Error{Kind: KindClientError, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.hc.Do(req)
	if err != nil {
		kind := KindServerError
		if isTimeout(err) {
			kind = KindTimeout
		}
		c.gate.Report(domain, OutcomeForKind(kind))
		return nil, &Error{Kind: kind, URL: rawURL, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		c.gate.Report(domain, throttle.OutcomeRateLimited)
		return nil, &Error{Kind: KindRateLimited, URL: rawURL, Status: res.StatusCode}
	case res.StatusCode >= 500:
		c.gate.Report(domain, throttle.OutcomeServerError)
		return nil, &Error{Kind: KindServerError, URL: rawURL, Status: res.StatusCode}
	case res.StatusCode >= 400:
		c.gate.Report(domain, throttle.OutcomeClientError)
		return nil, &Error{Kind: KindClientError, URL: rawURL, Status: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		kind := KindServerError
		if isTimeout(err) {
			kind = KindTimeout
		}
		c.gate.Report(domain, OutcomeForKind(kind))
		return nil, &Error{Kind: kind, URL: rawURL, Err: err}
	}

	c.gate.Report(domain, throttle.OutcomeSuccess)

	finalURL := rawURL
	if res.Request != nil && res.Request.URL != nil {
		finalURL = res.Request.URL.String()
	}
	return &Content{
		URL:       rawURL,
		FinalURL:  finalURL,
		Status:    res.StatusCode,
		HTML:      string(body),
		FetchedAt: time.Now().UTC(),
	}, nil
}

// OutcomeForKind maps a fetch failure kind onto the breaker outcome.
func OutcomeForKind(k Kind) throttle.Outcome {
	switch k {
	case KindTimeout:
		return throttle.OutcomeTimeout
	case KindRateLimited:
		return throttle.OutcomeRateLimited
	case KindServerError:
		return throttle.OutcomeServerError
	default:
		return throttle.OutcomeClientError
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var to interface{ Timeout() bool }
	if errors.As(err, &to) && to.Timeout() {
		return true
	}
	// http.Client wraps its own deadline error without a sentinel
	return strings.Contains(err.Error(), "Client.Timeout")
}
