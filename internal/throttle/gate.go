package throttle

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrBlocked means the domain's circuit is open; no request may be sent.
var ErrBlocked = errors.New("throttle: circuit open")

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeServerError
	OutcomeTimeout
	OutcomeClientError // bad target, not hostile throttling; never trips the breaker
)

func (o Outcome) failure() bool {
	switch o {
	case OutcomeRateLimited, OutcomeServerError, OutcomeTimeout:
		return true
	}
	return false
}

type Rate struct {
	ReqPerSec float64
	Burst     int
}

type Config struct {
	Default     Rate
	PerDomain   map[string]Rate // overrides for known-touchy hosts
	TripAfter   int             // consecutive failures before the circuit opens
	Cooldown    time.Duration   // initial open duration
	MaxCooldown time.Duration   // backoff cap
}

func (c *Config) fill() {
	if c.Default.ReqPerSec <= 0 {
		c.Default.ReqPerSec = 1.0
	}
	if c.Default.Burst <= 0 {
		c.Default.Burst = 2
	}
	if c.TripAfter <= 0 {
		c.TripAfter = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 10 * time.Minute
	}
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

type domainState struct {
	limiter   *rate.Limiter
	state     breakerState
	failures  int // consecutive
	lastFail  time.Time
	retryAt   time.Time
	cooldown  time.Duration
	trialBusy bool // half-open trial request in flight
}

// Gate combines a per-domain token bucket with a per-domain circuit
// breaker. Callers Acquire before any request on a domain and Report the
// outcome after; breaker state is never persisted across runs since
// upstream blocking is session-scoped.
type Gate struct {
	mu  sync.Mutex
	cfg Config
	m   map[string]*domainState
}

func NewGate(cfg Config) *Gate {
	cfg.fill()
	return &Gate{cfg: cfg, m: make(map[string]*domainState)}
}

func (g *Gate) stateFor(domain string) *domainState {
	if st, ok := g.m[domain]; ok {
		return st
	}
	r := g.cfg.Default
	if o, ok := g.cfg.PerDomain[domain]; ok {
		if o.ReqPerSec > 0 {
			r.ReqPerSec = o.ReqPerSec
		}
		if o.Burst > 0 {
			r.Burst = o.Burst
		}
	}
	st := &domainState{
		limiter:  rate.NewLimiter(rate.Limit(r.ReqPerSec), r.Burst),
		cooldown: g.cfg.Cooldown,
	}
	g.m[domain] = st
	return st
}

// Acquire blocks until a token is available for the domain, or fails fast
// with ErrBlocked while the circuit is open. When the cooldown has elapsed
// it admits exactly one trial request (half-open).
func (g *Gate) Acquire(ctx context.Context, domain string) error {
	g.mu.Lock()
	st := g.stateFor(domain)

	switch st.state {
	case stateOpen:
		if time.Now().Before(st.retryAt) {
			g.mu.Unlock()
			return ErrBlocked
		}
		st.state = stateHalfOpen
		st.trialBusy = true
	case stateHalfOpen:
		if st.trialBusy {
			g.mu.Unlock()
			return ErrBlocked
		}
		st.trialBusy = true
	}
	lim := st.limiter
	g.mu.Unlock()

	// Token wait happens outside the lock so one slow domain never stalls
	// acquires on the others.
	if err := lim.Wait(ctx); err != nil {
		g.mu.Lock()
		if st.state == stateHalfOpen {
			st.trialBusy = false
		}
		g.mu.Unlock()
		return err
	}
	return nil
}

// AcquireURL is Acquire keyed by the URL's host.
func (g *Gate) AcquireURL(ctx context.Context, raw string) error {
	return g.Acquire(ctx, DomainOf(raw))
}

// Report feeds a request outcome back into the breaker for the domain.
func (g *Gate) Report(domain string, outcome Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.stateFor(domain)
	wasTrial := st.state == stateHalfOpen
	st.trialBusy = false

	switch {
	case outcome == OutcomeSuccess:
		if st.state == stateOpen {
			// stale report from a request dispatched before the trip;
			// only the half-open trial may close the circuit
			break
		}
		st.failures = 0
		st.state = stateClosed
		st.cooldown = g.cfg.Cooldown
	case outcome.failure():
		st.failures++
		st.lastFail = time.Now()
		if wasTrial {
			// trial failed: back off harder
			st.cooldown *= 2
			if st.cooldown > g.cfg.MaxCooldown {
				st.cooldown = g.cfg.MaxCooldown
			}
			st.state = stateOpen
			st.retryAt = time.Now().Add(st.cooldown)
		} else if st.failures >= g.cfg.TripAfter {
			st.state = stateOpen
			st.retryAt = time.Now().Add(st.cooldown)
		}
	default:
		// client_error: a bad target, leave the breaker alone
	}
}

// ReportURL is Report keyed by the URL's host.
func (g *Gate) ReportURL(raw string, outcome Outcome) {
	g.Report(DomainOf(raw), outcome)
}

// DomainOf extracts the lower-cased host from a URL, "_" if unparseable.
func DomainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "_"
	}
	return strings.ToLower(u.Hostname())
}
