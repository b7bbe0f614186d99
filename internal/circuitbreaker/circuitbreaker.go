// Package circuitbreaker suspends fetches to upstream image hosts that
// keep failing. Each origin gets its own breaker, so one flaky host
// cannot suspend fetches from the rest of the allowlist.
package circuitbreaker

import (
	"sync"
	"time"

	"imgguard/pkg/errors"
)

// State is the breaker state for one upstream host
type State int

const (
	// StateClosed lets fetches through
	StateClosed State = iota
	// StateOpen fails fetches fast without touching the network
	StateOpen
	// StateHalfOpen admits a few probe fetches to test recovery
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes when a host's circuit opens and how it recovers.
type Config struct {
	// TripAfter opens the circuit after this many consecutive fetch
	// failures.
	TripAfter int
	// FailureRatio opens the circuit when the failure fraction within
	// the current window reaches this value, once MinObservations
	// fetches have been seen. A lone failed fetch never trips on ratio.
	FailureRatio float64
	// MinObservations gates the ratio check.
	MinObservations int
	// CoolOff is how long an open circuit blocks before probing the
	// host again.
	CoolOff time.Duration
	// ProbeRequests is how many trial fetches the half-open state
	// admits; all of them must succeed to close the circuit.
	ProbeRequests int
	// Window bounds how long closed-state counts accumulate before
	// they expire.
	Window time.Duration
	// OnStateChange is called when a host's circuit changes state.
	OnStateChange func(host string, from, to State)
}

// DefaultConfig returns the fetch-stage defaults.
func DefaultConfig() Config {
	return Config{
		TripAfter:       3,
		FailureRatio:    0.5,
		MinObservations: 10,
		CoolOff:         30 * time.Second,
		ProbeRequests:   1,
		Window:          time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TripAfter <= 0 {
		c.TripAfter = d.TripAfter
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = d.FailureRatio
	}
	if c.MinObservations <= 0 {
		c.MinObservations = d.MinObservations
	}
	if c.CoolOff <= 0 {
		c.CoolOff = d.CoolOff
	}
	if c.ProbeRequests <= 0 {
		c.ProbeRequests = d.ProbeRequests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	return c
}

// Breaker tracks fetch outcomes for a single upstream host.
type Breaker struct {
	cfg  Config
	host string
	now  func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	consecutive int
	probes      int
	probeOK     int
	windowStart time.Time
	openedAt    time.Time
}

// New creates a breaker for one upstream host.
func New(host string, cfg Config) *Breaker {
	b := &Breaker{
		cfg:  cfg.withDefaults(),
		host: host,
		now:  time.Now,
	}
	b.windowStart = b.now()
	return b
}

// State returns the current state, applying any due cool-off
// transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Allow reports whether a fetch to this host may proceed. In the
// half-open state it admits up to ProbeRequests fetches.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probes < b.cfg.ProbeRequests {
			b.probes++
			return true
		}
		return false
	default:
		return false
	}
}

// Observe records the outcome of one fetch. Only upstream fetch
// failures count against the host: oversized bodies, wrong content
// types, and decode problems are the origin's answer, not an outage,
// and contexts the caller cancelled say nothing about the host.
func (b *Breaker) Observe(err error) {
	if err != nil && errors.CodeOf(err) == errors.CodeUpstreamFetchFailed {
		b.failure()
		return
	}
	b.success()
}

func (b *Breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindow()
	b.successes++
	b.consecutive = 0

	if b.state == StateHalfOpen {
		b.probeOK++
		if b.probeOK >= b.cfg.ProbeRequests {
			b.transition(StateClosed)
		}
	}
}

func (b *Breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindow()
	b.failures++
	b.consecutive++

	switch b.state {
	case StateClosed:
		if b.shouldTrip() {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// A failed probe puts the host straight back on cool-off.
		b.transition(StateOpen)
	}
}

func (b *Breaker) shouldTrip() bool {
	if b.consecutive >= b.cfg.TripAfter {
		return true
	}
	total := b.failures + b.successes
	if total < b.cfg.MinObservations {
		return false
	}
	return float64(b.failures)/float64(total) >= b.cfg.FailureRatio
}

// rollWindow expires closed-state counts once the window has passed, so
// failures from an old incident do not combine with fresh ones.
func (b *Breaker) rollWindow() {
	if b.state != StateClosed {
		return
	}
	now := b.now()
	if now.Sub(b.windowStart) > b.cfg.Window {
		b.failures = 0
		b.successes = 0
		b.consecutive = 0
		b.windowStart = now
	}
}

// maybeHalfOpen moves an open circuit to half-open after the cool-off.
// Callers hold b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.CoolOff {
		b.transition(StateHalfOpen)
	}
}

// transition changes state and resets the counters the new state
// starts from. Callers hold b.mu.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	switch to {
	case StateClosed:
		b.failures = 0
		b.successes = 0
		b.consecutive = 0
		b.probes = 0
		b.probeOK = 0
		b.windowStart = b.now()
	case StateOpen:
		b.openedAt = b.now()
	case StateHalfOpen:
		b.probes = 0
		b.probeOK = 0
	}

	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(b.host, from, to)
	}
}

// PerHost hands out one breaker per upstream host, created on first
// use.
type PerHost struct {
	cfg   Config
	mu    sync.Mutex
	hosts map[string]*Breaker
}

// NewPerHost creates a per-host breaker registry.
func NewPerHost(cfg Config) *PerHost {
	return &PerHost{
		cfg:   cfg.withDefaults(),
		hosts: make(map[string]*Breaker),
	}
}

// Host returns the breaker for the given upstream host.
func (p *PerHost) Host(host string) *Breaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.hosts[host]
	if !ok {
		b = New(host, p.cfg)
		p.hosts[host] = b
	}
	return b
}
