package credential

import (
	"sync"
	"time"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// FailureKind classifies a reported credential failure.
type FailureKind string

const (
	// FailureRateLimited puts the credential into an exponentially
	// growing cooldown window.
	FailureRateLimited FailureKind = "rate_limited"
	// FailureAuth marks the credential exhausted; it is never handed
	// out again.
	FailureAuth FailureKind = "auth"
	// FailureTransient leaves the credential healthy.
	FailureTransient FailureKind = "transient"
)

const (
	cooldownBase = 2 * time.Second
	cooldownCap  = 60 * time.Second
)

type state int

const (
	stateHealthy state = iota
	stateCoolingDown
	stateExhausted
)

// Credential is one API secret managed by the rotator. The secret is
// read-only; health state belongs to the rotator.
type Credential struct {
	Capability string
	Secret     string

	state      state
	coolUntil  time.Time
	strikes    int // consecutive rate-limit signals
}

// Rotator hands out healthy credentials per capability and tracks
// per-credential health. It is shared process-wide and safe for
// concurrent use by resolver workers.
type Rotator struct {
	mu    sync.Mutex
	pools map[string][]*Credential
	next  map[string]int
	now   func() time.Time
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithClock replaces the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) {
		r.now = now
	}
}

// New creates an empty rotator.
func New(opts ...Option) *Rotator {
	r := &Rotator{
		pools: make(map[string][]*Credential),
		next:  make(map[string]int),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds credentials for a capability, preserving order.
func (r *Rotator) Register(capability string, secrets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range secrets {
		r.pools[capability] = append(r.pools[capability], &Credential{
			Capability: capability,
			Secret:     s,
		})
	}
}

// Size returns the number of credentials registered for a capability.
func (r *Rotator) Size(capability string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools[capability])
}

// Acquire returns the next healthy credential for the capability.
// Cooling credentials whose window has expired become healthy again.
// When every credential is cooling down or exhausted it fails with
// ErrAllCredentialsExhausted.
func (r *Rotator) Acquire(capability string) (*Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool := r.pools[capability]
	if len(pool) == 0 {
		return nil, goerr.Wrap(model.ErrAllCredentialsExhausted, "no credentials registered",
			goerr.V("capability", capability))
	}

	now := r.now()
	start := r.next[capability]
	for i := 0; i < len(pool); i++ {
		cred := pool[(start+i)%len(pool)]

		if cred.state == stateCoolingDown && !now.Before(cred.coolUntil) {
			cred.state = stateHealthy
		}
		if cred.state != stateHealthy {
			continue
		}

		r.next[capability] = (start + i) % len(pool)
		return cred, nil
	}

	return nil, goerr.Wrap(model.ErrAllCredentialsExhausted, "no healthy credential",
		goerr.V("capability", capability),
		goerr.V("pool_size", len(pool)))
}

// ReportFailure records a failure signal for the credential. Rate-limit
// signals start a cooldown that doubles with each consecutive strike
// (base 2s, capped at 60s); auth failures retire the credential.
func (r *Rotator) ReportFailure(cred *Credential, kind FailureKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case FailureRateLimited:
		cred.strikes++
		window := cooldownBase << (cred.strikes - 1)
		if window > cooldownCap || window <= 0 {
			window = cooldownCap
		}
		cred.state = stateCoolingDown
		cred.coolUntil = r.now().Add(window)
		r.advance(cred.Capability)

	case FailureAuth:
		cred.state = stateExhausted
		r.advance(cred.Capability)

	case FailureTransient:
		// healthy, caller retries on its own schedule
	}
}

// ReportSuccess resets the credential's strike count and cooldown.
func (r *Rotator) ReportSuccess(cred *Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred.strikes = 0
	cred.state = stateHealthy
	cred.coolUntil = time.Time{}
}

// advance moves the round-robin cursor past the current credential so
// the next Acquire starts from its successor. Caller must hold mu.
func (r *Rotator) advance(capability string) {
	pool := r.pools[capability]
	if len(pool) > 1 {
		r.next[capability] = (r.next[capability] + 1) % len(pool)
	}
}
