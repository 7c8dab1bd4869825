// Package health serves liveness and readiness probes backed by checks that
// run in the background.
//
// A check flips to unhealthy after a run of consecutive failures and back to
// healthy after a run of consecutive successes, so a single slow ping does not
// take the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Check returns nil while the dependency it watches is usable.
type Check func(ctx context.Context) error

// Probe selects the endpoint a check contributes to.
type Probe int

const (
	// Liveness checks fail when the process should be restarted.
	Liveness Probe = iota
	// Readiness checks fail when the instance should not receive traffic.
	Readiness
)

// Option tunes a single check.
type Option func(*check)

// Thresholds sets how many consecutive failures mark a check unhealthy and
// how many consecutive successes mark it healthy again. Defaults are 3 and 1.
func Thresholds(failures, successes int) Option {
	return func(c *check) {
		c.failAfter = max(failures, 1)
		c.passAfter = max(successes, 1)
	}
}

type result struct {
	healthy bool
	err     error
}

type check struct {
	name      string
	probe     Probe
	timeout   time.Duration
	fn        Check
	failAfter int
	passAfter int

	// streak counters are owned by the goroutine calling run.
	failures int
	passes   int

	last atomic.Pointer[result]
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	healthy := c.last.Load().healthy
	if err != nil {
		c.passes = 0
		c.failures++
		if c.failures >= c.failAfter {
			healthy = false
		}
	} else {
		c.failures = 0
		c.passes++
		if c.passes >= c.passAfter {
			healthy = true
		}
	}
	c.last.Store(&result{healthy: healthy, err: err})
}

// Checker owns the registered checks and the manual readiness flag.
type Checker struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New returns a Checker that is not ready until SetReady(true).
func New() *Checker {
	return &Checker{}
}

// Add registers a check. Checks start healthy.
func (h *Checker) Add(p Probe, name string, timeout time.Duration, fn Check, opts ...Option) {
	c := &check{
		name:      name,
		probe:     p,
		timeout:   timeout,
		fn:        fn,
		failAfter: 3,
		passAfter: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.last.Store(&result{healthy: true})

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// Start runs every check now and then every interval until Stop or ctx is done.
func (h *Checker) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts the background checks. It is safe to call more than once.
func (h *Checker) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness flag, typically false during shutdown.
func (h *Checker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports whether the instance is marked ready and all readiness checks pass.
func (h *Checker) Ready() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

type failure struct {
	name string
	msg  string
}

func (h *Checker) failures(p Probe) []failure {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []failure
	for _, c := range h.checks {
		if c.probe != p {
			continue
		}
		r := c.last.Load()
		if r.healthy {
			continue
		}
		msg := "check is unhealthy"
		if r.err != nil {
			msg = r.err.Error()
		}
		out = append(out, failure{name: c.name, msg: msg})
	}
	return out
}

// Handler serves the probe: 200 {"status":"ok"} or 503 with the failing checks.
func (h *Checker) Handler(p Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		failed := h.failures(p)
		if p == Readiness && !h.ready.Load() {
			failed = append(failed, failure{name: "_readiness", msg: "service is not ready"})
		}
		writeStatus(w, failed)
	}
}

func writeStatus(w http.ResponseWriter, failed []failure) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	status := http.StatusOK
	if len(failed) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		for _, f := range failed {
			e.FieldStart(f.name)
			e.Str(f.msg)
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
