package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct {
	mu  sync.Mutex
	err error
}

func (p *pinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *pinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func probe(h *Checker, p Probe) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.Handler(p)(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func runAll(h *Checker, times int) {
	for range times {
		for _, c := range h.checks {
			c.run(context.Background())
		}
	}
}

func TestLiveness(t *testing.T) {
	db := &pinger{}
	h := New()
	h.Add(Liveness, "db", time.Second, Ping(db))

	w := probe(h, Liveness)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	db.set(errors.New("connection refused"))
	runAll(h, 2)
	assert.Equal(t, http.StatusOK, probe(h, Liveness).Code, "below failure threshold")

	runAll(h, 1)
	w = probe(h, Liveness)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"db":"connection refused"}}`, w.Body.String())

	db.set(nil)
	runAll(h, 1)
	assert.Equal(t, http.StatusOK, probe(h, Liveness).Code)
}

func TestThresholds(t *testing.T) {
	db := &pinger{err: errors.New("down")}
	h := New()
	h.Add(Liveness, "db", time.Second, Ping(db), Thresholds(1, 2))

	runAll(h, 1)
	require.Equal(t, http.StatusServiceUnavailable, probe(h, Liveness).Code)

	db.set(nil)
	runAll(h, 1)
	assert.Equal(t, http.StatusServiceUnavailable, probe(h, Liveness).Code)
	runAll(h, 1)
	assert.Equal(t, http.StatusOK, probe(h, Liveness).Code)
}

func TestReadiness(t *testing.T) {
	cache := &pinger{}
	h := New()
	h.Add(Readiness, "redis", time.Second, Ping(cache), Thresholds(1, 1))
	h.Add(Liveness, "goroutines", time.Second, Goroutines(1_000_000))

	w := probe(h, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, w.Body.String())
	assert.False(t, h.Ready())

	h.SetReady(true)
	assert.Equal(t, http.StatusOK, probe(h, Readiness).Code)
	assert.True(t, h.Ready())

	cache.set(errors.New("no route"))
	runAll(h, 1)
	assert.False(t, h.Ready())
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"redis":"no route"}}`, probe(h, Readiness).Body.String())
	assert.Equal(t, http.StatusOK, probe(h, Liveness).Code, "readiness failures do not affect liveness")

	cache.set(nil)
	runAll(h, 1)
	h.SetReady(false)
	assert.False(t, h.Ready())
}

func TestNoChecks(t *testing.T) {
	h := New()
	assert.Equal(t, http.StatusOK, probe(h, Liveness).Code)
	h.SetReady(true)
	assert.Equal(t, http.StatusOK, probe(h, Readiness).Code)
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.Add(Liveness, "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Thresholds(1, 1))

	runAll(h, 1)
	w := probe(h, Liveness)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "deadline exceeded")
}

func TestStartStop(t *testing.T) {
	db := &pinger{err: errors.New("down")}
	h := New()
	h.Add(Readiness, "db", time.Second, Ping(db), Thresholds(1, 1))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	defer h.Stop()
	require.Eventually(t, func() bool { return !h.Ready() }, time.Second, 5*time.Millisecond)

	db.set(nil)
	require.Eventually(t, h.Ready, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentProbes(t *testing.T) {
	h := New()
	h.Add(Liveness, "gc", time.Second, GCPause(time.Minute))
	h.Add(Readiness, "db", time.Second, Ping(&pinger{}))
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				probe(h, Liveness)
				probe(h, Readiness)
				h.Ready()
			}
		}()
	}
	wg.Wait()
}

func TestGoroutines(t *testing.T) {
	assert.NoError(t, Goroutines(1_000_000)(context.Background()))
	assert.Error(t, Goroutines(0)(context.Background()))
}
