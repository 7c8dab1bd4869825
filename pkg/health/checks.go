package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Pinger is anything with a connectivity probe, such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks p.
func Ping(p Pinger) Check {
	return p.Ping
}

// Redis checks a redis client with PING.
func Redis(c redis.Cmdable) Check {
	return func(ctx context.Context) error {
		return c.Ping(ctx).Err()
	}
}

// Goroutines fails when more than limit goroutines are running.
func Goroutines(limit int) Check {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds %d", n, limit)
		}
		return nil
	}
}

// GCPause fails when the last GC stop-the-world pause exceeded limit.
func GCPause(limit time.Duration) Check {
	return func(context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		if stats.NumGC == 0 {
			return nil
		}
		last := time.Duration(stats.PauseNs[(stats.NumGC+255)%256])
		if last > limit {
			return errors.Errorf("gc pause %s exceeds %s", last, limit)
		}
		return nil
	}
}
