package distlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/courtside/mailer/internal/pkg/logger"
)

var log = logger.Named("distlock")

// Extender is implemented by locks that expire unless refreshed.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// KeepAlive refreshes lock every ttl/3 until stop is called. The returned
// context is canceled when the lock is lost so the holder stops work another
// worker may now own. Locks that do not expire are returned untouched.
func KeepAlive(ctx context.Context, lock DistLock, ttl time.Duration) (context.Context, func()) {
	ext, ok := lock.(Extender)
	if !ok || ttl <= 0 {
		return ctx, func() {}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := ext.Extend(ctx, ttl)
				switch {
				case err == nil:
				case errors.Is(err, ErrNotOwned):
					log.Error("lock lost while held", "err", err)
					cancel(err)
					return
				case ctx.Err() != nil:
					return
				default:
					// Transient: the next tick retries before the TTL runs out.
					log.Warn("lock extend failed", "err", err)
				}
			}
		}
	}()

	return ctx, func() {
		cancel(nil)
		wg.Wait()
	}
}
