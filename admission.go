package simphttpd

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// admission bounds how many connections are served at once and, optionally, how fast they are accepted.
type admission struct {
	permits *semaphore.Weighted
	pace    *rate.Limiter
}

func newAdmission(maxClients int, acceptRate float64) *admission {
	a := &admission{permits: semaphore.NewWeighted(int64(maxClients))}
	if acceptRate > 0 {
		a.pace = rate.NewLimiter(rate.Limit(acceptRate), max(1, int(acceptRate)))
	}
	return a
}

// acquire blocks until a permit is free. The caller must release it exactly once.
func (a *admission) acquire(ctx context.Context) error {
	if a.pace != nil {
		if err := a.pace.Wait(ctx); err != nil {
			return err
		}
	}
	return a.permits.Acquire(ctx, 1)
}

func (a *admission) release() {
	a.permits.Release(1)
}
