// Package flight ensures at most one generation per cache key runs at a time.
// Callers in the same process share one in-flight call; a lease row in the
// database extends the guarantee across instances.
package flight

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/repositories"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/security"
	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
	"golang.org/x/sync/singleflight"
)

// ErrWaitTimeout is returned to a caller whose wait for the in-flight work
// ran out. The work itself keeps running.
var ErrWaitTimeout = errors.New("timed out waiting for in-flight generation")

var errLeaseHeld = errors.New("lease held by another instance")

// Work is run by the leader while it holds the lease for the key.
type Work func(ctx context.Context) (*Flight, error)

// Flight is what the leader's work produced.
type Flight struct {
	Entry *research.CacheEntry
	// Generated is false when the work found the entry already refreshed
	// and skipped the generator.
	Generated bool

	leader string
}

// Outcome is one caller's view of a finished flight.
type Outcome struct {
	Entry     *research.CacheEntry
	Generated bool
	// Led is true for the single caller whose request started the work.
	Led bool
}

// Config tunes lease handling.
type Config struct {
	LeaseTTL        time.Duration
	PollInterval    time.Duration
	PollMaxInterval time.Duration
}

// Guard serializes generation per key.
type Guard struct {
	group    singleflight.Group
	leases   repositories.LeaseStore
	clock    quartz.Clock
	config   Config
	owner    string
	logger   *logging.ChanneledLogger
	inFlight atomic.Int64
}

// NewGuard creates a guard whose leases are recorded under a fresh owner id.
func NewGuard(leases repositories.LeaseStore, clock quartz.Clock, config Config, logger *logging.ChanneledLogger) *Guard {
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	if config.PollMaxInterval < config.PollInterval {
		config.PollMaxInterval = config.PollInterval
	}
	return &Guard{
		leases: leases,
		clock:  clock,
		config: config,
		owner:  security.GenerateULID(),
		logger: logger,
	}
}

// Owner returns the id this instance writes into lease rows.
func (g *Guard) Owner() string {
	return g.owner
}

// InFlight returns the number of flights currently running in this process.
func (g *Guard) InFlight() int64 {
	return g.inFlight.Load()
}

// Do runs work for key unless a flight for key is already running, in which
// case the caller joins it. Work runs detached from ctx and is bounded by
// timeout; the caller's wait is bounded by timeout and by ctx.
func (g *Guard) Do(ctx context.Context, key research.CacheKey, requestID string, timeout time.Duration, work Work) (*Outcome, error) {
	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key.String(), func() (any, error) {
		g.inFlight.Add(1)
		defer g.inFlight.Add(-1)

		flightCtx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()

		flight, err := g.lead(flightCtx, key, work)
		if flight == nil {
			flight = &Flight{}
		}
		flight.leader = requestID
		return flight, err
	})

	timer := g.clock.NewTimer(timeout, "flight", "wait")
	defer timer.Stop()

	select {
	case result := <-ch:
		flight := result.Val.(*Flight)
		outcome := &Outcome{
			Entry:     flight.Entry,
			Generated: flight.Generated,
			Led:       flight.leader == requestID,
		}
		return outcome, result.Err
	case <-timer.C:
		g.logger.Generation().Warn("Gave up waiting for in-flight generation", "key", key.String(), "timeout", timeout)
		return nil, ErrWaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lead holds the lease for key while work runs.
func (g *Guard) lead(ctx context.Context, key research.CacheKey, work Work) (flight *Flight, err error) {
	defer func() {
		if r := recover(); r != nil {
			flight, err = nil, fmt.Errorf("generation panicked: %v", r)
		}
	}()

	if err := g.acquire(ctx, key.String()); err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := g.leases.Release(context.WithoutCancel(ctx), key.String(), g.owner); releaseErr != nil {
			g.logger.Generation().Error("Failed to release generation lease", "key", key.String(), "error", releaseErr)
		}
	}()

	return work(ctx)
}

// acquire polls the lease store until this instance owns the lease or ctx
// ends.
func (g *Guard) acquire(ctx context.Context, key string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.config.PollInterval
	policy.MaxInterval = g.config.PollMaxInterval
	policy.MaxElapsedTime = 0

	operation := func() error {
		lease, acquired, err := g.leases.TryAcquire(ctx, key, g.owner, g.clock.Now(), g.config.LeaseTTL)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !acquired {
			return errLeaseHeld
		}
		g.logger.Generation().Debug("Generation lease acquired", "key", key, "generation", lease.Generation)
		return nil
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Generation().Debug("Waiting for generation lease", "key", key, "reason", err.Error(), "retryIn", wait)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("waiting for generation lease: %w", ctxErr)
		}
		return fmt.Errorf("failed to acquire generation lease: %w", err)
	}
	return nil
}
