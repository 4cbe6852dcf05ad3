// Package services provides application-level services that orchestrate
// business logic and coordinate between repositories and domain entities.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/events"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/repositories"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/caching/flight"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/generation"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/security"
	"github.com/coder/quartz"
)

// CoordinatorConfig tunes the cache policy.
type CoordinatorConfig struct {
	FreshnessThresholdDays int
	GenerationTimeout      time.Duration
}

// ResolveRequest asks for the artifact under Key on behalf of UserID.
type ResolveRequest struct {
	UserID          string
	Key             research.CacheKey
	ForceRegenerate bool
}

// Decision is the outcome of the cache policy for one request.
type Decision struct {
	Generate   bool
	Provenance research.Provenance
	Reason     research.Reason
}

// Decide applies the cache policy. firstView is only consulted for stale
// entries.
func Decide(entry *research.CacheEntry, firstView, force bool, now time.Time, thresholdDays int) Decision {
	if entry == nil {
		return Decision{Generate: true, Reason: research.ReasonNoCachedContent}
	}
	stale := entry.AgeDays(now) > thresholdDays
	switch {
	case !stale && !force:
		return Decision{Provenance: research.ProvenanceFresh, Reason: research.ReasonFresh}
	case stale && firstView:
		return Decision{Generate: true, Reason: research.ReasonStaleFirstView}
	case stale && !force:
		return Decision{Provenance: research.ProvenanceStale, Reason: research.ReasonStaleReturningView}
	}
	return Decision{Generate: true, Reason: research.ReasonForcedRegenerate}
}

// Coordinator decides, for each request, whether to serve cached content or
// generate, and enforces one generation per key with quota charged only to
// the caller whose request actually produced new content.
type Coordinator struct {
	content   repositories.ContentStore
	access    repositories.AccessLedger
	tiers     repositories.TierSource
	quota     *QuotaLedger
	guard     *flight.Guard
	generator generation.Generator
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	perf      *performance.Tracker
	clock     quartz.Clock
	config    CoordinatorConfig
	logger    *logging.ChanneledLogger
}

// NewCoordinator wires a coordinator. publisher and perf may be nil.
func NewCoordinator(
	content repositories.ContentStore,
	access repositories.AccessLedger,
	tiers repositories.TierSource,
	quota *QuotaLedger,
	guard *flight.Guard,
	generator generation.Generator,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	perf *performance.Tracker,
	clock quartz.Clock,
	config CoordinatorConfig,
	logger *logging.ChanneledLogger,
) *Coordinator {
	return &Coordinator{
		content:   content,
		access:    access,
		tiers:     tiers,
		quota:     quota,
		guard:     guard,
		generator: generator,
		publisher: publisher,
		metrics:   m,
		perf:      perf,
		clock:     clock,
		config:    config,
		logger:    logger,
	}
}

// Resolve returns the artifact for req.Key, generating it when the policy
// calls for it.
func (c *Coordinator) Resolve(ctx context.Context, req ResolveRequest) (result *research.Result, err error) {
	start := time.Now()
	if c.perf != nil {
		marker := c.perf.StartOperation("resolve:"+string(req.Key.Kind), req.UserID)
		defer func() {
			marker.SetError(err)
			if result != nil {
				marker.AddMetadata("provenance", string(result.Provenance))
				marker.AddMetadata("reason", string(result.Reason))
			}
			marker.Complete()
		}()
	}

	if err := req.Key.Validate(); err != nil {
		return nil, err
	}
	tier, err := c.tiers.GetTier(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tier: %w", err)
	}
	entry, err := c.content.Get(ctx, req.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached content: %w", err)
	}

	now := c.clock.Now()
	firstView := false
	if entry != nil && entry.AgeDays(now) > c.config.FreshnessThresholdDays {
		firstView, err = c.access.IsFirstView(ctx, req.UserID, req.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to check access history: %w", err)
		}
	}

	decision := Decide(entry, firstView, req.ForceRegenerate, now, c.config.FreshnessThresholdDays)
	if !decision.Generate {
		result = research.NewResult(entry, decision.Provenance, decision.Reason, now)
		c.recordView(ctx, req.UserID, req.Key)
	} else {
		result, err = c.generate(ctx, req, tier, entry, decision.Reason)
		if err != nil {
			return nil, err
		}
	}

	c.metrics.RecordResolution(string(req.Key.Kind), string(result.Provenance), string(result.Reason))
	c.logger.Cache().Info("Resolved artifact", "key", req.Key.String(), "userId", req.UserID,
		"provenance", result.Provenance, "reason", result.Reason, "joined", result.Joined, "duration", time.Since(start))
	return result, nil
}

func (c *Coordinator) generate(ctx context.Context, req ResolveRequest, tier *research.Tier, entry *research.CacheEntry, reason research.Reason) (*research.Result, error) {
	auth, err := c.quota.TryConsume(ctx, req.UserID, tier)
	if err != nil {
		var exceeded *research.QuotaExceededError
		if errors.As(err, &exceeded) {
			if entry != nil {
				exceeded.Fallback = research.NewResult(entry, c.provenanceFor(entry), reason, c.clock.Now())
			}
			c.publish(events.QuotaExceeded, req, string(reason), exceeded.Error())
			return nil, exceeded
		}
		return nil, err
	}

	var observed int64
	if entry != nil {
		observed = entry.GenerationSequence
	}

	requestID := security.GenerateULID()
	c.publish(events.GenerationStarted, req, string(reason), "")
	outcome, err := c.guard.Do(ctx, req.Key, requestID, c.config.GenerationTimeout, func(ctx context.Context) (*flight.Flight, error) {
		return c.runGeneration(ctx, req.Key, observed)
	})
	if err != nil {
		refundReason := "generation_failed"
		if ctx.Err() != nil {
			refundReason = "caller_cancelled"
		}
		c.refund(ctx, req.Key, auth, refundReason)
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.logger.Generation().Info("Caller left before generation finished", "key", req.Key.String(), "userId", req.UserID)
			return nil, ctxErr
		}
		err = asGenerationFailure(err)
		c.publish(events.GenerationFailed, req, string(reason), err.Error())
		return nil, err
	}

	now := c.clock.Now()
	c.recordView(ctx, req.UserID, req.Key)

	if outcome.Led && outcome.Generated {
		c.quota.Commit(ctx, auth, tier)
		c.publish(events.GenerationCompleted, req, string(reason), "")
		return research.NewResult(outcome.Entry, research.ProvenanceRegenerated, reason, now), nil
	}

	c.refund(ctx, req.Key, auth, "joined")
	c.metrics.RecordJoin()
	c.publish(events.GenerationJoined, req, string(reason), "")
	result := research.NewResult(outcome.Entry, research.ProvenanceFresh, reason, now)
	result.Joined = true
	return result, nil
}

// runGeneration is the leader's work. It skips the generator when another
// caller already refreshed the entry since observed was read.
func (c *Coordinator) runGeneration(ctx context.Context, key research.CacheKey, observed int64) (*flight.Flight, error) {
	current, err := c.content.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read cached content: %w", err)
	}
	if current != nil && current.GenerationSequence > observed {
		c.metrics.RecordGeneration(c.generator.Name(), metrics.OutcomeSkipped, 0)
		c.logger.Generation().Debug("Entry already refreshed, skipping generation", "key", key.String(),
			"observed", observed, "current", current.GenerationSequence)
		return &flight.Flight{Entry: current}, nil
	}

	var marker *performance.Marker
	if c.perf != nil {
		marker = c.perf.StartOperation("generation:"+c.generator.Name(), "system")
		defer marker.Complete()
	}

	start := time.Now()
	generated, err := c.generator.Generate(ctx, research.GenerationRequest{Key: key})
	duration := time.Since(start)
	if err != nil {
		failure := asGenerationFailure(err)
		kind, ok := research.FailureKindOf(failure)
		if !ok {
			kind = research.FailureUpstreamError
			failure = research.NewGenerationFailed(kind, err)
		}
		c.metrics.RecordGeneration(c.generator.Name(), string(kind), duration)
		if marker != nil {
			marker.SetError(failure)
		}
		c.logger.Generation().Error("Generation failed", "key", key.String(), "provider", c.generator.Name(),
			"kind", kind, "error", err, "duration", duration)
		return nil, failure
	}

	stored, err := c.content.Put(ctx, key, generated.Content, generated.Metadata, c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to store generated content: %w", err)
	}
	c.metrics.RecordGeneration(c.generator.Name(), metrics.OutcomeGenerated, duration)
	c.logger.Generation().Info("Generated artifact", "key", key.String(), "provider", c.generator.Name(),
		"sequence", stored.GenerationSequence, "tokens", generated.Metadata.TotalTokens(), "duration", duration)
	return &flight.Flight{Entry: stored, Generated: true}, nil
}

// Lookup returns the cached artifact without generating. A key with no entry
// yields research.ErrNotFound.
func (c *Coordinator) Lookup(ctx context.Context, userID string, key research.CacheKey) (*research.Result, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if _, err := c.tiers.GetTier(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to resolve tier: %w", err)
	}
	entry, err := c.content.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached content: %w", err)
	}
	if entry == nil {
		return nil, research.ErrNotFound
	}

	reason := research.ReasonFresh
	provenance := c.provenanceFor(entry)
	if provenance == research.ProvenanceStale {
		reason = research.ReasonStaleReturningView
	}
	c.recordView(ctx, userID, key)
	return research.NewResult(entry, provenance, reason, c.clock.Now()), nil
}

// Purge drops the cached entry for key.
func (c *Coordinator) Purge(ctx context.Context, key research.CacheKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	purged, err := c.content.Purge(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to purge cached content: %w", err)
	}
	if purged {
		c.logger.Cache().Info("Purged cached artifact", "key", key.String())
		c.publish(events.CachePurged, ResolveRequest{Key: key}, "", "")
	}
	return purged, nil
}

func (c *Coordinator) provenanceFor(entry *research.CacheEntry) research.Provenance {
	if entry.AgeDays(c.clock.Now()) > c.config.FreshnessThresholdDays {
		return research.ProvenanceStale
	}
	return research.ProvenanceFresh
}

// recordView never fails the request; a lost view only means the user may
// be treated as a first-time viewer again.
func (c *Coordinator) recordView(ctx context.Context, userID string, key research.CacheKey) {
	if err := c.access.RecordView(context.WithoutCancel(ctx), userID, key, c.clock.Now()); err != nil {
		c.logger.Cache().Error("Failed to record view", "key", key.String(), "userId", userID, "error", err)
	}
}

func (c *Coordinator) refund(ctx context.Context, key research.CacheKey, auth *research.Authorization, why string) {
	if err := c.quota.Release(context.WithoutCancel(ctx), auth); err != nil {
		c.metrics.RecordRefundFailure()
		c.logger.Quota().Error("Refund lost, user was charged without a generation", "key", key.String(),
			"userId", auth.UserID, "authorization", auth.ID, "reason", why, "error", err)
	}
}

func (c *Coordinator) publish(eventType events.Type, req ResolveRequest, reason, detail string) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(events.Event{
		ID:        security.GenerateULID(),
		Type:      eventType,
		Key:       req.Key.String(),
		UserID:    req.UserID,
		Reason:    reason,
		Detail:    detail,
		Timestamp: c.clock.Now(),
	})
}

// asGenerationFailure keeps store errors as they are and maps timeouts onto
// the Timeout failure kind.
func asGenerationFailure(err error) error {
	var failed *research.GenerationFailedError
	if errors.As(err, &failed) {
		return failed
	}
	if errors.Is(err, flight.ErrWaitTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return research.NewGenerationFailed(research.FailureTimeout, err)
	}
	return err
}
