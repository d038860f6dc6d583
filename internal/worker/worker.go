// Package worker provides async learning maintenance for the Pro tier.
// It listens for recorded overrides and keeps the mined pattern cache
// and per-case insights fresh without blocking the recording request.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/underwrite-labs/harrier/internal/domain"
	"github.com/underwrite-labs/harrier/internal/learning"
)

// patternCacheTTL bounds staleness when no further overrides arrive.
const patternCacheTTL = time.Hour

// Worker re-mines override patterns and invalidates insights whenever
// an override lifecycle event is published.
type Worker struct {
	bus   domain.EventBus
	repo  domain.Repository
	cache domain.Cache

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing override events for the given tenants.
func (w *Worker) Start(cfg Config) error {
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startTenantWorker subscribes one tenant to the override lifecycle topics.
func (w *Worker) startTenantWorker(tenantID string) error {
	for _, topic := range []string{
		domain.TopicOverrideRecorded,
		domain.TopicOverrideValidated,
		domain.TopicOverrideFlagged,
	} {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
			return w.processOverrideEvent(ctx, tenantID, msg)
		})
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
	)

	return nil
}

// processOverrideEvent refreshes the learning artifacts affected by an
// override event: cached insights for the tenant go stale immediately,
// and the pattern groups for the override's type are re-mined.
func (w *Worker) processOverrideEvent(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var event domain.AuditEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse override event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("processing override event",
		"override_id", event.OverrideID,
		"tenant_id", tenantID,
		"topic", msg.Topic,
	)

	// 1. Every override changes the similarity-derived signal
	if err := w.cache.InvalidateInsights(ctx, tenantID); err != nil {
		slog.Warn("insights invalidation failed",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	// 2. Re-mine patterns for the affected override type
	overrides, err := w.repo.ListOverridesByType(ctx, tenantID, event.OverrideType)
	if err != nil {
		slog.Error("failed to load overrides for pattern mining",
			"tenant_id", tenantID,
			"override_type", event.OverrideType,
			"error", err,
		)
		return err
	}

	patterns := learning.MinePatterns(overrides, event.OverrideType)

	data, err := json.Marshal(patterns)
	if err != nil {
		return err
	}
	if err := w.cache.Set(ctx, tenantID, learning.PatternCacheKey(event.OverrideType), data, patternCacheTTL); err != nil {
		slog.Warn("pattern cache write failed",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	slog.Info("override event processed",
		"override_id", event.OverrideID,
		"override_type", event.OverrideType,
		"patterns", len(patterns),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() {
	w.cancel()

	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
}
