package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/underwrite-labs/harrier/internal/bus"
	"github.com/underwrite-labs/harrier/internal/cache"
	"github.com/underwrite-labs/harrier/internal/domain"
	"github.com/underwrite-labs/harrier/internal/learning"
)

// fakeRepo serves a canned override list for pattern mining.
type fakeRepo struct {
	domain.Repository
	overrides []*domain.Override
}

func (f *fakeRepo) ListOverridesByType(ctx context.Context, tenantID string, overrideType string) ([]*domain.Override, error) {
	var out []*domain.Override
	for _, o := range f.overrides {
		if o.OverrideType == overrideType {
			out = append(out, o)
		}
	}
	return out, nil
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	lru := cache.NewLRUCache(100)
	defer lru.Close()

	repo := &fakeRepo{
		overrides: []*domain.Override{
			{ID: "o1", CaseID: "c1", OverrideType: domain.OverrideComplexityTier, Direction: domain.DirectionUpgrade, ReasoningTags: []string{"comorbidity"}},
			{ID: "o2", CaseID: "c2", OverrideType: domain.OverrideComplexityTier, Direction: domain.DirectionUpgrade, ReasoningTags: []string{"comorbidity"}},
		},
	}

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, repo, lru)

		if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if len(w.subscriptions) != 3 {
			t.Errorf("expected 3 subscriptions, got %d", len(w.subscriptions))
		}

		w.Stop()
		if len(w.subscriptions) != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", len(w.subscriptions))
		}
	})

	t.Run("OverrideRecordedRefreshesPatterns", func(t *testing.T) {
		w := NewWorker(eventBus, repo, lru)
		if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		// Seed stale insights that the event must invalidate
		_ = lru.SetInsights(ctx, tenantID, "c1", &domain.LearningInsights{CaseID: "c1"}, time.Minute)

		time.Sleep(50 * time.Millisecond)

		event := domain.AuditEvent{
			OverrideID:   "o2",
			CaseID:       "c2",
			OverrideType: domain.OverrideComplexityTier,
			Direction:    domain.DirectionUpgrade,
		}
		payload, _ := json.Marshal(event)
		if err := eventBus.Publish(ctx, tenantID, domain.TopicOverrideRecorded, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for async processing
		deadline := time.Now().Add(2 * time.Second)
		var data []byte
		for time.Now().Before(deadline) {
			data, _ = lru.Get(ctx, tenantID, learning.PatternCacheKey(domain.OverrideComplexityTier))
			if data != nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if data == nil {
			t.Fatal("expected pattern cache to be populated")
		}

		var patterns []domain.OverridePattern
		if err := json.Unmarshal(data, &patterns); err != nil {
			t.Fatalf("failed to parse cached patterns: %v", err)
		}
		if len(patterns) != 1 || patterns[0].Count != 2 {
			t.Errorf("expected one pattern of size 2, got %+v", patterns)
		}

		insights, _ := lru.GetInsights(ctx, tenantID, "c1")
		if insights != nil {
			t.Error("expected insights invalidated after override event")
		}
	})
}
