package learning

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/underwrite-labs/harrier/internal/cache"
	"github.com/underwrite-labs/harrier/internal/domain"
)

func similarCase(caseID string, score int, overrideTypes ...string) *domain.SimilarCase {
	sc := &domain.SimilarCase{CaseID: caseID, Similarity: score}
	for _, ot := range overrideTypes {
		sc.Overrides = append(sc.Overrides, &domain.Override{
			ID:           "ovr-" + caseID + "-" + ot,
			CaseID:       caseID,
			OverrideType: ot,
		})
	}
	return sc
}

func TestAggregate(t *testing.T) {
	similar := []*domain.SimilarCase{
		similarCase("a", 80, domain.OverrideTestRecommendation),
		similarCase("b", 70, domain.OverrideTestRecommendation),
		similarCase("c", 60, domain.OverrideTestRecommendation, domain.OverrideComplexityTier),
		similarCase("d", 50),
	}

	insights := Aggregate("target", similar)

	if insights.CaseID != "target" || insights.SimilarCasesCount != 4 {
		t.Fatalf("header fields wrong: %+v", insights)
	}

	if len(insights.CommonOverrides) != 2 {
		t.Fatalf("expected 2 common override types, got %d", len(insights.CommonOverrides))
	}
	// Sorted by count descending
	top := insights.CommonOverrides[0]
	if top.OverrideType != domain.OverrideTestRecommendation || top.Count != 3 || top.Frequency != 0.75 {
		t.Errorf("top override = %+v", top)
	}
	second := insights.CommonOverrides[1]
	if second.OverrideType != domain.OverrideComplexityTier || second.Count != 1 || second.Frequency != 0.25 {
		t.Errorf("second override = %+v", second)
	}

	// Only the 75% type crosses the action threshold
	if len(insights.SuggestedActions) != 1 {
		t.Fatalf("expected 1 suggested action, got %d", len(insights.SuggestedActions))
	}
	if !strings.Contains(insights.SuggestedActions[0], "75%") {
		t.Errorf("action should cite the frequency: %q", insights.SuggestedActions[0])
	}

	// -(avg(0.75, 0.25)) * 0.2 = -0.1
	if math.Abs(insights.ConfidenceAdjustment-(-0.1)) > 1e-9 {
		t.Errorf("ConfidenceAdjustment = %v, want -0.1", insights.ConfidenceAdjustment)
	}
}

func TestAggregateBelowCommonThreshold(t *testing.T) {
	// 1 of 10 similar cases overridden: under the 20% common threshold
	similar := []*domain.SimilarCase{
		similarCase("a", 80, domain.OverrideTestRecommendation),
	}
	for i := 0; i < 9; i++ {
		similar = append(similar, similarCase("clean", 50))
	}

	insights := Aggregate("target", similar)
	if len(insights.CommonOverrides) != 0 {
		t.Errorf("rare override type should be dropped: %+v", insights.CommonOverrides)
	}
	if insights.ConfidenceAdjustment != 0 {
		t.Errorf("ConfidenceAdjustment = %v, want 0", insights.ConfidenceAdjustment)
	}
}

func TestAggregateNoSimilarCases(t *testing.T) {
	insights := Aggregate("target", nil)
	if insights.SimilarCasesCount != 0 || len(insights.CommonOverrides) != 0 || insights.ConfidenceAdjustment != 0 {
		t.Errorf("empty aggregate = %+v", insights)
	}
}

func TestInsightsForCaseCaches(t *testing.T) {
	target := caseWith("target", 45, 500000, "Type 2 Diabetes")
	candidate := caseWith("cand", 45, 500000, "Diabetes")
	repo := &similarityRepo{
		cases:  map[string]*domain.Case{"target": target},
		recent: []*domain.Case{candidate},
		overrides: map[string][]*domain.Override{
			"cand": {{ID: "o1", CaseID: "cand", OverrideType: domain.OverrideTestRecommendation}},
		},
	}

	lru := cache.NewLRUCache(100)
	defer lru.Close()

	ins := NewInsights(NewSimilarity(repo, 50), lru, time.Minute)
	ctx := context.Background()

	first, err := ins.ForCase(ctx, "tenant-001", "target")
	if err != nil {
		t.Fatalf("ForCase failed: %v", err)
	}
	if first.SimilarCasesCount != 1 {
		t.Errorf("SimilarCasesCount = %d, want 1", first.SimilarCasesCount)
	}

	// Second read is served from cache even after the pool changes
	repo.recent = nil
	second, err := ins.ForCase(ctx, "tenant-001", "target")
	if err != nil {
		t.Fatalf("cached ForCase failed: %v", err)
	}
	if second.SimilarCasesCount != 1 {
		t.Errorf("expected cached result, got %+v", second)
	}

	// Invalidation forces recomputation
	if err := lru.InvalidateInsights(ctx, "tenant-001"); err != nil {
		t.Fatalf("InvalidateInsights failed: %v", err)
	}
	third, err := ins.ForCase(ctx, "tenant-001", "target")
	if err != nil {
		t.Fatalf("recomputed ForCase failed: %v", err)
	}
	if third.SimilarCasesCount != 0 {
		t.Errorf("expected recomputed result, got %+v", third)
	}
}

func TestInsightsNilCache(t *testing.T) {
	target := caseWith("target", 45, 500000)
	repo := &similarityRepo{
		cases:     map[string]*domain.Case{"target": target},
		recent:    nil,
		overrides: map[string][]*domain.Override{},
	}

	ins := NewInsights(NewSimilarity(repo, 50), nil, 0)
	got, err := ins.ForCase(context.Background(), "tenant-001", "target")
	if err != nil {
		t.Fatalf("ForCase failed: %v", err)
	}
	if got.SimilarCasesCount != 0 {
		t.Errorf("unexpected insights: %+v", got)
	}
}
