package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/underwrite-labs/harrier/internal/domain"
)

// Insight thresholds: an override type must recur in at least
// commonThreshold of similar cases to count as common, and in at least
// actionThreshold to produce a suggested action.
const (
	commonThreshold = 0.2
	actionThreshold = 0.5

	// confidenceDamping scales the average override frequency into a
	// negative confidence adjustment.
	confidenceDamping = 0.2
)

// Insights derives per-case learning signals from similar historical
// cases and their overrides. Computation scans a bounded pool, so
// results are cached per case until the next override invalidates them.
type Insights struct {
	similarity *Similarity
	cache      domain.Cache
	ttl        time.Duration
}

// NewInsights creates the insights aggregator. cache may be nil, in
// which case every read recomputes.
func NewInsights(similarity *Similarity, cache domain.Cache, ttl time.Duration) *Insights {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Insights{similarity: similarity, cache: cache, ttl: ttl}
}

// ForCase returns the learning insights for a case: how many similar
// cases exist, which override types recur across them, suggested
// actions for the frequent ones, and a confidence dampening signal.
func (i *Insights) ForCase(ctx context.Context, tenantID, caseID string) (*domain.LearningInsights, error) {
	if i.cache != nil {
		cached, err := i.cache.GetInsights(ctx, tenantID, caseID)
		if err != nil {
			slog.Warn("insights cache read failed", "case_id", caseID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	similar, err := i.similarity.FindSimilar(ctx, tenantID, caseID, i.similarity.PoolSize())
	if err != nil {
		return nil, err
	}

	insights := Aggregate(caseID, similar)

	if i.cache != nil {
		if err := i.cache.SetInsights(ctx, tenantID, caseID, insights, i.ttl); err != nil {
			slog.Warn("insights cache write failed", "case_id", caseID, "error", err)
		}
	}
	return insights, nil
}

// Aggregate computes learning insights from an already-scored similar
// set. Pure; exported for tests and for the async worker.
func Aggregate(caseID string, similar []*domain.SimilarCase) *domain.LearningInsights {
	insights := &domain.LearningInsights{
		CaseID:            caseID,
		SimilarCasesCount: len(similar),
	}
	if len(similar) == 0 {
		return insights
	}

	counts := make(map[string]int)
	var order []string
	for _, sc := range similar {
		for _, o := range sc.Overrides {
			if _, seen := counts[o.OverrideType]; !seen {
				order = append(order, o.OverrideType)
			}
			counts[o.OverrideType]++
		}
	}

	var freqSum float64
	for _, overrideType := range order {
		count := counts[overrideType]
		freq := float64(count) / float64(len(similar))
		if freq < commonThreshold {
			continue
		}

		insights.CommonOverrides = append(insights.CommonOverrides, domain.OverrideFrequency{
			OverrideType: overrideType,
			Count:        count,
			Frequency:    freq,
		})
		freqSum += freq

		if freq >= actionThreshold {
			insights.SuggestedActions = append(insights.SuggestedActions,
				fmt.Sprintf("%.0f%% of similar cases had %s overrides - review the system recommendation before accepting it",
					freq*100, describeType(overrideType)),
			)
		}
	}

	if n := len(insights.CommonOverrides); n > 0 {
		insights.ConfidenceAdjustment = -(freqSum / float64(n)) * confidenceDamping
	}

	sort.SliceStable(insights.CommonOverrides, func(a, b int) bool {
		return insights.CommonOverrides[a].Count > insights.CommonOverrides[b].Count
	})

	return insights
}
