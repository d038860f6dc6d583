package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/underwrite-labs/harrier/internal/domain"
	"github.com/underwrite-labs/harrier/internal/rules"
)

// Point schedule for the pairwise case similarity heuristic.
// Candidates scoring at or below minSimilarity are excluded entirely;
// the final score is capped at maxSimilarity.
const (
	minSimilarity = 20
	maxSimilarity = 100
)

// Similarity finds historical precedent cases for a target case by
// scoring a bounded candidate pool. This is a heuristic over recent
// cases, not a nearest-neighbor index.
type Similarity struct {
	repo     domain.Repository
	poolSize int
}

// NewSimilarity creates a similarity service with the given candidate
// pool cap.
func NewSimilarity(repo domain.Repository, poolSize int) *Similarity {
	if poolSize <= 0 {
		poolSize = 50
	}
	return &Similarity{repo: repo, poolSize: poolSize}
}

// PoolSize returns the configured candidate pool cap.
func (s *Similarity) PoolSize() int {
	return s.poolSize
}

// FindSimilar scores the target case against a bounded pool of recent
// cases and returns matches in descending similarity order, ties broken
// by pool iteration order, truncated to limit.
func (s *Similarity) FindSimilar(ctx context.Context, tenantID, caseID string, limit int) ([]*domain.SimilarCase, error) {
	target, err := s.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", caseID, err)
	}

	pool, err := s.repo.ListRecentCases(ctx, tenantID, s.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate cases: %w", err)
	}

	var results []*domain.SimilarCase
	for _, candidate := range pool {
		if candidate.ID == caseID {
			continue
		}

		overrides, err := s.repo.ListOverridesByCase(ctx, tenantID, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list overrides for case %s: %w", candidate.ID, err)
		}

		score := Score(target, candidate, len(overrides) > 0)
		if score <= minSimilarity {
			continue
		}

		sc := &domain.SimilarCase{
			CaseID:     candidate.ID,
			Similarity: score,
			Overrides:  overrides,
		}
		if d := candidate.LatestDecision(); d != nil {
			sc.Decision = d.DecisionType
		}
		results = append(results, sc)
	}

	// Stable: equal scores keep pool iteration order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Score computes the 0-100 similarity between a target and a candidate
// case:
//
//	age difference  <=5 / <=10 / <=15 years  ->  25 / 15 / 5
//	sum-insured ratio >=0.8 / >=0.5 / >=0.3  ->  25 / 15 / 5
//	each condition-name pair where either name contains the other -> 15
//	candidate has a recorded decision -> 10, has an override -> 5
func Score(target, candidate *domain.Case, candidateHasOverride bool) int {
	score := 0

	targetAge := applicantAge(target)
	candidateAge := applicantAge(candidate)
	if targetAge > 0 && candidateAge > 0 {
		diff := targetAge - candidateAge
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff <= 5:
			score += 25
		case diff <= 10:
			score += 15
		case diff <= 15:
			score += 5
		}
	}

	if target.SumAssured > 0 && candidate.SumAssured > 0 {
		ratio := target.SumAssured / candidate.SumAssured
		if ratio > 1 {
			ratio = 1 / ratio
		}
		switch {
		case ratio >= 0.8:
			score += 25
		case ratio >= 0.5:
			score += 15
		case ratio >= 0.3:
			score += 5
		}
	}

	// Counted per pair: multiple target conditions matching the same
	// candidate condition each add points.
	for _, tc := range target.ConditionNames() {
		for _, cc := range candidate.ConditionNames() {
			if conditionNamesOverlap(tc, cc) {
				score += 15
			}
		}
	}

	if len(candidate.Decisions) > 0 {
		score += 10
	}
	if candidateHasOverride {
		score += 5
	}

	if score > maxSimilarity {
		score = maxSimilarity
	}
	return score
}

// conditionNamesOverlap reports whether either condition name is a
// case-insensitive substring of the other.
func conditionNamesOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

func applicantAge(c *domain.Case) int {
	if c.Applicant.Age > 0 {
		return c.Applicant.Age
	}
	if c.Applicant.DateOfBirth != "" {
		if age, ok := rules.AgeFromDOB(c.Applicant.DateOfBirth, time.Now().UTC()); ok {
			return age
		}
	}
	return 0
}
