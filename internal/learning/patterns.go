package learning

import (
	"fmt"
	"sort"

	"github.com/underwrite-labs/harrier/internal/domain"
)

// Pattern mining thresholds: groups below minGroupSize are discarded;
// a suggested action is attached only to groups at or above
// actionMinCount occurrences and actionMinPercent of all overrides.
const (
	minGroupSize     = 2
	actionMinCount   = 5
	actionMinPercent = 10.0
	maxExamples      = 3
)

// untaggedKey stands in for overrides with no reasoning tags.
const untaggedKey = "untagged"

// PatternCacheKey is the cache key for mined patterns of one override
// type. Shared by the async worker (which writes it) and the API layer
// (which reads through it).
func PatternCacheKey(overrideType string) string {
	return "patterns:" + overrideType
}

// MinePatterns groups overrides into recurring patterns keyed by
// override type, direction, and primary reasoning tag. Groups are
// returned in descending size order, ties keeping first-seen order.
// typeFilter narrows the input to one override type when non-empty.
func MinePatterns(overrides []*domain.Override, typeFilter string) []domain.OverridePattern {
	filtered := overrides
	if typeFilter != "" {
		filtered = make([]*domain.Override, 0, len(overrides))
		for _, o := range overrides {
			if o.OverrideType == typeFilter {
				filtered = append(filtered, o)
			}
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	type group struct {
		overrideType string
		direction    string
		tag          string
		members      []*domain.Override
	}

	groups := make(map[string]*group)
	var order []string

	for _, o := range filtered {
		tag := untaggedKey
		if len(o.ReasoningTags) > 0 {
			tag = o.ReasoningTags[0]
		}
		key := fmt.Sprintf("%s:%s:%s", o.OverrideType, o.Direction, tag)
		g, ok := groups[key]
		if !ok {
			g = &group{overrideType: o.OverrideType, direction: o.Direction, tag: tag}
			groups[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, o)
	}

	total := len(filtered)
	var patterns []domain.OverridePattern
	for _, key := range order {
		g := groups[key]
		if len(g.members) < minGroupSize {
			continue
		}

		pct := float64(len(g.members)) / float64(total) * 100

		p := domain.OverridePattern{
			OverrideType: g.overrideType,
			Direction:    g.direction,
			ReasoningTag: g.tag,
			Count:        len(g.members),
			Percentage:   pct,
		}

		for i, o := range g.members {
			if i >= maxExamples {
				break
			}
			p.Examples = append(p.Examples, domain.PatternExample{
				CaseID:          o.CaseID,
				Reasoning:       o.Reasoning,
				UnderwriterName: o.UnderwriterName,
			})
		}

		if p.Count >= actionMinCount && p.Percentage >= actionMinPercent {
			p.SuggestedAction = fmt.Sprintf(
				"Underwriters %s %s recommendations in %d cases (%.1f%% of overrides), commonly citing %q - review the system defaults for this scenario",
				describeDirection(g.direction), describeType(g.overrideType), p.Count, p.Percentage, g.tag,
			)
		}

		patterns = append(patterns, p)
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Count > patterns[j].Count
	})
	return patterns
}

func describeDirection(d string) string {
	switch d {
	case domain.DirectionUpgrade:
		return "upgrade"
	case domain.DirectionDowngrade:
		return "downgrade"
	case domain.DirectionSubstitute:
		return "substitute"
	case domain.DirectionAdd:
		return "add to"
	case domain.DirectionRemove:
		return "remove from"
	default:
		return "override"
	}
}

func describeType(t string) string {
	switch t {
	case domain.OverrideComplexityTier:
		return "complexity tier"
	case domain.OverrideTestRecommendation:
		return "test"
	case domain.OverrideDecisionOption:
		return "decision option"
	case domain.OverrideRiskSeverity:
		return "risk severity"
	default:
		return t
	}
}
