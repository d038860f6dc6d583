// Package rules provides the condition-tree rule evaluation engine.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/underwrite-labs/harrier/internal/domain"
)

// Engine evaluates compiled underwriting rules against case contexts.
// Rules compile at load time (including regex patterns); evaluation is
// pure with respect to its inputs and safe to invoke concurrently.
type Engine struct {
	mu       sync.RWMutex
	compiled []*CompiledRule
	byID     map[string]int // rule ID -> index in compiled
	derived  *DerivedFields
}

// CompiledRule pairs a rule configuration with its compiled condition tree.
type CompiledRule struct {
	Config    *domain.Rule
	Condition *CompiledCondition
}

// NewEngine creates a rule evaluation engine. Derived-field expressions
// are compiled up front; an invalid expression fails construction.
func NewEngine(derivedConfigs []domain.DerivedFieldConfig) (*Engine, error) {
	derived, err := NewDerivedFields(derivedConfigs)
	if err != nil {
		return nil, err
	}
	return &Engine{
		byID:    make(map[string]int),
		derived: derived,
	}, nil
}

// ValidateRule compiles a rule without loading it into the engine.
func (e *Engine) ValidateRule(cfg *domain.Rule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule. A rule with the same ID is
// replaced in place, preserving its position for priority tie ordering.
func (e *Engine) LoadRule(cfg *domain.Rule) error {
	compiled, err := compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if idx, ok := e.byID[cfg.ID]; ok {
		e.compiled[idx] = compiled
		return nil
	}
	e.byID[cfg.ID] = len(e.compiled)
	e.compiled = append(e.compiled, compiled)
	return nil
}

// LoadRules compiles and loads multiple rules in order.
func (e *Engine) LoadRules(configs []*domain.Rule) error {
	for _, cfg := range configs {
		if err := e.LoadRule(cfg); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules replaces the whole rule set atomically. The existing set
// stays live until every new rule has compiled.
func (e *Engine) ReloadRules(configs []*domain.Rule) error {
	compiled := make([]*CompiledRule, 0, len(configs))
	byID := make(map[string]int, len(configs))

	for _, cfg := range configs {
		c, err := compileRule(cfg)
		if err != nil {
			return err
		}
		byID[cfg.ID] = len(compiled)
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	e.compiled = compiled
	e.byID = byID
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// LoadedRules returns the currently loaded rule configurations.
func (e *Engine) LoadedRules() []*domain.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.Rule, 0, len(e.compiled))
	for _, c := range e.compiled {
		out = append(out, c.Config)
	}
	return out
}

// EnrichContext applies the enricher and derived fields to a raw case
// context. EvaluateAll does this internally; it is exported for callers
// that need the enriched context on its own (e.g. coverage assessment).
func (e *Engine) EnrichContext(caseCtx map[string]interface{}) map[string]interface{} {
	return e.derived.Apply(Enrich(caseCtx))
}

// EvaluateAll evaluates every enabled rule against the case context,
// ordered by priority descending (stable - ties keep load order).
// A rule appears in the result when it matched or carries alwaysInclude.
func (e *Engine) EvaluateAll(ctx context.Context, caseCtx map[string]interface{}) ([]domain.RuleMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiled))
	for _, r := range e.compiled {
		if r.Config.Enabled {
			rules = append(rules, r)
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Config.Priority > rules[j].Config.Priority
	})

	enriched := e.EnrichContext(caseCtx)

	var matches []domain.RuleMatch
	for _, r := range rules {
		result := r.Condition.Evaluate(enriched)
		if !result.Matched && !r.Config.AlwaysInclude {
			continue
		}

		m := domain.RuleMatch{
			Rule:         r.Config,
			Matched:      result.Matched,
			MatchedItems: result.MatchedItems,
			Context:      result.Context,
		}
		if r.Config.Actions != nil {
			m.Actions = substituteActions(r.Config.Actions, enriched, result.Context)
		}
		matches = append(matches, m)
	}

	return matches, nil
}

// substituteActions resolves {{path}} placeholders in the action
// payload against the enriched context overlaid with the evaluation
// context (matchedDisclosure, synthesized count keys).
func substituteActions(actions map[string]interface{}, caseCtx, evalCtx map[string]interface{}) map[string]interface{} {
	merged := caseCtx
	if len(evalCtx) > 0 {
		merged = make(map[string]interface{}, len(caseCtx)+len(evalCtx))
		for k, v := range caseCtx {
			merged[k] = v
		}
		for k, v := range evalCtx {
			merged[k] = v
		}
	}
	return SubstituteDeep(actions, merged).(map[string]interface{})
}

func compileRule(cfg *domain.Rule) (*CompiledRule, error) {
	cond, err := CompileCondition(&cfg.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, err)
	}
	return &CompiledRule{Config: cfg, Condition: cond}, nil
}
