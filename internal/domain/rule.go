package domain

// Rule is a named, prioritized condition tree plus an opaque action payload.
type Rule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Category groups rules by what they drive: "risk", "test", "decision"
	Category string `json:"category"`

	// Root condition tree evaluated against the case context
	Conditions Condition `json:"conditions"`

	// Opaque action payload returned to the caller on match.
	// String leaves may contain {{path}} template placeholders.
	Actions map[string]interface{} `json:"actions,omitempty"`

	// Priority orders matched rules (higher first). Ordering only - no
	// short-circuiting between rules.
	Priority int `json:"priority"`

	// AlwaysInclude surfaces the rule in results even when its condition
	// tree does not match. Used for default/fallback recommendations.
	AlwaysInclude bool `json:"alwaysInclude,omitempty"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// Condition is a leaf comparison or an AND/OR compound over sub-conditions.
// Leaf form: Field + Operator + Value (+ CaseInsensitive).
// Compound form: Operator "AND"|"OR" + Conditions.
type Condition struct {
	Field           string      `json:"field,omitempty"`
	Operator        string      `json:"operator"`
	Value           interface{} `json:"value,omitempty"`
	CaseInsensitive bool        `json:"caseInsensitive,omitempty"`
	Conditions      []Condition `json:"conditions,omitempty"`
}

// IsCompound reports whether the condition is an AND/OR group.
func (c *Condition) IsCompound() bool {
	return c.Operator == OperatorAnd || c.Operator == OperatorOr
}

// Leaf comparison operators.
const (
	OperatorEq        = "=="
	OperatorNeq       = "!="
	OperatorLt        = "<"
	OperatorGt        = ">"
	OperatorLte       = "<="
	OperatorGte       = ">="
	OperatorContains  = "contains"
	OperatorIn        = "in"
	OperatorMatches   = "matches"
	OperatorExists    = "exists"
	OperatorNotExists = "notExists"
)

// Compound operators.
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

// Rule categories.
const (
	RuleCategoryRisk     = "risk"
	RuleCategoryTest     = "test"
	RuleCategoryDecision = "decision"
)

// RuleMatch is one entry in the ordered rule evaluation result.
type RuleMatch struct {
	Rule    *Rule `json:"rule"`
	Matched bool  `json:"matched"`

	// Elements of an array field that satisfied the leaf comparison
	MatchedItems []interface{} `json:"matchedItems,omitempty"`

	// Evaluation context exposed for template substitution
	// (e.g. "matchedDisclosure", synthesized count keys)
	Context map[string]interface{} `json:"context,omitempty"`

	// Actions with {{path}} placeholders resolved against the case context
	Actions map[string]interface{} `json:"actions,omitempty"`
}
