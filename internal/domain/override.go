package domain

import (
	"time"
)

// Override types - what kind of system recommendation was overridden.
const (
	OverrideComplexityTier     = "COMPLEXITY_TIER"
	OverrideTestRecommendation = "TEST_RECOMMENDATION"
	OverrideDecisionOption     = "DECISION_OPTION"
	OverrideRiskSeverity       = "RISK_SEVERITY"
)

// Override directions - how the underwriter's choice diverged.
const (
	DirectionUpgrade    = "UPGRADE"
	DirectionDowngrade  = "DOWNGRADE"
	DirectionSubstitute = "SUBSTITUTE"
	DirectionAdd        = "ADD"
	DirectionRemove     = "REMOVE"
)

// Override is an immutable record of a human decision that diverged from
// the system recommendation. The context snapshot is captured once at
// override time and is never recomputed - it is the ground truth for
// learning even when the live case changes afterwards.
type Override struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	CaseID   string `json:"caseId"`

	OverrideType string `json:"overrideType"`
	Direction    string `json:"direction"`

	// What the system recommended
	SystemRecommendation string                 `json:"systemRecommendation"`
	SystemDetails        map[string]interface{} `json:"systemDetails,omitempty"`
	SystemConfidence     *float64               `json:"systemConfidence,omitempty"` // 0-1, from the ML collaborator

	// What the underwriter chose instead
	UnderwriterChoice string                 `json:"underwriterChoice"`
	ChoiceDetails     map[string]interface{} `json:"choiceDetails,omitempty"`

	// Mandatory free-text reasoning plus category tags
	Reasoning     string   `json:"reasoning"`
	ReasoningTags []string `json:"reasoningTags,omitempty"`

	ContextSnapshot ContextSnapshot `json:"contextSnapshot"`

	// Who overrode
	UnderwriterID              string `json:"underwriterId"`
	UnderwriterName            string `json:"underwriterName,omitempty"`
	UnderwriterExperienceYears int    `json:"underwriterExperienceYears,omitempty"`

	// Validation lifecycle: created -> optionally validated by a senior
	// role (which also opts the record into training), or flagged for review.
	Validated         bool   `json:"validated"`
	ValidatedBy       string `json:"validatedBy,omitempty"`
	ValidationNotes   string `json:"validationNotes,omitempty"`
	FlaggedForReview  bool   `json:"flaggedForReview"`
	FlagReason        string `json:"flagReason,omitempty"`
	IncludeInTraining bool   `json:"includeInTraining"`

	CreatedAt time.Time `json:"createdAt"`
}

// ContextSnapshot freezes the case state at override time.
type ContextSnapshot struct {
	ApplicantAge int      `json:"applicantAge"`
	SumAssured   float64  `json:"sumAssured"`
	Conditions   []string `json:"conditions,omitempty"`
	Medications  []string `json:"medications,omitempty"`
	RiskFactors  []string `json:"riskFactors,omitempty"`
	TestResults  []string `json:"testResults,omitempty"`
}

// PendingValidation reports whether the override still awaits review.
func (o *Override) PendingValidation() bool {
	return !o.Validated && !o.FlaggedForReview
}

// OverridePattern is a recurring override shape mined across cases.
type OverridePattern struct {
	OverrideType string  `json:"overrideType"`
	Direction    string  `json:"direction"`
	ReasoningTag string  `json:"reasoningTag"`
	Count        int     `json:"count"`
	Percentage   float64 `json:"percentage"`

	Examples []PatternExample `json:"examples,omitempty"`

	// Set only for frequent patterns (count >= 5 and percentage >= 10)
	SuggestedAction string `json:"suggestedAction,omitempty"`
}

// PatternExample is one illustrative override inside a pattern.
type PatternExample struct {
	CaseID          string `json:"caseId"`
	Reasoning       string `json:"reasoning"`
	UnderwriterName string `json:"underwriterName,omitempty"`
}

// SimilarCase is a derived (never persisted) similarity result.
type SimilarCase struct {
	CaseID     string `json:"caseId"`
	Similarity int    `json:"similarity"` // 0-100

	// Prior decision type on the historical case, if any
	Decision string `json:"decision,omitempty"`

	// Overrides applied on that historical case
	Overrides []*Override `json:"overrides,omitempty"`
}

// OverrideFrequency is how often an override type recurs across similar cases.
type OverrideFrequency struct {
	OverrideType string  `json:"overrideType"`
	Count        int     `json:"count"`
	Frequency    float64 `json:"frequency"` // occurrences / similar case count
}

// LearningInsights is the per-case feedback signal derived from
// similar historical cases and their overrides.
type LearningInsights struct {
	CaseID            string              `json:"caseId"`
	SimilarCasesCount int                 `json:"similarCasesCount"`
	CommonOverrides   []OverrideFrequency `json:"commonOverrides,omitempty"`
	SuggestedActions  []string            `json:"suggestedActions,omitempty"`

	// Negative dampening applied to system confidence when similar cases
	// were frequently overridden. 0 when no override type qualifies.
	ConfidenceAdjustment float64 `json:"confidenceAdjustment"`
}
