package domain

// Evidence coverage configuration. Consumed by the advisory coverage
// matcher - it shares the pattern idiom with rule conditions but sits
// outside the condition-tree evaluator.

// Pattern match types for coverage rules.
const (
	PatternContains = "contains"
	PatternRegex    = "regex"
)

// Evidence types.
const (
	EvidenceLabResult = "lab_result"
	EvidenceDocument  = "document"
)

// CoverageRule maps a risk factor pattern to the evidence an
// underwriter would expect to see on file.
type CoverageRule struct {
	// RiskFactorPattern matches against case risk factor names
	RiskFactorPattern     string `json:"riskFactorPattern"`
	RiskFactorPatternType string `json:"riskFactorPatternType"` // "contains" or "regex"

	ExpectedEvidence []ExpectedEvidence `json:"expectedEvidence"`
}

// ExpectedEvidence describes one piece of evidence a coverage rule expects.
type ExpectedEvidence struct {
	EvidenceType string `json:"evidenceType"` // "lab_result" or "document"

	// For lab_result evidence
	TestCodes []string `json:"testCodes,omitempty"`
	TestNames []string `json:"testNames,omitempty"`

	// For document evidence
	DocumentTypes   []string `json:"documentTypes,omitempty"`
	ExtractedFields []string `json:"extractedFields,omitempty"`

	Description string `json:"description"`
	Importance  string `json:"importance"` // "required", "recommended", "optional"
}

// CoverageGap reports expected evidence that is missing from a case.
type CoverageGap struct {
	RiskFactor  string           `json:"riskFactor"`
	Evidence    ExpectedEvidence `json:"evidence"`
	Description string           `json:"description"`
}

// CoverageAssessment is the advisory result of an evidence coverage check.
type CoverageAssessment struct {
	CaseID       string        `json:"caseId"`
	Satisfied    []CoverageGap `json:"satisfied,omitempty"`
	Missing      []CoverageGap `json:"missing,omitempty"`
	CoveragePct  float64       `json:"coveragePct"`
	RulesMatched int           `json:"rulesMatched"`
}
