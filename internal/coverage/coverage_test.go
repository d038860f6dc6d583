package coverage

import (
	"testing"

	"github.com/underwrite-labs/harrier/internal/domain"
)

func diabetesCoverageRule() domain.CoverageRule {
	return domain.CoverageRule{
		RiskFactorPattern:     "diabetes",
		RiskFactorPatternType: domain.PatternContains,
		ExpectedEvidence: []domain.ExpectedEvidence{
			{
				EvidenceType: domain.EvidenceLabResult,
				TestCodes:    []string{"HBA1C"},
				TestNames:    []string{"glycated"},
				Description:  "Recent HbA1c reading",
				Importance:   "required",
			},
			{
				EvidenceType:  domain.EvidenceDocument,
				DocumentTypes: []string{"gp_report"},
				Description:   "GP report covering diabetic management",
				Importance:    "recommended",
			},
		},
	}
}

func diabeticTestCase() *domain.Case {
	return &domain.Case{
		ID: "case-001",
		RiskFactors: []domain.RiskFactor{
			{Name: "Type 2 Diabetes", Severity: "moderate"},
		},
	}
}

func TestMatcherCompile(t *testing.T) {
	m, err := NewMatcher([]domain.CoverageRule{diabetesCoverageRule()})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	if m.RulesCount() != 1 {
		t.Errorf("RulesCount = %d, want 1", m.RulesCount())
	}
}

func TestMatcherCompileErrors(t *testing.T) {
	_, err := NewMatcher([]domain.CoverageRule{{
		RiskFactorPattern:     "([unclosed",
		RiskFactorPatternType: domain.PatternRegex,
	}})
	if err == nil {
		t.Error("expected error for invalid regex")
	}

	_, err = NewMatcher([]domain.CoverageRule{{
		RiskFactorPattern:     "x",
		RiskFactorPatternType: "glob",
	}})
	if err == nil {
		t.Error("expected error for unknown pattern type")
	}
}

func TestAssessAllMissing(t *testing.T) {
	m, err := NewMatcher([]domain.CoverageRule{diabetesCoverageRule()})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	a := m.Assess(diabeticTestCase(), nil)
	if a.RulesMatched != 1 {
		t.Errorf("RulesMatched = %d, want 1", a.RulesMatched)
	}
	if len(a.Missing) != 2 || len(a.Satisfied) != 0 {
		t.Errorf("missing=%d satisfied=%d", len(a.Missing), len(a.Satisfied))
	}
	if a.CoveragePct != 0 {
		t.Errorf("CoveragePct = %.1f, want 0", a.CoveragePct)
	}
	if a.Missing[0].RiskFactor != "Type 2 Diabetes" {
		t.Errorf("gap risk factor = %q", a.Missing[0].RiskFactor)
	}
}

func TestAssessPartialCoverage(t *testing.T) {
	m, err := NewMatcher([]domain.CoverageRule{diabetesCoverageRule()})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	c := diabeticTestCase()
	c.TestResults = []domain.TestResult{
		{TestCode: "hba1c", TestName: "Glycated haemoglobin", Value: "48", Unit: "mmol/mol"},
	}

	a := m.Assess(c, nil)
	if len(a.Satisfied) != 1 || len(a.Missing) != 1 {
		t.Fatalf("satisfied=%d missing=%d", len(a.Satisfied), len(a.Missing))
	}
	if a.CoveragePct != 50 {
		t.Errorf("CoveragePct = %.1f, want 50", a.CoveragePct)
	}
}

func TestAssessFullCoverage(t *testing.T) {
	m, err := NewMatcher([]domain.CoverageRule{diabetesCoverageRule()})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	c := diabeticTestCase()
	// Test name matches by substring, case-insensitively
	c.TestResults = []domain.TestResult{
		{TestCode: "XYZ", TestName: "GLYCATED HAEMOGLOBIN"},
	}

	a := m.Assess(c, []string{"GP_REPORT"})
	if len(a.Missing) != 0 {
		t.Errorf("expected no gaps, got %v", a.Missing)
	}
	if a.CoveragePct != 100 {
		t.Errorf("CoveragePct = %.1f, want 100", a.CoveragePct)
	}
}

func TestAssessNoMatchingRiskFactor(t *testing.T) {
	m, err := NewMatcher([]domain.CoverageRule{diabetesCoverageRule()})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	c := &domain.Case{
		ID:          "case-002",
		RiskFactors: []domain.RiskFactor{{Name: "elevated BMI"}},
	}
	a := m.Assess(c, nil)
	if a.RulesMatched != 0 || len(a.Missing) != 0 || len(a.Satisfied) != 0 {
		t.Errorf("unexpected assessment: %+v", a)
	}
	if a.CoveragePct != 0 {
		t.Errorf("CoveragePct = %.1f, want 0 with no matched rules", a.CoveragePct)
	}
}

func TestRegexPatternRule(t *testing.T) {
	m, err := NewMatcher([]domain.CoverageRule{{
		RiskFactorPattern:     `^bmi\s*>\s*\d+$`,
		RiskFactorPatternType: domain.PatternRegex,
		ExpectedEvidence: []domain.ExpectedEvidence{
			{
				EvidenceType:  domain.EvidenceDocument,
				DocumentTypes: []string{"paramedical_exam"},
				Description:   "Paramedical exam with measured height and weight",
			},
		},
	}})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	c := &domain.Case{
		ID:          "case-003",
		RiskFactors: []domain.RiskFactor{{Name: "BMI > 35"}},
	}
	a := m.Assess(c, nil)
	if a.RulesMatched != 1 {
		t.Errorf("regex rule did not match: %+v", a)
	}
}
