// Package coverage implements the advisory evidence-coverage matcher.
// It shares the pattern idiom of rule conditions (contains / regex over
// risk factor names) but is independent of the condition-tree engine.
package coverage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/underwrite-labs/harrier/internal/domain"
)

// Matcher assesses whether a case carries the evidence its risk
// factors call for. Coverage rules compile at load; an invalid regex
// pattern fails the load, never an assessment.
type Matcher struct {
	rules []compiledCoverageRule
}

type compiledCoverageRule struct {
	config domain.CoverageRule
	re     *regexp.Regexp // set for regex pattern type
}

// NewMatcher compiles a coverage rule set.
func NewMatcher(rules []domain.CoverageRule) (*Matcher, error) {
	m := &Matcher{rules: make([]compiledCoverageRule, 0, len(rules))}
	for i, r := range rules {
		cr := compiledCoverageRule{config: r}
		switch r.RiskFactorPatternType {
		case domain.PatternContains, "":
			// substring match, compiled form not needed
		case domain.PatternRegex:
			re, err := regexp.Compile("(?i)" + r.RiskFactorPattern)
			if err != nil {
				return nil, fmt.Errorf("coverage rule %d: invalid pattern %q: %w", i, r.RiskFactorPattern, err)
			}
			cr.re = re
		default:
			return nil, fmt.Errorf("coverage rule %d: unknown pattern type %q", i, r.RiskFactorPatternType)
		}
		m.rules = append(m.rules, cr)
	}
	return m, nil
}

// RulesCount returns the number of loaded coverage rules.
func (m *Matcher) RulesCount() int {
	return len(m.rules)
}

// Assess matches the case's risk factors against the coverage rules
// and reports expected evidence as satisfied or missing. documentTypes
// lists the document types already on file for the case (documents are
// stored by an external collaborator).
func (m *Matcher) Assess(c *domain.Case, documentTypes []string) *domain.CoverageAssessment {
	assessment := &domain.CoverageAssessment{CaseID: c.ID}

	for _, cr := range m.rules {
		matchedFactor := ""
		for _, rf := range c.RiskFactors {
			if cr.matches(rf.Name) {
				matchedFactor = rf.Name
				break
			}
		}
		if matchedFactor == "" {
			continue
		}
		assessment.RulesMatched++

		for _, expected := range cr.config.ExpectedEvidence {
			gap := domain.CoverageGap{
				RiskFactor:  matchedFactor,
				Evidence:    expected,
				Description: expected.Description,
			}
			if evidencePresent(expected, c, documentTypes) {
				assessment.Satisfied = append(assessment.Satisfied, gap)
			} else {
				assessment.Missing = append(assessment.Missing, gap)
			}
		}
	}

	total := len(assessment.Satisfied) + len(assessment.Missing)
	if total > 0 {
		assessment.CoveragePct = float64(len(assessment.Satisfied)) / float64(total) * 100
	}
	return assessment
}

func (cr *compiledCoverageRule) matches(riskFactorName string) bool {
	if cr.re != nil {
		return cr.re.MatchString(riskFactorName)
	}
	return strings.Contains(
		strings.ToLower(riskFactorName),
		strings.ToLower(cr.config.RiskFactorPattern),
	)
}

// evidencePresent checks the case's test results and document types
// for one expected evidence entry.
func evidencePresent(expected domain.ExpectedEvidence, c *domain.Case, documentTypes []string) bool {
	switch expected.EvidenceType {
	case domain.EvidenceLabResult:
		for _, tr := range c.TestResults {
			for _, code := range expected.TestCodes {
				if strings.EqualFold(tr.TestCode, code) {
					return true
				}
			}
			for _, name := range expected.TestNames {
				if strings.Contains(strings.ToLower(tr.TestName), strings.ToLower(name)) {
					return true
				}
			}
		}
	case domain.EvidenceDocument:
		for _, dt := range documentTypes {
			for _, want := range expected.DocumentTypes {
				if strings.EqualFold(dt, want) {
					return true
				}
			}
		}
	}
	return false
}
