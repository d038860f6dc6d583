package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Case represents a single underwriting application under evaluation.
type Case struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Product details
	ProductType string  `json:"productType"`
	SumAssured  float64 `json:"sumAssured"`

	// Workflow status (e.g., "open", "decided", "referred")
	Status string `json:"status"`

	Applicant Applicant `json:"applicant"`

	// Medical evidence
	MedicalDisclosures []MedicalDisclosure `json:"medicalDisclosures,omitempty"`
	Medications        []Medication        `json:"medications,omitempty"`
	RiskFactors        []RiskFactor        `json:"riskFactors,omitempty"`
	TestResults        []TestResult        `json:"testResults,omitempty"`

	// Prior decisions and overrides applied on this case
	Decisions []Decision `json:"decisions,omitempty"`

	// Temporal
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Optional free-form attributes referenced by rule field paths
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Applicant represents the person being underwritten.
type Applicant struct {
	Name          string  `json:"name"`
	DateOfBirth   string  `json:"dateOfBirth,omitempty"` // ISO 8601 date
	Age           int     `json:"age,omitempty"`         // derived by the enricher if absent
	Gender        string  `json:"gender,omitempty"`
	SmokingStatus string  `json:"smokingStatus,omitempty"` // "never", "former", "current"
	HeightCm      float64 `json:"heightCm,omitempty"`
	WeightKg      float64 `json:"weightKg,omitempty"`
	BMI           float64 `json:"bmi,omitempty"` // derived by the enricher if absent
	Occupation    string  `json:"occupation,omitempty"`
}

// MedicalDisclosure is a condition disclosed on the application.
type MedicalDisclosure struct {
	ConditionName string                 `json:"conditionName"`
	DiagnosisDate string                 `json:"diagnosisDate,omitempty"`
	Severity      string                 `json:"severity,omitempty"`
	Status        string                 `json:"status,omitempty"` // "active", "resolved", "managed"
	Details       map[string]interface{} `json:"details,omitempty"`
}

// Medication is a disclosed or extracted medication.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Condition string `json:"condition,omitempty"` // condition it treats
}

// RiskFactor is an identified underwriting risk.
type RiskFactor struct {
	Name     string `json:"name"`
	Severity string `json:"severity"` // "low", "moderate", "high"
	Source   string `json:"source,omitempty"`
}

// TestResult is a lab or paramedical test result attached to the case.
type TestResult struct {
	TestCode   string `json:"testCode"`
	TestName   string `json:"testName"`
	Value      string `json:"value,omitempty"`
	Unit       string `json:"unit,omitempty"`
	Flag       string `json:"flag,omitempty"` // "normal", "abnormal", "critical"
	ResultDate string `json:"resultDate,omitempty"`
}

// Decision is a recorded underwriting decision on the case.
type Decision struct {
	ID           string    `json:"id"`
	DecisionType string    `json:"decisionType"` // "accept", "rated", "postpone", "decline"
	Tier         string    `json:"tier,omitempty"`
	DecidedBy    string    `json:"decidedBy,omitempty"`
	DecidedAt    time.Time `json:"decidedAt"`
}

// Context converts the case into the nested map form the rule engine
// evaluates against. Field paths in rules follow the JSON names
// (e.g. "applicant.age", "medicalDisclosures[].conditionName").
func (c *Case) Context() (map[string]interface{}, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal case %s: %w", c.ID, err)
	}
	var ctx map[string]interface{}
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("failed to build case context: %w", err)
	}
	return ctx, nil
}

// ConditionNames returns the disclosed condition names in order.
func (c *Case) ConditionNames() []string {
	names := make([]string, 0, len(c.MedicalDisclosures))
	for _, d := range c.MedicalDisclosures {
		names = append(names, d.ConditionName)
	}
	return names
}

// MedicationNames returns the medication names in order.
func (c *Case) MedicationNames() []string {
	names := make([]string, 0, len(c.Medications))
	for _, m := range c.Medications {
		names = append(names, m.Name)
	}
	return names
}

// RiskFactorNames returns the risk factor names in order.
func (c *Case) RiskFactorNames() []string {
	names := make([]string, 0, len(c.RiskFactors))
	for _, r := range c.RiskFactors {
		names = append(names, r.Name)
	}
	return names
}

// TestResultSummaries returns display strings for the attached test results.
func (c *Case) TestResultSummaries() []string {
	out := make([]string, 0, len(c.TestResults))
	for _, t := range c.TestResults {
		s := t.TestName
		if t.Value != "" {
			s = fmt.Sprintf("%s: %s %s", t.TestName, t.Value, t.Unit)
		}
		out = append(out, s)
	}
	return out
}

// LatestDecision returns the most recent decision, or nil if none exist.
func (c *Case) LatestDecision() *Decision {
	if len(c.Decisions) == 0 {
		return nil
	}
	latest := &c.Decisions[0]
	for i := range c.Decisions {
		if c.Decisions[i].DecidedAt.After(latest.DecidedAt) {
			latest = &c.Decisions[i]
		}
	}
	return latest
}
