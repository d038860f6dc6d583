package rules

import (
	"testing"
	"time"
)

var enrichNow = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

func TestEnrichAgeFromDOB(t *testing.T) {
	ctx := map[string]interface{}{
		"applicant": map[string]interface{}{"dateOfBirth": "1980-03-10"},
	}
	out := EnrichAt(ctx, enrichNow)

	applicant := out["applicant"].(map[string]interface{})
	if applicant["age"] != 45.0 {
		t.Errorf("age = %v, want 45", applicant["age"])
	}

	// Birthday not yet reached this year
	ctx2 := map[string]interface{}{
		"applicant": map[string]interface{}{"dateOfBirth": "1980-09-10"},
	}
	applicant2 := EnrichAt(ctx2, enrichNow)["applicant"].(map[string]interface{})
	if applicant2["age"] != 44.0 {
		t.Errorf("pre-birthday age = %v, want 44", applicant2["age"])
	}
}

func TestEnrichKeepsExplicitAge(t *testing.T) {
	ctx := map[string]interface{}{
		"applicant": map[string]interface{}{
			"age":         50.0,
			"dateOfBirth": "1980-03-10",
		},
	}
	applicant := EnrichAt(ctx, enrichNow)["applicant"].(map[string]interface{})
	if applicant["age"] != 50.0 {
		t.Errorf("explicit age overwritten: %v", applicant["age"])
	}
}

func TestEnrichBMI(t *testing.T) {
	ctx := map[string]interface{}{
		"applicant": map[string]interface{}{
			"heightCm": 180.0,
			"weightKg": 85.0,
		},
	}
	applicant := EnrichAt(ctx, enrichNow)["applicant"].(map[string]interface{})
	// 85 / 1.8^2 = 26.234..., rounded to one decimal
	if applicant["bmi"] != 26.2 {
		t.Errorf("bmi = %v, want 26.2", applicant["bmi"])
	}

	// Zero height must not divide
	zero := map[string]interface{}{
		"applicant": map[string]interface{}{"heightCm": 0.0, "weightKg": 85.0},
	}
	a := EnrichAt(zero, enrichNow)["applicant"].(map[string]interface{})
	if _, ok := a["bmi"]; ok {
		t.Error("bmi should be absent for zero height")
	}
}

func TestEnrichElevatedRiskFactorCount(t *testing.T) {
	ctx := map[string]interface{}{
		"riskFactors": []interface{}{
			map[string]interface{}{"name": "bmi", "severity": "high"},
			map[string]interface{}{"name": "bp", "severity": "Moderate"},
			map[string]interface{}{"name": "chol", "severity": "low"},
			"not-a-map",
		},
	}
	out := EnrichAt(ctx, enrichNow)
	if out["elevatedRiskFactorCount"] != 2.0 {
		t.Errorf("elevatedRiskFactorCount = %v, want 2", out["elevatedRiskFactorCount"])
	}

	// Pre-existing value is kept
	pre := map[string]interface{}{
		"elevatedRiskFactorCount": 7.0,
		"riskFactors":             []interface{}{},
	}
	if EnrichAt(pre, enrichNow)["elevatedRiskFactorCount"] != 7.0 {
		t.Error("existing elevatedRiskFactorCount overwritten")
	}
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	applicant := map[string]interface{}{"dateOfBirth": "1980-03-10"}
	ctx := map[string]interface{}{"applicant": applicant}

	EnrichAt(ctx, enrichNow)

	if _, ok := applicant["age"]; ok {
		t.Error("input applicant map was mutated")
	}
}

func TestAgeFromDOB(t *testing.T) {
	if age, ok := AgeFromDOB("1980-06-15", enrichNow); !ok || age != 45 {
		t.Errorf("birthday today: age = %d, %v", age, ok)
	}
	if age, ok := AgeFromDOB("1980-06-16T00:00:00Z", enrichNow); !ok || age != 44 {
		t.Errorf("RFC3339 pre-birthday: age = %d, %v", age, ok)
	}
	if _, ok := AgeFromDOB("not-a-date", enrichNow); ok {
		t.Error("invalid date should not parse")
	}
	if _, ok := AgeFromDOB("2030-01-01", enrichNow); ok {
		t.Error("future date should not yield an age")
	}
}
