package rules

import (
	"math"
	"strings"
	"time"
)

// Enrich derives computed fields on a case context before evaluation:
// applicant.age, applicant.bmi, and elevatedRiskFactorCount. Each is
// added only if absent. The input is never mutated - modified maps are
// copied on write.
func Enrich(ctx map[string]interface{}) map[string]interface{} {
	return EnrichAt(ctx, time.Now().UTC())
}

// EnrichAt is Enrich with an explicit reference time for age calculation.
func EnrichAt(ctx map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(ctx)+1)
	for k, v := range ctx {
		out[k] = v
	}

	if applicant, ok := out["applicant"].(map[string]interface{}); ok {
		enriched := enrichApplicant(applicant, now)
		out["applicant"] = enriched
	}

	// The derived count lives in its own named field so riskFactors
	// stays a plain list for array addressing and iteration.
	if _, exists := out["elevatedRiskFactorCount"]; !exists {
		if factors, ok := out["riskFactors"].([]interface{}); ok {
			out["elevatedRiskFactorCount"] = float64(countElevated(factors))
		}
	}

	return out
}

func enrichApplicant(applicant map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(applicant)+2)
	for k, v := range applicant {
		out[k] = v
	}

	if !present(out, "age") {
		if dob, ok := out["dateOfBirth"].(string); ok {
			if age, ok := AgeFromDOB(dob, now); ok {
				out["age"] = float64(age)
			}
		}
	}

	if !present(out, "bmi") {
		h, hok := toNumber(out["heightCm"])
		w, wok := toNumber(out["weightKg"])
		if hok && wok && h > 0 && w > 0 {
			meters := h / 100
			bmi := w / (meters * meters)
			out["bmi"] = math.Round(bmi*10) / 10
		}
	}

	return out
}

// present reports whether the key carries a usable value. A zero number
// is treated as absent so re-enriching a round-tripped context works.
func present(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	if n, ok := toNumber(v); ok {
		return n != 0
	}
	return true
}

// AgeFromDOB computes whole years between an ISO date of birth and now,
// decrementing when the birthday has not yet occurred this year.
// Shared with the override recorder's context snapshot.
func AgeFromDOB(dob string, now time.Time) (int, bool) {
	t, err := time.Parse("2006-01-02", dob)
	if err != nil {
		t, err = time.Parse(time.RFC3339, dob)
		if err != nil {
			return 0, false
		}
	}
	years := now.Year() - t.Year()
	if now.Month() < t.Month() || (now.Month() == t.Month() && now.Day() < t.Day()) {
		years--
	}
	if years < 0 {
		return 0, false
	}
	return years, true
}

// countElevated counts risk factors with high or moderate severity.
func countElevated(factors []interface{}) int {
	count := 0
	for _, f := range factors {
		m, ok := f.(map[string]interface{})
		if !ok {
			continue
		}
		severity, _ := m["severity"].(string)
		switch strings.ToLower(severity) {
		case "high", "moderate":
			count++
		}
	}
	return count
}
