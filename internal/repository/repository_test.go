package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/underwrite-labs/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	f, err := os.CreateTemp("", "harrier-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: f.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testCase(id string) *domain.Case {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Case{
		ID:          id,
		TenantID:    "tenant-1",
		ProductType: "term-life",
		SumAssured:  500000,
		Status:      "open",
		Applicant: domain.Applicant{
			Name:          "Jordan Reeves",
			Age:           45,
			SmokingStatus: "never",
			HeightCm:      178,
			WeightKg:      82,
		},
		MedicalDisclosures: []domain.MedicalDisclosure{
			{ConditionName: "Type 2 Diabetes", Severity: "moderate", Status: "managed"},
		},
		Medications: []domain.Medication{
			{Name: "Metformin", Dosage: "500mg"},
		},
		RiskFactors: []domain.RiskFactor{
			{Name: "elevated HbA1c", Severity: "moderate"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testOverride(id, caseID string) *domain.Override {
	conf := 0.82
	return &domain.Override{
		ID:                   id,
		TenantID:             "tenant-1",
		CaseID:               caseID,
		OverrideType:         domain.OverrideComplexityTier,
		Direction:            domain.DirectionUpgrade,
		SystemRecommendation: "SIMPLE",
		SystemConfidence:     &conf,
		UnderwriterChoice:    "COMPLEX",
		Reasoning:            "Multiple interacting conditions not captured by the tiering rules",
		ReasoningTags:        []string{"comorbidity", "medication-interaction"},
		ContextSnapshot: domain.ContextSnapshot{
			ApplicantAge: 45,
			SumAssured:   500000,
			Conditions:   []string{"Type 2 Diabetes"},
			Medications:  []string{"Metformin"},
		},
		UnderwriterID:              "uw-100",
		UnderwriterName:            "Sam Okafor",
		UnderwriterExperienceYears: 12,
		CreatedAt:                  time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("SaveAndGetCase", func(t *testing.T) {
		c := testCase("case-1")
		if err := repo.SaveCase(ctx, "tenant-1", c); err != nil {
			t.Fatalf("SaveCase failed: %v", err)
		}

		got, err := repo.GetCase(ctx, "tenant-1", "case-1")
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}
		if got.Applicant.Name != "Jordan Reeves" {
			t.Errorf("expected applicant name preserved, got %q", got.Applicant.Name)
		}
		if len(got.MedicalDisclosures) != 1 || got.MedicalDisclosures[0].ConditionName != "Type 2 Diabetes" {
			t.Errorf("expected disclosures preserved, got %+v", got.MedicalDisclosures)
		}
		if got.SumAssured != 500000 {
			t.Errorf("expected sum assured 500000, got %v", got.SumAssured)
		}
	})

	t.Run("UpsertCase", func(t *testing.T) {
		c := testCase("case-upsert")
		if err := repo.SaveCase(ctx, "tenant-1", c); err != nil {
			t.Fatalf("SaveCase failed: %v", err)
		}
		c.Status = "decided"
		if err := repo.SaveCase(ctx, "tenant-1", c); err != nil {
			t.Fatalf("second SaveCase failed: %v", err)
		}

		got, err := repo.GetCase(ctx, "tenant-1", "case-upsert")
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}
		if got.Status != "decided" {
			t.Errorf("expected updated status, got %q", got.Status)
		}
	})

	t.Run("GetCaseNotFound", func(t *testing.T) {
		_, err := repo.GetCase(ctx, "tenant-1", "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		c := testCase("case-iso")
		if err := repo.SaveCase(ctx, "tenant-1", c); err != nil {
			t.Fatalf("SaveCase failed: %v", err)
		}

		_, err := repo.GetCase(ctx, "tenant-2", "case-iso")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across tenants, got %v", err)
		}
	})

	t.Run("ListRecentCases", func(t *testing.T) {
		for i, id := range []string{"recent-a", "recent-b", "recent-c"} {
			c := testCase(id)
			c.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
			if err := repo.SaveCase(ctx, "tenant-recent", c); err != nil {
				t.Fatalf("SaveCase failed: %v", err)
			}
		}

		cases, err := repo.ListRecentCases(ctx, "tenant-recent", 2)
		if err != nil {
			t.Fatalf("ListRecentCases failed: %v", err)
		}
		if len(cases) != 2 {
			t.Fatalf("expected 2 cases, got %d", len(cases))
		}
		if cases[0].ID != "recent-c" {
			t.Errorf("expected most recent first, got %q", cases[0].ID)
		}
	})

	t.Run("SaveAndGetRule", func(t *testing.T) {
		rule := &domain.Rule{
			ID:       "rule-1",
			Name:     "Diabetes disclosure",
			Category: "medical",
			Conditions: domain.Condition{
				Field:           "medicalDisclosures[].conditionName",
				Operator:        domain.OperatorContains,
				Value:           "diabetes",
				CaseInsensitive: true,
			},
			Actions:  map[string]interface{}{"requireTest": "HbA1c"},
			Priority: 10,
			Enabled:  true,
		}
		if err := repo.SaveRule(ctx, "tenant-1", rule); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		got, err := repo.GetRule(ctx, "tenant-1", "rule-1")
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if got.Conditions.Field != "medicalDisclosures[].conditionName" {
			t.Errorf("expected conditions preserved, got %+v", got.Conditions)
		}
		if !got.Enabled {
			t.Error("expected rule enabled")
		}
		if got.Actions["requireTest"] != "HbA1c" {
			t.Errorf("expected actions preserved, got %+v", got.Actions)
		}
	})

	t.Run("ListRulesPriorityOrder", func(t *testing.T) {
		for _, r := range []*domain.Rule{
			{ID: "low", Name: "low", Category: "medical", Priority: 1, Enabled: true,
				Conditions: domain.Condition{Field: "applicant.age", Operator: domain.OperatorGt, Value: 60}},
			{ID: "high", Name: "high", Category: "medical", Priority: 100, Enabled: true,
				Conditions: domain.Condition{Field: "applicant.age", Operator: domain.OperatorGt, Value: 70}},
		} {
			if err := repo.SaveRule(ctx, "tenant-rules", r); err != nil {
				t.Fatalf("SaveRule failed: %v", err)
			}
		}

		rules, err := repo.ListRules(ctx, "tenant-rules")
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(rules))
		}
		if rules[0].ID != "high" {
			t.Errorf("expected highest priority first, got %q", rules[0].ID)
		}
	})

	t.Run("SaveAndGetOverride", func(t *testing.T) {
		o := testOverride("ovr-1", "case-1")
		if err := repo.SaveOverride(ctx, "tenant-1", o); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}

		got, err := repo.GetOverride(ctx, "tenant-1", "ovr-1")
		if err != nil {
			t.Fatalf("GetOverride failed: %v", err)
		}
		if got.OverrideType != domain.OverrideComplexityTier {
			t.Errorf("expected override type preserved, got %q", got.OverrideType)
		}
		if got.SystemConfidence == nil || *got.SystemConfidence != 0.82 {
			t.Errorf("expected system confidence 0.82, got %v", got.SystemConfidence)
		}
		if len(got.ContextSnapshot.Conditions) != 1 {
			t.Errorf("expected context snapshot preserved, got %+v", got.ContextSnapshot)
		}
		if !got.PendingValidation() {
			t.Error("expected new override to be pending validation")
		}
	})

	t.Run("NullConfidence", func(t *testing.T) {
		o := testOverride("ovr-nullconf", "case-1")
		o.SystemConfidence = nil
		if err := repo.SaveOverride(ctx, "tenant-1", o); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}

		got, err := repo.GetOverride(ctx, "tenant-1", "ovr-nullconf")
		if err != nil {
			t.Fatalf("GetOverride failed: %v", err)
		}
		if got.SystemConfidence != nil {
			t.Errorf("expected nil confidence, got %v", *got.SystemConfidence)
		}
	})

	t.Run("UpdateOverrideValidation", func(t *testing.T) {
		o := testOverride("ovr-validate", "case-1")
		if err := repo.SaveOverride(ctx, "tenant-1", o); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}

		o.Validated = true
		o.ValidatedBy = "senior-1"
		o.ValidationNotes = "agreed"
		o.IncludeInTraining = true
		if err := repo.UpdateOverride(ctx, "tenant-1", o); err != nil {
			t.Fatalf("UpdateOverride failed: %v", err)
		}

		got, err := repo.GetOverride(ctx, "tenant-1", "ovr-validate")
		if err != nil {
			t.Fatalf("GetOverride failed: %v", err)
		}
		if !got.Validated || got.ValidatedBy != "senior-1" || !got.IncludeInTraining {
			t.Errorf("expected validation persisted, got %+v", got)
		}
	})

	t.Run("UpdateOverrideNotFound", func(t *testing.T) {
		o := testOverride("ovr-ghost", "case-1")
		err := repo.UpdateOverride(ctx, "tenant-1", o)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListOverridesByCase", func(t *testing.T) {
		for _, id := range []string{"by-case-1", "by-case-2"} {
			if err := repo.SaveOverride(ctx, "tenant-1", testOverride(id, "case-list")); err != nil {
				t.Fatalf("SaveOverride failed: %v", err)
			}
		}

		overrides, err := repo.ListOverridesByCase(ctx, "tenant-1", "case-list")
		if err != nil {
			t.Fatalf("ListOverridesByCase failed: %v", err)
		}
		if len(overrides) != 2 {
			t.Errorf("expected 2 overrides, got %d", len(overrides))
		}
	})

	t.Run("ListOverridesByType", func(t *testing.T) {
		o := testOverride("by-type-1", "case-types")
		o.OverrideType = domain.OverrideTestRecommendation
		o.Direction = domain.DirectionAdd
		if err := repo.SaveOverride(ctx, "tenant-types", o); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}
		if err := repo.SaveOverride(ctx, "tenant-types", testOverride("by-type-2", "case-types")); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}

		overrides, err := repo.ListOverridesByType(ctx, "tenant-types", domain.OverrideTestRecommendation)
		if err != nil {
			t.Fatalf("ListOverridesByType failed: %v", err)
		}
		if len(overrides) != 1 || overrides[0].ID != "by-type-1" {
			t.Errorf("expected only the TEST_RECOMMENDATION override, got %d", len(overrides))
		}
	})

	t.Run("PendingValidation", func(t *testing.T) {
		pending := testOverride("pend-1", "case-pend")
		if err := repo.SaveOverride(ctx, "tenant-pend", pending); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}

		flagged := testOverride("pend-2", "case-pend")
		flagged.FlaggedForReview = true
		flagged.FlagReason = "reasoning too thin"
		if err := repo.SaveOverride(ctx, "tenant-pend", flagged); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}

		got, err := repo.ListOverridesPendingValidation(ctx, "tenant-pend")
		if err != nil {
			t.Fatalf("ListOverridesPendingValidation failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "pend-1" {
			t.Errorf("expected only the unvalidated unflagged override, got %d", len(got))
		}
	})

	t.Run("ForTraining", func(t *testing.T) {
		old := testOverride("train-old", "case-train")
		old.IncludeInTraining = true
		old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
		if err := repo.SaveOverride(ctx, "tenant-train", old); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}

		fresh := testOverride("train-fresh", "case-train")
		fresh.IncludeInTraining = true
		if err := repo.SaveOverride(ctx, "tenant-train", fresh); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}

		excluded := testOverride("train-excluded", "case-train")
		if err := repo.SaveOverride(ctx, "tenant-train", excluded); err != nil {
			t.Fatalf("SaveOverride failed: %v", err)
		}

		since := time.Now().UTC().Add(-24 * time.Hour)
		got, err := repo.ListOverridesForTraining(ctx, "tenant-train", domain.OverrideComplexityTier, since)
		if err != nil {
			t.Fatalf("ListOverridesForTraining failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "train-fresh" {
			t.Errorf("expected only the fresh training override, got %d", len(got))
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		if err := repo.SaveCase(ctx, "", testCase("no-tenant")); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.GetOverride(ctx, "", "x"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		query    string
		expected string
	}{
		{
			name:     "sqlite passthrough",
			driver:   "sqlite",
			query:    "SELECT * FROM cases WHERE id = ? AND tenant_id = ?",
			expected: "SELECT * FROM cases WHERE id = ? AND tenant_id = ?",
		},
		{
			name:     "postgres numbering",
			driver:   "postgres",
			query:    "SELECT * FROM cases WHERE id = ? AND tenant_id = ?",
			expected: "SELECT * FROM cases WHERE id = $1 AND tenant_id = $2",
		},
		{
			name:     "postgres no placeholders",
			driver:   "postgres",
			query:    "SELECT 1",
			expected: "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &SQLRepository{driver: tt.driver}
			if got := r.rebind(tt.query); got != tt.expected {
				t.Errorf("rebind(%q) = %q, want %q", tt.query, got, tt.expected)
			}
		})
	}
}
