package rules

import (
	"testing"

	"github.com/underwrite-labs/harrier/internal/domain"
)

func TestDerivedFields(t *testing.T) {
	df, err := NewDerivedFields([]domain.DerivedFieldConfig{
		{Name: "highSum", Expression: `double(caseCtx.sumAssured) > 1000000.0`},
	})
	if err != nil {
		t.Fatalf("NewDerivedFields failed: %v", err)
	}
	if df.Count() != 1 {
		t.Errorf("Count = %d, want 1", df.Count())
	}

	out := df.Apply(map[string]interface{}{"sumAssured": 2000000.0})
	if out["highSum"] != true {
		t.Errorf("highSum = %v, want true", out["highSum"])
	}
}

func TestDerivedFieldsInvalidExpression(t *testing.T) {
	_, err := NewDerivedFields([]domain.DerivedFieldConfig{
		{Name: "bad", Expression: "this is not CEL !!!"},
	})
	if err == nil {
		t.Error("expected compile error for invalid expression")
	}

	_, err = NewDerivedFields([]domain.DerivedFieldConfig{
		{Name: "", Expression: "1 + 1"},
	})
	if err == nil {
		t.Error("expected error for unnamed derived field")
	}
}

func TestDerivedFieldsKeepExisting(t *testing.T) {
	df, err := NewDerivedFields([]domain.DerivedFieldConfig{
		{Name: "flagged", Expression: "true"},
	})
	if err != nil {
		t.Fatalf("NewDerivedFields failed: %v", err)
	}

	out := df.Apply(map[string]interface{}{"flagged": false})
	if out["flagged"] != false {
		t.Error("existing field should not be overwritten")
	}
}

func TestDerivedFieldsEvalFailureLeavesAbsent(t *testing.T) {
	// Compiles, but fails at runtime when the key is missing
	df, err := NewDerivedFields([]domain.DerivedFieldConfig{
		{Name: "ratio", Expression: `double(caseCtx.sumAssured) / double(caseCtx.income)`},
	})
	if err != nil {
		t.Fatalf("NewDerivedFields failed: %v", err)
	}

	out := df.Apply(map[string]interface{}{"sumAssured": 100000.0})
	if _, ok := out["ratio"]; ok {
		t.Error("failing expression should leave its field absent")
	}
}

func TestDerivedFieldsEmpty(t *testing.T) {
	df, err := NewDerivedFields(nil)
	if err != nil {
		t.Fatalf("NewDerivedFields(nil) failed: %v", err)
	}
	ctx := map[string]interface{}{"a": 1.0}
	out := df.Apply(ctx)
	if out["a"] != 1.0 {
		t.Error("empty derived fields should pass context through")
	}
}
