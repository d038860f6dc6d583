package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/underwrite-labs/harrier/internal/domain"
)

// DerivedFields holds CEL programs for operator-configured computed
// context fields. Expressions compile once at startup; a bad expression
// fails configuration load, not per-case evaluation.
type DerivedFields struct {
	fields []derivedField
}

type derivedField struct {
	name    string
	program cel.Program
}

// NewDerivedFields compiles the configured derived-field expressions.
// Each expression evaluates against "caseCtx", the case context map.
func NewDerivedFields(configs []domain.DerivedFieldConfig) (*DerivedFields, error) {
	if len(configs) == 0 {
		return &DerivedFields{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("caseCtx", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	df := &DerivedFields{fields: make([]derivedField, 0, len(configs))}
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("derived field has no name")
		}
		ast, issues := env.Compile(cfg.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile derived field %s: %w", cfg.Name, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for derived field %s: %w", cfg.Name, err)
		}
		df.fields = append(df.fields, derivedField{name: cfg.Name, program: program})
	}

	return df, nil
}

// Apply evaluates each derived field against the context and stores the
// result under the field's name at the top level. A field already
// present is left alone; a failing expression leaves its field absent.
func (d *DerivedFields) Apply(ctx map[string]interface{}) map[string]interface{} {
	if d == nil || len(d.fields) == 0 {
		return ctx
	}

	out := make(map[string]interface{}, len(ctx)+len(d.fields))
	for k, v := range ctx {
		out[k] = v
	}

	for _, f := range d.fields {
		if _, exists := out[f.name]; exists {
			continue
		}
		val, _, err := f.program.Eval(map[string]interface{}{"caseCtx": out})
		if err != nil {
			continue
		}
		out[f.name] = val.Value()
	}

	return out
}

// Count returns the number of compiled derived fields.
func (d *DerivedFields) Count() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}
