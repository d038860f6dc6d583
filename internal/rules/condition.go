package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/underwrite-labs/harrier/internal/domain"
)

// EvalResult is the outcome of evaluating a condition tree.
type EvalResult struct {
	Matched bool

	// Array elements that satisfied a leaf comparison, in encounter order
	MatchedItems []interface{}

	// Context keys exposed for downstream template substitution
	Context map[string]interface{}
}

// valueKind tags compare values so operator dispatch is exhaustive.
// Rule configuration is JSON, so anything else fails compilation.
type valueKind int

const (
	valueAbsent valueKind = iota
	valueString
	valueNumber
	valueBool
	valueList
)

type compareValue struct {
	kind valueKind
	str  string
	num  float64
	b    bool
	list []compareValue
}

// newCompareValue converts a raw JSON rule value into the tagged form.
func newCompareValue(v interface{}) (compareValue, error) {
	switch x := v.(type) {
	case nil:
		return compareValue{kind: valueAbsent}, nil
	case string:
		return compareValue{kind: valueString, str: x}, nil
	case float64:
		return compareValue{kind: valueNumber, num: x}, nil
	case int:
		return compareValue{kind: valueNumber, num: float64(x)}, nil
	case bool:
		return compareValue{kind: valueBool, b: x}, nil
	case []interface{}:
		list := make([]compareValue, 0, len(x))
		for _, elem := range x {
			cv, err := newCompareValue(elem)
			if err != nil {
				return compareValue{}, err
			}
			if cv.kind == valueList {
				return compareValue{}, fmt.Errorf("nested lists are not valid compare values")
			}
			list = append(list, cv)
		}
		return compareValue{kind: valueList, list: list}, nil
	default:
		return compareValue{}, fmt.Errorf("unsupported compare value type %T", v)
	}
}

// asString renders the compare value for string operators.
func (v compareValue) asString() string {
	switch v.kind {
	case valueString:
		return v.str
	case valueNumber:
		return formatNumber(v.num)
	case valueBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// CompiledCondition is a pre-validated condition tree ready for
// evaluation. Regular expressions compile once here, so an invalid
// pattern fails rule load instead of per-case evaluation.
type CompiledCondition struct {
	// Compound form
	compound string // "AND", "OR", or "" for a leaf
	children []*CompiledCondition

	// Leaf form
	path            *fieldPath
	operator        string
	value           compareValue
	caseInsensitive bool
	re              *regexp.Regexp // set for "matches"
}

// CompileCondition validates a condition tree and pre-processes it for
// evaluation.
func CompileCondition(cond *domain.Condition) (*CompiledCondition, error) {
	if cond.IsCompound() {
		cc := &CompiledCondition{compound: cond.Operator}
		for i := range cond.Conditions {
			child, err := CompileCondition(&cond.Conditions[i])
			if err != nil {
				return nil, err
			}
			cc.children = append(cc.children, child)
		}
		return cc, nil
	}

	if !validLeafOperator(cond.Operator) {
		return nil, fmt.Errorf("unknown operator %q", cond.Operator)
	}

	path, err := parseFieldPath(cond.Field)
	if err != nil {
		return nil, err
	}

	value, err := newCompareValue(cond.Value)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", cond.Field, err)
	}

	cc := &CompiledCondition{
		path:            path,
		operator:        cond.Operator,
		value:           value,
		caseInsensitive: cond.CaseInsensitive,
	}

	if cond.Operator == domain.OperatorMatches {
		if value.kind != valueString {
			return nil, fmt.Errorf("field %q: matches requires a string pattern", cond.Field)
		}
		// Rule configuration is operator-controlled, but patterns are
		// still treated as untrusted: compiled once here, and a caller
		// building rules from user input inherits regexp/syntax's
		// linear-time guarantees rather than a backtracking engine.
		pattern := value.str
		if cond.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("field %q: invalid pattern: %w", cond.Field, err)
		}
		cc.re = re
	}

	if cond.Operator == domain.OperatorIn && value.kind != valueList {
		return nil, fmt.Errorf("field %q: in requires a list value", cond.Field)
	}

	return cc, nil
}

func validLeafOperator(op string) bool {
	switch op {
	case domain.OperatorEq, domain.OperatorNeq,
		domain.OperatorLt, domain.OperatorGt,
		domain.OperatorLte, domain.OperatorGte,
		domain.OperatorContains, domain.OperatorIn, domain.OperatorMatches,
		domain.OperatorExists, domain.OperatorNotExists:
		return true
	}
	return false
}

// Evaluate runs the compiled condition tree against a case context.
func (c *CompiledCondition) Evaluate(ctx map[string]interface{}) EvalResult {
	switch c.compound {
	case domain.OperatorAnd:
		return c.evaluateAnd(ctx)
	case domain.OperatorOr:
		return c.evaluateOr(ctx)
	default:
		return c.evaluateLeaf(ctx)
	}
}

// evaluateAnd requires every sub-condition to match. It short-circuits
// on the first non-match and discards evidence gathered from
// earlier-matching branches: a failed AND voids partial matches.
// An empty condition list matches vacuously.
func (c *CompiledCondition) evaluateAnd(ctx map[string]interface{}) EvalResult {
	merged := EvalResult{Matched: true}
	for _, child := range c.children {
		r := child.Evaluate(ctx)
		if !r.Matched {
			return EvalResult{}
		}
		merged.MatchedItems = append(merged.MatchedItems, r.MatchedItems...)
		if len(r.Context) > 0 {
			if merged.Context == nil {
				merged.Context = make(map[string]interface{})
			}
			for k, v := range r.Context {
				merged.Context[k] = v
			}
		}
	}
	return merged
}

// evaluateOr returns the first matching sub-condition's result verbatim.
// An empty condition list never matches.
func (c *CompiledCondition) evaluateOr(ctx map[string]interface{}) EvalResult {
	for _, child := range c.children {
		if r := child.Evaluate(ctx); r.Matched {
			return r
		}
	}
	return EvalResult{}
}

func (c *CompiledCondition) evaluateLeaf(ctx map[string]interface{}) EvalResult {
	switch c.path.kind {
	case pathArray:
		return c.evaluateArrayLeaf(ctx)
	case pathFilteredCount:
		return c.evaluateFilteredCount(ctx)
	case pathPlainCount:
		prefix := c.path.parts[:len(c.path.parts)-1]
		if v, found := resolvePath(prefix, ctx); found {
			if list, ok := v.([]interface{}); ok {
				return EvalResult{Matched: c.compare(float64(len(list)), true)}
			}
		}
		// Prefix is not a list: fall through to normal resolution of
		// the literal path, which may address a real "count" key.
		fallthrough
	default:
		v, found := resolvePath(c.path.parts, ctx)
		return EvalResult{Matched: c.compare(v, found)}
	}
}

// evaluateArrayLeaf applies the leaf comparison to every element of the
// addressed list, collecting matching elements. The first match is
// exposed as "matchedDisclosure" for template substitution.
func (c *CompiledCondition) evaluateArrayLeaf(ctx map[string]interface{}) EvalResult {
	v, found := resolvePath(c.path.arrayField, ctx)
	if !found {
		return EvalResult{}
	}
	list, ok := v.([]interface{})
	if !ok {
		return EvalResult{}
	}

	var matched []interface{}
	for _, elem := range list {
		elemMap, ok := elem.(map[string]interface{})
		if !ok {
			continue
		}
		ev, evFound := resolvePath(c.path.elemPath, elemMap)
		if c.compare(ev, evFound) {
			matched = append(matched, elem)
		}
	}

	if len(matched) == 0 {
		return EvalResult{}
	}
	return EvalResult{
		Matched:      true,
		MatchedItems: matched,
		Context:      map[string]interface{}{"matchedDisclosure": matched[0]},
	}
}

// evaluateFilteredCount counts list elements whose filter key equals the
// filter value (case-insensitive) and compares the count.
func (c *CompiledCondition) evaluateFilteredCount(ctx map[string]interface{}) EvalResult {
	count := 0
	if v, found := resolvePath(c.path.arrayField, ctx); found {
		if list, ok := v.([]interface{}); ok {
			for _, elem := range list {
				elemMap, ok := elem.(map[string]interface{})
				if !ok {
					continue
				}
				fv, ok := elemMap[c.path.filterKey].(string)
				if ok && strings.EqualFold(fv, c.path.filterValue) {
					count++
				}
			}
		}
	}
	return EvalResult{
		Matched: c.compare(float64(count), true),
		Context: map[string]interface{}{c.path.countKey(): count},
	}
}

// compare applies the leaf operator to a resolved field value.
func (c *CompiledCondition) compare(v interface{}, found bool) bool {
	switch c.operator {
	case domain.OperatorExists:
		return found
	case domain.OperatorNotExists:
		return !found
	}

	// A missing or null field fails every comparison except an
	// inequality against a concrete value.
	if !found || v == nil {
		return c.operator == domain.OperatorNeq && c.value.kind != valueAbsent
	}

	switch c.operator {
	case domain.OperatorEq:
		return equal(v, c.value, c.caseInsensitive)
	case domain.OperatorNeq:
		return !equal(v, c.value, c.caseInsensitive)
	case domain.OperatorLt:
		return numericCompare(v, c.value, func(a, b float64) bool { return a < b })
	case domain.OperatorGt:
		return numericCompare(v, c.value, func(a, b float64) bool { return a > b })
	case domain.OperatorLte:
		return numericCompare(v, c.value, func(a, b float64) bool { return a <= b })
	case domain.OperatorGte:
		return numericCompare(v, c.value, func(a, b float64) bool { return a >= b })
	case domain.OperatorContains:
		return contains(v, c.value, c.caseInsensitive)
	case domain.OperatorIn:
		return in(v, c.value, c.caseInsensitive)
	case domain.OperatorMatches:
		if c.re == nil {
			return false
		}
		return c.re.MatchString(stringify(v))
	}
	return false
}

// equal compares numerically when both sides are numbers, otherwise by
// string form with optional case folding.
func equal(v interface{}, cmp compareValue, ci bool) bool {
	if cmp.kind == valueNumber {
		if n, ok := toNumber(v); ok {
			return n == cmp.num
		}
		return false
	}
	if cmp.kind == valueBool {
		if b, ok := v.(bool); ok {
			return b == cmp.b
		}
		return false
	}
	return stringsEqual(stringify(v), cmp.asString(), ci)
}

func numericCompare(v interface{}, cmp compareValue, f func(a, b float64) bool) bool {
	a, okA := toNumber(v)
	b, okB := cmp.toNumber()
	if !okA || !okB {
		return false
	}
	return f(a, b)
}

// contains is a substring test for string fields; for list fields it
// tests element-wise equality, or per-element substring when the
// element is a string.
func contains(v interface{}, cmp compareValue, ci bool) bool {
	needle := cmp.asString()
	switch x := v.(type) {
	case string:
		return stringsContain(x, needle, ci)
	case []interface{}:
		for _, elem := range x {
			if s, ok := elem.(string); ok {
				if stringsContain(s, needle, ci) {
					return true
				}
				continue
			}
			if equal(elem, cmp, ci) {
				return true
			}
		}
	}
	return false
}

// in tests membership of the field value in the compare list.
func in(v interface{}, cmp compareValue, ci bool) bool {
	for _, elem := range cmp.list {
		if equal(v, elem, ci) {
			return true
		}
	}
	return false
}

func (v compareValue) toNumber() (float64, bool) {
	switch v.kind {
	case valueNumber:
		return v.num, true
	case valueString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// toNumber coerces a resolved field value to a number.
// Handles float64 from JSON plus numeric strings.
func toNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return formatNumber(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func stringsEqual(a, b string, ci bool) bool {
	if ci {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func stringsContain(haystack, needle string, ci bool) bool {
	if ci {
		return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	}
	return strings.Contains(haystack, needle)
}
