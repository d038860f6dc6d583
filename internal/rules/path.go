package rules

import (
	"fmt"
	"strings"
)

// Field path grammar:
//
//	applicant.age                    simple dot path
//	medicalDisclosures[].conditionName    per-element array addressing
//	riskFactors[severity=high].count      filtered aggregate
//	medications.count                plain aggregate (path prefix is a list)
//
// Resolution never raises: a malformed or absent path resolves to
// "not found", which is a normal evaluation outcome.

type pathKind int

const (
	pathSimple pathKind = iota
	pathArray
	pathFilteredCount
	pathPlainCount
)

// fieldPath is the parsed form of a leaf condition's field string.
type fieldPath struct {
	kind pathKind
	raw  string

	// Simple / plain-aggregate form
	parts []string

	// Array form: arrayField[].elemPath
	arrayField []string
	elemPath   []string

	// Filtered aggregate form: arrayField[filterKey=filterValue].count
	filterKey   string
	filterValue string
}

// parseFieldPath classifies and splits a field path string.
func parseFieldPath(field string) (*fieldPath, error) {
	if field == "" {
		return nil, fmt.Errorf("empty field path")
	}

	if i := strings.Index(field, "[]."); i >= 0 {
		elem := field[i+3:]
		if elem == "" {
			return nil, fmt.Errorf("array path %q has no element property", field)
		}
		return &fieldPath{
			kind:       pathArray,
			raw:        field,
			arrayField: strings.Split(field[:i], "."),
			elemPath:   strings.Split(elem, "."),
		}, nil
	}

	if i := strings.Index(field, "["); i >= 0 {
		j := strings.Index(field, "]")
		if j < i {
			return nil, fmt.Errorf("unbalanced brackets in field path %q", field)
		}
		filter := field[i+1 : j]
		k, v, ok := strings.Cut(filter, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q in field path %q", filter, field)
		}
		if field[j+1:] != ".count" {
			return nil, fmt.Errorf("filtered path %q must end in .count", field)
		}
		return &fieldPath{
			kind:        pathFilteredCount,
			raw:         field,
			arrayField:  strings.Split(field[:i], "."),
			filterKey:   k,
			filterValue: v,
		}, nil
	}

	parts := strings.Split(field, ".")
	if len(parts) > 1 && parts[len(parts)-1] == "count" {
		// Treated as an aggregate only when the prefix resolves to a
		// list; evaluation falls back to the full path otherwise.
		return &fieldPath{
			kind:  pathPlainCount,
			raw:   field,
			parts: parts,
		}, nil
	}

	return &fieldPath{kind: pathSimple, raw: field, parts: parts}, nil
}

// countKey is the synthesized context key a filtered aggregate exposes
// its count under.
func (p *fieldPath) countKey() string {
	return fmt.Sprintf("%s.%s=%s.count", strings.Join(p.arrayField, "."), p.filterKey, p.filterValue)
}

// resolvePath walks a dot path through nested maps. The second return
// distinguishes an explicit null (found) from a missing field (not found).
func resolvePath(parts []string, ctx map[string]interface{}) (interface{}, bool) {
	var current interface{} = ctx
	for i, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		current = v
	}
	return current, true
}

// Resolve resolves a plain dot path against a context map.
// Used by the template substitutor; leaf evaluation parses the richer
// grammar via parseFieldPath.
func Resolve(path string, ctx map[string]interface{}) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	return resolvePath(strings.Split(path, "."), ctx)
}
