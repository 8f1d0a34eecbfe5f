package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoFilter is returned by Parse when the document explicitly carries no filter.
var ErrNoFilter = errors.New("filter: no filter")

// Parse decodes a filter expression from JSON of the form
//
//	{"comparator": "eq", "attribute": "section", "value": "Monitoring"}
//	{"operator": "and", "arguments": [ ... ]}
//
// The strings "NO_FILTER", "" and null yield ErrNoFilter.
func Parse(raw string) (Expression, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoFilter
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("filter: invalid json")
	}
	return FromResult(gjson.Parse(raw))
}

// FromResult decodes a filter expression from an already parsed JSON value.
func FromResult(value gjson.Result) (Expression, error) {
	switch value.Type {
	case gjson.Null:
		return nil, ErrNoFilter
	case gjson.String:
		if isNoFilter(value.String()) {
			return nil, ErrNoFilter
		}
		return nil, fmt.Errorf("filter: unexpected string %q", value.String())
	case gjson.JSON:
		if !value.IsObject() {
			return nil, fmt.Errorf("filter: expected object")
		}
	default:
		return nil, fmt.Errorf("filter: unexpected %s value", value.Type)
	}
	if op := value.Get("operator"); op.Exists() {
		return parseOperation(op.String(), value.Get("arguments"))
	}
	if cmp := value.Get("comparator"); cmp.Exists() {
		return parseComparison(cmp.String(), value.Get("attribute"), value.Get("value"))
	}
	return nil, fmt.Errorf("filter: object has neither operator nor comparator")
}

func parseOperation(name string, args gjson.Result) (Expression, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(name)))
	if !op.Valid() {
		return nil, fmt.Errorf("filter: unknown operator %q", name)
	}
	if !args.IsArray() {
		return nil, fmt.Errorf("filter: operator %s requires an arguments array", op)
	}
	out := &Operation{Operator: op}
	var parseErr error
	args.ForEach(func(_, item gjson.Result) bool {
		expr, err := FromResult(item)
		if err != nil {
			parseErr = err
			return false
		}
		out.Arguments = append(out.Arguments, expr)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func parseComparison(name string, attribute gjson.Result, value gjson.Result) (Expression, error) {
	cmp := Comparator(strings.ToLower(strings.TrimSpace(name)))
	if !cmp.Valid() {
		return nil, fmt.Errorf("filter: unknown comparator %q", name)
	}
	attr := strings.TrimSpace(attribute.String())
	if attr == "" {
		return nil, fmt.Errorf("filter: comparator %s requires an attribute", cmp)
	}
	if !value.Exists() {
		return nil, fmt.Errorf("filter: comparator %s on %s requires a value", cmp, attr)
	}
	return NewComparison(cmp, attr, scalar(value)), nil
}

func scalar(v gjson.Result) any {
	if v.IsArray() {
		items := v.Array()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, scalar(item))
		}
		return out
	}
	return v.Value()
}

func isNoFilter(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NO_FILTER", "NONE", "NULL":
		return true
	}
	return false
}
