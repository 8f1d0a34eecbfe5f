package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Evaluate reports whether metadata satisfies expr. A nil expression matches
// everything. Array-valued metadata matches eq and in when any element does.
func Evaluate(expr Expression, metadata map[string]any) bool {
	switch e := expr.(type) {
	case nil:
		return true
	case *Comparison:
		if e == nil {
			return true
		}
		return evaluateComparison(e, metadata)
	case *Operation:
		if e == nil {
			return true
		}
		return evaluateOperation(e, metadata)
	default:
		return false
	}
}

func evaluateOperation(o *Operation, metadata map[string]any) bool {
	switch o.Operator {
	case And:
		for _, arg := range o.Arguments {
			if !Evaluate(arg, metadata) {
				return false
			}
		}
		return true
	case Or:
		for _, arg := range o.Arguments {
			if Evaluate(arg, metadata) {
				return true
			}
		}
		return len(o.Arguments) == 0
	case Not:
		for _, arg := range o.Arguments {
			if !Evaluate(arg, metadata) {
				return true
			}
		}
		return len(o.Arguments) == 0
	default:
		return false
	}
}

func evaluateComparison(c *Comparison, metadata map[string]any) bool {
	actual, present := metadata[c.Attribute]
	switch c.Comparator {
	case Eq:
		return present && anyElement(actual, func(v any) bool { return equalValues(v, c.Value) })
	case Ne:
		return !present || !anyElement(actual, func(v any) bool { return equalValues(v, c.Value) })
	case In:
		return present && matchesList(actual, c.Value)
	case Nin:
		return !present || !matchesList(actual, c.Value)
	case Gt, Gte, Lt, Lte:
		if !present {
			return false
		}
		cmp, ok := compareValues(actual, c.Value)
		if !ok {
			return false
		}
		switch c.Comparator {
		case Gt:
			return cmp > 0
		case Gte:
			return cmp >= 0
		case Lt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

func matchesList(actual any, want any) bool {
	list, ok := ListValue(want)
	if !ok {
		list = []any{want}
	}
	return anyElement(actual, func(v any) bool {
		for _, candidate := range list {
			if equalValues(v, candidate) {
				return true
			}
		}
		return false
	})
}

func anyElement(actual any, fn func(any) bool) bool {
	if list, ok := ListValue(actual); ok {
		for _, v := range list {
			if fn(v) {
				return true
			}
		}
		return false
	}
	return fn(actual)
}

func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareValues(a, b any) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aIsString := a.(string)
	bs, bIsString := b.(string)
	if !aIsString || !bIsString {
		return 0, false
	}
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	}
	return 0, false
}
