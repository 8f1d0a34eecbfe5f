package filter

import "encoding/json"

// Prune removes every comparison whose attribute is not accepted by known and
// simplifies what remains. A removed clause is treated as matching everything,
// so pruning only ever widens a search: a disjunction that loses a branch and
// a negation whose operand was widened are removed entirely. Range comparisons
// against values that are neither numbers nor strings are removed too. Prune
// returns nil when nothing usable is left.
func Prune(expr Expression, known func(attribute string) bool) Expression {
	out, _ := prune(expr, known)
	return out
}

// prune returns the simplified expression and whether it matches a superset
// of what expr matched.
func prune(expr Expression, known func(string) bool) (Expression, bool) {
	switch e := expr.(type) {
	case *Comparison:
		return pruneComparison(e, known)
	case *Operation:
		return pruneOperation(e, known)
	default:
		return nil, false
	}
}

func pruneComparison(c *Comparison, known func(string) bool) (Expression, bool) {
	if c == nil {
		return nil, false
	}
	if !c.Comparator.Valid() || c.Attribute == "" || known == nil || !known(c.Attribute) {
		return nil, true
	}
	if c.Comparator == In || c.Comparator == Nin {
		list, ok := ListValue(c.Value)
		if !ok {
			return NewComparison(c.Comparator, c.Attribute, []any{c.Value}), false
		}
		if len(list) == 0 {
			return nil, true
		}
		return NewComparison(c.Comparator, c.Attribute, list), false
	}
	if _, isList := ListValue(c.Value); isList || c.Value == nil {
		return nil, true
	}
	if isRange(c.Comparator) && !orderable(c.Value) {
		return nil, true
	}
	return NewComparison(c.Comparator, c.Attribute, c.Value), false
}

func pruneOperation(o *Operation, known func(string) bool) (Expression, bool) {
	if o == nil {
		return nil, false
	}
	if !o.Operator.Valid() || len(o.Arguments) == 0 {
		return nil, true
	}
	widened := false
	args := make([]Expression, 0, len(o.Arguments))
	for _, arg := range o.Arguments {
		pruned, argWidened := prune(arg, known)
		widened = widened || argWidened
		if pruned == nil {
			if o.Operator == Or {
				return nil, true
			}
			continue
		}
		args = append(args, pruned)
	}
	if o.Operator == Not {
		if widened || len(args) == 0 {
			return nil, true
		}
		if len(args) > 1 {
			return Negate(AllOf(args...)), false
		}
		return Negate(args[0]), false
	}
	switch len(args) {
	case 0:
		return nil, widened
	case 1:
		return args[0], widened
	}
	return &Operation{Operator: o.Operator, Arguments: args}, widened
}

func isRange(c Comparator) bool {
	return c == Gt || c == Gte || c == Lt || c == Lte
}

// orderable reports whether v can be compared with a range comparator.
func orderable(v any) bool {
	switch v.(type) {
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	default:
		return false
	}
}
