package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Comparator names a comparison between an attribute and a value.
type Comparator string

// Operator combines sub-expressions.
type Operator string

const (
	Eq  Comparator = "eq"
	Ne  Comparator = "ne"
	Gt  Comparator = "gt"
	Gte Comparator = "gte"
	Lt  Comparator = "lt"
	Lte Comparator = "lte"
	In  Comparator = "in"
	Nin Comparator = "nin"

	And Operator = "and"
	Or  Operator = "or"
	Not Operator = "not"
)

// Expression is a boolean filter over chunk metadata. It is either a
// *Comparison or an *Operation.
type Expression interface {
	fmt.Stringer
	expression()
}

// Comparison tests one metadata attribute.
type Comparison struct {
	Comparator Comparator `json:"comparator"`
	Attribute  string     `json:"attribute"`
	Value      any        `json:"value"`
}

// Operation combines its arguments with a boolean operator.
type Operation struct {
	Operator  Operator     `json:"operator"`
	Arguments []Expression `json:"arguments"`
}

func (*Comparison) expression() {}
func (*Operation) expression()  {}

func (c *Comparison) String() string {
	value, err := json.Marshal(c.Value)
	if err != nil {
		value = []byte(fmt.Sprintf("%q", fmt.Sprint(c.Value)))
	}
	return fmt.Sprintf("%s(%q, %s)", c.Comparator, c.Attribute, value)
}

func (o *Operation) String() string {
	parts := make([]string, 0, len(o.Arguments))
	for _, arg := range o.Arguments {
		parts = append(parts, arg.String())
	}
	return fmt.Sprintf("%s(%s)", o.Operator, strings.Join(parts, ", "))
}

// Valid reports whether c is a known comparator.
func (c Comparator) Valid() bool {
	switch c {
	case Eq, Ne, Gt, Gte, Lt, Lte, In, Nin:
		return true
	}
	return false
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case And, Or, Not:
		return true
	}
	return false
}

// NewComparison builds a comparison expression.
func NewComparison(comparator Comparator, attribute string, value any) *Comparison {
	return &Comparison{Comparator: comparator, Attribute: attribute, Value: value}
}

// Equal matches attribute == value.
func Equal(attribute string, value any) *Comparison {
	return NewComparison(Eq, attribute, value)
}

// OneOf matches attribute values contained in values.
func OneOf(attribute string, values ...any) *Comparison {
	return NewComparison(In, attribute, values)
}

// AllOf joins expressions with and.
func AllOf(args ...Expression) *Operation {
	return &Operation{Operator: And, Arguments: args}
}

// AnyOf joins expressions with or.
func AnyOf(args ...Expression) *Operation {
	return &Operation{Operator: Or, Arguments: args}
}

// Negate wraps expr with not.
func Negate(expr Expression) *Operation {
	return &Operation{Operator: Not, Arguments: []Expression{expr}}
}

// Attributes lists every attribute referenced by expr, in order of appearance.
func Attributes(expr Expression) []string {
	var out []string
	seen := make(map[string]struct{})
	Walk(expr, func(c *Comparison) {
		if _, ok := seen[c.Attribute]; ok {
			return
		}
		seen[c.Attribute] = struct{}{}
		out = append(out, c.Attribute)
	})
	return out
}

// Walk calls fn for each comparison in expr, depth first.
func Walk(expr Expression, fn func(*Comparison)) {
	switch e := expr.(type) {
	case *Comparison:
		if e != nil {
			fn(e)
		}
	case *Operation:
		if e == nil {
			return
		}
		for _, arg := range e.Arguments {
			Walk(arg, fn)
		}
	}
}

// ListValue returns v as a slice when it is one.
func ListValue(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i := range list {
			out[i] = list[i]
		}
		return out, true
	}
	return nil, false
}
