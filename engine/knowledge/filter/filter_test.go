package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knownAttrs(names ...string) func(string) bool {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(attr string) bool {
		_, ok := set[attr]
		return ok
	}
}

func TestParse(t *testing.T) {
	t.Run("Should parse a nested expression", func(t *testing.T) {
		expr, err := Parse(`{"operator":"and","arguments":[
			{"comparator":"eq","attribute":"section","value":"Monitoring"},
			{"comparator":"in","attribute":"source","value":["ICH-GCP","FDA"]}
		]}`)
		require.NoError(t, err)
		op, ok := expr.(*Operation)
		require.True(t, ok)
		assert.Equal(t, And, op.Operator)
		require.Len(t, op.Arguments, 2)
		assert.Equal(t, Equal("section", "Monitoring"), op.Arguments[0])
		assert.Equal(t, NewComparison(In, "source", []any{"ICH-GCP", "FDA"}), op.Arguments[1])
		assert.Equal(t, `and(eq("section", "Monitoring"), in("source", ["ICH-GCP","FDA"]))`, expr.String())
	})

	t.Run("Should recognize the no filter marker", func(t *testing.T) {
		for _, raw := range []string{`"NO_FILTER"`, `null`, ``, `"none"`} {
			_, err := Parse(raw)
			assert.ErrorIs(t, err, ErrNoFilter, raw)
		}
	})

	t.Run("Should reject malformed documents", func(t *testing.T) {
		cases := []string{
			`{"comparator":"eq","attribute":"section"`,
			`{"comparator":"like","attribute":"section","value":"x"}`,
			`{"operator":"xor","arguments":[]}`,
			`{"operator":"and","arguments":"nope"}`,
			`{"comparator":"eq","value":"x"}`,
			`{"foo":"bar"}`,
			`[1,2]`,
			`42`,
		}
		for _, raw := range cases {
			_, err := Parse(raw)
			assert.Error(t, err, raw)
			assert.NotErrorIs(t, err, ErrNoFilter, raw)
		}
	})
}

func TestPrune(t *testing.T) {
	known := knownAttrs("id", "section", "source", "summary")

	t.Run("Should keep fully declared expressions", func(t *testing.T) {
		expr := AllOf(Equal("section", "Monitoring"), Equal("source", "ICH-GCP"))
		assert.Equal(t, expr, Prune(expr, known))
	})

	t.Run("Should drop unknown clauses from a conjunction", func(t *testing.T) {
		expr := AllOf(Equal("section", "Monitoring"), Equal("author", "WHO"))
		assert.Equal(t, Equal("section", "Monitoring"), Prune(expr, known))
	})

	t.Run("Should return nil when every clause is unknown", func(t *testing.T) {
		assert.Nil(t, Prune(Equal("author", "WHO"), known))
		assert.Nil(t, Prune(AllOf(Equal("author", "WHO"), Equal("year", 2016)), known))
	})

	t.Run("Should drop a disjunction that loses a branch", func(t *testing.T) {
		expr := AllOf(
			Equal("source", "ICH-GCP"),
			AnyOf(Equal("section", "Consent"), Equal("author", "WHO")),
		)
		assert.Equal(t, Equal("source", "ICH-GCP"), Prune(expr, known))
	})

	t.Run("Should drop a negation whose operand was widened", func(t *testing.T) {
		expr := Negate(AllOf(Equal("section", "Consent"), Equal("author", "WHO")))
		assert.Nil(t, Prune(expr, known))
		kept := Negate(Equal("section", "Consent"))
		assert.Equal(t, kept, Prune(kept, known))
	})

	t.Run("Should normalize scalar membership values into lists", func(t *testing.T) {
		assert.Equal(t, NewComparison(In, "source", []any{"FDA"}), Prune(NewComparison(In, "source", "FDA"), known))
		assert.Nil(t, Prune(NewComparison(In, "source", []any{}), known))
		assert.Nil(t, Prune(Equal("source", []any{"a"}), known))
		assert.Nil(t, Prune(Equal("source", nil), known))
	})

	t.Run("Should drop range comparisons on values that cannot be ordered", func(t *testing.T) {
		assert.Nil(t, Prune(NewComparison(Gte, "section", true), known))
		assert.Nil(t, Prune(NewComparison(Lt, "section", map[string]any{"a": 1}), known))
		expr := AllOf(Equal("source", "ICH-GCP"), NewComparison(Gt, "section", false))
		assert.Equal(t, Equal("source", "ICH-GCP"), Prune(expr, known))
		kept := NewComparison(Gte, "section", "4")
		assert.Equal(t, kept, Prune(kept, known))
		assert.Equal(t, NewComparison(Lt, "id", 10), Prune(NewComparison(Lt, "id", 10), known))
	})

	t.Run("Should treat a nil expression as no filter", func(t *testing.T) {
		assert.Nil(t, Prune(nil, known))
	})
}

func TestEvaluate(t *testing.T) {
	meta := map[string]any{
		"section":     "Monitoring",
		"source":      "ICH-GCP",
		"tags":        []any{"sponsor", "oversight"},
		"chunk_index": 4,
	}

	t.Run("Should match equality and membership", func(t *testing.T) {
		assert.True(t, Evaluate(Equal("section", "Monitoring"), meta))
		assert.False(t, Evaluate(Equal("section", "Consent"), meta))
		assert.True(t, Evaluate(OneOf("source", "FDA", "ICH-GCP"), meta))
		assert.True(t, Evaluate(Equal("tags", "oversight"), meta))
		assert.True(t, Evaluate(NewComparison(Nin, "source", []any{"FDA"}), meta))
		assert.True(t, Evaluate(NewComparison(Ne, "author", "x"), meta))
		assert.False(t, Evaluate(Equal("author", "x"), meta))
	})

	t.Run("Should compare numbers across types", func(t *testing.T) {
		assert.True(t, Evaluate(Equal("chunk_index", 4.0), meta))
		assert.True(t, Evaluate(NewComparison(Gte, "chunk_index", 4), meta))
		assert.True(t, Evaluate(NewComparison(Lt, "chunk_index", 10.5), meta))
		assert.False(t, Evaluate(NewComparison(Gt, "chunk_index", 4), meta))
		assert.False(t, Evaluate(NewComparison(Gt, "section", 4), meta))
	})

	t.Run("Should combine with boolean operators", func(t *testing.T) {
		assert.True(t, Evaluate(AllOf(Equal("section", "Monitoring"), Equal("source", "ICH-GCP")), meta))
		assert.True(t, Evaluate(AnyOf(Equal("section", "Consent"), Equal("source", "ICH-GCP")), meta))
		assert.False(t, Evaluate(Negate(Equal("section", "Monitoring")), meta))
		assert.True(t, Evaluate(nil, meta))
	})

	t.Run("Should list referenced attributes once", func(t *testing.T) {
		expr := AllOf(Equal("section", "a"), AnyOf(Equal("source", "b"), Equal("section", "c")))
		assert.Equal(t, []string{"section", "source"}, Attributes(expr))
	})
}
