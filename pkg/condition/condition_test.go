package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShapes(t *testing.T) {
	p, err := Parse("pd_score <= 0.15 && !documents_incomplete && status == 'approved'")
	require.NoError(t, err)
	require.Len(t, p.Clauses, 3)

	assert.Equal(t, Clause{Field: "pd_score", Operator: OpLte, Value: 0.15}, p.Clauses[0])
	assert.Equal(t, Clause{Field: "documents_incomplete", Operator: OpFalsy}, p.Clauses[1])
	assert.Equal(t, Clause{Field: "status", Operator: OpEq, Value: "approved"}, p.Clauses[2])
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, expr := range []string{
		"a &&",
		"== 3",
		"pd score > 1",
		"x > ",
		"x == 'a b' c",
		"1abc",
	} {
		_, err := Parse(expr)
		assert.Error(t, err, expr)
	}
}

func TestEvaluate(t *testing.T) {
	data := map[string]any{
		"pd_score":           0.12,
		"documents_verified": true,
		"approved":           "false",
		"amount":             "50000",
		"borrower":           map[string]any{"kyc_status": "completed", "age": 31},
		"tags":               []any{},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"true", true},
		{"false", false},
		{"documents_verified", true},
		{"approved", false},
		{"!approved", true},
		{"missing", false},
		{"!missing", true},
		{"tags", false},
		{"pd_score <= 0.15", true},
		{"pd_score > 0.30", false},
		{"amount >= 50000", true},
		{"amount < 10", false},
		{"borrower.kyc_status == completed", true},
		{"borrower.kyc_status != 'completed'", false},
		{"borrower.age > 18 && documents_verified", true},
		{"borrower.age > 18 && approved", false},
		{"missing > 1", false},
		{"missing == null", true},
		{"documents_verified == true", true},
		{"approved == false", true},
	}

	for _, tt := range tests {
		p, err := Parse(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, p.Evaluate(data), tt.expr)
	}
}

func TestEvaluateNilData(t *testing.T) {
	assert.True(t, MustParse("!documents_verified").Evaluate(nil))
	assert.False(t, MustParse("documents_verified").Evaluate(nil))
}

func TestStringDefaultsToTrue(t *testing.T) {
	assert.Equal(t, "true", Predicate{}.String())
	assert.Equal(t, "a > 1", MustParse("a > 1").String())
}

func TestParseQuotedLiteralsKeepOperators(t *testing.T) {
	p, err := Parse(`name == "a&&b" && code == 'x>=y' && amount > 10`)
	require.NoError(t, err)
	require.Len(t, p.Clauses, 3)
	assert.Equal(t, Clause{Field: "name", Operator: OpEq, Value: "a&&b"}, p.Clauses[0])
	assert.Equal(t, Clause{Field: "code", Operator: OpEq, Value: "x>=y"}, p.Clauses[1])
	assert.Equal(t, Clause{Field: "amount", Operator: OpGt, Value: float64(10)}, p.Clauses[2])

	assert.True(t, p.Evaluate(map[string]any{"name": "a&&b", "code": "x>=y", "amount": 11}))
	assert.False(t, p.Evaluate(map[string]any{"name": "a", "code": "x>=y", "amount": 11}))

	_, err = Parse(`name == 'open && x`)
	assert.Error(t, err, "unterminated quote")
}
