// Package condition parses and evaluates the guard expressions attached to
// workflow transitions and auto-rules.
//
// Supported grammar, clauses joined with "&&":
//
//	true | false
//	field            truthy
//	!field           falsy
//	field OP literal OP is one of == != < <= > >=
//
// Fields may be dotted paths into nested objects. Literals are numbers,
// quoted strings, true, false, null or bare words (treated as strings).
// Quoted strings may contain "&&" and operator characters.
package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Operator string

const (
	OpTruthy Operator = "truthy"
	OpFalsy  Operator = "falsy"
	OpEq     Operator = "eq"
	OpNe     Operator = "ne"
	OpGt     Operator = "gt"
	OpGte    Operator = "gte"
	OpLt     Operator = "lt"
	OpLte    Operator = "lte"
)

// Two-character operators must be matched before their one-character prefixes.
var comparisonTokens = []struct {
	token string
	op    Operator
}{
	{">=", OpGte},
	{"<=", OpLte},
	{"==", OpEq},
	{"!=", OpNe},
	{">", OpGt},
	{"<", OpLt},
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Clause is one comparison of a data field against a literal.
type Clause struct {
	Field    string   `json:"field" bson:"field"`
	Operator Operator `json:"operator" bson:"operator"`
	Value    any      `json:"value,omitempty" bson:"value,omitempty"`
}

// Predicate is a conjunction of clauses. The zero value always holds.
type Predicate struct {
	Source  string   `json:"source" bson:"source"`
	Never   bool     `json:"never,omitempty" bson:"never,omitempty"`
	Clauses []Clause `json:"clauses,omitempty" bson:"clauses,omitempty"`
}

// Parse turns a guard expression into a Predicate.
func Parse(expr string) (Predicate, error) {
	p := Predicate{Source: expr}
	src := strings.TrimSpace(expr)
	if src == "" {
		return p, nil
	}

	for _, term := range splitOutsideQuotes(src, "&&") {
		term = strings.TrimSpace(term)
		switch term {
		case "":
			return Predicate{}, fmt.Errorf("condition %q: empty clause", expr)
		case "true":
			continue
		case "false":
			p.Never = true
			continue
		}

		clause, err := parseClause(term)
		if err != nil {
			return Predicate{}, fmt.Errorf("condition %q: %w", expr, err)
		}
		p.Clauses = append(p.Clauses, clause)
	}
	return p, nil
}

// MustParse is Parse for expressions known to be valid, e.g. in tests and seeds.
func MustParse(expr string) Predicate {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func parseClause(term string) (Clause, error) {
	for _, ct := range comparisonTokens {
		idx := indexOutsideQuotes(term, ct.token)
		if idx < 0 {
			continue
		}
		field := strings.TrimSpace(term[:idx])
		if !fieldPattern.MatchString(field) {
			return Clause{}, fmt.Errorf("invalid field %q", field)
		}
		raw := strings.TrimSpace(term[idx+len(ct.token):])
		if raw == "" {
			return Clause{}, fmt.Errorf("missing value after %q", ct.token)
		}
		value, err := parseLiteral(raw)
		if err != nil {
			return Clause{}, err
		}
		return Clause{Field: field, Operator: ct.op, Value: value}, nil
	}

	op := OpTruthy
	field := term
	if strings.HasPrefix(term, "!") {
		op = OpFalsy
		field = strings.TrimSpace(term[1:])
	}
	if !fieldPattern.MatchString(field) {
		return Clause{}, fmt.Errorf("invalid field %q", field)
	}
	return Clause{Field: field, Operator: op}, nil
}

func parseLiteral(raw string) (any, error) {
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '\'' || first == '"') && first == last {
			return raw[1 : len(raw)-1], nil
		}
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	if strings.ContainsAny(raw, " '\"=<>!") {
		return nil, fmt.Errorf("invalid literal %q", raw)
	}
	return raw, nil
}

// splitOutsideQuotes splits s around sep, ignoring sep inside quoted literals.
func splitOutsideQuotes(s, sep string) []string {
	var parts []string
	start := 0
	for {
		idx := indexOutsideQuotes(s[start:], sep)
		if idx < 0 {
			return append(parts, s[start:])
		}
		parts = append(parts, s[start:start+idx])
		start += idx + len(sep)
	}
}

// indexOutsideQuotes is strings.Index that skips quoted literals.
func indexOutsideQuotes(s, token string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(s[i:], token):
			return i
		}
	}
	return -1
}

// String returns the expression the predicate was parsed from.
func (p Predicate) String() string {
	if strings.TrimSpace(p.Source) == "" {
		return "true"
	}
	return p.Source
}
