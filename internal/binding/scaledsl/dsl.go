// Package scaledsl parses textual scale expressions used in binding configuration.
package scaledsl

import (
	"fmt"
	"strconv"
	"strings"
)

// Call is a parsed expression with numeric arguments.
type Call struct {
	Name      string
	Arguments []float64
}

func (c Call) String() string {
	args := make([]string, len(c.Arguments))
	for i, a := range c.Arguments {
		args[i] = strconv.FormatFloat(a, 'g', -1, 64)
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

func ParseExpression(expr string) (Expression, error) {
	result, err := expressionParser.ParseString("", expr)
	if err != nil {
		return Expression{}, err
	}
	return *result, nil
}

// Parse parses expr and converts its arguments to numbers.
func Parse(expr string) (Call, error) {
	parsed, err := ParseExpression(expr)
	if err != nil {
		return Call{}, err
	}
	call := Call{
		Name:      parsed.Name,
		Arguments: make([]float64, 0, len(parsed.Arguments)),
	}
	for i, arg := range parsed.Arguments {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return Call{}, fmt.Errorf("argument %d of %s: %w", i, parsed.Name, err)
		}
		call.Arguments = append(call.Arguments, v)
	}
	return call, nil
}
