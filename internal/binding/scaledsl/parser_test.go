package scaledsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	type testCase struct {
		input    string
		expected Call
	}

	testCases := []testCase{
		{
			input:    `identity`,
			expected: Call{Name: "identity", Arguments: []float64{}},
		},
		{
			input:    `normalized()`,
			expected: Call{Name: "normalized", Arguments: []float64{}},
		},
		{
			input:    `linear(20, 20000)`,
			expected: Call{Name: "linear", Arguments: []float64{20, 20000}},
		},
		{
			input:    `linear(-1,1)`,
			expected: Call{Name: "linear", Arguments: []float64{-1, 1}},
		},
		{
			input:    `exponential( 0.5 , 1e3 )`,
			expected: Call{Name: "exponential", Arguments: []float64{0.5, 1000}},
		},
		{
			input:    `steps(0, 10, 2.5)`,
			expected: Call{Name: "steps", Arguments: []float64{0, 10, 2.5}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			call, err := Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, call)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{
		``,
		`Linear(1, 2)`,
		`linear(1, `,
		`linear(1 2)`,
		`linear("a")`,
	} {
		_, err := Parse(input)
		assert.Error(t, err, input)
	}
}

func TestCallString(t *testing.T) {
	call, err := Parse(`linear(20, 20000)`)
	require.NoError(t, err)
	assert.Equal(t, "linear(20, 20000)", call.String())
}
