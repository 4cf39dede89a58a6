package binding

import (
	"fmt"
	"math"

	"github.com/neuroplastio/neio-midi/internal/binding/scaledsl"
	"github.com/neuroplastio/neio-midi/pkg/registry"
)

const maxValue = 127.0

// ScaleFunc maps a raw 7-bit control value to a parameter value.
type ScaleFunc func(value int) float64

func Identity(value int) float64 {
	return float64(value)
}

// Normalized maps 0..127 onto 0..1.
func Normalized(value int) float64 {
	return float64(value) / maxValue
}

func Linear(min, max float64) ScaleFunc {
	return func(value int) float64 {
		return min + (max-min)*Normalized(value)
	}
}

// Exponential interpolates geometrically between min and max, which must both be positive.
func Exponential(min, max float64) ScaleFunc {
	return func(value int) float64 {
		return min * math.Pow(max/min, Normalized(value))
	}
}

// Toggle returns 1 for values at or above threshold and 0 below it.
func Toggle(threshold int) ScaleFunc {
	return func(value int) float64 {
		if value >= threshold {
			return 1
		}
		return 0
	}
}

// Steps quantizes the linear min..max range to multiples of step.
func Steps(min, max, step float64) ScaleFunc {
	linear := Linear(min, max)
	return func(value int) float64 {
		v := min + math.Round((linear(value)-min)/step)*step
		return math.Min(v, max)
	}
}

var scales = registry.NewRegistry[ScaleFunc, []float64]()

func init() {
	scales.Register("identity", fixedArity(0, func([]float64) ScaleFunc { return Identity }))
	scales.Register("normalized", fixedArity(0, func([]float64) ScaleFunc { return Normalized }))
	scales.Register("linear", fixedArity(2, func(args []float64) ScaleFunc {
		return Linear(args[0], args[1])
	}))
	scales.Register("exponential", func(args []float64) (ScaleFunc, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		if args[0] <= 0 || args[1] <= 0 {
			return nil, fmt.Errorf("bounds must be positive")
		}
		return Exponential(args[0], args[1]), nil
	})
	scales.Register("toggle", func(args []float64) (ScaleFunc, error) {
		switch len(args) {
		case 0:
			return Toggle(64), nil
		case 1:
			return Toggle(int(args[0])), nil
		}
		return nil, fmt.Errorf("expected at most 1 argument, got %d", len(args))
	})
	scales.Register("steps", func(args []float64) (ScaleFunc, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("expected 3 arguments, got %d", len(args))
		}
		if args[2] <= 0 {
			return nil, fmt.Errorf("step must be positive")
		}
		return Steps(args[0], args[1], args[2]), nil
	})
}

func fixedArity(n int, build func(args []float64) ScaleFunc) registry.ComponentCreator[ScaleFunc, []float64] {
	return func(args []float64) (ScaleFunc, error) {
		if len(args) != n {
			return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
		}
		return build(args), nil
	}
}

// ParseScale builds a scale function from an expression such as `linear(20, 20000)`.
// An empty expression is the identity.
func ParseScale(expr string) (ScaleFunc, error) {
	if expr == "" {
		return Identity, nil
	}
	call, err := scaledsl.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid scale %q: %w", expr, err)
	}
	fn, err := scales.New(call.Name, call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("invalid scale %q: %w", expr, err)
	}
	return fn, nil
}

// ScaleNames lists the functions ParseScale understands.
func ScaleNames() []string {
	return scales.IDs()
}
