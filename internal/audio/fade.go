package audio

import (
	"fmt"
	"math"
	"strings"
)

// CurveShape selects the gain law of a fade.
type CurveShape int

const (
	// ShapeDefault lets the caller pick a shape per transition type.
	ShapeDefault CurveShape = iota
	ShapeLinear
	ShapeEqualPower
	ShapeSmoothstep
)

func (s CurveShape) String() string {
	switch s {
	case ShapeLinear:
		return "linear"
	case ShapeEqualPower:
		return "equal_power"
	case ShapeSmoothstep:
		return "smoothstep"
	default:
		return "default"
	}
}

// ParseCurveShape accepts the names produced by CurveShape.String.
func ParseCurveShape(s string) (CurveShape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return ShapeDefault, nil
	case "linear":
		return ShapeLinear, nil
	case "equal_power", "equal-power", "equalpower":
		return ShapeEqualPower, nil
	case "smoothstep", "s-curve":
		return ShapeSmoothstep, nil
	}
	return ShapeDefault, fmt.Errorf("unknown curve shape %q", s)
}

// Direction says whether a fade leaves or approaches full level.
type Direction int

const (
	FadeOut Direction = iota
	FadeIn
)

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Gain evaluates a fade at position t across its window. t < 0 is before
// the window and t > 1 after it: a fade-out is 1.0 before and bottom after,
// a fade-in the reverse.
func Gain(shape CurveShape, dir Direction, t, bottom float64) float64 {
	if t < 0 {
		if dir == FadeOut {
			return 1
		}
		return bottom
	}
	if t > 1 {
		if dir == FadeOut {
			return bottom
		}
		return 1
	}

	span := 1 - bottom
	switch shape {
	case ShapeEqualPower:
		if dir == FadeOut {
			return bottom + span*math.Cos(t*math.Pi/2)
		}
		return bottom + span*math.Sin(t*math.Pi/2)
	case ShapeSmoothstep:
		if dir == FadeOut {
			return 1 - span*Smoothstep(t)
		}
		return bottom + span*Smoothstep(t)
	default:
		if dir == FadeOut {
			return 1 - t*span
		}
		return bottom + t*span
	}
}

// Envelope samples a fade into n per-frame gains. The first gain sits at
// t=0 and the last at t=1, so a fade-out starts at exactly 1.0 and ends at
// exactly bottom. n == 1 is the degenerate step and yields [bottom].
func Envelope(shape CurveShape, dir Direction, n int, bottom float64) []float64 {
	if n <= 0 {
		return nil
	}
	env := make([]float64, n)
	if n == 1 {
		env[0] = bottom
		return env
	}
	last := float64(n - 1)
	for i := range env {
		env[i] = Gain(shape, dir, float64(i)/last, bottom)
	}
	return env
}
