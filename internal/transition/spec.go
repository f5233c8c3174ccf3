package transition

import (
	"fmt"
	"math"
	"strings"

	"github.com/satindergrewal/segue/internal/audio"
)

// Type selects the transition algorithm.
type Type int

const (
	Gap Type = iota
	Crossfade
)

func (t Type) String() string {
	switch t {
	case Gap:
		return "gap"
	case Crossfade:
		return "crossfade"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType accepts "gap" or "crossfade".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gap":
		return Gap, nil
	case "crossfade", "xfade":
		return Crossfade, nil
	}
	return 0, fmt.Errorf("unknown transition type %q", s)
}

// MaxBoundaryAdjust caps every section boundary nudge, in beats.
const MaxBoundaryAdjust = 4

// BoundaryAdjust nudges the chosen section boundaries by whole beats.
// Negative moves a boundary earlier, positive later.
type BoundaryAdjust struct {
	FromStart int `json:"from_start"`
	FromEnd   int `json:"from_end"`
	ToStart   int `json:"to_start"`
	ToEnd     int `json:"to_end"`
}

// Values returns the adjustments in (from_start, from_end, to_start, to_end) order.
func (a BoundaryAdjust) Values() [4]int {
	return [4]int{a.FromStart, a.FromEnd, a.ToStart, a.ToEnd}
}

// ParseBoundaryAdjust reads "a,b,c,d".
func ParseBoundaryAdjust(s string) (BoundaryAdjust, error) {
	var a BoundaryAdjust
	if strings.TrimSpace(s) == "" {
		return a, nil
	}
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%d,%d,%d,%d",
		&a.FromStart, &a.FromEnd, &a.ToStart, &a.ToEnd); err != nil {
		return a, fmt.Errorf("boundary adjust %q: want four comma separated integers: %w", s, err)
	}
	return a, nil
}

// Spec describes the transition to build. Construct it with NewGapSpec or
// NewCrossfadeSpec; Build validates it again before use.
type Spec struct {
	Type            Type
	GapBeats        float64
	OverlapBeats    float64
	FadeWindowBeats float64
	FadeBottom      float64
	// StemsToFade lists stems that receive the gap fades. Ignored when the
	// songs carry no stems, in which case the whole mix is faded.
	StemsToFade []string
	Adjust      BoundaryAdjust
	// Shape overrides the curve; ShapeDefault means linear for Gap and
	// equal-power for Crossfade.
	Shape audio.CurveShape
}

// SpecOption tweaks a Spec under construction.
type SpecOption func(*Spec)

// WithAdjust sets the section boundary adjustments.
func WithAdjust(a BoundaryAdjust) SpecOption {
	return func(s *Spec) {
		s.Adjust = a
	}
}

// WithShape overrides the default fade curve.
func WithShape(shape audio.CurveShape) SpecOption {
	return func(s *Spec) {
		s.Shape = shape
	}
}

// WithFadeBottom sets the floor gain reached at the end of a fade.
func WithFadeBottom(bottom float64) SpecOption {
	return func(s *Spec) {
		s.FadeBottom = bottom
	}
}

// NewGapSpec builds and validates a Gap spec.
func NewGapSpec(gapBeats, fadeWindowBeats, fadeBottom float64, stemsToFade []string, opts ...SpecOption) (Spec, error) {
	s := Spec{
		Type:            Gap,
		GapBeats:        gapBeats,
		FadeWindowBeats: fadeWindowBeats,
		FadeBottom:      fadeBottom,
		StemsToFade:     append([]string(nil), stemsToFade...),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s, s.Validate()
}

// NewCrossfadeSpec builds and validates a Crossfade spec. The fade floor
// defaults to 0 so the pair is a true equal-power crossfade.
func NewCrossfadeSpec(overlapBeats float64, opts ...SpecOption) (Spec, error) {
	s := Spec{
		Type:            Crossfade,
		OverlapBeats:    overlapBeats,
		FadeWindowBeats: overlapBeats,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s, s.Validate()
}

// Validate checks ranges. It never corrects a value.
func (s Spec) Validate() error {
	if s.Type != Gap && s.Type != Crossfade {
		return newError(KindInvalidSpec, "transition_type", "unknown transition type %d", int(s.Type))
	}
	beats := []struct {
		name string
		v    float64
	}{
		{"gap_beats", s.GapBeats},
		{"overlap_beats", s.OverlapBeats},
		{"fade_window_beats", s.FadeWindowBeats},
	}
	for _, b := range beats {
		if b.v < 0 || math.IsNaN(b.v) || math.IsInf(b.v, 0) {
			return newError(KindInvalidSpec, b.name, "must be a finite value >= 0, got %v", b.v)
		}
	}
	if s.FadeBottom < 0 || s.FadeBottom > 1 || math.IsNaN(s.FadeBottom) {
		return newError(KindInvalidSpec, "fade_bottom", "must be within [0, 1], got %v", s.FadeBottom)
	}
	names := [4]string{"from_start", "from_end", "to_start", "to_end"}
	for i, v := range s.Adjust.Values() {
		if v < -MaxBoundaryAdjust || v > MaxBoundaryAdjust {
			return newError(KindInvalidSpec, "section_boundary_adjust_beats."+names[i],
				"must be within [-%d, %d], got %d", MaxBoundaryAdjust, MaxBoundaryAdjust, v)
		}
	}
	if s.Shape < audio.ShapeDefault || s.Shape > audio.ShapeSmoothstep {
		return newError(KindInvalidSpec, "fade_shape", "unknown curve shape %d", int(s.Shape))
	}
	return nil
}

// curve resolves ShapeDefault to the per-type default.
func (s Spec) curve() audio.CurveShape {
	if s.Shape != audio.ShapeDefault {
		return s.Shape
	}
	if s.Type == Crossfade {
		return audio.ShapeEqualPower
	}
	return audio.ShapeLinear
}

// fadeSet returns StemsToFade as a set.
func (s Spec) fadeSet() map[string]bool {
	set := make(map[string]bool, len(s.StemsToFade))
	for _, name := range s.StemsToFade {
		set[name] = true
	}
	return set
}
