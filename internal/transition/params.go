package transition

import "github.com/satindergrewal/segue/internal/audio"

// Params is the serializable form of a Spec, used for persistence and the
// HTTP API.
type Params struct {
	Type            string         `json:"type"`
	GapBeats        float64        `json:"gap_beats,omitempty"`
	OverlapBeats    float64        `json:"overlap_beats,omitempty"`
	FadeWindowBeats float64        `json:"fade_window_beats,omitempty"`
	FadeBottom      float64        `json:"fade_bottom"`
	StemsToFade     []string       `json:"stems_to_fade,omitempty"`
	Adjust          BoundaryAdjust `json:"boundary_adjust"`
	Shape           string         `json:"fade_shape,omitempty"`
}

// Params returns the serializable form of s.
func (s Spec) Params() Params {
	p := Params{
		Type:            s.Type.String(),
		GapBeats:        s.GapBeats,
		OverlapBeats:    s.OverlapBeats,
		FadeWindowBeats: s.FadeWindowBeats,
		FadeBottom:      s.FadeBottom,
		StemsToFade:     append([]string(nil), s.StemsToFade...),
		Adjust:          s.Adjust,
	}
	if s.Shape != audio.ShapeDefault {
		p.Shape = s.Shape.String()
	}
	return p
}

// Spec parses and validates p.
func (p Params) Spec() (Spec, error) {
	typ, err := ParseType(p.Type)
	if err != nil {
		return Spec{}, newError(KindInvalidSpec, "transition_type", "%v", err)
	}
	shape, err := audio.ParseCurveShape(p.Shape)
	if err != nil {
		return Spec{}, newError(KindInvalidSpec, "fade_shape", "%v", err)
	}
	opts := []SpecOption{WithAdjust(p.Adjust), WithShape(shape)}
	if typ == Crossfade {
		opts = append(opts, WithFadeBottom(p.FadeBottom))
		return NewCrossfadeSpec(p.OverlapBeats, opts...)
	}
	return NewGapSpec(p.GapBeats, p.FadeWindowBeats, p.FadeBottom, p.StemsToFade, opts...)
}
