package main

import (
	"flag"
	"strings"

	"github.com/satindergrewal/segue/internal/config"
	"github.com/satindergrewal/segue/internal/transition"
)

// defaultParams are the transition parameters a request starts from.
func defaultParams(cfg config.Config) transition.Params {
	return transition.Params{
		Type:            transition.Gap.String(),
		GapBeats:        cfg.GapBeats,
		OverlapBeats:    cfg.OverlapBeats,
		FadeWindowBeats: cfg.FadeWindowBeats,
		FadeBottom:      cfg.FadeBottom,
		StemsToFade:     append([]string(nil), cfg.StemsToFade...),
	}
}

// paramFlags registers the transition flags on fs and returns a function
// producing the resulting Params after fs.Parse.
func paramFlags(fs *flag.FlagSet, cfg config.Config) func() (transition.Params, error) {
	p := defaultParams(cfg)
	fs.StringVar(&p.Type, "type", p.Type, "transition type: gap or crossfade")
	fs.Float64Var(&p.GapBeats, "gap", p.GapBeats, "silent gap length in beats")
	fs.Float64Var(&p.FadeWindowBeats, "fade", p.FadeWindowBeats, "fade window in beats on each side of the gap")
	fs.Float64Var(&p.FadeBottom, "bottom", p.FadeBottom, "gain floor reached by the gap fades")
	fs.Float64Var(&p.OverlapBeats, "overlap", p.OverlapBeats, "crossfade overlap in beats")
	fs.StringVar(&p.Shape, "shape", "", "fade curve: linear, equal-power or smoothstep (default by type)")
	stems := fs.String("stems", strings.Join(p.StemsToFade, ","), `comma separated stems to fade, or "none"`)
	adjust := fs.String("adjust", "", "section boundary nudges in beats: from_start,from_end,to_start,to_end")

	return func() (transition.Params, error) {
		out := p
		out.StemsToFade = nil
		if *stems != "none" {
			for _, s := range strings.Split(*stems, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out.StemsToFade = append(out.StemsToFade, s)
				}
			}
		}
		a, err := transition.ParseBoundaryAdjust(*adjust)
		if err != nil {
			return out, err
		}
		out.Adjust = a
		bottomSet := false
		fs.Visit(func(f *flag.Flag) {
			bottomSet = bottomSet || f.Name == "bottom"
		})
		out = forType(out, bottomSet)
		_, err = out.Spec()
		return out, err
	}
}

// forType drops the configured gap floor from crossfades, which reach
// silence unless a floor was asked for explicitly.
func forType(p transition.Params, bottomSet bool) transition.Params {
	if t, err := transition.ParseType(p.Type); err == nil && t == transition.Crossfade && !bottomSet {
		p.FadeBottom = 0
	}
	return p
}
