package transition

import (
	"github.com/satindergrewal/segue/internal/audio"
)

// MixStems scales every stem named in fade by env and sums all stems into
// one buffer. Stems not in fade pass through at unity. Stems are summed in
// name order so repeated builds are bit-identical. The sum is not clipped.
func MixStems(stems StemSet, fade map[string]bool, env []float64) (*audio.Buffer, error) {
	if len(stems) == 0 {
		return nil, newError(KindStemMismatch, "stems", "no stems to mix")
	}
	names := stems.Names()
	for name := range fade {
		if _, ok := stems[name]; !ok {
			return nil, newError(KindStemMismatch, "stems_to_fade",
				"stem %q requested but the stem set only has %v", name, names)
		}
	}

	first := stems[names[0]]
	if first == nil {
		return nil, newError(KindStemMismatch, "stems."+names[0], "stem buffer is missing")
	}
	for _, name := range names[1:] {
		b := stems[name]
		switch {
		case b == nil:
			return nil, newError(KindStemMismatch, "stems."+name, "stem buffer is missing")
		case b.SampleRate != first.SampleRate:
			return nil, newError(KindStemMismatch, "stems."+name,
				"stem is %d Hz, %q is %d Hz", b.SampleRate, names[0], first.SampleRate)
		case b.Channels != first.Channels:
			return nil, newError(KindStemMismatch, "stems."+name,
				"stem has %d channels, %q has %d", b.Channels, names[0], first.Channels)
		case b.Frames() != first.Frames():
			return nil, newError(KindStemMismatch, "stems."+name,
				"stem has %d frames, %q has %d", b.Frames(), names[0], first.Frames())
		}
	}
	if len(fade) > 0 && len(env) != first.Frames() {
		return nil, newError(KindStemMismatch, "envelope",
			"envelope has %d gains for %d frames", len(env), first.Frames())
	}

	out := audio.NewBuffer(first.Frames(), first.SampleRate, first.Channels)
	for _, name := range names {
		src := stems[name]
		if fade[name] {
			scaled, err := audio.Scaled(src, env)
			if err != nil {
				return nil, newError(KindStemMismatch, "stems."+name, "%v", err)
			}
			src = scaled
		}
		if err := audio.AddInto(out, src); err != nil {
			return nil, newError(KindStemMismatch, "stems."+name, "%v", err)
		}
	}
	return out, nil
}

// SumStems recombines stems without any gain change.
func SumStems(stems StemSet) (*audio.Buffer, error) {
	return MixStems(stems, nil, nil)
}

// sliceStems returns views of every stem over frames [start, end).
func sliceStems(stems StemSet, start, end int) (StemSet, error) {
	out := make(StemSet, len(stems))
	for name, b := range stems {
		if b == nil {
			return nil, newError(KindStemMismatch, "stems."+name, "stem buffer is missing")
		}
		v, err := b.Slice(start, end)
		if err != nil {
			return nil, newError(KindStemMismatch, "stems."+name, "%v", err)
		}
		out[name] = v
	}
	return out, nil
}

// wholeMix returns the song's full mix over [start, end): the stem sum when
// stems are attached, otherwise a copy of the mix buffer.
func wholeMix(song *Song, start, end int) (*audio.Buffer, error) {
	if song.HasStems() {
		window, err := sliceStems(song.Stems, start, end)
		if err != nil {
			return nil, err
		}
		return SumStems(window)
	}
	v, err := song.Mix.Slice(start, end)
	if err != nil {
		return nil, newError(KindDegenerateSection, "range", "%v", err)
	}
	return v.Clone(), nil
}

// fadedWindow applies env over [start, end) of song. With stems only the
// stems in fade are shaped; without stems the whole mix is.
func fadedWindow(song *Song, start, end int, env []float64, fade map[string]bool) (*audio.Buffer, error) {
	if song.HasStems() {
		window, err := sliceStems(song.Stems, start, end)
		if err != nil {
			return nil, err
		}
		return MixStems(window, fade, env)
	}
	v, err := song.Mix.Slice(start, end)
	if err != nil {
		return nil, newError(KindDegenerateSection, "range", "%v", err)
	}
	out, err := audio.Scaled(v, env)
	if err != nil {
		return nil, newError(KindStemMismatch, "envelope", "%v", err)
	}
	return out, nil
}
