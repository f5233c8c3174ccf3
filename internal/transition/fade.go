package transition

import "github.com/satindergrewal/segue/internal/audio"

// FadeCurve returns the per-frame gains of a fade spanning windowBeats of
// the mapper's song, anchored at ref: a fade-out ends at ref, a fade-in
// starts there. A zero-beat window is a single-frame step to bottom.
func FadeCurve(m *TimeMapper, ref, windowBeats float64, shape audio.CurveShape, dir audio.Direction, bottom float64) []float64 {
	if windowBeats == 0 {
		return audio.Envelope(shape, dir, 1, bottom)
	}
	start, end := fadeBounds(m, ref, windowBeats, dir)
	return audio.Envelope(shape, dir, m.ToSample(end)-m.ToSample(start), bottom)
}

// fadeBounds returns the unclamped window in seconds.
func fadeBounds(m *TimeMapper, ref, windowBeats float64, dir audio.Direction) (start, end float64) {
	if dir == audio.FadeOut {
		return m.offset(ref, -windowBeats), ref
	}
	return ref, m.offset(ref, windowBeats)
}
