// Package transition builds musical joins between two songs: a tempo-synced
// gap with per-stem fades, or an equal-power crossfade. It works on buffers
// already in memory and performs no I/O; a build is a pure function of its
// inputs and may run concurrently with other builds.
package transition

import (
	"errors"
	"math"
	"sort"

	"github.com/pion/logging"

	"github.com/satindergrewal/segue/internal/audio"
)

// State is a step of a build.
type State int

const (
	StateResolvingSections State = iota
	StateBuilding
	StateAssembled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolvingSections:
		return "resolving_sections"
	case StateBuilding:
		return "building"
	case StateAssembled:
		return "assembled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request names the songs, the sections to join and how.
type Request struct {
	From        *Song
	To          *Song
	FromSection int
	ToSection   int
	Spec        Spec
}

// Builder runs transition builds. It holds no per-build state and is safe
// for concurrent use.
type Builder struct {
	log logging.LeveledLogger
}

// NewBuilder returns a Builder. log may be nil.
func NewBuilder(log logging.LeveledLogger) *Builder {
	return &Builder{log: log}
}

// Build resolves the sections and produces the joining buffer. On failure
// the returned *Error carries the stage that failed and no buffer is
// returned.
func (b *Builder) Build(req Request) (*Result, error) {
	run := &build{req: req, log: b.log}
	res, err := run.execute()
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			te.Stage = run.state
		}
		b.debugf("build failed in %s: %v", run.state, err)
		run.enter(StateFailed)
		return nil, err
	}
	return res, nil
}

func (b *Builder) debugf(format string, args ...any) {
	if b.log != nil {
		b.log.Debugf(format, args...)
	}
}

// build is the state of one invocation.
type build struct {
	req   Request
	log   logging.LeveledLogger
	state State

	fromMap, toMap *TimeMapper
	from, to       SectionRange
}

func (r *build) enter(s State) {
	r.state = s
	if r.log != nil && r.req.From != nil && r.req.To != nil {
		r.log.Debugf("transition %s -> %s: %s", r.req.From.Name(), r.req.To.Name(), s)
	}
}

func (r *build) execute() (*Result, error) {
	r.state = StateResolvingSections
	if err := r.resolve(); err != nil {
		return nil, err
	}

	r.enter(StateBuilding)
	var (
		res *Result
		err error
	)
	switch r.req.Spec.Type {
	case Crossfade:
		res, err = r.crossfade()
	default:
		res, err = r.gap()
	}
	if err != nil {
		return nil, err
	}

	r.enter(StateAssembled)
	res.Metadata["state"] = StateAssembled.String()
	return res, nil
}

// resolve validates every input and resolves both section ranges. Nothing
// is mixed until it succeeds.
func (r *build) resolve() error {
	req := r.req
	if err := req.Spec.Validate(); err != nil {
		return err
	}
	if req.From == nil || req.To == nil {
		return newError(KindInvalidSpec, "songs", "both songs are required")
	}
	if err := req.From.validate("from"); err != nil {
		return err
	}
	if err := req.To.validate("to"); err != nil {
		return err
	}
	if req.From.SampleRate != req.To.SampleRate {
		return newError(KindSampleRateMismatch, "sample_rate",
			"%q is %d Hz, %q is %d Hz", req.From.Name(), req.From.SampleRate, req.To.Name(), req.To.SampleRate)
	}
	if req.From.Channels != req.To.Channels {
		return newError(KindChannelMismatch, "channels",
			"%q has %d channels, %q has %d", req.From.Name(), req.From.Channels, req.To.Name(), req.To.Channels)
	}
	if req.Spec.Type == Gap {
		for _, song := range []*Song{req.From, req.To} {
			if !song.HasStems() {
				continue
			}
			for _, name := range req.Spec.StemsToFade {
				if _, ok := song.Stems[name]; !ok {
					return newError(KindStemMismatch, "stems_to_fade",
						"%q has no %q stem (has %v)", song.Name(), name, song.Stems.Names())
				}
			}
		}
	}

	var err error
	if r.fromMap, err = NewTimeMapper(req.From); err != nil {
		return err
	}
	if r.toMap, err = NewTimeMapper(req.To); err != nil {
		return err
	}

	adj := req.Spec.Adjust
	if r.from, err = ExtractSection(req.From, r.fromMap, req.FromSection, adj.FromStart, adj.FromEnd); err != nil {
		return err
	}
	if r.to, err = ExtractSection(req.To, r.toMap, req.ToSection, adj.ToStart, adj.ToEnd); err != nil {
		return err
	}
	return nil
}

// gap builds [A tail faded][silence][B head faded]. The silence is counted
// in beats of the destination song. A zero fade window leaves a one-frame
// step to the floor on each side.
func (r *build) gap() (*Result, error) {
	spec := r.req.Spec
	from, to := r.req.From, r.req.To
	sr := from.SampleRate
	tol := 0.5 / float64(sr)

	tailStartSec, _ := fadeBounds(r.fromMap, r.from.EndSeconds, spec.FadeWindowBeats, audio.FadeOut)
	if tailStartSec < r.from.StartSeconds-tol {
		return nil, r.tooShort("fade_window_beats", "fade window", spec.FadeWindowBeats, from, r.from)
	}
	_, headEndSec := fadeBounds(r.toMap, r.to.StartSeconds, spec.FadeWindowBeats, audio.FadeIn)
	if headEndSec > r.to.EndSeconds+tol {
		return nil, r.tooShort("fade_window_beats", "fade window", spec.FadeWindowBeats, to, r.to)
	}

	shape := spec.curve()
	fade := spec.fadeSet()
	outEnv := FadeCurve(r.fromMap, r.from.EndSeconds, spec.FadeWindowBeats, shape, audio.FadeOut, spec.FadeBottom)
	inEnv := FadeCurve(r.toMap, r.to.StartSeconds, spec.FadeWindowBeats, shape, audio.FadeIn, spec.FadeBottom)

	tailEnd := r.from.EndSample
	tailStart := max(tailEnd-len(outEnv), r.from.StartSample)
	headStart := r.to.StartSample
	headEnd := min(headStart+len(inEnv), r.to.EndSample)
	outEnv = outEnv[len(outEnv)-(tailEnd-tailStart):]
	inEnv = inEnv[:headEnd-headStart]

	tail, err := fadedWindow(from, tailStart, tailEnd, outEnv, fade)
	if err != nil {
		return nil, err
	}
	head, err := fadedWindow(to, headStart, headEnd, inEnv, fade)
	if err != nil {
		return nil, err
	}

	gapSeconds := spec.GapBeats * r.toMap.BeatSeconds()
	gapFrames := int(math.Round(gapSeconds * float64(sr)))
	silence := audio.Silence(gapFrames, sr, from.Channels)

	out := audio.NewBuffer(tail.Frames()+gapFrames+head.Frames(), sr, from.Channels)
	n := copy(out.Samples, tail.Samples)
	n += copy(out.Samples[n:], silence.Samples)
	copy(out.Samples[n:], head.Samples)

	res := r.result(out)
	res.FromCut = tailStart
	res.ToResume = headEnd
	res.TailFrames = tail.Frames()
	res.GapFrames = gapFrames
	res.HeadFrames = head.Frames()

	md := res.Metadata
	md["gap_beats"] = spec.GapBeats
	md["gap_seconds"] = float64(gapFrames) / float64(sr)
	md["gap_samples"] = gapFrames
	md["gap_anchor"] = "to"
	md["gap_anchor_tempo_bpm"] = r.toMap.TempoBPM()
	md["tail_samples"] = res.TailFrames
	md["head_samples"] = res.HeadFrames
	if from.HasStems() || to.HasStems() {
		md["stems_faded"] = sortedKeys(fade)
	} else {
		md["stems_faded"] = []string{"mix"}
	}
	return res, nil
}

// crossfade overlaps A's tail with B's head for overlap_beats counted at the
// mean of both tempos, so both sides span the same number of frames.
func (r *build) crossfade() (*Result, error) {
	spec := r.req.Spec
	from, to := r.req.From, r.req.To
	sr := from.SampleRate

	anchor := (r.fromMap.TempoBPM() + r.toMap.TempoBPM()) / 2
	overlapSeconds := spec.OverlapBeats * 60.0 / anchor
	n := int(math.Round(overlapSeconds * float64(sr)))

	if n > r.from.Frames() {
		return nil, r.tooShort("overlap_beats", "overlap", spec.OverlapBeats, from, r.from)
	}
	if n > r.to.Frames() {
		return nil, r.tooShort("overlap_beats", "overlap", spec.OverlapBeats, to, r.to)
	}

	tailStart := r.from.EndSample - n
	headEnd := r.to.StartSample + n

	tail, err := wholeMix(from, tailStart, r.from.EndSample)
	if err != nil {
		return nil, err
	}
	head, err := wholeMix(to, r.to.StartSample, headEnd)
	if err != nil {
		return nil, err
	}

	shape := spec.curve()
	out, err := audio.Scaled(tail, audio.Envelope(shape, audio.FadeOut, n, spec.FadeBottom))
	if err != nil {
		return nil, newError(KindStemMismatch, "envelope", "%v", err)
	}
	in, err := audio.Scaled(head, audio.Envelope(shape, audio.FadeIn, n, spec.FadeBottom))
	if err != nil {
		return nil, newError(KindStemMismatch, "envelope", "%v", err)
	}
	if err := audio.AddInto(out, in); err != nil {
		return nil, newError(KindChannelMismatch, "overlap", "%v", err)
	}

	res := r.result(out)
	res.FromCut = tailStart
	res.ToResume = headEnd
	res.TailFrames = n
	res.HeadFrames = n

	md := res.Metadata
	md["overlap_beats"] = spec.OverlapBeats
	md["overlap_seconds"] = float64(n) / float64(sr)
	md["overlap_samples"] = n
	md["overlap_anchor_tempo_bpm"] = anchor
	return res, nil
}

func (r *build) tooShort(param, what string, beats float64, song *Song, rng SectionRange) *Error {
	return newError(KindSectionTooShort, param,
		"%s of %g beats exceeds section %q of %q, which is %.2f beats long",
		what, beats, rng.Label, song.Name(), rng.Beats())
}

// result wraps buf with the metadata common to both algorithms.
func (r *build) result(buf *audio.Buffer) *Result {
	spec := r.req.Spec
	res := &Result{
		Buffer:          buf,
		SampleRate:      buf.SampleRate,
		Channels:        buf.Channels,
		DurationSeconds: buf.Duration(),
		Type:            spec.Type,
		From:            r.from,
		To:              r.to,
	}
	res.Metadata = Metadata{
		"transition_type":           spec.Type.String(),
		"from_song":                 r.req.From.Name(),
		"to_song":                   r.req.To.Name(),
		"from_section":              r.from.Label,
		"to_section":                r.to.Label,
		"from_section_index":        r.from.Index,
		"to_section_index":          r.to.Index,
		"from_range_seconds":        [2]float64{r.from.StartSeconds, r.from.EndSeconds},
		"to_range_seconds":          [2]float64{r.to.StartSeconds, r.to.EndSeconds},
		"boundary_adjust_requested": spec.Adjust.Values(),
		"boundary_shift_seconds":    [4]float64{r.from.ShiftStart, r.from.ShiftEnd, r.to.ShiftStart, r.to.ShiftEnd},
		"fade_window_beats":         spec.FadeWindowBeats,
		"fade_bottom":               spec.FadeBottom,
		"fade_shape":                spec.curve().String(),
		"samples_per_beat_from":     r.from.SamplesPerBeat,
		"samples_per_beat_to":       r.to.SamplesPerBeat,
		"sample_rate":               buf.SampleRate,
		"channels":                  buf.Channels,
		"duration_seconds":          buf.Duration(),
	}
	return res
}

func sortedKeys(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
