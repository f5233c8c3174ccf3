package transition

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/pion/logging"

	"github.com/satindergrewal/segue/internal/audio"
)

// --- helpers ---

func constBuffer(frames, sampleRate, channels int, level float64) *audio.Buffer {
	b := audio.NewBuffer(frames, sampleRate, channels)
	for i := range b.Samples {
		b.Samples[i] = level
	}
	return b
}

// mixSong returns a mono song whose mix holds a constant level.
func mixSong(id string, bpm float64, sampleRate int, seconds, level float64, sections ...Section) *Song {
	frames := int(math.Round(seconds * float64(sampleRate)))
	return &Song{
		ID:         id,
		TempoBPM:   bpm,
		SampleRate: sampleRate,
		Channels:   1,
		Sections:   sections,
		Mix:        constBuffer(frames, sampleRate, 1, level),
	}
}

// stemSong returns a mono song with one constant-level buffer per stem.
func stemSong(id string, bpm float64, sampleRate int, seconds float64, levels map[string]float64, sections ...Section) *Song {
	frames := int(math.Round(seconds * float64(sampleRate)))
	stems := make(StemSet, len(levels))
	for name, level := range levels {
		stems[name] = constBuffer(frames, sampleRate, 1, level)
	}
	return &Song{
		ID:         id,
		TempoBPM:   bpm,
		SampleRate: sampleRate,
		Channels:   1,
		Sections:   sections,
		Stems:      stems,
	}
}

// swingGrid lays beats from 0 with the given repeating intervals, stopping
// before until.
func swingGrid(until float64, intervals ...float64) []float64 {
	grid := []float64{0}
	t := 0.0
	for i := 0; ; i++ {
		t += intervals[i%len(intervals)]
		if t >= until {
			return grid
		}
		grid = append(grid, t)
	}
}

// stereoSong returns a 1 kHz stereo song with constant left and right levels.
func stereoSong(id string, bpm float64, grid []float64, seconds, left, right float64, sections ...Section) *Song {
	mix := audio.NewBuffer(int(math.Round(seconds*1000)), 1000, 2)
	for i := 0; i < len(mix.Samples); i += 2 {
		mix.Samples[i] = left
		mix.Samples[i+1] = right
	}
	return &Song{
		ID:         id,
		TempoBPM:   bpm,
		BeatGrid:   grid,
		SampleRate: 1000,
		Channels:   2,
		Sections:   sections,
		Mix:        mix,
	}
}

// gridSongs returns two stereo songs on uneven beat grids. a declares 120
// BPM with beats 0.4, 0.5, 0.6s apart; b declares no tempo and its beats
// are 0.7, 0.5, 0.6s apart, a mean of 100 BPM. Right is half of left.
func gridSongs() (a, b *Song) {
	ga := swingGrid(20, 0.4, 0.5, 0.6)
	a = stereoSong("a", 120, ga, 20, 0.8, 0.4,
		Section{"intro", 0, ga[15]}, Section{"chorus", ga[15], ga[27]}, Section{"outro", ga[27], 20})
	gb := swingGrid(17.7, 0.7, 0.5, 0.6)
	b = stereoSong("b", 0, gb, 18, 0.6, 0.3,
		Section{"intro", 0, gb[6]}, Section{"verse", gb[6], gb[18]}, Section{"outro", gb[18], 18})
	return a, b
}

// checkChannelsTrack fails unless every right sample is half its left one,
// the ratio both sources were built with.
func checkChannelsTrack(t *testing.T, buf *audio.Buffer) {
	t.Helper()
	if buf.Channels != 2 {
		t.Fatalf("channels = %d, want 2", buf.Channels)
	}
	for i := 0; i < len(buf.Samples); i += 2 {
		l, r := buf.Samples[i], buf.Samples[i+1]
		if !near(r, l/2, 1e-12) {
			t.Fatalf("frame %d: L=%v R=%v, channels scaled differently", i/2, l, r)
		}
	}
}

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("transition")
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

var fourStems = map[string]float64{"vocals": 0.1, "bass": 0.2, "drums": 0.3, "other": 0.4}

func scenarioSongs(levels map[string]float64) (*Song, *Song) {
	a := stemSong("song-a", 120, 44100, 17, levels,
		Section{"intro", 0, 10}, Section{"chorus", 10, 15}, Section{"outro", 15, 17})
	b := stemSong("song-b", 120, 44100, 12, levels,
		Section{"intro", 0, 4}, Section{"verse", 4, 9}, Section{"outro", 9, 12})
	return a, b
}

func scenarioSpec(t *testing.T) Spec {
	t.Helper()
	spec, err := NewGapSpec(1, 8, 0.33, []string{"bass", "drums", "other"})
	if err != nil {
		t.Fatalf("NewGapSpec: %v", err)
	}
	return spec
}

// --- gap ---

func TestGapChorusToVerse(t *testing.T) {
	a, b := scenarioSongs(fourStems)
	res, err := NewBuilder(testLogger()).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: scenarioSpec(t)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if res.TailFrames != 176400 {
		t.Errorf("tail = %d frames, want 176400 (4.0s)", res.TailFrames)
	}
	if res.GapFrames != 22050 {
		t.Errorf("gap = %d frames, want 22050 (0.5s)", res.GapFrames)
	}
	if res.HeadFrames != 176400 {
		t.Errorf("head = %d frames, want 176400 (4.0s)", res.HeadFrames)
	}
	if res.Frames() != res.TailFrames+res.GapFrames+res.HeadFrames {
		t.Errorf("output %d frames != tail+gap+head %d", res.Frames(), res.TailFrames+res.GapFrames+res.HeadFrames)
	}
	if !near(res.DurationSeconds, 8.5, 1e-9) {
		t.Errorf("duration = %v, want 8.5", res.DurationSeconds)
	}
	if res.SampleRate != 44100 || res.Channels != 1 {
		t.Errorf("format = %d Hz/%d ch, want 44100/1", res.SampleRate, res.Channels)
	}

	s := res.Buffer.Samples
	floor := 0.1 + 0.33*(0.2+0.3+0.4)
	if !near(s[0], 1.0, 1e-9) {
		t.Errorf("tail start = %v, want full level 1.0", s[0])
	}
	if !near(s[res.TailFrames-1], floor, 1e-9) {
		t.Errorf("tail end = %v, want %v", s[res.TailFrames-1], floor)
	}
	for i := res.TailFrames; i < res.TailFrames+res.GapFrames; i++ {
		if s[i] != 0 {
			t.Fatalf("gap sample %d = %v, want 0", i, s[i])
		}
	}
	headStart := res.TailFrames + res.GapFrames
	if !near(s[headStart], floor, 1e-9) {
		t.Errorf("head start = %v, want %v", s[headStart], floor)
	}
	if !near(s[len(s)-1], 1.0, 1e-9) {
		t.Errorf("head end = %v, want 1.0", s[len(s)-1])
	}
}

func TestGapLeavesVocalsUntouched(t *testing.T) {
	a, b := scenarioSongs(fourStems)
	spec := scenarioSpec(t)
	with, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if err != nil {
		t.Fatalf("Build with vocals: %v", err)
	}

	mute := map[string]float64{"vocals": 0, "bass": 0.2, "drums": 0.3, "other": 0.4}
	a2, b2 := scenarioSongs(mute)
	without, err := NewBuilder(nil).Build(Request{From: a2, To: b2, FromSection: 1, ToSection: 1, Spec: spec})
	if err != nil {
		t.Fatalf("Build without vocals: %v", err)
	}

	gapStart, gapEnd := with.TailFrames, with.TailFrames+with.GapFrames
	for i := range with.Buffer.Samples {
		diff := with.Buffer.Samples[i] - without.Buffer.Samples[i]
		want := 0.1
		if i >= gapStart && i < gapEnd {
			want = 0
		}
		if !near(diff, want, 1e-9) {
			t.Fatalf("frame %d: vocal contribution %v, want %v", i, diff, want)
		}
	}
}

func TestGapWithoutStemsFadesWholeMix(t *testing.T) {
	a := mixSong("a", 120, 1000, 20, 1, Section{"intro", 0, 10}, Section{"chorus", 10, 15}, Section{"outro", 15, 20})
	b := mixSong("b", 120, 1000, 20, 1, Section{"intro", 0, 4}, Section{"verse", 4, 9}, Section{"outro", 9, 20})
	spec, err := NewGapSpec(2, 4, 0.5, []string{"bass"})
	if err != nil {
		t.Fatalf("NewGapSpec: %v", err)
	}

	res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.TailFrames != 2000 || res.GapFrames != 1000 || res.HeadFrames != 2000 {
		t.Errorf("parts = %d/%d/%d, want 2000/1000/2000", res.TailFrames, res.GapFrames, res.HeadFrames)
	}
	if got := res.Buffer.Samples[res.TailFrames-1]; !near(got, 0.5, 1e-12) {
		t.Errorf("tail end = %v, want 0.5", got)
	}
	faded, _ := res.Metadata["stems_faded"].([]string)
	if len(faded) != 1 || faded[0] != "mix" {
		t.Errorf("stems_faded = %v, want [mix]", res.Metadata["stems_faded"])
	}
}

func TestGapAnchoredToDestinationTempo(t *testing.T) {
	a := mixSong("a", 120, 1000, 20, 1, Section{"intro", 0, 10}, Section{"chorus", 10, 15}, Section{"outro", 15, 20})
	b := mixSong("b", 90, 1000, 20, 1, Section{"intro", 0, 4}, Section{"verse", 4, 12}, Section{"outro", 12, 20})
	spec, err := NewGapSpec(1, 4, 0.33, nil)
	if err != nil {
		t.Fatalf("NewGapSpec: %v", err)
	}

	res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.GapFrames != 667 {
		t.Errorf("gap = %d frames, want 667 (one beat at 90 BPM)", res.GapFrames)
	}
	// 4 beats at 120 BPM on the way out, 4 beats at 90 BPM on the way in.
	if res.TailFrames != 2000 {
		t.Errorf("tail = %d frames, want 2000", res.TailFrames)
	}
	if res.HeadFrames != 2667 {
		t.Errorf("head = %d frames, want 2667", res.HeadFrames)
	}
	if res.Metadata["gap_anchor"] != "to" {
		t.Errorf("gap_anchor = %v, want to", res.Metadata["gap_anchor"])
	}
}

func TestGapFadeWindowLongerThanSection(t *testing.T) {
	a := mixSong("a", 120, 1000, 17, 1, Section{"intro", 0, 10}, Section{"bridge", 10, 12.5}, Section{"outro", 12.5, 17})
	b := mixSong("b", 120, 1000, 12, 1, Section{"intro", 0, 4}, Section{"verse", 4, 9}, Section{"outro", 9, 12})
	spec, err := NewGapSpec(1, 8, 0.33, nil)
	if err != nil {
		t.Fatalf("NewGapSpec: %v", err)
	}

	res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if res != nil {
		t.Error("expected no result on failure")
	}
	if !errors.Is(err, ErrSectionTooShort) {
		t.Fatalf("err = %v, want SectionTooShort", err)
	}
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("err is %T, want *Error", err)
	}
	if te.Stage != StateBuilding {
		t.Errorf("stage = %s, want building", te.Stage)
	}
	if te.Param != "fade_window_beats" {
		t.Errorf("param = %q, want fade_window_beats", te.Param)
	}
	if !strings.Contains(te.Msg, "5.00 beats") {
		t.Errorf("message %q does not report the section length", te.Msg)
	}
}

func TestGapMissingStemToFade(t *testing.T) {
	levels := map[string]float64{"vocals": 0.5, "bass": 0.5}
	a := stemSong("a", 120, 1000, 20, levels, Section{"intro", 0, 10}, Section{"chorus", 10, 20})
	b := stemSong("b", 120, 1000, 20, levels, Section{"intro", 0, 10}, Section{"verse", 10, 20})
	spec, err := NewGapSpec(1, 4, 0.33, []string{"drums"})
	if err != nil {
		t.Fatalf("NewGapSpec: %v", err)
	}

	_, err = NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if !errors.Is(err, ErrStemMismatch) {
		t.Fatalf("err = %v, want StemMismatch", err)
	}
}

func TestGapFollowsBeatGrid(t *testing.T) {
	a, b := gridSongs()
	spec, err := NewGapSpec(1, 4, 0.5, nil)
	if err != nil {
		t.Fatalf("NewGapSpec: %v", err)
	}

	res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Four grid beats back from 13.5s land on 11.4s, not the 11.5s the
	// declared tempo gives; four forward from 3.6s land on 6.1s.
	if res.TailFrames != 2100 {
		t.Errorf("tail = %d frames, want 2100", res.TailFrames)
	}
	if res.HeadFrames != 2500 {
		t.Errorf("head = %d frames, want 2500", res.HeadFrames)
	}
	if res.GapFrames != 600 {
		t.Errorf("gap = %d frames, want 600 (one mean beat of b)", res.GapFrames)
	}
	if res.FromCut != 11400 || res.ToResume != 6100 {
		t.Errorf("cut/resume = %d/%d, want 11400/6100", res.FromCut, res.ToResume)
	}

	s := res.Buffer.Samples
	if !near(s[0], 0.8, 1e-12) || !near(s[1], 0.4, 1e-12) {
		t.Errorf("first frame = %v/%v, want 0.8/0.4", s[0], s[1])
	}
	tailEnd := 2 * (res.TailFrames - 1)
	if !near(s[tailEnd], 0.4, 1e-9) || !near(s[tailEnd+1], 0.2, 1e-9) {
		t.Errorf("last tail frame = %v/%v, want 0.4/0.2", s[tailEnd], s[tailEnd+1])
	}
	headStart := 2 * (res.TailFrames + res.GapFrames)
	if !near(s[headStart], 0.3, 1e-9) || !near(s[headStart+1], 0.15, 1e-9) {
		t.Errorf("first head frame = %v/%v, want 0.3/0.15", s[headStart], s[headStart+1])
	}
	checkChannelsTrack(t, res.Buffer)
}

func TestGapGridSectionTooShort(t *testing.T) {
	a, b := gridSongs()
	gb := b.BeatGrid
	// Two mean beats from 4.8s end at 6.0s, but the grid reaches 6.1s.
	b.Sections = []Section{{"intro", 0, gb[8]}, {"tag", gb[8], 6.0}, {"outro", 6.0, 18}}
	spec, err := NewGapSpec(1, 2, 0.5, nil)
	if err != nil {
		t.Fatalf("NewGapSpec: %v", err)
	}

	_, err = NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if !errors.Is(err, ErrSectionTooShort) {
		t.Fatalf("err = %v, want SectionTooShort", err)
	}
	var te *Error
	if errors.As(err, &te) && te.Param != "fade_window_beats" {
		t.Errorf("param = %q, want fade_window_beats", te.Param)
	}
}

func TestGapZeroFadeWindowIsStep(t *testing.T) {
	a := mixSong("a", 120, 1000, 20, 1, Section{"intro", 0, 10}, Section{"chorus", 10, 20})
	b := mixSong("b", 120, 1000, 20, 1, Section{"intro", 0, 10}, Section{"verse", 10, 20})
	spec, err := NewGapSpec(1, 0, 0.25, nil)
	if err != nil {
		t.Fatalf("NewGapSpec: %v", err)
	}

	res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 0, ToSection: 1, Spec: spec})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.TailFrames != 1 || res.GapFrames != 500 || res.HeadFrames != 1 {
		t.Fatalf("parts = %d/%d/%d, want 1/500/1", res.TailFrames, res.GapFrames, res.HeadFrames)
	}
	s := res.Buffer.Samples
	if s[0] != 0.25 || s[len(s)-1] != 0.25 {
		t.Errorf("step frames = %v, %v; want 0.25 both", s[0], s[len(s)-1])
	}
	if res.FromCut != 9999 || res.ToResume != 10001 {
		t.Errorf("cut/resume = %d/%d, want 9999/10001", res.FromCut, res.ToResume)
	}
}

// --- crossfade ---

func TestCrossfadeOnBeatGridStereo(t *testing.T) {
	a, b := gridSongs()
	spec, err := NewCrossfadeSpec(4)
	if err != nil {
		t.Fatalf("NewCrossfadeSpec: %v", err)
	}

	res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Four beats at the mean of 120 and 100 BPM.
	if res.Frames() != 2182 {
		t.Errorf("overlap = %d frames, want 2182", res.Frames())
	}
	if res.FromCut != 13500-res.Frames() || res.ToResume != 3600+res.Frames() {
		t.Errorf("cut/resume = %d/%d for %d frames", res.FromCut, res.ToResume, res.Frames())
	}

	s := res.Buffer.Samples
	if !near(s[0], 0.8, 1e-12) || !near(s[1], 0.4, 1e-12) {
		t.Errorf("first frame = %v/%v, want a only (0.8/0.4)", s[0], s[1])
	}
	if !near(s[len(s)-2], 0.6, 1e-9) || !near(s[len(s)-1], 0.3, 1e-9) {
		t.Errorf("last frame = %v/%v, want b only (0.6/0.3)", s[len(s)-2], s[len(s)-1])
	}
	checkChannelsTrack(t, res.Buffer)
}

func TestCrossfadeLength(t *testing.T) {
	a := mixSong("a", 120, 1000, 30, 1, Section{"intro", 0, 10}, Section{"chorus", 10, 20}, Section{"outro", 20, 30})
	b := mixSong("b", 100, 1000, 30, 0.5, Section{"intro", 0, 10}, Section{"verse", 10, 20}, Section{"outro", 20, 30})
	spec, err := NewCrossfadeSpec(4)
	if err != nil {
		t.Fatalf("NewCrossfadeSpec: %v", err)
	}

	res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := 4 * 60.0 / 110.0 * 1000
	if math.Abs(float64(res.Frames())-want) > 1 {
		t.Errorf("overlap = %d frames, want %.2f +-1", res.Frames(), want)
	}
	if res.FromCut != 20000-res.Frames() {
		t.Errorf("FromCut = %d, want %d", res.FromCut, 20000-res.Frames())
	}
	if res.ToResume != 10000+res.Frames() {
		t.Errorf("ToResume = %d, want %d", res.ToResume, 10000+res.Frames())
	}

	s := res.Buffer.Samples
	if !near(s[0], 1.0, 1e-12) {
		t.Errorf("first frame = %v, want only song a (1.0)", s[0])
	}
	if !near(s[len(s)-1], 0.5, 1e-12) {
		t.Errorf("last frame = %v, want only song b (0.5)", s[len(s)-1])
	}
	if res.Metadata["overlap_anchor_tempo_bpm"] != 110.0 {
		t.Errorf("anchor tempo = %v, want 110", res.Metadata["overlap_anchor_tempo_bpm"])
	}
}

func TestCrossfadeSampleRateMismatch(t *testing.T) {
	a := mixSong("a", 120, 44100, 2, 1, Section{"intro", 0, 1}, Section{"chorus", 1, 2})
	b := mixSong("b", 120, 48000, 2, 1, Section{"intro", 0, 1}, Section{"verse", 1, 2})
	spec, err := NewCrossfadeSpec(1)
	if err != nil {
		t.Fatalf("NewCrossfadeSpec: %v", err)
	}

	res, err := NewBuilder(testLogger()).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if res != nil {
		t.Error("expected no result on failure")
	}
	if !errors.Is(err, ErrSampleRateMismatch) {
		t.Fatalf("err = %v, want SampleRateMismatch", err)
	}
	var te *Error
	if errors.As(err, &te) && te.Stage != StateResolvingSections {
		t.Errorf("stage = %s, want resolving_sections", te.Stage)
	}
}

func TestCrossfadeOverlapLongerThanSection(t *testing.T) {
	a := mixSong("a", 120, 1000, 20, 1, Section{"intro", 0, 10}, Section{"tag", 10, 12.5}, Section{"outro", 12.5, 20})
	b := mixSong("b", 120, 1000, 20, 1, Section{"intro", 0, 10}, Section{"verse", 10, 20})
	spec, err := NewCrossfadeSpec(8)
	if err != nil {
		t.Fatalf("NewCrossfadeSpec: %v", err)
	}

	_, err = NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if !errors.Is(err, ErrSectionTooShort) {
		t.Fatalf("err = %v, want SectionTooShort", err)
	}
	if !strings.Contains(err.Error(), "overlap of 8 beats") {
		t.Errorf("error %q does not name the overlap", err)
	}
}

// --- shared behaviour ---

func TestBuildIsDeterministic(t *testing.T) {
	levels := map[string]float64{"vocals": 0.11, "bass": 0.23, "drums": 0.37, "other": 0.41}
	a := stemSong("a", 128, 1000, 20, levels, Section{"intro", 0, 8}, Section{"chorus", 8, 16}, Section{"outro", 16, 20})
	b := stemSong("b", 96, 1000, 20, levels, Section{"intro", 0, 5}, Section{"verse", 5, 15}, Section{"outro", 15, 20})
	gap, err := NewGapSpec(1.5, 4, 0.33, []string{"bass", "drums", "other"}, WithShape(audio.ShapeSmoothstep))
	if err != nil {
		t.Fatalf("NewGapSpec: %v", err)
	}
	xfade, err := NewCrossfadeSpec(6)
	if err != nil {
		t.Fatalf("NewCrossfadeSpec: %v", err)
	}

	for _, spec := range []Spec{gap, xfade} {
		req := Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec}
		first, err := NewBuilder(nil).Build(req)
		if err != nil {
			t.Fatalf("%s: first build: %v", spec.Type, err)
		}
		second, err := NewBuilder(nil).Build(req)
		if err != nil {
			t.Fatalf("%s: second build: %v", spec.Type, err)
		}
		if len(first.Buffer.Samples) != len(second.Buffer.Samples) {
			t.Fatalf("%s: lengths differ: %d vs %d", spec.Type, len(first.Buffer.Samples), len(second.Buffer.Samples))
		}
		for i := range first.Buffer.Samples {
			if math.Float64bits(first.Buffer.Samples[i]) != math.Float64bits(second.Buffer.Samples[i]) {
				t.Fatalf("%s: sample %d differs between builds", spec.Type, i)
			}
		}
	}
}

func TestBuildRejectsInvalidSpec(t *testing.T) {
	a := mixSong("a", 120, 1000, 20, 1, Section{"intro", 0, 10}, Section{"chorus", 10, 20})
	spec := Spec{Type: Gap, FadeWindowBeats: 4, FadeBottom: 2}

	_, err := NewBuilder(nil).Build(Request{From: a, To: a, Spec: spec})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("err = %v, want InvalidSpec", err)
	}
	var te *Error
	if errors.As(err, &te) && te.Param != "fade_bottom" {
		t.Errorf("param = %q, want fade_bottom", te.Param)
	}
}

func TestBuildRejectsInvalidTempo(t *testing.T) {
	a := mixSong("a", 0, 1000, 20, 1, Section{"intro", 0, 10}, Section{"chorus", 10, 20})
	b := mixSong("b", 120, 1000, 20, 1, Section{"intro", 0, 10}, Section{"verse", 10, 20})
	spec, _ := NewCrossfadeSpec(2)

	_, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if !errors.Is(err, ErrInvalidTempo) {
		t.Fatalf("err = %v, want InvalidTempo", err)
	}
}

func TestBuildRejectsNonFiniteTempo(t *testing.T) {
	spec, _ := NewGapSpec(1, 4, 0.33, nil)
	cases := []struct {
		name     string
		from, to float64
		param    string
	}{
		{"NaN source", math.NaN(), 120, "from.tempo_bpm"},
		{"infinite destination", 120, math.Inf(1), "to.tempo_bpm"},
	}
	for _, c := range cases {
		a := mixSong("a", c.from, 1000, 20, 1, Section{"intro", 0, 10}, Section{"chorus", 10, 20})
		b := mixSong("b", c.to, 1000, 20, 1, Section{"intro", 0, 10}, Section{"verse", 10, 20})

		res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
		if res != nil || !errors.Is(err, ErrInvalidTempo) {
			t.Errorf("%s: got %v, %v; want InvalidTempo", c.name, res, err)
			continue
		}
		var te *Error
		if errors.As(err, &te) && (te.Param != c.param || te.Stage != StateResolvingSections) {
			t.Errorf("%s: param %q stage %s, want %q in resolving_sections", c.name, te.Param, te.Stage, c.param)
		}
	}
}

func TestBuildRejectsChannelMismatch(t *testing.T) {
	a := mixSong("a", 120, 1000, 20, 1, Section{"intro", 0, 10}, Section{"chorus", 10, 20})
	b := &Song{
		ID: "b", TempoBPM: 120, SampleRate: 1000, Channels: 2,
		Sections: []Section{{"intro", 0, 10}, {"verse", 10, 20}},
		Mix:      constBuffer(20000, 1000, 2, 1),
	}
	spec, _ := NewCrossfadeSpec(2)

	_, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: spec})
	if !errors.Is(err, ErrChannelMismatch) {
		t.Fatalf("err = %v, want ChannelMismatch", err)
	}
}

func TestBuildMetadata(t *testing.T) {
	a, b := scenarioSongs(fourStems)
	res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 1, ToSection: 1, Spec: scenarioSpec(t)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := map[string]any{
		"transition_type": "gap",
		"from_section":    "chorus",
		"to_section":      "verse",
		"fade_shape":      "linear",
		"state":           "assembled",
		"sample_rate":     44100,
	}
	for k, v := range want {
		if res.Metadata[k] != v {
			t.Errorf("metadata[%q] = %v, want %v", k, res.Metadata[k], v)
		}
	}
	faded, _ := res.Metadata["stems_faded"].([]string)
	if strings.Join(faded, ",") != "bass,drums,other" {
		t.Errorf("stems_faded = %v", faded)
	}
}

func TestBuildRecordsAppliedShift(t *testing.T) {
	a := mixSong("a", 120, 1000, 10, 1, Section{"intro", 0, 3}, Section{"tag", 3, 4}, Section{"verse", 4, 10})
	b := mixSong("b", 120, 1000, 10, 1, Section{"intro", 0, 5}, Section{"verse", 5, 10})
	// Four beats earlier is 2.0s; the previous section start stops it at 3.0s.
	spec, err := NewCrossfadeSpec(2, WithAdjust(BoundaryAdjust{FromStart: -4}))
	if err != nil {
		t.Fatalf("NewCrossfadeSpec: %v", err)
	}

	res, err := NewBuilder(nil).Build(Request{From: a, To: b, FromSection: 2, ToSection: 1, Spec: spec})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := res.Metadata["boundary_adjust_requested"]; got != [4]int{-4, 0, 0, 0} {
		t.Errorf("requested = %v, want [-4 0 0 0]", got)
	}
	if got := res.Metadata["boundary_shift_seconds"]; got != [4]float64{-1, 0, 0, 0} {
		t.Errorf("applied = %v, want [-1 0 0 0]", got)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateResolvingSections: "resolving_sections",
		StateBuilding:          "building",
		StateAssembled:         "assembled",
		StateFailed:            "failed",
		State(42):              "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
