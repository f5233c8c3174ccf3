package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/satindergrewal/segue/internal/analysis"
	"github.com/satindergrewal/segue/internal/catalog"
	"github.com/satindergrewal/segue/internal/jobs"
	"github.com/satindergrewal/segue/internal/transition"
)

// fileLoader serves songs straight from audio files and analysis documents.
type fileLoader struct {
	sources    map[string]jobs.Source
	sampleRate int
	channels   int
}

func (l *fileLoader) Load(ctx context.Context, id string) (*transition.Song, error) {
	src, ok := l.sources[id]
	if !ok {
		return nil, fmt.Errorf("song %s: %w", id, catalog.ErrNotFound)
	}
	return jobs.Decode(ctx, src, l.sampleRate, l.channels)
}

// analysisPath is where an audio file's analysis lives unless given: next to
// it with a .json extension.
func analysisPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".json"
}

// sectionIndex resolves ref, either an index or a label, against sections.
// A label picks its first occurrence.
func sectionIndex(sections []transition.Section, ref string) (int, error) {
	if i, err := strconv.Atoi(ref); err == nil {
		return i, nil
	}
	for i, s := range sections {
		if strings.EqualFold(s.Label, ref) {
			return i, nil
		}
	}
	labels := make([]string, len(sections))
	for i, s := range sections {
		labels[i] = s.Label
	}
	return 0, fmt.Errorf("no section %q (have %s)", ref, strings.Join(labels, ", "))
}

func (a *app) render(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	fromPath := fs.String("from", "", "outgoing song audio file (required)")
	toPath := fs.String("to", "", "incoming song audio file (required)")
	fromAnalysis := fs.String("from-analysis", "", "analysis JSON of the outgoing song (default: <from>.json)")
	toAnalysis := fs.String("to-analysis", "", "analysis JSON of the incoming song (default: <to>.json)")
	fromSection := fs.String("from-section", "-1", "section index or label to leave from; negative counts from the end")
	toSection := fs.String("to-section", "0", "section index or label to enter")
	out := fs.String("out", "transition.wav", "output WAV file")
	full := fs.Bool("full", false, "render the whole medley: outgoing song, transition, incoming song")
	rate := fs.Int("rate", a.cfg.SampleRate, "render sample rate")
	channels := fs.Int("channels", a.cfg.Channels, "render channel count")
	params := paramFlags(fs, a.cfg)
	fs.Parse(args)

	if *fromPath == "" || *toPath == "" {
		fs.Usage()
		return errors.New("-from and -to are required")
	}
	p, err := params()
	if err != nil {
		return err
	}

	from, err := loadSource("from", *fromPath, *fromAnalysis)
	if err != nil {
		return err
	}
	to, err := loadSource("to", *toPath, *toAnalysis)
	if err != nil {
		return err
	}

	req := jobs.Request{FromSongID: from.ID, ToSongID: to.ID, Params: p, FullSong: *full}
	if req.FromSection, err = sectionIndex(from.Sections, *fromSection); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if req.FromSection < 0 {
		req.FromSection += len(from.Sections)
	}
	if req.ToSection, err = sectionIndex(to.Sections, *toSection); err != nil {
		return fmt.Errorf("to: %w", err)
	}

	loader := &fileLoader{
		sources:    map[string]jobs.Source{from.ID: from, to.ID: to},
		sampleRate: *rate,
		channels:   *channels,
	}
	dir, name := filepath.Split(*out)
	id := strings.TrimSuffix(name, filepath.Ext(name))
	queue := jobs.NewQueue(jobs.Config{Workers: 1, OutputDir: filepath.Clean(dir)}, loader, nil, a.factory)

	started := time.Now()
	res, err := queue.Render(ctx, id, req)
	if err != nil {
		return err
	}
	printOutput(res)
	fmt.Printf("done in %s\n", time.Since(started).Round(time.Millisecond))
	return nil
}

// loadSource reads an audio file's analysis and names the song after the file.
func loadSource(id, audioPath, analysisFile string) (jobs.Source, error) {
	if analysisFile == "" {
		analysisFile = analysisPath(audioPath)
	}
	an, err := analysis.LoadFile(analysisFile)
	if err != nil {
		return jobs.Source{}, err
	}
	title := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return jobs.SourceFromAnalysis(id, title, audioPath, an), nil
}

func printOutput(out *jobs.Output) {
	r := out.Result
	fmt.Printf("%s: %s [%d %s] -> %s [%d %s]\n", r.Type,
		r.Metadata["from_song"], r.From.Index, r.From.Label,
		r.Metadata["to_song"], r.To.Index, r.To.Label)
	fmt.Printf("  transition  %.2fs (tail %d, gap %d, head %d frames)\n",
		r.DurationSeconds, r.TailFrames, r.GapFrames, r.HeadFrames)
	if out.Assembly != nil {
		fmt.Printf("  medley      %.2fs (%d + %d sections around the transition)\n",
			out.Assembly.DurationSeconds, out.Assembly.PrefixSections, out.Assembly.SuffixSections)
	}
	fmt.Printf("  peak        %.3f\n", out.Metadata["peak"])
	if out.Path != "" {
		size := "?"
		if st, err := os.Stat(out.Path); err == nil {
			size = humanize.Bytes(uint64(st.Size()))
		}
		fmt.Printf("  wrote       %s (%s)\n", out.Path, size)
	}
}

// setlist is the input of "segue set": songs in play order, each entered
// and left at a chosen section.
type setlist struct {
	Params *transition.Params `json:"params,omitempty"`
	Songs  []struct {
		Song  string `json:"song"`  // catalog id or title
		Enter string `json:"enter"` // section index or label
		Exit  string `json:"exit"`
	} `json:"songs"`
}

func (a *app) set(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	outDir := fs.String("out", a.cfg.OutputDir, "directory for the rendered transitions")
	full := fs.Bool("full", false, "render each transition with both songs around it")
	params := paramFlags(fs, a.cfg)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: segue set [flags] <setlist.json>")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("a setlist file is required")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var sl setlist
	if err := json.Unmarshal(data, &sl); err != nil {
		return fmt.Errorf("parsing setlist: %w", err)
	}
	if len(sl.Songs) < 2 {
		return errors.New("a setlist needs at least two songs")
	}
	p, err := params()
	if err != nil {
		return err
	}
	if sl.Params != nil {
		p = *sl.Params
	}

	cat, err := catalog.Open(a.cfg.DBPath, a.factory.NewLogger("catalog"))
	if err != nil {
		return err
	}
	defer cat.Close()

	songs := make([]*catalog.Song, len(sl.Songs))
	for i, entry := range sl.Songs {
		if songs[i], err = cat.FindSong(entry.Song); err != nil {
			return fmt.Errorf("setlist song %d %q: %w", i+1, entry.Song, err)
		}
	}

	reqs := make([]jobs.Request, 0, len(songs)-1)
	for i := 0; i+1 < len(songs); i++ {
		exit := sl.Songs[i].Exit
		if exit == "" {
			exit = strconv.Itoa(len(songs[i].Sections) - 1)
		}
		enter := sl.Songs[i+1].Enter
		if enter == "" {
			enter = "0"
		}
		req := jobs.Request{FromSongID: songs[i].ID, ToSongID: songs[i+1].ID, Params: p, FullSong: *full}
		if req.FromSection, err = sectionIndex(songs[i].Sections, exit); err != nil {
			return fmt.Errorf("%s: %w", songs[i].Title, err)
		}
		if req.ToSection, err = sectionIndex(songs[i+1].Sections, enter); err != nil {
			return fmt.Errorf("%s: %w", songs[i+1].Title, err)
		}
		reqs = append(reqs, req)
	}

	loader := &jobs.CatalogLoader{Catalog: cat, SampleRate: a.cfg.SampleRate, Channels: a.cfg.Channels}
	queue := jobs.NewQueue(jobs.Config{Workers: a.cfg.Workers, OutputDir: *outDir}, loader, cat, a.factory)

	started := time.Now()
	outs, err := queue.BuildAll(ctx, reqs)
	if err != nil {
		return err
	}
	for i, out := range outs {
		rec := &catalog.Transition{
			ID:          out.ID,
			FromSongID:  reqs[i].FromSongID,
			ToSongID:    reqs[i].ToSongID,
			FromSection: reqs[i].FromSection,
			ToSection:   reqs[i].ToSection,
			FullSong:    reqs[i].FullSong,
			Params:      reqs[i].Params,
			Status:      catalog.StatusDone,
			OutputPath:  out.Path,
			DurationMs:  int(out.Buffer.Duration() * 1000),
			Metadata:    out.Metadata,
		}
		if err := cat.SaveTransition(rec); err != nil {
			a.log.Warnf("Recording transition %s: %v", out.ID, err)
		}
		fmt.Printf("%d. %s -> %s\n", i+1, songs[i].Title, songs[i+1].Title)
		printOutput(out)
	}
	fmt.Printf("%d transitions in %s\n", len(outs), time.Since(started).Round(time.Millisecond))
	return nil
}
