package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/satindergrewal/segue/internal/analysis"
	"github.com/satindergrewal/segue/internal/catalog"
)

func (a *app) openCatalog() (*catalog.Catalog, error) {
	return catalog.Open(a.cfg.DBPath, a.factory.NewLogger("catalog"))
}

func (a *app) songs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: segue songs add|list|show|rm")
	}
	switch args[0] {
	case "add":
		return a.songsAdd(ctx, args[1:])
	case "list", "ls":
		return a.songsList()
	case "show":
		return a.songsShow(args[1:])
	case "rm", "delete":
		return a.songsRemove(args[1:])
	}
	return fmt.Errorf("unknown songs command %q", args[0])
}

func (a *app) songsAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("songs add", flag.ExitOnError)
	title := fs.String("title", "", "song title (default: file name)")
	artist := fs.String("artist", "", "artist")
	analysisFile := fs.String("analysis", "", "analysis JSON (default: <audio>.json, else the analysis service)")
	stems := fs.Bool("stems", true, "ask the analysis service to separate stems")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: segue songs add [flags] <audio file>")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("an audio file is required")
	}
	audioPath, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return err
	}
	if *title == "" {
		*title = strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	}

	an, err := a.analyse(ctx, audioPath, *analysisFile, *stems)
	if err != nil {
		return err
	}

	cat, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	song := catalog.NewSong(*title, *artist, audioPath, an)
	id, err := cat.AddSong(song)
	if err != nil {
		return err
	}
	fmt.Printf("Added %q (%s): %.1f BPM, %d sections, %d stems\n",
		song.Title, id, song.TempoBPM, len(song.Sections), len(song.Stems))
	return nil
}

// analyse reads an explicit or sibling analysis file, falling back to the
// remote service when one is configured.
func (a *app) analyse(ctx context.Context, audioPath, file string, stems bool) (*analysis.Analysis, error) {
	if file != "" {
		return analysis.LoadFile(file)
	}
	sibling := analysisPath(audioPath)
	if _, err := os.Stat(sibling); err == nil {
		return analysis.LoadFile(sibling)
	}
	if a.cfg.AnalysisURL == "" {
		return nil, fmt.Errorf("no analysis for %s: pass -analysis, add %s or set SEGUE_ANALYSIS_URL",
			filepath.Base(audioPath), filepath.Base(sibling))
	}

	client := analysis.NewClient(a.cfg.AnalysisURL, a.cfg.AnalysisAPIKey,
		filepath.Join(a.cfg.OutputDir, "stems"), a.factory.NewLogger("analysis"))
	healthCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := client.WaitForHealthy(healthCtx); err != nil {
		return nil, fmt.Errorf("analysis service not available: %w", err)
	}

	taskID, err := client.Submit(ctx, analysis.Request{AudioPath: audioPath, SeparateStems: stems})
	if err != nil {
		return nil, err
	}
	an, err := client.PollUntilDone(ctx, taskID, 2*time.Second)
	if err != nil {
		return nil, err
	}
	// Cache next to the audio so the song can be re-added offline.
	if err := an.WriteFile(sibling); err != nil {
		a.log.Warnf("Caching analysis: %v", err)
	}
	return an, nil
}

func (a *app) songsList() error {
	cat, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	songs, err := cat.ListSongs()
	if err != nil {
		return err
	}
	if len(songs) == 0 {
		fmt.Println("No songs in the catalog")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tARTIST\tBPM\tKEY\tLENGTH\tSECTIONS\tSTEMS\tADDED")
	for _, s := range songs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%s\t%d\t%d\t%s\n",
			shortID(s.ID), s.Title, s.Artist, s.TempoBPM, s.Key,
			time.Duration(s.DurationMs)*time.Millisecond, len(s.Sections), len(s.Stems),
			humanize.Time(s.CreatedAt))
	}
	return w.Flush()
}

func (a *app) songsShow(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: segue songs show <id or title>")
	}
	cat, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	s, err := cat.FindSong(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s by %s (%s)\n", s.Title, s.Artist, s.ID)
	fmt.Printf("  audio  %s\n", s.AudioPath)
	fmt.Printf("  tempo  %.2f BPM, %d beats in grid, key %s\n", s.TempoBPM, len(s.BeatGrid), s.Key)
	for i, sec := range s.Sections {
		fmt.Printf("  [%d] %-10s %7.2fs - %7.2fs\n", i, sec.Label, sec.Start, sec.End)
	}
	for _, st := range s.Stems {
		size := "missing"
		if fi, err := os.Stat(st.Path); err == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		fmt.Printf("  stem %-8s %s (%s)\n", st.Name, st.Path, size)
	}
	return nil
}

func (a *app) songsRemove(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: segue songs rm <id or title>")
	}
	cat, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	s, err := cat.FindSong(args[0])
	if err != nil {
		return err
	}
	if err := cat.DeleteSong(s.ID); err != nil {
		return err
	}
	fmt.Printf("Removed %q (%s)\n", s.Title, s.ID)
	return nil
}

func (a *app) transitions(args []string) error {
	fs := flag.NewFlagSet("transitions", flag.ExitOnError)
	limit := fs.Int("n", 20, "show at most n transitions, newest first")
	fs.Parse(args)

	cat, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	list, err := cat.ListTransitions(*limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tFROM\tTO\tSTATUS\tLENGTH\tOUTPUT\tCREATED")
	for _, t := range list {
		status := t.Status
		if t.ErrorKind != "" {
			status += " (" + t.ErrorKind + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s[%d]\t%s[%d]\t%s\t%s\t%s\t%s\n",
			shortID(t.ID), t.Params.Type, shortID(t.FromSongID), t.FromSection, shortID(t.ToSongID), t.ToSection,
			status, time.Duration(t.DurationMs)*time.Millisecond, t.OutputPath, humanize.Time(t.CreatedAt))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
