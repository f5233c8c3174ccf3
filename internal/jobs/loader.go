package jobs

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/segue/internal/analysis"
	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/catalog"
	"github.com/satindergrewal/segue/internal/transition"
)

// Loader produces engine songs with their audio decoded.
type Loader interface {
	Load(ctx context.Context, songID string) (*transition.Song, error)
}

// Source says where a song's audio lives and what its analysis found.
type Source struct {
	ID        string
	Title     string
	AudioPath string
	TempoBPM  float64
	BeatGrid  []float64
	Sections  []transition.Section
	Stems     map[string]string // stem name -> file
}

// SourceFromCatalog adapts a catalog song.
func SourceFromCatalog(s *catalog.Song) Source {
	return Source{
		ID:        s.ID,
		Title:     s.Title,
		AudioPath: s.AudioPath,
		TempoBPM:  s.TempoBPM,
		BeatGrid:  s.BeatGrid,
		Sections:  s.Sections,
		Stems:     s.StemPaths(),
	}
}

// SourceFromAnalysis adapts an analysis file for a song outside the catalog.
func SourceFromAnalysis(id, title, audioPath string, a *analysis.Analysis) Source {
	return Source{
		ID:        id,
		Title:     title,
		AudioPath: audioPath,
		TempoBPM:  a.BPM,
		BeatGrid:  a.Beats,
		Sections:  a.Sections(),
		Stems:     a.Stems,
	}
}

// maxStemDecodes bounds concurrent ffmpeg processes per song.
const maxStemDecodes = 4

// Decode reads src's audio at the given format. With stems only the stems
// are decoded; separate decodes can differ by a few frames, so every stem is
// trimmed to the shortest.
func Decode(ctx context.Context, src Source, sampleRate, channels int) (*transition.Song, error) {
	song := &transition.Song{
		ID:         src.ID,
		Title:      src.Title,
		TempoBPM:   src.TempoBPM,
		BeatGrid:   src.BeatGrid,
		SampleRate: sampleRate,
		Channels:   channels,
		Sections:   src.Sections,
	}

	if len(src.Stems) == 0 {
		mix, err := audio.LoadFile(ctx, src.AudioPath, sampleRate, channels)
		if err != nil {
			return nil, fmt.Errorf("song %s: %w", src.ID, err)
		}
		song.Mix = mix
		return song, nil
	}

	names := make([]string, 0, len(src.Stems))
	for name := range src.Stems {
		names = append(names, name)
	}
	sort.Strings(names)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxStemDecodes)

	bufs := make([]*audio.Buffer, len(names))
	for i, name := range names {
		g.Go(func() error {
			b, err := audio.LoadFile(gctx, src.Stems[name], sampleRate, channels)
			if err != nil {
				return fmt.Errorf("song %s stem %s: %w", src.ID, name, err)
			}
			bufs[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	shortest := bufs[0].Frames()
	for _, b := range bufs[1:] {
		shortest = min(shortest, b.Frames())
	}
	song.Stems = make(transition.StemSet, len(names))
	for i, name := range names {
		song.Stems[name] = &audio.Buffer{
			Samples:    bufs[i].Samples[:shortest*channels],
			SampleRate: sampleRate,
			Channels:   channels,
		}
	}
	return song, nil
}

// CatalogLoader decodes catalog songs at a fixed render format.
type CatalogLoader struct {
	Catalog    *catalog.Catalog
	SampleRate int
	Channels   int
}

// Load implements Loader.
func (l *CatalogLoader) Load(ctx context.Context, songID string) (*transition.Song, error) {
	s, err := l.Catalog.GetSong(songID)
	if err != nil {
		return nil, err
	}
	return Decode(ctx, SourceFromCatalog(s), l.SampleRate, l.Channels)
}
