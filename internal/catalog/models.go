package catalog

import (
	"time"

	"github.com/satindergrewal/segue/internal/analysis"
	"github.com/satindergrewal/segue/internal/transition"
)

// Song is an analysed song. Audio stays on disk; only paths are stored.
type Song struct {
	ID         string               `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title      string               `gorm:"uniqueIndex:idx_song_unique,priority:1" json:"title"`
	Artist     string               `gorm:"uniqueIndex:idx_song_unique,priority:2" json:"artist"`
	AudioPath  string               `json:"audio_path"`
	TempoBPM   float64              `json:"tempo_bpm"`
	Key        string               `json:"key,omitempty"`
	BeatGrid   []float64            `gorm:"serializer:json;type:text" json:"beat_grid"`
	Sections   []transition.Section `gorm:"serializer:json;type:text" json:"sections"`
	DurationMs int                  `json:"duration_ms"`
	Stems      []Stem               `gorm:"foreignKey:SongID" json:"stems"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Stem is one separated source of a song.
type Stem struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	SongID string `gorm:"type:varchar(36);uniqueIndex:idx_stem_unique,priority:1" json:"-"`
	Name   string `gorm:"uniqueIndex:idx_stem_unique,priority:2" json:"name"`
	Path   string `json:"path"`
}

// StemPaths maps stem names to files.
func (s *Song) StemPaths() map[string]string {
	out := make(map[string]string, len(s.Stems))
	for _, st := range s.Stems {
		out[st.Name] = st.Path
	}
	return out
}

// Transition job states.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Transition is a requested or rendered transition.
type Transition struct {
	ID          string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	FromSongID  string              `gorm:"type:varchar(36);index" json:"from_song_id"`
	ToSongID    string              `gorm:"type:varchar(36);index" json:"to_song_id"`
	FromSection int                 `json:"from_section"`
	ToSection   int                 `json:"to_section"`
	FullSong    bool                `json:"full_song"`
	Params      transition.Params   `gorm:"serializer:json;type:text" json:"params"`
	Status      string              `gorm:"index" json:"status"`
	Error       string              `json:"error,omitempty"`
	ErrorKind   string              `json:"error_kind,omitempty"`
	ErrorStage  string              `json:"error_stage,omitempty"`
	OutputPath  string              `json:"output_path,omitempty"`
	DurationMs  int                 `json:"duration_ms"`
	Metadata    transition.Metadata `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewSong builds a catalog song from an analysis of the file at audioPath.
func NewSong(title, artist, audioPath string, a *analysis.Analysis) *Song {
	s := &Song{
		Title:     title,
		Artist:    artist,
		AudioPath: audioPath,
		TempoBPM:  a.BPM,
		Key:       a.Key,
		BeatGrid:  a.Beats,
		Sections:  a.Sections(),
	}
	if n := len(s.Sections); n > 0 {
		s.DurationMs = int(s.Sections[n-1].End * 1000)
	}
	for _, name := range a.StemNames() {
		s.Stems = append(s.Stems, Stem{Name: name, Path: a.Stems[name]})
	}
	return s
}
