// Package analysis reads song structure analyses (tempo, beat grid, labeled
// segments, separated stems) and talks to the remote service producing them.
package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/satindergrewal/segue/internal/transition"
)

// Segment is one labeled region as emitted by the analyzer.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Label string  `json:"label"`
}

// Analysis is the analyzer's JSON document for one song.
type Analysis struct {
	Path      string            `json:"path,omitempty"`
	BPM       float64           `json:"bpm"`
	Beats     []float64         `json:"beats"`
	Downbeats []float64         `json:"downbeats,omitempty"`
	Segments  []Segment         `json:"segments"`
	Key       string            `json:"key,omitempty"`
	Stems     map[string]string `json:"stems,omitempty"` // stem name -> audio file
}

// Parse decodes an analysis document.
func Parse(r io.Reader) (*Analysis, error) {
	var a Analysis
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &a, nil
}

// LoadFile reads an analysis JSON file. Relative stem paths are resolved
// against the file's directory.
func LoadFile(path string) (*Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open analysis: %w", err)
	}
	defer f.Close()

	a, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for name, p := range a.Stems {
		if p != "" && !filepath.IsAbs(p) {
			a.Stems[name] = filepath.Join(dir, p)
		}
	}
	return a, nil
}

// Validate checks what the transition engine needs from an analysis: a
// tempo or a beat grid, and at least one segment.
func (a *Analysis) Validate() error {
	if a.BPM <= 0 && len(a.Beats) < 2 {
		return fmt.Errorf("analysis has no tempo and %d beats", len(a.Beats))
	}
	if len(a.Sections()) == 0 {
		return fmt.Errorf("analysis has no usable segments")
	}
	return nil
}

// Sections returns the segments as engine sections in time order. Zero or
// negative length segments are dropped.
func (a *Analysis) Sections() []transition.Section {
	out := make([]transition.Section, 0, len(a.Segments))
	for _, s := range a.Segments {
		if s.End <= s.Start {
			continue
		}
		out = append(out, transition.Section{Label: s.Label, Start: s.Start, End: s.End})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// StemNames lists the separated stems in sorted order.
func (a *Analysis) StemNames() []string {
	names := make([]string, 0, len(a.Stems))
	for name := range a.Stems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteFile stores the analysis as indented JSON.
func (a *Analysis) WriteFile(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
