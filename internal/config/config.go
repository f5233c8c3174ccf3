package config

import (
	"os"
	"strconv"
	"strings"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Storage
	DBPath    string
	OutputDir string // rendered transitions are written here

	// Render format. Songs are decoded to this before any build.
	SampleRate int
	Channels   int
	Workers    int // concurrent transition builds

	// Remote analysis / stem separation service
	AnalysisURL    string // empty disables remote analysis
	AnalysisAPIKey string

	// Transition defaults, overridable per request
	GapBeats        float64
	FadeWindowBeats float64
	FadeBottom      float64 // gain floor reached at the end of a gap fade
	OverlapBeats    float64
	StemsToFade     []string

	// Queue finished renders on the live preview stream
	Preview bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:     envInt("SEGUE_PORT", 8080),
		LogLevel: envStr("SEGUE_LOG_LEVEL", "info"),

		DBPath:    envStr("SEGUE_DB_PATH", "segue.sqlite3"),
		OutputDir: envStr("SEGUE_OUTPUT_DIR", "renders"),

		SampleRate: envInt("SEGUE_SAMPLE_RATE", 48000),
		Channels:   envInt("SEGUE_CHANNELS", 2),
		Workers:    envInt("SEGUE_WORKERS", 2),

		AnalysisURL:    envStr("SEGUE_ANALYSIS_URL", ""),
		AnalysisAPIKey: envStr("SEGUE_ANALYSIS_API_KEY", ""),

		GapBeats:        envFloat("SEGUE_GAP_BEATS", 1.0),
		FadeWindowBeats: envFloat("SEGUE_FADE_WINDOW_BEATS", 8.0),
		FadeBottom:      envFloat("SEGUE_FADE_BOTTOM", 0.33),
		OverlapBeats:    envFloat("SEGUE_OVERLAP_BEATS", 8.0),
		StemsToFade:     envList("SEGUE_STEMS_TO_FADE", []string{"bass", "drums", "other"}),

		Preview: envBool("SEGUE_PREVIEW", true),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envList splits a comma separated value. "none" yields an empty list so a
// gap can be configured to fade nothing.
func envList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if strings.EqualFold(v, "none") {
		return []string{}
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
