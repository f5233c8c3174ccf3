// Package logging builds the leveled, scoped loggers used across segue. The
// same factory is handed to pion so WebRTC internals log alongside ours.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
)

// ParseLevel maps a level name to a pion log level.
func ParseLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "", "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewFactory returns a factory writing to stderr at the named level. An
// unknown level falls back to info.
func NewFactory(level string) *logging.DefaultLoggerFactory {
	return NewFactoryWriter(level, os.Stderr)
}

// NewFactoryWriter is NewFactory with an explicit destination.
func NewFactoryWriter(level string, w io.Writer) *logging.DefaultLoggerFactory {
	lvl, err := ParseLevel(level)
	if err != nil {
		fmt.Fprintf(w, "logging: %v, using info\n", err)
	}
	f := logging.NewDefaultLoggerFactory()
	f.Writer = w
	f.DefaultLogLevel = lvl
	// pion's own scopes are noisy at debug.
	if lvl > logging.LogLevelWarn {
		for _, scope := range []string{"ice", "dtls", "sctp", "srtp", "pc"} {
			f.ScopeLevels[scope] = logging.LogLevelWarn
		}
	}
	return f
}
