// Package logging builds the single process-wide zerolog.Logger used by
// every constructor in the core. There is no package-level logger value —
// callers build one with New and pass it down explicitly.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/config"
)

// New returns a configured zerolog.Logger for the given environment.
// Development gets human-readable console output (at debug level when
// level is empty, otherwise at the given level); staging/production get
// level-gated JSON suitable for log shipping.
func New(env config.Environment, level string) zerolog.Logger {
	var out io.Writer = os.Stderr
	if env == config.EnvDevelopment {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if env == config.EnvDevelopment && level == "" {
		lvl = zerolog.DebugLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Caller().Logger()
}

// WithPipeline returns a child logger tagged for a pipeline stage, so
// every log line from dedup/embed/cluster/tier1/tier2/apply carries its
// stage without the caller formatting a string each time.
func WithPipeline(log zerolog.Logger, stage string) zerolog.Logger {
	return log.With().Str("stage", stage).Logger()
}
