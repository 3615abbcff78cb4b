package log

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"findreplace/internal/config"
)

// Level maps the verbosity switches to a zerolog level. Quiet wins over
// the others.
func Level(cfg *config.Config) zerolog.Level {
	switch {
	case cfg.Quiet:
		return zerolog.ErrorLevel
	case cfg.Debug:
		return zerolog.DebugLevel
	case cfg.Verbose:
		return zerolog.InfoLevel
	default:
		return zerolog.WarnLevel
	}
}

// Setup builds the diagnostic logger for a run. Output to a terminal is
// human readable; anything else gets one JSON object per line.
func Setup(cfg *config.Config, out io.Writer) zerolog.Logger {
	if isTerminal(out) {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	logger := zerolog.New(out).Level(Level(cfg)).With().Timestamp().Logger()
	if cfg.IsDebug() {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
