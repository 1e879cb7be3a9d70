package log

import (
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/xeptore/skylocker/config"
	"github.com/xeptore/skylocker/constant"
)

func FromConfig(conf config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(conf.Level)
	if nil != err {
		panic("invalid logging level: " + conf.Level)
	}

	format := strings.ToLower(conf.Format)
	if format == "auto" {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "pretty"
		} else {
			format = "json"
		}
	}

	switch format {
	case "json":
		return zerolog.
			New(os.Stderr).
			Hook(&stackHook{}).
			With().
			Timestamp().
			Str("version", constant.Version).
			Str("compile_time", constant.CompileTime).
			Logger().
			Level(level)
	case "pretty":
		return zerolog.
			New(zerolog.ConsoleWriter{ //nolint:exhaustruct
				Out:          os.Stderr,
				TimeFormat:   time.RFC3339,
				TimeLocation: time.UTC,
			}).
			Hook(&stackHook{}).
			With().
			Timestamp().
			Str("version", constant.Version).
			Str("compile_time", constant.CompileTime).
			Logger().
			Level(level)
	default:
		panic("invalid logging format: " + conf.Format)
	}
}

func NewDefault() zerolog.Logger {
	return zerolog.
		New(zerolog.ConsoleWriter{ //nolint:exhaustruct
			Out:          os.Stderr,
			TimeFormat:   time.RFC3339,
			TimeLocation: time.UTC,
		}).
		Hook(&stackHook{}).
		With().
		Timestamp().
		Str("version", constant.Version).
		Str("compile_time", constant.CompileTime).
		Logger().
		Level(zerolog.InfoLevel)
}
