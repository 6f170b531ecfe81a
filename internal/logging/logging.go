// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// viper keys read by Init
const (
	LevelKey   = "log.level"
	FormatKey  = "log.format"
	NoColorKey = "log.no_color"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Options struct {
	Level   string
	Format  string
	NoColor bool

	// Writer defaults to stderr.
	Writer io.Writer
}

// OptionsFromViper reads the logging options bound to the viper keys.
func OptionsFromViper() Options {
	return Options{
		Level:   viper.GetString(LevelKey),
		Format:  viper.GetString(FormatKey),
		NoColor: viper.GetBool(NoColorKey),
	}
}

// InitDefault sets up a console logger at info level, used until flags are parsed.
func InitDefault() {
	Init(&Options{Level: zerolog.LevelInfoValue, Format: FormatConsole})
}

// Init configures the global logger. Nil options are read from viper.
// An unknown level falls back to info.
func Init(opts *Options) {
	if opts == nil {
		o := OptionsFromViper()
		opts = &o
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(opts.Format, FormatJSON) {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    opts.NoColor,
			TimeFormat: time.TimeOnly,
		}).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &log.Logger
}
