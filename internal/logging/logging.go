// Package logging configures the global zerolog logger for all runtime
// components. Durable experiment logs go to the persistence layer's Log
// stream instead; this package only covers operator-facing output.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects output format and verbosity.
type Config struct {
	Debug        bool `yaml:"debug" split_words:"true" default:"false"`
	PrettyFormat bool `yaml:"pretty_format" split_words:"true" default:"false"`
}

// Init replaces the global logger according to cfg.
func Init(cfg Config) {
	if cfg.PrettyFormat {
		log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	if cfg.Debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}
}
