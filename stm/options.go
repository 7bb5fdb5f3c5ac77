package stm

import (
	"os"

	"github.com/rs/zerolog"
)

type config struct {
	logger zerolog.Logger
}

func defaultConfig() config {
	return config{
		logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.WarnLevel).
			With().Timestamp().Logger(),
	}
}

// Option is a functional option for NewTransactionManager.
type Option func(*config)

// WithLogger installs a custom zerolog.Logger. Sub-loggers per component
// (manager, conflict-pessimistic or conflict-optimistic, version,
// transaction) are derived from it with a "component" field.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

func componentLogger(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}
