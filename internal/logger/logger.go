package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init initializes the global logger
func Init(level string) {
	InitWithWriter(level, nil)
}

// InitWithWriter initializes the global logger writing to w. A nil w selects
// stdout, or a console writer when ENV=development.
func InitWithWriter(level string, w io.Writer) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := w
	if output == nil {
		output = os.Stdout
		if os.Getenv("ENV") == "development" {
			output = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "thermoguard").
		Logger()

	Logger.Info().
		Str("level", logLevel.String()).
		Msg("logger initialized")
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}
