package observability

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// NewLogger builds a JSON logger at the named level, stamped with the service name.
func NewLogger(w io.Writer, level, service string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to parse log level: %w", err)
	}
	return zerolog.New(w).Level(parsed).With().Timestamp().Str("service", service).Logger(), nil
}
