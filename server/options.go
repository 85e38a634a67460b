package server

import (
	"github.com/dls-controls/fa-archiver/internal/options"
	"go.uber.org/zap"
)

// WithLogger attaches a structured logger for connection-level diagnostics
// (accept failures, connections that close before sending a request line).
// The default is a no-op logger, so
// callers that don't care about per-connection noise need not supply one.
func WithLogger(logger *zap.Logger) options.Option[*Server] {
	return options.NoError(func(s *Server) {
		s.logger = logger
	})
}
