package archive

import (
	"github.com/dls-controls/fa-archiver/internal/options"
	"go.uber.org/zap"
)

// WithLogger attaches a structured logger for internal diagnostics (header
// flush failures). The default is a no-op logger, matching
// components that have no caller-supplied log sink.
func WithLogger(logger *zap.Logger) options.Option[*Context] {
	return options.NoError(func(c *Context) {
		c.logger = logger
	})
}
