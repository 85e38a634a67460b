package archive

import (
	"testing"

	"github.com/dls-controls/fa-archiver/internal/options"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithLogger_OverridesDefaultNopLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	layout, err := NewLayout(4, []int{0}, 16, 1, 1, 2)
	require.NoError(t, err)

	c, err := NewTestContext(t.TempDir()+"/archive.dat", layout)
	require.NoError(t, err)
	require.NotEqual(t, logger, c.logger, "NewTestContext defaults to its own nop logger")

	require.NoError(t, options.Apply(c, WithLogger(logger)))
	require.Equal(t, logger, c.logger)

	c.logger.Warn("header msync failed")
	require.Equal(t, 1, logs.Len())
}
