package decimate

import (
	"strings"
	"testing"

	"github.com/dls-controls/fa-archiver/frame"
	"github.com/stretchr/testify/require"
)

func TestCIC_DecimatesConstantInputToItself(t *testing.T) {
	c := NewCIC(4, []int{1})
	var got frame.Frame
	var ok bool
	for i := 0; i < 4; i++ {
		got, ok = c.Add(frame.Frame{X: 10, Y: -10})
	}
	require.True(t, ok)
	require.Equal(t, int32(10), got.X)
	require.Equal(t, int32(-10), got.Y)
}

func TestFIR_UnityTapIsPassthrough(t *testing.T) {
	f := NewFIR([]float64{1}, 1)
	out, ok := f.Add(frame.Frame{X: 7, Y: -7})
	require.True(t, ok)
	require.Equal(t, frame.Frame{X: 7, Y: -7}, out)
}

func TestConfigParse(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(
		"decimation_factor=4\n" +
			"history_length=1,1\n" +
			"compensation_filter=0.25,0.5,0.25\n" +
			"filter_decimation=2\n" +
			"output_sample_count=1000\n" +
			"output_block_count=4\n",
	))
	require.NoError(t, err)
	require.Equal(t, 4, cfg.DecimationFactor)
	require.Equal(t, []int{1, 1}, cfg.HistoryLength)
	require.Equal(t, []float64{0.25, 0.5, 0.25}, cfg.CompensationFilter)
	require.Equal(t, 2, cfg.FilterDecimation)
}
