package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epiclim/internal"
	"epiclim/internal/analysis"
	"epiclim/internal/observability"
	"epiclim/internal/testkit"
)

func newAnalysisService() *AnalysisService {
	return NewAnalysisService(observability.NewMetricsForTesting(), internal.NewLogger(internal.LogLevelError))
}

func TestUncertaintyPipeline(t *testing.T) {
	svc := newAnalysisService()
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r1", "r2", "r3"},
	})

	out, err := svc.UncertaintyPipeline(ds, analysis.DefaultConfLevel, false)
	require.NoError(t, err)

	stat := out.Coord(analysis.StatDim)
	require.NotNil(t, stat)
	assert.Equal(t, analysis.StatLabels, stat.Labels)
	assert.False(t, out.HasDim("realization"))
	// Two calendar years of monthly input aggregate to two yearly samples.
	assert.Equal(t, 2, out.Coord("time").Len())
}

func TestVarDecompService(t *testing.T) {
	svc := newAnalysisService()
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "yearly",
		Realizations: []string{"r1", "r2"},
		Models:       []string{"m1", "m2"},
		Scenarios:    []string{"s1", "s2"},
	})

	out, err := svc.VarDecomp(ds, true, false)
	require.NoError(t, err)
	vt := out.Coord(analysis.VarTypeDim)
	require.NotNil(t, vt)
	assert.Equal(t, analysis.VarTypeLabels, vt.Labels)
}

func TestTemporalAverage_BadFrequency(t *testing.T) {
	svc := newAnalysisService()
	ds := testkit.GenerateDataset(testkit.Options{Frequency: "daily"})

	_, err := svc.TemporalAverage(ds, analysis.Frequency("hourly"))
	assert.Error(t, err)
}
