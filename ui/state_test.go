package ui

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epiclim/domain/dataset"
	"epiclim/domain/epimod"
	"epiclim/internal"
	"epiclim/internal/errors"
	"epiclim/internal/testkit"
)

type stubClimate struct {
	ds    *dataset.Dataset
	fail  bool
	calls int
}

func (s *stubClimate) ListExamples() []string { return []string{"demo_cities"} }

func (s *stubClimate) GetDataset(_ context.Context, name string) (*dataset.Dataset, error) {
	s.calls++
	if s.fail {
		return nil, errors.ExternalServiceError("climate", fmt.Errorf("unreachable"))
	}
	return s.ds.Copy(), nil
}

func (s *stubClimate) InspectScope(ds *dataset.Dataset) dataset.Scope {
	return dataset.DeriveScope(ds)
}

type stubAnalyzer struct {
	uncertainty int
	decomp      int
}

func (s *stubAnalyzer) UncertaintyPipeline(ds *dataset.Dataset, _ float64, _ bool) (*dataset.Dataset, error) {
	s.uncertainty++
	return statDataset("mean", "lower", "upper"), nil
}

func (s *stubAnalyzer) VarDecomp(ds *dataset.Dataset, _, _ bool) (*dataset.Dataset, error) {
	s.decomp++
	return statDataset("internal", "model", "scenario"), nil
}

type stubEpi struct{ months int }

func (s *stubEpi) RangeModel(lower, upper float64) (*epimod.SuitabilityModel, error) {
	return epimod.NewTemperatureRangeModel(lower, upper)
}

func (s *stubEpi) RunSuitability(_ *epimod.SuitabilityModel, _ *dataset.Dataset) (*dataset.Dataset, error) {
	return statDataset("suitability"), nil
}

func (s *stubEpi) RunMonthsSuitable(_ *epimod.SuitabilityModel, _ *dataset.Dataset, _ float64) (*dataset.Dataset, error) {
	s.months++
	return statDataset("months_suitable"), nil
}

// statDataset builds a two-sample series with one labeled dimension.
func statDataset(labels ...string) *dataset.Dataset {
	ds := dataset.New()
	arr := dataset.Filled("temperature", []string{"stat", "time"}, []int{len(labels), 2}, 1)
	ds.SetVar(arr)
	ds.SetCoord(dataset.NewLabelCoord("stat", labels))
	ds.SetCoord(dataset.NewNumericCoord("time", []float64{0, 365}))
	ds.Coord("time").Attrs = map[string]string{"units": dataset.DefaultTimeUnits}
	return ds
}

func newTestController(t *testing.T) (*Controller, *stubClimate, *stubAnalyzer, *stubEpi) {
	t.Helper()
	climate := &stubClimate{ds: testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r1", "r2"},
	})}
	analyzer := &stubAnalyzer{}
	epi := &stubEpi{}
	logger := internal.NewLogger(internal.LogLevelError)
	return NewController(climate, analyzer, epi, logger), climate, analyzer, epi
}

func TestSelectExample_LoadsAndDerives(t *testing.T) {
	ctrl, climate, analyzer, _ := newTestController(t)

	require.NoError(t, ctrl.SelectExample(context.Background(), "demo_cities"))

	state := ctrl.StateSnapshot()
	assert.Equal(t, "Ready", state.Status)
	assert.Equal(t, "temperature", state.Variable)
	assert.Equal(t, 1, climate.calls)
	assert.Equal(t, 1, analyzer.uncertainty)
	require.NotNil(t, ctrl.PlotData())
	assert.Equal(t, 2, ctrl.Scope().Realizations)
}

func TestSelectExample_FailureSetsStatus(t *testing.T) {
	ctrl, climate, _, _ := newTestController(t)
	climate.fail = true

	err := ctrl.SelectExample(context.Background(), "demo_cities")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeExternalService))
	assert.Contains(t, ctrl.StateSnapshot().Status, "Error:")
	assert.Nil(t, ctrl.PlotData())
}

func TestUpdateParams_ReusesLoadedDataset(t *testing.T) {
	ctrl, climate, _, epi := newTestController(t)
	require.NoError(t, ctrl.SelectExample(context.Background(), "demo_cities"))

	err := ctrl.UpdateParams(context.Background(), func(s *State) {
		s.View = ViewSuitability
		s.Threshold = 0.7
	})
	require.NoError(t, err)

	assert.Equal(t, 1, climate.calls)
	assert.Equal(t, 1, epi.months)
	assert.Equal(t, "Ready", ctrl.StateSnapshot().Status)
}

func TestUpdateParams_Decomposition(t *testing.T) {
	ctrl, _, analyzer, _ := newTestController(t)
	require.NoError(t, ctrl.SelectExample(context.Background(), "demo_cities"))

	err := ctrl.UpdateParams(context.Background(), func(s *State) { s.View = ViewDecomposition })
	require.NoError(t, err)
	assert.Equal(t, 1, analyzer.decomp)
}

func TestUpdateParams_UnknownView(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)
	require.NoError(t, ctrl.SelectExample(context.Background(), "demo_cities"))

	err := ctrl.UpdateParams(context.Background(), func(s *State) { s.View = "heatmap" })
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
	assert.Contains(t, ctrl.StateSnapshot().Status, "Error:")
}

func TestUpdateParams_BeforeLoadIsNoop(t *testing.T) {
	ctrl, climate, _, _ := newTestController(t)

	err := ctrl.UpdateParams(context.Background(), func(s *State) { s.ConfLevel = 0.5 })
	require.NoError(t, err)
	assert.Equal(t, 0, climate.calls)
	assert.Nil(t, ctrl.PlotData())
	assert.Equal(t, "Select an example dataset", ctrl.StateSnapshot().Status)
}
