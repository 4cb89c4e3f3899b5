package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epiclim/domain/epimod"
	"epiclim/internal"
	"epiclim/internal/observability"
	"epiclim/internal/testkit"
)

func newEpiService() *EpiService {
	return NewEpiService(observability.NewMetricsForTesting(), internal.NewLogger(internal.LogLevelError))
}

func TestRunSuitability_RangeModel(t *testing.T) {
	svc := newEpiService()
	model, err := svc.RangeModel(10, 30)
	require.NoError(t, err)

	ds := testkit.GenerateDataset(testkit.Options{Frequency: "daily"})
	testkit.FillAll(ds, "temperature", func(int) float64 { return 20 })

	out, err := svc.RunSuitability(model, ds)
	require.NoError(t, err)
	suit, ok := out.Var("suitability")
	require.True(t, ok)
	assert.Equal(t, 1.0, suit.Values[0])
}

func TestTableModelFromFile(t *testing.T) {
	svc := newEpiService()
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("temperature,suitability\n15,0\n20,1\n25,0\n"), 0o644))

	model, err := svc.TableModelFromFile(path, false)
	require.NoError(t, err)
	assert.Equal(t, epimod.KindTemperatureTable, model.Kind())
}

func TestTableModelFromFile_Grid(t *testing.T) {
	svc := newEpiService()
	path := filepath.Join(t.TempDir(), "grid.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("temperature,0,10,20\n15,0,0.1,0.2\n25,0.3,0.4,0.5\n"), 0o644))

	model, err := svc.TableModelFromFile(path, true)
	require.NoError(t, err)
	assert.Equal(t, epimod.KindTemperaturePrecipitationTable, model.Kind())
}

func TestTableModelFromFile_Missing(t *testing.T) {
	svc := newEpiService()
	_, err := svc.TableModelFromFile(filepath.Join(t.TempDir(), "nope.csv"), false)
	assert.Error(t, err)
}
