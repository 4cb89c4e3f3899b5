package analysis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epiclim/domain/dataset"
	"epiclim/internal/errors"
	"epiclim/internal/testkit"
)

func statSlices(t *testing.T, ds *dataset.Dataset, name string) map[string]*dataset.DataArray {
	t.Helper()
	a, err := ds.MustVar(name)
	require.NoError(t, err)
	c := ds.Coord(StatDim)
	require.NotNil(t, c)
	out := map[string]*dataset.DataArray{}
	for _, label := range c.Labels {
		sel, err := a.SelectIndex(StatDim, c.IndexOf(label))
		require.NoError(t, err)
		out[label] = sel
	}
	return out
}

func TestEnsembleStats_InternalConsistency(t *testing.T) {
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r0", "r1", "r2", "r3"},
	})
	testkit.FillBy(ds, "temperature", func(idx map[string]int) float64 {
		return float64(10*idx["realization"]) + float64(idx["time"]) + 0.5*float64(idx["lat"])
	})

	out, err := EnsembleStats(ds, nil, 90, false)
	require.NoError(t, err)

	stats := statSlices(t, out, "temperature")
	n := stats["mean"].Size()
	for i := 0; i < n; i++ {
		assert.InDelta(t, math.Sqrt(stats["var"].Values[i]), stats["std"].Values[i], 1e-12)
		assert.LessOrEqual(t, stats["min"].Values[i], stats["lower"].Values[i])
		assert.LessOrEqual(t, stats["lower"].Values[i], stats["median"].Values[i])
		assert.LessOrEqual(t, stats["median"].Values[i], stats["upper"].Values[i])
		assert.LessOrEqual(t, stats["upper"].Values[i], stats["max"].Values[i])
	}
}

func TestEnsembleStats_IdenticalRealizations(t *testing.T) {
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r0", "r1", "r2"},
	})
	testkit.FillAll(ds, "temperature", func(ti int) float64 { return 20 + float64(ti) })

	out, err := EnsembleStats(ds, nil, 90, false)
	require.NoError(t, err)

	stats := statSlices(t, out, "temperature")
	for i := range stats["mean"].Values {
		common := stats["mean"].Values[i]
		assert.Equal(t, 0.0, stats["std"].Values[i])
		assert.Equal(t, 0.0, stats["var"].Values[i])
		for _, label := range []string{"median", "min", "max", "lower", "upper"} {
			assert.Equal(t, common, stats[label].Values[i], label)
		}
	}
}

func TestEnsembleStats_RealizationDimLost(t *testing.T) {
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r0", "r1"},
	})
	out, err := EnsembleStats(ds, nil, 90, false)
	require.NoError(t, err)
	assert.False(t, out.HasDim("realization"))
	assert.Nil(t, out.Coord("realization"))
	a, err := out.MustVar("temperature")
	require.NoError(t, err)
	assert.Equal(t, len(StatLabels), a.DimLen(StatDim))
}

// The estimator path must give the same answer whether the single
// realization appears as a length-1 dimension, a bare coordinate, or not at
// all.
func TestEnsembleStats_SingleRealizationEquivalence(t *testing.T) {
	fill := func(ds *dataset.Dataset) {
		testkit.FillBy(ds, "temperature", func(idx map[string]int) float64 {
			ti := float64(idx["time"])
			return 15 + 0.3*ti + 0.01*ti*ti + float64(idx["lon"])
		})
	}

	absent := testkit.GenerateDataset(testkit.Options{Frequency: "monthly"})
	fill(absent)

	withDim := testkit.GenerateDataset(testkit.Options{Frequency: "monthly", Realizations: []string{"r0"}})
	fill(withDim)

	withCoord := testkit.GenerateDataset(testkit.Options{Frequency: "monthly"})
	fill(withCoord)
	withCoord.SetCoord(dataset.NewLabelCoord("realization", []string{"r0"}))

	direct, err := EstimateEnsembleStats(absent, nil, 90)
	require.NoError(t, err)

	for _, ds := range []*dataset.Dataset{absent, withDim, withCoord} {
		out, err := EnsembleStats(ds, nil, 90, true)
		require.NoError(t, err)
		want, err := direct.MustVar("temperature")
		require.NoError(t, err)
		got, err := out.MustVar("temperature")
		require.NoError(t, err)
		assert.Equal(t, want.Dims, got.Dims)
		assert.Equal(t, want.Shape, got.Shape)
		for i := range want.Values {
			assert.InDelta(t, want.Values[i], got.Values[i], 1e-9)
		}
		assert.Equal(t, EstimateStatLabels, out.Coord(StatDim).Labels)
	}
}

func TestEstimateEnsembleStats_PolynomialRecovery(t *testing.T) {
	// A series that already is a degree-2 polynomial fits with zero residual.
	ds := testkit.GenerateDataset(testkit.Options{Frequency: "monthly"})
	times, err := ds.TimeValues()
	require.NoError(t, err)
	testkit.FillBy(ds, "temperature", func(idx map[string]int) float64 {
		x := times[idx["time"]].Sub(times[0]).Hours() / 24
		return 3 + 0.1*x + 0.001*x*x
	})

	out, err := EstimateEnsembleStats(ds, nil, 90)
	require.NoError(t, err)
	stats := statSlices(t, out, "temperature")
	for i := range stats["var"].Values {
		assert.InDelta(t, 0, stats["var"].Values[i], 1e-6)
		assert.InDelta(t, stats["mean"].Values[i], stats["lower"].Values[i], 1e-3)
		assert.InDelta(t, stats["mean"].Values[i], stats["upper"].Values[i], 1e-3)
	}
}

// With polynomial-plus-Gaussian data the recovered std must converge on the
// true noise level. The residual variance is RSS over the sample count, so
// the estimate carries a sqrt((n-p)/n) factor; at n=1000 that sits well
// inside the 1% tolerance.
func TestEstimateEnsembleStats_NoiseRecovery(t *testing.T) {
	const (
		nTime = 1000
		nRep  = 150
		sigma = 2.0
	)
	rng := rand.New(rand.NewSource(7))
	centers := make([]float64, nTime)
	for ti := 0; ti < nTime; ti++ {
		centers[ti] = float64(ti)
	}
	values := make([]float64, nRep*nTime)
	for r := 0; r < nRep; r++ {
		for ti := 0; ti < nTime; ti++ {
			x := centers[ti]
			values[r*nTime+ti] = 15 + 0.02*x - 1e-5*x*x + sigma*rng.NormFloat64()
		}
	}
	ds := dataset.New()
	a, err := dataset.NewDataArray("temperature", []string{"rep", "time"}, []int{nRep, nTime}, values)
	require.NoError(t, err)
	ds.SetVar(a)
	c := dataset.NewNumericCoord("time", centers)
	c.Attrs["units"] = dataset.DefaultTimeUnits
	ds.SetCoord(c)

	out, err := EstimateEnsembleStats(ds, nil, 90)
	require.NoError(t, err)
	std := statSlices(t, out, "temperature")["std"]

	var sum float64
	for r := 0; r < nRep; r++ {
		sum += std.At(r, 0)
	}
	assert.InDelta(t, sigma, sum/nRep, 0.01*sigma)
}

func TestEstimateEnsembleStats_MultipleRealizationsRejected(t *testing.T) {
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r0", "r1"},
	})
	_, err := EstimateEnsembleStats(ds, nil, 90)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCardinalityViolation))
}

func TestVarDecomp_FractionsSumToOne(t *testing.T) {
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r0", "r1", "r2"},
		Models:       []string{"m0", "m1"},
		Scenarios:    []string{"s0", "s1"},
	})
	testkit.FillBy(ds, "temperature", func(idx map[string]int) float64 {
		return float64(idx["time"]) +
			2*float64(idx["realization"]) +
			5*float64(idx["model"]) +
			11*float64(idx["scenario"]) +
			0.25*float64(idx["lat"]*idx["model"])
	})

	out, err := VarDecomp(ds, nil, true, false)
	require.NoError(t, err)
	a, err := out.MustVar("temperature")
	require.NoError(t, err)
	require.Equal(t, VarTypeLabels, out.Coord(VarTypeDim).Labels)

	total, err := a.Reduce(VarTypeDim, func(parts []float64) float64 {
		sum := 0.0
		for _, p := range parts {
			sum += p
		}
		return sum
	})
	require.NoError(t, err)
	for _, v := range total.Values {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func TestVarDecomp_ZeroTotalYieldsNaN(t *testing.T) {
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r0", "r1"},
		Models:       []string{"m0", "m1"},
		Scenarios:    []string{"s0", "s1"},
	})
	// Constant data: every variance component is exactly zero.
	out, err := VarDecomp(ds, nil, true, false)
	require.NoError(t, err)
	a, err := out.MustVar("temperature")
	require.NoError(t, err)
	for _, v := range a.Values {
		assert.True(t, math.IsNaN(v))
	}
}

func TestVarDecomp_RawAttrs(t *testing.T) {
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r0", "r1"},
		Models:       []string{"m0", "m1"},
		Scenarios:    []string{"s0", "s1"},
	})
	ds.Vars["temperature"].Attrs["units"] = "°C"
	ds.Vars["temperature"].Attrs["long_name"] = "Temperature"

	raw, err := VarDecomp(ds, nil, false, false)
	require.NoError(t, err)
	a := raw.Vars["temperature"]
	assert.Equal(t, "(°C)²", a.Attrs["units"])
	assert.Equal(t, "Variance of temperature", a.Attrs["long_name"])

	frac, err := VarDecomp(ds, nil, true, false)
	require.NoError(t, err)
	f := frac.Vars["temperature"]
	assert.Equal(t, "Fraction of variance", f.Attrs["long_name"])
	_, hasUnits := f.Attrs["units"]
	assert.False(t, hasUnits)
}

func TestVarDecomp_KnownPartition(t *testing.T) {
	// Values depend only on scenario: model and internal variance are zero and
	// the scenario fraction is one.
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "monthly",
		Realizations: []string{"r0", "r1"},
		Models:       []string{"m0", "m1"},
		Scenarios:    []string{"s0", "s1"},
	})
	testkit.FillBy(ds, "temperature", func(idx map[string]int) float64 {
		return float64(100 * idx["scenario"])
	})

	out, err := VarDecomp(ds, nil, true, false)
	require.NoError(t, err)
	a := out.Vars["temperature"]
	c := out.Coord(VarTypeDim)
	for _, tc := range []struct {
		label string
		want  float64
	}{
		{"internal", 0},
		{"model", 0},
		{"scenario", 1},
	} {
		sel, err := a.SelectIndex(VarTypeDim, c.IndexOf(tc.label))
		require.NoError(t, err)
		for _, v := range sel.Values {
			assert.InDelta(t, tc.want, v, 1e-9, tc.label)
		}
	}
}

func TestTemporalGroupAverage_ConstantRoundTrip(t *testing.T) {
	ds := testkit.GenerateDataset(testkit.Options{Frequency: "daily"})
	out, err := YearlyAverage(ds, nil)
	require.NoError(t, err)
	a, err := out.MustVar("temperature")
	require.NoError(t, err)
	assert.Equal(t, 1, a.DimLen("time"))
	for _, v := range a.Values {
		assert.Equal(t, 1.0, v)
	}
	// Degenerate single group: no recomputed time bounds.
	_, hasBnds := out.Var("time_bnds")
	assert.False(t, hasBnds)
}

func dailyYearDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	n := 365
	values := make([]float64, n)
	centers := make([]float64, n)
	bnds := make([]float64, 2*n)
	for d := 0; d < n; d++ {
		values[d] = float64(d)
		centers[d] = float64(d) + 0.5
		bnds[2*d] = float64(d)
		bnds[2*d+1] = float64(d + 1)
	}
	ds := dataset.New()
	a, err := dataset.NewDataArray("temperature", []string{"time"}, []int{n}, values)
	require.NoError(t, err)
	ds.SetVar(a)
	tb, err := dataset.NewDataArray("time_bnds", []string{"time", "bnds"}, []int{n, 2}, bnds)
	require.NoError(t, err)
	ds.SetVar(tb)
	c := dataset.NewNumericCoord("time", centers)
	c.Attrs["units"] = dataset.DefaultTimeUnits
	c.Attrs["bounds"] = "time_bnds"
	ds.SetCoord(c)
	return ds
}

func TestTemporalGroupAverage_FullYearToYearly(t *testing.T) {
	ds := dailyYearDataset(t)
	out, err := YearlyAverage(ds, nil)
	require.NoError(t, err)
	a, err := out.MustVar("temperature")
	require.NoError(t, err)
	require.Equal(t, 1, a.DimLen("time"))
	assert.InDelta(t, 182.0, a.Values[0], 1e-9)
	_, hasBnds := out.Var("time_bnds")
	assert.False(t, hasBnds)
	require.NotNil(t, out.Coord("time"))
	assert.Len(t, out.Coord("time").Values, 1)
}

func TestTemporalGroupAverage_MonthlyBoundsTile(t *testing.T) {
	ds := dailyYearDataset(t)
	out, err := MonthlyAverage(ds, nil)
	require.NoError(t, err)
	bnds, err := out.MustVar("time_bnds")
	require.NoError(t, err)
	require.Equal(t, 12, bnds.DimLen("time"))
	assert.Equal(t, 0.0, bnds.At(0, 0))
	assert.Equal(t, 365.0, bnds.At(11, 1))
	for m := 0; m < 11; m++ {
		assert.Equal(t, bnds.At(m, 1), bnds.At(m+1, 0))
	}
	// Time coordinate sits at each interval midpoint.
	c := out.Coord("time")
	require.NotNil(t, c)
	for m := 0; m < 12; m++ {
		assert.InDelta(t, (bnds.At(m, 0)+bnds.At(m, 1))/2, c.Values[m], 1e-9)
	}
}

func TestTemporalGroupAverage_BoundsWeighting(t *testing.T) {
	// Monthly samples with month-length bounds: the yearly mean must weight
	// each month by its length, not average the monthly values uniformly.
	ds := testkit.GenerateDataset(testkit.Options{Frequency: "monthly"})
	testkit.FillAll(ds, "temperature", func(ti int) float64 { return float64(ti) })

	bnds := ds.Vars["time_bnds"]
	var want2000, wsum float64
	for i := 0; i < 12; i++ { // the first 12 samples cover 2000
		w := bnds.At(i, 1) - bnds.At(i, 0)
		want2000 += w * float64(i)
		wsum += w
	}
	want2000 /= wsum

	out, err := YearlyAverage(ds, nil)
	require.NoError(t, err)
	a, err := out.MustVar("temperature")
	require.NoError(t, err)
	require.Equal(t, 2, a.DimLen("time"))
	assert.InDelta(t, want2000, a.At(0, 0, 0), 1e-9)
}

func TestTemporalGroupAverage_UnknownFrequency(t *testing.T) {
	ds := testkit.GenerateDataset(testkit.Options{Frequency: "daily"})
	_, err := TemporalGroupAverage(ds, nil, Frequency("weekly"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedConfig))
}

func TestPolyfit_ExactFit(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 2 - 3*xi + 0.5*xi*xi
	}
	coeffs, rss, err := polyfit(x, y, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2, coeffs[0], 1e-9)
	assert.InDelta(t, -3, coeffs[1], 1e-9)
	assert.InDelta(t, 0.5, coeffs[2], 1e-9)
	assert.InDelta(t, 0, rss, 1e-9)
}

func TestPolyfit_TooFewSamples(t *testing.T) {
	_, _, err := polyfit([]float64{0, 1}, []float64{1, 2}, 4)
	require.Error(t, err)
}
