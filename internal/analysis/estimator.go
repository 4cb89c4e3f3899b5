package analysis

import (
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"epiclim/domain/dataset"
	"epiclim/internal/errors"
)

// polyDegree is the degree of the trend polynomial fitted to each time
// series by the single-realization estimator.
const polyDegree = 4

// EstimateEnsembleStats estimates ensemble statistics from a single
// realization by fitting a polynomial trend to each time series and treating
// the fit residuals as internal variability. The residual variance is assumed
// constant in time and broadcast along the time dimension. The result carries
// the ensemble_stat labels {mean, var, std, lower, upper}.
func EstimateEnsembleStats(ds *dataset.Dataset, vars []string, confLevel float64) (*dataset.Dataset, error) {
	if confLevel <= 0 || confLevel >= 100 {
		return nil, errors.InvalidInput("confidence level outside (0, 100)")
	}
	if n := ds.DimLen("realization"); n > 1 {
		return nil, errors.CardinalityViolation(
			"ensemble statistics can only be estimated from a single realization; " +
				"use the full ensemble statistics for multi-realization data")
	}
	names, err := ds.AutoSelectVars(vars)
	if err != nil {
		return nil, err
	}
	times, err := ds.TimeValues()
	if err != nil {
		return nil, err
	}
	x := make([]float64, len(times))
	for i, t := range times {
		x[i] = t.Sub(times[0]).Hours() / 24
	}
	z := distuv.UnitNormal.Quantile(0.5 + confLevel/200)

	results := make([]*dataset.DataArray, len(names))
	g := new(errgroup.Group)
	for i, name := range names {
		g.Go(func() error {
			a, err := ds.MustVar(name)
			if err != nil {
				return err
			}
			stacked, err := estimateStatsArray(a, x, z)
			if err != nil {
				return err
			}
			results[i] = stacked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := dataset.New()
	for k, v := range ds.Attrs {
		out.Attrs[k] = v
	}
	for _, r := range results {
		out.SetVar(r)
	}
	for name, c := range ds.Coords {
		if name == "realization" {
			continue
		}
		out.SetCoord(c.Copy())
	}
	out.SetCoord(dataset.NewLabelCoord(StatDim, EstimateStatLabels))
	dataset.CopyVarAttrs(out, ds, names...)
	dataset.CopyBounds(out, ds)
	return out, nil
}

// estimateStatsArray fits the trend polynomial along time for every position
// of the remaining dimensions and stacks the five estimated statistics along
// a trailing ensemble_stat axis. A length-one realization dimension is
// squeezed away first.
func estimateStatsArray(a *dataset.DataArray, x []float64, z float64) (*dataset.DataArray, error) {
	if a.HasDim("realization") {
		var err error
		a, err = a.Squeeze("realization")
		if err != nil {
			return nil, err
		}
	}
	if !a.HasDim("time") {
		return nil, errors.UnsupportedConfig("variable " + a.Name + " has no time dimension")
	}
	nTime := a.DimLen("time")
	mean, rss, err := a.TransformSlices("time", func(series []float64) ([]float64, float64, error) {
		coeffs, r, err := polyfit(x, series, polyDegree)
		if err != nil {
			return nil, 0, err
		}
		fitted := make([]float64, len(series))
		for i, xi := range x {
			fitted[i] = polyval(coeffs, xi)
		}
		return fitted, r, nil
	})
	if err != nil {
		return nil, err
	}
	variance := rss.Apply(func(v float64) float64 { return v / float64(nTime) })
	varFull, err := variance.BroadcastLike(mean)
	if err != nil {
		return nil, err
	}
	stdFull := varFull.Apply(math.Sqrt)
	lower, err := dataset.Apply2(mean, stdFull, func(m, s float64) float64 { return m - z*s })
	if err != nil {
		return nil, err
	}
	upper, err := dataset.Apply2(mean, stdFull, func(m, s float64) float64 { return m + z*s })
	if err != nil {
		return nil, err
	}
	return dataset.Stack(StatDim, mean, varFull, stdFull, lower, upper)
}
