package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"epiclim/domain/dataset"
	"epiclim/internal/errors"
)

// StatDim is the categorical dimension added by the ensemble statistics
// engine. Downstream consumers (variance decomposition, the dashboard)
// depend on its exact label vocabulary.
const StatDim = "ensemble_stat"

// StatLabels is the full-ensemble label vocabulary, in stacking order.
var StatLabels = []string{"mean", "std", "var", "min", "lower", "median", "upper", "max"}

// EstimateStatLabels is the single-realization estimator's label vocabulary.
var EstimateStatLabels = []string{"mean", "var", "std", "lower", "upper"}

// DefaultConfLevel is the confidence level (percent) used for the lower and
// upper ensemble percentiles when the caller does not specify one.
const DefaultConfLevel = 90.0

// EnsembleStats computes per-realization summary statistics of the selected
// variables, adding an ensemble_stat dimension. std and var are population
// statistics; lower and upper are the percentiles at 50 ∓ confLevel/2. When
// the dataset holds at most one realization and estimateInternal is set, the
// computation falls back to the polynomial trend estimator
// (EstimateEnsembleStats).
func EnsembleStats(ds *dataset.Dataset, vars []string, confLevel float64, estimateInternal bool) (*dataset.Dataset, error) {
	if confLevel <= 0 || confLevel >= 100 {
		return nil, errors.InvalidInput(fmt.Sprintf("confidence level %v outside (0, 100)", confLevel))
	}
	if estimateInternal && ds.DimLen("realization") <= 1 {
		return EstimateEnsembleStats(ds, vars, confLevel)
	}
	names, err := ds.AutoSelectVars(vars)
	if err != nil {
		return nil, err
	}
	results := make([]*dataset.DataArray, len(names))
	g := new(errgroup.Group)
	for i, name := range names {
		g.Go(func() error {
			a, err := ds.MustVar(name)
			if err != nil {
				return err
			}
			stacked, err := ensembleStatsArray(a, confLevel)
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
	out.SetCoord(dataset.NewLabelCoord(StatDim, StatLabels))
	dataset.CopyVarAttrs(out, ds, names...)
	dataset.CopyBounds(out, ds)
	return out, nil
}

// ensembleStatsArray reduces the realization dimension of a single variable
// to the eight summary statistics, stacked along a trailing ensemble_stat
// axis. An absent realization dimension is treated as size one.
func ensembleStatsArray(a *dataset.DataArray, confLevel float64) (*dataset.DataArray, error) {
	if !a.HasDim("realization") {
		a = a.ExpandDims("realization")
	}
	lowerP := 0.5 - confLevel/200
	upperP := 0.5 + confLevel/200
	reducers := map[string]func([]float64) float64{
		"mean":   meanOf,
		"std":    func(s []float64) float64 { return math.Sqrt(popVarOf(s)) },
		"var":    popVarOf,
		"min":    func(s []float64) float64 { return quantileOf(s, 0) },
		"lower":  func(s []float64) float64 { return quantileOf(s, lowerP) },
		"median": func(s []float64) float64 { return quantileOf(s, 0.5) },
		"upper":  func(s []float64) float64 { return quantileOf(s, upperP) },
		"max":    func(s []float64) float64 { return quantileOf(s, 1) },
	}
	arrs := make([]*dataset.DataArray, len(StatLabels))
	for i, label := range StatLabels {
		r, err := a.Reduce("realization", reducers[label])
		if err != nil {
			return nil, err
		}
		arrs[i] = r
	}
	return dataset.Stack(StatDim, arrs...)
}

func meanOf(s []float64) float64 {
	v, err := stats.Mean(stats.Float64Data(s))
	if err != nil {
		return math.NaN()
	}
	return v
}

func popVarOf(s []float64) float64 {
	v, err := stats.PopulationVariance(stats.Float64Data(s))
	if err != nil {
		return math.NaN()
	}
	return v
}

// quantileOf computes a linearly interpolated quantile, matching the default
// interpolation of array-engine quantile reductions.
func quantileOf(s []float64, p float64) float64 {
	sorted := append([]float64(nil), s...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}
