package analysis

import (
	"strings"

	"epiclim/domain/dataset"
)

// VarTypeDim is the categorical dimension added by the variance
// decomposition.
const VarTypeDim = "var_type"

// VarTypeLabels is the decomposition's label vocabulary, in stacking order.
var VarTypeLabels = []string{"internal", "model", "scenario"}

// VarDecomp partitions the variance of the selected variables at each time
// point into internal (within model and scenario), model and scenario
// contributions, stacked along a var_type dimension. Absent model/scenario
// dimensions are treated as size one, so their contributions come out zero.
// With fraction set, each contribution is divided by the per-point total;
// where the total is exactly zero the fractions are NaN.
func VarDecomp(ds *dataset.Dataset, vars []string, fraction, estimateInternal bool) (*dataset.Dataset, error) {
	names, err := ds.AutoSelectVars(vars)
	if err != nil {
		return nil, err
	}
	stat, err := EnsembleStats(ds, names, DefaultConfLevel, estimateInternal)
	if err != nil {
		return nil, err
	}
	out := dataset.New()
	for k, v := range ds.Attrs {
		out.Attrs[k] = v
	}
	for _, name := range names {
		a, err := stat.MustVar(name)
		if err != nil {
			return nil, err
		}
		decomp, err := varDecompArray(a, stat.Coord(StatDim), fraction)
		if err != nil {
			return nil, err
		}
		out.SetVar(decomp)
		applyVarDecompAttrs(decomp, ds.Vars[name], fraction)
	}
	for name, c := range stat.Coords {
		if name == StatDim || name == "model" || name == "scenario" {
			continue
		}
		out.SetCoord(c.Copy())
	}
	out.SetCoord(dataset.NewLabelCoord(VarTypeDim, VarTypeLabels))
	dataset.CopyBounds(out, ds)
	return out, nil
}

// varDecompArray computes the three variance components from a stacked
// ensemble-statistics array and its ensemble_stat coordinate.
func varDecompArray(a *dataset.DataArray, statCoord *dataset.Coord, fraction bool) (*dataset.DataArray, error) {
	varArr, err := a.SelectIndex(StatDim, statCoord.IndexOf("var"))
	if err != nil {
		return nil, err
	}
	meanArr, err := a.SelectIndex(StatDim, statCoord.IndexOf("mean"))
	if err != nil {
		return nil, err
	}
	for _, dim := range []string{"model", "scenario"} {
		if !varArr.HasDim(dim) {
			varArr = varArr.ExpandDims(dim)
			meanArr = meanArr.ExpandDims(dim)
		}
	}

	internal, err := reduceChain(varArr, step{"scenario", meanOf}, step{"model", meanOf})
	if err != nil {
		return nil, err
	}
	model, err := reduceChain(meanArr, step{"model", popVarOf}, step{"scenario", meanOf})
	if err != nil {
		return nil, err
	}
	scenario, err := reduceChain(meanArr, step{"model", meanOf}, step{"scenario", popVarOf})
	if err != nil {
		return nil, err
	}
	stacked, err := dataset.Stack(VarTypeDim, internal, model, scenario)
	if err != nil {
		return nil, err
	}
	if !fraction {
		return stacked, nil
	}
	total, err := stacked.Reduce(VarTypeDim, func(parts []float64) float64 {
		sum := 0.0
		for _, p := range parts {
			sum += p
		}
		return sum
	})
	if err != nil {
		return nil, err
	}
	// 0/0 yields NaN, the documented zero-total policy.
	return dataset.Apply2(stacked, total, func(v, t float64) float64 { return v / t })
}

type step struct {
	dim string
	fn  func([]float64) float64
}

func reduceChain(a *dataset.DataArray, steps ...step) (*dataset.DataArray, error) {
	var err error
	for _, s := range steps {
		a, err = a.Reduce(s.dim, s.fn)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// applyVarDecompAttrs rewrites the result's units and long_name. Raw
// variances carry squared units; fractions are dimensionless.
func applyVarDecompAttrs(decomp, orig *dataset.DataArray, fraction bool) {
	decomp.Attrs = map[string]string{}
	if fraction {
		decomp.Attrs["long_name"] = "Fraction of variance"
		return
	}
	if orig == nil {
		decomp.Attrs["long_name"] = "Variance"
		return
	}
	if u, ok := orig.Attrs["units"]; ok && u != "" {
		decomp.Attrs["units"] = "(" + u + ")²"
	}
	if ln, ok := orig.Attrs["long_name"]; ok && ln != "" {
		decomp.Attrs["long_name"] = "Variance of " + strings.ToLower(ln)
	} else {
		decomp.Attrs["long_name"] = "Variance"
	}
}
