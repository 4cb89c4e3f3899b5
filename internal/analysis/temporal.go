package analysis

import (
	"sort"
	"time"

	"epiclim/domain/dataset"
	"epiclim/internal/errors"
)

// Frequency selects the target granularity of a temporal group average.
type Frequency string

const (
	FreqYearly  Frequency = "yearly"
	FreqMonthly Frequency = "monthly"
	FreqDaily   Frequency = "daily"
)

// TemporalGroupAverage reduces the time dimension of the selected variables
// to the given frequency. When the input carries time bounds the average is
// weighted by each sample's interval length, matching the behaviour of
// bounds-aware climate tooling; otherwise samples are weighted equally. The
// result carries freshly computed time bounds and a time coordinate centered
// on each interval's midpoint, except in the degenerate single-sample case,
// which carries neither.
func TemporalGroupAverage(ds *dataset.Dataset, vars []string, freq Frequency) (*dataset.Dataset, error) {
	switch freq {
	case FreqYearly, FreqMonthly, FreqDaily:
	default:
		return nil, errors.UnsupportedConfig("unsupported frequency: " + string(freq))
	}
	names, err := ds.AutoSelectVars(vars)
	if err != nil {
		return nil, err
	}
	if len(names) > 1 {
		// Each variable is averaged independently and the results merged,
		// which keeps one variable's grouping from interfering with another's.
		parts := make([]*dataset.Dataset, 0, len(names))
		for _, name := range names {
			part, err := TemporalGroupAverage(ds, []string{name}, freq)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
		return dataset.Merge(parts...), nil
	}
	name := names[0]
	a, err := ds.MustVar(name)
	if err != nil {
		return nil, err
	}
	if !a.HasDim("time") {
		return nil, errors.UnsupportedConfig("variable " + name + " has no time dimension")
	}
	times, err := ds.TimeValues()
	if err != nil {
		return nil, err
	}
	groups, starts := groupTimes(times, freq)
	weights := sampleWeights(ds, len(times))

	avg, err := groupAverageArray(a, groups, weights)
	if err != nil {
		return nil, err
	}

	out := dataset.New()
	for k, v := range ds.Attrs {
		out.Attrs[k] = v
	}
	out.SetVar(avg)
	for dimName, c := range ds.Coords {
		if dimName == "time" || dimName == "bnds" {
			continue
		}
		out.SetCoord(c.Copy())
	}
	units := ds.TimeUnits()
	if err := attachGroupTimes(out, starts, freq, units); err != nil {
		return nil, err
	}
	dataset.CopyVarAttrs(out, ds, name)
	dataset.CopyBounds(out, ds)
	return out, nil
}

// YearlyAverage computes the yearly mean of the selected variables. Thin
// wrapper around TemporalGroupAverage.
func YearlyAverage(ds *dataset.Dataset, vars []string) (*dataset.Dataset, error) {
	return TemporalGroupAverage(ds, vars, FreqYearly)
}

// MonthlyAverage computes the monthly mean of the selected variables. Thin
// wrapper around TemporalGroupAverage.
func MonthlyAverage(ds *dataset.Dataset, vars []string) (*dataset.Dataset, error) {
	return TemporalGroupAverage(ds, vars, FreqMonthly)
}

// groupTimes partitions time sample indices by the frequency's calendar key,
// ordered by period start.
func groupTimes(times []time.Time, freq Frequency) ([][]int, []time.Time) {
	keyed := map[time.Time][]int{}
	for i, t := range times {
		keyed[periodStart(t, freq)] = append(keyed[periodStart(t, freq)], i)
	}
	starts := make([]time.Time, 0, len(keyed))
	for start := range keyed {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	groups := make([][]int, len(starts))
	for i, start := range starts {
		groups[i] = keyed[start]
	}
	return groups, starts
}

func periodStart(t time.Time, freq Frequency) time.Time {
	switch freq {
	case FreqYearly:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case FreqMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func periodEnd(start time.Time, freq Frequency) time.Time {
	switch freq {
	case FreqYearly:
		return start.AddDate(1, 0, 0)
	case FreqMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// sampleWeights derives per-sample weights from the input time bounds, or
// equal weights when no bounds are present.
func sampleWeights(ds *dataset.Dataset, n int) []float64 {
	weights := make([]float64, n)
	bnds, ok := ds.Var("time_bnds")
	if ok && bnds.DimLen("time") == n && bnds.DimLen("bnds") == 2 {
		for i := 0; i < n; i++ {
			weights[i] = bnds.At(i, 1) - bnds.At(i, 0)
		}
		return weights
	}
	for i := range weights {
		weights[i] = 1
	}
	return weights
}

// groupAverageArray reduces the time axis of a to one weighted mean per
// group, preserving the axis position.
func groupAverageArray(a *dataset.DataArray, groups [][]int, weights []float64) (*dataset.DataArray, error) {
	k := a.AxisOf("time")
	outShape := append([]int(nil), a.Shape...)
	outShape[k] = len(groups)
	out := dataset.Filled(a.Name, a.Dims, outShape, 0)
	for g, members := range groups {
		idx := g
		reduced, err := a.Reduce("time", func(series []float64) float64 {
			sum, wsum := 0.0, 0.0
			for _, i := range members {
				sum += weights[i] * series[i]
				wsum += weights[i]
			}
			return sum / wsum
		})
		if err != nil {
			return nil, err
		}
		if err := scatterAlong(out, reduced, k, idx); err != nil {
			return nil, err
		}
	}
	for key, v := range a.Attrs {
		out.Attrs[key] = v
	}
	return out, nil
}

// scatterAlong writes a reduced array (dst's layout minus axis k) into dst at
// position index along axis k.
func scatterAlong(dst, reduced *dataset.DataArray, k, index int) error {
	outIdx := make([]int, len(reduced.Shape))
	full := make([]int, len(dst.Shape))
	for flat, v := range reduced.Values {
		rem := flat
		for i := len(reduced.Shape) - 1; i >= 0; i-- {
			outIdx[i] = rem % reduced.Shape[i]
			rem /= reduced.Shape[i]
		}
		oi := 0
		for i := range full {
			if i == k {
				full[i] = index
				continue
			}
			full[i] = outIdx[oi]
			oi++
		}
		dst.Set(v, full...)
	}
	return nil
}

// attachGroupTimes sets the result's time coordinate and bounds. A single
// group gets the bare period start and no bounds.
func attachGroupTimes(out *dataset.Dataset, starts []time.Time, freq Frequency, units string) error {
	if len(starts) == 1 {
		vals, err := dataset.EncodeTimes(starts, units)
		if err != nil {
			return err
		}
		c := dataset.NewNumericCoord("time", vals)
		c.Attrs["units"] = units
		out.SetCoord(c)
		return nil
	}
	centers := make([]time.Time, len(starts))
	lo := make([]time.Time, len(starts))
	hi := make([]time.Time, len(starts))
	for i, start := range starts {
		end := periodEnd(start, freq)
		lo[i] = start
		hi[i] = end
		centers[i] = start.Add(end.Sub(start) / 2)
	}
	centerVals, err := dataset.EncodeTimes(centers, units)
	if err != nil {
		return err
	}
	loVals, err := dataset.EncodeTimes(lo, units)
	if err != nil {
		return err
	}
	hiVals, err := dataset.EncodeTimes(hi, units)
	if err != nil {
		return err
	}
	c := dataset.NewNumericCoord("time", centerVals)
	c.Attrs["units"] = units
	c.Attrs["bounds"] = "time_bnds"
	out.SetCoord(c)
	bndValues := make([]float64, 2*len(starts))
	for i := range starts {
		bndValues[2*i] = loVals[i]
		bndValues[2*i+1] = hiVals[i]
	}
	bnds, err := dataset.NewDataArray("time_bnds", []string{"time", "bnds"}, []int{len(starts), 2}, bndValues)
	if err != nil {
		return err
	}
	out.SetVar(bnds)
	return nil
}
