package epimod

import (
	"sort"
	"time"

	"epiclim/domain/dataset"
	"epiclim/internal/errors"
)

// MonthsSuitable reduces a monthly suitability dataset to the per-year count
// of months whose suitability strictly exceeds the threshold. Exactly one
// suitability variable must be resolvable; unlike list-valued operations,
// auto-selection here never falls back to "all variables".
func MonthsSuitable(ds *dataset.Dataset, varName string, threshold float64) (*dataset.Dataset, error) {
	name, err := ds.AutoSelectVar(varName)
	if err != nil {
		return nil, err
	}
	if scope := dataset.DeriveScope(ds); scope.Temporal != dataset.TemporalMonthly {
		return nil, errors.UnsupportedConfig(
			"months suitable requires monthly data; got " + scope.Temporal)
	}
	a, err := ds.MustVar(name)
	if err != nil {
		return nil, err
	}
	times, err := ds.TimeValues()
	if err != nil {
		return nil, err
	}
	byYear := map[int][]int{}
	for i, t := range times {
		byYear[t.Year()] = append(byYear[t.Year()], i)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	k := a.AxisOf("time")
	outShape := append([]int(nil), a.Shape...)
	outShape[k] = len(years)
	counts := dataset.Filled("months_suitable", a.Dims, outShape, 0)
	for yi, year := range years {
		members := byYear[year]
		reduced, err := a.Reduce("time", func(series []float64) float64 {
			n := 0.0
			for _, i := range members {
				if series[i] > threshold {
					n++
				}
			}
			return n
		})
		if err != nil {
			return nil, err
		}
		writeYear(counts, reduced, k, yi)
	}
	counts.Attrs["long_name"] = "Months suitable"
	counts.Attrs["units"] = "months"

	out := dataset.New()
	for key, v := range ds.Attrs {
		out.Attrs[key] = v
	}
	out.SetVar(counts)
	for dimName, c := range ds.Coords {
		if dimName == "time" || dimName == "bnds" {
			continue
		}
		out.SetCoord(c.Copy())
	}
	if err := attachYearTimes(out, years, ds.TimeUnits()); err != nil {
		return nil, err
	}
	dataset.CopyBounds(out, ds)
	return out, nil
}

// writeYear scatters a time-reduced array into position yi of the output's
// time axis.
func writeYear(dst, reduced *dataset.DataArray, k, yi int) {
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
				full[i] = yi
				continue
			}
			full[i] = outIdx[oi]
			oi++
		}
		dst.Set(v, full...)
	}
}

func attachYearTimes(out *dataset.Dataset, years []int, units string) error {
	centers := make([]time.Time, len(years))
	lo := make([]time.Time, len(years))
	hi := make([]time.Time, len(years))
	for i, y := range years {
		start := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(1, 0, 0)
		lo[i], hi[i] = start, end
		centers[i] = start.Add(end.Sub(start) / 2)
	}
	centerVals, err := dataset.EncodeTimes(centers, units)
	if err != nil {
		return err
	}
	c := dataset.NewNumericCoord("time", centerVals)
	c.Attrs["units"] = units
	out.SetCoord(c)
	if len(years) == 1 {
		return nil
	}
	loVals, err := dataset.EncodeTimes(lo, units)
	if err != nil {
		return err
	}
	hiVals, err := dataset.EncodeTimes(hi, units)
	if err != nil {
		return err
	}
	values := make([]float64, 2*len(years))
	for i := range years {
		values[2*i] = loVals[i]
		values[2*i+1] = hiVals[i]
	}
	bnds, err := dataset.NewDataArray("time_bnds", []string{"time", "bnds"}, []int{len(years), 2}, values)
	if err != nil {
		return err
	}
	out.SetVar(bnds)
	c.Attrs["bounds"] = "time_bnds"
	return nil
}
