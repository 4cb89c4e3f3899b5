// Package testkit builds synthetic climate datasets for tests, mirroring the
// coordinate layout of a coarse global model grid.
package testkit

import (
	"time"

	"epiclim/domain/dataset"
)

// Options controls dataset generation. Zero values give a single "temperature"
// variable on a yearly time axis with bounds and a [0, 360) longitude axis.
type Options struct {
	Vars      []string
	Frequency string // yearly, monthly or daily
	NoBounds  bool
	LonPM180  bool // use a [-180, 180] longitude axis

	// Optional leading ensemble dimensions. Data is repeated along them.
	Realizations []string
	Models       []string
	Scenarios    []string
}

var (
	latValues = []float64{-90, -88.75, 88.75, 90}
	latBnds   = [][2]float64{{-90, -89.375}, {-89.375, 0}, {0, 89.375}, {89.375, 90}}

	lonValues0360 = []float64{0, 1.875, 356.25, 358.125}
	lonBnds0360   = [][2]float64{{-0.9375, 0.9375}, {0.9375, 179.0625}, {179.0625, 357.1875}, {357.1875, 359.0625}}

	lonValuesPM180 = []float64{-180, -3.75, -1.875, 0}
	lonBndsPM180   = [][2]float64{{-180.9375, -179.0625}, {-179.0625, -2.8125}, {-2.8125, -0.9375}, {-0.9375, 0.9375}}
)

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func sampleTimes(frequency string) (centers []time.Time, bounds [][2]time.Time) {
	switch frequency {
	case "monthly":
		starts := []time.Time{
			date(2000, 1, 1, 0), date(2000, 2, 1, 0), date(2000, 3, 1, 0),
			date(2000, 4, 1, 0), date(2000, 5, 1, 0), date(2000, 6, 1, 0),
			date(2000, 7, 1, 0), date(2000, 8, 1, 0), date(2000, 9, 1, 0),
			date(2000, 10, 1, 0), date(2000, 11, 1, 0), date(2000, 12, 1, 0),
			date(2001, 1, 1, 0), date(2001, 2, 1, 0), date(2001, 12, 1, 0),
		}
		for _, s := range starts {
			e := s.AddDate(0, 1, 0)
			bounds = append(bounds, [2]time.Time{s, e})
			centers = append(centers, s.Add(e.Sub(s)/2))
		}
	case "daily":
		for d := 1; d <= 3; d++ {
			s := date(2000, 1, d, 0)
			bounds = append(bounds, [2]time.Time{s, s.AddDate(0, 0, 1)})
			centers = append(centers, date(2000, 1, d, 12))
		}
	default: // yearly
		for y := 2000; y <= 2002; y++ {
			bounds = append(bounds, [2]time.Time{date(y, 1, 1, 0), date(y + 1, 1, 1, 0)})
			centers = append(centers, date(y, 7, 1, 12))
		}
	}
	return centers, bounds
}

// GenerateDataset builds a test dataset filled with ones on a 4x4 lat/lon
// grid, with the requested time frequency, bounds variables and optional
// ensemble dimensions. Tests mutate the value buffers directly to set up
// specific scenarios.
func GenerateDataset(opts Options) *dataset.Dataset {
	vars := opts.Vars
	if len(vars) == 0 {
		vars = []string{"temperature"}
	}
	centers, bounds := sampleTimes(opts.Frequency)
	units := dataset.DefaultTimeUnits
	timeVals, err := dataset.EncodeTimes(centers, units)
	if err != nil {
		panic(err)
	}

	lonVals, lonB := lonValues0360, lonBnds0360
	if opts.LonPM180 {
		lonVals, lonB = lonValuesPM180, lonBndsPM180
	}

	dims := []string{}
	shape := []int{}
	extra := []struct {
		dim    string
		labels []string
	}{
		{"scenario", opts.Scenarios},
		{"model", opts.Models},
		{"realization", opts.Realizations},
	}
	ds := dataset.New()
	for _, e := range extra {
		if len(e.labels) == 0 {
			continue
		}
		dims = append(dims, e.dim)
		shape = append(shape, len(e.labels))
		ds.SetCoord(dataset.NewLabelCoord(e.dim, e.labels))
	}
	dims = append(dims, "time", "lat", "lon")
	shape = append(shape, len(timeVals), len(latValues), len(lonVals))

	for _, name := range vars {
		ds.SetVar(dataset.Filled(name, dims, shape, 1))
	}

	timeCoord := dataset.NewNumericCoord("time", timeVals)
	timeCoord.Attrs["units"] = units
	timeCoord.Attrs["long_name"] = "time"
	ds.SetCoord(timeCoord)
	latCoord := dataset.NewNumericCoord("lat", latValues)
	latCoord.Attrs["units"] = "degrees_north"
	ds.SetCoord(latCoord)
	lonCoord := dataset.NewNumericCoord("lon", lonVals)
	lonCoord.Attrs["units"] = "degrees_east"
	ds.SetCoord(lonCoord)

	if !opts.NoBounds {
		tb := make([][2]float64, len(bounds))
		for i, b := range bounds {
			enc, err := dataset.EncodeTimes([]time.Time{b[0], b[1]}, units)
			if err != nil {
				panic(err)
			}
			tb[i] = [2]float64{enc[0], enc[1]}
		}
		ds.SetVar(boundsVar("time_bnds", "time", tb))
		ds.SetVar(boundsVar("lat_bnds", "lat", latBnds))
		ds.SetVar(boundsVar("lon_bnds", "lon", lonB))
		timeCoord.Attrs["bounds"] = "time_bnds"
		latCoord.Attrs["bounds"] = "lat_bnds"
		lonCoord.Attrs["bounds"] = "lon_bnds"
	}
	return ds
}

func boundsVar(name, dim string, pairs [][2]float64) *dataset.DataArray {
	values := make([]float64, 2*len(pairs))
	for i, p := range pairs {
		values[2*i] = p[0]
		values[2*i+1] = p[1]
	}
	a, err := dataset.NewDataArray(name, []string{dim, "bnds"}, []int{len(pairs), 2}, values)
	if err != nil {
		panic(err)
	}
	return a
}

// FillSeries sets the values of a variable along time at a fixed position of
// all other dimensions set to index zero, leaving other positions untouched.
func FillSeries(ds *dataset.Dataset, name string, series []float64) {
	a := ds.Vars[name]
	k := a.AxisOf("time")
	idx := make([]int, len(a.Shape))
	for i, v := range series {
		idx[k] = i
		a.Set(v, idx...)
	}
}

// FillBy sets every element of a variable by a function of its full
// multi-index, keyed by dimension name.
func FillBy(ds *dataset.Dataset, name string, fn func(idx map[string]int) float64) {
	a := ds.Vars[name]
	pos := make([]int, len(a.Shape))
	idx := map[string]int{}
	for flat := range a.Values {
		rem := flat
		for i := len(a.Shape) - 1; i >= 0; i-- {
			pos[i] = rem % a.Shape[i]
			rem /= a.Shape[i]
		}
		for i, d := range a.Dims {
			idx[d] = pos[i]
		}
		a.Values[flat] = fn(idx)
	}
}

// FillAll sets every element of a variable by a function of its time index,
// so all spatial and ensemble positions share the same time series.
func FillAll(ds *dataset.Dataset, name string, fn func(timeIndex int) float64) {
	a := ds.Vars[name]
	k := a.AxisOf("time")
	idx := make([]int, len(a.Shape))
	for flat := range a.Values {
		rem := flat
		for i := len(a.Shape) - 1; i >= 0; i-- {
			idx[i] = rem % a.Shape[i]
			rem /= a.Shape[i]
		}
		a.Values[flat] = fn(idx[k])
	}
}
