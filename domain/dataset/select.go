package dataset

import (
	"math"
	"strings"

	"epiclim/internal/errors"
)

// IsBoundsVar reports whether a variable name denotes a bounds variable.
func IsBoundsVar(name string) bool {
	return strings.HasSuffix(name, "_bnds")
}

// NonBoundsVars returns the names of all non-bounds data variables in sorted
// order.
func (d *Dataset) NonBoundsVars() []string {
	names := make([]string, 0, len(d.Vars))
	for _, name := range d.VarNames() {
		if !IsBoundsVar(name) {
			names = append(names, name)
		}
	}
	return names
}

// AutoSelectVar resolves a single data variable name. An explicit name is
// validated and returned as-is; otherwise the dataset must contain exactly
// one non-bounds variable.
func (d *Dataset) AutoSelectVar(explicit string) (string, error) {
	if explicit != "" {
		if _, ok := d.Vars[explicit]; !ok {
			return "", errors.NotFound("data variable " + explicit)
		}
		return explicit, nil
	}
	candidates := d.NonBoundsVars()
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return "", errors.AmbiguousVariable(
		"multiple data variables present; the data variable to use must be specified")
}

// AutoSelectVars resolves one or more data variable names. An explicit list
// is validated and returned as-is; otherwise all non-bounds variables are
// returned.
func (d *Dataset) AutoSelectVars(explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		for _, name := range explicit {
			if _, ok := d.Vars[name]; !ok {
				return nil, errors.NotFound("data variable " + name)
			}
		}
		return explicit, nil
	}
	return d.NonBoundsVars(), nil
}

// CopyVarAttrs copies the attributes of the named variables from src onto
// dest. Both datasets must contain the variables.
func CopyVarAttrs(dest, src *Dataset, vars ...string) {
	for _, name := range vars {
		from, okFrom := src.Vars[name]
		to, okTo := dest.Vars[name]
		if !okFrom || !okTo {
			continue
		}
		to.Attrs = map[string]string{}
		for k, v := range from.Attrs {
			to.Attrs[k] = v
		}
	}
}

// CopyBounds copies the lat, lon and time bounds variables from src to dest
// whenever the bounds exist in src but not dest and the corresponding
// coordinate is identical in both datasets. Best-effort: mismatches are
// skipped silently.
func CopyBounds(dest, src *Dataset) {
	for _, dim := range []string{"lat", "lon", "time"} {
		bndVar := dim + "_bnds"
		if _, exists := dest.Vars[bndVar]; exists {
			continue
		}
		from, ok := src.Vars[bndVar]
		if !ok {
			continue
		}
		destCoord := dest.Coords[dim]
		srcCoord := src.Coords[dim]
		if destCoord == nil || srcCoord == nil || !destCoord.Equal(srcCoord) {
			continue
		}
		dest.SetVar(from.Copy())
		destCoord.Attrs["bounds"] = bndVar
	}
}

// SelVars returns a new dataset containing only the selected data variables,
// their coordinates, and any applicable bounds variables.
func (d *Dataset) SelVars(names ...string) (*Dataset, error) {
	out := New()
	for k, v := range d.Attrs {
		out.Attrs[k] = v
	}
	for _, name := range names {
		v, err := d.MustVar(name)
		if err != nil {
			return nil, err
		}
		out.SetVar(v.Copy())
		for _, dim := range v.Dims {
			if c := d.Coords[dim]; c != nil {
				out.SetCoord(c.Copy())
			}
		}
	}
	CopyBounds(out, d)
	return out, nil
}

// SelNearest selects the grid point nearest to the given latitude and
// longitude, keeping length-one lat/lon dimensions. When the dataset's
// longitude axis spans [0, 360] rather than [-180, 180], the requested
// longitude is folded into [0, 360) before the lookup.
func (d *Dataset) SelNearest(lat, lon float64) (*Dataset, error) {
	latCoord := d.Coords["lat"]
	lonCoord := d.Coords["lon"]
	if latCoord == nil || lonCoord == nil {
		return nil, errors.UnsupportedConfig("nearest-point selection requires lat and lon coordinates")
	}
	maxLon := math.Inf(-1)
	for _, v := range lonCoord.Values {
		if v > maxLon {
			maxLon = v
		}
	}
	if maxLon > 180.001 {
		lon = math.Mod(lon, 360)
		if lon < 0 {
			lon += 360
		}
	}
	out, err := d.ISel("lat", nearestIndex(latCoord.Values, lat))
	if err != nil {
		return nil, err
	}
	out, err = out.ISel("lon", nearestIndex(lonCoord.Values, lon))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func nearestIndex(values []float64, target float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, v := range values {
		if dist := math.Abs(v - target); dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}

// Merge combines datasets sharing coordinates into one dataset. Variables are
// copied left to right; a variable already present is left untouched.
func Merge(dss ...*Dataset) *Dataset {
	out := New()
	for _, ds := range dss {
		if ds == nil {
			continue
		}
		for k, v := range ds.Attrs {
			if _, ok := out.Attrs[k]; !ok {
				out.Attrs[k] = v
			}
		}
		for name, v := range ds.Vars {
			if _, ok := out.Vars[name]; !ok {
				out.Vars[name] = v.Copy()
			}
		}
		for name, c := range ds.Coords {
			if _, ok := out.Coords[name]; !ok {
				out.Coords[name] = c.Copy()
			}
		}
	}
	return out
}
