// Package netcdf persists datasets as NetCDF files and reads them back.
package netcdf

import (
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"epiclim/domain/dataset"
	"epiclim/internal/errors"
)

// Codec reads and writes datasets in NetCDF classic format.
type Codec struct{}

// NewCodec creates a NetCDF dataset codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Read loads a NetCDF file into a dataset. One-dimensional variables whose
// dimension matches their own name become coordinates; string-valued ones
// become categorical coordinates.
func (c *Codec) Read(path string) (*dataset.Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening NetCDF file "+path)
	}
	defer nc.Close()

	ds := dataset.New()
	for _, key := range nc.Attributes().Keys() {
		if v, ok := nc.Attributes().Get(key); ok {
			if s, ok := v.(string); ok {
				ds.Attrs[key] = s
			}
		}
	}
	for _, name := range nc.ListVariables() {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, errors.Wrap(err, "reading variable "+name)
		}
		values, err := vg.Values()
		if err != nil {
			return nil, errors.Wrap(err, "reading values of "+name)
		}
		dims := vg.Dimensions()
		attrs := stringAttrs(vg.Attributes())

		if isCoordVar(name, dims) {
			if labels, ok := values.([]string); ok {
				coord := dataset.NewLabelCoord(name, labels)
				coord.Attrs = attrs
				ds.SetCoord(coord)
				continue
			}
			flat, _, err := flatten(values)
			if err != nil {
				return nil, errors.Wrap(err, "decoding coordinate "+name)
			}
			coord := dataset.NewNumericCoord(name, flat)
			coord.Attrs = attrs
			ds.SetCoord(coord)
			continue
		}

		flat, shape, err := flatten(values)
		if err != nil {
			return nil, errors.Wrap(err, "decoding variable "+name)
		}
		a, err := dataset.NewDataArray(name, dims, shape, flat)
		if err != nil {
			return nil, err
		}
		a.Attrs = attrs
		ds.SetVar(a)
	}
	return ds, nil
}

// Write stores a dataset as a NetCDF file. Coordinates are written first so
// readers see dimensions before the variables using them.
func (c *Codec) Write(path string, ds *dataset.Dataset) error {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return errors.Wrap(err, "creating NetCDF file "+path)
	}
	for name, coord := range ds.Coords {
		var values interface{}
		if coord.IsCategorical() {
			values = coord.Labels
		} else {
			values = coord.Values
		}
		if err := addVar(cw, name, []string{name}, values, coord.Attrs); err != nil {
			cw.Close()
			return err
		}
	}
	for _, name := range ds.VarNames() {
		a := ds.Vars[name]
		if err := addVar(cw, name, a.Dims, nest(a.Values, a.Shape), a.Attrs); err != nil {
			cw.Close()
			return err
		}
	}
	if err := cw.Close(); err != nil {
		return errors.Wrap(err, "writing NetCDF file "+path)
	}
	return nil
}

func isCoordVar(name string, dims []string) bool {
	return len(dims) == 1 && dims[0] == name
}

func stringAttrs(am api.AttributeMap) map[string]string {
	out := map[string]string{}
	if am == nil {
		return out
	}
	for _, key := range am.Keys() {
		if v, ok := am.Get(key); ok {
			if s, ok := v.(string); ok {
				out[key] = s
			}
		}
	}
	return out
}

func addVar(cw *cdf.CDFWriter, name string, dims []string, values interface{}, attrs map[string]string) error {
	keys := make([]string, 0, len(attrs))
	generic := map[string]interface{}{}
	for k, v := range attrs {
		keys = append(keys, k)
		generic[k] = v
	}
	am, err := util.NewOrderedMap(keys, generic)
	if err != nil {
		return errors.Wrap(err, "building attributes for "+name)
	}
	if err := cw.AddVar(name, api.Variable{
		Values:     values,
		Dimensions: dims,
		Attributes: am,
	}); err != nil {
		return errors.Wrap(err, "writing variable "+name)
	}
	return nil
}

// flatten converts arbitrarily nested numeric slices to a flat row-major
// float64 buffer plus the shape.
func flatten(values interface{}) ([]float64, []int, error) {
	v := reflect.ValueOf(values)
	shape := []int{}
	for v.Kind() == reflect.Slice {
		shape = append(shape, v.Len())
		if v.Len() == 0 {
			break
		}
		v = v.Index(0)
	}
	size := 1
	for _, s := range shape {
		size *= s
	}
	flat := make([]float64, 0, size)
	var walk func(reflect.Value) error
	walk = func(v reflect.Value) error {
		if v.Kind() == reflect.Slice {
			for i := 0; i < v.Len(); i++ {
				if err := walk(v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		}
		switch v.Kind() {
		case reflect.Float64, reflect.Float32:
			flat = append(flat, v.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			flat = append(flat, float64(v.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			flat = append(flat, float64(v.Uint()))
		default:
			return errors.UnsupportedConfig("unsupported NetCDF value kind " + v.Kind().String())
		}
		return nil
	}
	if err := walk(reflect.ValueOf(values)); err != nil {
		return nil, nil, err
	}
	return flat, shape, nil
}

// nest converts a flat row-major buffer into the nested slice form the
// writer expects.
func nest(values []float64, shape []int) interface{} {
	if len(shape) <= 1 {
		return values
	}
	inner := 1
	for _, s := range shape[1:] {
		inner *= s
	}
	out := make([]interface{}, shape[0])
	for i := range out {
		out[i] = nest(values[i*inner:(i+1)*inner], shape[1:])
	}
	return toTyped(out, shape)
}

// toTyped rebuilds a properly typed nested slice ([][]float64 etc) from the
// generic form, since the CDF writer reflects on concrete element types.
func toTyped(generic []interface{}, shape []int) interface{} {
	elemType := reflect.TypeOf(float64(0))
	for i := len(shape) - 1; i > 0; i-- {
		elemType = reflect.SliceOf(elemType)
	}
	out := reflect.MakeSlice(reflect.SliceOf(elemType), len(generic), len(generic))
	for i, g := range generic {
		out.Index(i).Set(reflect.ValueOf(g))
	}
	return out.Interface()
}
