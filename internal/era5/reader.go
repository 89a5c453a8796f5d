package era5

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/rtm0/era5wind/internal/field"
)

// Coordinate variable names, in order of preference. ERA5 files produced by
// different CDS versions and converters spell them differently.
var (
	timeNames  = []string{"time", "valid_time"}
	levelNames = []string{"level", "pressure_level", "isobaricInhPa"}
	latNames   = []string{"latitude", "lat"}
	lonNames   = []string{"longitude", "lon"}
)

// Reader opens per-day ERA5 files into labeled arrays.
type Reader struct{}

// Open reads the named variables of the file at filePath. Packed integer
// variables are unpacked with scale_factor and add_offset; fill and missing
// values become NaN.
func (Reader) Open(filePath string, vars []string) (*field.Dataset, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%s is not a readable netCDF file (convert GRIB input with grib_to_netcdf or set pressure_suffix/surface_suffix): %w", filePath, err)
	}
	defer nc.Close()

	d := &field.Dataset{Vars: make(map[string][]float32, len(vars))}
	timeName, err := firstVar(nc, timeNames)
	if err != nil {
		return nil, err
	}
	d.Times, err = times(nc, timeName)
	if err != nil {
		return nil, err
	}
	latName, err := firstVar(nc, latNames)
	if err != nil {
		return nil, err
	}
	if d.Lats, err = coordValues(nc, latName); err != nil {
		return nil, err
	}
	lonName, err := firstVar(nc, lonNames)
	if err != nil {
		return nil, err
	}
	if d.Lons, err = coordValues(nc, lonName); err != nil {
		return nil, err
	}
	wantDims := []string{timeName, latName, lonName}
	if levelName, err := firstVar(nc, levelNames); err == nil {
		if d.Levels, err = coordValues(nc, levelName); err != nil {
			return nil, err
		}
		wantDims = []string{timeName, levelName, latName, lonName}
	}

	for _, name := range vars {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		if dims := vg.Dimensions(); !reflect.DeepEqual(dims, wantDims) {
			return nil, fmt.Errorf("variable %q has dimensions %v, want %v", name, dims, wantDims)
		}
		v, err := vg.Values()
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		d.Vars[name], err = unpack(v, newPacking(vg.Attributes()))
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func firstVar(nc api.Group, names []string) (string, error) {
	for _, name := range names {
		if _, err := nc.GetVarGetter(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("none of the coordinate variables %v found", names)
}

func coordValues(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	return toFloat64s(v)
}

func times(nc api.Group, name string) ([]time.Time, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	offsets, err := toFloat64s(v)
	if err != nil {
		return nil, err
	}
	units, ok := vg.Attributes().Get("units")
	if !ok {
		return nil, fmt.Errorf("time variable %q has no units", name)
	}
	s, ok := units.(string)
	if !ok {
		return nil, fmt.Errorf("time variable %q has non-string units %T", name, units)
	}
	tu, err := ParseTimeUnits(s)
	if err != nil {
		return nil, err
	}
	ts := make([]time.Time, len(offsets))
	for i, off := range offsets {
		ts[i] = tu.Time(off)
	}
	return ts, nil
}

// packing describes the CF packing attributes of a variable.
type packing struct {
	scale, offset float64
	fill          []float64
}

func newPacking(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if v, ok := attrs.Get("scale_factor"); ok {
		if f, ok := scalar(v); ok {
			p.scale = f
		}
	}
	if v, ok := attrs.Get("add_offset"); ok {
		if f, ok := scalar(v); ok {
			p.offset = f
		}
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrs.Get(key); ok {
			if f, ok := scalar(v); ok {
				p.fill = append(p.fill, f)
			}
		}
	}
	return p
}

func (p packing) apply(raw float64) float32 {
	for _, f := range p.fill {
		if raw == f {
			return float32(math.NaN())
		}
	}
	return float32(raw*p.scale + p.offset)
}

// scalar converts a numeric attribute value, which may be stored as a
// one-element slice, into a float64.
func scalar(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		if rv.Len() != 1 {
			return 0, false
		}
		rv = rv.Index(0)
	}
	return number(rv)
}

func number(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return float64(rv.Int()), true
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// toFloat64s flattens a numeric slice of any depth in row-major order.
func toFloat64s(v any) ([]float64, error) {
	var out []float64
	var walk func(rv reflect.Value) error
	walk = func(rv reflect.Value) error {
		if rv.Kind() == reflect.Slice {
			for i := 0; i < rv.Len(); i++ {
				if err := walk(rv.Index(i)); err != nil {
					return err
				}
			}
			return nil
		}
		f, ok := number(rv)
		if !ok {
			return fmt.Errorf("unsupported value type %s", rv.Type())
		}
		out = append(out, f)
		return nil
	}
	if err := walk(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return out, nil
}

func unpack(v any, p packing) ([]float32, error) {
	// ERA5 ships packed int16 grids; avoid the reflective path for them.
	switch x := v.(type) {
	case [][][][]int16:
		var out []float32
		for _, a := range x {
			for _, b := range a {
				for _, c := range b {
					for _, r := range c {
						out = append(out, p.apply(float64(r)))
					}
				}
			}
		}
		return out, nil
	case [][][]int16:
		var out []float32
		for _, a := range x {
			for _, b := range a {
				for _, r := range b {
					out = append(out, p.apply(float64(r)))
				}
			}
		}
		return out, nil
	}
	raw, err := toFloat64s(v)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(raw))
	for i, r := range raw {
		out[i] = p.apply(r)
	}
	return out, nil
}
