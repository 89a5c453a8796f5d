// Package field implements a small coordinate-labeled array: a set of
// variables sharing one {time, level, latitude, longitude} grid.
package field

import (
	"fmt"
	"math"
	"time"
)

// Dataset holds variables on a common grid. Every variable is stored
// row-major as [time][level][latitude][longitude]. Single-level datasets
// have no Levels and are stored as [time][latitude][longitude].
type Dataset struct {
	Times  []time.Time
	Levels []float64
	Lats   []float64
	Lons   []float64
	Vars   map[string][]float32
}

// FrameSize returns the number of values in one time frame of a variable.
func (d *Dataset) FrameSize() int {
	n := len(d.Lats) * len(d.Lons)
	if len(d.Levels) > 0 {
		n *= len(d.Levels)
	}
	return n
}

// Validate checks that every variable matches the coordinate shape.
func (d *Dataset) Validate() error {
	want := len(d.Times) * d.FrameSize()
	for name, vals := range d.Vars {
		if len(vals) != want {
			return fmt.Errorf("variable %q has %d values, want %d (%d times x %d per frame)",
				name, len(vals), want, len(d.Times), d.FrameSize())
		}
	}
	return nil
}

// Var returns the values of the named variable.
func (d *Dataset) Var(name string) ([]float32, error) {
	vals, ok := d.Vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	return vals, nil
}

// Index returns the flat offset of (t, z, y, x). z is ignored for
// single-level datasets.
func (d *Dataset) Index(t, z, y, x int) int {
	nz := len(d.Levels)
	if nz == 0 {
		nz, z = 1, 0
	}
	return ((t*nz+z)*len(d.Lats)+y)*len(d.Lons) + x
}

// Concat joins datasets along the time axis in slice order. All inputs must
// share the same spatial coordinates and variable names.
func Concat(parts []*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}
	first := parts[0]
	out := &Dataset{
		Levels: first.Levels,
		Lats:   first.Lats,
		Lons:   first.Lons,
		Vars:   make(map[string][]float32, len(first.Vars)),
	}
	total := 0
	for i, p := range parts {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		if !sameCoords(first.Levels, p.Levels) || !sameCoords(first.Lats, p.Lats) || !sameCoords(first.Lons, p.Lons) {
			return nil, fmt.Errorf("part %d: spatial coordinates differ from part 0", i)
		}
		if len(p.Vars) != len(first.Vars) {
			return nil, fmt.Errorf("part %d: has %d variables, want %d", i, len(p.Vars), len(first.Vars))
		}
		total += len(p.Times)
	}
	out.Times = make([]time.Time, 0, total)
	for name := range first.Vars {
		vals := make([]float32, 0, total*first.FrameSize())
		for i, p := range parts {
			pv, ok := p.Vars[name]
			if !ok {
				return nil, fmt.Errorf("part %d: variable %q missing", i, name)
			}
			vals = append(vals, pv...)
		}
		out.Vars[name] = vals
	}
	for _, p := range parts {
		out.Times = append(out.Times, p.Times...)
	}
	return out, nil
}

func sameCoords(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SliceTime returns the frames whose time lies within [start, end],
// inclusive at both ends. The time axis must be increasing. The result
// shares its backing arrays with d.
func (d *Dataset) SliceTime(start, end time.Time) (*Dataset, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("slice end %s before start %s", end, start)
	}
	begin, limit := len(d.Times), len(d.Times)
	for i, t := range d.Times {
		if i > 0 && !t.After(d.Times[i-1]) {
			return nil, fmt.Errorf("time axis not increasing at index %d (%s)", i, t)
		}
		if begin == len(d.Times) && !t.Before(start) {
			begin = i
		}
		if t.After(end) && limit == len(d.Times) {
			limit = i
		}
	}
	if begin > limit {
		begin = limit
	}
	fs := d.FrameSize()
	out := &Dataset{
		Times:  d.Times[begin:limit],
		Levels: d.Levels,
		Lats:   d.Lats,
		Lons:   d.Lons,
		Vars:   make(map[string][]float32, len(d.Vars)),
	}
	for name, vals := range d.Vars {
		out.Vars[name] = vals[begin*fs : limit*fs]
	}
	return out, nil
}

// MissingVars returns the names, in argument order, of the variables that
// hold at least one NaN.
func (d *Dataset) MissingVars(names ...string) []string {
	var missing []string
	for _, name := range names {
		for _, v := range d.Vars[name] {
			if math.IsNaN(float64(v)) {
				missing = append(missing, name)
				break
			}
		}
	}
	return missing
}

// Interval returns the spacing between the first two time coordinates.
func (d *Dataset) Interval() (time.Duration, error) {
	if len(d.Times) < 2 {
		return 0, fmt.Errorf("need at least 2 time frames to derive the interval, got %d", len(d.Times))
	}
	return d.Times[1].Sub(d.Times[0]), nil
}
