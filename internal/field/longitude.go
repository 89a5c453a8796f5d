package field

import "sort"

// NormalizeLongitude maps a signed [-180, 180) longitude axis onto [0, 360)
// and reorders every variable so the axis is ascending. It reports whether
// anything changed; a dataset without negative longitudes is returned as is.
func NormalizeLongitude(d *Dataset) (*Dataset, bool) {
	negative := false
	for _, lon := range d.Lons {
		if lon < 0 {
			negative = true
			break
		}
	}
	if !negative {
		return d, false
	}

	adjusted := make([]float64, len(d.Lons))
	for i, lon := range d.Lons {
		if lon < 0 {
			lon += 360
		}
		adjusted[i] = lon
	}
	// order[i] is the source column that lands in column i.
	order := make([]int, len(adjusted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return adjusted[order[a]] < adjusted[order[b]]
	})
	lons := make([]float64, len(order))
	for i, src := range order {
		lons[i] = adjusted[src]
	}

	out := &Dataset{
		Times:  d.Times,
		Levels: d.Levels,
		Lats:   d.Lats,
		Lons:   lons,
		Vars:   make(map[string][]float32, len(d.Vars)),
	}
	nx := len(order)
	for name, vals := range d.Vars {
		sorted := make([]float32, len(vals))
		for row := 0; row+nx <= len(vals); row += nx {
			for i, src := range order {
				sorted[row+i] = vals[row+src]
			}
		}
		out.Vars[name] = sorted
	}
	return out, true
}
