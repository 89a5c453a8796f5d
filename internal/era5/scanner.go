package era5

import (
	"fmt"

	"github.com/rtm0/era5wind/internal/field"
)

// Wind variable names of ERA5 pressure-level files.
const (
	ZonalWind        = "u"
	MeridionalWind   = "v"
	VerticalVelocity = "w"
)

// WindVars lists the wind components in the order they are read.
var WindVars = []string{ZonalWind, MeridionalWind, VerticalVelocity}

// Scanner retrieves wind records from an assembled field one timestamp at a
// time.
type Scanner struct {
	ds      *field.Dataset
	u, v, w []float32
	pos     int
	recs    []Record
}

// NewScanner creates a scanner over a pressure-level dataset holding the
// wind components.
func NewScanner(ds *field.Dataset) (*Scanner, error) {
	if len(ds.Levels) == 0 {
		return nil, fmt.Errorf("dataset has no pressure levels")
	}
	s := &Scanner{ds: ds}
	var err error
	if s.u, err = ds.Var(ZonalWind); err != nil {
		return nil, err
	}
	if s.v, err = ds.Var(MeridionalWind); err != nil {
		return nil, err
	}
	if s.w, err = ds.Var(VerticalVelocity); err != nil {
		return nil, err
	}
	return s, nil
}

// Summary returns the summary information about the dataset suitable for
// logging.
func (s *Scanner) Summary() []any {
	return []any{
		"dims", []string{"ts", "lev", "la", "lo"},
		"metrics", WindVars,
		"tsCnt", len(s.ds.Times),
		"levCnt", len(s.ds.Levels),
		"laCnt", len(s.ds.Lats),
		"loCnt", len(s.ds.Lons),
		"totalRecCnt", s.TotalRecCount(),
	}
}

// TotalRecCount returns the total number of records within the dataset.
func (s *Scanner) TotalRecCount() int {
	return len(s.ds.Times) * s.ds.FrameSize()
}

// Scan reads all records for the next timestamp.
func (s *Scanner) Scan() bool {
	if s.pos >= len(s.ds.Times) {
		return false
	}
	ts := s.ds.Times[s.pos].UnixMilli()
	s.recs = make([]Record, s.ds.FrameSize())
	k := 0
	for z, lev := range s.ds.Levels {
		for y, la := range s.ds.Lats {
			for x, lo := range s.ds.Lons {
				i := s.ds.Index(s.pos, z, y, x)
				s.recs[k] = Record{
					Timestamp:        ts,
					Level:            float32(lev),
					Latitude:         float32(la),
					Longitude:        float32(lo),
					ZonalWind:        s.u[i],
					MeridionalWind:   s.v[i],
					VerticalVelocity: s.w[i],
				}
				k++
			}
		}
	}
	s.pos++
	return true
}

// Records returns the records that have been read by the last Scan() operation.
// The function transfers ownership of records to the caller and the subsequent
// calls to this function without prior invocation of Scan() will return nil.
func (s *Scanner) Records() []Record {
	recs := s.recs
	s.recs = nil
	return recs
}
