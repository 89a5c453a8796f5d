package windfield

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rtm0/era5wind/internal/config"
)

// Window is the time span the trajectory integrator will cover.
type Window struct {
	Start     time.Time
	Final     time.Time
	Direction config.Direction
	Step      time.Duration
}

// NewWindow derives the integration window from a run configuration.
func NewWindow(cfg *config.Config) Window {
	return Window{
		Start:     cfg.Start,
		Final:     cfg.Final(),
		Direction: cfg.Direction,
		Step:      cfg.TimeStep,
	}
}

// Bounds returns the window in chronological order, whatever the direction.
func (w Window) Bounds() (earliest, latest time.Time) {
	if w.Direction == config.Backward {
		return w.Final, w.Start
	}
	return w.Start, w.Final
}

const dateLayout = "20060102"

// FileName returns the path of the per-day file holding day.
func FileName(dir string, day time.Time, suffix string) string {
	return filepath.Join(dir, day.Format(dateLayout)+suffix)
}

// Discover lists the per-day files the window touches, walking one calendar
// day at a time from the start day towards the final day. The start day is
// always first. The walk follows the sign of Final - Start.
func Discover(dir, suffix string, w Window) []string {
	step := 1
	if w.Final.Before(w.Start) {
		step = -1
	}
	cur := w.Start
	last := w.Final.Format(dateLayout)
	files := []string{FileName(dir, cur, suffix)}
	for cur.Format(dateLayout) != last {
		cur = cur.AddDate(0, 0, step)
		files = append(files, FileName(dir, cur, suffix))
	}
	return files
}

// MissingFileError reports a per-day input file that does not exist.
type MissingFileError struct {
	Path string
	Err  error
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("cannot locate %s, please check files or settings: %v", e.Path, e.Err)
}

func (e *MissingFileError) Unwrap() error { return e.Err }

// checkFiles fails on the first path that does not exist.
func checkFiles(paths []string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return &MissingFileError{Path: p, Err: err}
		}
	}
	return nil
}
