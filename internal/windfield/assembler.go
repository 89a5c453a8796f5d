// Package windfield assembles the U, V and W wind components of consecutive
// per-day ERA5 pressure-level files into one continuous, window-clipped field.
package windfield

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rtm0/era5wind/internal/config"
	"github.com/rtm0/era5wind/internal/era5"
	"github.com/rtm0/era5wind/internal/field"
)

// SurfacePressure is the single-level variable loaded when boundary checks
// are enabled.
const SurfacePressure = "sp"

// Opener reads the named variables of one gridded file.
type Opener interface {
	Open(path string, vars []string) (*field.Dataset, error)
}

// DataCompletenessError reports wind components with missing values inside
// the integration window.
type DataCompletenessError struct {
	Vars []string
}

func (e *DataCompletenessError) Error() string {
	return fmt.Sprintf("found NaN in %s of the combined data set, please check the download domains for all variables are identical",
		strings.Join(e.Vars, ", "))
}

// Assembler holds the wind field of one run. All fields are set by New and
// must not be modified afterwards.
type Assembler struct {
	Window Window

	// Files are the pressure-level files in discovery order.
	Files []string

	// Field holds U, V and W clipped to the window.
	Field   *field.Dataset
	U, V, W []float32
	Lats    []float64
	Lons    []float64
	Levels  []float64

	FrameCount     int
	SourceInterval time.Duration
	StepsPerFrame  float64

	// SurfaceFiles and Surface are only set when boundary checks are on.
	SurfaceFiles []string
	Surface      *field.Dataset

	logger      *slog.Logger
	opener      Opener
	concurrency int
}

// New discovers, loads and assembles the wind field described by cfg.
// Up to concurrency files are read in parallel; zero or less means no limit.
func New(ctx context.Context, cfg *config.Config, opener Opener, logger *slog.Logger, concurrency int) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Assembler{
		Window:      NewWindow(cfg),
		logger:      logger,
		opener:      opener,
		concurrency: concurrency,
	}
	logger.Info("IO initiate", "start", a.Window.Start, "final", a.Window.Final, "dir", cfg.InputDir)

	a.Files = Discover(cfg.InputDir, cfg.PressureSuffix, a.Window)
	comb, err := a.assemble(ctx, a.Files, era5.WindVars)
	if err != nil {
		return nil, err
	}

	// The interval comes from the series before clipping so a short window
	// still sees two frames.
	a.SourceInterval, err = comb.Interval()
	if err != nil {
		return nil, err
	}
	a.StepsPerFrame = a.SourceInterval.Seconds() / a.Window.Step.Seconds()

	earliest, latest := a.Window.Bounds()
	a.Field, err = comb.SliceTime(earliest, latest)
	if err != nil {
		return nil, err
	}
	if missing := a.Field.MissingVars(era5.WindVars...); len(missing) > 0 {
		return nil, &DataCompletenessError{Vars: missing}
	}
	if len(a.Field.Times) == 0 {
		return nil, fmt.Errorf("no time frames between %s and %s in %d files", earliest, latest, len(a.Files))
	}
	if a.U, err = a.Field.Var(era5.ZonalWind); err != nil {
		return nil, err
	}
	if a.V, err = a.Field.Var(era5.MeridionalWind); err != nil {
		return nil, err
	}
	if a.W, err = a.Field.Var(era5.VerticalVelocity); err != nil {
		return nil, err
	}
	a.Lats, a.Lons, a.Levels = a.Field.Lats, a.Field.Lons, a.Field.Levels
	a.FrameCount = len(a.Field.Times)

	if cfg.BoundaryCheck {
		a.SurfaceFiles = Discover(cfg.InputDir, cfg.SurfaceSuffix, a.Window)
		surf, err := a.assemble(ctx, a.SurfaceFiles, []string{SurfacePressure})
		if err != nil {
			return nil, err
		}
		if a.Surface, err = surf.SliceTime(earliest, latest); err != nil {
			return nil, err
		}
	}

	logger.Info("init multi files successfully", a.Summary()...)
	return a, nil
}

// assemble loads files, orders them chronologically, concatenates them and
// normalizes the longitude axis.
func (a *Assembler) assemble(ctx context.Context, files []string, vars []string) (*field.Dataset, error) {
	for _, f := range files {
		a.logger.Info("enumerated", "file", f)
	}
	if err := checkFiles(files); err != nil {
		return nil, err
	}
	parts, err := a.load(ctx, files, vars)
	if err != nil {
		return nil, err
	}

	if a.Window.Direction == config.Backward {
		a.logger.Info("prepare for BACKWARD integration")
		slices.Reverse(parts)
	} else {
		a.logger.Info("prepare for FORWARD integration")
	}
	comb, err := field.Concat(parts)
	if err != nil {
		return nil, err
	}
	clear(parts)

	comb, changed := field.NormalizeLongitude(comb)
	if changed {
		a.logger.Info("longitude remapped to [0, 360)", "loCnt", len(comb.Lons))
	}
	return comb, nil
}

// load reads every file; parts keep the order of files regardless of which
// read finishes first.
func (a *Assembler) load(ctx context.Context, files []string, vars []string) ([]*field.Dataset, error) {
	parts := make([]*field.Dataset, len(files))
	g, ctx := errgroup.WithContext(ctx)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a.logger.Info("Reading", "file", f)
			d, err := a.opener.Open(f, vars)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", f, err)
			}
			parts[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// Summary returns the summary information about the assembled field
// suitable for logging.
func (a *Assembler) Summary() []any {
	earliest, latest := a.Window.Bounds()
	return []any{
		"direction", a.Window.Direction.String(),
		"files", len(a.Files),
		"from", earliest,
		"to", latest,
		"frames", a.FrameCount,
		"levCnt", len(a.Levels),
		"laCnt", len(a.Lats),
		"loCnt", len(a.Lons),
		"interval", a.SourceInterval,
		"stepsPerFrame", a.StepsPerFrame,
		"boundaryCheck", a.Surface != nil,
	}
}
