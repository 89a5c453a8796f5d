package windfield

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rtm0/era5wind/internal/config"
	"github.com/rtm0/era5wind/internal/field"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeOpener serves synthetic per-day files with frames every 6 hours.
type fakeOpener struct {
	lons []float64

	// nanAt poisons variable name at the given time in every file holding it.
	nanVar string
	nanAt  time.Time
	fail   string

	// drop is left out of every file.
	drop string

	mu    sync.Mutex
	calls []string
}

func (o *fakeOpener) Open(path string, vars []string) (*field.Dataset, error) {
	o.mu.Lock()
	o.calls = append(o.calls, filepath.Base(path))
	o.mu.Unlock()
	if filepath.Base(path) == o.fail {
		return nil, errors.New("corrupt file")
	}
	day, err := time.Parse(dateLayout, filepath.Base(path)[:8])
	if err != nil {
		return nil, err
	}
	d := &field.Dataset{
		Lats: []float64{40, 30},
		Lons: o.lons,
		Vars: map[string][]float32{},
	}
	if !strings.HasSuffix(path, config.DefaultSurfaceSuffix) {
		d.Levels = []float64{1000, 850}
	}
	for h := 0; h < 24; h += 6 {
		d.Times = append(d.Times, day.Add(time.Duration(h)*time.Hour))
	}
	for _, name := range vars {
		if name == o.drop {
			continue
		}
		vals := make([]float32, len(d.Times)*d.FrameSize())
		for i := range vals {
			vals[i] = float32(i % d.FrameSize())
		}
		if name == o.nanVar {
			for t, ts := range d.Times {
				if ts.Equal(o.nanAt) {
					vals[d.Index(t, 0, 1, 0)] = float32(math.NaN())
				}
			}
		}
		d.Vars[name] = vals
	}
	return d, nil
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newConfig(dir string, d config.Direction, hours, stepMin int) *config.Config {
	return &config.Config{
		Start:             time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Direction:         d,
		IntegrationLength: time.Duration(hours) * time.Hour,
		InputDir:          dir,
		TimeStep:          time.Duration(stepMin) * time.Minute,
		PressureSuffix:    config.DefaultPressureSuffix,
		SurfaceSuffix:     config.DefaultSurfaceSuffix,
	}
}

func bases(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name string
		dir  config.Direction
		want []string
	}{
		{
			name: "forward",
			dir:  config.Forward,
			want: []string{"20200101-pl.grib", "20200102-pl.grib"},
		},
		{
			name: "backward",
			dir:  config.Backward,
			want: []string{"20200101-pl.grib", "20191231-pl.grib", "20191230-pl.grib"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(newConfig("/in", tt.dir, 30, 60))
			got := Discover("/in", "-pl.grib", w)
			if strings.Join(bases(got), " ") != strings.Join(tt.want, " ") {
				t.Errorf("Discover() = %v, want %v", bases(got), tt.want)
			}
			if filepath.Dir(got[0]) != "/in" {
				t.Errorf("Discover() dir = %q, want /in", filepath.Dir(got[0]))
			}
		})
	}
}

func TestDiscoverCoversEveryDay(t *testing.T) {
	start := time.Date(2020, 2, 27, 0, 0, 0, 0, time.UTC)
	for _, hours := range []int{1, 23, 24, 25, 48, 72, 240} {
		for _, dir := range []config.Direction{config.Forward, config.Backward} {
			cfg := newConfig("d", dir, hours, 60)
			cfg.Start = start
			w := NewWindow(cfg)
			got := Discover("d", "-pl.grib", w)
			earliest, latest := w.Bounds()
			days := int(latest.Truncate(24*time.Hour).Sub(earliest.Truncate(24*time.Hour))/(24*time.Hour)) + 1
			if len(got) != days {
				t.Errorf("%dh %s: Discover() returned %d files, want %d", hours, dir, len(got), days)
			}
			if got[0] != FileName("d", start, "-pl.grib") {
				t.Errorf("%dh %s: first file = %s, want the start day", hours, dir, got[0])
			}
		}
	}
}

func TestWindowBounds(t *testing.T) {
	w := NewWindow(newConfig("d", config.Backward, 30, 60))
	earliest, latest := w.Bounds()
	if !earliest.Equal(time.Date(2019, 12, 30, 18, 0, 0, 0, time.UTC)) || !latest.Equal(w.Start) {
		t.Errorf("Bounds() = %s, %s", earliest, latest)
	}
}

func TestNewForward(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "20200101-pl.grib", "20200102-pl.grib")
	o := &fakeOpener{lons: []float64{-90, 0, 90}}

	a, err := New(context.Background(), newConfig(dir, config.Forward, 30, 60), o, discard, 2)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := bases(a.Files); strings.Join(got, " ") != "20200101-pl.grib 20200102-pl.grib" {
		t.Errorf("Files = %v", got)
	}
	if a.Window.Direction != config.Forward {
		t.Errorf("Direction = %s, want forward", a.Window.Direction)
	}
	if a.FrameCount != 6 {
		t.Errorf("FrameCount = %d, want 6", a.FrameCount)
	}
	first, last := a.Field.Times[0], a.Field.Times[len(a.Field.Times)-1]
	if !first.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) || !last.Equal(time.Date(2020, 1, 2, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("sliced range = [%s, %s]", first, last)
	}
	if a.SourceInterval != 6*time.Hour {
		t.Errorf("SourceInterval = %s, want 6h", a.SourceInterval)
	}
	if a.StepsPerFrame != 6 {
		t.Errorf("StepsPerFrame = %v, want 6", a.StepsPerFrame)
	}
	if want := []float64{0, 90, 270}; fmt.Sprint(a.Lons) != fmt.Sprint(want) {
		t.Errorf("Lons = %v, want %v", a.Lons, want)
	}
	if want := 6 * 2 * 2 * 3; len(a.U) != want || len(a.V) != want || len(a.W) != want {
		t.Errorf("len(U, V, W) = %d, %d, %d, want %d", len(a.U), len(a.V), len(a.W), want)
	}
	if a.Surface != nil || a.SurfaceFiles != nil {
		t.Error("surface data loaded without boundary check")
	}
}

func TestNewBackward(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "20191230-pl.grib", "20191231-pl.grib", "20200101-pl.grib")
	o := &fakeOpener{lons: []float64{0, 120, 240}}

	a, err := New(context.Background(), newConfig(dir, config.Backward, 30, 60), o, discard, 1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := strings.Join(bases(a.Files), " "); got != "20200101-pl.grib 20191231-pl.grib 20191230-pl.grib" {
		t.Errorf("Files = %s", got)
	}
	times := a.Field.Times
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			t.Fatalf("time axis not increasing at %d: %s after %s", i, times[i], times[i-1])
		}
	}
	if !times[0].Equal(time.Date(2019, 12, 30, 18, 0, 0, 0, time.UTC)) ||
		!times[len(times)-1].Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("sliced range = [%s, %s]", times[0], times[len(times)-1])
	}
	if a.FrameCount != 6 {
		t.Errorf("FrameCount = %d, want 6", a.FrameCount)
	}
}

func TestStepsPerFrame(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "20200101-pl.grib", "20200102-pl.grib")

	a, err := New(context.Background(), newConfig(dir, config.Forward, 30, 30), &fakeOpener{lons: []float64{0}}, discard, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.SourceInterval.Seconds() != 21600 || a.StepsPerFrame != 12 {
		t.Errorf("SourceInterval = %s, StepsPerFrame = %v, want 21600s and 12", a.SourceInterval, a.StepsPerFrame)
	}

	a, err = New(context.Background(), newConfig(dir, config.Forward, 30, 50), &fakeOpener{lons: []float64{0}}, discard, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.StepsPerFrame != 7.2 {
		t.Errorf("StepsPerFrame = %v, want 7.2", a.StepsPerFrame)
	}
}

func TestNewMissingValues(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "20200101-pl.grib", "20200102-pl.grib")
	for _, v := range []string{"u", "v", "w"} {
		o := &fakeOpener{lons: []float64{0, 90}, nanVar: v, nanAt: time.Date(2020, 1, 2, 6, 0, 0, 0, time.UTC)}
		_, err := New(context.Background(), newConfig(dir, config.Forward, 30, 60), o, discard, 0)
		var derr *DataCompletenessError
		if !errors.As(err, &derr) {
			t.Fatalf("NaN in %s: New() error = %v, want *DataCompletenessError", v, err)
		}
		if len(derr.Vars) != 1 || derr.Vars[0] != v {
			t.Errorf("DataCompletenessError.Vars = %v, want [%s]", derr.Vars, v)
		}
	}

	// Outside the window the NaN is clipped away.
	o := &fakeOpener{lons: []float64{0, 90}, nanVar: "u", nanAt: time.Date(2020, 1, 2, 12, 0, 0, 0, time.UTC)}
	if _, err := New(context.Background(), newConfig(dir, config.Forward, 30, 60), o, discard, 0); err != nil {
		t.Errorf("New() error = %v, want nil for NaN outside the window", err)
	}
}

func TestNewMissingComponent(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "20200101-pl.grib", "20200102-pl.grib")
	o := &fakeOpener{lons: []float64{0}, drop: "w"}

	a, err := New(context.Background(), newConfig(dir, config.Forward, 30, 60), o, discard, 0)
	if err == nil {
		t.Fatalf("New() error = nil with W = %v, want error for a file set without w", a.W)
	}
	if !strings.Contains(err.Error(), `"w"`) {
		t.Errorf("New() error = %v, want it to name w", err)
	}
}

func TestNewMissingFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "20200101-pl.grib", "20191230-pl.grib")
	o := &fakeOpener{lons: []float64{0}}

	_, err := New(context.Background(), newConfig(dir, config.Backward, 30, 60), o, discard, 0)
	var merr *MissingFileError
	if !errors.As(err, &merr) {
		t.Fatalf("New() error = %v, want *MissingFileError", err)
	}
	if want := filepath.Join(dir, "20191231-pl.grib"); merr.Path != want {
		t.Errorf("MissingFileError.Path = %q, want %q", merr.Path, want)
	}
	if len(o.calls) != 0 {
		t.Errorf("opener called %d times before the missing file was reported", len(o.calls))
	}
}

func TestNewReadError(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "20200101-pl.grib", "20200102-pl.grib")
	o := &fakeOpener{lons: []float64{0}, fail: "20200102-pl.grib"}

	_, err := New(context.Background(), newConfig(dir, config.Forward, 30, 60), o, discard, 0)
	if err == nil || !strings.Contains(err.Error(), "20200102-pl.grib") {
		t.Errorf("New() error = %v, want error naming the file", err)
	}
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := newConfig(t.TempDir(), 0, 30, 60)
	o := &fakeOpener{lons: []float64{0}}
	_, err := New(context.Background(), cfg, o, discard, 0)
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("New() error = %v, want *config.ConfigurationError", err)
	}
	if len(o.calls) != 0 {
		t.Error("opener called for an invalid configuration")
	}
}

func TestNewCanceled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "20200101-pl.grib", "20200102-pl.grib")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(ctx, newConfig(dir, config.Forward, 30, 60), &fakeOpener{lons: []float64{0}}, discard, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("New() error = %v, want context.Canceled", err)
	}
}

func TestNewBoundaryCheck(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "20200101-pl.grib", "20200102-pl.grib", "20200101-sl.grib")
	cfg := newConfig(dir, config.Forward, 30, 60)
	cfg.BoundaryCheck = true

	_, err := New(context.Background(), cfg, &fakeOpener{lons: []float64{-10, 10}}, discard, 0)
	var merr *MissingFileError
	if !errors.As(err, &merr) || filepath.Base(merr.Path) != "20200102-sl.grib" {
		t.Fatalf("New() error = %v, want missing 20200102-sl.grib", err)
	}

	touch(t, dir, "20200102-sl.grib")
	a, err := New(context.Background(), cfg, &fakeOpener{lons: []float64{-10, 10}}, discard, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := strings.Join(bases(a.SurfaceFiles), " "); got != "20200101-sl.grib 20200102-sl.grib" {
		t.Errorf("SurfaceFiles = %s", got)
	}
	if _, ok := a.Surface.Vars[SurfacePressure]; !ok {
		t.Fatal("surface pressure not loaded")
	}
	if len(a.Surface.Times) != a.FrameCount {
		t.Errorf("surface frames = %d, want %d", len(a.Surface.Times), a.FrameCount)
	}
	if fmt.Sprint(a.Surface.Lons) != "[10 350]" {
		t.Errorf("surface Lons = %v, want [10 350]", a.Surface.Lons)
	}
	if _, ok := a.Field.Vars[SurfacePressure]; ok {
		t.Error("surface pressure merged into the wind field")
	}
}
