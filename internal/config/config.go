// Package config loads and validates the run configuration of the wind
// field assembler.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Direction is the sign of the integration in time.
type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Default file-name suffixes of the per-day input files.
const (
	DefaultPressureSuffix = "-pl.grib"
	DefaultSurfaceSuffix  = "-sl.grib"
)

// Config is a validated run configuration.
type Config struct {
	Start             time.Time
	Direction         Direction
	IntegrationLength time.Duration
	InputDir          string
	TimeStep          time.Duration
	BoundaryCheck     bool
	PressureSuffix    string
	SurfaceSuffix     string
}

// ConfigurationError reports a missing or malformed configuration key.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration key %q: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

var errMissing = errors.New("missing")

// raw holds the configuration as read from either file format, before
// validation.
type raw struct {
	Core struct {
		StartYMDH         string `yaml:"start_ymdh"`
		ForwardOption     string `yaml:"forward_option"`
		IntegrationLength string `yaml:"integration_length"`
		TimeStep          string `yaml:"time_step"`
		BoundaryCheck     *bool  `yaml:"boundary_check"`
	} `yaml:"core"`
	Input struct {
		InputERA5Case  string `yaml:"input_era5_case"`
		PressureSuffix string `yaml:"pressure_suffix"`
		SurfaceSuffix  string `yaml:"surface_suffix"`
	} `yaml:"input"`
}

// Load reads the configuration file at path. Files ending in .yaml or .yml
// are parsed as YAML, anything else as INI.
func Load(path string) (*Config, error) {
	var (
		r   *raw
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		r, err = loadYAML(path)
	default:
		r, err = loadINI(path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot load configuration %q: %w", path, err)
	}
	return r.parse()
}

func loadINI(path string) (*raw, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	r := &raw{}
	core, input := f.Section("CORE"), f.Section("INPUT")
	r.Core.StartYMDH = core.Key("start_ymdh").String()
	r.Core.ForwardOption = core.Key("forward_option").String()
	r.Core.IntegrationLength = core.Key("integration_length").String()
	r.Core.TimeStep = core.Key("time_step").String()
	if core.HasKey("boundary_check") {
		b, err := core.Key("boundary_check").Bool()
		if err != nil {
			return nil, &ConfigurationError{Key: "boundary_check", Err: err}
		}
		r.Core.BoundaryCheck = &b
	}
	r.Input.InputERA5Case = input.Key("input_era5_case").String()
	r.Input.PressureSuffix = input.Key("pressure_suffix").String()
	r.Input.SurfaceSuffix = input.Key("surface_suffix").String()
	return r, nil
}

func loadYAML(path string) (*raw, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := &raw{}
	if err := yaml.Unmarshal(b, r); err != nil {
		return nil, err
	}
	return r, nil
}

// startLayouts are the accepted spellings of start_ymdh.
var startLayouts = []string{"2006010215", "20060102 15"}

// ParseStart parses a packed YYYYMMDDHH (or YYYYMMDD HH) timestamp as UTC.
func ParseStart(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q does not match YYYYMMDDHH", s)
}

func (r *raw) parse() (*Config, error) {
	c := &Config{
		PressureSuffix: DefaultPressureSuffix,
		SurfaceSuffix:  DefaultSurfaceSuffix,
	}

	if r.Core.StartYMDH == "" {
		return nil, &ConfigurationError{Key: "start_ymdh", Err: errMissing}
	}
	start, err := ParseStart(r.Core.StartYMDH)
	if err != nil {
		return nil, &ConfigurationError{Key: "start_ymdh", Err: err}
	}
	c.Start = start

	dir, err := parseInt("forward_option", r.Core.ForwardOption)
	if err != nil {
		return nil, err
	}
	c.Direction = Direction(dir)

	hours, err := parseInt("integration_length", r.Core.IntegrationLength)
	if err != nil {
		return nil, err
	}
	c.IntegrationLength = time.Duration(hours) * time.Hour

	minutes, err := parseInt("time_step", r.Core.TimeStep)
	if err != nil {
		return nil, err
	}
	c.TimeStep = time.Duration(minutes) * time.Minute

	if r.Core.BoundaryCheck != nil {
		c.BoundaryCheck = *r.Core.BoundaryCheck
	}

	c.InputDir = strings.TrimSpace(r.Input.InputERA5Case)
	if s := strings.TrimSpace(r.Input.PressureSuffix); s != "" {
		c.PressureSuffix = s
	}
	if s := strings.TrimSpace(r.Input.SurfaceSuffix); s != "" {
		c.SurfaceSuffix = s
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseInt(key, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ConfigurationError{Key: key, Err: errMissing}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ConfigurationError{Key: key, Err: err}
	}
	return n, nil
}

// Validate checks field values. It is called by Load and should be called by
// anyone constructing a Config by hand.
func (c *Config) Validate() error {
	if c.Start.IsZero() {
		return &ConfigurationError{Key: "start_ymdh", Err: errMissing}
	}
	if c.Direction != Forward && c.Direction != Backward {
		return &ConfigurationError{Key: "forward_option", Err: fmt.Errorf("got %d, want 1 or -1", int(c.Direction))}
	}
	if c.IntegrationLength <= 0 {
		return &ConfigurationError{Key: "integration_length", Err: fmt.Errorf("got %s, want a positive number of hours", c.IntegrationLength)}
	}
	if c.TimeStep <= 0 {
		return &ConfigurationError{Key: "time_step", Err: fmt.Errorf("got %s, want a positive number of minutes", c.TimeStep)}
	}
	if c.InputDir == "" {
		return &ConfigurationError{Key: "input_era5_case", Err: errMissing}
	}
	if c.PressureSuffix == "" {
		return &ConfigurationError{Key: "pressure_suffix", Err: errMissing}
	}
	if c.BoundaryCheck && c.SurfaceSuffix == "" {
		return &ConfigurationError{Key: "surface_suffix", Err: errMissing}
	}
	return nil
}

// Final returns the end of the integration window.
func (c *Config) Final() time.Time {
	return c.Start.Add(time.Duration(c.Direction) * c.IntegrationLength)
}
