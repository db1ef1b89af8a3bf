// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv         = "ARRIVALALARM"
	DefaultTextTpl    = "{{.PhaseIcon}} {{distance .Distance}}"
	DefaultTooltipTpl = `{{loc "Target"}}: {{.TargetName}}` + "\n" + `{{loc "Phase"}}: {{loc .Phase}}` + "\n" +
		`{{loc "Bearing"}}: {{floatFormat .Bearing 0}}°` + "\n" + `{{loc "Speed"}}: {{loc (speed .SpeedKmh)}}` + "\n" +
		`{{loc "Polling"}}: {{.Directive}}` + "\n" + `{{loc "Updated"}}: {{localizedTime .UpdatedAt}}`
	DefaultArrivalTpl = `{{loc "Arrived at"}} {{.TargetName}}, {{localizedTime .UpdatedAt}} ({{distance .Distance}} ` +
		`{{loc "from center"}})`
)

var (
	SourceTypes     = []string{"gpsd", "gpspoll", "ichnaea", "replay"}
	HistoryBackends = []string{"none", "redis", "postgres"}
	ArrivalPolicies = []string{"single", "consecutive"}

	ErrInvalidTarget = errors.New("invalid target")
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Target struct {
		ID     string  `fig:"id"`
		Name   string  `fig:"name"`
		Lat    float64 `fig:"lat"`
		Lon    float64 `fig:"lon"`
		Radius float64 `fig:"radius" default:"100"`
	} `fig:"target"`

	Tracking Tracking `fig:"tracking"`

	Source struct {
		// Allowed values: gpsd, gpspoll, ichnaea, replay
		Type string `fig:"type" default:"gpsd"`
		Host string `fig:"host" default:"localhost"`
		Port string `fig:"port" default:"2947"`
		// Timeout bounds a single gpspoll or ichnaea lookup.
		Timeout time.Duration `fig:"timeout" default:"10s"`
		// FastInterval is the poll interval of background sources under a distance-based directive.
		FastInterval time.Duration `fig:"fast_interval" default:"5s"`

		Replay struct {
			File    string  `fig:"file"`
			Speedup float64 `fig:"speedup" default:"1"`
		} `fig:"replay"`
	} `fig:"source"`

	History struct {
		// Allowed values: none, redis, postgres
		Backend    string `fig:"backend" default:"none"`
		MaxEntries int64  `fig:"max_entries" default:"500"`
		Redis      struct {
			Addr     string `fig:"addr" default:"localhost:6379"`
			Password string `fig:"password"`
			DB       int    `fig:"db"`
			Key      string `fig:"key" default:"arrival-alarm:history"`
		} `fig:"redis"`
		Postgres struct {
			DSN string `fig:"dsn"`
		} `fig:"postgres"`
	} `fig:"history"`

	Notify struct {
		Disable bool   `fig:"disable"`
		AppName string `fig:"app_name" default:"arrival-alarm"`
	} `fig:"notify"`

	Intervals struct {
		Output time.Duration `fig:"output" default:"30s"`
	} `fig:"intervals"`

	Metrics struct {
		// Listen is the address of the Prometheus endpoint. Empty disables it.
		Listen string `fig:"listen"`
	} `fig:"metrics"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
		Arrival string `fig:"arrival"`
	} `fig:"templates"`
}

// Tracking holds the tunables of the tracking engine.
type Tracking struct {
	Bands struct {
		Target   float64 `fig:"target" default:"1000"`
		Prepare  float64 `fig:"prepare" default:"2000"`
		Approach float64 `fig:"approach" default:"10000"`
	} `fig:"bands"`
	ExitBuffers struct {
		Target   float64 `fig:"target" default:"1000"`
		Prepare  float64 `fig:"prepare" default:"1000"`
		Approach float64 `fig:"approach" default:"1000"`
	} `fig:"exit_buffers"`
	Intervals struct {
		Rest     time.Duration `fig:"rest" default:"10m"`
		Approach time.Duration `fig:"approach" default:"3m"`
		Prepare  time.Duration `fig:"prepare" default:"1m"`
	} `fig:"intervals"`
	DistanceFilter float64 `fig:"distance_filter" default:"10"`
	HighSpeed      struct {
		Threshold  float64       `fig:"threshold" default:"80"`
		Multiplier float64       `fig:"multiplier" default:"0.3"`
		Min        time.Duration `fig:"min" default:"10s"`
		Max        time.Duration `fig:"max" default:"30s"`
	} `fig:"high_speed"`
	Arrival struct {
		// Allowed values: single, consecutive
		Policy      string  `fig:"policy" default:"single"`
		MaxAccuracy float64 `fig:"max_accuracy"`
	} `fig:"arrival"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// DefaultDir returns the directory the application looks for its config file in.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "arrival-alarm")
}

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if !slices.Contains(SourceTypes, c.Source.Type) {
		return fmt.Errorf("invalid source type: %s", c.Source.Type)
	}
	if c.Source.Type == "replay" && c.Source.Replay.File == "" {
		return errors.New("replay source requires a track file")
	}
	if c.Source.Replay.Speedup <= 0 {
		return fmt.Errorf("invalid replay speedup: %v", c.Source.Replay.Speedup)
	}
	if c.Source.FastInterval <= 0 {
		return fmt.Errorf("invalid source fast interval: %s", c.Source.FastInterval)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("invalid source timeout: %s", c.Source.Timeout)
	}
	if !slices.Contains(HistoryBackends, c.History.Backend) {
		return fmt.Errorf("invalid history backend: %s", c.History.Backend)
	}
	if c.History.Backend == "postgres" && c.History.Postgres.DSN == "" {
		return errors.New("postgres history backend requires a dsn")
	}
	if c.History.MaxEntries < 1 {
		return fmt.Errorf("invalid history max entries: %d", c.History.MaxEntries)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	if err := c.validateTarget(); err != nil {
		return err
	}
	if err := c.Tracking.Validate(); err != nil {
		return err
	}

	if c.Target.Name == "" {
		c.Target.Name = fmt.Sprintf("%.5f, %.5f", c.Target.Lat, c.Target.Lon)
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.Templates.Arrival == "" {
		c.Templates.Arrival = DefaultArrivalTpl
	}

	return nil
}

func (c *Config) validateTarget() error {
	if math.IsNaN(c.Target.Lat) || c.Target.Lat < -90 || c.Target.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidTarget, c.Target.Lat)
	}
	if math.IsNaN(c.Target.Lon) || c.Target.Lon < -180 || c.Target.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidTarget, c.Target.Lon)
	}
	if c.Target.Radius <= 0 || math.IsNaN(c.Target.Radius) {
		return fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidTarget, c.Target.Radius)
	}
	return nil
}

// Validate checks the tracking section. Band ordering itself is enforced by the engine.
func (t *Tracking) Validate() error {
	b := t.Bands
	if b.Target <= 0 || b.Target >= b.Prepare || b.Prepare >= b.Approach {
		return fmt.Errorf("invalid tracking bands: want 0 < target (%v) < prepare (%v) < approach (%v)",
			b.Target, b.Prepare, b.Approach)
	}
	e := t.ExitBuffers
	if e.Target < 0 || e.Prepare < 0 || e.Approach < 0 {
		return errors.New("invalid tracking exit buffers: must not be negative")
	}
	i := t.Intervals
	if i.Rest <= 0 || i.Approach <= 0 || i.Prepare <= 0 {
		return errors.New("invalid tracking intervals: must be positive")
	}
	if t.DistanceFilter <= 0 {
		return fmt.Errorf("invalid distance filter: %v", t.DistanceFilter)
	}
	h := t.HighSpeed
	if h.Threshold <= 0 {
		return fmt.Errorf("invalid high speed threshold: %v", h.Threshold)
	}
	if h.Multiplier <= 0 {
		return fmt.Errorf("invalid high speed multiplier: %v", h.Multiplier)
	}
	if h.Min <= 0 || h.Min > h.Max {
		return fmt.Errorf("invalid high speed clamp: min %s, max %s", h.Min, h.Max)
	}
	if !slices.Contains(ArrivalPolicies, t.Arrival.Policy) {
		return fmt.Errorf("invalid arrival policy: %s", t.Arrival.Policy)
	}
	if t.Arrival.MaxAccuracy < 0 {
		return fmt.Errorf("invalid arrival max accuracy: %v", t.Arrival.MaxAccuracy)
	}
	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
