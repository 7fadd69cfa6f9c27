// Package config loads the TOML configuration shared by the recorder and the
// analysis workers.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/hb9tf/chirpsounder/downconvert"
	"github.com/hb9tf/chirpsounder/filter"
	"github.com/hb9tf/chirpsounder/ionogram"
	"github.com/hb9tf/chirpsounder/recording"
	"github.com/hb9tf/chirpsounder/schedule"
	"github.com/hb9tf/chirpsounder/sounding"
)

var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a string, e.g. "1.5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// TimingTable lists the sounders owned by one worker rank.
type TimingTable struct {
	Sounders []schedule.Timing `toml:"sounders"`
}

type Config struct {
	DataDir   string `toml:"data_dir"`
	OutputDir string `toml:"output_dir"`
	Channel   string `toml:"channel"`

	SampleRate float64 `toml:"sample_rate"`
	CenterFreq float64 `toml:"center_freq"`
	// FileSamples is the size of recording files in samples.
	FileSamples int `toml:"file_samples"`
	// RetainFiles bounds the recording ring buffer, 0 keeps everything.
	RetainFiles int `toml:"retain_files"`

	Decimation             int `toml:"decimation"`
	WindowStep             int `toml:"window_step"`
	NDownconversionThreads int `toml:"n_downconversion_threads"`
	FilterLen              int `toml:"filter_len"`

	MaximumAnalysisFrequency float64 `toml:"maximum_analysis_frequency"`
	FrequencyResolution      float64 `toml:"frequency_resolution"`
	RangeResolution          float64 `toml:"range_resolution"`
	MaxRangeExtent           float64 `toml:"max_range_extent"`

	Realtime       bool `toml:"realtime"`
	Serendipitous  bool `toml:"serendipitous"`
	SaveRawVoltage bool `toml:"save_raw_voltage"`

	PollInterval Duration `toml:"poll_interval"`
	ReadAhead    Duration `toml:"read_ahead"`

	MinChirpRate float64 `toml:"min_chirp_rate"`
	MaxChirpRate float64 `toml:"max_chirp_rate"`
	SounderIDs   []int   `toml:"sounder_ids"`

	// SounderTimings holds one table per worker rank for analytic mode.
	SounderTimings []TimingTable `toml:"sounder_timings"`
}

// Default returns the configuration used for keys missing in the file.
func Default() *Config {
	return &Config{
		Channel:                "ch0",
		FileSamples:            recording.DefaultFileSamples,
		Decimation:             2500,
		WindowStep:             sounding.DefaultStep,
		NDownconversionThreads: 4,
		FilterLen:              2,
		PollInterval:           Duration{sounding.DefaultPollInterval},
		ReadAhead:              Duration{time.Second},
	}
}

// Load reads the file at path on top of the defaults and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config %q: %w", path, err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := toml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 1) {
		return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalid, name, v)
	}
	return nil
}

// Validate checks everything the frequency and range axis math depends on.
func (c *Config) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"sample_rate", c.SampleRate},
		{"decimation", float64(c.Decimation)},
		{"window_step", float64(c.WindowStep)},
		{"n_downconversion_threads", float64(c.NDownconversionThreads)},
		{"filter_len", float64(c.FilterLen)},
		{"file_samples", float64(c.FileSamples)},
		{"maximum_analysis_frequency", c.MaximumAnalysisFrequency},
		{"frequency_resolution", c.FrequencyResolution},
		{"range_resolution", c.RangeResolution},
	} {
		if err := positive(v.name, v.value); err != nil {
			return err
		}
	}
	if !(c.MaxRangeExtent > 0) {
		return fmt.Errorf("%w: max_range_extent must be positive, got %g", ErrInvalid, c.MaxRangeExtent)
	}
	if c.RetainFiles < 0 {
		return fmt.Errorf("%w: retain_files must not be negative, got %d", ErrInvalid, c.RetainFiles)
	}
	if c.MaxChirpRate > 0 && c.MinChirpRate > c.MaxChirpRate {
		return fmt.Errorf("%w: min_chirp_rate %g above max_chirp_rate %g", ErrInvalid, c.MinChirpRate, c.MaxChirpRate)
	}
	for rank, table := range c.SounderTimings {
		for _, t := range table.Sounders {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("%w: sounder_timings[%d]: %s", ErrInvalid, rank, err)
			}
		}
	}
	return nil
}

// Mode is the scheduling mode the flags select.
func (c *Config) Mode() schedule.Mode {
	return schedule.ModeFor(c.Realtime, c.Serendipitous)
}

// ValidateWorker checks the settings a worker of the given rank needs in mode.
func (c *Config) ValidateWorker(mode schedule.Mode, rank int) error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output_dir is required", ErrInvalid)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required in %s mode", ErrInvalid, mode)
	}
	if mode == schedule.Analytic && len(c.Timings(rank)) == 0 {
		return fmt.Errorf("%w: no sounder_timings for rank %d", ErrInvalid, rank)
	}
	return nil
}

// Timings returns the sounders owned by rank.
func (c *Config) Timings(rank int) []schedule.Timing {
	if rank < 0 || rank >= len(c.SounderTimings) {
		return nil
	}
	return c.SounderTimings[rank].Sounders
}

// DecimatedSampleRate of the downconverted records.
func (c *Config) DecimatedSampleRate() float64 {
	return c.SampleRate / float64(c.Decimation)
}

func (c *Config) Ionogram() ionogram.Config {
	return ionogram.Config{
		FrequencyResolution: c.FrequencyResolution,
		RangeResolution:     c.RangeResolution,
		MaxRangeExtent:      c.MaxRangeExtent,
	}
}

// Sounding returns the window loop options of a worker scheduling in mode.
// Only batch workers read a finished recording without waiting for it.
func (c *Config) Sounding(mode schedule.Mode) sounding.Options {
	return sounding.Options{
		SampleRate:           c.SampleRate,
		Decimation:           c.Decimation,
		Step:                 c.WindowStep,
		MaxAnalysisFrequency: c.MaximumAnalysisFrequency,
		Realtime:             mode != schedule.Batch,
		ReadAhead:            int64(c.ReadAhead.Seconds() * c.SampleRate),
		PollInterval:         c.PollInterval.Duration,
	}
}

// Downconvert returns the kernel configuration for a chirp of the given rate.
func (c *Config) Downconvert(rate float64) downconvert.Config {
	return downconvert.Config{
		F0:           -c.CenterFreq,
		Rate:         rate,
		Decimation:   c.Decimation,
		SamplePeriod: 1.0 / c.SampleRate,
		FilterLen:    c.FilterLen,
		Threads:      c.NDownconversionThreads,
	}
}

func (c *Config) Filters() []filter.Filterer {
	var filters []filter.Filterer
	if c.MinChirpRate > 0 || c.MaxChirpRate > 0 {
		filters = append(filters, &filter.FilterRate{RateLow: c.MinChirpRate, RateHigh: c.MaxChirpRate})
	}
	if len(c.SounderIDs) > 0 {
		filters = append(filters, filter.NewFilterSounder(c.SounderIDs...))
	}
	return filters
}
