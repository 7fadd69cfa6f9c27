package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"

	"github.com/hb9tf/chirpsounder/sounding"
)

const parPattern = "par-*.json"

// Params is the content of a parameter file written by the detector for each
// detected chirp.
type Params struct {
	T0        float64 `json:"t0"`
	ChirpRate float64 `json:"chirp_rate"`
	ID        int     `json:"id"`
}

func ReadParams(path string) (Params, error) {
	var p Params
	b, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("unable to parse parameter file %q: %w", path, err)
	}
	if p.ChirpRate == 0 {
		return p, fmt.Errorf("parameter file %q has no chirp rate", path)
	}
	return p, nil
}

// Transmission of the parameters on a recording at sampleRate.
func (p Params) Transmission(sampleRate float64, channel string) sounding.Transmission {
	start := sounding.SecondsTime(p.T0)
	return sounding.Transmission{
		Start:      start,
		StartIndex: sounding.TimeIndex(start, sampleRate),
		ChirpRate:  p.ChirpRate,
		SounderID:  p.ID,
		Channel:    channel,
	}
}

// ParFiles lists the parameter files of all days below outputDir, sorted.
func ParFiles(outputDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(outputDir, "*", parPattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
