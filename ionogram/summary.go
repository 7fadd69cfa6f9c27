package ionogram

import "time"

// Summary is the catalog entry of a written ionogram.
type Summary struct {
	// Identifier of the worker instance that produced the ionogram.
	Identifier string    `json:"identifier"`
	Rank       int       `json:"rank"`
	SounderID  int       `json:"sounderId"`
	Channel    string    `json:"channel"`
	Start      time.Time `json:"start"`
	ChirpRate  float64   `json:"chirpRate"`
	SampleRate float64   `json:"sampleRate"`

	Freqs          int     `json:"freqs"`
	Ranges         int     `json:"ranges"`
	MissingWindows int     `json:"missingWindows"`
	PeakPower      float64 `json:"peakPower"`

	Path string `json:"path"`
}

func (i *Ionogram) Summary(path string) Summary {
	return Summary{
		SounderID:  i.SounderID,
		Channel:    i.Channel,
		Start:      i.Start,
		ChirpRate:  i.ChirpRate,
		SampleRate: i.SampleRate,
		Freqs:      len(i.Freqs),
		Ranges:     len(i.Ranges),
		PeakPower:  i.Peak(),
		Path:       path,
	}
}
